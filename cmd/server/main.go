package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fogon-pos/api/internal/config"
	"github.com/fogon-pos/api/internal/ledger"
	"github.com/fogon-pos/api/internal/router"
	"github.com/fogon-pos/api/internal/service"
	"github.com/fogon-pos/api/internal/store"
	"github.com/fogon-pos/api/internal/ws"
)

func main() {
	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	st := store.NewPG(pool)

	hub := ws.NewHub()
	go hub.Run()

	caps, err := loadCaps(cfg)
	if err != nil {
		log.Fatalf("parse reserve caps: %v", err)
	}
	svc := service.NewSessions(st, caps, hub)

	r := router.New(cfg, st, svc, hub)

	log.Printf("Starting server on :%s", cfg.Port)
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r); err != nil {
		log.Fatal(err)
	}
}

func loadCaps(cfg *config.Config) (ledger.Caps, error) {
	minCash, err := decimal.NewFromString(cfg.MinCashReserve)
	if err != nil {
		return ledger.Caps{}, fmt.Errorf("MIN_CASH_RESERVE: %w", err)
	}
	minDigital, err := decimal.NewFromString(cfg.MinDigitalReserve)
	if err != nil {
		return ledger.Caps{}, fmt.Errorf("MIN_DIGITAL_RESERVE: %w", err)
	}
	return ledger.Caps{MinCash: minCash, MinDigital: minDigital}, nil
}
