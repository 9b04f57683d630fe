package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealscanner/deals-cli/internal/classify"
	"github.com/dealscanner/deals-cli/internal/offer"
	"github.com/dealscanner/deals-cli/internal/store"
)

// env holds the wired dependencies shared by the commands.
type env struct {
	Store      store.Store
	Classifier *classify.Classifier
	Service    *offer.Service
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// openStore connects to the configured backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	cl := classify.New(st, time.Duration(cfg.Categories.CacheTTLMinutes)*time.Minute)
	svc := offer.New(st, cl, offer.Config{
		PublishThreshold: cfg.Ingest.PublishThreshold,
		ValidityDays:     cfg.Ingest.ValidityDays,
	})

	return &env{Store: st, Classifier: cl, Service: svc}, nil
}
