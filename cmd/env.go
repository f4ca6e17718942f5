package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/alexphiev/empreinte-enrich/internal/cache"
	"github.com/alexphiev/empreinte-enrich/internal/catalog"
	"github.com/alexphiev/empreinte-enrich/internal/scorer"
)

func initStore(ctx context.Context) (catalog.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "empreinte.db"
		}
		return catalog.NewSQLite(dsn)
	case "postgres":
		return catalog.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initMigratedStore(ctx context.Context) (catalog.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initEngine() (*scorer.Engine, error) {
	if cfg.Scoring.RulesFile == "" {
		return scorer.New(scorer.DefaultRules()), nil
	}
	rules, err := scorer.LoadRules(cfg.Scoring.RulesFile)
	if err != nil {
		return nil, err
	}
	return scorer.New(rules), nil
}

func initCache(namespace string) (*cache.Cache, error) {
	return cache.New(cfg.Cache.Dir, namespace)
}
