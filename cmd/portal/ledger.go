package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// policyFromConfig builds the ledger policy from portal.* keys.
func policyFromConfig(cfg *viper.Viper) (waveledger.Policy, error) {
	ownerStr := cfg.GetString("portal.owner")
	if ownerStr == "" {
		return waveledger.Policy{}, fmt.Errorf("portal.owner is required (PORTAL_OWNER)")
	}
	owner, err := waveledger.ParseAddress(ownerStr)
	if err != nil {
		return waveledger.Policy{}, fmt.Errorf("portal.owner: %w", err)
	}

	policy := waveledger.NewPolicy(owner)
	policy.Cooldown = cfg.GetDuration("portal.cooldown")
	policy.MaxMessageBytes = cfg.GetInt("portal.max_message_bytes")
	return policy, nil
}

// openLedger opens the backend named by portal.store. The returned func releases it.
func openLedger(ctx context.Context, cfg *viper.Viper, policy waveledger.Policy, logger *zap.Logger) (waveledger.Ledger, func(), error) {
	switch store := cfg.GetString("portal.store"); store {
	case "memory", "":
		l, err := waveledger.NewMemoryLedger(policy, waveledger.SystemClock)
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("using in-memory wave ledger; waves are lost on restart")
		return l, func() {}, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.GetString("database.url"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		l, err := waveledger.OpenPostgresLedger(ctx, pool, policy, waveledger.SystemClock, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return l, pool.Close, nil

	case "sqlite":
		path := cfg.GetString("sqlite.path")
		db, err := waveledger.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		l, err := waveledger.OpenSQLLedger(ctx, db, policy, waveledger.SystemClock)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("opened sqlite wave ledger", zap.String("path", path))
		return l, func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown portal.store %q (memory|postgres|sqlite)", store)
	}
}
