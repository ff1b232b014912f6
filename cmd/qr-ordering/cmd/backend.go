package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/qr-table-ordering/guard"
	"github.com/tendant/qr-table-ordering/internal/config"
	"github.com/tendant/qr-table-ordering/pkg/domain"
	"github.com/tendant/qr-table-ordering/pkg/repository"
)

// openDB connects to the document database. It returns nil for the memory
// driver.
func openDB(ctx context.Context, cfg config.StoreConfig) (*repository.DB, error) {
	if cfg.Driver == config.StoreMemory {
		return nil, nil
	}
	db, err := repository.NewDB(ctx, repository.Config{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDatabase,
		ConnectTimeout: cfg.ConnectTimeout,
		MaxPoolSize:    cfg.MaxPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	return db, nil
}

// newGuard opens the configured store and assembles the guard on it.
func newGuard(ctx context.Context, cfg *config.Config) (*guard.Guard, error) {
	db, err := openDB(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	g, err := guard.New(ctx, guard.Config{
		DB:                db,
		JWTSecret:         cfg.Admin.JWTSecret,
		JWTIssuer:         cfg.Admin.JWTIssuer,
		AdminUsername:     cfg.Admin.Username,
		AdminPasswordHash: cfg.Admin.PasswordHash,
		AdminTOTPSecret:   cfg.Admin.TOTPSecret,
		AdminTokenTTL:     cfg.Admin.TokenTTL,
		SessionTTL:        cfg.Session.TTL,
		DeviceThreshold:   cfg.Session.DeviceThreshold,
		MaxOrderItems:     cfg.Validation.MaxOrderItems,
		Logger:            logger,
	})
	if err != nil {
		if db != nil {
			_ = db.Close(context.Background())
		}
		return nil, err
	}
	return g, nil
}

type tableCreator interface {
	Create(ctx context.Context, table *domain.Table) error
}

// seedTables creates tables first..first+count-1, skipping numbers that
// already exist, and returns how many were created.
func seedTables(ctx context.Context, tables tableCreator, first, count int) (int, error) {
	created := 0
	for n := first; n < first+count; n++ {
		err := tables.Create(ctx, &domain.Table{
			ID:          uuid.NewString(),
			TableNumber: n,
			Status:      domain.TableAvailable,
			UpdatedAt:   time.Now(),
		})
		if errors.Is(err, domain.ErrTableExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create table %d: %w", n, err)
		}
		created++
	}
	return created, nil
}
