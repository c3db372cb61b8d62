package backend

import (
	"context"
	"errors"
	"fmt"

	"fundportal/internal/amqp"
	"fundportal/internal/log"
	"fundportal/internal/memory"
	"fundportal/internal/ports"
	"fundportal/internal/seed"
	"fundportal/internal/services"
	"fundportal/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store ports.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = storage.Open(ctx, storage.DialectSQLite, config.SQLiteDBPath)
	case PostgresBackend:
		store, err = storage.Open(ctx, storage.DialectPostgres, config.DatabaseURL)
	case MemoryBackend:
		store, err = f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s backend: %w", config.Type, err)
	}

	res := &BackendResult{Store: store}
	var client *amqp.Client
	if config.AMQPURL != "" {
		client, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without demand events", log.FieldError, err)
		} else {
			res.Publisher = client
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}
	res.Cleanup = func() error {
		var errs []error
		if client != nil {
			errs = append(errs, client.Close())
		}
		errs = append(errs, store.Close())
		return errors.Join(errs...)
	}

	f.logger.Info("Initialized backend",
		"backend", config.Type,
		"amqp_enabled", res.Publisher != nil)
	return res, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (ports.Store, error) {
	file, err := seed.Load(config.SeedFile)
	if err != nil {
		return nil, err
	}
	hash := config.Hash
	if hash == nil {
		hash = services.HashPassword
	}

	store := memory.NewStore()
	res, err := seed.Apply(ctx, store, file, hash)
	if err != nil {
		return nil, fmt.Errorf("seed memory store: %w", err)
	}

	source := config.SeedFile
	if source == "" {
		source = "built-in"
	}
	f.logger.Info("Seeded memory backend",
		"seed", source,
		"masters", res.Masters,
		"vendors", res.Vendors,
		"users", res.Users,
		"works", res.Works,
		"allocations", res.Allocations)
	return store, nil
}
