package backend

import (
	"context"
	"errors"
	"fmt"

	"loanledger/internal/amqp"
	"loanledger/internal/events"
	"loanledger/internal/kafka"
	"loanledger/internal/log"
	"loanledger/internal/storage"
	"loanledger/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// Create opens the store, then the publisher. A broker that cannot be
// reached leaves the ledger running without events.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.createStore(config)
	if err != nil {
		return nil, err
	}

	res := &Result{Store: store}
	switch config.Events {
	case AMQPEvents:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
			break
		}
		res.AMQP = client
		res.Publisher = client
		f.logger.InfoContext(ctx, "Initialized AMQP publisher",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
	case KafkaEvents:
		res.Publisher = kafka.NewPublisher(config.KafkaBrokers, config.KafkaTopic)
		f.logger.InfoContext(ctx, "Initialized Kafka publisher",
			"brokers", config.KafkaBrokers,
			"topic", config.KafkaTopic)
	case NoEvents:
	}

	res.Cleanup = cleanup(res.Publisher, store)
	return res, nil
}

func (f *DefaultFactory) createStore(config Config) (storage.Store, error) {
	switch config.Storage {
	case SQLiteStorage:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite storage", "db_path", config.SQLiteDBPath)
		return repo, nil
	case PostgresStorage:
		repo, err := storage.NewPostgresRepository(config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL repository: %w", err)
		}
		f.logger.Info("Initialized PostgreSQL storage")
		return repo, nil
	case MemoryStorage:
		f.logger.Info("Initialized memory storage")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Storage)
	}
}

func cleanup(publisher events.Publisher, store storage.Store) CleanupFunc {
	return func() error {
		var errs []error
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close publisher: %w", err))
			}
		}
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		return errors.Join(errs...)
	}
}
