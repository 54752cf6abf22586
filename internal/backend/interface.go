package backend

import (
	"context"

	"loanledger/internal/amqp"
	"loanledger/internal/events"
	"loanledger/internal/storage"
)

// CleanupFunc releases the resources held by a Result.
type CleanupFunc func() error

// Result holds the store and the optional publisher built from a Config.
type Result struct {
	Store storage.Store
	// Publisher is nil when events are disabled or the broker was
	// unreachable at startup.
	Publisher events.Publisher
	// AMQP is set when the amqp events backend connected; the worker
	// consumes reconcile requests through it.
	AMQP    *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Storage StorageType

	SQLiteDBPath string
	PostgresDSN  string

	Events EventsType

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	KafkaBrokers []string
	KafkaTopic   string
}

// StorageType selects the store implementation.
type StorageType string

const (
	SQLiteStorage   StorageType = "sqlite"
	PostgresStorage StorageType = "postgres"
	MemoryStorage   StorageType = "memory"
)

func (t StorageType) String() string {
	return string(t)
}

// IsValid returns true if the storage type is valid
func (t StorageType) IsValid() bool {
	switch t {
	case SQLiteStorage, PostgresStorage, MemoryStorage:
		return true
	default:
		return false
	}
}

// EventsType selects where posting events go.
type EventsType string

const (
	NoEvents    EventsType = "none"
	AMQPEvents  EventsType = "amqp"
	KafkaEvents EventsType = "kafka"
)

func (t EventsType) String() string {
	return string(t)
}

func (t EventsType) IsValid() bool {
	switch t {
	case NoEvents, AMQPEvents, KafkaEvents:
		return true
	default:
		return false
	}
}
