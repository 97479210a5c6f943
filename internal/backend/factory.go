package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"momentum/internal/amqp"
	applog "momentum/internal/log"
	"momentum/internal/store"
)

// DefaultFactory implements Factory.
type DefaultFactory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Default(applog.ComponentBackend)
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Origin == "" {
		config.Origin = uuid.NewString()
	}

	// AMQP is optional; a broker that is down degrades to local-only updates.
	var client *amqp.Client
	if config.AMQPURL != "" {
		c, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.queueName())
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without fan-out", applog.FieldError, err)
		} else {
			client = c
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.queueName())
		}
	}

	opts := store.Options{Origin: config.Origin}
	if client != nil {
		opts.Notifier = client
	}

	var (
		st  store.Store
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		st, err = store.NewSQLite(config.SQLiteDBPath, opts)
		if err != nil {
			if client != nil {
				client.Close()
			}
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath, "amqp_enabled", client != nil)
	case MemoryBackend:
		st = store.NewMemory(opts)
		f.logger.InfoContext(ctx, "Initialized memory backend", "amqp_enabled", client != nil)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	res := &Result{Store: st, Origin: config.Origin}
	if client != nil {
		if changed, ok := st.(store.Changed); ok {
			res.Relay = amqp.NewRelay(client, config.Origin, changed)
		}
	}
	res.Cleanup = func() error {
		err := st.Close()
		if client != nil {
			err = errors.Join(err, client.Close())
		}
		return err
	}
	return res, nil
}
