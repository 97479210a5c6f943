// Package backend builds the document store a binary runs against, together
// with the optional AMQP fan-out that keeps several processes' live views in
// step.
package backend

import (
	"context"

	"momentum/internal/amqp"
	"momentum/internal/store"
)

// CleanupFunc releases what a Result holds.
type CleanupFunc func() error

// Result is an opened store and the relay feeding it remote changes. Relay is
// nil when AMQP is not configured.
type Result struct {
	Store   store.Store
	Relay   *amqp.Relay
	Origin  string
	Cleanup CleanupFunc
}

// RunRelay consumes remote change events until ctx is done. It returns nil at
// once when there is no relay.
func (r *Result) RunRelay(ctx context.Context) error {
	if r.Relay == nil {
		return nil
	}
	return r.Relay.Run(ctx)
}

// Factory opens a store for a configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds what the factory needs from the application config.
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Origin names this process in change events. Generated when empty.
	Origin string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
