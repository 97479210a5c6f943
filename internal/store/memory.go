package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"momentum/internal/core"
)

// Options configures change propagation for a store.
type Options struct {
	// Notifier receives an event after every committed write.
	Notifier Notifier
	// Origin identifies this process in published events.
	Origin string
}

// Memory is an in-process Store. It is used by tests and single-process
// deployments that do not need persistence.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]core.Fields
	hub         *Hub
	pub         publisher
	closed      bool
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts Options) *Memory {
	m := &Memory{
		collections: make(map[string]map[string]core.Fields),
		pub:         publisher{notifier: opts.Notifier, origin: opts.Origin},
	}
	m.hub = newHub(m.GetOnce)
	return m
}

func (m *Memory) GetOnce(_ context.Context, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var docs []Document
	for id, f := range m.collections[q.Collection] {
		if q.Match(f) {
			docs = append(docs, Document{ID: id, Fields: cloneFields(f)})
		}
	}
	sortByID(docs)
	return q.apply(docs), nil
}

func (m *Memory) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Subscription, error) {
	return m.hub.subscribe(ctx, q, fn)
}

func (m *Memory) Create(ctx context.Context, collection string, fields core.Fields) (string, error) {
	id := uuid.NewString()
	if err := m.write(collection, id, func(core.Fields, bool) (core.Fields, error) {
		return cloneFields(fields), nil
	}); err != nil {
		return "", err
	}
	m.committed(ctx, collection, id, fields, "create")
	return id, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, partial core.Fields) error {
	var merged core.Fields
	err := m.write(collection, id, func(cur core.Fields, ok bool) (core.Fields, error) {
		if !ok {
			return nil, ErrNotFound
		}
		merged = merge(cur, partial)
		return merged, nil
	})
	if err != nil {
		return err
	}
	m.committed(ctx, collection, id, merged, "update")
	return nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, fields core.Fields) error {
	if err := m.write(collection, id, func(core.Fields, bool) (core.Fields, error) {
		return cloneFields(fields), nil
	}); err != nil {
		return err
	}
	m.committed(ctx, collection, id, fields, "set")
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	old, ok := m.collections[collection][id]
	delete(m.collections[collection], id)
	m.mu.Unlock()
	if ok {
		m.committed(ctx, collection, id, old, "delete")
	}
	return nil
}

func (m *Memory) GetSingle(_ context.Context, collection, id string) (core.Fields, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	f, ok := m.collections[collection][id]
	if !ok {
		return nil, false, nil
	}
	return cloneFields(f), true, nil
}

// NotifyChanged wakes local subscriptions after an external write.
func (m *Memory) NotifyChanged(collection string) {
	m.hub.NotifyChanged(collection)
}

func (m *Memory) Close() error {
	m.hub.close()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) write(collection, id string, fn func(cur core.Fields, ok bool) (core.Fields, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]core.Fields)
		m.collections[collection] = coll
	}
	cur, exists := coll[id]
	next, err := fn(cur, exists)
	if err != nil {
		return err
	}
	coll[id] = next
	return nil
}

func (m *Memory) committed(ctx context.Context, collection, id string, fields core.Fields, op string) {
	m.hub.NotifyChanged(collection)
	m.pub.publish(ctx, collection, id, fields, op)
}
