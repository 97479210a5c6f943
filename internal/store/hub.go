package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ChangeEvent describes a committed write.
type ChangeEvent struct {
	Collection string    `json:"collection"`
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Op         string    `json:"op"`
	Origin     string    `json:"origin"`
	At         time.Time `json:"at"`
}

// Notifier forwards local change events to other processes.
type Notifier interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// Changed lets an outside source (another process sharing the database)
// wake local subscriptions on a collection.
type Changed interface {
	NotifyChanged(collection string)
}

type loader func(ctx context.Context, q Query) ([]Document, error)

// Hub delivers live snapshots to subscribers.
//
// Each subscription owns one delivery goroutine and a one-slot wake channel.
// Notifications that arrive while a snapshot is being loaded or delivered
// collapse into a single reload, so a subscriber always ends on the newest
// state and never sees an older snapshot after a newer one.
type Hub struct {
	load loader

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

func newHub(load loader) *Hub {
	return &Hub{load: load, subs: make(map[*subscription]struct{})}
}

type subscription struct {
	hub    *Hub
	query  Query
	fn     SnapshotFunc
	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	once   sync.Once
}

func (h *Hub) subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &subscription{
		hub:    h,
		query:  q,
		fn:     fn,
		ctx:    sctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
	}
	h.subs[s] = struct{}{}
	s.wake <- struct{}{}
	h.wg.Add(1)
	go s.run()
	return s, nil
}

func (s *subscription) run() {
	defer s.hub.wg.Done()
	defer s.hub.remove(s)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		docs, err := s.hub.load(s.ctx, s.query)
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.WarnContext(s.ctx, "Snapshot load failed",
				"collection", s.query.Collection,
				"error", err)
		}
		s.fn(docs, err)
	}
}

func (s *subscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
		// A reload is already pending; it will pick up this change too.
	}
}

func (s *subscription) Cancel() {
	s.once.Do(s.cancel)
}

func (h *Hub) remove(s *subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// NotifyChanged wakes every subscription on collection.
func (h *Hub) NotifyChanged(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.query.Collection == collection {
			s.notify()
		}
	}
}

// close cancels every subscription and waits for their goroutines.
func (h *Hub) close() {
	h.mu.Lock()
	h.closed = true
	for s := range h.subs {
		s.Cancel()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// publisher wraps an optional Notifier. Publishing failures are logged and
// never fail the write that caused them.
type publisher struct {
	notifier Notifier
	origin   string
}

func (p publisher) publish(ctx context.Context, collection, id string, fields map[string]any, op string) {
	if p.notifier == nil {
		return
	}
	ev := ChangeEvent{
		Collection: collection,
		DocumentID: id,
		OwnerID:    ownerOf(fields),
		Op:         op,
		Origin:     p.origin,
		At:         time.Now().UTC(),
	}
	if err := p.notifier.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish change event",
			"collection", collection,
			"id", id,
			"error", err)
	}
}
