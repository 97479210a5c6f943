package amqp

import (
	"context"
	"log/slog"

	"momentum/internal/store"
)

// Relay turns change events from other processes into local subscription
// refreshes. Events this process published itself are skipped; the store
// already refreshed locally when it committed them.
type Relay struct {
	client *Client
	origin string
	target store.Changed
}

func NewRelay(client *Client, origin string, target store.Changed) *Relay {
	return &Relay{client: client, origin: origin, target: target}
}

// Run consumes until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	return r.client.ConsumeChanges(ctx, r.handle)
}

func (r *Relay) handle(msg *ChangeMessage) error {
	if msg.Origin == r.origin {
		return nil
	}
	slog.Debug("Remote change received",
		"collection", msg.Collection,
		"id", msg.DocumentID,
		"origin", msg.Origin)
	r.target.NotifyChanged(msg.Collection)
	return nil
}
