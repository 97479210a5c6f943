package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"momentum/internal/store"
)

// messageVersion is bumped when the wire shape changes incompatibly.
const messageVersion = 1

// ChangeMessage is the wire form of a store change event. It carries only
// what a receiver needs to decide which subscriptions to refresh; receivers
// re-read the data themselves.
type ChangeMessage struct {
	store.ChangeEvent
	Version int `json:"version"`
}

// NewChangeMessage wraps ev, stamping the time if it is unset.
func NewChangeMessage(ev store.ChangeEvent) *ChangeMessage {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return &ChangeMessage{ChangeEvent: ev, Version: messageVersion}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes and validates a message.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Collection == "" {
		return nil, errors.New("change message without collection")
	}
	return &msg, nil
}
