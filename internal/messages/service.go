// Package messages persists and retrieves the chat log.
package messages

import (
	"context"
	"fmt"
	"time"

	"github.com/parleychat/parley/internal/store"
)

// Service appends to and reads from the persisted message log. It performs
// no membership or sender validation; the log accepts whatever the store
// accepts.
type Service struct {
	messages store.MessageStore
}

// NewService returns a service over the given message store.
func NewService(messages store.MessageStore) *Service {
	return &Service{messages: messages}
}

// Add appends one message to the room's log. A zero timestamp is replaced
// with the current time.
func (s *Service) Add(ctx context.Context, username, body string, timestamp, roomID int64) (*store.Message, error) {
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}

	msg := &store.Message{
		Username: username,
		Body:     body,
		Time:     timestamp,
		RoomID:   roomID,
	}
	if err := s.messages.AddMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("adding message: %w", err)
	}

	return msg, nil
}

// ListByRoom returns the room's messages, most recent first.
func (s *Service) ListByRoom(ctx context.Context, roomID int64) ([]store.Message, error) {
	msgs, err := s.messages.MessagesByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing room messages: %w", err)
	}
	return msgs, nil
}

// ListAll returns every message regardless of room, most recent first. It
// predates per-room retrieval and remains for clients that still use the
// global log.
func (s *Service) ListAll(ctx context.Context) ([]store.Message, error) {
	msgs, err := s.messages.Messages(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}
