// Package store defines the persisted data model of the chat service and the
// storage interfaces consumed by the auth, room, and message layers. Two
// implementations exist: Postgres for production and Memory for tests.
package store

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a conditional insert loses to an
	// existing record.
	ErrDuplicate = errors.New("store: duplicate")
)

// User is a registered account. Records are immutable after creation.
type User struct {
	Username     string
	PasswordHash string
}

// Message is one persisted chat line, scoped to a room.
type Message struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Body     string `json:"message"`
	Time     int64  `json:"time"`
	RoomID   int64  `json:"roomId"`
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser inserts a new account. The insert is conditional on the
	// username being free; a taken username yields ErrDuplicate.
	CreateUser(ctx context.Context, username, passwordHash string) error

	// GetUser returns the account for username or ErrNotFound.
	GetUser(ctx context.Context, username string) (*User, error)
}

// RoomStore persists two-party rooms and their memberships. A room is
// uniquely identified by its unordered pair of usernames.
type RoomStore interface {
	// FindRoom returns the id of the room whose members are exactly the
	// two given usernames, or ErrNotFound. Argument order is irrelevant.
	FindRoom(ctx context.Context, userA, userB string) (int64, error)

	// CreateRoom inserts the room for the pair if it does not exist yet
	// and returns its id. The insert is atomic: concurrent calls for the
	// same pair all resolve to a single room. The boolean reports whether
	// this call created the room.
	CreateRoom(ctx context.Context, userA, userB string) (int64, bool, error)
}

// MessageStore persists the chat log.
type MessageStore interface {
	// AddMessage appends msg and fills in its assigned id.
	AddMessage(ctx context.Context, msg *Message) error

	// MessagesByRoom returns the full log of one room, most recent first.
	MessagesByRoom(ctx context.Context, roomID int64) ([]Message, error)

	// Messages returns the full global log, most recent first.
	Messages(ctx context.Context) ([]Message, error)
}

// Store bundles the three storage concerns behind one value.
type Store interface {
	UserStore
	RoomStore
	MessageStore
}

// pairKey derives the canonical identity of an unordered username pair.
func pairKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + "\x1f" + userB
}

// sortedPair returns the pair in canonical order.
func sortedPair(userA, userB string) (string, string) {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return pair[0], pair[1]
}
