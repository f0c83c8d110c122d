// Package rooms maps unordered username pairs to their shared room.
package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/parleychat/parley/internal/store"
)

// Resolver finds or lazily creates the single room shared by two users.
type Resolver struct {
	rooms store.RoomStore
}

// NewResolver returns a resolver backed by the given room store.
func NewResolver(rooms store.RoomStore) *Resolver {
	return &Resolver{rooms: rooms}
}

// Find returns the id of the existing room for the pair. The boolean is
// false when the pair has never talked. Argument order does not matter.
func (r *Resolver) Find(ctx context.Context, userA, userB string) (int64, bool, error) {
	roomID, err := r.rooms.FindRoom(ctx, userA, userB)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("finding room: %w", err)
	}
	return roomID, true, nil
}

// Resolve returns the room id for the pair, creating room and memberships on
// first contact. Creation happens as one conditional insert at the storage
// boundary, so concurrent first contact between the same pair still yields a
// single room.
func (r *Resolver) Resolve(ctx context.Context, userA, userB string) (int64, error) {
	roomID, ok, err := r.Find(ctx, userA, userB)
	if err != nil {
		return 0, err
	}
	if ok {
		return roomID, nil
	}

	roomID, _, err = r.rooms.CreateRoom(ctx, userA, userB)
	if err != nil {
		return 0, fmt.Errorf("creating room: %w", err)
	}
	return roomID, nil
}
