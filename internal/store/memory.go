package store

import (
	"context"
	"sync"
)

// Memory is a mutex-guarded in-process Store used by tests and local
// development. It mirrors the conditional-insert semantics of the Postgres
// implementation.
type Memory struct {
	mu         sync.Mutex
	users      map[string]string
	roomByPair map[string]int64
	members    map[int64][]string
	messages   []Message
	nextRoomID int64
	nextMsgID  int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:      make(map[string]string),
		roomByPair: make(map[string]int64),
		members:    make(map[int64][]string),
	}
}

func (m *Memory) CreateUser(_ context.Context, username, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[username]; ok {
		return ErrDuplicate
	}
	m.users[username] = passwordHash
	return nil
}

func (m *Memory) GetUser(_ context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, ok := m.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &User{Username: username, PasswordHash: hash}, nil
}

func (m *Memory) FindRoom(_ context.Context, userA, userB string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.roomByPair[pairKey(userA, userB)]
	if !ok {
		return 0, ErrNotFound
	}
	return roomID, nil
}

func (m *Memory) CreateRoom(_ context.Context, userA, userB string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(userA, userB)
	if roomID, ok := m.roomByPair[key]; ok {
		return roomID, false, nil
	}

	m.nextRoomID++
	roomID := m.nextRoomID
	first, second := sortedPair(userA, userB)
	m.roomByPair[key] = roomID
	m.members[roomID] = []string{first, second}
	return roomID, true, nil
}

func (m *Memory) AddMessage(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextMsgID++
	msg.ID = m.nextMsgID
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *Memory) MessagesByRoom(_ context.Context, roomID int64) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := []Message{}
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].RoomID == roomID {
			result = append(result, m.messages[i])
		}
	}
	return result, nil
}

func (m *Memory) Messages(_ context.Context) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Message, 0, len(m.messages))
	for i := len(m.messages) - 1; i >= 0; i-- {
		result = append(result, m.messages[i])
	}
	return result, nil
}
