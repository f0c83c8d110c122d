package server

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Hub owns every live connection and the roster derived from them. It is the
// single writer of both structures: connect and disconnect transitions flow
// through its channels and are applied on the Run loop, so handlers never
// touch shared session state directly.
type Hub struct {
	log        *slog.Logger
	clients    map[*Client]bool
	roster     map[string]int
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub ready to accept registrations.
func NewHub(log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		roster:     make(map[string]int),
		broadcast:  make(chan Event),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run processes registration, unregistration, and broadcast events until the
// hub is shut down. Call it in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeClients()
			return

		case client := <-h.register:
			if client == nil {
				continue
			}
			h.admit(client)

		case client := <-h.unregister:
			h.drop(client)

		case evt := <-h.broadcast:
			h.deliver(evt)
		}
	}
}

// admit binds an authenticated connection to the roster, starts its pumps,
// and announces the login to every connection including the new one.
func (h *Hub) admit(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	h.roster[client.username]++
	total := len(h.clients)
	h.mutex.Unlock()

	h.log.Info("session opened",
		"session", client.id, "username", client.username, "addr", client.addr, "clients", total)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	h.deliver(Event{Name: EventUserLogin, Username: client.username})
}

// drop removes a closed connection and announces the disconnect to the
// remaining connections.
func (h *Hub) drop(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	h.roster[client.username]--
	if h.roster[client.username] <= 0 {
		delete(h.roster, client.username)
	}
	total := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	h.log.Info("session closed",
		"session", client.id, "username", client.username, "clients", total)

	h.deliver(Event{Name: EventUserDisconnected, Username: client.username})
}

// deliver fans an event out to every live connection. Chat payloads are
// relayed verbatim and unscoped: every authenticated peer receives them,
// the sender included.
func (h *Hub) deliver(evt Event) {
	payload := evt.encode()
	if payload == nil {
		return
	}

	var failed []*Client
	for _, client := range h.snapshot() {
		if !h.send(client, payload) {
			failed = append(failed, client)
		}
	}
	h.discard(failed)
}

// send hands the payload to one client without blocking the Run loop. A full
// or closed send buffer marks the client for removal.
func (h *Hub) send(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("recovered from send on closed channel", "recover", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, ok := h.clients[client]; !ok || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) snapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// discard drops clients whose send buffers overflowed.
func (h *Hub) discard(clients []*Client) {
	if len(clients) == 0 {
		return
	}

	var channels []chan []byte
	h.mutex.Lock()
	for _, client := range clients {
		if _, ok := h.clients[client]; !ok {
			continue
		}
		delete(h.clients, client)
		client.closed = true
		h.roster[client.username]--
		if h.roster[client.username] <= 0 {
			delete(h.roster, client.username)
		}
		channels = append(channels, client.send)
		h.log.Warn("session dropped, send buffer full",
			"session", client.id, "username", client.username)
	}
	h.mutex.Unlock()

	for _, ch := range channels {
		close(ch)
	}
}

// Roster returns the usernames of all currently connected sessions, sorted
// and deduplicated.
func (h *Hub) Roster() []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	users := make([]string, 0, len(h.roster))
	for username := range h.roster {
		users = append(users, username)
	}
	sort.Strings(users)
	return users
}

func (h *Hub) closeClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Error("closing client connection", "session", client.id, "error", err)
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the Run loop, closes every connection, and waits for the
// pump goroutines to finish or for the timeout to expire.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
