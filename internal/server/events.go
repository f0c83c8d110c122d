package server

import (
	"encoding/json"
	"strings"
)

// Event names exchanged over live connections.
const (
	EventChatMessage      = "chat-message"
	EventUserLogin        = "new-user-login"
	EventUserDisconnected = "user-disconnected"
)

// Event is the JSON envelope for server-to-client frames. For chat messages
// the payload carries the sender's frame verbatim; presence events carry only
// the affected username.
type Event struct {
	Name     string `json:"event"`
	Username string `json:"username,omitempty"`
	Payload  string `json:"payload,omitempty"`
}

// encode marshals the event for the wire. Encoding an Event cannot fail in
// practice; a zero-length slice is returned on the impossible path so callers
// never broadcast garbage.
func (e Event) encode() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
