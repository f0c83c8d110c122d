package server

import (
	"net/http"
)

// ConnectHandler upgrades a handshake into a live session. The token is
// validated before the upgrade: a connection without a valid token is
// refused and never reaches the hub. The username query parameter older
// clients send is accepted but never trusted; identity comes from the token
// claims alone.
func (s *Server) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		s.writeError(w, http.StatusUnauthorized, "Missing connection token.")
		return
	}

	username, err := s.tokens.Verify(token)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "Invalid connection token.")
		return
	}

	if claimed := r.URL.Query().Get("username"); claimed != "" && claimed != username {
		s.log.Warn("handshake username differs from token claim",
			"claimed", claimed, "username", username)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s.hub, username, r.RemoteAddr, ClientOptions{
		MaxMessageSize:  s.cfg.MaxMessageSize,
		RateLimitBurst:  s.cfg.RateLimitBurst,
		RateLimitRefill: s.cfg.RateLimitRefillInterval,
	})

	// The hub launches the pump goroutines once it has admitted the client.
	s.hub.register <- client
}
