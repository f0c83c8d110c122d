package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/messages"
	"github.com/parleychat/parley/internal/rooms"
	"github.com/parleychat/parley/internal/store"
)

// Server bundles the HTTP handlers with the services they call and the hub
// that owns live connections.
type Server struct {
	cfg      *config.Config
	log      *slog.Logger
	auth     *auth.Service
	tokens   *auth.TokenManager
	rooms    *rooms.Resolver
	messages *messages.Service
	hub      *Hub
	validate *validator.Validate
	upgrader websocket.Upgrader
}

// New wires the HTTP layer to its collaborators. The returned server owns a
// hub; start it with StartHub before serving traffic.
func New(
	cfg *config.Config,
	log *slog.Logger,
	authSvc *auth.Service,
	tokens *auth.TokenManager,
	resolver *rooms.Resolver,
	msgSvc *messages.Service,
) *Server {
	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	return &Server{
		cfg:      cfg,
		log:      log,
		auth:     authSvc,
		tokens:   tokens,
		rooms:    resolver,
		messages: msgSvc,
		hub:      NewHub(log),
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// Hub exposes the server's hub for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// StartHub launches the hub's event loop.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Info("hub started")
}

type credentialsRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	creds, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameTaken) {
			s.writeError(w, http.StatusConflict, "Username is taken.")
			return
		}
		s.serverFault(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, creds)
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	creds, err := s.auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnknownUser):
			s.writeError(w, http.StatusNotFound, "Username does not exist.")
		case errors.Is(err, auth.ErrWrongPassword):
			s.writeError(w, http.StatusUnauthorized, "Passwords did not match.")
		default:
			s.serverFault(w, r, err)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, creds)
}

type postMessageRequest struct {
	Username string `json:"username" validate:"required"`
	Message  string `json:"message" validate:"required"`
	Time     int64  `json:"time"`
	RoomID   int64  `json:"roomId" validate:"required"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if _, err := s.messages.Add(r.Context(), req.Username, req.Message, req.Time, req.RoomID); err != nil {
		s.serverFault(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type messageListResponse struct {
	Messages []store.Message `json:"messages"`
	Room     int64           `json:"room,omitempty"`
}

// handleGetMessages serves the room history. The room can be named directly
// (?room=7) or by its participant pair (?usernames=alice bob), in which case
// the room is resolved or lazily created first. With neither parameter the
// legacy global log is returned.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if roomParam := query.Get("room"); roomParam != "" {
		roomID, err := strconv.ParseInt(roomParam, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid room id.")
			return
		}
		s.listRoom(w, r, roomID)
		return
	}

	if pairParam := query.Get("usernames"); pairParam != "" {
		pair := strings.Fields(pairParam)
		if len(pair) != 2 {
			s.writeError(w, http.StatusBadRequest, "Expected exactly two usernames.")
			return
		}
		roomID, err := s.rooms.Resolve(r.Context(), pair[0], pair[1])
		if err != nil {
			s.serverFault(w, r, err)
			return
		}
		s.listRoom(w, r, roomID)
		return
	}

	msgs, err := s.messages.ListAll(r.Context())
	if err != nil {
		s.serverFault(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageListResponse{Messages: msgs})
}

func (s *Server) listRoom(w http.ResponseWriter, r *http.Request, roomID int64) {
	msgs, err := s.messages.ListByRoom(r.Context(), roomID)
	if err != nil {
		s.serverFault(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageListResponse{Messages: msgs, Room: roomID})
}

type rosterResponse struct {
	Users []string `json:"users"`
}

// handleRoster returns the usernames currently connected to this instance.
// Presence announcements only carry the changed username, so clients that
// need the full picture query it here.
func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	if _, err := s.tokens.Verify(tokenFromRequest(r)); err != nil {
		s.writeError(w, http.StatusUnauthorized, "Invalid connection token.")
		return
	}

	s.writeJSON(w, http.StatusOK, rosterResponse{Users: s.hub.Roster()})
}

// HealthHandler reports process liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "parley server is running!")
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body.")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body.")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// serverFault is the catch-all for store and crypto failures. Clients get a
// structured 500 so "broken" stays distinguishable from "denied".
func (s *Server) serverFault(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	s.writeError(w, http.StatusInternalServerError, "Internal server error.")
}

// tokenFromRequest pulls the bearer token from the Authorization header or,
// for live-connection handshakes, the token query parameter.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return after
		}
	}
	return r.URL.Query().Get("token")
}
