package server

import "net/http"

// Routes returns the ServeMux with every application endpoint. The live
// connection path matches the one the web client has always dialed.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.HandleFunc("POST /register", s.withLogging(s.handleRegister))
	mux.HandleFunc("POST /authenticate", s.withLogging(s.handleAuthenticate))
	mux.HandleFunc("POST /messages", s.withLogging(s.handlePostMessage))
	mux.HandleFunc("GET /messages", s.withLogging(s.handleGetMessages))
	mux.HandleFunc("GET /roster", s.withLogging(s.handleRoster))
	mux.HandleFunc("GET /api/connect", s.ConnectHandler)

	return mux
}
