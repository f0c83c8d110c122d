package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/messages"
	"github.com/parleychat/parley/internal/rooms"
	"github.com/parleychat/parley/internal/store"
)

func newTestServer(t *testing.T) (*Server, *auth.TokenManager) {
	t.Helper()

	mem := store.NewMemory()
	tokens := auth.NewTokenManager([]byte("test-secret"), time.Hour)
	authSvc := auth.NewService(mem, auth.NewPasswordHasher(), tokens)

	cfg := &config.Config{
		Port:                    "0",
		AllowedOrigins:          []string{"*"},
		TokenTTL:                time.Hour,
		MaxMessageSize:          512,
		RateLimitBurst:          100,
		RateLimitRefillInterval: time.Second,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(cfg, log, authSvc, tokens, rooms.NewResolver(mem), messages.NewService(mem)), tokens
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestRegister(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp := postJSON(t, ts.Client(), ts.URL+"/register",
		map[string]string{"username": "alice", "password": "hunter2"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var creds auth.Credentials
	decodeBody(t, resp, &creds)
	assert.Equal(t, "alice", creds.Username)
	assert.NotEmpty(t, creds.Token)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp := postJSON(t, ts.Client(), ts.URL+"/register",
		map[string]string{"username": "alice", "password": "hunter2"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.Client(), ts.URL+"/register",
		map[string]string{"username": "alice", "password": "other"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "Username is taken.", body["error"])
}

func TestRegister_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	for _, payload := range []string{`{}`, `{"username":"alice"}`, `not json`} {
		resp, err := ts.Client().Post(ts.URL+"/register", "application/json",
			bytes.NewReader([]byte(payload)))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "payload %q", payload)
		resp.Body.Close()
	}
}

func TestAuthenticate(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp := postJSON(t, ts.Client(), ts.URL+"/register",
		map[string]string{"username": "bob", "password": "hunter2"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.Client(), ts.URL+"/authenticate",
		map[string]string{"username": "bob", "password": "hunter2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var creds auth.Credentials
	decodeBody(t, resp, &creds)
	assert.Equal(t, "bob", creds.Username)
	assert.NotEmpty(t, creds.Token)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp := postJSON(t, ts.Client(), ts.URL+"/authenticate",
		map[string]string{"username": "nobody", "password": "whatever"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "Username does not exist.", body["error"])
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp := postJSON(t, ts.Client(), ts.URL+"/register",
		map[string]string{"username": "carol", "password": "correct"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.Client(), ts.URL+"/authenticate",
		map[string]string{"username": "carol", "password": "incorrect"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "Passwords did not match.", body["error"])
}

func TestMessagesFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	// First contact between the pair creates the room and returns no history.
	pairURL := ts.URL + "/messages?" + url.Values{"usernames": {"alice bob"}}.Encode()
	resp, err := ts.Client().Get(pairURL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var first messageListResponse
	decodeBody(t, resp, &first)
	require.NotZero(t, first.Room)
	assert.Empty(t, first.Messages)

	for _, body := range []string{"hello", "are you there?"} {
		resp = postJSON(t, ts.Client(), ts.URL+"/messages", map[string]any{
			"username": "alice",
			"message":  body,
			"roomId":   first.Room,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	// The same pair, reversed, resolves to the same room and sees the log
	// most recent first.
	reversedURL := ts.URL + "/messages?" + url.Values{"usernames": {"bob alice"}}.Encode()
	resp, err = ts.Client().Get(reversedURL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var second messageListResponse
	decodeBody(t, resp, &second)
	assert.Equal(t, first.Room, second.Room)
	require.Len(t, second.Messages, 2)
	assert.Equal(t, "are you there?", second.Messages[0].Body)
	assert.Equal(t, "hello", second.Messages[1].Body)

	// Reading by room id directly returns the identical batch.
	resp, err = ts.Client().Get(fmt.Sprintf("%s/messages?room=%d", ts.URL, first.Room))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var byRoom messageListResponse
	decodeBody(t, resp, &byRoom)
	assert.Equal(t, second, byRoom)
}

func TestGetMessages_BadParameters(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/messages?room=notanumber")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = ts.Client().Get(ts.URL + "/messages?" + url.Values{"usernames": {"alice"}}.Encode())
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetMessages_GlobalLog(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp := postJSON(t, ts.Client(), ts.URL+"/messages", map[string]any{
		"username": "alice", "message": "hi", "roomId": 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := ts.Client().Get(ts.URL + "/messages")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list messageListResponse
	decodeBody(t, resp, &list)
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "hi", list.Messages[0].Body)
}

func TestRoster_RequiresToken(t *testing.T) {
	srv, tokens := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/roster")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	token, err := tokens.Sign("alice")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/roster", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var roster rosterResponse
	decodeBody(t, resp, &roster)
	assert.Empty(t, roster.Users)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "running")
}
