// Package server implements the HTTP and WebSocket surface of the parley
// chat service.
//
// The REST handlers cover registration, authentication, and the persisted
// message log. Live connections are upgraded at /api/connect after the bearer
// token from the handshake has been verified; from then on the Hub owns the
// session, maintains the roster of connected usernames, and fans chat and
// presence events out to every connected peer.
//
// Wire protocol: every server-to-client frame is a JSON envelope with an
// "event" field (chat-message, new-user-login, user-disconnected). Inbound
// text frames are not validated; whatever a client sends is relayed verbatim
// as the chat-message payload to all connections, the sender included.
package server
