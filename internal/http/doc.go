// Package http exposes the coordinator over HTTP.
//
// The router exposes the following endpoints:
//   - POST /sessions: selects a roster profile. Body: {"name"}. Response:
//     {"token","expires_at","user"} with the token also surfaced via the
//     `X-Session-Token` header and a `session_token` cookie.
//   - DELETE /sessions/current: ends the current session and clears the cookie.
//   - GET /roster, GET /config, GET /phrases: selectable profiles, the backend
//     mode with its pending configuration warning, and the quick chat phrases.
//   - GET /meetings, POST /meetings, DELETE /meetings, GET /meetings/active,
//     POST /meetings/recurring: the meeting list, creation, bulk deletion, the
//     meeting in progress and weekly scheduling over a date window.
//   - GET /meetings/{id}, DELETE /meetings/{id}, PUT /meetings/{id}/status: a
//     single meeting and its lifecycle. Status changes follow
//     scheduled -> in-progress -> completed.
//   - PUT /meetings/{id}/assignments/{position} with {"name"} and
//     PUT /meetings/{id}/assignments/{position}/confirmation with {"confirmed"}.
//     Positions are accepted by display name or short key.
//   - GET /meetings/{id}/messages, POST /meetings/{id}/messages: the chat
//     history (at most 50, oldest first) and posting with {"text"}.
//   - GET /events and GET /meetings/{id}/events: server-sent event streams of
//     meeting changes and new chat messages. A chat stream whose caller
//     loses access ends with a "revoked" event.
//   - GET /metrics, GET /healthz.
//
// Everything below /meetings and /events requires a session. Error bodies are
// {"error_code","message","errors"} with user facing messages in Spanish.
package http
