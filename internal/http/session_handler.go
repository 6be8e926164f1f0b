package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/meeting-coordinator/internal/chat"
	"github.com/example/meeting-coordinator/internal/roster"
	"github.com/example/meeting-coordinator/internal/session"
)

type sessionService interface {
	Login(ctx context.Context, name string) (session.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

type rosterSource interface {
	Users() []roster.User
}

// ClientConfig describes the backend mode shown to clients.
type ClientConfig struct {
	Mode    string `json:"mode"`
	Warning string `json:"warning,omitempty"`
}

// SessionHandler serves profile selection and the static client data.
type SessionHandler struct {
	service   sessionService
	roster    rosterSource
	client    ClientConfig
	responder responder
	logger    *slog.Logger
}

// NewSessionHandler wires the session endpoints.
func NewSessionHandler(service sessionService, users rosterSource, client ClientConfig, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{service: service, roster: users, client: client, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

// CreateSession selects a roster profile and issues a session token.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "CreateSession", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode session request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	name := strings.TrimSpace(req.Name)
	logger := h.log(r.Context(), "CreateSession", "name", name)

	result, err := h.service.Login(r.Context(), name)
	if err != nil {
		logger.ErrorContext(r.Context(), "profile selection failed", "error", err, "error_kind", session.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	setSessionCookie(w, result.Token, result.ExpiresAt)
	w.Header().Set("X-Session-Token", result.Token)
	logger.InfoContext(r.Context(), "profile selected", "role", string(result.User.Role))

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
		User:      result.User,
	})
}

// DeleteCurrentSession logs the caller out.
func (h *SessionHandler) DeleteCurrentSession(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token := extractTokenFromRequest(r)
	if token == "" {
		h.responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_REQUIRED",
			Message:   errMissingSessionToken.Error(),
		})
		return
	}

	logger := h.log(r.Context(), "DeleteCurrentSession")
	if err := h.service.Logout(r.Context(), token); err != nil {
		logger.ErrorContext(r.Context(), "failed to end session", "error", err, "error_kind", session.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	clearSessionCookie(w)
	logger.InfoContext(r.Context(), "session ended")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Roster lists the selectable profiles.
func (h *SessionHandler) Roster(w http.ResponseWriter, r *http.Request) {
	users := []roster.User{}
	if h.roster != nil {
		users = h.roster.Users()
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, users)
}

// Config reports the backend mode and the pending configuration warning.
func (h *SessionHandler) Config(w http.ResponseWriter, r *http.Request) {
	h.responder.writeJSON(r.Context(), w, http.StatusOK, h.client)
}

// Phrases lists the quick chat phrases.
func (h *SessionHandler) Phrases(w http.ResponseWriter, r *http.Request) {
	h.responder.writeJSON(r.Context(), w, http.StatusOK, chat.Phrases())
}

type loginRequest struct {
	Name string `json:"name"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at"`
	User      roster.User `json:"user"`
}

func setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     "session_token",
		Value:    token,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// extractTokenFromRequest reads the bearer token, then the session cookie.
// EventSource clients cannot set headers, so the token query parameter is
// accepted last.
func extractTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(header, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, prefix))
		}
	}
	if cookie, err := r.Cookie("session_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
