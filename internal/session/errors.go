package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/meeting-coordinator/internal/logging"
)

var (
	// ErrUnknownProfile is returned when the selected name is not in the roster.
	ErrUnknownProfile = errors.New("session: unknown profile")
	// ErrInvalidToken is returned for missing or unknown tokens.
	ErrInvalidToken = errors.New("session: invalid token")
	// ErrSessionExpired is returned when the session lifetime elapsed.
	ErrSessionExpired = errors.New("session: expired")
	// ErrNotFound is returned by repositories when no session matches.
	ErrNotFound = errors.New("session: not found")
)

// ErrorKind maps sentinel errors to a stable logging label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownProfile):
		return "unknown_profile"
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrNotFound):
		return "invalid_token"
	case errors.Is(err, ErrSessionExpired):
		return "expired"
	}
	return "unexpected"
}

func serviceLogger(ctx context.Context, base *slog.Logger, operation string, attrs ...any) *slog.Logger {
	pairs := append([]any{"service", "SessionService", "operation", operation}, attrs...)
	return logging.Resolve(ctx, base).With(pairs...)
}
