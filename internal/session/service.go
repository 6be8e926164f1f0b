// Package session turns a roster profile selection into a bearer token and
// resolves tokens back to the acting user.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/meeting-coordinator/internal/meeting"
	"github.com/example/meeting-coordinator/internal/roster"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 12 * time.Hour

// LoginResult carries the issued token. The token is only returned here.
type LoginResult struct {
	Token     string
	User      roster.User
	ExpiresAt time.Time
}

// Service issues, validates and revokes sessions.
type Service struct {
	roster         *roster.Roster
	sessions       Repository
	tokenGenerator func() string
	now            func() time.Time
	ttl            time.Duration
	logger         *slog.Logger
}

// NewService constructs a Service. Nil dependencies select defaults.
func NewService(r *roster.Roster, sessions Repository, tokenGenerator func() string, now func() time.Time, ttl time.Duration) *Service {
	return NewServiceWithLogger(r, sessions, tokenGenerator, now, ttl, nil)
}

// NewServiceWithLogger constructs a Service with a specified logger.
func NewServiceWithLogger(r *roster.Roster, sessions Repository, tokenGenerator func() string, now func() time.Time, ttl time.Duration, logger *slog.Logger) *Service {
	if sessions == nil {
		sessions = NewMemoryRepository()
	}
	if tokenGenerator == nil {
		tokenGenerator = func() string { return uuid.NewString() }
	}
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		roster:         r,
		sessions:       sessions,
		tokenGenerator: tokenGenerator,
		now:            now,
		ttl:            ttl,
		logger:         logger,
	}
}

// Login selects the roster profile called name.
func (s *Service) Login(ctx context.Context, name string) (result LoginResult, err error) {
	if s == nil || s.roster == nil {
		err = fmt.Errorf("session roster not configured")
		return
	}

	name = strings.TrimSpace(name)
	logger := serviceLogger(ctx, s.logger, "Login", "user", name)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "login succeeded")
	}()

	user, lerr := s.roster.Lookup(name)
	if lerr != nil {
		err = ErrUnknownProfile
		return
	}

	now := s.now()
	if _, perr := s.sessions.DeleteExpired(ctx, now); perr != nil {
		logger.WarnContext(ctx, "failed to prune expired sessions", "error", perr)
	}

	token := s.tokenGenerator()
	if token == "" {
		err = fmt.Errorf("token generator returned an empty token")
		return
	}
	sess := Session{
		ID:        uuid.NewString(),
		UserName:  user.Name,
		TokenHash: HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err = s.sessions.Create(ctx, sess); err != nil {
		return
	}

	result = LoginResult{Token: token, User: user, ExpiresAt: sess.ExpiresAt}
	return
}

// Validate resolves token to the acting principal. The role is read from the
// roster on every call.
func (s *Service) Validate(ctx context.Context, token string) (principal meeting.Principal, err error) {
	if s == nil || s.roster == nil {
		err = fmt.Errorf("session roster not configured")
		return
	}

	token = strings.TrimSpace(token)
	if token == "" {
		err = ErrInvalidToken
		return
	}

	sess, gerr := s.sessions.Get(ctx, HashToken(token))
	if gerr != nil {
		if errors.Is(gerr, ErrNotFound) {
			err = ErrInvalidToken
			return
		}
		err = gerr
		return
	}
	if !sess.ExpiresAt.After(s.now()) {
		_ = s.sessions.Delete(ctx, sess.TokenHash)
		err = ErrSessionExpired
		return
	}

	user, lerr := s.roster.Lookup(sess.UserName)
	if lerr != nil {
		err = ErrUnknownProfile
		return
	}
	principal = meeting.Principal{Name: user.Name, IsAdmin: user.IsAdmin()}
	return
}

// Logout revokes token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if s == nil {
		return fmt.Errorf("session service is nil")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	logger := serviceLogger(ctx, s.logger, "Logout")
	if err := s.sessions.Delete(ctx, HashToken(token)); err != nil {
		if errors.Is(err, ErrNotFound) {
			err = ErrInvalidToken
		}
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "session revoked")
	return nil
}
