package session

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Session is an issued profile selection. Only the hash of the token is
// kept.
type Session struct {
	ID        string
	UserName  string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Repository stores sessions by token hash.
type Repository interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, tokenHash string) (Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, reference time.Time) (int, error)
}

// HashToken returns the hex BLAKE2b-256 digest of token.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryRepository keeps sessions for the process lifetime.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]Session)}
}

// Create stores s.
func (r *MemoryRepository) Create(_ context.Context, s Session) error {
	r.mu.Lock()
	r.sessions[s.TokenHash] = s
	r.mu.Unlock()
	return nil
}

// Get returns the session with tokenHash.
func (r *MemoryRepository) Get(_ context.Context, tokenHash string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[tokenHash]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

// Delete removes the session with tokenHash.
func (r *MemoryRepository) Delete(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[tokenHash]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, tokenHash)
	return nil
}

// DeleteExpired drops sessions expiring at or before reference.
func (r *MemoryRepository) DeleteExpired(_ context.Context, reference time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for hash, s := range r.sessions {
		if !s.ExpiresAt.After(reference) {
			delete(r.sessions, hash)
			n++
		}
	}
	return n, nil
}
