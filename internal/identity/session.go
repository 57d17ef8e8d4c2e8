package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// Session is a bearer-token login. The token doubles as the lookup key;
// expiry is checked on every read, not just by the sweeper.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session is past its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionRepo stores active sessions.
type SessionRepo interface {
	// Create mints a token and stores a session for the user.
	Create(ctx context.Context, userID string, ttl time.Duration) (*Session, error)

	// Get resolves a token. ErrSessionNotFound for unknown tokens,
	// ErrSessionExpired for known but stale ones.
	Get(ctx context.Context, token string) (*Session, error)

	// Delete drops a single session. Unknown tokens are a no-op.
	Delete(ctx context.Context, token string) error

	// DeleteByUser drops every session the user holds.
	DeleteByUser(ctx context.Context, userID string) error

	// DeleteExpired sweeps stale sessions and reports how many went.
	DeleteExpired(ctx context.Context) (int, error)
}

// GenerateToken returns 32 bytes of crypto/rand, base64url encoded.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// MemorySessionRepo keeps sessions in two maps: token to session, and
// user to token list so DeleteByUser need not scan.
type MemorySessionRepo struct {
	mu         sync.RWMutex
	byToken    map[string]*Session
	userTokens map[string][]string
}

// NewMemorySessionRepo creates an empty in-memory session store.
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		byToken:    make(map[string]*Session),
		userTokens: make(map[string][]string),
	}
}

func (r *MemorySessionRepo) Create(ctx context.Context, userID string, ttl time.Duration) (*Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byToken[token] = session
	r.userTokens[userID] = append(r.userTokens[userID], token)

	return session, nil
}

func (r *MemorySessionRepo) Get(ctx context.Context, token string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.byToken[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.IsExpired() {
		return nil, ErrSessionExpired
	}
	return session, nil
}

func (r *MemorySessionRepo) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byToken[token]
	if !ok {
		return nil
	}
	r.remove(session.UserID, token)
	return nil
}

func (r *MemorySessionRepo) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, token := range r.userTokens[userID] {
		delete(r.byToken, token)
	}
	delete(r.userTokens, userID)
	return nil
}

func (r *MemorySessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int
	now := time.Now()
	for token, session := range r.byToken {
		if now.After(session.ExpiresAt) {
			r.remove(session.UserID, token)
			count++
		}
	}
	return count, nil
}

// remove deletes one token from both maps. Caller holds the lock.
func (r *MemorySessionRepo) remove(userID, token string) {
	tokens := r.userTokens[userID]
	for i, t := range tokens {
		if t == token {
			r.userTokens[userID] = append(tokens[:i], tokens[i+1:]...)
			break
		}
	}
	delete(r.byToken, token)
}
