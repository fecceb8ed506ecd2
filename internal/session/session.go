// Package session owns the authenticated identity of the client: the current
// user record and bearer token, persisted so identity survives restarts.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"bookworm/internal/gateway"
	"bookworm/pkg/domain"
	"bookworm/pkg/kv"
)

// Result is the outcome of a login or register attempt. Failures are values,
// not errors: the caller displays Error inline and the process never fails.
type Result struct {
	Success bool
	Error   string
}

// Store is the single source of truth for "who is logged in". The gateway
// reads the token through Token at the start of each call, so mutations here
// affect the next outgoing request immediately.
type Store struct {
	kv     kv.Store
	gw     *gateway.Gateway
	logger *slog.Logger

	mu          sync.RWMutex
	user        *domain.User
	token       string
	authChecked bool
	loading     bool
	lastErr     string
}

// New constructs a session store backed by the given persistence and gateway.
func New(kvStore kv.Store, gw *gateway.Gateway, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kvStore, gw: gw, logger: logger}
}

// Token implements gateway.TokenSource. Empty when unauthenticated.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the current identity, nil when unauthenticated.
func (s *Store) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// AuthChecked reports whether the persisted session has been read at least
// once this process lifetime. Routing logic waits on this, never on success.
func (s *Store) AuthChecked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authChecked
}

// Loading reports whether a login or register call is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the message of the most recent auth failure.
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// CheckAuth hydrates the in-memory session from the persistent store.
// Safe to call repeatedly; it re-reads and overwrites in-memory state.
// Read errors and corrupt records are logged and treated as unauthenticated
// so startup never hard-fails.
func (s *Store) CheckAuth(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.authChecked = true
		s.mu.Unlock()
	}()

	token, user := s.readPersisted(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if token != "" && user != nil {
		s.token = token
		s.user = user
	} else {
		s.token = ""
		s.user = nil
	}
}

func (s *Store) readPersisted(ctx context.Context) (string, *domain.User) {
	token, found, err := s.kv.Get(ctx, kv.KeyToken)
	if err != nil {
		s.logger.Warn("read persisted token failed", "err", err)
		return "", nil
	}
	if !found || token == "" {
		return "", nil
	}
	raw, found, err := s.kv.Get(ctx, kv.KeyUser)
	if err != nil || !found {
		if err != nil {
			s.logger.Warn("read persisted user failed", "err", err)
		}
		return "", nil
	}
	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Warn("corrupt persisted user record", "err", err)
		return "", nil
	}
	return token, &user
}

// Login authenticates with email and password. On success the identity is
// persisted before the result is returned, so a later CheckAuth (including
// after a restart) reconstructs the same session.
func (s *Store) Login(ctx context.Context, email, password string) Result {
	if strings.TrimSpace(email) == "" || password == "" {
		return s.failResult("email and password are required")
	}
	payload := map[string]string{"email": email, "password": password}
	return s.authenticate(ctx, "/auth/login", payload)
}

// Register creates a new identity server-side and logs in with the returned
// credentials in one step. Same contract shape as Login.
func (s *Store) Register(ctx context.Context, username, email, password string) Result {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(email) == "" || password == "" {
		return s.failResult("all fields are required")
	}
	payload := map[string]string{"userName": username, "email": email, "password": password}
	return s.authenticate(ctx, "/auth/register", payload)
}

func (s *Store) authenticate(ctx context.Context, path string, payload map[string]string) Result {
	s.mu.Lock()
	s.loading = true
	s.lastErr = ""
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	var resp domain.AuthResponse
	if err := s.gw.DoJSON(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return s.failResult(err.Error())
	}
	if resp.Token == "" {
		return s.failResult("server returned no token")
	}

	if err := s.persist(ctx, resp.Token, resp.User); err != nil {
		s.logger.Error("persist session failed", "err", err)
		return s.failResult(err.Error())
	}

	s.mu.Lock()
	user := resp.User
	s.user = &user
	s.token = resp.Token
	s.mu.Unlock()
	return Result{Success: true}
}

func (s *Store) persist(ctx context.Context, token string, user domain.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, kv.KeyUser, string(raw)); err != nil {
		return err
	}
	return s.kv.Set(ctx, kv.KeyToken, token)
}

// LogOut clears both persisted and in-memory identity. Persisted keys are
// removed first so a failure can never resurrect a stale session after a
// restart. Idempotent.
func (s *Store) LogOut(ctx context.Context) error {
	err := errors.Join(
		s.kv.Delete(ctx, kv.KeyToken),
		s.kv.Delete(ctx, kv.KeyUser),
	)

	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.lastErr = ""
	s.mu.Unlock()
	return err
}

func (s *Store) failResult(message string) Result {
	s.mu.Lock()
	s.lastErr = message
	s.mu.Unlock()
	return Result{Success: false, Error: message}
}

// ExpiresAt decodes the exp claim of the current bearer token without
// verifying its signature. Display-only; it never gates outgoing requests.
func (s *Store) ExpiresAt() (time.Time, bool) {
	token := s.Token()
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
