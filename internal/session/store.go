// Package session holds the authenticated identity of the dashboard: the
// bearer token, the admin id and the admin profile.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"eventdash/internal/gateway"
	"eventdash/internal/storage"
	"eventdash/pkg"
)

var (
	// ErrInvalidCredentials means the backend refused the login
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNetwork means the backend could not be reached
	ErrNetwork = errors.New("network unavailable")
	// ErrMissingToken means a login succeeded without returning a token
	ErrMissingToken = errors.New("login response carried no token")
	// ErrUnauthenticated is returned by guarded operations when no token is held
	ErrUnauthenticated = errors.New("not authenticated")
)

// State is a copy of the session fields
type State struct {
	Token   string
	AdminID string
	Profile *pkg.Admin
}

// IsAuthenticated is derived from the token; there is no stored flag
func (s State) IsAuthenticated() bool {
	return s.Token != ""
}

// Authenticator performs the auth calls against the backend. adopt is called
// with the decoded payload before the call invalidates any cached query.
type Authenticator interface {
	Login(ctx context.Context, creds pkg.LoginRequest, adopt func(*pkg.AuthData) error) (*pkg.AuthData, error)
	Register(ctx context.Context, req pkg.RegisterRequest, adopt func(*pkg.AuthData) error) (*pkg.AuthData, error)
}

// Option customizes a Store
type Option func(*Store)

// WithClock replaces time.Now for token expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store is the single owner of session State. Reads return copies; all
// writes go through its methods and are broadcast to subscribers.
type Store struct {
	mu        sync.RWMutex
	state     State
	restored  bool
	listeners map[uint64]func(State)
	nextID    uint64

	auth    Authenticator
	persist *storage.Adapter
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates an empty, unauthenticated Store. persist may be nil.
func New(auth Authenticator, persist *storage.Adapter, opts ...Option) *Store {
	s := &Store{
		listeners: make(map[uint64]func(State)),
		auth:      auth,
		persist:   persist,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates against the backend. On failure the state is left
// untouched and the error matches ErrInvalidCredentials or ErrNetwork when
// the cause is one of those. The new token is in place before queries
// invalidated by the login refetch.
func (s *Store) Login(ctx context.Context, creds pkg.LoginRequest) (State, error) {
	if s.auth == nil {
		return s.Snapshot(), errors.New("session: no authenticator configured")
	}

	var next State
	_, err := s.auth.Login(ctx, creds, func(data *pkg.AuthData) error {
		if data == nil || data.Token == "" {
			return ErrMissingToken
		}
		next = s.adopt(ctx, data)
		return nil
	})
	switch {
	case errors.Is(err, ErrMissingToken):
		return s.Snapshot(), ErrMissingToken
	case err != nil:
		s.logger.Info().Err(err).Str("email", creds.Email).Msg("login failed")
		return s.Snapshot(), classifyLoginError(err)
	}
	s.logger.Info().Str("admin_id", next.AdminID).Msg("logged in")
	return next, nil
}

// Register creates an admin account. When the backend answers with a token
// the new admin is signed in exactly as by Login; otherwise the state is
// left as it was.
func (s *Store) Register(ctx context.Context, req pkg.RegisterRequest) (State, error) {
	if s.auth == nil {
		return s.Snapshot(), errors.New("session: no authenticator configured")
	}

	signedIn := false
	_, err := s.auth.Register(ctx, req, func(data *pkg.AuthData) error {
		if data == nil || data.Token == "" {
			return nil
		}
		s.adopt(ctx, data)
		signedIn = true
		return nil
	})
	if err != nil {
		s.logger.Info().Err(err).Str("email", req.Email).Msg("registration failed")
		if errors.Is(err, gateway.ErrNetwork) {
			return s.Snapshot(), fmt.Errorf("%w: %w", ErrNetwork, err)
		}
		return s.Snapshot(), fmt.Errorf("registration failed: %w", err)
	}
	next := s.Snapshot()
	s.logger.Info().Bool("signed_in", signedIn).Str("admin_id", next.AdminID).Msg("registered")
	return next, nil
}

// adopt installs the token, admin id and profile carried by data and
// persists the token
func (s *Store) adopt(ctx context.Context, data *pkg.AuthData) State {
	adminID := data.AdminID
	if adminID == "" && data.Admin != nil {
		adminID = data.Admin.AdminID
	}
	var profile *pkg.Admin
	if data.Admin != nil {
		p := *data.Admin
		profile = &p
	}

	next := s.update(func(st *State) {
		st.Token = data.Token
		st.AdminID = adminID
		st.Profile = profile
	})
	if s.persist != nil {
		s.persist.Save(ctx, storage.Snapshot{Token: data.Token})
	}
	return next
}

func classifyLoginError(err error) error {
	switch {
	case errors.Is(err, gateway.ErrNetwork):
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	case errors.Is(err, gateway.ErrRejected):
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	switch gateway.StatusCode(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return fmt.Errorf("login failed: %w", err)
}

// Logout clears every field and the persisted token. Calling it while
// logged out is harmless.
func (s *Store) Logout(ctx context.Context) {
	s.mu.RLock()
	wasAuthenticated := s.state.IsAuthenticated()
	s.mu.RUnlock()

	if wasAuthenticated {
		s.update(func(st *State) { *st = State{} })
	}
	if s.persist != nil {
		s.persist.Clear(ctx)
	}
	s.logger.Info().Bool("was_authenticated", wasAuthenticated).Msg("logged out")
}

// Restore seeds the token from a persisted snapshot. Only the first call has
// any effect. A JWT whose exp claim is in the past is discarded along with
// its persisted copy; opaque tokens are accepted as they are. It reports
// whether a token was restored.
func (s *Store) Restore(ctx context.Context, snap *storage.Snapshot) bool {
	s.mu.Lock()
	if s.restored {
		s.mu.Unlock()
		s.logger.Warn().Msg("session already restored, ignoring snapshot")
		return false
	}
	s.restored = true
	s.mu.Unlock()

	if snap == nil || snap.Token == "" {
		return false
	}
	if expired, exp := s.tokenExpired(snap.Token); expired {
		s.logger.Info().Time("expired_at", exp).Msg("discarding expired persisted token")
		if s.persist != nil {
			s.persist.Clear(ctx)
		}
		return false
	}

	s.update(func(st *State) { st.Token = snap.Token })
	s.logger.Debug().Msg("session restored from snapshot")
	return true
}

// tokenExpired reads the exp claim without verifying the signature; the
// backend remains the authority on validity.
func (s *Store) tokenExpired(token string) (bool, time.Time) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false, time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, time.Time{}
	}
	return !s.now().Before(exp.Time), exp.Time
}

// Token returns the current bearer token; it satisfies gateway.TokenSource
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token, nil
}

// SetProfile stores the admin profile returned by a profile query. It is
// ignored when nobody is logged in so a late response cannot resurrect a
// session.
func (s *Store) SetProfile(admin *pkg.Admin) bool {
	if admin == nil {
		return false
	}
	p := *admin
	_, ok := s.updateIf(State.IsAuthenticated, func(st *State) {
		st.Profile = &p
		if p.AdminID != "" {
			st.AdminID = p.AdminID
		}
	})
	return ok
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn for state changes and returns a function that
// removes it
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// update applies fn under the lock and notifies listeners with the result
func (s *Store) update(fn func(*State)) State {
	next, _ := s.updateIf(nil, fn)
	return next
}

// updateIf is update guarded by cond, which is evaluated under the same lock
// as fn. Nothing changes and nobody is notified when cond reports false.
func (s *Store) updateIf(cond func(State) bool, fn func(*State)) (State, bool) {
	s.mu.Lock()
	if cond != nil && !cond(s.state) {
		cur := s.state.clone()
		s.mu.Unlock()
		return cur, false
	}
	fn(&s.state)
	next := s.state.clone()
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]func(State), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next.clone())
	}
	return next, true
}

func (s State) clone() State {
	if s.Profile != nil {
		p := *s.Profile
		s.Profile = &p
	}
	return s
}
