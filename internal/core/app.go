// Package core assembles the gateway, query cache, session store and
// persistence into one App and owns the startup rehydration gate.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"eventdash/internal/api"
	"eventdash/internal/gateway"
	"eventdash/internal/querycache"
	"eventdash/internal/session"
	"eventdash/internal/storage"
	"eventdash/pkg"
)

// ErrNoAdminID is returned when the profile is requested without a known
// admin id
var ErrNoAdminID = errors.New("admin id unknown; pass it explicitly or log in again")

// App is the explicitly constructed context every entry point shares
type App struct {
	Gateway *gateway.Client
	Cache   *querycache.Cache
	API     *api.Client
	Session *session.Store

	persist *storage.Adapter
	logger  zerolog.Logger

	ready     chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

type appOptions struct {
	logger         zerolog.Logger
	persister      storage.Persister
	httpClient     *http.Client
	tracerProvider trace.TracerProvider
	observer       api.MutationObserver
	sessionOpts    []session.Option
}

// Option customizes NewApp
type Option func(*appOptions)

// WithLogger sets the root logger; components get children of it
func WithLogger(l zerolog.Logger) Option {
	return func(o *appOptions) { o.logger = l }
}

// WithPersister bypasses the configured persistence backend
func WithPersister(p storage.Persister) Option {
	return func(o *appOptions) { o.persister = p }
}

// WithHTTPClient replaces the gateway's http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(o *appOptions) { o.httpClient = hc }
}

// WithTracerProvider sets the provider used for gateway spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *appOptions) { o.tracerProvider = tp }
}

// WithMutationObserver forwards every mutation record to o
func WithMutationObserver(obs api.MutationObserver) Option {
	return func(o *appOptions) { o.observer = obs }
}

// WithSessionOptions passes options through to the session store
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *appOptions) { o.sessionOpts = append(o.sessionOpts, opts...) }
}

// NewApp builds every component from cfg. The session is empty until Start.
func NewApp(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	o := appOptions{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	persister := o.persister
	if persister == nil {
		p, err := storage.Open(ctx, storage.Options{
			Backend:    cfg.Persistence.Backend,
			Namespace:  cfg.Persistence.Namespace,
			Dir:        cfg.Persistence.Dir,
			RedisURL:   cfg.Persistence.RedisURL,
			RedisTTL:   cfg.Persistence.RedisTTL,
			SQLitePath: cfg.Persistence.SQLitePath,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open persistence: %w", err)
		}
		persister = p
	}
	adapter := storage.NewAdapter(persister, logger.With().Str("component", "storage").Logger())

	app := &App{
		persist: adapter,
		logger:  logger.With().Str("component", "core").Logger(),
		ready:   make(chan struct{}),
	}

	// the gateway reads the token through the app so the store can be built
	// after the api client it authenticates with
	gwOpts := []gateway.Option{
		gateway.WithLogger(logger.With().Str("component", "gateway").Logger()),
		gateway.WithTokenSource(gateway.TokenSourceFunc(func(ctx context.Context) (string, error) {
			return app.Session.Token(ctx)
		})),
	}
	if o.httpClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(o.httpClient))
	}
	if o.tracerProvider != nil {
		gwOpts = append(gwOpts, gateway.WithTracerProvider(o.tracerProvider))
	}
	gw, err := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
	}, gwOpts...)
	if err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	registry, err := api.NewRegistry()
	if err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("failed to build endpoint registry: %w", err)
	}

	cache := querycache.New(querycache.Options{
		Retention:     cfg.Cache.Retention,
		SweepInterval: cfg.Cache.SweepInterval,
		Logger:        logger.With().Str("component", "querycache").Logger(),
	})

	apiOpts := []api.Option{api.WithLogger(logger.With().Str("component", "api").Logger())}
	if o.observer != nil {
		apiOpts = append(apiOpts, api.WithMutationObserver(o.observer))
	}
	client, err := api.NewClient(gw, cache, registry, apiOpts...)
	if err != nil {
		cache.Close()
		_ = adapter.Close()
		return nil, err
	}

	sessOpts := append([]session.Option{
		session.WithLogger(logger.With().Str("component", "session").Logger()),
	}, o.sessionOpts...)

	app.Gateway = gw
	app.Cache = cache
	app.API = client
	app.Session = session.New(client, adapter, sessOpts...)
	return app, nil
}

// Start rehydrates the session from persistence and opens the Ready gate.
// A persistence failure is logged and the app starts unauthenticated.
// Only the first call does anything.
func (a *App) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		defer close(a.ready)
		snap, err := a.persist.Load(ctx)
		if err != nil {
			a.logger.Warn().Err(err).Msg("failed to load persisted session, starting logged out")
		}
		restored := a.Session.Restore(ctx, snap)
		a.logger.Debug().Bool("restored", restored).Msg("rehydration complete")
	})
}

// Ready is closed once Start has finished rehydrating
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// RequireAuth waits for rehydration and returns the session state, or
// session.ErrUnauthenticated when no token is held
func (a *App) RequireAuth(ctx context.Context) (session.State, error) {
	if err := a.waitReady(ctx); err != nil {
		return session.State{}, err
	}
	st := a.Session.Snapshot()
	if !st.IsAuthenticated() {
		return st, session.ErrUnauthenticated
	}
	return st, nil
}

// Login authenticates and persists the token
func (a *App) Login(ctx context.Context, creds pkg.LoginRequest) (session.State, error) {
	if err := a.waitReady(ctx); err != nil {
		return session.State{}, err
	}
	return a.Session.Login(ctx, creds)
}

// Register creates an admin account; a token in the answer signs the new
// admin in and is persisted like a login
func (a *App) Register(ctx context.Context, req pkg.RegisterRequest) (session.State, error) {
	if err := a.waitReady(ctx); err != nil {
		return session.State{}, err
	}
	return a.Session.Register(ctx, req)
}

// Logout clears the session and its persisted token
func (a *App) Logout(ctx context.Context) error {
	if err := a.waitReady(ctx); err != nil {
		return err
	}
	a.Session.Logout(ctx)
	return nil
}

// waitReady keeps a late restore from overwriting a login or logout
func (a *App) waitReady(ctx context.Context) error {
	select {
	case <-a.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Profile loads the admin profile for adminID, or for the logged in admin
// when adminID is empty, and stores it on the session
func (a *App) Profile(ctx context.Context, adminID string) (*pkg.Admin, error) {
	st, err := a.RequireAuth(ctx)
	if err != nil {
		return nil, err
	}
	own := adminID == "" || adminID == st.AdminID
	if adminID == "" {
		adminID = st.AdminID
	}
	if adminID == "" {
		return nil, ErrNoAdminID
	}
	profile, err := a.API.AdminProfile(ctx, adminID)
	if err != nil {
		return nil, err
	}
	// another admin's profile must not become the session identity
	if own {
		a.Session.SetProfile(profile)
	}
	return profile, nil
}

// Refetch retries every cached query whose last fetch failed and returns how
// many were restarted. Reads keep answering with the old error until the
// retry settles; Cache.Wait blocks until it has.
func (a *App) Refetch(ctx context.Context) (int, error) {
	if _, err := a.RequireAuth(ctx); err != nil {
		return 0, err
	}
	n := a.Cache.RefetchFailed()
	a.logger.Debug().Int("queries", n).Msg("refetching failed queries")
	return n, nil
}

// Close stops the cache janitor and closes the persistence backend
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.Cache.Close()
		err = a.persist.Close()
	})
	return err
}
