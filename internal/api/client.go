package api

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"eventdash/internal/gateway"
	"eventdash/internal/querycache"
	"eventdash/pkg"
)

// Client runs registered definitions: queries through the cache, mutations
// straight to the gateway followed by tag invalidation
type Client struct {
	gw       *gateway.Client
	cache    *querycache.Cache
	registry *Registry
	logger   zerolog.Logger
	observer MutationObserver
	now      func() time.Time
}

// Option customizes a Client
type Option func(*Client)

// WithLogger sets the client logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMutationObserver installs a hook that sees every mutation call
func WithMutationObserver(o MutationObserver) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient wires a gateway, a cache and a registry together
func NewClient(gw *gateway.Client, cache *querycache.Cache, registry *Registry, opts ...Option) (*Client, error) {
	if gw == nil || cache == nil || registry == nil {
		return nil, fmt.Errorf("gateway, cache and registry are required")
	}
	c := &Client{
		gw:       gw,
		cache:    cache,
		registry: registry,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Cache returns the query cache behind the client
func (c *Client) Cache() *querycache.Cache { return c.cache }

// Registry returns the endpoint registry
func (c *Client) Registry() *Registry { return c.registry }

// ===== Queries =====

// QueryState is a typed view of a cache entry
type QueryState[R any] struct {
	querycache.Entry
	// Value is the last good result; the zero value when HasData is false
	Value R
}

func typedState[R any](e querycache.Entry) QueryState[R] {
	st := QueryState[R]{Entry: e}
	if v, ok := e.Data.(R); ok {
		st.Value = v
	}
	return st
}

// KeyFor returns the cache key used for def and arg
func KeyFor[A, R any](def QueryDef[A, R], arg A) (querycache.Key, error) {
	return querycache.NewKey(def.Name, arg)
}

// Subscribe registers interest in def(arg) and returns the current state.
// notify, which may be nil, sees every later settle or stale transition.
func Subscribe[A, R any](c *Client, def QueryDef[A, R], arg A, notify func(QueryState[R])) (QueryState[R], querycache.Unsubscribe, error) {
	key, fetch, err := prepareQuery(c, def, arg)
	if err != nil {
		return QueryState[R]{}, func() {}, err
	}
	var listener querycache.Listener
	if notify != nil {
		listener = func(e querycache.Entry) { notify(typedState[R](e)) }
	}
	snap, unsubscribe := c.cache.Subscribe(key, fetch, listener)
	return typedState[R](snap), unsubscribe, nil
}

// Query waits for def(arg) to settle and returns its value. A failed fetch
// returns the entry error along with the last good value.
func Query[A, R any](ctx context.Context, c *Client, def QueryDef[A, R], arg A) (QueryState[R], error) {
	key, fetch, err := prepareQuery(c, def, arg)
	if err != nil {
		return QueryState[R]{}, err
	}
	e, err := c.cache.Await(ctx, key, fetch)
	st := typedState[R](e)
	if err != nil {
		return st, err
	}
	if e.Status == querycache.StatusError {
		return st, e.Err
	}
	return st, nil
}

// Refetch forces a new fetch of def(arg)
func Refetch[A, R any](c *Client, def QueryDef[A, R], arg A) error {
	if _, err := c.registry.expect(def.Name, KindQuery); err != nil {
		return err
	}
	key, err := KeyFor(def, arg)
	if err != nil {
		return err
	}
	return c.cache.Refetch(key)
}

func prepareQuery[A, R any](c *Client, def QueryDef[A, R], arg A) (querycache.Key, querycache.Fetcher, error) {
	info, err := c.registry.expect(def.Name, KindQuery)
	if err != nil {
		return querycache.Key{}, nil, err
	}
	key, err := KeyFor(def, arg)
	if err != nil {
		return querycache.Key{}, nil, err
	}

	fetch := func(ctx context.Context) (querycache.Result, error) {
		var out R
		err := c.gw.Execute(ctx, gateway.Request{
			Endpoint: def.Name,
			Method:   def.Method,
			Path:     def.Path(arg),
			Shape:    def.Shape,
		}, &out)
		var tags []querycache.Tag
		if def.ProvidesTags != nil {
			if err != nil {
				var zero R
				tags = c.allowedTags(info, def.ProvidesTags(arg, zero, err))
			} else {
				tags = c.allowedTags(info, def.ProvidesTags(arg, out, nil))
			}
		}
		if err != nil {
			return querycache.Result{Tags: tags}, err
		}
		return querycache.Result{Data: out, Tags: tags}, nil
	}
	return key, fetch, nil
}

// allowedTags drops tags whose type the query did not declare
func (c *Client) allowedTags(info EndpointInfo, tags []querycache.Tag) []querycache.Tag {
	out := tags[:0:0]
	for _, t := range tags {
		if !info.allowsTagType(t.Type) {
			c.logger.Warn().Str("endpoint", info.Name).Str("tag", t.String()).Msg("dropping undeclared tag")
			continue
		}
		out = append(out, t)
	}
	return out
}

// ===== Mutations =====

// Mutate performs def(arg). Invalidation runs only once the success response
// is fully decoded; a failed call leaves the cache untouched.
func Mutate[A, R any](ctx context.Context, c *Client, def MutationDef[A, R], arg A) (R, error) {
	return MutateThen(ctx, c, def, arg, nil)
}

// MutateThen is Mutate with apply run on the decoded result before any tag is
// invalidated, so refetches it triggers already see what apply changed. An
// error from apply fails the mutation and skips invalidation.
func MutateThen[A, R any](ctx context.Context, c *Client, def MutationDef[A, R], arg A, apply func(R) error) (R, error) {
	var out R
	if _, err := c.registry.expect(def.Name, KindMutation); err != nil {
		return out, err
	}

	rec := MutationEntry{
		Endpoint:  def.Name,
		Args:      arg,
		Status:    MutationPending,
		StartedAt: c.now(),
	}
	c.observe(rec)

	req := gateway.Request{
		Endpoint: def.Name,
		Method:   def.Method,
		Path:     def.Path(arg),
		Shape:    def.Shape,
	}
	var err error
	if def.Encode != nil {
		req.Body, req.Form, err = def.Encode(arg)
	} else {
		req.Body = arg
	}
	if err == nil {
		err = c.gw.Execute(ctx, req, &out)
	}
	if err == nil && apply != nil {
		err = apply(out)
	}

	rec.FinishedAt = c.now()
	if err != nil {
		rec.Status = MutationError
		rec.Err = err
		c.observe(rec)
		c.logger.Debug().Err(err).Str("endpoint", def.Name).Msg("mutation failed")
		return out, err
	}

	rec.Status = MutationSuccess
	rec.Result = out
	rec.Invalidated = c.cache.Invalidate(def.InvalidatesTags...)
	c.observe(rec)
	c.logger.Debug().
		Str("endpoint", def.Name).
		Int("invalidated", rec.Invalidated).
		Msg("mutation succeeded")
	return out, nil
}

func (c *Client) observe(rec MutationEntry) {
	if c.observer != nil {
		c.observer(rec)
	}
}

// ===== Typed helpers =====

// Login calls loginAdmin and returns the auth payload. adopt, when set, sees
// the payload before the admin tag is invalidated. It satisfies
// session.Authenticator together with Register.
func (c *Client) Login(ctx context.Context, creds pkg.LoginRequest, adopt func(*pkg.AuthData) error) (*pkg.AuthData, error) {
	resp, err := MutateThen(ctx, c, LoginAdmin, creds, adoptAuth(adopt))
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Register calls registerAdmin and returns the auth payload, which may be nil
// when the backend does not sign the new admin in
func (c *Client) Register(ctx context.Context, req pkg.RegisterRequest, adopt func(*pkg.AuthData) error) (*pkg.AuthData, error) {
	resp, err := MutateThen(ctx, c, RegisterAdmin, req, adoptAuth(adopt))
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func adoptAuth(adopt func(*pkg.AuthData) error) func(pkg.AuthResponse) error {
	if adopt == nil {
		return nil
	}
	return func(resp pkg.AuthResponse) error { return adopt(resp.Data) }
}

// AdminProfile reads the profile of adminID through the cache
func (c *Client) AdminProfile(ctx context.Context, adminID string) (*pkg.Admin, error) {
	st, err := Query(ctx, c, GetAdminProfile, adminID)
	if err != nil {
		return nil, err
	}
	return st.Value.Data, nil
}

// AllEvents reads every event of the host through the cache
func (c *Client) AllEvents(ctx context.Context) ([]pkg.Event, error) {
	st, err := Query(ctx, c, GetAllEvents, struct{}{})
	return st.Value, err
}

// UpcomingEvents reads upcoming events through the cache
func (c *Client) UpcomingEvents(ctx context.Context) ([]pkg.Event, error) {
	st, err := Query(ctx, c, GetUpcomingEvents, struct{}{})
	return st.Value, err
}

// RecentPurchases reads the latest purchases of eventID through the cache
func (c *Client) RecentPurchases(ctx context.Context, eventID string) ([]pkg.Purchase, error) {
	st, err := Query(ctx, c, GetRecentPurchases, eventID)
	return st.Value, err
}

// MakeLive publishes event eventID
func (c *Client) MakeLive(ctx context.Context, eventID int64) (pkg.StatusResponse, error) {
	return Mutate(ctx, c, MakeEventLive, pkg.MakeLiveRequest{EventID: eventID})
}

// CreateEvent submits a new event
func (c *Client) CreateEvent(ctx context.Context, form pkg.EventTicketForm) (pkg.StatusResponse, error) {
	return Mutate(ctx, c, CreateEvent, form)
}

// UpdateEvent replaces event id with form
func (c *Client) UpdateEvent(ctx context.Context, id string, form pkg.EventTicketForm) (pkg.StatusResponse, error) {
	return Mutate(ctx, c, UpdateEvent, pkg.UpdateEventInput{ID: id, Form: form})
}
