package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventdash/internal/gateway"
	"eventdash/internal/querycache"
	"eventdash/pkg"
)

// backend is a fake event host API counting calls per path
type backend struct {
	mu       sync.Mutex
	calls    map[string]int
	auth     map[string]string
	handlers map[string]http.HandlerFunc
}

func newBackend() *backend {
	return &backend{
		calls:    make(map[string]int),
		auth:     make(map[string]string),
		handlers: make(map[string]http.HandlerFunc),
	}
}

func (b *backend) handle(path string, h http.HandlerFunc) {
	b.handlers[path] = h
}

func (b *backend) respond(path, body string) {
	b.handle(path, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	})
}

func (b *backend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *backend) lastAuth(path string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auth[path]
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	b.auth[r.URL.Path] = r.Header.Get("Authorization")
	h, ok := b.handlers[r.URL.Path]
	b.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

type tokenHolder struct{ token atomic.Value }

func (h *tokenHolder) Token(context.Context) (string, error) {
	v, _ := h.token.Load().(string)
	return v, nil
}

func newTestClient(t *testing.T, b *backend, opts ...Option) (*Client, *tokenHolder) {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	tokens := &tokenHolder{}
	gw, err := gateway.NewClient(gateway.Config{BaseURL: srv.URL}, gateway.WithTokenSource(tokens))
	require.NoError(t, err)

	cache := querycache.New(querycache.Options{SweepInterval: -1})
	t.Cleanup(cache.Close)

	reg, err := NewRegistry()
	require.NoError(t, err)

	c, err := NewClient(gw, cache, reg, opts...)
	require.NoError(t, err)
	return c, tokens
}

const eventsBody = `{"data":[
	{"sn":"1","title":"Gala","status":"Active"},
	{"sn":"2","title":"Expo","status":"Inactive"}
]}`

func TestQueryDecodesAndProvidesTags(t *testing.T) {
	b := newBackend()
	b.respond("/host/allevents", eventsBody)
	c, _ := newTestClient(t, b)

	events, err := c.AllEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Gala", events[0].Title)

	key, err := KeyFor(GetAllEvents, struct{}{})
	require.NoError(t, err)
	e, ok := c.Cache().Get(key)
	require.True(t, ok)
	assert.ElementsMatch(t, []querycache.Tag{
		querycache.IDTag(TagEvent, EventListID),
		querycache.IDTag(TagEvent, "1"),
		querycache.IDTag(TagEvent, "2"),
	}, e.Tags)
}

func TestConcurrentQueriesShareOneRequest(t *testing.T) {
	b := newBackend()
	release := make(chan struct{})
	b.handle("/event/upcomingevent/", func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = io.WriteString(w, `[{"sn":"9","title":"Soon"}]`)
	})
	c, _ := newTestClient(t, b)

	var wg sync.WaitGroup
	results := make([][]pkg.Event, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev, err := c.UpcomingEvents(context.Background())
			assert.NoError(t, err)
			results[i] = ev
		}(i)
	}
	// both callers must be subscribed before the response is released
	require.Eventually(t, func() bool {
		key, _ := KeyFor(GetUpcomingEvents, struct{}{})
		e, ok := c.Cache().Get(key)
		return ok && e.Subscribers == 2
	}, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, b.count("/event/upcomingevent/"))
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, "Soon", results[0][0].Title)
}

func TestMutationInvalidatesSubscribedQueries(t *testing.T) {
	b := newBackend()
	b.respond("/host/allevents", eventsBody)
	b.respond("/host/event/recentpurchases/1", `[{"id":"p1","amount":"200"}]`)
	b.respond("/event/makelive", `{"error":false,"message":"Event is live"}`)
	c, _ := newTestClient(t, b)
	ctx := context.Background()

	var mu sync.Mutex
	var statuses []querycache.Status
	st, unsubscribe, err := Subscribe(c, GetAllEvents, struct{}{}, func(s QueryState[[]pkg.Event]) {
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsubscribe()
	assert.Equal(t, querycache.StatusLoading, st.Status)

	_, err = c.RecentPurchases(ctx, "1")
	require.NoError(t, err)
	c.Cache().Wait()

	resp, err := c.MakeLive(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Event is live", resp.Message)
	c.Cache().Wait()

	assert.Equal(t, 2, b.count("/host/allevents"), "subscribed event list refetched once")
	assert.Equal(t, 1, b.count("/host/event/recentpurchases/1"), "purchases do not provide Event tags")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []querycache.Status{querycache.StatusSuccess, querycache.StatusStale, querycache.StatusSuccess}, statuses)
}

func TestFailedMutationDoesNotInvalidate(t *testing.T) {
	b := newBackend()
	b.respond("/host/allevents", eventsBody)
	b.respond("/event/makelive", `{"error":true,"message":"Event has no tickets"}`)
	c, _ := newTestClient(t, b)
	ctx := context.Background()

	_, unsubscribe, err := Subscribe(c, GetAllEvents, struct{}{}, nil)
	require.NoError(t, err)
	defer unsubscribe()
	c.Cache().Wait()

	_, err = c.MakeLive(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrRejected)
	assert.Contains(t, err.Error(), "Event has no tickets")
	c.Cache().Wait()

	assert.Equal(t, 1, b.count("/host/allevents"))
	key, _ := KeyFor(GetAllEvents, struct{}{})
	e, _ := c.Cache().Get(key)
	assert.Equal(t, querycache.StatusSuccess, e.Status)
}

func TestLoginThenProfileStaysFresh(t *testing.T) {
	b := newBackend()
	b.respond("/admin/login", `{"success":true,"message":"ok","data":{"token":"tok-abc","admin":{"adminid":"7","email":"a@b.com"}}}`)
	b.respond("/admin/profile/7", `{"success":true,"message":"ok","data":{"adminid":"7","firstname":"Ada","email":"a@b.com"}}`)
	b.respond("/event/makelive", `{"error":false,"message":"live"}`)
	c, tokens := newTestClient(t, b)
	ctx := context.Background()

	data, err := c.Login(ctx, pkg.LoginRequest{Email: "a@b.com", Password: "x"}, nil)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "tok-abc", data.Token)
	tokens.token.Store(data.Token)

	_, unsubscribe, err := Subscribe(c, GetAdminProfile, "7", nil)
	require.NoError(t, err)
	defer unsubscribe()
	c.Cache().Wait()

	profile, err := c.AdminProfile(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.Firstname)
	assert.Equal(t, "Bearer tok-abc", b.lastAuth("/admin/profile/7"))

	_, err = c.MakeLive(ctx, 3)
	require.NoError(t, err)
	c.Cache().Wait()

	key, _ := KeyFor(GetAdminProfile, "7")
	e, _ := c.Cache().Get(key)
	assert.Equal(t, querycache.StatusSuccess, e.Status)
	assert.Equal(t, 1, b.count("/admin/profile/7"))
}

func TestLoginAdoptsTokenBeforeInvalidating(t *testing.T) {
	b := newBackend()
	b.respond("/admin/login", `{"success":true,"message":"ok","data":{"token":"tok-new","admin":{"adminid":"7"}}}`)
	b.respond("/admin/profile/7", `{"success":true,"message":"ok","data":{"adminid":"7","firstname":"Ada"}}`)
	c, tokens := newTestClient(t, b)
	tokens.token.Store("tok-old")

	_, unsubscribe, err := Subscribe(c, GetAdminProfile, "7", nil)
	require.NoError(t, err)
	defer unsubscribe()
	c.Cache().Wait()
	require.Equal(t, "Bearer tok-old", b.lastAuth("/admin/profile/7"))

	key, _ := KeyFor(GetAdminProfile, "7")
	var statusDuringAdopt querycache.Status
	_, err = c.Login(context.Background(), pkg.LoginRequest{Email: "a@b.com"}, func(data *pkg.AuthData) error {
		e, _ := c.Cache().Get(key)
		statusDuringAdopt = e.Status
		tokens.token.Store(data.Token)
		return nil
	})
	require.NoError(t, err)
	c.Cache().Wait()

	assert.Equal(t, querycache.StatusSuccess, statusDuringAdopt, "adopt runs before the admin tag is invalidated")
	assert.Equal(t, 2, b.count("/admin/profile/7"))
	assert.Equal(t, "Bearer tok-new", b.lastAuth("/admin/profile/7"))
}

func TestFailedAdoptSkipsInvalidation(t *testing.T) {
	b := newBackend()
	b.respond("/admin/login", `{"success":true,"message":"ok","data":{"admin":{"adminid":"7"}}}`)
	b.respond("/admin/profile/7", `{"success":true,"message":"ok","data":{"adminid":"7","firstname":"Ada"}}`)
	var records []MutationEntry
	c, _ := newTestClient(t, b, WithMutationObserver(func(e MutationEntry) { records = append(records, e) }))

	_, unsubscribe, err := Subscribe(c, GetAdminProfile, "7", nil)
	require.NoError(t, err)
	defer unsubscribe()
	c.Cache().Wait()

	refused := errors.New("no token")
	_, err = c.Login(context.Background(), pkg.LoginRequest{}, func(*pkg.AuthData) error { return refused })
	assert.ErrorIs(t, err, refused)
	c.Cache().Wait()

	key, _ := KeyFor(GetAdminProfile, "7")
	e, _ := c.Cache().Get(key)
	assert.Equal(t, querycache.StatusSuccess, e.Status)
	assert.Equal(t, 1, b.count("/admin/profile/7"))
	require.NotEmpty(t, records)
	assert.Equal(t, MutationError, records[len(records)-1].Status)
}

func TestFailedProfileStillAnswersToAdminTag(t *testing.T) {
	b := newBackend()
	var profileCalls atomic.Int32
	b.handle("/admin/profile/7", func(w http.ResponseWriter, r *http.Request) {
		if profileCalls.Add(1) == 1 {
			_, _ = io.WriteString(w, `{"success":false,"message":"Admin not found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"adminid":"7","firstname":"Ada"}}`)
	})
	b.respond("/admin/register", `{"success":true,"message":"registered","data":{"adminid":"7"}}`)
	c, _ := newTestClient(t, b)
	ctx := context.Background()

	st, unsubscribe, err := Subscribe(c, GetAdminProfile, "7", nil)
	require.NoError(t, err)
	defer unsubscribe()
	assert.Equal(t, querycache.StatusLoading, st.Status)
	c.Cache().Wait()

	key, _ := KeyFor(GetAdminProfile, "7")
	e, _ := c.Cache().Get(key)
	assert.Equal(t, querycache.StatusError, e.Status)
	assert.Equal(t, []querycache.Tag{querycache.TypeTag(TagAdmin)}, e.Tags)

	_, err = c.Register(ctx, pkg.RegisterRequest{Email: "a@b.com", Password: "pw"}, nil)
	require.NoError(t, err)
	c.Cache().Wait()

	e, _ = c.Cache().Get(key)
	assert.Equal(t, querycache.StatusSuccess, e.Status)
	assert.Equal(t, []querycache.Tag{querycache.IDTag(TagAdmin, "7")}, e.Tags)
	assert.Equal(t, int32(2), profileCalls.Load())
}

func TestQueryReturnsLastGoodValueOnError(t *testing.T) {
	b := newBackend()
	var calls atomic.Int32
	b.handle("/host/event/recentpurchases/5", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, `[{"id":"p1"}]`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"database unavailable"}`)
	})
	c, _ := newTestClient(t, b)
	ctx := context.Background()

	_, err := c.RecentPurchases(ctx, "5")
	require.NoError(t, err)

	require.NoError(t, Refetch(c, GetRecentPurchases, "5"))
	c.Cache().Wait()

	purchases, err := c.RecentPurchases(ctx, "5")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrHTTP)
	assert.Equal(t, 500, gateway.StatusCode(err))
	require.Len(t, purchases, 1)
	assert.Equal(t, "p1", purchases[0].ID)
}

func TestCreateAndUpdateEventSendMultipart(t *testing.T) {
	b := newBackend()
	var (
		gotMethod string
		gotTitle  string
		gotCat    string
		gotFiles  int
	)
	multipartHandler := func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotMethod = r.Method
		gotTitle = r.FormValue("eventTitle")
		gotCat = r.FormValue("ticketCategories[0][name]")
		gotFiles = len(r.MultipartForm.File["banner[]"])
		_, _ = io.WriteString(w, `{"error":false,"message":"saved","eventid":12}`)
	}
	b.handle("/host_create/eventticket", multipartHandler)
	b.handle("/update/eventticket/12", multipartHandler)
	c, _ := newTestClient(t, b)
	ctx := context.Background()

	form := validForm()
	resp, err := c.CreateEvent(ctx, form)
	require.NoError(t, err)
	assert.Equal(t, "saved", resp.Message)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Lagos Jazz Night", gotTitle)
	assert.Equal(t, "VIP", gotCat)
	assert.Equal(t, 1, gotFiles)

	_, err = c.UpdateEvent(ctx, "12", form)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
}

func TestInvalidFormIsNotSent(t *testing.T) {
	b := newBackend()
	b.respond("/host_create/eventticket", `{"error":false}`)
	var seen []MutationEntry
	c, _ := newTestClient(t, b, WithMutationObserver(func(m MutationEntry) { seen = append(seen, m) }))

	_, err := c.CreateEvent(context.Background(), pkg.EventTicketForm{EventTitle: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidForm)
	assert.Equal(t, 0, b.count("/host_create/eventticket"))

	require.Len(t, seen, 2)
	assert.Equal(t, MutationPending, seen[0].Status)
	assert.Equal(t, MutationError, seen[1].Status)
}

func TestMutationObserverSeesSuccess(t *testing.T) {
	b := newBackend()
	b.respond("/event/makelive", `{"error":false,"message":"ok"}`)
	var seen []MutationEntry
	c, _ := newTestClient(t, b, WithMutationObserver(func(m MutationEntry) { seen = append(seen, m) }))

	_, err := c.MakeLive(context.Background(), 4)
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "makeEventLive", seen[1].Endpoint)
	assert.Equal(t, MutationSuccess, seen[1].Status)
	assert.Equal(t, pkg.MakeLiveRequest{EventID: 4}, seen[1].Args)
	assert.False(t, seen[1].FinishedAt.Before(seen[1].StartedAt))
}

func TestUnregisteredDefinitionsAreRefused(t *testing.T) {
	b := newBackend()
	c, _ := newTestClient(t, b)

	rogue := QueryDef[string, pkg.Event]{
		Name: "getEvent",
		Path: func(id string) string { return "/event/" + id },
	}
	_, err := Query(context.Background(), c, rogue, "1")
	assert.ErrorIs(t, err, ErrUnregistered)

	asMutation := MutationDef[struct{}, pkg.StatusResponse]{Name: GetAllEvents.Name, Path: staticPath[struct{}]("/x")}
	_, err = Mutate(context.Background(), c, asMutation, struct{}{})
	assert.ErrorIs(t, err, ErrUnregistered)
}

func TestUndeclaredTagTypesAreDropped(t *testing.T) {
	b := newBackend()
	b.respond("/things", `[{"sn":"1"}]`)
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	gw, err := gateway.NewClient(gateway.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	cache := querycache.New(querycache.Options{SweepInterval: -1})
	t.Cleanup(cache.Close)
	reg, err := NewEmptyRegistry(TagEvent, TagPurchase)
	require.NoError(t, err)

	things := QueryDef[struct{}, []pkg.Event]{
		Name:     "getThings",
		Path:     staticPath[struct{}]("/things"),
		Shape:    gateway.ShapeList,
		TagTypes: []string{TagEvent},
		ProvidesTags: func(struct{}, []pkg.Event, error) []querycache.Tag {
			return []querycache.Tag{querycache.IDTag(TagEvent, "1"), querycache.IDTag(TagPurchase, "1")}
		},
	}
	require.NoError(t, reg.Register(things))
	c, err := NewClient(gw, cache, reg)
	require.NoError(t, err)

	st, err := Query(context.Background(), c, things, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, []querycache.Tag{querycache.IDTag(TagEvent, "1")}, st.Tags)
}
