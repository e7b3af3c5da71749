// Package querycache is the process-wide store of query results. It keeps the
// last good data per Key, runs at most one fetch per Key, reference-counts
// subscribers and revalidates entries whose tags are invalidated.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultRetention is how long an entry without subscribers is kept
	DefaultRetention = 60 * time.Second
	// DefaultSweepInterval is how often the janitor looks for idle entries
	DefaultSweepInterval = 30 * time.Second
)

// ErrUnknownKey is returned by Refetch for a key that was never subscribed
var ErrUnknownKey = errors.New("querycache: unknown key")

// Result is what a Fetcher returns: the payload and the tags it provides.
// Data is ignored when the fetch fails; Tags are kept if non-nil.
type Result struct {
	Data any
	Tags []Tag
}

// Fetcher loads the data for one key
type Fetcher func(ctx context.Context) (Result, error)

// Listener receives an entry snapshot every time the entry settles or turns stale
type Listener func(Entry)

// Unsubscribe releases a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Options tune a Cache
type Options struct {
	// Retention is the grace period before an entry without subscribers is
	// evicted. Zero means DefaultRetention; negative evicts on the next sweep.
	Retention time.Duration
	// SweepInterval drives the janitor. Zero means DefaultSweepInterval;
	// negative disables the janitor (call Sweep yourself).
	SweepInterval time.Duration
	Logger        zerolog.Logger
	// Now is the clock; time.Now when nil
	Now func() time.Time
}

// Stats counts cache activity since creation
type Stats struct {
	Hits          uint64
	Misses        uint64
	Fetches       uint64
	Invalidations uint64
	Evictions     uint64
	Entries       int
}

// Cache holds QueryEntries keyed by Key
type Cache struct {
	mu        sync.Mutex
	entries   map[Key]*entry
	nextSubID uint64
	stats     Stats

	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	// fetches run on ctx so unsubscribing never cancels them; Close does
	ctx         context.Context
	cancel      context.CancelFunc
	inflight    sync.WaitGroup
	janitorDone chan struct{}
	closeOnce   sync.Once
}

// New creates a Cache and starts its janitor
func New(opts Options) *Cache {
	retention := opts.Retention
	if retention == 0 {
		retention = DefaultRetention
	}
	if retention < 0 {
		retention = 0
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries:     make(map[Key]*entry),
		retention:   retention,
		logger:      opts.Logger,
		now:         now,
		ctx:         ctx,
		cancel:      cancel,
		janitorDone: make(chan struct{}),
	}

	interval := opts.SweepInterval
	if interval == 0 {
		interval = DefaultSweepInterval
	}
	if interval > 0 {
		go c.janitor(interval)
	} else {
		close(c.janitorDone)
	}
	return c
}

// Subscribe registers interest in key and returns the current snapshot.
//
// A new key starts in StatusLoading and fetch is called once; subscribers
// arriving while it runs join that fetch. A stale entry is returned as-is
// and revalidated in the background. notify may be nil.
func (c *Cache) Subscribe(key Key, fetch Fetcher, notify Listener) (Entry, Unsubscribe) {
	c.mu.Lock()
	e, ok := c.entries[key]
	start := false
	if !ok {
		e = &entry{
			key:       key,
			status:    StatusUninitialized,
			fetcher:   fetch,
			listeners: make(map[uint64]Listener),
		}
		c.entries[key] = e
		c.stats.Misses++
		start = true
	} else {
		if e.fetcher == nil {
			e.fetcher = fetch
		}
		switch e.status {
		case StatusSuccess, StatusStale:
			c.stats.Hits++
		}
		if e.status == StatusStale && !e.fetching && !e.refetched {
			e.refetched = true
			start = true
		}
	}

	c.nextSubID++
	id := c.nextSubID
	if notify != nil {
		e.listeners[id] = notify
	}
	e.subscribers++
	if start {
		c.beginFetchLocked(e)
	}
	snap := e.snapshot()
	c.mu.Unlock()

	if start {
		go c.runFetch(e)
	}

	var once sync.Once
	return snap, func() {
		once.Do(func() { c.release(e, id) })
	}
}

func (c *Cache) release(e *entry, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(e.listeners, id)
	e.subscribers--
	if e.subscribers <= 0 {
		e.subscribers = 0
		e.idleSince = c.now()
	}
}

// Await subscribes to key, waits until the entry has settled, and
// unsubscribes. Stale data counts as settled.
func (c *Cache) Await(ctx context.Context, key Key, fetch Fetcher) (Entry, error) {
	settled := make(chan Entry, 1)
	snap, unsubscribe := c.Subscribe(key, fetch, func(e Entry) {
		if !e.Settled() {
			return
		}
		select {
		case settled <- e:
		default:
		}
	})
	defer unsubscribe()

	if snap.Settled() {
		return snap, nil
	}
	select {
	case e := <-settled:
		return e, nil
	case <-ctx.Done():
		return snap, ctx.Err()
	}
}

// Get returns the current snapshot for key without subscribing
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Invalidate marks every entry providing one of tags as stale and starts a
// background refetch for those with subscribers. Entries that are already
// stale are left alone. It returns the number of entries that turned stale.
func (c *Cache) Invalidate(tags ...Tag) int {
	if len(tags) == 0 {
		return 0
	}

	type notification struct {
		snap      Entry
		listeners []Listener
	}

	c.mu.Lock()
	var (
		starts  []*entry
		notices []notification
	)
	for _, e := range c.entries {
		if e.status == StatusStale || !e.provides(tags) {
			continue
		}
		e.status = StatusStale
		c.stats.Invalidations++
		switch {
		case e.fetching:
			// the running fetch may predate the write; it must not clear staleness
			e.outdated = true
			e.refetched = true
		case e.subscribers > 0:
			e.refetched = true
			c.beginFetchLocked(e)
			starts = append(starts, e)
		default:
			e.refetched = false
		}
		notices = append(notices, notification{snap: e.snapshot(), listeners: e.listenersInOrder()})
	}
	c.mu.Unlock()

	c.logger.Debug().Int("entries", len(notices)).Interface("tags", tags).Msg("invalidated")

	for _, n := range notices {
		for _, l := range n.listeners {
			l(n.snap)
		}
	}
	for _, e := range starts {
		go c.runFetch(e)
	}
	return len(notices)
}

// Refetch forces a fetch of key whatever its status. If a fetch is already
// in flight the call joins it.
func (c *Cache) Refetch(key Key) error {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if e.fetching {
		c.mu.Unlock()
		return nil
	}
	if e.status == StatusStale {
		e.refetched = true
	}
	c.beginFetchLocked(e)
	c.mu.Unlock()

	go c.runFetch(e)
	return nil
}

// RefetchFailed starts a fetch for every entry whose last fetch failed and
// that has no fetch in flight. It returns how many fetches it started.
func (c *Cache) RefetchFailed() int {
	c.mu.Lock()
	var starts []*entry
	for _, e := range c.entries {
		if e.status != StatusError || e.fetching || e.fetcher == nil {
			continue
		}
		c.beginFetchLocked(e)
		starts = append(starts, e)
	}
	c.mu.Unlock()

	for _, e := range starts {
		go c.runFetch(e)
	}
	return len(starts)
}

// Sweep evicts entries that have had no subscribers for longer than the
// retention window and no fetch in flight. It returns how many were evicted.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for k, e := range c.entries {
		if e.subscribers > 0 || e.fetching {
			continue
		}
		if now.Sub(e.idleSince) < c.retention {
			continue
		}
		delete(c.entries, k)
		evicted++
	}
	c.stats.Evictions += uint64(evicted)
	return evicted
}

// Stats returns a copy of the counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// Wait blocks until no fetch is in flight
func (c *Cache) Wait() {
	c.inflight.Wait()
}

// Close stops the janitor and cancels the context handed to fetchers
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.janitorDone
	})
}

// beginFetchLocked marks e as fetching; the caller starts runFetch after
// releasing the lock
func (c *Cache) beginFetchLocked(e *entry) {
	e.fetching = true
	e.outdated = false
	if e.status == StatusUninitialized {
		e.status = StatusLoading
	}
	c.stats.Fetches++
	c.inflight.Add(1)
}

func (c *Cache) runFetch(e *entry) {
	defer c.inflight.Done()

	c.logger.Debug().Str("key", e.key.String()).Msg("fetch started")
	res, err := c.callFetcher(e.fetcher)

	c.mu.Lock()
	e.fetching = false
	if err != nil {
		// keep the last good data for display; a failure may still declare
		// the tags it answers to
		e.err = err
		e.status = StatusError
		if res.Tags != nil {
			e.tags = res.Tags
		}
	} else {
		e.data = res.Data
		e.tags = res.Tags
		e.err = nil
		e.lastFetchedAt = c.now()
		e.status = StatusSuccess
	}

	again := false
	if e.outdated {
		e.outdated = false
		if err == nil {
			e.status = StatusStale
		}
		if e.subscribers > 0 {
			again = true
			c.beginFetchLocked(e)
		} else {
			e.refetched = false
		}
	} else {
		e.refetched = false
	}
	snap := e.snapshot()
	listeners := e.listenersInOrder()
	c.mu.Unlock()

	if err != nil {
		c.logger.Debug().Err(err).Str("key", e.key.String()).Msg("fetch failed")
	} else {
		c.logger.Debug().Str("key", e.key.String()).Int("tags", len(res.Tags)).Msg("fetch succeeded")
	}

	for _, l := range listeners {
		l(snap)
	}
	if again {
		c.runFetch(e)
	}
}

func (c *Cache) callFetcher(f Fetcher) (res Result, err error) {
	if f == nil {
		return Result{}, errors.New("querycache: no fetcher registered")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("querycache: fetcher panicked: %v", r)
		}
	}()
	return f(c.ctx)
}

func (c *Cache) janitor(interval time.Duration) {
	defer close(c.janitorDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(c.now()); n > 0 {
				c.logger.Debug().Int("evicted", n).Msg("swept idle entries")
			}
		case <-c.ctx.Done():
			return
		}
	}
}
