package querycache

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a cache entry
type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusSuccess
	StatusError
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Entry is a point-in-time snapshot of a cached query
type Entry struct {
	Key    Key
	Status Status
	// Data is the last good result. It survives failed refetches.
	Data          any
	Err           error
	Tags          []Tag
	Subscribers   int
	LastFetchedAt time.Time
	// Fetching is true while a request for this key is in flight
	Fetching bool
}

// Settled reports whether the entry has something to show: data, stale data
// or an error.
func (e Entry) Settled() bool {
	return e.Status == StatusSuccess || e.Status == StatusStale || e.Status == StatusError
}

// HasData reports whether a successful result was ever stored
func (e Entry) HasData() bool {
	return !e.LastFetchedAt.IsZero()
}

// entry is the mutable record behind an Entry; guarded by Cache.mu
type entry struct {
	key           Key
	status        Status
	data          any
	err           error
	tags          []Tag
	fetcher       Fetcher
	listeners     map[uint64]Listener
	subscribers   int
	lastFetchedAt time.Time
	idleSince     time.Time
	fetching      bool
	// outdated marks an in-flight fetch that started before an invalidation
	outdated bool
	// refetched is set once the background refetch for the current stale
	// transition has been started
	refetched bool
}

func (e *entry) snapshot() Entry {
	return Entry{
		Key:           e.key,
		Status:        e.status,
		Data:          e.data,
		Err:           e.err,
		Tags:          slices.Clone(e.tags),
		Subscribers:   e.subscribers,
		LastFetchedAt: e.lastFetchedAt,
		Fetching:      e.fetching,
	}
}

func (e *entry) provides(tags []Tag) bool {
	for _, inv := range tags {
		for _, p := range e.tags {
			if inv.Covers(p) {
				return true
			}
		}
	}
	return false
}

// listenersInOrder returns listeners in subscription order
func (e *entry) listenersInOrder() []Listener {
	if len(e.listeners) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.listeners[id])
	}
	return out
}
