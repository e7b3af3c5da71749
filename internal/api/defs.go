// Package api declares the backend endpoints as typed query and mutation
// definitions and runs them through the gateway and the query cache.
package api

import (
	"time"

	"eventdash/internal/gateway"
	"eventdash/internal/querycache"
)

// Tag types known to the registry
const (
	TagAdmin    = "Admin"
	TagEvent    = "Event"
	TagPurchase = "Purchase"
)

// Kind separates reads from writes
type Kind string

const (
	KindQuery    Kind = "query"
	KindMutation Kind = "mutation"
)

// QueryDef describes a cached read. A is the argument type, R the decoded
// result.
type QueryDef[A, R any] struct {
	Name   string
	Method string
	Path   func(A) string
	Shape  gateway.Shape
	// TagTypes bounds what ProvidesTags may return
	TagTypes []string
	// ProvidesTags computes the entry's tags. It is also called on failure
	// with the zero result and the error.
	ProvidesTags func(arg A, result R, err error) []querycache.Tag
}

// MutationDef describes a write
type MutationDef[A, R any] struct {
	Name   string
	Method string
	Path   func(A) string
	Shape  gateway.Shape
	// Encode builds the request body. When nil the argument is sent as JSON.
	Encode          func(A) (body any, form *gateway.Form, err error)
	InvalidatesTags []querycache.Tag
}

// Definition is implemented by QueryDef and MutationDef
type Definition interface {
	Info() EndpointInfo
}

// EndpointInfo is the type-erased view of a definition kept by the Registry
type EndpointInfo struct {
	Name        string
	Kind        Kind
	Method      string
	HasPath     bool
	Shape       gateway.Shape
	TagTypes    []string
	Invalidates []querycache.Tag
}

func (q QueryDef[A, R]) Info() EndpointInfo {
	return EndpointInfo{
		Name:     q.Name,
		Kind:     KindQuery,
		Method:   q.Method,
		HasPath:  q.Path != nil,
		Shape:    q.Shape,
		TagTypes: q.TagTypes,
	}
}

func (m MutationDef[A, R]) Info() EndpointInfo {
	return EndpointInfo{
		Name:        m.Name,
		Kind:        KindMutation,
		Method:      m.Method,
		HasPath:     m.Path != nil,
		Shape:       m.Shape,
		Invalidates: m.InvalidatesTags,
	}
}

// MutationStatus is the lifecycle of one mutation call
type MutationStatus string

const (
	MutationPending MutationStatus = "pending"
	MutationSuccess MutationStatus = "success"
	MutationError   MutationStatus = "error"
)

// MutationEntry records one mutation call. It is handed to the observer and
// never cached.
type MutationEntry struct {
	Endpoint   string
	Args       any
	Status     MutationStatus
	Result     any
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	// Invalidated counts the cache entries turned stale by this call
	Invalidated int
}

// MutationObserver receives a MutationEntry when a call starts and again
// when it finishes
type MutationObserver func(MutationEntry)

// staticPath returns a Path function ignoring its argument
func staticPath[A any](path string) func(A) string {
	return func(A) string { return path }
}
