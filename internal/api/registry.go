package api

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnregistered is returned when a definition was never registered
	ErrUnregistered = errors.New("endpoint not registered")
	// ErrInvalidDefinition wraps every registration failure
	ErrInvalidDefinition = errors.New("invalid endpoint definition")
)

// Registry is the validated set of endpoint definitions. Tag types are fixed
// at construction so typos in tag declarations fail at startup.
type Registry struct {
	mu        sync.RWMutex
	tagTypes  map[string]struct{}
	endpoints map[string]EndpointInfo
}

// NewEmptyRegistry creates a registry accepting the given tag types and no
// endpoints
func NewEmptyRegistry(tagTypes ...string) (*Registry, error) {
	r := &Registry{
		tagTypes:  make(map[string]struct{}, len(tagTypes)),
		endpoints: make(map[string]EndpointInfo),
	}
	for _, t := range tagTypes {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: empty tag type", ErrInvalidDefinition)
		}
		r.tagTypes[t] = struct{}{}
	}
	return r, nil
}

// NewRegistry creates a registry holding every built-in endpoint
func NewRegistry() (*Registry, error) {
	r, err := NewEmptyRegistry(TagAdmin, TagEvent, TagPurchase)
	if err != nil {
		return nil, err
	}
	if err := r.Register(BuiltinDefinitions()...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register validates and adds defs. Nothing is added when any of them fails.
func (r *Registry) Register(defs ...Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make(map[string]EndpointInfo, len(defs))
	for _, d := range defs {
		info := d.Info()
		if err := r.validateLocked(info); err != nil {
			return err
		}
		if _, dup := pending[info.Name]; dup {
			return fmt.Errorf("%w: duplicate endpoint %q", ErrInvalidDefinition, info.Name)
		}
		pending[info.Name] = info
	}
	for name, info := range pending {
		r.endpoints[name] = info
	}
	return nil
}

func (r *Registry) validateLocked(info EndpointInfo) error {
	if strings.TrimSpace(info.Name) == "" {
		return fmt.Errorf("%w: empty endpoint name", ErrInvalidDefinition)
	}
	if _, dup := r.endpoints[info.Name]; dup {
		return fmt.Errorf("%w: duplicate endpoint %q", ErrInvalidDefinition, info.Name)
	}
	if !info.HasPath {
		return fmt.Errorf("%w: %s has no path", ErrInvalidDefinition, info.Name)
	}
	for _, t := range info.TagTypes {
		if _, ok := r.tagTypes[t]; !ok {
			return fmt.Errorf("%w: %s declares unknown tag type %q", ErrInvalidDefinition, info.Name, t)
		}
	}
	for _, tag := range info.Invalidates {
		if _, ok := r.tagTypes[tag.Type]; !ok {
			return fmt.Errorf("%w: %s invalidates unknown tag type %q", ErrInvalidDefinition, info.Name, tag.Type)
		}
	}
	return nil
}

// Lookup returns the registered info for name
func (r *Registry) Lookup(name string) (EndpointInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.endpoints[name]
	return info, ok
}

// expect returns the info for name if it is registered as kind
func (r *Registry) expect(name string, kind Kind) (EndpointInfo, error) {
	info, ok := r.Lookup(name)
	if !ok {
		return EndpointInfo{}, fmt.Errorf("%w: %q", ErrUnregistered, name)
	}
	if info.Kind != kind {
		return EndpointInfo{}, fmt.Errorf("%w: %q is a %s, not a %s", ErrUnregistered, name, info.Kind, kind)
	}
	return info, nil
}

// allowsTagType reports whether the query info may provide tags of typ
func (info EndpointInfo) allowsTagType(typ string) bool {
	return slices.Contains(info.TagTypes, typ)
}

// Endpoints lists the registered endpoints sorted by name
func (r *Registry) Endpoints() []EndpointInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EndpointInfo, 0, len(r.endpoints))
	for _, info := range r.endpoints {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
