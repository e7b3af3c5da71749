package querycache

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Key identifies one cached query result: the endpoint plus its serialized
// argument. Keys are comparable and immutable.
type Key struct {
	Endpoint string
	Arg      string
}

// NewKey builds a Key. String arguments are used verbatim; anything else is
// serialized as JSON with sorted map keys so equal arguments give equal keys.
func NewKey(endpoint string, arg any) (Key, error) {
	switch v := arg.(type) {
	case nil, struct{}:
		return Key{Endpoint: endpoint}, nil
	case string:
		return Key{Endpoint: endpoint, Arg: v}, nil
	}
	data, err := sonic.ConfigStd.Marshal(arg)
	if err != nil {
		return Key{}, fmt.Errorf("failed to serialize %s argument: %w", endpoint, err)
	}
	return Key{Endpoint: endpoint, Arg: string(data)}, nil
}

func (k Key) String() string {
	if k.Arg == "" {
		return k.Endpoint
	}
	return k.Endpoint + "(" + k.Arg + ")"
}

// Tag links reads to the writes that invalidate them. A Tag with an empty ID
// covers the whole type.
type Tag struct {
	Type string
	ID   string
}

// TypeTag returns a type-wide tag
func TypeTag(typ string) Tag { return Tag{Type: typ} }

// IDTag returns a tag scoped to one id
func IDTag(typ, id string) Tag { return Tag{Type: typ, ID: id} }

func (t Tag) String() string {
	if t.ID == "" {
		return t.Type
	}
	return t.Type + ":" + t.ID
}

// Covers reports whether invalidating t invalidates an entry providing p
func (t Tag) Covers(p Tag) bool {
	if t.Type != p.Type {
		return false
	}
	return t.ID == "" || t.ID == p.ID
}
