package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercisePersister runs the common Save/Load/Clear contract
func exercisePersister(t *testing.T, p Persister) {
	t.Helper()
	ctx := context.Background()

	snap, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap, "nothing saved yet")

	require.NoError(t, p.Save(ctx, Snapshot{Token: "tok-1"}))
	snap, err = p.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "tok-1", snap.Token)

	require.NoError(t, p.Save(ctx, Snapshot{Token: "tok-2"}))
	snap, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", snap.Token)

	require.NoError(t, p.Clear(ctx))
	require.NoError(t, p.Clear(ctx), "clearing twice is fine")
	snap, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, p.Close())
}

func TestMemoryPersister(t *testing.T) {
	p, err := NewMemoryPersister(DefaultNamespace)
	require.NoError(t, err)
	exercisePersister(t, p)

	_, err = NewMemoryPersister("")
	assert.Error(t, err)
}

func TestFilePersister(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilePersister(filepath.Join(dir, "state"), DefaultNamespace)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "state", "persist_auth.json"), p.Path())
	exercisePersister(t, p)
}

func TestFilePersisterWritesOnlyTheToken(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilePersister(dir, DefaultNamespace)
	require.NoError(t, err)
	require.NoError(t, p.Save(context.Background(), Snapshot{Token: "abc"}))

	raw, err := os.ReadFile(p.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"abc"}`, string(raw))
}

func TestFilePersisterCorruptFile(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilePersister(dir, "ns")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p.Path(), []byte("{not json"), 0o600))

	_, err = p.Load(context.Background())
	assert.Error(t, err)
}

func TestRedisPersister(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	p, err := NewRedisPersister(ctx, "redis://"+mr.Addr(), DefaultNamespace, 0)
	require.NoError(t, err)
	exercisePersister(t, p)
}

func TestRedisPersisterTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	p, err := NewRedisPersister(ctx, "redis://"+mr.Addr(), "ns", time.Hour)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Save(ctx, Snapshot{Token: "tok"}))
	raw, err := mr.Get("ns")
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"tok"}`, raw)

	ttl, err := p.TTL(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)

	mr.FastForward(2 * time.Hour)
	snap, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRedisPersisterConnectFailure(t *testing.T) {
	_, err := NewRedisPersister(context.Background(), "", "ns", 0)
	assert.Error(t, err)

	_, err = NewRedisPersister(context.Background(), "not a url", "ns", 0)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisPersister(context.Background(), "redis://"+addr, "ns", 0)
	assert.Error(t, err)
}

func TestSQLitePersister(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventdash.db")
	p, err := NewSQLitePersister(context.Background(), path, DefaultNamespace)
	require.NoError(t, err)
	exercisePersister(t, p)
}

func TestSQLitePersisterSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "eventdash.db")

	p, err := NewSQLitePersister(ctx, path, DefaultNamespace)
	require.NoError(t, err)
	require.NoError(t, p.Save(ctx, Snapshot{Token: "kept"}))
	require.NoError(t, p.Close())

	p, err = NewSQLitePersister(ctx, path, DefaultNamespace)
	require.NoError(t, err)
	defer p.Close()
	snap, err := p.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "kept", snap.Token)

	other, err := NewSQLitePersister(ctx, path, "other")
	require.NoError(t, err)
	defer other.Close()
	snap, err = other.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap, "namespaces are isolated")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	p, err := Open(ctx, Options{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryPersister{}, p)

	p, err = Open(ctx, Options{Dir: t.TempDir()})
	require.NoError(t, err)
	fp, ok := p.(*FilePersister)
	require.True(t, ok)
	assert.Equal(t, "persist_auth.json", filepath.Base(fp.Path()))

	p, err = Open(ctx, Options{Backend: "SQLite", SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLitePersister{}, p)
	require.NoError(t, p.Close())

	mr := miniredis.RunT(t)
	p, err = Open(ctx, Options{Backend: "redis", RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisPersister{}, p)
	require.NoError(t, p.Close())

	_, err = Open(ctx, Options{Backend: "etcd"})
	assert.Error(t, err)
}

type failingPersister struct{}

var errBackend = errors.New("backend unavailable")

func (failingPersister) Save(context.Context, Snapshot) error { return errBackend }
func (failingPersister) Clear(context.Context) error { return errBackend }
func (failingPersister) Load(context.Context) (*Snapshot, error) { return nil, errBackend }
func (failingPersister) Close() error { return nil }

func TestAdapterIsBestEffort(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(failingPersister{}, zerolog.Nop())

	assert.NotPanics(t, func() {
		a.Save(ctx, Snapshot{Token: "x"})
		a.Clear(ctx)
	})
	_, err := a.Load(ctx)
	assert.ErrorIs(t, err, errBackend)
}

func TestAdapterRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := NewMemoryPersister(DefaultNamespace)
	require.NoError(t, err)
	a := NewAdapter(p, zerolog.Nop())

	a.Save(ctx, Snapshot{Token: "t"})
	snap, err := a.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Snapshot{Token: "t"}, snap)

	a.Clear(ctx)
	snap, err = a.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
	require.NoError(t, a.Close())
}
