package storage

import (
	"context"

	"github.com/rs/zerolog"
)

// Adapter sits between the session store and a Persister. Writes are
// best-effort: a failing backend is logged and never surfaces to callers.
type Adapter struct {
	p      Persister
	logger zerolog.Logger
}

// NewAdapter wraps p
func NewAdapter(p Persister, logger zerolog.Logger) *Adapter {
	return &Adapter{p: p, logger: logger}
}

// Save persists snap, logging any failure
func (a *Adapter) Save(ctx context.Context, snap Snapshot) {
	if err := a.p.Save(ctx, snap); err != nil {
		a.logger.Warn().Err(err).Msg("failed to persist session snapshot")
		return
	}
	a.logger.Debug().Bool("has_token", snap.Token != "").Msg("session snapshot persisted")
}

// Load reads the persisted snapshot. Callers await it once at startup.
func (a *Adapter) Load(ctx context.Context) (*Snapshot, error) {
	snap, err := a.p.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Clear removes the persisted snapshot, logging any failure
func (a *Adapter) Clear(ctx context.Context) {
	if err := a.p.Clear(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("failed to clear session snapshot")
	}
}

// Close closes the underlying Persister
func (a *Adapter) Close() error {
	return a.p.Close()
}
