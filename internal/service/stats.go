package service

import (
	"context"

	"github.com/drivecast/drivecast/internal/models"
	"github.com/drivecast/drivecast/internal/store"
)

// Stats is the read-only aggregate view over the media store. It keeps no
// state of its own; every snapshot is recomputed from the store at call time
// so displayed numbers cannot drift from stored rows.
type Stats struct {
	store store.Store
}

// NewStats creates a stats aggregator.
func NewStats(s store.Store) *Stats {
	return &Stats{store: s}
}

// Snapshot returns the dashboard aggregates as of this query.
func (s *Stats) Snapshot(ctx context.Context) (*models.Stats, error) {
	return s.store.GetStats(ctx)
}
