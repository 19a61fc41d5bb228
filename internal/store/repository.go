package store

import (
	"context"
	"time"

	"github.com/snekkenull/AISight-sub001/internal/domain/model"
)

// VesselRepository provides access to vessel identity records.
type VesselRepository interface {
	// Upsert merges the partial record into the stored row. Non-nil
	// fields overwrite; nil fields never erase existing data. Returns
	// the stored row after the merge.
	Upsert(ctx context.Context, v *model.Vessel) (*model.Vessel, error)

	// EnsureExists inserts a placeholder row containing only the MMSI
	// if no row exists yet. No-op when the vessel is already known.
	EnsureExists(ctx context.Context, mmsi string) error

	// ExistingMMSIs reports which of the given identifiers have a
	// vessel row, as a set.
	ExistingMMSIs(ctx context.Context, mmsis []string) (map[string]struct{}, error)

	FindByMMSI(ctx context.Context, mmsi string) (*model.Vessel, error)
}

// PositionRepository provides access to the position history table.
type PositionRepository interface {
	// BulkInsert writes rows with conflict-ignore semantics on the
	// (mmsi, ts) natural key and returns the number of rows actually
	// inserted. Callers may pass more rows than a single statement
	// can carry; the implementation splits as needed.
	BulkInsert(ctx context.Context, rows []model.Position) (int, error)

	// History returns positions for one vessel within [from, to],
	// newest first, capped at limit.
	History(ctx context.Context, mmsi string, from, to time.Time, limit int) ([]model.Position, error)
}

// LatestPositionRepository maintains the derived latest-position view.
type LatestPositionRepository interface {
	// UpsertLatest applies each row only when its timestamp is
	// strictly newer than the stored one for that vessel.
	UpsertLatest(ctx context.Context, rows []model.LatestPosition) error

	Get(ctx context.Context, mmsi string) (*model.LatestPosition, error)
	All(ctx context.Context) ([]model.LatestPosition, error)
}
