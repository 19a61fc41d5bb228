package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/snekkenull/AISight-sub001/internal/domain/model"
)

type VesselRepo struct {
	db *DB
}

func NewVesselRepo(db *DB) *VesselRepo {
	return &VesselRepo{db: db}
}

// Upsert merges the given partial record into the stored vessel row.
// COALESCE(EXCLUDED.col, vessels.col) keeps whatever the new report
// omits, so sparse static data accumulates across messages instead of
// erasing earlier fields.
func (r *VesselRepo) Upsert(ctx context.Context, v *model.Vessel) (*model.Vessel, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO vessels (
			mmsi, imo, name, call_sign, ship_type,
			dim_to_bow, dim_to_stern, dim_to_port, dim_to_starboard,
			draught, destination, eta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (mmsi) DO UPDATE SET
			imo = COALESCE(EXCLUDED.imo, vessels.imo),
			name = COALESCE(EXCLUDED.name, vessels.name),
			call_sign = COALESCE(EXCLUDED.call_sign, vessels.call_sign),
			ship_type = COALESCE(EXCLUDED.ship_type, vessels.ship_type),
			dim_to_bow = COALESCE(EXCLUDED.dim_to_bow, vessels.dim_to_bow),
			dim_to_stern = COALESCE(EXCLUDED.dim_to_stern, vessels.dim_to_stern),
			dim_to_port = COALESCE(EXCLUDED.dim_to_port, vessels.dim_to_port),
			dim_to_starboard = COALESCE(EXCLUDED.dim_to_starboard, vessels.dim_to_starboard),
			draught = COALESCE(EXCLUDED.draught, vessels.draught),
			destination = COALESCE(EXCLUDED.destination, vessels.destination),
			eta = COALESCE(EXCLUDED.eta, vessels.eta),
			updated_at = now()
		RETURNING mmsi, imo, name, call_sign, ship_type,
			dim_to_bow, dim_to_stern, dim_to_port, dim_to_starboard,
			draught, destination, eta, created_at, updated_at
	`, v.MMSI, v.IMO, v.Name, v.CallSign, v.ShipType,
		v.DimToBow, v.DimToStern, v.DimToPort, v.DimToStarboard,
		v.Draught, v.Destination, v.ETA)

	var stored model.Vessel
	if err := row.Scan(
		&stored.MMSI, &stored.IMO, &stored.Name, &stored.CallSign, &stored.ShipType,
		&stored.DimToBow, &stored.DimToStern, &stored.DimToPort, &stored.DimToStarboard,
		&stored.Draught, &stored.Destination, &stored.ETA,
		&stored.CreatedAt, &stored.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("upsert vessel %s: %w", v.MMSI, err)
	}
	return &stored, nil
}

// EnsureExists inserts a placeholder row with only the MMSI so that
// position rows never dangle without a parent vessel.
func (r *VesselRepo) EnsureExists(ctx context.Context, mmsi string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO vessels (mmsi) VALUES ($1)
		ON CONFLICT (mmsi) DO NOTHING
	`, mmsi); err != nil {
		return fmt.Errorf("ensure vessel %s: %w", mmsi, err)
	}
	return nil
}

// ExistingMMSIs reports which of the given identifiers already have a
// vessel row, in a single query.
func (r *VesselRepo) ExistingMMSIs(ctx context.Context, mmsis []string) (map[string]struct{}, error) {
	if len(mmsis) == 0 {
		return make(map[string]struct{}), nil
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT mmsi FROM vessels WHERE mmsi = ANY($1)
	`, pq.Array(mmsis))
	if err != nil {
		return nil, fmt.Errorf("query existing vessels: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]struct{}, len(mmsis))
	for rows.Next() {
		var mmsi string
		if err := rows.Scan(&mmsi); err != nil {
			return nil, fmt.Errorf("scan vessel mmsi: %w", err)
		}
		existing[mmsi] = struct{}{}
	}
	return existing, rows.Err()
}

func (r *VesselRepo) FindByMMSI(ctx context.Context, mmsi string) (*model.Vessel, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var v model.Vessel
	err := r.db.QueryRowContext(ctx, `
		SELECT mmsi, imo, name, call_sign, ship_type,
			   dim_to_bow, dim_to_stern, dim_to_port, dim_to_starboard,
			   draught, destination, eta, created_at, updated_at
		FROM vessels
		WHERE mmsi = $1
	`, mmsi).Scan(
		&v.MMSI, &v.IMO, &v.Name, &v.CallSign, &v.ShipType,
		&v.DimToBow, &v.DimToStern, &v.DimToPort, &v.DimToStarboard,
		&v.Draught, &v.Destination, &v.ETA, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find vessel %s: %w", mmsi, err)
	}
	return &v, nil
}
