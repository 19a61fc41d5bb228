package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/snekkenull/AISight-sub001/internal/domain/model"
)

type LatestPositionRepo struct {
	db *DB
}

func NewLatestPositionRepo(db *DB) *LatestPositionRepo {
	return &LatestPositionRepo{db: db}
}

// UpsertLatest applies each row only when its timestamp is strictly
// newer than the stored one. Flushes completing out of order therefore
// never move a vessel's latest position backwards.
func (r *LatestPositionRepo) UpsertLatest(ctx context.Context, rows []model.LatestPosition) error {
	if len(rows) == 0 {
		return nil
	}

	for start := 0; start < len(rows); start += maxInsertRows {
		end := start + maxInsertRows
		if end > len(rows) {
			end = len(rows)
		}
		if err := r.upsertChunk(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *LatestPositionRepo) upsertChunk(ctx context.Context, rows []model.LatestPosition) error {
	const cols = 9 // number of columns per row
	args := make([]interface{}, 0, len(rows)*cols)
	valuesClauses := make([]string, 0, len(rows))

	for i, p := range rows {
		base := i * cols
		valuesClauses = append(valuesClauses, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
			base+6, base+7, base+8, base+9,
		))
		args = append(args,
			p.MMSI, p.Timestamp, p.Lat, p.Lon,
			p.SOG, p.COG, p.Heading, p.NavStatus, p.RateOfTurn,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO latest_positions (mmsi, ts, lat, lon, sog, cog, heading, nav_status, rate_of_turn)
		VALUES %s
		ON CONFLICT (mmsi) DO UPDATE SET
			ts = EXCLUDED.ts,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			sog = EXCLUDED.sog,
			cog = EXCLUDED.cog,
			heading = EXCLUDED.heading,
			nav_status = EXCLUDED.nav_status,
			rate_of_turn = EXCLUDED.rate_of_turn,
			updated_at = now()
		WHERE EXCLUDED.ts > latest_positions.ts
	`, strings.Join(valuesClauses, ", "))

	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert latest positions: %w", err)
	}
	return nil
}

func (r *LatestPositionRepo) Get(ctx context.Context, mmsi string) (*model.LatestPosition, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var p model.LatestPosition
	err := r.db.QueryRowContext(ctx, `
		SELECT mmsi, ts, lat, lon, sog, cog, heading, nav_status, rate_of_turn, updated_at
		FROM latest_positions
		WHERE mmsi = $1
	`, mmsi).Scan(
		&p.MMSI, &p.Timestamp, &p.Lat, &p.Lon,
		&p.SOG, &p.COG, &p.Heading, &p.NavStatus, &p.RateOfTurn, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest position %s: %w", mmsi, err)
	}
	return &p, nil
}

func (r *LatestPositionRepo) All(ctx context.Context) ([]model.LatestPosition, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT mmsi, ts, lat, lon, sog, cog, heading, nav_status, rate_of_turn, updated_at
		FROM latest_positions
		ORDER BY ts DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query latest positions: %w", err)
	}
	defer rows.Close()

	var latest []model.LatestPosition
	for rows.Next() {
		var p model.LatestPosition
		if err := rows.Scan(
			&p.MMSI, &p.Timestamp, &p.Lat, &p.Lon,
			&p.SOG, &p.COG, &p.Heading, &p.NavStatus, &p.RateOfTurn, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan latest position: %w", err)
		}
		latest = append(latest, p)
	}
	return latest, rows.Err()
}
