package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/snekkenull/AISight-sub001/internal/domain/model"
)

// maxInsertRows caps the rows per multi-VALUES statement so the
// placeholder count stays well below Postgres' 65535 argument limit.
const maxInsertRows = 1000

type PositionRepo struct {
	db *DB
}

func NewPositionRepo(db *DB) *PositionRepo {
	return &PositionRepo{db: db}
}

// BulkInsert writes position rows with conflict-ignore semantics on
// (mmsi, ts) and returns how many rows were actually inserted.
// Duplicate reports arriving after a reconnect replay simply count
// as zero.
func (r *PositionRepo) BulkInsert(ctx context.Context, positions []model.Position) (int, error) {
	if len(positions) == 0 {
		return 0, nil
	}

	inserted := 0
	for start := 0; start < len(positions); start += maxInsertRows {
		end := start + maxInsertRows
		if end > len(positions) {
			end = len(positions)
		}
		n, err := r.insertChunk(ctx, positions[start:end])
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

func (r *PositionRepo) insertChunk(ctx context.Context, positions []model.Position) (int, error) {
	const cols = 9 // number of columns per row
	args := make([]interface{}, 0, len(positions)*cols)
	valuesClauses := make([]string, 0, len(positions))

	for i, p := range positions {
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
		INSERT INTO positions (mmsi, ts, lat, lon, sog, cog, heading, nav_status, rate_of_turn)
		VALUES %s
		ON CONFLICT (mmsi, ts) DO NOTHING
	`, strings.Join(valuesClauses, ", "))

	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk insert positions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk insert positions rows affected: %w", err)
	}
	return int(affected), nil
}

// History returns positions for one vessel within [from, to], newest
// first, capped at limit.
func (r *PositionRepo) History(ctx context.Context, mmsi string, from, to time.Time, limit int) ([]model.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT mmsi, ts, lat, lon, sog, cog, heading, nav_status, rate_of_turn, created_at
		FROM positions
		WHERE mmsi = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts DESC
		LIMIT $4
	`, mmsi, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query position history: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		if err := rows.Scan(
			&p.MMSI, &p.Timestamp, &p.Lat, &p.Lon,
			&p.SOG, &p.COG, &p.Heading, &p.NavStatus,
			&p.RateOfTurn, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
