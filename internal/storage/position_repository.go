package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// PositionRepository keeps the last known position per cover name.
type PositionRepository struct {
	db  *DB
	now func() time.Time
}

func NewPositionRepository(db *DB) *PositionRepository {
	return &PositionRepository{db: db, now: time.Now}
}

func (r *PositionRepository) LoadPosition(ctx context.Context, name string) (float64, bool, error) {
	var position float64

	err := r.db.QueryRowContext(ctx, "SELECT position FROM cover_positions WHERE name = ?", name).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "storage: querying %s position", name)
	}

	return position, true, nil
}

func (r *PositionRepository) SavePosition(ctx context.Context, name string, position float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cover_positions (name, position, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at
	`, name, position, r.now().UTC())

	return errors.Wrapf(err, "storage: saving %s position", name)
}

type SavedPosition struct {
	Name      string    `json:"name"`
	Position  float64   `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List returns all saved positions ordered by cover name.
func (r *PositionRepository) List(ctx context.Context) ([]SavedPosition, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name, position, updated_at FROM cover_positions ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, "storage: querying positions")
	}
	defer rows.Close()

	var positions []SavedPosition
	for rows.Next() {
		var p SavedPosition
		if err := rows.Scan(&p.Name, &p.Position, &p.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "storage: scanning position")
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}
