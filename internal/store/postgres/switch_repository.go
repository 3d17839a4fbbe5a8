package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pmengine/internal/domain"
)

// SwitchRepository implements store.SwitchRepository using PostgreSQL.
type SwitchRepository struct {
	db *DB
}

// NewSwitchRepository creates a new PostgreSQL-backed switch repository.
func NewSwitchRepository(db *DB) *SwitchRepository {
	return &SwitchRepository{db: db}
}

// Create stores a completed switch.
func (r *SwitchRepository) Create(ctx context.Context, sw *domain.ModeSwitch) error {
	query := `
		INSERT INTO mode_switches (
			id, from_high_priority, to_high_priority, moved, duration_ns, switched_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.pool.Exec(ctx, query,
		sw.ID,
		sw.From,
		sw.To,
		sw.Moved,
		sw.Duration.Nanoseconds(),
		sw.SwitchedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create mode switch: %w", err)
	}

	return nil
}

// GetByID retrieves a switch by its ID.
func (r *SwitchRepository) GetByID(ctx context.Context, id string) (*domain.ModeSwitch, error) {
	query := `
		SELECT id, from_high_priority, to_high_priority, moved, duration_ns, switched_at
		FROM mode_switches
		WHERE id = $1
	`

	sw, err := scanSwitch(r.db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrModeSwitchNotFound
		}
		return nil, fmt.Errorf("failed to get mode switch: %w", err)
	}

	return sw, nil
}

// List retrieves the most recent switches, newest first.
// A non-positive limit returns every record.
func (r *SwitchRepository) List(ctx context.Context, limit int) ([]*domain.ModeSwitch, error) {
	query := `
		SELECT id, from_high_priority, to_high_priority, moved, duration_ns, switched_at
		FROM mode_switches
		ORDER BY switched_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mode switches: %w", err)
	}
	defer rows.Close()

	var switches []*domain.ModeSwitch
	for rows.Next() {
		sw, err := scanSwitch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mode switch: %w", err)
		}
		switches = append(switches, sw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mode switches: %w", err)
	}

	return switches, nil
}

// scanSwitch scans a row into a ModeSwitch.
func scanSwitch(row pgx.Row) (*domain.ModeSwitch, error) {
	var (
		sw         domain.ModeSwitch
		durationNs int64
	)

	err := row.Scan(
		&sw.ID,
		&sw.From,
		&sw.To,
		&sw.Moved,
		&durationNs,
		&sw.SwitchedAt,
	)
	if err != nil {
		return nil, err
	}

	sw.Duration = time.Duration(durationNs)
	return &sw, nil
}
