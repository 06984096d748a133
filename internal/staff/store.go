package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the pool subset the store needs; satisfied by pgxpool.Pool and
// by pgxmock in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var ErrPhoneLineNotFound = errors.New("staff: phone line not found")

// Store reads staff and phone-line configuration from Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("staff: pgx pool required")
	}
	return &Store{pool: pool}
}

// ListActive returns every active staff member. The notification engine calls
// this per inbound message, which is fine at back-office headcount.
func (s *Store) ListActive(ctx context.Context) ([]*Staff, error) {
	query := `
		SELECT id, name, role, allotted_areas, active
		FROM staff
		WHERE active = TRUE
		ORDER BY name
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("staff: list active failed: %w", err)
	}
	defer rows.Close()

	var out []*Staff
	for rows.Next() {
		var member Staff
		if err := rows.Scan(&member.ID, &member.Name, &member.Role, &member.AllottedAreas, &member.Active); err != nil {
			return nil, fmt.Errorf("staff: scan failed: %w", err)
		}
		out = append(out, &member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("staff: list active failed: %w", err)
	}
	return out, nil
}

// GetByID fetches a single staff member.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	query := `SELECT id, name, role, allotted_areas, active FROM staff WHERE id = $1`
	var member Staff
	err := s.pool.QueryRow(ctx, query, id).
		Scan(&member.ID, &member.Name, &member.Role, &member.AllottedAreas, &member.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("staff: not found")
		}
		return nil, fmt.Errorf("staff: select failed: %w", err)
	}
	return &member, nil
}

// GetPhoneLine resolves the configuration for a business phone number ID.
func (s *Store) GetPhoneLine(ctx context.Context, businessPhoneID string) (*PhoneLine, error) {
	query := `
		SELECT business_phone_id, label, areas, is_retarget
		FROM phone_lines
		WHERE business_phone_id = $1
	`
	var line PhoneLine
	err := s.pool.QueryRow(ctx, query, businessPhoneID).
		Scan(&line.BusinessPhoneID, &line.Label, &line.Areas, &line.IsRetarget)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPhoneLineNotFound
		}
		return nil, fmt.Errorf("staff: phone line lookup failed: %w", err)
	}
	return &line, nil
}
