package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the pool subset the repository needs; satisfied by pgxpool.Pool
// and by pgxmock in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const leadColumns = `
	id, name, email, phone, phone_digits, area, source,
	whatsapp_opt_in, whatsapp_blocked, whatsapp_block_reason,
	whatsapp_last_error_code, first_reply_at, created_at`

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO leads (id, name, email, phone, phone_digits, area, source, whatsapp_opt_in)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.pool.QueryRow(ctx, query,
		id,
		req.Name,
		req.Email,
		req.Phone,
		Digits(req.Phone),
		req.Area,
		req.Source,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}

	return &Lead{
		ID:            id,
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Area:          req.Area,
		Source:        req.Source,
		WhatsAppOptIn: true,
		CreatedAt:     createdAt,
	}, nil
}

// GetByID fetches a lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// FindByPhoneSuffix tries each trailing-digit suffix of the phone, longest
// first, and returns the most recently created match. ErrLeadNotFound means
// no suffix length matched anything.
func (r *PostgresRepository) FindByPhoneSuffix(ctx context.Context, phone string, lengths ...int) (*Lead, error) {
	if len(lengths) == 0 {
		lengths = []int{10, 9, 8, 7}
	}
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE phone_digits LIKE $1
		ORDER BY created_at DESC
		LIMIT 1`
	for _, suffix := range SuffixCandidates(phone, lengths...) {
		lead, err := scanLead(r.pool.QueryRow(ctx, query, "%"+suffix))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("leads: suffix lookup failed: %w", err)
		}
		return lead, nil
	}
	return nil, ErrLeadNotFound
}

// MarkFirstReply records the first inbound WhatsApp reply. Only the earliest
// reply is kept. A reply is also the strongest opt-in signal we get, so the
// flag is re-asserted here in case it was ever cleared.
func (r *PostgresRepository) MarkFirstReply(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE leads
		SET first_reply_at = $2, whatsapp_opt_in = TRUE
		WHERE id = $1 AND first_reply_at IS NULL
	`
	if _, err := r.pool.Exec(ctx, query, id, at.UTC()); err != nil {
		return fmt.Errorf("leads: mark first reply failed: %w", err)
	}
	return nil
}

// Block marks the lead as unreachable on WhatsApp. The WHERE clause makes the
// flag monotonic: once blocked, later deliveries with different error codes
// never rewrite the recorded reason.
func (r *PostgresRepository) Block(ctx context.Context, id uuid.UUID, reason string, errorCode int) (bool, error) {
	query := `
		UPDATE leads
		SET whatsapp_blocked = TRUE,
		    whatsapp_block_reason = $2,
		    whatsapp_last_error_code = $3
		WHERE id = $1 AND whatsapp_blocked IS DISTINCT FROM TRUE
	`
	tag, err := r.pool.Exec(ctx, query, id, reason, errorCode)
	if err != nil {
		return false, fmt.Errorf("leads: block failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead        Lead
		email       *string
		area        *string
		blockReason *string
		errorCode   *int
		digits      string
	)
	if err := row.Scan(
		&lead.ID,
		&lead.Name,
		&email,
		&lead.Phone,
		&digits,
		&area,
		&lead.Source,
		&lead.WhatsAppOptIn,
		&lead.WhatsAppBlocked,
		&blockReason,
		&errorCode,
		&lead.FirstReplyAt,
		&lead.CreatedAt,
	); err != nil {
		return nil, err
	}
	if email != nil {
		lead.Email = *email
	}
	if area != nil {
		lead.Area = *area
	}
	if blockReason != nil {
		lead.WhatsAppBlockReason = *blockReason
	}
	if errorCode != nil {
		lead.WhatsAppLastErrorCode = *errorCode
	}
	return &lead, nil
}
