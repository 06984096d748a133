package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock), mock
}

func leadRow(id uuid.UUID, phone string) *pgxmock.Rows {
	email := "lead@example.com"
	area := "bandra"
	return pgxmock.NewRows([]string{
		"id", "name", "email", "phone", "phone_digits", "area", "source",
		"whatsapp_opt_in", "whatsapp_blocked", "whatsapp_block_reason",
		"whatsapp_last_error_code", "first_reply_at", "created_at",
	}).AddRow(
		id, "Maria Fernandes", &email, phone, Digits(phone), &area, "website",
		true, false, (*string)(nil), (*int)(nil), (*time.Time)(nil), time.Now().UTC(),
	)
}

func TestFindByPhoneSuffixFallsBackToShorterSuffix(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	// 10-digit suffix misses, 9-digit hits.
	mock.ExpectQuery("SELECT").WithArgs("%9876543210").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT").WithArgs("%876543210").WillReturnRows(leadRow(id, "+91 98765-43210"))

	lead, err := repo.FindByPhoneSuffix(context.Background(), "919876543210", 10, 9, 8, 7)
	if err != nil {
		t.Fatalf("suffix lookup: %v", err)
	}
	if lead.ID != id {
		t.Fatalf("wrong lead: %+v", lead)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByPhoneSuffixNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	for _, suffix := range []string{"%9876543210", "%876543210", "%76543210", "%6543210"} {
		mock.ExpectQuery("SELECT").WithArgs(suffix).WillReturnError(pgx.ErrNoRows)
	}

	_, err := repo.FindByPhoneSuffix(context.Background(), "9876543210")
	if !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
}

func TestBlockIsMonotonic(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE leads").
		WithArgs(id, "ecosystem_protection", 131049).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	blocked, err := repo.Block(context.Background(), id, "ecosystem_protection", 131049)
	if err != nil || !blocked {
		t.Fatalf("expected first block to apply, got blocked=%v err=%v", blocked, err)
	}

	// Already blocked: a later failure with a different code is a no-op.
	mock.ExpectExec("UPDATE leads").
		WithArgs(id, "number_not_on_whatsapp", 131021).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	blocked, err = repo.Block(context.Background(), id, "number_not_on_whatsapp", 131021)
	if err != nil || blocked {
		t.Fatalf("expected repeat block to be a no-op, got blocked=%v err=%v", blocked, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkFirstReply(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE leads\s+SET first_reply_at = \$2, whatsapp_opt_in = TRUE`).
		WithArgs(id, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := repo.MarkFirstReply(context.Background(), id, time.Now()); err != nil {
		t.Fatalf("mark first reply: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
