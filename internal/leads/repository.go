package leads

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage.
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Lead, error)
	// FindByPhoneSuffix matches a lead whose digit-normalized phone ends
	// with a suffix of the given phone, trying the longest suffix first.
	FindByPhoneSuffix(ctx context.Context, phone string, lengths ...int) (*Lead, error)
	MarkFirstReply(ctx context.Context, id uuid.UUID, at time.Time) error
	// Block flips the WhatsApp-blocked flag. It is monotonic: a lead that
	// is already blocked keeps its original reason, and the returned bool
	// reports whether this call performed the block.
	Block(ctx context.Context, id uuid.UUID, reason string, errorCode int) (bool, error)
}
