package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

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

var ErrMessageNotFound = errors.New("chat: message not found")

// Store persists conversations and messages in Postgres. All "latest state"
// mutations go through single-statement conditional updates; the row count of
// those updates is the only side-effect signal callers may rely on.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("chat: pgx pool required")
	}
	return &Store{pool: pool}
}

const conversationColumns = `
	id, participant_phone, business_phone_id, participant_name, assigned_agent,
	source, snapshot_name, snapshot_phone,
	last_message_id, last_message_content, last_message_time,
	last_message_direction, last_message_status,
	last_incoming_message_time, last_outgoing_message_time,
	last_customer_message_at, first_message_time,
	is_retarget, retarget_stage, owner_role, is_archived,
	created_at, updated_at`

// ResolveConversation finds or creates the conversation for a
// (participant phone, business phone line) pair in one atomic statement.
// Snapshot fields are written only on the insert branch; an existing row is
// returned untouched, so untrusted callers can never overwrite the snapshot.
func (s *Store) ResolveConversation(ctx context.Context, participantPhone, businessPhoneID, participantName, source string) (*Conversation, bool, error) {
	participantPhone = strings.TrimSpace(participantPhone)
	if participantPhone == "" || businessPhoneID == "" {
		return nil, false, errors.New("chat: participant phone and business phone id required")
	}
	if source == "" {
		source = SourceMeta
	}
	query := `
		INSERT INTO conversations (
			id, participant_phone, business_phone_id, participant_name,
			source, snapshot_name, snapshot_phone
		)
		VALUES ($1, $2, $3, $4, $5, $4, $2)
		ON CONFLICT (participant_phone, business_phone_id)
		DO UPDATE SET updated_at = now()
		RETURNING` + conversationColumns + `, (xmax = 0) AS created
	`
	row := s.pool.QueryRow(ctx, query, uuid.New(), participantPhone, businessPhoneID, participantName, source)
	conv, created, err := scanConversationCreated(row)
	if err != nil {
		return nil, false, fmt.Errorf("chat: resolve conversation: %w", err)
	}
	return conv, created, nil
}

// GetConversation fetches a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	query := `SELECT` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("chat: get conversation: %w", err)
	}
	return conv, nil
}

// UpsertMessage inserts a message keyed on (provider message id, business
// phone id). Fields apply only on the insert branch; a duplicate delivery
// changes nothing. The returned flag reports whether an insert happened.
func (s *Store) UpsertMessage(ctx context.Context, msg *Message) (bool, error) {
	if msg == nil {
		return false, errors.New("chat: message required")
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Status == "" {
		msg.Status = StatusSent
	}
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return false, fmt.Errorf("chat: marshal content: %w", err)
	}
	snapshot, err := json.Marshal(msg.Snapshot)
	if err != nil {
		return false, fmt.Errorf("chat: marshal snapshot: %w", err)
	}
	query := `
		INSERT INTO messages (
			id, conversation_id, provider_message_id, business_phone_id,
			from_phone, to_phone, type, content,
			media_url, media_id, mime_type, filename,
			direction, status, failure_reason,
			reply_to_message_id, reply_context_from,
			reacted_to_message_id, reaction_emoji,
			template_name, conversation_snapshot, message_timestamp
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (provider_message_id, business_phone_id) DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.ProviderMessageID, msg.BusinessPhoneID,
		msg.From, msg.To, msg.Type, content,
		msg.MediaURL, msg.MediaID, msg.MimeType, msg.Filename,
		msg.Direction, msg.Status, msg.FailureReason,
		msg.ReplyToMessageID, msg.ReplyContextFrom,
		msg.ReactedToMessageID, msg.ReactionEmoji,
		msg.TemplateName, snapshot, msg.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("chat: upsert message: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// AdvanceSummary conditionally updates the conversation's "latest message"
// fields. The update applies only when the stored last_message_time is unset
// or strictly earlier than the new message's timestamp, so late-arriving
// older webhooks never regress the summary. The returned flag is the
// RowsAffected signal callers use to decide on side effects.
func (s *Store) AdvanceSummary(ctx context.Context, conversationID uuid.UUID, upd SummaryUpdate) (bool, error) {
	content := TruncateSummary(upd.Content)
	var query string
	switch upd.Direction {
	case DirectionIncoming:
		query = `
			UPDATE conversations
			SET last_message_id = $2,
				last_message_content = $3,
				last_message_time = $4,
				last_message_direction = $5,
				last_incoming_message_time = $4,
				last_customer_message_at = $4,
				first_message_time = COALESCE(first_message_time, $4),
				updated_at = now()
			WHERE id = $1
				AND (last_message_time IS NULL OR last_message_time < $4)
		`
	default:
		query = `
			UPDATE conversations
			SET last_message_id = $2,
				last_message_content = $3,
				last_message_time = $4,
				last_message_direction = $5,
				last_outgoing_message_time = $4,
				first_message_time = COALESCE(first_message_time, $4),
				updated_at = now()
			WHERE id = $1
				AND (last_message_time IS NULL OR last_message_time < $4)
		`
	}
	ct, err := s.pool.Exec(ctx, query, conversationID, upd.ProviderMessageID, content, upd.Timestamp, upd.Direction)
	if err != nil {
		return false, fmt.Errorf("chat: advance summary: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// StatusResult identifies the message a status transition was applied to.
type StatusResult struct {
	MessageID      uuid.UUID
	ConversationID uuid.UUID
	Direction      string
	RecipientPhone string
}

// ApplyStatus applies a delivery-status transition only when it differs from
// the stored status. A zero-row match means a duplicate status webhook;
// callers must emit nothing in that case.
func (s *Store) ApplyStatus(ctx context.Context, providerMessageID, businessPhoneID, newStatus, failureReason string) (*StatusResult, bool, error) {
	query := `
		UPDATE messages
		SET status = $3,
			failure_reason = CASE WHEN $4 = '' THEN failure_reason ELSE $4 END
		WHERE provider_message_id = $1
			AND business_phone_id = $2
			AND status <> $3
		RETURNING id, conversation_id, direction, to_phone
	`
	var res StatusResult
	err := s.pool.QueryRow(ctx, query, providerMessageID, businessPhoneID, newStatus, failureReason).
		Scan(&res.MessageID, &res.ConversationID, &res.Direction, &res.RecipientPhone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("chat: apply status: %w", err)
	}
	return &res, true, nil
}

// AppendStatusEvent records one entry in a message's status log.
func (s *Store) AppendStatusEvent(ctx context.Context, evt StatusEvent) error {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	query := `
		INSERT INTO message_status_events (id, message_id, status, occurred_at, error_code, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.pool.Exec(ctx, query, evt.ID, evt.MessageID, evt.Status, evt.OccurredAt, evt.ErrorCode, evt.ErrorDetail); err != nil {
		return fmt.Errorf("chat: append status event: %w", err)
	}
	return nil
}

// PropagateLastMessageStatus mirrors a status onto the conversation when the
// updated message is still its current last message.
func (s *Store) PropagateLastMessageStatus(ctx context.Context, conversationID uuid.UUID, providerMessageID, status string) error {
	query := `
		UPDATE conversations
		SET last_message_status = $3, updated_at = now()
		WHERE id = $1 AND last_message_id = $2
	`
	if _, err := s.pool.Exec(ctx, query, conversationID, providerMessageID, status); err != nil {
		return fmt.Errorf("chat: propagate last message status: %w", err)
	}
	return nil
}

// GetMessageByProviderID fetches a message by its idempotency key.
func (s *Store) GetMessageByProviderID(ctx context.Context, providerMessageID, businessPhoneID string) (*Message, error) {
	query := `
		SELECT id, conversation_id, provider_message_id, business_phone_id,
			from_phone, to_phone, type, content,
			media_url, media_id, mime_type, filename,
			direction, status, failure_reason,
			reply_to_message_id, reply_context_from,
			reacted_to_message_id, reaction_emoji,
			template_name, conversation_snapshot, message_timestamp, created_at
		FROM messages
		WHERE provider_message_id = $1 AND business_phone_id = $2
	`
	row := s.pool.QueryRow(ctx, query, providerMessageID, businessPhoneID)
	var msg Message
	var content, snapshot []byte
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.ProviderMessageID, &msg.BusinessPhoneID,
		&msg.From, &msg.To, &msg.Type, &content,
		&msg.MediaURL, &msg.MediaID, &msg.MimeType, &msg.Filename,
		&msg.Direction, &msg.Status, &msg.FailureReason,
		&msg.ReplyToMessageID, &msg.ReplyContextFrom,
		&msg.ReactedToMessageID, &msg.ReactionEmoji,
		&msg.TemplateName, &snapshot, &msg.Timestamp, &msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("chat: get message: %w", err)
	}
	if err := json.Unmarshal(content, &msg.Content); err != nil {
		return nil, fmt.Errorf("chat: decode content: %w", err)
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &msg.Snapshot); err != nil {
			return nil, fmt.Errorf("chat: decode snapshot: %w", err)
		}
	}
	return &msg, nil
}

// HasTemplateMessage reports whether an outbound message in the conversation
// already used the named template.
func (s *Store) HasTemplateMessage(ctx context.Context, conversationID uuid.UUID, templateName string) (bool, error) {
	query := `
		SELECT 1 FROM messages
		WHERE conversation_id = $1
			AND direction = 'outgoing'
			AND template_name = $2
		LIMIT 1
	`
	var exists int
	if err := s.pool.QueryRow(ctx, query, conversationID, templateName).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("chat: check template message: %w", err)
	}
	return true, nil
}

// SetArchived flips the conversation archive flag.
func (s *Store) SetArchived(ctx context.Context, conversationID uuid.UUID, archived bool) error {
	query := `UPDATE conversations SET is_archived = $2, updated_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, conversationID, archived); err != nil {
		return fmt.Errorf("chat: set archived: %w", err)
	}
	return nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var conv Conversation
	err := row.Scan(
		&conv.ID, &conv.ParticipantPhone, &conv.BusinessPhoneID, &conv.ParticipantName, &conv.AssignedAgent,
		&conv.Source, &conv.SnapshotName, &conv.SnapshotPhone,
		&conv.LastMessageID, &conv.LastMessageContent, &conv.LastMessageTime,
		&conv.LastMessageDirection, &conv.LastMessageStatus,
		&conv.LastIncomingMessageTime, &conv.LastOutgoingMessageTime,
		&conv.LastCustomerMessageAt, &conv.FirstMessageTime,
		&conv.IsRetarget, &conv.RetargetStage, &conv.OwnerRole, &conv.IsArchived,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func scanConversationCreated(row pgx.Row) (*Conversation, bool, error) {
	var conv Conversation
	var created bool
	err := row.Scan(
		&conv.ID, &conv.ParticipantPhone, &conv.BusinessPhoneID, &conv.ParticipantName, &conv.AssignedAgent,
		&conv.Source, &conv.SnapshotName, &conv.SnapshotPhone,
		&conv.LastMessageID, &conv.LastMessageContent, &conv.LastMessageTime,
		&conv.LastMessageDirection, &conv.LastMessageStatus,
		&conv.LastIncomingMessageTime, &conv.LastOutgoingMessageTime,
		&conv.LastCustomerMessageAt, &conv.FirstMessageTime,
		&conv.IsRetarget, &conv.RetargetStage, &conv.OwnerRole, &conv.IsArchived,
		&conv.CreatedAt, &conv.UpdatedAt,
		&created,
	)
	if err != nil {
		return nil, false, err
	}
	return &conv, created, nil
}
