package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReadStateStore keeps per-(conversation, user) last-read timestamps in Redis.
// A missing entry means the user has never read the conversation.
type ReadStateStore struct {
	client redis.Cmdable
}

func NewReadStateStore(client redis.Cmdable) *ReadStateStore {
	if client == nil {
		panic("chat: redis client required")
	}
	return &ReadStateStore{client: client}
}

func readStateKey(conversationID uuid.UUID) string {
	return "readstate:" + conversationID.String()
}

// LastReadAt returns the user's last-read time for the conversation.
// The second return is false when no read state exists.
func (s *ReadStateStore) LastReadAt(ctx context.Context, conversationID uuid.UUID, staffID string) (time.Time, bool, error) {
	val, err := s.client.HGet(ctx, readStateKey(conversationID), staffID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("chat: read state get: %w", err)
	}
	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("chat: read state parse: %w", err)
	}
	return time.UnixMilli(millis), true, nil
}

// MarkRead records that the user has read the conversation up to t.
func (s *ReadStateStore) MarkRead(ctx context.Context, conversationID uuid.UUID, staffID string, t time.Time) error {
	if err := s.client.HSet(ctx, readStateKey(conversationID), staffID, strconv.FormatInt(t.UnixMilli(), 10)).Err(); err != nil {
		return fmt.Errorf("chat: read state set: %w", err)
	}
	return nil
}
