package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parley-ai/parley/pkg/chat"
)

// DefaultSessionTTL is how long an idle session's history is retained
// in Redis before it expires. Every append refreshes the TTL.
const DefaultSessionTTL = 24 * time.Hour

// RedisStore implements Store on a Redis list per session. Messages
// are JSON-encoded; LTRIM enforces the per-session cap on every append.
type RedisStore struct {
	client      *redis.Client
	keyPrefix   string
	maxMessages int
	ttl         time.Duration
	logger      *slog.Logger
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the Redis key prefix (default "parley:session:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.keyPrefix = prefix
	}
}

// WithMaxMessages sets the per-session message cap. Zero disables it.
func WithMaxMessages(n int) RedisOption {
	return func(s *RedisStore) {
		s.maxMessages = n
	}
}

// WithTTL sets the idle-session expiry. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(s *RedisStore) {
		s.logger = logger.With("component", "session.redis")
	}
}

// NewRedisStore connects to Redis at addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := &RedisStore{
		client:      client,
		keyPrefix:   "parley:session:",
		maxMessages: DefaultMaxMessages,
		ttl:         DefaultSessionTTL,
		logger:      slog.Default().With("component", "session.redis"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, sessionID string, role chat.Role, content string) error {
	msg := chat.Message{
		Role:      role,
		Content:   content,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.maxMessages > 0 {
		pipe.LTrim(ctx, key, int64(-s.maxMessages), -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append to %s: %w", key, err)
	}
	return nil
}

// History implements Store.
func (s *RedisStore) History(ctx context.Context, sessionID string) ([]chat.Message, error) {
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}

	msgs := make([]chat.Message, 0, len(raw))
	for _, item := range raw {
		var msg chat.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.logger.Warn("skipping malformed message",
				"session_id", sessionID,
				"error", err,
			)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context, sessionID string) (int, error) {
	n, err := s.client.LLen(ctx, s.key(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count session %s: %w", sessionID, err)
	}
	return int(n), nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) (bool, error) {
	removed, err := s.client.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	return removed > 0, nil
}

// Ping verifies the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Verify RedisStore implements Store at compile time.
var _ Store = (*RedisStore)(nil)
