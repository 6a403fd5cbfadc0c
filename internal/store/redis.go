package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/venuefarm/bookingbot/internal/models"
)

const (
	// DefaultSessionKeyPrefix namespaces session keys in a shared Redis.
	DefaultSessionKeyPrefix = "bookingbot:session:"
	// DefaultSessionTTL expires conversations that have been idle this long.
	DefaultSessionTTL = 30 * 24 * time.Hour

	// DefaultLockKeyPrefix namespaces per-identifier lock keys.
	DefaultLockKeyPrefix = "bookingbot:lock:"
	// DefaultLockTTL bounds how long a crashed holder can block an identifier.
	DefaultLockTTL = 30 * time.Second
	// DefaultLockWait is how long Lock waits for a busy identifier.
	DefaultLockWait = 10 * time.Second
	// DefaultLockRetryInterval is the polling interval while waiting for a lock.
	DefaultLockRetryInterval = 50 * time.Millisecond
)

// ErrLockTimeout is returned when a per-identifier lock cannot be acquired in time.
var ErrLockTimeout = errors.New("store: lock wait timed out")

// RedisSessionStore keeps conversation state in Redis as JSON.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ SessionStore = (*RedisSessionStore)(nil)

// RedisOption configures a RedisSessionStore or RedisLocker.
type RedisOption func(*redisOpts)

type redisOpts struct {
	prefix   string
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
}

// WithKeyPrefix overrides the key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(o *redisOpts) { o.prefix = prefix }
}

// WithTTL overrides the key expiry (session idle TTL or lock lease).
func WithTTL(ttl time.Duration) RedisOption {
	return func(o *redisOpts) { o.ttl = ttl }
}

// WithLockWait overrides how long a RedisLocker waits for a busy key.
func WithLockWait(wait time.Duration) RedisOption {
	return func(o *redisOpts) { o.wait = wait }
}

// NewRedisSessionStore creates a session store on the given client.
func NewRedisSessionStore(client *redis.Client, opts ...RedisOption) *RedisSessionStore {
	if client == nil {
		panic("store: redis client cannot be nil")
	}
	cfg := redisOpts{prefix: DefaultSessionKeyPrefix, ttl: DefaultSessionTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RedisSessionStore{client: client, prefix: cfg.prefix, ttl: cfg.ttl}
}

func (s *RedisSessionStore) key(identifier string) string {
	return s.prefix + identifier
}

// GetConversationState returns nil, nil when the key is absent or expired.
func (s *RedisSessionStore) GetConversationState(ctx context.Context, identifier string) (*models.ConversationState, error) {
	data, err := s.client.Get(ctx, s.key(identifier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		slog.Error("RedisSessionStore.GetConversationState: get failed", "error", err, "identifier", identifier)
		return nil, fmt.Errorf("store: failed to load session: %w", err)
	}
	var cs models.ConversationState
	if err := json.Unmarshal(data, &cs); err != nil {
		slog.Error("RedisSessionStore.GetConversationState: corrupt session, discarding", "error", err, "identifier", identifier)
		return nil, nil
	}
	return &cs, nil
}

// SaveConversationState overwrites the session and refreshes its TTL.
func (s *RedisSessionStore) SaveConversationState(ctx context.Context, state models.ConversationState) error {
	if state.Identifier == "" {
		return models.ErrEmptyIdentifier
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(state.Identifier), data, s.ttl).Err(); err != nil {
		slog.Error("RedisSessionStore.SaveConversationState: set failed", "error", err, "identifier", state.Identifier)
		return fmt.Errorf("store: failed to persist session: %w", err)
	}
	slog.Debug("RedisSessionStore.SaveConversationState: saved", "identifier", state.Identifier, "phase", state.Phase)
	return nil
}

// DeleteConversationState removes the session key.
func (s *RedisSessionStore) DeleteConversationState(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.key(identifier)).Err(); err != nil {
		return fmt.Errorf("store: failed to delete session: %w", err)
	}
	return nil
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes work per identifier across processes sharing one Redis.
type RedisLocker struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
}

// NewRedisLocker creates a locker on the given client.
func NewRedisLocker(client *redis.Client, opts ...RedisOption) *RedisLocker {
	if client == nil {
		panic("store: redis client cannot be nil")
	}
	cfg := redisOpts{
		prefix:   DefaultLockKeyPrefix,
		ttl:      DefaultLockTTL,
		wait:     DefaultLockWait,
		interval: DefaultLockRetryInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RedisLocker{client: client, prefix: cfg.prefix, ttl: cfg.ttl, wait: cfg.wait, interval: cfg.interval}
}

// Lock blocks until the key is acquired, the wait elapses, or ctx is done.
// The returned function releases the lock; it is safe to call once.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := l.prefix + key
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("store: lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			slog.Warn("RedisLocker.Lock: wait timed out", "identifier", key, "wait", l.wait)
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.interval):
		}
	}

	return func() {
		// release must work even when the caller's ctx is already cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			slog.Error("RedisLocker.Lock: release failed", "error", err, "identifier", key)
		}
	}, nil
}
