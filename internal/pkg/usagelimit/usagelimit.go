package usagelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vibecodementor/VibeMentor/internal/pkg/entitlements"
)

// Action is a metered action class with its own quota period.
type Action string

const (
	// ActionGeneration is blueprint generation, limited per calendar month.
	ActionGeneration Action = "generation"
	// ActionChat is mentor chat messages, limited per UTC day.
	ActionChat Action = "chat"
)

// Result reports a quota decision.
type Result struct {
	Allowed bool  `json:"allowed"`
	Current int64 `json:"current"`
	Limit   int64 `json:"limit"`
}

// Store is the atomic counter backend. IncrWithExpiry must increment the key
// and, on first increment, arrange for it to expire at the period boundary.
// Get reads a counter without consuming quota; a missing key reads as zero.
type Store interface {
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a Redis client as a counter store.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// NX: only the first increment of a period sets the expiry.
	pipe.ExpireNX(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *redisStore) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// Limiter enforces per-identifier quotas on metered actions.
//
// Policy: increment first, then compare the post-increment value against the
// limit. A rejected attempt is not refunded, so the counter bounds total
// attempts per period rather than total successes. This one ordering is used
// at every call site.
type Limiter struct {
	store Store

	// now is injectable so tests can cross period boundaries.
	now func() time.Time
}

// New creates a limiter on top of a counter store.
func New(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// Allow consumes one unit of quota for the identifier and reports whether the
// action may proceed.
func (l *Limiter) Allow(ctx context.Context, identifier string, action Action, limit int64) (*Result, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("identifier is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	now := l.now().UTC()
	key, periodEnd := keyFor(action, identifier, now)

	count, err := l.store.IncrWithExpiry(ctx, key, periodEnd.Sub(now))
	if err != nil {
		return nil, fmt.Errorf("increment usage counter: %w", err)
	}

	return &Result{
		Allowed: count <= limit,
		Current: count,
		Limit:   limit,
	}, nil
}

// Usage reports the current counter without consuming quota.
func (l *Limiter) Usage(ctx context.Context, identifier string, action Action, limit int64) (*Result, error) {
	now := l.now().UTC()
	key, _ := keyFor(action, identifier, now)

	count, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read usage counter: %w", err)
	}
	return &Result{
		Allowed: count < limit,
		Current: count,
		Limit:   limit,
	}, nil
}

// LimitFor returns the configured quota for a plan and action.
func LimitFor(plan entitlements.Plan, action Action) int64 {
	if action == ActionChat {
		return entitlements.ChatMessagesPerDay(plan)
	}
	return entitlements.GenerationsPerMonth(plan)
}

// keyFor builds the counter key and the instant the covering period ends.
// Generation counters roll over on the first of the month, chat counters at
// midnight UTC; the key embeds the period so stale keys simply expire.
func keyFor(action Action, identifier string, now time.Time) (string, time.Time) {
	if action == ActionChat {
		key := fmt.Sprintf("chat:%s:%s", identifier, now.Format("2006-01-02"))
		end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
		return key, end
	}
	key := fmt.Sprintf("rate:%s:%s", identifier, now.Format("200601"))
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return key, end
}
