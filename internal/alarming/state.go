package alarming

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/helmet-monitor/internal/reading"
)

// Counters are a person's running totals kept by the advisor
type Counters struct {
	MQ7      int64     `json:"mq7_count"`
	MQ2      int64     `json:"mq2_count"`
	Harmful  int64     `json:"harmful_count"`
	Readings int64     `json:"reading_count"`
	LastSeen time.Time `json:"last_seen"`
}

// Hash fields of a person's counter key
const (
	fieldMQ7         = "mq7"
	fieldMQ2         = "mq2"
	fieldHarmful     = "harmful"
	fieldReadings    = "readings"
	fieldLastSeen    = "last_seen"
	fieldFingerprint = "fingerprint"

	counterTTL = 7 * 24 * time.Hour
)

// CounterStore keeps per-person counters and the last advisory fingerprint
// in Redis hashes
type CounterStore struct {
	redis *redis.Client
}

// NewCounterStore creates a new counter store
func NewCounterStore(redisClient *redis.Client) *CounterStore {
	return &CounterStore{redis: redisClient}
}

func counterKey(personID string) string {
	return fmt.Sprintf("helmet:person:%s", personID)
}

func flagDelta(f reading.Flag) int64 {
	if f.Set() {
		return 1
	}
	return 0
}

// Record adds one reading to the person's counters and returns the totals
func (cs *CounterStore) Record(ctx context.Context, r reading.Reading) (*Counters, error) {
	key := counterKey(r.PersonID)

	harmful := int64(0)
	if r.MQ7.Set() || r.MQ2.Set() {
		harmful = 1
	}

	var mq7, mq2, harm, total *redis.IntCmd
	_, err := cs.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		mq7 = pipe.HIncrBy(ctx, key, fieldMQ7, flagDelta(r.MQ7))
		mq2 = pipe.HIncrBy(ctx, key, fieldMQ2, flagDelta(r.MQ2))
		harm = pipe.HIncrBy(ctx, key, fieldHarmful, harmful)
		total = pipe.HIncrBy(ctx, key, fieldReadings, 1)
		pipe.HSet(ctx, key, fieldLastSeen, r.Timestamp.Format(reading.TimestampLayout))
		pipe.Expire(ctx, key, counterTTL)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update counters in Redis: %w", err)
	}

	return &Counters{
		MQ7:      mq7.Val(),
		MQ2:      mq2.Val(),
		Harmful:  harm.Val(),
		Readings: total.Val(),
		LastSeen: r.Timestamp,
	}, nil
}

// Get returns the person's counters; a person never seen has zero counters
func (cs *CounterStore) Get(ctx context.Context, personID string) (*Counters, error) {
	values, err := cs.redis.HGetAll(ctx, counterKey(personID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get counters from Redis: %w", err)
	}

	c := &Counters{
		MQ7:      parseCount(values[fieldMQ7]),
		MQ2:      parseCount(values[fieldMQ2]),
		Harmful:  parseCount(values[fieldHarmful]),
		Readings: parseCount(values[fieldReadings]),
	}
	if ts, err := time.Parse(reading.TimestampLayout, values[fieldLastSeen]); err == nil {
		c.LastSeen = ts
	}
	return c, nil
}

// SwapFingerprint stores the person's current advisory fingerprint and
// returns the previous one
func (cs *CounterStore) SwapFingerprint(ctx context.Context, personID, fingerprint string) (string, error) {
	key := counterKey(personID)

	var previous *redis.StringCmd
	_, err := cs.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		previous = pipe.HGet(ctx, key, fieldFingerprint)
		pipe.HSet(ctx, key, fieldFingerprint, fingerprint)
		pipe.Expire(ctx, key, counterTTL)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to swap fingerprint in Redis: %w", err)
	}

	return previous.Val(), nil
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
