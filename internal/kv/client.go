package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the shared store cannot be reached. Callers
// must treat it as a distinct condition from "key not found" — the two
// drive opposite degradation policies.
var ErrUnavailable = errors.New("store unavailable")

// OpKind selects the operation a batch entry performs.
type OpKind int

const (
	// OpIncr atomically increments the key and reports the new value.
	OpIncr OpKind = iota
	// OpGet reads the key's value.
	OpGet
	// OpTTL reads the key's remaining time to live.
	OpTTL
	// OpExpire assigns a TTL to the key.
	OpExpire
	// OpDel removes the key.
	OpDel
)

// Op is a single entry in a pipelined batch.
type Op struct {
	Kind OpKind
	Key  string
	TTL  time.Duration // OpExpire only
}

// Result carries the outcome of one batch entry. Found is false when
// the key did not exist (OpGet/OpTTL); Count carries the post-increment
// value for OpIncr.
type Result struct {
	Count int64
	Value string
	TTL   time.Duration
	Found bool
}

// Client is the thin store wrapper shared by every defense component.
// It owns no keys and applies no policy.
type Client struct {
	redis redis.UniversalClient
}

// NewClient wraps an existing Redis client.
func NewClient(redisClient redis.UniversalClient) *Client {
	return &Client{redis: redisClient}
}

// Increment atomically increments key and returns the post-increment
// value plus whether this call created the key. The "first" flag is how
// callers know to assign a TTL; the increment and the TTL assignment
// are two separate store calls, not one atomic pair.
func (c *Client) Increment(ctx context.Context, key string) (int64, bool, error) {
	count, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, count == 1, nil
}

// Expire assigns a TTL to key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.redis.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get reads key. The second return is false when the key does not
// exist; ErrUnavailable is never conflated with absence.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, true, nil
}

// GetBytes reads key as a raw byte slice.
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, true, nil
}

// Set writes key with the given TTL (0 = no expiry).
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// TTL returns the remaining time to live for key. A non-positive
// duration means the key has no TTL or does not exist.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ttl, nil
}

// Del removes the given keys. Missing keys are not an error.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SAdd adds member to the set at key and reports whether it was newly
// added.
func (c *Client) SAdd(ctx context.Context, key, member string) (bool, error) {
	added, err := c.redis.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return added == 1, nil
}

// SRem removes member from the set at key.
func (c *Client) SRem(ctx context.Context, key, member string) error {
	if err := c.redis.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SCard returns the cardinality of the set at key.
func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	card, err := c.redis.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return card, nil
}

// SMembers returns all members of the set at key. A missing set reads
// as empty.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.redis.SMembers(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return members, nil
}

// Batch executes ops over one pipeline and returns one Result per op,
// in order. Best-effort: each op is individually atomic, the batch as a
// whole is not, and there is no rollback.
func (c *Client) Batch(ctx context.Context, ops []Op) ([]Result, error) {
	if len(ops) == 0 {
		return []Result{}, nil
	}

	pipe := c.redis.Pipeline()
	cmds := make([]redis.Cmder, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case OpIncr:
			cmds[i] = pipe.Incr(ctx, op.Key)
		case OpGet:
			cmds[i] = pipe.Get(ctx, op.Key)
		case OpTTL:
			cmds[i] = pipe.PTTL(ctx, op.Key)
		case OpExpire:
			cmds[i] = pipe.Expire(ctx, op.Key, op.TTL)
		case OpDel:
			cmds[i] = pipe.Del(ctx, op.Key)
		default:
			return nil, fmt.Errorf("unknown batch op kind %d", op.Kind)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	results := make([]Result, len(ops))
	for i, cmd := range cmds {
		switch typed := cmd.(type) {
		case *redis.IntCmd:
			v, err := typed.Result()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			results[i] = Result{Count: v, Found: true}
		case *redis.StringCmd:
			v, err := typed.Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					results[i] = Result{Found: false}
					continue
				}
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			results[i] = Result{Value: v, Found: true}
		case *redis.DurationCmd:
			v, err := typed.Result()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			// go-redis maps PTTL's -2 (missing key) and -1 (no TTL)
			// replies to raw -2ns / -1ns durations.
			results[i] = Result{TTL: v, Found: v != -2}
		case *redis.BoolCmd:
			v, err := typed.Result()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			results[i] = Result{Found: v}
		}
	}

	return results, nil
}

// Ping returns a point-in-time store availability check and latency.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
