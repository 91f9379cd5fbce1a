package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no record exists under the given order ref.
var ErrNotFound = errors.New("order not found")

// ErrDuplicateRef is returned when Create collides with an existing ref.
// Order refs are issued by the remote party and globally unique, so a
// collision indicates a duplicated initiate response, not a store bug.
var ErrDuplicateRef = errors.New("order ref already exists")

// ErrConsumed is returned by record mutations once the consumed flag is set.
var ErrConsumed = errors.New("order already consumed")

// ErrRedisUnavailable is an exported constant or variable used by the order store.
var ErrRedisUnavailable = errors.New("redis unavailable")

const casMaxRetries = 4

// Store is a Redis-backed order store. Every mutation is an optimistic,
// ref-scoped compare-and-set; there are no long-held locks and "row no
// longer exists" is reported, never fabricated away.
//
// backstop is a key TTL applied at creation as a leak guard only. The
// expunger owns deletion; the backstop merely bounds damage if the expunger
// is down for longer than the consumed-retention window.
type Store struct {
	redis    redis.UniversalClient
	prefix   string
	backstop time.Duration
}

// NewStore creates an order [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redis redis.UniversalClient, prefix string, backstop time.Duration) *Store {
	return &Store{
		redis:    redis,
		prefix:   prefix,
		backstop: backstop,
	}
}

func (s *Store) key(orderRef string) string {
	return s.prefix + ":" + orderRef
}

// Create persists a brand-new order. The ref must not already exist.
//
//	Performance: 1 Redis SET NX.
func (s *Store) Create(ctx context.Context, o *Order) error {
	data, err := Encode(o)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetNX(ctx, s.key(o.OrderRef), data, s.backstop).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return ErrDuplicateRef
	}
	return nil
}

// GetByRef fetches a record by order ref without mutating any Redis state.
//
//	Performance: 1 Redis GET.
func (s *Store) GetByRef(ctx context.Context, orderRef string) (*Order, error) {
	data, err := s.redis.Get(ctx, s.key(orderRef)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

// mutate runs an optimistic WATCH transaction against a single record.
// apply receives the decoded record and returns whether the record should
// be written back. A concurrent write restarts the transaction.
func (s *Store) mutate(ctx context.Context, orderRef string, apply func(*Order) (bool, error)) (*Order, bool, error) {
	key := s.key(orderRef)

	for i := 0; i < casMaxRetries; i++ {
		var (
			result *Order
			wrote  bool
		)
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			result = nil
			wrote = false

			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := Decode(data)
			if err != nil {
				return err
			}

			write, err := apply(record)
			result = record
			if err != nil || !write {
				return err
			}

			updated, err := Encode(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			if err == nil {
				wrote = true
			}
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, false, ErrNotFound
			}
			if errors.Is(err, ErrConsumed) || errors.Is(err, ErrCorruptRecord) {
				return result, false, err
			}
			return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return result, wrote, nil
	}

	return nil, false, fmt.Errorf("%w: cas retries exhausted", ErrRedisUnavailable)
}

// ApplyResult folds a freshly collected remote status into the stored
// record. The write is suppressed when nothing changed, and refused once
// the record is consumed (the consumed flag is terminal). It returns the
// post-transaction record and whether a write happened.
func (s *Store) ApplyResult(ctx context.Context, orderRef string, status Status, hintCode string, completion *Completion, now time.Time) (*Order, bool, error) {
	return s.mutate(ctx, orderRef, func(o *Order) (bool, error) {
		if o.Consumed {
			return false, nil
		}
		if o.Status == status && o.HintCode == hintCode && completionEqual(o.Completion, completion) {
			return false, nil
		}
		o.Status = status
		o.HintCode = hintCode
		if completion != nil {
			c := *completion
			o.Completion = &c
		}
		o.UpdatedAt = now.Unix()
		return true, nil
	})
}

// MarkConsumed flips the consumed flag exactly once. The compare-and-set
// guarantees a single winner under concurrent completion attempts; every
// other caller observes [ErrConsumed].
func (s *Store) MarkConsumed(ctx context.Context, orderRef string, now time.Time) (*Order, error) {
	record, _, err := s.mutate(ctx, orderRef, func(o *Order) (bool, error) {
		if o.Consumed {
			return false, ErrConsumed
		}
		o.Consumed = true
		o.UpdatedAt = now.Unix()
		return true, nil
	})
	return record, err
}

// Sweep deletes, in one pass, every record that is either expired and never
// consumed (UpdatedAt < expiredCutoff) or consumed and past its retention
// window (UpdatedAt < consumedCutoff). It returns the number of deleted
// records. Repeating a sweep with no newly-qualifying records deletes
// nothing.
//
// ATOMICITY NOTE: the qualify-then-delete sequence is NOT atomic. A record
// refreshed between the read and the DEL could be deleted one interval
// early. The window is a single pipeline round-trip wide and the affected
// order would have qualified on the next cycle anyway, so live attempts
// only ever observe it as the benign "row no longer exists" outcome they
// already tolerate.
func (s *Store) Sweep(ctx context.Context, expiredCutoff, consumedCutoff time.Time) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	expired := expiredCutoff.Unix()
	consumed := consumedCutoff.Unix()

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+":*", 512).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		if len(keys) > 0 {
			pipe := s.redis.Pipeline()
			cmds := make([]*redis.StringCmd, len(keys))
			for i, key := range keys {
				cmds[i] = pipe.Get(ctx, key)
			}
			if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
				return deleted, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}

			var doomed []string
			for i, cmd := range cmds {
				data, cmdErr := cmd.Bytes()
				if cmdErr != nil {
					if errors.Is(cmdErr, redis.Nil) {
						continue
					}
					return deleted, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
				}
				record, decErr := Decode(data)
				if decErr != nil {
					// Undecodable records are unreachable by any live
					// attempt; sweep them with the expired cohort.
					doomed = append(doomed, keys[i])
					continue
				}
				if qualifies(record, expired, consumed) {
					doomed = append(doomed, keys[i])
				}
			}

			if len(doomed) > 0 {
				n, err := s.redis.Del(ctx, doomed...).Result()
				if err != nil {
					return deleted, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
				}
				deleted += int(n)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

func qualifies(o *Order, expiredCutoff, consumedCutoff int64) bool {
	if o.Consumed {
		return o.UpdatedAt < consumedCutoff
	}
	return o.UpdatedAt < expiredCutoff
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func completionEqual(a, b *Completion) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
