package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKV implements KV over a github.com/redis/go-redis/v9 client. It is
// the production counterpart of the validator's pkg/kvdb.KVAdapter, which
// wraps CometBFT's embedded dbm.DB; the Store's networked-service and
// pub/sub requirements (spec.md Section 4.1) are why this reaches for
// Redis instead of an embedded KV like the validator's.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps an existing Redis client.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisKV) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// CompareAndSwap uses Redis WATCH/MULTI/EXEC as the versioning compare
// named by spec.md Section 3, invariant iii: the transaction only commits
// if key's bytes are still oldValue when EXEC runs.
func (r *RedisKV) CompareAndSwap(ctx context.Context, key string, oldValue, newValue []byte) (bool, error) {
	committed := false
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		if !bytes.Equal(current, oldValue) {
			// Compare failed; report it to the caller as ok=false rather
			// than looping here, since the caller's mutator needs to
			// re-run against the fresh value.
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newValue, 0)
			return nil
		})
		if err != nil {
			return err
		}
		committed = true
		return nil
	}

	err := r.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return committed, nil
}
