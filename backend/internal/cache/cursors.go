package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"deltaServer/backend/internal/collab"
	"deltaServer/backend/internal/events"
	"deltaServer/backend/internal/ot/delta"
)

// 乐观锁重试次数
const maxTxRetries = 8

var ErrCursorContention = errors.New("cursor hash kept changing, gave up")

// CursorStore 把选区放在 redis hash 里，多实例共享
type CursorStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

var _ collab.CursorStore = (*CursorStore)(nil)

// NewCursorStore: ttl 为整张 hash 的过期时间，每次写入都会刷新；0 表示不过期
func NewCursorStore(rdb redis.UniversalClient, ttl time.Duration) *CursorStore {
	return &CursorStore{rdb: rdb, ttl: ttl}
}

func (c *CursorStore) SetCursor(ctx context.Context, docID string, userID uint64, rng *events.Range) (*events.Range, error) {
	key := cursorKey(docID)
	field := strconv.FormatUint(userID, 10)

	var old *events.Range
	err := c.withWatch(ctx, key, func(tx *redis.Tx) error {
		old = nil
		raw, err := tx.HGet(ctx, key, field).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var prev events.Range
			if err := json.Unmarshal(raw, &prev); err != nil {
				return fmt.Errorf("cursor %s/%d: %w", docID, userID, err)
			}
			old = &prev
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if rng == nil {
				pipe.HDel(ctx, key, field)
				return nil
			}
			b, err := json.Marshal(rng)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, key, field, b)
			c.expire(ctx, pipe, key)
			return nil
		})
		return err
	})
	return old, err
}

func (c *CursorStore) Cursors(ctx context.Context, docID string) (map[uint64]events.Range, error) {
	raw, err := c.rdb.HGetAll(ctx, cursorKey(docID)).Result()
	if err != nil {
		return nil, err
	}
	return decodeCursors(raw)
}

// TransformCursors 用 WATCH 做乐观锁：读出全部选区，变换后整体写回
func (c *CursorStore) TransformCursors(ctx context.Context, docID string, change delta.Delta, authorID uint64) error {
	key := cursorKey(docID)
	return c.withWatch(ctx, key, func(tx *redis.Tx) error {
		raw, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			return nil
		}
		cursors, err := decodeCursors(raw)
		if err != nil {
			return err
		}

		values := make([]any, 0, 2*len(cursors))
		for uid, r := range cursors {
			moved, err := collab.TransformCursor(r, change, uid, authorID)
			if err != nil {
				return err
			}
			if moved == r {
				continue
			}
			b, err := json.Marshal(moved)
			if err != nil {
				return err
			}
			values = append(values, strconv.FormatUint(uid, 10), b)
		}
		if len(values) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, values...)
			c.expire(ctx, pipe, key)
			return nil
		})
		return err
	})
}

func (c *CursorStore) withWatch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := c.rdb.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrCursorContention
}

func (c *CursorStore) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
}

func decodeCursors(raw map[string]string) (map[uint64]events.Range, error) {
	out := make(map[uint64]events.Range, len(raw))
	for field, val := range raw {
		uid, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cursor field %q: %w", field, err)
		}
		var r events.Range
		if err := json.Unmarshal([]byte(val), &r); err != nil {
			return nil, fmt.Errorf("cursor of user %d: %w", uid, err)
		}
		out[uid] = r
	}
	return out, nil
}
