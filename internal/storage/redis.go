package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ilnaes/linepad/internal/document"
)

const (
	redisIndexKey  = "linepad:docs"
	redisKeyPrefix = "linepad:doc:"
)

// RedisStore keeps each record as a JSON string and the set of ids in an
// index set.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore shares rdb with the caller; Close does not close it.
func NewRedisStore(ctx context.Context, rdb *redis.Client) (*RedisStore, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (r *RedisStore) Save(ctx context.Context, id, title string, snap document.Snapshot) error {
	buf, err := json.Marshal(Record{
		Meta:     Meta{ID: id, Title: title, SavedAt: time.Now()},
		Snapshot: stripHolders(snap),
	})
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisKeyPrefix+id, buf, 0)
		p.SAdd(ctx, redisIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, id string) (Record, error) {
	buf, err := r.rdb.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(buf, &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return rec, nil
}

func (r *RedisStore) List(ctx context.Context) ([]Meta, error) {
	ids, err := r.rdb.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	res := []Meta{}
	if len(ids) == 0 {
		return res, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKeyPrefix + id
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// key expired or was removed behind our back
			continue
		}
		var rec struct {
			Meta
		}
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, err
		}
		res = append(res, rec.Meta)
	}
	sortMetas(res)
	return res, nil
}

func (r *RedisStore) Close() error {
	return nil
}
