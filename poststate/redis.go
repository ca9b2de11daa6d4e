package poststate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "lineflow:post:"
	keyIndex  = "lineflow:posts"
)

// RedisStore caches post state as JSON values, one key per post plus an
// index set of known codes.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func postKey(code string) string { return keyPrefix + code }

func (r *RedisStore) SetPost(ctx context.Context, ps *PostState) error {
	data, err := json.Marshal(ps)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, postKey(ps.Code), data, 0)
		p.SAdd(ctx, keyIndex, ps.Code)
		return nil
	})
	return err
}

// GetPost returns nil, nil when the post is not cached.
func (r *RedisStore) GetPost(ctx context.Context, code string) (*PostState, error) {
	data, err := r.client.Get(ctx, postKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ps PostState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("decode post %s: %w", code, err)
	}
	return &ps, nil
}

func (r *RedisStore) Codes(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, keyIndex).Result()
}

// Clear removes every cached post.
func (r *RedisStore) Clear(ctx context.Context) error {
	codes, err := r.Codes(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(codes)+1)
	for _, c := range codes {
		keys = append(keys, postKey(c))
	}
	keys = append(keys, keyIndex)
	return r.client.Del(ctx, keys...).Err()
}
