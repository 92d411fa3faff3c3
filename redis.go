/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisProvider serves questions stored in Redis. Each question is a JSON
// blob under <prefix>:question:<n>; the set <prefix>:ids lists every n.
type RedisProvider struct {
	client *redis.Client
	prefix string
}

func NewRedisProvider(client *redis.Client, prefix string) *RedisProvider {
	if prefix == "" {
		prefix = "buzzbox"
	}

	return &RedisProvider{
		client: client,
		prefix: prefix,
	}
}

func (p *RedisProvider) idsKey() string {
	return p.prefix + ":ids"
}

func (p *RedisProvider) questionKey(id string) string {
	return p.prefix + ":question:" + id
}

func (p *RedisProvider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (p *RedisProvider) Count(ctx context.Context) (int, error) {
	n, err := p.client.SCard(ctx, p.idsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("counting questions: %w", err)
	}
	return int(n), nil
}

// Load replaces the stored pool with questions.
func (p *RedisProvider) Load(ctx context.Context, questions []Question) error {
	oldIDs, err := p.client.SMembers(ctx, p.idsKey()).Result()
	if err != nil {
		return fmt.Errorf("listing questions: %w", err)
	}

	pipe := p.client.TxPipeline()

	for _, id := range oldIDs {
		pipe.Del(ctx, p.questionKey(id))
	}
	pipe.Del(ctx, p.idsKey())

	ids := make([]any, 0, len(questions))
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}

		blob, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encoding question %d: %w", i+1, err)
		}

		id := strconv.Itoa(i + 1)
		pipe.Set(ctx, p.questionKey(id), blob, 0)
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		pipe.SAdd(ctx, p.idsKey(), ids...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing questions: %w", err)
	}

	return nil
}

// FetchQuestions picks count distinct stored questions at random.
func (p *RedisProvider) FetchQuestions(ctx context.Context, count int) ([]Question, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: invalid question count %d", ErrProvider, count)
	}

	ids, err := p.client.SRandMemberN(ctx, p.idsKey(), int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	if len(ids) < count {
		return nil, fmt.Errorf("%w: %d questions stored, %d requested", ErrProvider, len(ids), count)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = p.questionKey(id)
	}

	blobs, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	out := make([]Question, 0, count)
	for i, blob := range blobs {
		s, ok := blob.(string)
		if !ok {
			return nil, fmt.Errorf("%w: question %s is missing", ErrProvider, ids[i])
		}

		var q Question
		if err := json.Unmarshal([]byte(s), &q); err != nil {
			return nil, fmt.Errorf("%w: question %s: %w", ErrProvider, ids[i], err)
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%w: question %s: %w", ErrProvider, ids[i], err)
		}

		out = append(out, q)
	}

	return out, nil
}
