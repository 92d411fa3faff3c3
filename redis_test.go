/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisProvider) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisProvider(client, "test")
}

func TestRedisProviderLoadAndFetch(t *testing.T) {
	ctx := context.Background()
	_, p := newTestRedis(t)

	require.NoError(t, p.Ping(ctx))
	require.NoError(t, p.Load(ctx, []Question{capitalQuestion, planetQuestion}))

	n, err := p.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := p.FetchQuestions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []Question{capitalQuestion, planetQuestion}, got)
}

func TestRedisProviderLoadReplaces(t *testing.T) {
	ctx := context.Background()
	mr, p := newTestRedis(t)

	require.NoError(t, p.Load(ctx, []Question{capitalQuestion, planetQuestion}))
	require.NoError(t, p.Load(ctx, []Question{planetQuestion}))

	n, err := p.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists("test:question:2"))
}

func TestRedisProviderNotEnoughQuestions(t *testing.T) {
	ctx := context.Background()
	_, p := newTestRedis(t)

	require.NoError(t, p.Load(ctx, []Question{capitalQuestion}))

	_, err := p.FetchQuestions(ctx, 3)
	assert.ErrorIs(t, err, ErrProvider)
}

func TestRedisProviderRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	mr, p := newTestRedis(t)

	assert.Error(t, p.Load(ctx, []Question{{Text: "Q"}}))

	require.NoError(t, p.Load(ctx, []Question{capitalQuestion}))
	require.NoError(t, mr.Set("test:question:1", `{"question":"broken"}`))

	_, err := p.FetchQuestions(ctx, 1)
	assert.ErrorIs(t, err, ErrProvider)
}

func TestRedisProviderMissingBlob(t *testing.T) {
	ctx := context.Background()
	mr, p := newTestRedis(t)

	require.NoError(t, p.Load(ctx, []Question{capitalQuestion}))
	mr.Del("test:question:1")

	_, err := p.FetchQuestions(ctx, 1)
	assert.ErrorIs(t, err, ErrProvider)
}

func TestRedisProviderPingFails(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer client.Close()

	assert.Error(t, NewRedisProvider(client, "").Ping(context.Background()))
}
