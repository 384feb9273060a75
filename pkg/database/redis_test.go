package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
	assert.Equal(t, 3*time.Second, cfg.DialTimeout)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	cfg := RedisConfig{Host: "127.0.0.1", Port: 1, DialTimeout: 100 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, cfg)
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}
