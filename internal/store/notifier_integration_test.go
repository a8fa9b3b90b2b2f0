//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/harhit22/new-auto-attendace/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestNotifier_PublishSubscribe(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	defer container.Terminate(ctx)

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	n, err := NewNotifier(ctx, config.RedisConfig{URL: url}, nil)
	require.NoError(t, err)
	defer n.Close()
	require.NoError(t, n.Health(ctx))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := make(chan struct{})
	got := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- n.Subscribe(subCtx, ready, func(id string) { got <- id })
	}()

	select {
	case <-ready:
	case <-time.After(10 * time.Second):
		t.Fatal("subscription not ready")
	}

	require.NoError(t, n.Publish(ctx, "identity-42"))

	select {
	case id := <-got:
		assert.Equal(t, "identity-42", id)
	case <-time.After(10 * time.Second):
		t.Fatal("no notification received")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestNotifier_Disabled(t *testing.T) {
	n, err := NewNotifier(context.Background(), config.RedisConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.NoError(t, n.Publish(context.Background(), "x"))
}
