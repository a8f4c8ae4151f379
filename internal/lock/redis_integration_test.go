//go:build integration

package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)

	first := NewRedisLocker(client)
	second := NewRedisLocker(client)
	key := Keys.BanAccount(7)

	ok, err := first.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// Only the owner can release.
	released, err := second.Release(ctx, key)
	require.NoError(t, err)
	require.False(t, released)

	extended, err := first.Extend(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, extended)

	released, err = first.Release(ctx, key)
	require.NoError(t, err)
	require.True(t, released)

	held, err := second.IsHeld(ctx, key)
	require.NoError(t, err)
	require.False(t, held)
}
