// Package integration starts throwaway dependencies for tests. Every helper
// skips the calling test when -short is set or no container runtime is
// reachable, and terminates the container when the test ends.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = 2 * time.Minute

func skip(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// Postgres returns a connection URL for an empty database.
func Postgres(t *testing.T) string {
	t.Helper()
	skip(t)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("stock"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres url: %v", err)
	}
	return pgURL
}

// Redis returns the host:port of a fresh Redis.
func Redis(t *testing.T) string {
	t.Helper()
	return generic(t, "redis:7-alpine", "6379/tcp")
}

// ZooKeeper returns the host:port of a single-node ensemble.
func ZooKeeper(t *testing.T) string {
	t.Helper()
	return generic(t, "zookeeper:3.9", "2181/tcp")
}

func generic(t *testing.T, image string, port nat.Port) string {
	t.Helper()
	skip(t)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{string(port)},
			WaitingFor:   wait.ForListeningPort(port),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", image, err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	addr, err := c.PortEndpoint(ctx, port, "")
	if err != nil {
		t.Fatalf("%s endpoint: %v", image, err)
	}
	return addr
}
