//go:build integration

// Package containers starts throwaway database servers for integration tests.
package containers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gaborage/go-bricks-dbcore/config"
)

// PostgreSQLOptions configures the PostgreSQL container.
type PostgreSQLOptions struct {
	ImageTag       string
	Username       string
	Password       string
	Database       string
	StartupTimeout time.Duration
}

// DefaultPostgreSQLOptions returns options for a postgres:17-alpine server.
func DefaultPostgreSQLOptions() PostgreSQLOptions {
	return PostgreSQLOptions{
		ImageTag:       "17-alpine",
		Username:       "testuser",
		Password:       "testpass",
		Database:       "testdb",
		StartupTimeout: 60 * time.Second,
	}
}

// PostgreSQL is a running PostgreSQL container.
type PostgreSQL struct {
	container *postgres.PostgresContainer
	opts      PostgreSQLOptions
	host      string
	port      int
}

// StartPostgreSQL starts a container and terminates it when t finishes. The
// test is skipped when Docker is not reachable.
func StartPostgreSQL(ctx context.Context, t *testing.T, opts PostgreSQLOptions) *PostgreSQL {
	t.Helper()

	if !dockerAvailable(ctx) {
		t.Skip("Docker is not available - skipping integration test")
	}

	pg, err := postgres.Run(ctx,
		fmt.Sprintf("postgres:%s", opts.ImageTag),
		postgres.WithDatabase(opts.Database),
		postgres.WithUsername(opts.Username),
		postgres.WithPassword(opts.Password),
		testcontainers.WithWaitStrategy(
			// Postgres restarts once after initdb.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(opts.StartupTimeout),
		),
	)
	if err != nil {
		t.Fatalf("failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := pg.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	return &PostgreSQL{container: pg, opts: opts, host: host, port: port.Int()}
}

// DatabaseConfig returns a connection group pointing at the container.
func (p *PostgreSQL) DatabaseConfig() *config.DatabaseConfig {
	cfg := config.DefaultDatabaseConfig(config.PostgreSQL)
	cfg.Host = p.host
	cfg.Port = p.port
	cfg.Username = p.opts.Username
	cfg.Password = p.opts.Password
	cfg.Database = p.opts.Database
	cfg.PostgreSQL.SSLMode = "disable"
	return &cfg
}
