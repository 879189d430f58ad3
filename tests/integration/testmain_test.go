package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// pgDSN is the DSN of the shared PostgreSQL container started once for the
// whole suite.
var pgDSN string

func TestMain(m *testing.M) {
	if os.Getenv("PLAYHUB_SKIP_PG_TESTS") != "" {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("playhub_test"),
		postgres.WithUsername("playhub"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	pgDSN, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = container.Terminate(ctx)
	os.Exit(code)
}

func requirePG(t *testing.T) {
	t.Helper()
	if pgDSN == "" {
		t.Skip("postgres container not available (PLAYHUB_SKIP_PG_TESTS set)")
	}
}
