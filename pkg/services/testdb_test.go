package services

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/argus-soc/argus/pkg/database"
)

// newTestDB opens a migrated database. In CI (CI_DATABASE_URL set) it
// connects to the external service container; locally it starts a
// testcontainer.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		if testing.Short() {
			t.Skip("skipping container-backed service test in short mode")
		}
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("argus_test"),
			postgres.WithUsername("argus"),
			postgres.WithPassword("argus"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.RunMigrations(ctx, db, "argus_test"))

	// CI reuses one database across tests; containers start clean.
	if os.Getenv("CI_DATABASE_URL") != "" {
		_, err = db.ExecContext(ctx, `
			TRUNCATE investigations, alert_queue, fp_patterns, approvals,
			         audit_events, spend_ledger, shadow_decisions, tenants,
			         taxonomy_techniques, incident_index`)
		require.NoError(t, err)
	}
	return db
}
