// Package e2e exercises the full investigation pipeline against real
// Postgres and Redis backends, with only the LLM provider scripted. Each
// test gets its own migrated database and miniredis, wired exactly the way
// the production binary wires them.
package e2e

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/database"
	"github.com/argus-soc/argus/pkg/fpgov"
	"github.com/argus-soc/argus/pkg/ingest"
	"github.com/argus-soc/argus/pkg/models"
	"github.com/argus-soc/argus/pkg/orchestrator"
	"github.com/argus-soc/argus/pkg/services"
)

// TestApp is the wired engine under test.
type TestApp struct {
	DB       *sql.DB
	Rdb      *redis.Client
	Recorder *audit.Recorder

	Investigations  *services.InvestigationService
	Approvals       *services.ApprovalService
	Patterns        *services.PatternService
	Tenants         *services.TenantService
	ShadowDecisions *services.ShadowDecisionService

	Snapshot     *fpgov.Snapshot
	KillSwitches *fpgov.KillSwitchStore
	Governance   *fpgov.Governance
	Shadow       *fpgov.ShadowService

	LLM *ScriptedLLM
	Orc *orchestrator.Orchestrator

	emitter *audit.Emitter
	matcher *fpgov.Matcher
}

// StartTestApp boots Postgres (testcontainer or CI service), miniredis, and
// the full service graph. The audit stream goes to an in-memory recorder.
func StartTestApp(t *testing.T) *TestApp {
	t.Helper()
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		if testing.Short() {
			t.Skip("skipping container-backed e2e test in short mode")
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
	if os.Getenv("CI_DATABASE_URL") != "" {
		_, err = db.ExecContext(ctx, `
			TRUNCATE investigations, alert_queue, fp_patterns, approvals,
			         audit_events, spend_ledger, shadow_decisions, tenants,
			         taxonomy_techniques, incident_index`)
		require.NoError(t, err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app := &TestApp{
		DB:       db,
		Rdb:      rdb,
		Recorder: &audit.Recorder{},
		LLM:      NewScriptedLLM(),
	}
	emitter := audit.NewEmitter(app.Recorder, nil)
	app.emitter = emitter

	app.Investigations = services.NewInvestigationService(db)
	app.Approvals = services.NewApprovalService(db)
	app.Patterns = services.NewPatternService(db)
	app.Tenants = services.NewTenantService(db)
	app.ShadowDecisions = services.NewShadowDecisionService(db)
	intel := services.NewIntelService(rdb)

	app.KillSwitches = fpgov.NewKillSwitchStore(rdb, emitter)
	app.Snapshot = fpgov.NewSnapshot(app.Patterns, rdb, time.Minute)
	require.NoError(t, app.Snapshot.Reload(ctx))
	matcher := fpgov.NewMatcher(app.Snapshot, app.KillSwitches)
	app.matcher = matcher
	canary := fpgov.NewCanaryTracker(rdb, app.Patterns, emitter)
	app.Governance = fpgov.NewGovernance(app.Patterns, app.Investigations, emitter, rdb)
	app.Shadow = fpgov.NewShadowService(app.Tenants, app.ShadowDecisions, canary, emitter)

	app.Orc = orchestrator.New(orchestrator.Config{},
		app.Investigations, app.Approvals, app.LLM, matcher, app.Shadow,
		ingest.NewParser(),
		orchestrator.DefaultEnrichers(intel, app.Investigations),
		nil, emitter)
	return app
}

// SignOffTenant takes a tenant out of shadow mode so automation runs live.
func (app *TestApp) SignOffTenant(t *testing.T, tenantID string) {
	t.Helper()
	cfg := models.NewTenantConfig(tenantID)
	cfg.ShadowMode = false
	cfg.GoLiveSignedOff = true
	require.NoError(t, app.Tenants.SaveTenantConfig(context.Background(), &cfg))
}

// ApprovePattern runs the two-person approval and refreshes the snapshot.
func (app *TestApp) ApprovePattern(t *testing.T, patternID string) {
	t.Helper()
	ctx := context.Background()
	_, err := app.Governance.Approve(ctx, patternID, "alice@corp.example")
	require.NoError(t, err)
	_, err = app.Governance.Approve(ctx, patternID, "bob@corp.example")
	require.NoError(t, err)
	require.NoError(t, app.Snapshot.Reload(ctx))
}

// newAlert builds an impossible-travel alert for tenantID with one account
// and one IP entity in the raw payload.
func newAlert(alertID, tenantID string) *models.Alert {
	return &models.Alert{
		ID:          alertID,
		Source:      "sentinel",
		Timestamp:   time.Now().UTC(),
		Title:       "Impossible travel activity",
		Severity:    models.SeverityHigh,
		Tactics:     []string{"TA0001"},
		Techniques:  []string{"T1078"},
		Product:     "Azure AD Identity Protection",
		TenantID:    tenantID,
		RawEntities: map[string]any{
			"accounts": []any{"jdoe@corp.example"},
			"ips":      []any{map[string]any{"value": "198.51.100.7", "confidence": 0.9}},
		},
	}
}
