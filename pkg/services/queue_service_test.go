package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-soc/argus/pkg/models"
)

func TestQueueEnqueueDeduplicates(t *testing.T) {
	db := newTestDB(t)
	svc := NewQueueService(db)
	ctx := context.Background()

	alert := testAlert("alert-q1", "tenant-a")
	require.NoError(t, svc.Enqueue(ctx, alert))
	require.NoError(t, svc.Enqueue(ctx, alert), "intake retries are a no-op")

	depth, err := svc.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	// Same alert id under another tenant is a distinct item.
	require.NoError(t, svc.Enqueue(ctx, testAlert("alert-q1", "tenant-b")))
	depth, err = svc.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

func TestQueueEnqueueValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewQueueService(db)
	ctx := context.Background()

	assert.True(t, IsValidationError(svc.Enqueue(ctx, &models.Alert{ID: "a"})))
	assert.True(t, IsValidationError(svc.Enqueue(ctx, &models.Alert{TenantID: "t"})))
}

func TestQueueClaimCompleteLifecycle(t *testing.T) {
	db := newTestDB(t)
	svc := NewQueueService(db)
	ctx := context.Background()

	require.NoError(t, svc.Enqueue(ctx, testAlert("alert-q2", "tenant-a")))

	item, err := svc.ClaimNext(ctx, "pod-1-worker-0")
	require.NoError(t, err)
	assert.Equal(t, "alert-q2", item.AlertID)
	assert.Equal(t, 1, item.Attempts)
	require.NotNil(t, item.Alert)
	assert.Equal(t, "Impossible travel detected", item.Alert.Title)

	// Nothing left to claim while the item is held.
	_, err = svc.ClaimNext(ctx, "pod-1-worker-1")
	assert.ErrorIs(t, err, ErrNotFound)

	active, err := svc.ActiveCount(ctx, "pod-1")
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	require.NoError(t, svc.Heartbeat(ctx, item.ID))
	require.NoError(t, svc.Complete(ctx, item.ID))

	active, err = svc.ActiveCount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, active)
}

func TestQueueFailRequeuesUntilBudgetSpent(t *testing.T) {
	db := newTestDB(t)
	svc := NewQueueService(db)
	ctx := context.Background()

	require.NoError(t, svc.Enqueue(ctx, testAlert("alert-q3", "tenant-a")))

	item, err := svc.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	require.NoError(t, svc.Fail(ctx, item.ID, "provider timeout", 3))

	// First failure requeues.
	item, err = svc.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	assert.Equal(t, 2, item.Attempts)
	require.NoError(t, svc.Fail(ctx, item.ID, "provider timeout", 3))

	item, err = svc.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	assert.Equal(t, 3, item.Attempts)
	require.NoError(t, svc.Fail(ctx, item.ID, "provider timeout", 3))

	// Budget spent; the item is parked dead, not requeued.
	_, err = svc.ClaimNext(ctx, "pod-1")
	assert.ErrorIs(t, err, ErrNotFound)

	var status, lastErr string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT status, last_error FROM alert_queue WHERE id = $1`, item.ID).
		Scan(&status, &lastErr))
	assert.Equal(t, QueueStatusDead, status)
	assert.Equal(t, "provider timeout", lastErr)
}

func TestQueueRequeueStale(t *testing.T) {
	db := newTestDB(t)
	svc := NewQueueService(db)
	ctx := context.Background()

	require.NoError(t, svc.Enqueue(ctx, testAlert("alert-q4", "tenant-a")))
	item, err := svc.ClaimNext(ctx, "pod-dead")
	require.NoError(t, err)

	// A live heartbeat keeps the claim.
	requeued, err := svc.RequeueStale(ctx, time.Now().UTC().Add(-time.Minute), 5)
	require.NoError(t, err)
	assert.Empty(t, requeued)

	// Stop heartbeating long enough and the orphan scan takes it back.
	requeued, err = svc.RequeueStale(ctx, time.Now().UTC().Add(time.Minute), 5)
	require.NoError(t, err)
	require.Len(t, requeued, 1)
	assert.Equal(t, item.ID, requeued[0].ID)

	reclaimed, err := svc.ClaimNext(ctx, "pod-alive")
	require.NoError(t, err)
	assert.Equal(t, "alert-q4", reclaimed.AlertID)
	assert.Equal(t, 2, reclaimed.Attempts)
}

func TestQueueReleaseClaimsOnRestart(t *testing.T) {
	db := newTestDB(t)
	svc := NewQueueService(db)
	ctx := context.Background()

	require.NoError(t, svc.Enqueue(ctx, testAlert("alert-q5", "tenant-a")))
	require.NoError(t, svc.Enqueue(ctx, testAlert("alert-q6", "tenant-a")))

	_, err := svc.ClaimNext(ctx, "pod-7-worker-0")
	require.NoError(t, err)
	other, err := svc.ClaimNext(ctx, "pod-8-worker-0")
	require.NoError(t, err)

	released, err := svc.ReleaseClaims(ctx, "pod-7")
	require.NoError(t, err)
	require.Len(t, released, 1, "only the restarting pod's claims are released")

	active, err := svc.ActiveCount(ctx, "pod-8")
	require.NoError(t, err)
	assert.Equal(t, 1, active)
	assert.Equal(t, "alert-q6", other.AlertID)
}
