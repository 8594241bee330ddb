package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carwash-ops-server/database"
	"carwash-ops-server/models"
	"carwash-ops-server/services"
)

type flakyDeleter struct {
	err   error
	calls []string
}

func (d *flakyDeleter) DeletePrincipal(ctx context.Context, principalID string) error {
	d.calls = append(d.calls, principalID)
	return d.err
}

type countingCleaner struct{ calls int }

func (c *countingCleaner) Cleanup(maxIdle time.Duration) int {
	c.calls++
	return 0
}

func newJobFixture(deleter PrincipalDeleter) (*ReconciliationJob, *database.MemoryStore, *services.AlertService, *countingCleaner) {
	store := database.NewMemoryStore()
	alerts := services.NewAlertService(store, nil)
	cleaner := &countingCleaner{}
	return NewReconciliationJob(store, alerts, deleter, cleaner, time.Hour), store, alerts, cleaner
}

func TestReconcileRetriesOrphanedPrincipals(t *testing.T) {
	deleter := &flakyDeleter{err: errors.New("still down")}
	job, store, alerts, cleaner := newJobFixture(deleter)
	ctx := context.Background()

	_, err := alerts.RaiseAlert(ctx, models.AlertOrphanedIdentity, "principal-1", "orphan", nil)
	require.NoError(t, err)

	report, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphansPending)
	assert.Equal(t, 0, report.OrphansDeleted)
	assert.Equal(t, 1, cleaner.calls)

	open, err := store.ListAlerts(ctx, database.AlertFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	deleter.err = nil
	report, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphansDeleted)
	assert.Equal(t, []string{"principal-1", "principal-1"}, deleter.calls)

	open, err = store.ListAlerts(ctx, database.AlertFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestReconcileTreatsMissingPrincipalAsDeleted(t *testing.T) {
	job, store, alerts, _ := newJobFixture(&flakyDeleter{err: database.ErrNotFound})
	ctx := context.Background()

	_, err := alerts.RaiseAlert(ctx, models.AlertOrphanedIdentity, "gone", "orphan", nil)
	require.NoError(t, err)

	report, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphansDeleted)

	open, err := store.ListAlerts(ctx, database.AlertFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestReconcileResolvesOrphanThatGainedAWorker(t *testing.T) {
	deleter := &flakyDeleter{}
	job, store, alerts, _ := newJobFixture(deleter)
	ctx := context.Background()

	require.NoError(t, store.InsertWorker(ctx, &models.Worker{PrincipalID: "principal-2", Name: "late"}))
	_, err := alerts.RaiseAlert(ctx, models.AlertOrphanedIdentity, "principal-2", "orphan", nil)
	require.NoError(t, err)

	_, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleter.calls, "a principal bound to a worker is never deleted")

	open, err := store.ListAlerts(ctx, database.AlertFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)
}

type unreachableWorkers struct {
	*database.MemoryStore
}

func (u unreachableWorkers) FindWorkerByPrincipal(ctx context.Context, principalID string) (*models.Worker, error) {
	return nil, errors.New("connection reset")
}

func TestReconcileKeepsOrphanWhenWorkerLookupFails(t *testing.T) {
	store := database.NewMemoryStore()
	alerts := services.NewAlertService(store, nil)
	deleter := &flakyDeleter{}
	job := NewReconciliationJob(unreachableWorkers{store}, alerts, deleter, &countingCleaner{}, time.Hour)
	ctx := context.Background()

	_, err := alerts.RaiseAlert(ctx, models.AlertOrphanedIdentity, "principal-3", "orphan", nil)
	require.NoError(t, err)

	report, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphansPending)
	assert.Equal(t, 0, report.OrphansDeleted)
	assert.Empty(t, deleter.calls, "a failed lookup never leads to a delete")

	open, err := store.ListAlerts(ctx, database.AlertFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestReconcileRaisesDriftOnce(t *testing.T) {
	job, store, _, _ := newJobFixture(&flakyDeleter{})
	ctx := context.Background()

	order := store.SeedOrder(models.Order{CustomerID: "c1", Status: models.OrderStatusConfirmed})
	require.NoError(t, store.CommitTransition(ctx, database.StatusChange{
		OrderID:     order.ID,
		FromStatus:  models.OrderStatusConfirmed,
		FromVersion: 0,
		ToStatus:    models.OrderStatusConfirmed,
		Assignment:  &models.WorkerAssignment{WorkerID: "w1"},
	}))

	healthy := store.SeedOrder(models.Order{CustomerID: "c2", Status: models.OrderStatusConfirmed})
	require.NoError(t, store.CommitTransition(ctx, database.StatusChange{
		OrderID:     healthy.ID,
		FromStatus:  models.OrderStatusConfirmed,
		FromVersion: 0,
		ToStatus:    models.OrderStatusWorkerAssigned,
		Assignment:  &models.WorkerAssignment{WorkerID: "w2"},
	}))

	report, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DriftDetected)
	assert.Equal(t, 1, report.DriftRaised)

	report, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DriftDetected)
	assert.Equal(t, 0, report.DriftRaised, "an open alert is not duplicated")

	drift, err := store.ListAlerts(ctx, database.AlertFilter{Kind: models.AlertAssignmentDrift})
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, order.ID, drift[0].SubjectID)
}

func TestReconciliationJobStartStop(t *testing.T) {
	job, _, _, _ := newJobFixture(&flakyDeleter{})
	job.interval = 10 * time.Millisecond
	job.Start()
	time.Sleep(30 * time.Millisecond)
	job.Stop()

	select {
	case <-job.stopped:
	default:
		t.Fatal("job loop still running after Stop")
	}
}
