package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"carwash-ops-server/database"
	"carwash-ops-server/models"
)

// ReconcileStore is the read side the job inspects
type ReconcileStore interface {
	FindOrder(ctx context.Context, id string) (*models.Order, error)
	ListActiveAssignments(ctx context.Context) ([]models.WorkerAssignment, error)
	FindWorkerByPrincipal(ctx context.Context, principalID string) (*models.Worker, error)
}

// AlertManager lists, raises and resolves operator alerts
type AlertManager interface {
	ListAlerts(ctx context.Context, filter database.AlertFilter) ([]models.OperatorAlert, error)
	RaiseAlert(ctx context.Context, kind models.AlertKind, subjectID, message string, data interface{}) (*models.OperatorAlert, error)
	ResolveAlert(ctx context.Context, id string) (*models.OperatorAlert, error)
}

// PrincipalDeleter removes an identity principal
type PrincipalDeleter interface {
	DeletePrincipal(ctx context.Context, principalID string) error
}

// LimiterCleaner drops idle rate limiter entries
type LimiterCleaner interface {
	Cleanup(maxIdle time.Duration) int
}

// ReconciliationReport summarises one pass
type ReconciliationReport struct {
	OrphansDeleted int
	OrphansPending int
	DriftDetected  int
	DriftRaised    int
}

// ReconciliationJob periodically retries orphaned identity deletes and
// reports orders whose status lags behind their active assignment.
type ReconciliationJob struct {
	store       ReconcileStore
	alerts      AlertManager
	identity    PrincipalDeleter
	limiter     LimiterCleaner
	interval    time.Duration
	passTimeout time.Duration
	stopChan    chan bool
	stopped     chan struct{}
}

func NewReconciliationJob(store ReconcileStore, alerts AlertManager, identity PrincipalDeleter, limiter LimiterCleaner, interval time.Duration) *ReconciliationJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReconciliationJob{
		store:       store,
		alerts:      alerts,
		identity:    identity,
		limiter:     limiter,
		interval:    interval,
		passTimeout: time.Minute,
		stopChan:    make(chan bool),
		stopped:     make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (j *ReconciliationJob) Start() {
	go j.run()
	log.Printf("🚀 Reconciliation job started (every %v)", j.interval)
}

// Stop stops the loop and waits for a running pass to finish
func (j *ReconciliationJob) Stop() {
	j.stopChan <- true
	<-j.stopped
	log.Println("🛑 Reconciliation job stopped")
}

func (j *ReconciliationJob) run() {
	defer close(j.stopped)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), j.passTimeout)
			report, err := j.RunOnce(ctx)
			cancel()
			if err != nil {
				log.Printf("❌ Reconciliation pass failed: %v", err)
				continue
			}
			if report.OrphansDeleted+report.OrphansPending+report.DriftDetected > 0 {
				log.Printf("🔁 Reconciliation: %d orphans deleted, %d pending, %d drifted orders (%d new alerts)",
					report.OrphansDeleted, report.OrphansPending, report.DriftDetected, report.DriftRaised)
			}
		case <-j.stopChan:
			return
		}
	}
}

// RunOnce performs a single reconciliation pass
func (j *ReconciliationJob) RunOnce(ctx context.Context) (ReconciliationReport, error) {
	var report ReconciliationReport

	orphanErr := j.retryOrphans(ctx, &report)
	driftErr := j.detectDrift(ctx, &report)

	if j.limiter != nil {
		if removed := j.limiter.Cleanup(30 * time.Minute); removed > 0 {
			log.Printf("🧹 Removed %d idle rate limiters", removed)
		}
	}

	return report, errors.Join(orphanErr, driftErr)
}

// retryOrphans deletes principals left behind by a failed provisioning
// rollback. An alert is resolved once its principal is gone or has since
// been bound to a worker.
func (j *ReconciliationJob) retryOrphans(ctx context.Context, report *ReconciliationReport) error {
	alerts, err := j.alerts.ListAlerts(ctx, database.AlertFilter{Kind: models.AlertOrphanedIdentity, UnresolvedOnly: true})
	if err != nil {
		return fmt.Errorf("list orphan alerts: %w", err)
	}

	for _, alert := range alerts {
		principalID := alert.SubjectID

		_, err := j.store.FindWorkerByPrincipal(ctx, principalID)
		if err == nil {
			log.Printf("✅ Principal %s now has a worker record, resolving alert %s", principalID, alert.ID)
			j.resolve(ctx, alert.ID)
			continue
		}
		if !errors.Is(err, database.ErrNotFound) {
			log.Printf("⚠️ Could not check worker for orphaned principal %s: %v", principalID, err)
			report.OrphansPending++
			continue
		}

		err = j.identity.DeletePrincipal(ctx, principalID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			log.Printf("⚠️ Orphaned principal %s still cannot be deleted: %v", principalID, err)
			report.OrphansPending++
			continue
		}

		report.OrphansDeleted++
		j.resolve(ctx, alert.ID)
	}
	return nil
}

// detectDrift flags orders that still read Booked or Confirmed while an
// active assignment exists for them.
func (j *ReconciliationJob) detectDrift(ctx context.Context, report *ReconciliationReport) error {
	active, err := j.store.ListActiveAssignments(ctx)
	if err != nil {
		return fmt.Errorf("list active assignments: %w", err)
	}
	if len(active) == 0 {
		return nil
	}

	open, err := j.alerts.ListAlerts(ctx, database.AlertFilter{Kind: models.AlertAssignmentDrift, UnresolvedOnly: true})
	if err != nil {
		return fmt.Errorf("list drift alerts: %w", err)
	}
	alerted := make(map[string]bool, len(open))
	for _, a := range open {
		alerted[a.SubjectID] = true
	}

	seen := make(map[string]bool)
	for _, assignment := range active {
		if seen[assignment.OrderID] {
			continue
		}
		seen[assignment.OrderID] = true

		order, err := j.store.FindOrder(ctx, assignment.OrderID)
		if err != nil {
			log.Printf("⚠️ Active assignment %s points at unreadable order %s: %v", assignment.ID, assignment.OrderID, err)
			continue
		}
		if order.Status != models.OrderStatusBooked && order.Status != models.OrderStatusConfirmed {
			continue
		}

		report.DriftDetected++
		log.Printf("⚠️ Order %s is %q but worker %s holds active assignment %s", order.ID, order.Status, assignment.WorkerID, assignment.ID)
		if alerted[order.ID] {
			continue
		}

		_, err = j.alerts.RaiseAlert(ctx, models.AlertAssignmentDrift, order.ID,
			fmt.Sprintf("Order %s is %s but has an active assignment to worker %s", order.ID, order.Status, assignment.WorkerID),
			map[string]string{
				"order_id":      order.ID,
				"status":        string(order.Status),
				"worker_id":     assignment.WorkerID,
				"assignment_id": assignment.ID,
			})
		if err != nil {
			log.Printf("❌ Failed to raise drift alert for order %s: %v", order.ID, err)
			continue
		}
		report.DriftRaised++
	}
	return nil
}

func (j *ReconciliationJob) resolve(ctx context.Context, alertID string) {
	if _, err := j.alerts.ResolveAlert(ctx, alertID); err != nil {
		log.Printf("❌ Failed to resolve alert %s: %v", alertID, err)
	}
}
