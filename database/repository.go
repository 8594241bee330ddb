package database

import (
	"context"
	"errors"

	"carwash-ops-server/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrStaleWrite is returned when a guarded update matched zero rows
	ErrStaleWrite = errors.New("stale write: row changed since it was read")
	// ErrDuplicate is returned when a unique constraint rejects an insert
	ErrDuplicate = errors.New("duplicate record")
)

// PositionChannelPrefix prefixes the per-worker notification channel
const PositionChannelPrefix = "worker_location_"

// PositionChannel returns the notification channel for one worker
func PositionChannel(workerID string) string {
	return PositionChannelPrefix + workerID
}

// StatusChange is one order transition to be committed atomically. The
// order update only applies while the row still has FromStatus and
// FromVersion.
type StatusChange struct {
	OrderID     string
	FromStatus  models.OrderStatus
	FromVersion int
	ToStatus    models.OrderStatus
	// Assignment, when set, is inserted and every other active assignment
	// of the order is superseded.
	Assignment *models.WorkerAssignment
}

type OrderFilter struct {
	Status *models.OrderStatus
	Limit  int
	Offset int
}

type AlertFilter struct {
	Kind           models.AlertKind
	UnresolvedOnly bool
}

// Repository is the persistence contract shared by Store and MemoryStore
type Repository interface {
	FindOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error)
	OrderSnapshots(ctx context.Context) ([]models.OrderSnapshot, error)
	ListAssignments(ctx context.Context, orderID string) ([]models.WorkerAssignment, error)
	ListActiveAssignments(ctx context.Context) ([]models.WorkerAssignment, error)
	CommitTransition(ctx context.Context, change StatusChange) error

	InsertWorker(ctx context.Context, worker *models.Worker) error
	FindWorker(ctx context.Context, id string) (*models.Worker, error)
	FindWorkerByPrincipal(ctx context.Context, principalID string) (*models.Worker, error)
	ListWorkers(ctx context.Context) ([]models.Worker, error)
	SetWorkerActive(ctx context.Context, id string, active bool) (*models.Worker, error)
	SetWorkerDocument(ctx context.Context, id string, url string) (*models.Worker, error)
	UpdateWorkerPosition(ctx context.Context, id string, pos models.Position) error
	IncrementAssignedOrders(ctx context.Context, id string) error

	InsertPrincipal(ctx context.Context, principal *models.Principal) error
	FindPrincipal(ctx context.Context, id string) (*models.Principal, error)
	FindPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error)
	DeletePrincipal(ctx context.Context, id string) error

	InsertAlert(ctx context.Context, alert *models.OperatorAlert) error
	ListAlerts(ctx context.Context, filter AlertFilter) ([]models.OperatorAlert, error)
	ResolveAlert(ctx context.Context, id string) (*models.OperatorAlert, error)
}

// PositionFeed delivers worker position changes for the workers being listened to
type PositionFeed interface {
	Listen(workerID string) error
	Unlisten(workerID string) error
	Notifications() <-chan models.PositionUpdate
}
