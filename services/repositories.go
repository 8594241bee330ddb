package services

import (
	"context"

	"carwash-ops-server/database"
	"carwash-ops-server/models"
)

type OrderRepository interface {
	FindOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, filter database.OrderFilter) ([]models.Order, int64, error)
	ListAssignments(ctx context.Context, orderID string) ([]models.WorkerAssignment, error)
	CommitTransition(ctx context.Context, change database.StatusChange) error
}

type WorkerRepository interface {
	InsertWorker(ctx context.Context, worker *models.Worker) error
	FindWorker(ctx context.Context, id string) (*models.Worker, error)
	FindWorkerByPrincipal(ctx context.Context, principalID string) (*models.Worker, error)
	ListWorkers(ctx context.Context) ([]models.Worker, error)
	SetWorkerActive(ctx context.Context, id string, active bool) (*models.Worker, error)
	SetWorkerDocument(ctx context.Context, id string, url string) (*models.Worker, error)
	UpdateWorkerPosition(ctx context.Context, id string, pos models.Position) error
	IncrementAssignedOrders(ctx context.Context, id string) error
}

type PrincipalRepository interface {
	InsertPrincipal(ctx context.Context, principal *models.Principal) error
	FindPrincipal(ctx context.Context, id string) (*models.Principal, error)
	FindPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error)
	DeletePrincipal(ctx context.Context, id string) error
}

type AlertRepository interface {
	InsertAlert(ctx context.Context, alert *models.OperatorAlert) error
	ListAlerts(ctx context.Context, filter database.AlertFilter) ([]models.OperatorAlert, error)
	ResolveAlert(ctx context.Context, id string) (*models.OperatorAlert, error)
}

type SnapshotReader interface {
	OrderSnapshots(ctx context.Context) ([]models.OrderSnapshot, error)
}
