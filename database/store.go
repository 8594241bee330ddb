package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"carwash-ops-server/models"
)

// Store is the Postgres-backed Repository
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for health checks
func (s *Store) DB() *gorm.DB {
	return s.db
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func (s *Store) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Vehicle").
		Preload("Address").
		Preload("Items").
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var orders []models.Order
	if err := query.Preload("Customer").Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

type snapshotRow struct {
	ID           string
	Status       string
	TotalAmount  float64
	CreatedAt    *time.Time
	CustomerID   *string
	CustomerName *string
}

// OrderSnapshots reads the dashboard projection of every order
func (s *Store) OrderSnapshots(ctx context.Context) ([]models.OrderSnapshot, error) {
	var rows []snapshotRow
	err := s.db.WithContext(ctx).
		Table("orders").
		Select("orders.id, orders.status, orders.total_amount, orders.created_at, orders.customer_id, users.full_name AS customer_name").
		Joins("LEFT JOIN users ON users.id = orders.customer_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read order snapshots: %w", err)
	}

	snapshots := make([]models.OrderSnapshot, 0, len(rows))
	for _, r := range rows {
		snap := models.OrderSnapshot{
			ID:          r.ID,
			Status:      r.Status,
			TotalAmount: r.TotalAmount,
		}
		if r.CreatedAt != nil {
			snap.CreatedAt = *r.CreatedAt
		}
		if r.CustomerID != nil {
			snap.CustomerID = *r.CustomerID
		}
		if r.CustomerName != nil {
			snap.CustomerName = strings.TrimSpace(*r.CustomerName)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func (s *Store) ListAssignments(ctx context.Context, orderID string) ([]models.WorkerAssignment, error) {
	var assignments []models.WorkerAssignment
	err := s.db.WithContext(ctx).
		Preload("Worker").
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

func (s *Store) ListActiveAssignments(ctx context.Context) ([]models.WorkerAssignment, error) {
	var assignments []models.WorkerAssignment
	err := s.db.WithContext(ctx).
		Where("status = ?", models.AssignmentStatusActive).
		Order("created_at DESC").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("list active assignments: %w", err)
	}
	return assignments, nil
}

// CommitTransition applies a status change in one transaction: insert the new
// assignment, supersede the previous active ones, then move the order. The
// order update is guarded by the observed status and version; if it matches
// nothing the whole transaction rolls back with ErrStaleWrite.
func (s *Store) CommitTransition(ctx context.Context, change StatusChange) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		if change.Assignment != nil {
			change.Assignment.OrderID = change.OrderID
			change.Assignment.Status = models.AssignmentStatusActive
			if err := tx.Create(change.Assignment).Error; err != nil {
				return fmt.Errorf("insert assignment: %w", translate(err))
			}

			if err := tx.Model(&models.WorkerAssignment{}).
				Where("order_id = ? AND status = ? AND id <> ?",
					change.OrderID, models.AssignmentStatusActive, change.Assignment.ID).
				Updates(map[string]interface{}{
					"status":        models.AssignmentStatusSuperseded,
					"superseded_at": now,
				}).Error; err != nil {
				return fmt.Errorf("supersede assignments: %w", err)
			}
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ? AND version = ?", change.OrderID, change.FromStatus, change.FromVersion).
			Updates(map[string]interface{}{
				"status":     change.ToStatus,
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("update order status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleWrite
		}
		return nil
	})
}

func (s *Store) InsertWorker(ctx context.Context, worker *models.Worker) error {
	if err := s.db.WithContext(ctx).Create(worker).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) FindWorker(ctx context.Context, id string) (*models.Worker, error) {
	var worker models.Worker
	if err := s.db.WithContext(ctx).First(&worker, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &worker, nil
}

func (s *Store) FindWorkerByPrincipal(ctx context.Context, principalID string) (*models.Worker, error) {
	var worker models.Worker
	if err := s.db.WithContext(ctx).Where("principal_id = ?", principalID).First(&worker).Error; err != nil {
		return nil, translate(err)
	}
	return &worker, nil
}

func (s *Store) ListWorkers(ctx context.Context) ([]models.Worker, error) {
	var workers []models.Worker
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&workers).Error; err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return workers, nil
}

func (s *Store) updateWorker(ctx context.Context, id string, fields map[string]interface{}) (*models.Worker, error) {
	fields["updated_at"] = time.Now()
	res := s.db.WithContext(ctx).Model(&models.Worker{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindWorker(ctx, id)
}

func (s *Store) SetWorkerActive(ctx context.Context, id string, active bool) (*models.Worker, error) {
	return s.updateWorker(ctx, id, map[string]interface{}{"is_active": active})
}

func (s *Store) SetWorkerDocument(ctx context.Context, id string, url string) (*models.Worker, error) {
	return s.updateWorker(ctx, id, map[string]interface{}{"id_document_url": url})
}

// UpdateWorkerPosition replaces the worker's position; the table trigger
// turns the write into a notification on the worker's channel.
func (s *Store) UpdateWorkerPosition(ctx context.Context, id string, pos models.Position) error {
	_, err := s.updateWorker(ctx, id, map[string]interface{}{
		"latitude":            pos.Latitude,
		"longitude":           pos.Longitude,
		"location_updated_at": pos.UpdatedAt,
	})
	return err
}

func (s *Store) IncrementAssignedOrders(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Worker{}).
		Where("id = ?", id).
		UpdateColumn("assigned_orders_count", gorm.Expr("assigned_orders_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) InsertPrincipal(ctx context.Context, principal *models.Principal) error {
	principal.Email = strings.ToLower(strings.TrimSpace(principal.Email))
	if err := s.db.WithContext(ctx).Create(principal).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) FindPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	var principal models.Principal
	if err := s.db.WithContext(ctx).First(&principal, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &principal, nil
}

func (s *Store) FindPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error) {
	var principal models.Principal
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&principal).Error
	if err != nil {
		return nil, translate(err)
	}
	return &principal, nil
}

func (s *Store) DeletePrincipal(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.Principal{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) InsertAlert(ctx context.Context, alert *models.OperatorAlert) error {
	return translate(s.db.WithContext(ctx).Create(alert).Error)
}

func (s *Store) ListAlerts(ctx context.Context, filter AlertFilter) ([]models.OperatorAlert, error) {
	query := s.db.WithContext(ctx).Model(&models.OperatorAlert{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.UnresolvedOnly {
		query = query.Where("resolved = ?", false)
	}

	var alerts []models.OperatorAlert
	if err := query.Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

func (s *Store) ResolveAlert(ctx context.Context, id string) (*models.OperatorAlert, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.OperatorAlert{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"resolved": true, "resolved_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var alert models.OperatorAlert
	if err := s.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &alert, nil
}
