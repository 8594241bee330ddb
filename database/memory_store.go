package database

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"carwash-ops-server/models"
)

// MemoryStore is an in-process Repository and PositionFeed. It keeps the
// same guarded-update contract as Store and is used for local runs and tests.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]models.User
	orders      map[string]models.Order
	assignments []models.WorkerAssignment
	workers     map[string]models.Worker
	principals  map[string]models.Principal
	alerts      []models.OperatorAlert

	listening map[string]bool
	updates   chan models.PositionUpdate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]models.User),
		orders:     make(map[string]models.Order),
		workers:    make(map[string]models.Worker),
		principals: make(map[string]models.Principal),
		listening:  make(map[string]bool),
		updates:    make(chan models.PositionUpdate, 64),
	}
}

// SeedUser stores a customer record
func (m *MemoryStore) SeedUser(user models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = models.NewID()
	}
	m.users[user.ID] = user
	return user
}

// SeedOrder stores an order as the booking app would create it
func (m *MemoryStore) SeedOrder(order models.Order) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.ID == "" {
		order.ID = models.NewID()
	}
	if order.Status == "" {
		order.Status = models.OrderStatusBooked
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.UpdatedAt = order.CreatedAt
	m.orders[order.ID] = order
	return order
}

func (m *MemoryStore) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	order.Customer = m.users[order.CustomerID]
	return &order, nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orders []models.Order
	for _, o := range m.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		o.Customer = m.users[o.CustomerID]
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	total := int64(len(orders))
	if filter.Offset > 0 {
		if filter.Offset >= len(orders) {
			orders = nil
		} else {
			orders = orders[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, total, nil
}

func (m *MemoryStore) OrderSnapshots(ctx context.Context) ([]models.OrderSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshots := make([]models.OrderSnapshot, 0, len(m.orders))
	for _, o := range m.orders {
		snapshots = append(snapshots, models.OrderSnapshot{
			ID:           o.ID,
			Status:       string(o.Status),
			TotalAmount:  o.TotalAmount,
			CreatedAt:    o.CreatedAt,
			CustomerID:   o.CustomerID,
			CustomerName: m.users[o.CustomerID].FullName,
		})
	}
	return snapshots, nil
}

func (m *MemoryStore) ListAssignments(ctx context.Context, orderID string) ([]models.WorkerAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.WorkerAssignment
	for _, a := range m.assignments {
		if a.OrderID != orderID {
			continue
		}
		if w, ok := m.workers[a.WorkerID]; ok {
			a.Worker = &w
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) ListActiveAssignments(ctx context.Context) ([]models.WorkerAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.WorkerAssignment
	for _, a := range m.assignments {
		if a.Status == models.AssignmentStatusActive {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CommitTransition(ctx context.Context, change StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[change.OrderID]
	if !ok || order.Status != change.FromStatus || order.Version != change.FromVersion {
		return ErrStaleWrite
	}

	now := time.Now()
	if change.Assignment != nil {
		a := *change.Assignment
		if a.ID == "" {
			a.ID = models.NewID()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.OrderID = change.OrderID
		a.Status = models.AssignmentStatusActive
		for i := range m.assignments {
			if m.assignments[i].OrderID == change.OrderID && m.assignments[i].Status == models.AssignmentStatusActive {
				m.assignments[i].Status = models.AssignmentStatusSuperseded
				m.assignments[i].SupersededAt = &now
			}
		}
		m.assignments = append(m.assignments, a)
		*change.Assignment = a
	}

	order.Status = change.ToStatus
	order.Version++
	order.UpdatedAt = now
	m.orders[order.ID] = order
	return nil
}

func (m *MemoryStore) InsertWorker(ctx context.Context, worker *models.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.workers {
		if w.PrincipalID == worker.PrincipalID {
			return ErrDuplicate
		}
	}
	if worker.ID == "" {
		worker.ID = models.NewID()
	}
	now := time.Now()
	worker.CreatedAt, worker.UpdatedAt = now, now
	m.workers[worker.ID] = *worker
	return nil
}

func (m *MemoryStore) FindWorker(ctx context.Context, id string) (*models.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (m *MemoryStore) FindWorkerByPrincipal(ctx context.Context, principalID string) (*models.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workers {
		if w.PrincipalID == principalID {
			return &w, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListWorkers(ctx context.Context) ([]models.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	workers := make([]models.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool {
		return workers[i].CreatedAt.After(workers[j].CreatedAt)
	})
	return workers, nil
}

func (m *MemoryStore) mutateWorker(id string, fn func(w *models.Worker)) (*models.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return nil, ErrNotFound
	}
	fn(&w)
	w.UpdatedAt = time.Now()
	m.workers[id] = w
	return &w, nil
}

func (m *MemoryStore) SetWorkerActive(ctx context.Context, id string, active bool) (*models.Worker, error) {
	return m.mutateWorker(id, func(w *models.Worker) { w.IsActive = active })
}

func (m *MemoryStore) SetWorkerDocument(ctx context.Context, id string, url string) (*models.Worker, error) {
	return m.mutateWorker(id, func(w *models.Worker) { w.IDDocumentURL = &url })
}

func (m *MemoryStore) IncrementAssignedOrders(ctx context.Context, id string) error {
	_, err := m.mutateWorker(id, func(w *models.Worker) { w.AssignedOrdersCount++ })
	return err
}

// UpdateWorkerPosition stores the position and, like the Postgres trigger,
// emits a notification when the worker is being listened to.
func (m *MemoryStore) UpdateWorkerPosition(ctx context.Context, id string, pos models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[id]
	if !ok {
		return ErrNotFound
	}
	lat, lng, at := pos.Latitude, pos.Longitude, pos.UpdatedAt
	w.Latitude, w.Longitude, w.LocationUpdatedAt = &lat, &lng, &at
	w.UpdatedAt = time.Now()
	m.workers[id] = w

	if m.listening[id] {
		select {
		case m.updates <- models.PositionUpdate{WorkerID: id, Position: pos}:
		default:
			log.Printf("⚠️ Position feed full, dropping update for worker %s", id)
		}
	}
	return nil
}

func (m *MemoryStore) InsertPrincipal(ctx context.Context, principal *models.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	principal.Email = strings.ToLower(strings.TrimSpace(principal.Email))
	for _, p := range m.principals {
		if p.Email == principal.Email {
			return ErrDuplicate
		}
	}
	if principal.ID == "" {
		principal.ID = models.NewID()
	}
	now := time.Now()
	principal.CreatedAt, principal.UpdatedAt = now, now
	m.principals[principal.ID] = *principal
	return nil
}

func (m *MemoryStore) FindPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) FindPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, p := range m.principals {
		if p.Email == email {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) DeletePrincipal(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.principals[id]; !ok {
		return ErrNotFound
	}
	delete(m.principals, id)
	return nil
}

func (m *MemoryStore) InsertAlert(ctx context.Context, alert *models.OperatorAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if alert.ID == "" {
		alert.ID = models.NewID()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	m.alerts = append(m.alerts, *alert)
	return nil
}

func (m *MemoryStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]models.OperatorAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.OperatorAlert
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		if filter.Kind != "" && a.Kind != filter.Kind {
			continue
		}
		if filter.UnresolvedOnly && a.Resolved {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *MemoryStore) ResolveAlert(ctx context.Context, id string) (*models.OperatorAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			now := time.Now()
			m.alerts[i].Resolved = true
			m.alerts[i].ResolvedAt = &now
			a := m.alerts[i]
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Listen(workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listening[workerID] = true
	return nil
}

func (m *MemoryStore) Unlisten(workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listening, workerID)
	return nil
}

func (m *MemoryStore) Notifications() <-chan models.PositionUpdate {
	return m.updates
}

// IsListening reports whether a LISTEN is held for the worker
func (m *MemoryStore) IsListening(workerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening[workerID]
}
