package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"carwash-ops-server/database"
	"carwash-ops-server/models"
	"carwash-ops-server/types"
)

// WorkerLookup is the part of the worker store the coordinator needs
type WorkerLookup interface {
	FindWorker(ctx context.Context, id string) (*models.Worker, error)
	IncrementAssignedOrders(ctx context.Context, id string) error
}

// AssignmentCoordinator owns the order state machine and the assignment
// write sequence. It holds no per-order state; the store's guarded update
// is the only serialization point.
type AssignmentCoordinator struct {
	orders   OrderRepository
	workers  WorkerLookup
	notifier OrderEventNotifier
	now      func() time.Time
}

func NewAssignmentCoordinator(orders OrderRepository, workers WorkerLookup, notifier OrderEventNotifier) *AssignmentCoordinator {
	return &AssignmentCoordinator{
		orders:   orders,
		workers:  workers,
		notifier: notifier,
		now:      time.Now,
	}
}

// TransitionPayload carries trigger specific input
type TransitionPayload struct {
	WorkerID string
}

type TransitionResult struct {
	Order      *models.Order            `json:"order"`
	From       models.OrderStatus       `json:"from"`
	Trigger    models.OrderTrigger      `json:"trigger"`
	Assignment *models.WorkerAssignment `json:"assignment,omitempty"`
}

// OrderDetail is an order with its assignment history resolved
type OrderDetail struct {
	Order           *models.Order             `json:"order"`
	EffectiveWorker *models.WorkerAssignment  `json:"effective_assignment"`
	Assignments     []models.WorkerAssignment `json:"assignments"`
	AllowedTriggers []models.OrderTrigger     `json:"allowed_triggers"`
}

// Transition applies trigger to the order if the transition table allows it
func (c *AssignmentCoordinator) Transition(ctx context.Context, orderID string, trigger models.OrderTrigger, payload TransitionPayload) (*TransitionResult, error) {
	order, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return c.transitionFrom(ctx, order, trigger, payload)
}

// transitionFrom applies trigger against the order as it was observed. The
// commit is guarded by that status and version, so anything that changed the
// order since it was read surfaces as ErrConcurrentModification.
func (c *AssignmentCoordinator) transitionFrom(ctx context.Context, order *models.Order, trigger models.OrderTrigger, payload TransitionPayload) (*TransitionResult, error) {
	orderID := order.ID
	fail := func(err error) error {
		return &TransitionError{OrderID: orderID, Status: order.Status, Trigger: trigger, Err: err}
	}

	to, ok := models.NextStatus(order.Status, trigger)
	if !ok {
		return nil, fail(ErrInvalidTransition)
	}

	change := database.StatusChange{
		OrderID:     order.ID,
		FromStatus:  order.Status,
		FromVersion: order.Version,
		ToStatus:    to,
	}

	if trigger.AssignsWorker() {
		assignment, err := c.prepareAssignment(ctx, order, trigger, payload.WorkerID)
		if err != nil {
			return nil, fail(err)
		}
		change.Assignment = assignment
	}

	if err := c.orders.CommitTransition(ctx, change); err != nil {
		if errors.Is(err, database.ErrStaleWrite) {
			log.Printf("⚠️ Order %s changed while applying %s", orderID, trigger)
			return nil, fail(ErrConcurrentModification)
		}
		return nil, fmt.Errorf("commit %s for order %s: %w", trigger, orderID, err)
	}

	log.Printf("✅ Order %s: %s -> %s (%s)", orderID, order.Status, to, trigger)

	result := &TransitionResult{
		From:       order.Status,
		Trigger:    trigger,
		Assignment: change.Assignment,
	}

	if change.Assignment != nil {
		if err := c.workers.IncrementAssignedOrders(ctx, change.Assignment.WorkerID); err != nil {
			log.Printf("⚠️ Failed to bump assigned order count for worker %s: %v", change.Assignment.WorkerID, err)
		}
	}

	updated, err := c.orders.FindOrder(ctx, orderID)
	if err != nil {
		log.Printf("⚠️ Failed to reload order %s after transition: %v", orderID, err)
		order.Status = to
		order.Version++
		updated = order
	}
	result.Order = updated

	c.publish(ctx, orderID, result.From, to, trigger, change.Assignment)

	return result, nil
}

// AcceptOrder confirms a booked order
func (c *AssignmentCoordinator) AcceptOrder(ctx context.Context, orderID string) (*TransitionResult, error) {
	return c.Transition(ctx, orderID, models.TriggerAccept, TransitionPayload{})
}

// DeclineOrder cancels a booked order
func (c *AssignmentCoordinator) DeclineOrder(ctx context.Context, orderID string) (*TransitionResult, error) {
	return c.Transition(ctx, orderID, models.TriggerDecline, TransitionPayload{})
}

// CancelOrder cancels an order from any non-terminal status
func (c *AssignmentCoordinator) CancelOrder(ctx context.Context, orderID string) (*TransitionResult, error) {
	return c.Transition(ctx, orderID, models.TriggerCancel, TransitionPayload{})
}

// AssignWorker assigns a worker to a confirmed order, or reassigns it when
// the order already has one.
func (c *AssignmentCoordinator) AssignWorker(ctx context.Context, orderID, workerID string) (*TransitionResult, error) {
	order, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	trigger := models.TriggerAssign
	if order.Status == models.OrderStatusWorkerAssigned {
		trigger = models.TriggerReassign
	}
	return c.transitionFrom(ctx, order, trigger, TransitionPayload{WorkerID: workerID})
}

// AdvanceStatus applies a trigger that needs no payload
func (c *AssignmentCoordinator) AdvanceStatus(ctx context.Context, orderID string, trigger models.OrderTrigger) (*TransitionResult, error) {
	return c.Transition(ctx, orderID, trigger, TransitionPayload{})
}

// AdvanceAssignedOrder applies trigger on behalf of workerID, who must be the
// effective worker of the order version being moved. A reassignment after
// the ownership check bumps the version and fails the commit.
func (c *AssignmentCoordinator) AdvanceAssignedOrder(ctx context.Context, orderID, workerID string, trigger models.OrderTrigger) (*TransitionResult, error) {
	order, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	effective, err := c.EffectiveWorker(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if effective == nil || effective.WorkerID != workerID {
		return nil, &TransitionError{OrderID: orderID, Status: order.Status, Trigger: trigger, Err: ErrNotEffectiveWorker}
	}

	return c.transitionFrom(ctx, order, trigger, TransitionPayload{})
}

// EffectiveWorker returns the most recent non-superseded assignment, whatever
// status the order row currently holds. Nil means nobody is assigned.
func (c *AssignmentCoordinator) EffectiveWorker(ctx context.Context, orderID string) (*models.WorkerAssignment, error) {
	assignments, err := c.orders.ListAssignments(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return models.EffectiveAssignment(assignments), nil
}

func (c *AssignmentCoordinator) GetOrder(ctx context.Context, orderID string) (*OrderDetail, error) {
	order, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	assignments, err := c.orders.ListAssignments(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &OrderDetail{
		Order:           order,
		EffectiveWorker: models.EffectiveAssignment(assignments),
		Assignments:     assignments,
		AllowedTriggers: models.AllowedTriggers(order.Status),
	}, nil
}

func (c *AssignmentCoordinator) ListOrders(ctx context.Context, filter database.OrderFilter) ([]models.Order, int64, error) {
	return c.orders.ListOrders(ctx, filter)
}

func (c *AssignmentCoordinator) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := c.orders.FindOrder(ctx, orderID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	return order, nil
}

func (c *AssignmentCoordinator) prepareAssignment(ctx context.Context, order *models.Order, trigger models.OrderTrigger, workerID string) (*models.WorkerAssignment, error) {
	if workerID == "" {
		return nil, ErrWorkerRequired
	}

	worker, err := c.workers.FindWorker(ctx, workerID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrWorkerNotFound
	}
	if err != nil {
		return nil, err
	}
	if !worker.IsActive {
		return nil, ErrWorkerInactive
	}

	if trigger == models.TriggerReassign {
		current, err := c.EffectiveWorker(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current != nil && current.WorkerID == workerID {
			return nil, ErrAlreadyAssigned
		}
	}

	assignment := &models.WorkerAssignment{
		ID:        models.NewID(),
		OrderID:   order.ID,
		WorkerID:  worker.ID,
		Status:    models.AssignmentStatusActive,
		CreatedAt: c.now(),
	}
	if session, ok := types.SessionFrom(ctx); ok && session.PrincipalID != "" {
		actor := session.PrincipalID
		assignment.AssignedBy = &actor
	}
	return assignment, nil
}

func (c *AssignmentCoordinator) publish(ctx context.Context, orderID string, from, to models.OrderStatus, trigger models.OrderTrigger, assignment *models.WorkerAssignment) {
	if c.notifier == nil {
		return
	}

	event := models.OrderStatusEvent{
		OrderID:    orderID,
		From:       from,
		To:         to,
		Trigger:    trigger,
		OccurredAt: c.now(),
	}
	if assignment != nil {
		event.WorkerID = assignment.WorkerID
	}
	if session, ok := types.SessionFrom(ctx); ok {
		event.ActorID = session.PrincipalID
	}

	// The transition is committed; a failed notification must not undo it
	if err := c.notifier.PublishOrderStatus(context.WithoutCancel(ctx), event); err != nil {
		log.Printf("❌ Failed to publish status event for order %s: %v", orderID, err)
	}
}
