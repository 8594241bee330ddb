package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"carwash-ops-server/database"
	"carwash-ops-server/models"
	"carwash-ops-server/utils"
)

var ErrTrackerStopped = errors.New("location tracker is not running")

// PositionStore is the worker store surface the tracker reads and writes
type PositionStore interface {
	FindWorker(ctx context.Context, id string) (*models.Worker, error)
	UpdateWorkerPosition(ctx context.Context, id string, pos models.Position) error
}

// LocationTracker relays position changes from the store feed to subscribers.
// A single goroutine (Run) owns the subscriber set, holds one LISTEN per
// tracked worker and is the only sender on subscription channels.
type LocationTracker struct {
	workers    PositionStore
	feed       database.PositionFeed
	register   chan registration
	unregister chan registration
	subs       map[string]map[*Subscription]struct{}
	stopped    chan struct{}
	now        func() time.Time
}

type registration struct {
	sub *Subscription
	ack chan error
}

// Subscription is one observer of a worker's position. Updates carries future
// positions only; when the consumer falls behind, the newest position
// replaces the unread one.
type Subscription struct {
	WorkerID  string
	updates   chan models.Position
	tracker   *LocationTracker
	closeOnce sync.Once
	done      chan struct{}
}

func NewLocationTracker(workers PositionStore, feed database.PositionFeed) *LocationTracker {
	return &LocationTracker{
		workers:    workers,
		feed:       feed,
		register:   make(chan registration),
		unregister: make(chan registration),
		subs:       make(map[string]map[*Subscription]struct{}),
		stopped:    make(chan struct{}),
		now:        time.Now,
	}
}

// Run starts the tracker's main loop; it returns when ctx is cancelled or
// the feed is closed.
func (t *LocationTracker) Run(ctx context.Context) {
	defer func() {
		for workerID, set := range t.subs {
			for sub := range set {
				close(sub.updates)
			}
			t.release(workerID)
		}
		t.subs = nil
		close(t.stopped)
		log.Println("🛑 Location tracker stopped")
	}()

	log.Println("📡 Location tracker started")
	notifications := t.feed.Notifications()

	for {
		select {
		case req := <-t.register:
			req.ack <- t.add(req.sub)

		case req := <-t.unregister:
			t.remove(req.sub)
			close(req.ack)

		case update, ok := <-notifications:
			if !ok {
				log.Println("⚠️ Position feed closed")
				return
			}
			for sub := range t.subs[update.WorkerID] {
				sub.offer(update.Position)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (t *LocationTracker) add(sub *Subscription) error {
	set, ok := t.subs[sub.WorkerID]
	if !ok {
		if err := t.feed.Listen(sub.WorkerID); err != nil {
			return fmt.Errorf("listen for worker %s: %w", sub.WorkerID, err)
		}
		set = make(map[*Subscription]struct{})
		t.subs[sub.WorkerID] = set
		log.Printf("📡 Listening for worker %s positions", sub.WorkerID)
	}
	set[sub] = struct{}{}
	return nil
}

func (t *LocationTracker) remove(sub *Subscription) {
	set, ok := t.subs[sub.WorkerID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.updates)

	if len(set) == 0 {
		delete(t.subs, sub.WorkerID)
		t.release(sub.WorkerID)
	}
}

func (t *LocationTracker) release(workerID string) {
	if err := t.feed.Unlisten(workerID); err != nil {
		log.Printf("⚠️ Failed to unlisten worker %s: %v", workerID, err)
		return
	}
	log.Printf("🔌 Stopped listening for worker %s positions", workerID)
}

// Subscribe registers for future position updates of a worker. The
// subscription is closed when ctx is cancelled or Close is called.
func (t *LocationTracker) Subscribe(ctx context.Context, workerID string) (*Subscription, error) {
	if _, err := t.workers.FindWorker(ctx, workerID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrWorkerNotFound
		}
		return nil, err
	}

	sub := &Subscription{
		WorkerID: workerID,
		updates:  make(chan models.Position, 1),
		tracker:  t,
		done:     make(chan struct{}),
	}

	req := registration{sub: sub, ack: make(chan error, 1)}
	select {
	case t.register <- req:
	case <-t.stopped:
		return nil, ErrTrackerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := <-req.ack; err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Updates returns the position stream; it is closed when the subscription ends
func (s *Subscription) Updates() <-chan models.Position {
	return s.updates
}

// Close stops delivery. Once it returns no further position is delivered and,
// if this was the last subscriber for the worker, the LISTEN is released.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		req := registration{sub: s, ack: make(chan error)}
		select {
		case s.tracker.unregister <- req:
			<-req.ack
		case <-s.tracker.stopped:
		}
		close(s.done)
	})
}

// Done is closed after Close has completed
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) offer(p models.Position) {
	select {
	case s.updates <- p:
		return
	default:
	}
	// Drop the unread position; only the latest one matters
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- p:
	default:
	}
}

// UpdateLocation validates and stores a full replacement of the worker's position
func (t *LocationTracker) UpdateLocation(ctx context.Context, workerID string, lat, lng float64) (*models.Position, error) {
	if !utils.IsLocationValid(lat, lng) {
		return nil, fmt.Errorf("%w: (%f, %f)", ErrInvalidLocation, lat, lng)
	}

	pos := models.Position{Latitude: lat, Longitude: lng, UpdatedAt: t.now().UTC()}
	if err := t.workers.UpdateWorkerPosition(ctx, workerID, pos); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrWorkerNotFound
		}
		return nil, fmt.Errorf("update worker %s position: %w", workerID, err)
	}
	return &pos, nil
}

// CurrentPosition returns the last stored position, or nil if there is none
func (t *LocationTracker) CurrentPosition(ctx context.Context, workerID string) (*models.Position, error) {
	worker, err := t.workers.FindWorker(ctx, workerID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrWorkerNotFound
	}
	if err != nil {
		return nil, err
	}
	return worker.Position(), nil
}
