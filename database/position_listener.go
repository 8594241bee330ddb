package database

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lib/pq"

	"carwash-ops-server/models"
)

// PositionListener relays the workers table NOTIFY feed over a dedicated
// lib/pq listener connection. One LISTEN is held per tracked worker.
type PositionListener struct {
	listener *pq.Listener
	updates  chan models.PositionUpdate
	done     chan struct{}
}

type positionPayload struct {
	WorkerID  string    `json:"worker_id"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewPositionListener(dsn string) (*PositionListener, error) {
	if dsn == "" {
		return nil, fmt.Errorf("position listener requires DB_URL")
	}

	reportProblem := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			log.Println("✅ Position listener connected")
		case pq.ListenerEventReconnected:
			log.Println("🔌 Position listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			log.Printf("⚠️ Position listener connection problem: %v", err)
		}
	}

	p := &PositionListener{
		listener: pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem),
		updates:  make(chan models.PositionUpdate, 64),
		done:     make(chan struct{}),
	}
	go p.relay()
	return p, nil
}

func (p *PositionListener) Listen(workerID string) error {
	err := p.listener.Listen(PositionChannel(workerID))
	if err == pq.ErrChannelAlreadyOpen {
		return nil
	}
	return err
}

func (p *PositionListener) Unlisten(workerID string) error {
	err := p.listener.Unlisten(PositionChannel(workerID))
	if err == pq.ErrChannelNotOpen {
		return nil
	}
	return err
}

func (p *PositionListener) Notifications() <-chan models.PositionUpdate {
	return p.updates
}

func (p *PositionListener) Close() error {
	close(p.done)
	return p.listener.Close()
}

func (p *PositionListener) relay() {
	defer close(p.updates)

	for {
		select {
		case n, ok := <-p.listener.Notify:
			if !ok {
				return
			}
			// nil is sent after a reconnect; notifications may have been missed
			if n == nil {
				continue
			}
			update, err := decodePosition(n.Channel, n.Extra)
			if err != nil {
				log.Printf("❌ Bad position notification on %s: %v", n.Channel, err)
				continue
			}
			select {
			case p.updates <- update:
			case <-p.done:
				return
			}

		case <-time.After(90 * time.Second):
			go func() {
				if err := p.listener.Ping(); err != nil {
					log.Printf("⚠️ Position listener ping failed: %v", err)
				}
			}()

		case <-p.done:
			return
		}
	}
}

func decodePosition(channel, payload string) (models.PositionUpdate, error) {
	var body positionPayload
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return models.PositionUpdate{}, err
	}
	if body.Latitude == nil || body.Longitude == nil {
		return models.PositionUpdate{}, fmt.Errorf("position cleared")
	}
	if body.WorkerID == "" {
		body.WorkerID = strings.TrimPrefix(channel, PositionChannelPrefix)
	}
	return models.PositionUpdate{
		WorkerID: body.WorkerID,
		Position: models.Position{
			Latitude:  *body.Latitude,
			Longitude: *body.Longitude,
			UpdatedAt: body.UpdatedAt,
		},
	}, nil
}
