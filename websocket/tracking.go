package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"carwash-ops-server/models"
	"carwash-ops-server/services"
	"carwash-ops-server/utils"
)

const (
	MessagePosition   = "position"
	MessageNoLocation = "no_location"

	// Positions older than this are flagged as stale on the first frame
	staleAfter = 30 * time.Minute
)

// PositionFrame is one position pushed to a tracking client
type PositionFrame struct {
	Type      string           `json:"type"`
	WorkerID  string           `json:"worker_id"`
	Position  *models.Position `json:"position,omitempty"`
	Stale     bool             `json:"stale,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// PositionSource is the part of the location tracker a stream needs
type PositionSource interface {
	Subscribe(ctx context.Context, workerID string) (*services.Subscription, error)
	CurrentPosition(ctx context.Context, workerID string) (*models.Position, error)
}

// TrackingHandler streams one worker's live position to a map view
type TrackingHandler struct {
	tracker  PositionSource
	upgrader *websocket.Upgrader
}

func NewTrackingHandler(tracker PositionSource, upgrader *websocket.Upgrader) *TrackingHandler {
	return &TrackingHandler{tracker: tracker, upgrader: upgrader}
}

// ServeTracking sends the last stored position (or no_location) first and
// then every live update until the client goes away. The subscription is
// released as soon as the connection closes.
func (h *TrackingHandler) ServeTracking(w http.ResponseWriter, r *http.Request, workerID string) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before reading the stored position so that no write can
	// fall between the two
	sub, err := h.tracker.Subscribe(ctx, workerID)
	if err != nil {
		if errors.Is(err, services.ErrWorkerNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("❌ Failed to subscribe to worker %s: %v", workerID, err)
		http.Error(w, "tracking unavailable", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	initial, err := h.tracker.CurrentPosition(ctx, workerID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrWorkerNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ Tracking WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("📍 Tracking stream opened for worker %s", workerID)

	// Reader: handles pongs and notices the client closing
	go func() {
		defer cancel()
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	first := PositionFrame{WorkerID: workerID, Type: MessageNoLocation, Timestamp: time.Now()}
	if initial != nil {
		first.Type = MessagePosition
		first.Position = initial
		first.Stale = !utils.IsLocationRecent(&initial.UpdatedAt, staleAfter)
	}
	if err := writeFrame(conn, first); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case pos, ok := <-sub.Updates():
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			p := pos
			frame := PositionFrame{WorkerID: workerID, Type: MessagePosition, Position: &p, Timestamp: time.Now()}
			if err := writeFrame(conn, frame); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			log.Printf("📍 Tracking stream closed for worker %s", workerID)
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, frame PositionFrame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}
