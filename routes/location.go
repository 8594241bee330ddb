package routes

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"carwash-ops-server/models"
	"carwash-ops-server/types"
	ws "carwash-ops-server/websocket"
)

// reportLocation stores the calling worker's position; live trackers are
// notified through the position feed.
func (h *handlers) reportLocation(c *gin.Context) {
	var req models.LocationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_location", "latitude and longitude are required")
		return
	}

	worker, ok := h.workerForSession(c)
	if !ok {
		return
	}

	position, err := h.Tracker.UpdateLocation(c.Request.Context(), worker.ID, *req.Latitude, *req.Longitude)
	if err != nil {
		respondError(c, err)
		return
	}

	log.Printf("📍 Worker %s reported location (%.5f, %.5f)", worker.ID, position.Latitude, position.Longitude)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": position})
}

func (h *handlers) trackWorker(c *gin.Context) {
	h.tracking.ServeTracking(c.Writer, c.Request, c.Param("id"))
}

func (h *handlers) adminStream(c *gin.Context) {
	session, _ := types.SessionFrom(c.Request.Context())
	ws.ServeAdmin(h.Hub, h.upgrader, c.Writer, c.Request, session)
}
