package routes

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"carwash-ops-server/database"
	"carwash-ops-server/models"
	"carwash-ops-server/services"
)

type assignRequest struct {
	WorkerID string `json:"worker_id"`
}

type statusRequest struct {
	Trigger string `json:"trigger" binding:"required"`
}

// pagination reads page and limit the way every list endpoint does
func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return page, limit
}

func (h *handlers) listOrders(c *gin.Context) {
	page, limit := pagination(c)
	filter := database.OrderFilter{Limit: limit, Offset: (page - 1) * limit}

	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseOrderStatus(raw)
		if !ok {
			badRequest(c, "invalid_status", "Unknown order status: "+raw)
			return
		}
		filter.Status = &status
	}

	orders, total, err := h.Coordinator.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func (h *handlers) getOrder(c *gin.Context) {
	detail, err := h.Coordinator.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": detail})
}

func (h *handlers) acceptOrder(c *gin.Context) {
	h.respondTransition(c)(h.Coordinator.AcceptOrder(c.Request.Context(), c.Param("id")))
}

func (h *handlers) declineOrder(c *gin.Context) {
	h.respondTransition(c)(h.Coordinator.DeclineOrder(c.Request.Context(), c.Param("id")))
}

func (h *handlers) cancelOrder(c *gin.Context) {
	h.respondTransition(c)(h.Coordinator.CancelOrder(c.Request.Context(), c.Param("id")))
}

func (h *handlers) assignWorker(c *gin.Context) {
	var req assignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid_request", "Invalid request body")
			return
		}
	}
	h.respondTransition(c)(h.Coordinator.AssignWorker(c.Request.Context(), c.Param("id"), req.WorkerID))
}

func (h *handlers) advanceStatus(c *gin.Context) {
	trigger, ok := bindTrigger(c)
	if !ok {
		return
	}
	if trigger.AssignsWorker() {
		badRequest(c, "invalid_trigger", "Use the assign endpoint to assign a worker")
		return
	}
	h.respondTransition(c)(h.Coordinator.AdvanceStatus(c.Request.Context(), c.Param("id"), trigger))
}

// workerTriggers are the triggers a worker may fire on their own order
var workerTriggers = map[models.OrderTrigger]bool{
	models.TriggerArrive:   true,
	models.TriggerStart:    true,
	models.TriggerComplete: true,
}

// workerAdvanceStatus lets the effective worker report arrival, start and
// completion of their order.
func (h *handlers) workerAdvanceStatus(c *gin.Context) {
	trigger, ok := bindTrigger(c)
	if !ok {
		return
	}
	if !workerTriggers[trigger] {
		c.JSON(http.StatusForbidden, gin.H{"error": "Workers may only arrive, start or complete an order", "kind": "forbidden"})
		return
	}

	worker, ok := h.workerForSession(c)
	if !ok {
		return
	}

	orderID := c.Param("id")
	result, err := h.Coordinator.AdvanceAssignedOrder(c.Request.Context(), orderID, worker.ID, trigger)
	if errors.Is(err, services.ErrNotEffectiveWorker) {
		log.Printf("🚫 Worker %s tried to %s order %s assigned elsewhere", worker.ID, trigger, orderID)
	}
	h.respondTransition(c)(result, err)
}

func bindTrigger(c *gin.Context) (models.OrderTrigger, bool) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "trigger is required")
		return "", false
	}
	trigger, ok := models.ParseOrderTrigger(req.Trigger)
	if !ok {
		badRequest(c, "invalid_trigger", "Unknown trigger: "+req.Trigger)
		return "", false
	}
	return trigger, true
}

func (h *handlers) respondTransition(c *gin.Context) func(*services.TransitionResult, error) {
	return func(result *services.TransitionResult, err error) {
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Order " + string(result.Trigger) + " applied",
			"data":    result,
		})
	}
}
