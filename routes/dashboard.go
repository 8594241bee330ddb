package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carwash-ops-server/database"
	"carwash-ops-server/models"
)

func (h *handlers) getDashboardSummary(c *gin.Context) {
	summary, err := h.Dashboard.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": summary})
}

func (h *handlers) listAlerts(c *gin.Context) {
	filter := database.AlertFilter{
		Kind:           models.AlertKind(c.Query("kind")),
		UnresolvedOnly: c.Query("unresolved") == "true",
	}
	alerts, err := h.Alerts.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": alerts, "total": len(alerts)})
}

func (h *handlers) resolveAlert(c *gin.Context) {
	alert, err := h.Alerts.ResolveAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": alert})
}
