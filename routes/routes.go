package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"

	"carwash-ops-server/config"
	"carwash-ops-server/middleware"
	"carwash-ops-server/models"
	"carwash-ops-server/services"
	ws "carwash-ops-server/websocket"
)

// Dependencies are the services the HTTP API is built on
type Dependencies struct {
	Config       *config.Config
	Identity     *services.IdentityService
	Coordinator  *services.AssignmentCoordinator
	Provisioning *services.WorkerProvisioningService
	Dashboard    *services.DashboardService
	Tracker      *services.LocationTracker
	Alerts       *services.AlertService
	Hub          *ws.Hub
	RateLimiter  *middleware.RateLimiter
	// Health checks run by GET /health, keyed by component name
	HealthChecks map[string]func() error
}

type handlers struct {
	Dependencies
	upgrader *gws.Upgrader
	tracking *ws.TrackingHandler
}

// NewRouter builds the gin engine with the full middleware stack and API
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.RateLimiter == nil {
		deps.RateLimiter = middleware.NewRateLimiter()
	}
	upgrader := ws.NewUpgrader(deps.Config.Server.AllowedOrigins)
	h := &handlers{
		Dependencies: deps,
		upgrader:     upgrader,
		tracking:     ws.NewTrackingHandler(deps.Tracker, upgrader),
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Disable automatic redirects for trailing slashes
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(deps.Config.Server.AllowedOrigins))
	router.Use(middleware.InputValidationMiddleware())
	router.Use(middleware.RateLimitMiddleware(deps.RateLimiter))
	router.Use(middleware.AuditLogMiddleware())

	router.GET("/health", h.health)

	jwtCfg := deps.Config.JWT
	api := router.Group("/api/v1")
	{
		authRoutes := api.Group("/auth")
		authRoutes.Use(middleware.AuthRateLimitMiddleware(deps.RateLimiter))
		authRoutes.POST("/login", h.login)

		me := api.Group("/auth")
		me.Use(middleware.AuthMiddleware(jwtCfg, deps.Identity))
		me.GET("/me", h.currentPrincipal)

		// WebSocket streams authenticate with ?token=
		wsRoutes := api.Group("/ws")
		wsRoutes.Use(middleware.WebSocketAuthMiddleware(jwtCfg, deps.Identity))
		wsRoutes.Use(middleware.RequireRole(models.RoleAdmin))
		wsRoutes.GET("/admin", h.adminStream)
		wsRoutes.GET("/workers/:id/track", h.trackWorker)

		admin := api.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtCfg, deps.Identity))
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/dashboard", h.getDashboardSummary)

			admin.GET("/orders", h.listOrders)
			admin.GET("/orders/:id", h.getOrder)
			admin.POST("/orders/:id/accept", h.acceptOrder)
			admin.POST("/orders/:id/decline", h.declineOrder)
			admin.POST("/orders/:id/cancel", h.cancelOrder)
			admin.POST("/orders/:id/assign", h.assignWorker)
			admin.POST("/orders/:id/status", h.advanceStatus)

			admin.GET("/workers", h.listWorkers)
			admin.POST("/workers", h.provisionWorker)
			admin.GET("/workers/:id", h.getWorker)
			admin.PATCH("/workers/:id/status", h.setWorkerStatus)
			admin.POST("/workers/:id/document", h.uploadWorkerDocument)

			admin.GET("/alerts", h.listAlerts)
			admin.POST("/alerts/:id/resolve", h.resolveAlert)
		}

		worker := api.Group("/worker")
		worker.Use(middleware.AuthMiddleware(jwtCfg, deps.Identity))
		worker.Use(middleware.RequireRole(models.RoleWorker))
		{
			worker.POST("/location", h.reportLocation)
			worker.POST("/orders/:id/status", h.workerAdvanceStatus)
		}
	}

	return router
}

func (h *handlers) health(c *gin.Context) {
	status := http.StatusOK
	components := gin.H{}
	for name, check := range h.HealthChecks {
		if err := check(); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":     state,
		"message":    "Car wash operations server is running",
		"components": components,
		"time":       time.Now().UTC(),
	})
}
