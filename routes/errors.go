package routes

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"carwash-ops-server/services"
)

type errorKind struct {
	target error
	status int
	kind   string
}

// Checked in order; the first match wins
var errorKinds = []errorKind{
	{services.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{services.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{services.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{services.ErrWorkerNotFound, http.StatusNotFound, "worker_not_found"},
	{services.ErrAlertNotFound, http.StatusNotFound, "alert_not_found"},
	{services.ErrWorkerInactive, http.StatusUnprocessableEntity, "worker_inactive"},
	{services.ErrWorkerRequired, http.StatusBadRequest, "worker_required"},
	{services.ErrAlreadyAssigned, http.StatusConflict, "already_assigned"},
	{services.ErrNotEffectiveWorker, http.StatusForbidden, "forbidden"},
	{services.ErrInvalidWorkerInput, http.StatusBadRequest, "invalid_worker_input"},
	{services.ErrOrphanedIdentity, http.StatusInternalServerError, "orphaned_identity"},
	{services.ErrWorkerRecordFailed, http.StatusInternalServerError, "worker_record_failed"},
	{services.ErrPrincipalExists, http.StatusConflict, "identity_creation_failed"},
	{services.ErrIdentityCreationFailed, http.StatusBadGateway, "identity_creation_failed"},
	{services.ErrInvalidLocation, http.StatusBadRequest, "invalid_location"},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{services.ErrUploadUnavailable, http.StatusServiceUnavailable, "upload_unavailable"},
	{services.ErrTrackerStopped, http.StatusServiceUnavailable, "tracker_unavailable"},
}

// respondError writes err with its HTTP status and machine readable kind
func respondError(c *gin.Context, err error) {
	status, kind := http.StatusInternalServerError, "internal"
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			status, kind = k.status, k.kind
			break
		}
	}

	body := gin.H{"error": err.Error(), "kind": kind}

	var te *services.TransitionError
	if errors.As(err, &te) {
		body["order_id"] = te.OrderID
		body["status"] = te.Status
		body["trigger"] = te.Trigger
	}

	var pe *services.ProvisioningError
	if errors.As(err, &pe) {
		body["outcome"] = pe.Outcome
		if pe.PrincipalID != "" {
			body["principal_id"] = pe.PrincipalID
		}
	}

	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s %s failed (%s): %v", c.Request.Method, c.Request.URL.Path, kind, err)
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, kind, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "kind": kind})
}
