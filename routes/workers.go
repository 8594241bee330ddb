package routes

import (
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"carwash-ops-server/models"
	"carwash-ops-server/types"
)

const maxDocumentSize = 5 * 1024 * 1024

type workerStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func validateDocumentFile(h *multipart.FileHeader) bool {
	if h == nil || h.Size <= 0 || h.Size > maxDocumentSize {
		return false
	}
	switch strings.ToLower(filepath.Ext(h.Filename)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".pdf":
		return true
	default:
		return false
	}
}

func (h *handlers) listWorkers(c *gin.Context) {
	workers, err := h.Provisioning.ListWorkers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": workers, "total": len(workers)})
}

func (h *handlers) getWorker(c *gin.Context) {
	worker, err := h.Provisioning.GetWorker(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": worker})
}

func (h *handlers) provisionWorker(c *gin.Context) {
	var req models.ProvisionWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_worker_input", "Invalid request body")
		return
	}

	result, err := h.Provisioning.ProvisionWorker(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Worker created successfully",
		"outcome": result.Outcome,
		"data":    result.Worker,
	})
}

func (h *handlers) setWorkerStatus(c *gin.Context) {
	var req workerStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "is_active is required")
		return
	}

	worker, err := h.Provisioning.SetWorkerActive(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": worker})
}

func (h *handlers) uploadWorkerDocument(c *gin.Context) {
	header, err := c.FormFile("document")
	if err != nil {
		badRequest(c, "invalid_request", "document file is required")
		return
	}
	if !validateDocumentFile(header) {
		badRequest(c, "invalid_document", "Document must be a jpg, png, webp or pdf up to 5MB")
		return
	}

	file, err := header.Open()
	if err != nil {
		log.Printf("❌ Failed to open uploaded document: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read document", "kind": "internal"})
		return
	}
	defer file.Close()

	worker, err := h.Provisioning.AttachIdentityDocument(c.Request.Context(), c.Param("id"), header.Filename, file)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": worker})
}

// workerForSession resolves the worker record behind the caller's principal
func (h *handlers) workerForSession(c *gin.Context) (*models.Worker, bool) {
	session, ok := types.SessionFrom(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return nil, false
	}
	worker, err := h.Provisioning.WorkerForPrincipal(c.Request.Context(), session.PrincipalID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return worker, true
}
