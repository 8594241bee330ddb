package routes

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"carwash-ops-server/types"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Email and password are required")
		return
	}

	result, err := h.Identity.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		log.Printf("🔐 Login failed for %s: %v", req.Email, err)
		respondError(c, err)
		return
	}

	log.Printf("🔐 %s logged in as %s", result.Principal.Email, result.Principal.Role)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

func (h *handlers) currentPrincipal(c *gin.Context) {
	session, _ := types.SessionFrom(c.Request.Context())
	principal, err := h.Identity.FindPrincipal(c.Request.Context(), session.PrincipalID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": principal})
}
