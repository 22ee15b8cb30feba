package handlers

import (
	"log"
	"net/http"

	"studyhub/internal/apperr"
	"studyhub/internal/models"

	"github.com/gin-gonic/gin"
)

// HandleRemediation returns explanations for the requested questions. They
// are not stored, so a failed call can simply be retried.
func (h *Handler) HandleRemediation(c *gin.Context) {
	testID := c.Param("id")

	var req models.RemediationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, "Bind remediation request", apperr.Wrap(apperr.KindInvalidArgument, "invalid request body", err))
		return
	}

	justifications, err := h.Quiz.Remediate(c.Request.Context(), testID, req)
	if err != nil {
		h.handleError(c, "Generate remediation", err)
		return
	}
	log.Printf("INFO: Generated %d explanations for test %s", len(justifications), testID)

	c.JSON(http.StatusOK, models.RemediationResponse{Justifications: justifications})
}
