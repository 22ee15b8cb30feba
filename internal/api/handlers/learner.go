package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleLearner returns the anonymous learner id held in the session.
func (h *Handler) HandleLearner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"learnerId": learnerID(c)})
}
