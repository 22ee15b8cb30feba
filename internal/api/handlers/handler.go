package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"studyhub/internal/apperr"
	"studyhub/internal/models"
	"studyhub/internal/notify"
	"studyhub/internal/quiz"

	"github.com/gin-gonic/gin"
)

// Constants for session and context keys - keep these consistent
const (
	LearnerSessionKey = "learnerId"
	LearnerContextKey = "learnerID"
)

// Handler contains the API handlers dependencies
type Handler struct {
	Quiz     *quiz.Service
	Notifier *notify.Discord
}

// NewHandler creates a new Handler. notifier may be nil.
func NewHandler(svc *quiz.Service, notifier *notify.Discord) *Handler {
	return &Handler{Quiz: svc, Notifier: notifier}
}

// HandleHealth reports that the process is serving.
func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindNoSubmission:
		return http.StatusConflict
	case apperr.KindGenerationParse, apperr.KindEmptyGeneration, apperr.KindGenerationFailed:
		return http.StatusBadGateway
	case apperr.KindGenerationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs an error, notifies Discord for server-side failures, and
// aborts the request with {"error", "kind"}.
func (h *Handler) handleError(c *gin.Context, errorContext string, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	message := "internal server error"
	if e, ok := apperr.As(err); ok {
		message = e.Message
	}

	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: %s: %v (status %d, learner %s)", errorContext, err, status, learnerID(c))
		h.Notifier.Notify(notify.Embed{
			Title:       fmt.Sprintf("🚨 API Error: %s", errorContext),
			Description: fmt.Sprintf("**Error Details:**\n```%s```", err.Error()),
			Color:       notify.ColorRed,
			Fields: []notify.EmbedField{
				{Name: "Kind", Value: string(kind), Inline: true},
				{Name: "HTTP Status", Value: fmt.Sprintf("%d", status), Inline: true},
				{Name: "Path", Value: c.Request.URL.Path, Inline: false},
			},
			Timestamp: time.Now().Format(time.RFC3339),
		})
	} else {
		log.Printf("WARN: %s: %v (status %d)", errorContext, err, status)
	}

	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: message, Kind: string(kind)})
}

func learnerID(c *gin.Context) string {
	return c.GetString(LearnerContextKey)
}
