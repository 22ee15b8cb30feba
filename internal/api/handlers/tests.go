package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"studyhub/internal/apperr"
	"studyhub/internal/models"
	"studyhub/internal/notify"

	"github.com/gin-gonic/gin"
)

// HandleListTests returns the summary of every stored test, oldest first.
func (h *Handler) HandleListTests(c *gin.Context) {
	tests, err := h.Quiz.ListTests(c.Request.Context())
	if err != nil {
		h.handleError(c, "List tests", err)
		return
	}
	c.JSON(http.StatusOK, tests)
}

// HandleCreateTest generates questions from the posted passage (or video
// transcript) and stores the new test.
func (h *Handler) HandleCreateTest(c *gin.Context) {
	startTime := time.Now()

	var req models.CreateTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, "Bind create test request", apperr.Wrap(apperr.KindInvalidArgument, "invalid request body", err))
		return
	}
	log.Printf("INFO: Handling test generation request '%s' for learner %s", req.Name, learnerID(c))

	test, err := h.Quiz.CreateTest(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, "Generate test", err)
		return
	}

	source := "text"
	if test.SourceURL != "" {
		source = test.SourceURL
	}
	h.Notifier.Notify(notify.Embed{
		Title: "🧠 New Test Generated",
		Color: notify.ColorGreen,
		Fields: []notify.EmbedField{
			{Name: "Name", Value: test.Name, Inline: false},
			{Name: "Questions", Value: fmt.Sprintf("%d", len(test.Questions)), Inline: true},
			{Name: "Source", Value: source, Inline: true},
			{Name: "Took", Value: time.Since(startTime).Round(time.Millisecond).String(), Inline: true},
		},
		Footer: &notify.EmbedFooter{Text: "Test ID: " + test.ID},
	})

	c.JSON(http.StatusCreated, test.Summary())
}

// HandleGetTest returns a full test including questions and results.
func (h *Handler) HandleGetTest(c *gin.Context) {
	test, err := h.Quiz.GetTest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, "Get test", err)
		return
	}
	c.JSON(http.StatusOK, test)
}
