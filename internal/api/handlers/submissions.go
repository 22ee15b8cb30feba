package handlers

import (
	"fmt"
	"log"
	"net/http"

	"studyhub/internal/apperr"
	"studyhub/internal/models"
	"studyhub/internal/notify"

	"github.com/gin-gonic/gin"
)

// HandleSubmitAnswers grades a submission server-side and appends it to the
// test's history. Submissions without a userId are attributed to the
// session's learner.
func (h *Handler) HandleSubmitAnswers(c *gin.Context) {
	testID := c.Param("id")

	var req models.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, "Bind submission request", apperr.Wrap(apperr.KindInvalidArgument, "invalid request body", err))
		return
	}
	if req.UserID == "" {
		req.UserID = learnerID(c)
	}

	sub, err := h.Quiz.Submit(c.Request.Context(), testID, req)
	if err != nil {
		h.handleError(c, "Submit answers", err)
		return
	}
	log.Printf("INFO: Learner %s scored %d on test %s", sub.UserID, sub.Score, testID)

	h.Notifier.Notify(notify.Embed{
		Title: "✅ Test Submitted",
		Color: notify.ColorBlue,
		Fields: []notify.EmbedField{
			{Name: "Test ID", Value: fmt.Sprintf("`%s`", testID), Inline: false},
			{Name: "Score", Value: fmt.Sprintf("%d%%", sub.Score), Inline: true},
			{Name: "Questions", Value: fmt.Sprintf("%d", len(sub.Answers)), Inline: true},
		},
	})

	c.JSON(http.StatusCreated, models.SubmitResponse{Submission: sub, Score: sub.Score})
}
