package quiz

import (
	"math"
	"time"

	"studyhub/internal/models"
)

// NoSelection marks a question the learner left unanswered. It never equals
// a valid correct index.
const NoSelection = -1

// Grade scores answers (question id to chosen index) against t's answer key.
// It is pure: the same test and answers always give the same result.
//
// Every question gets exactly one result, in test order. Selections that are
// missing, negative or outside the question's choices are recorded as
// NoSelection. Answers for unknown question ids are ignored.
func Grade(t *models.Test, answers map[string]int, now time.Time, id string) models.Submission {
	results := make([]models.AnswerResult, 0, len(t.Questions))
	correct := 0
	for _, q := range t.Questions {
		sel, ok := answers[q.ID]
		// A key stored out of range under IndexKeep can never be matched.
		if !ok || sel < 0 || sel >= len(q.Choices) {
			sel = NoSelection
		}
		r := models.AnswerResult{
			QID:           q.ID,
			Prompt:        q.Prompt,
			SelectedIndex: sel,
			CorrectIndex:  q.CorrectIndex,
			Correct:       sel != NoSelection && sel == q.CorrectIndex,
		}
		if r.Correct {
			correct++
		}
		results = append(results, r)
	}

	return models.Submission{
		ID:        id,
		Timestamp: now,
		Score:     score(correct, len(t.Questions)),
		Answers:   results,
	}
}

func score(correct, total int) int {
	return int(math.Round(100 * float64(correct) / float64(max(1, total))))
}
