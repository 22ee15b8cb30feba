package models

import (
	"time"
)

// Test represents a quiz generated from a learner-supplied passage
type Test struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	CreatedAt  time.Time    `json:"createdAt"`
	SourceText string       `json:"sourceText"`
	SourceURL  string       `json:"sourceUrl,omitempty"` // YouTube URL when the passage is a transcript
	Questions  []Question   `json:"questions"`
	Results    []Submission `json:"results"`
}

// Summary projects a Test down to what list views need
func (t *Test) Summary() TestSummary {
	return TestSummary{
		ID:            t.ID,
		Name:          t.Name,
		CreatedAt:     t.CreatedAt,
		QuestionCount: len(t.Questions),
	}
}

// Question represents one multiple-choice item in a test
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Choices      []string `json:"choices"`
	CorrectIndex int      `json:"correctIndex"`
}

// Submission represents one graded attempt against a test
type Submission struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"userId,omitempty"`
	Score     int            `json:"score"`
	Answers   []AnswerResult `json:"answers"`
}

// AnswerResult is the graded outcome for a single question
type AnswerResult struct {
	QID           string `json:"qId"`
	Prompt        string `json:"prompt"`
	SelectedIndex int    `json:"selectedIndex"`
	CorrectIndex  int    `json:"correctIndex"`
	Correct       bool   `json:"correct"`
}

// TestSummary is the list-view projection of a Test
type TestSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"createdAt"`
	QuestionCount int       `json:"questionCount"`
}

// Justification is a learner-facing explanation for one question
type Justification struct {
	QID         string `json:"qId"`
	Explanation string `json:"explanation"`
}

// CreateTestRequest is the body of POST /api/tests
type CreateTestRequest struct {
	Name      string `json:"name"`
	Text      string `json:"text"`
	VideoURL  string `json:"videoUrl"`
	Requested int    `json:"requested"`
}

// SubmitAnswer is one entry of a submission request.
// A nil SelectedIndex means the learner left the question unanswered.
type SubmitAnswer struct {
	QID           string `json:"qId"`
	SelectedIndex *int   `json:"selectedIndex"`
}

// SubmitRequest is the body of POST /api/tests/:id/submissions.
// Any score or correct fields a client sends are dropped on decode.
type SubmitRequest struct {
	UserID  string         `json:"userId"`
	Answers []SubmitAnswer `json:"answers"`
}

// SubmitResponse is returned after grading
type SubmitResponse struct {
	Submission Submission `json:"submission"`
	Score      int        `json:"score"`
}

// RemediationRequest is the body of POST /api/tests/:id/remediation
type RemediationRequest struct {
	QIDs         []string `json:"qIds"`
	ContextNotes string   `json:"contextNotes"`
}

// RemediationResponse carries generated explanations; they are never stored
type RemediationResponse struct {
	Justifications []Justification `json:"justifications"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
