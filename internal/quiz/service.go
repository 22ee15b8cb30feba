// Package quiz turns passages into stored tests, grades submissions and asks
// the model for remediation text.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"studyhub/internal/apperr"
	"studyhub/internal/models"
	"studyhub/internal/store"

	"github.com/google/uuid"
)

const (
	DefaultTimeout   = 25 * time.Second
	DefaultRequested = 6
	MaxRequested     = 20
)

// Generator is the generative collaborator. Responses are untrusted text.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxOutputTokens int32) (string, error)
}

// TranscriptSource turns a video URL into passage text.
type TranscriptSource interface {
	GetTranscript(ctx context.Context, url, lang string) (string, error)
}

type Options struct {
	Timeout              time.Duration
	QuestionMaxTokens    int32
	RemediationMaxTokens int32
	DefaultRequested     int
	MaxRequested         int
	IndexPolicy          IndexPolicy
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.QuestionMaxTokens <= 0 {
		o.QuestionMaxTokens = 4096
	}
	if o.RemediationMaxTokens <= 0 {
		o.RemediationMaxTokens = 2048
	}
	if o.DefaultRequested <= 0 {
		o.DefaultRequested = DefaultRequested
	}
	if o.MaxRequested <= 0 {
		o.MaxRequested = MaxRequested
	}
	if o.DefaultRequested > o.MaxRequested {
		o.DefaultRequested = o.MaxRequested
	}
	if o.IndexPolicy == "" {
		o.IndexPolicy = IndexKeep
	}
}

type Service struct {
	store       store.Store
	gen         Generator
	transcripts TranscriptSource
	opts        Options

	now         func() time.Time
	idGenerator func() string
}

func NewService(st store.Store, gen Generator, opts Options) *Service {
	opts.applyDefaults()
	return &Service{
		store:       st,
		gen:         gen,
		opts:        opts,
		now:         time.Now,
		idGenerator: uuid.NewString,
	}
}

// WithTranscripts enables videoUrl as a passage source.
func (s *Service) WithTranscripts(src TranscriptSource) *Service {
	s.transcripts = src
	return s
}

func (s *Service) ListTests(ctx context.Context) ([]models.TestSummary, error) {
	return s.store.List(ctx)
}

func (s *Service) GetTest(ctx context.Context, id string) (*models.Test, error) {
	return s.store.Get(ctx, id)
}

// CreateTest generates questions for the passage and stores the new test.
// Nothing is stored when generation fails.
func (s *Service) CreateTest(ctx context.Context, req models.CreateTestRequest) (*models.Test, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.InvalidArgument("name is required")
	}

	text, sourceURL := req.Text, ""
	if strings.TrimSpace(text) == "" {
		if strings.TrimSpace(req.VideoURL) == "" {
			return nil, apperr.InvalidArgument("text or videoUrl is required")
		}
		transcript, err := s.transcript(ctx, req.VideoURL)
		if err != nil {
			return nil, err
		}
		text, sourceURL = transcript, req.VideoURL
	}

	n := s.requested(req.Requested)
	log.Printf("INFO: Generating %d questions for test '%s' (%d chars of source text)", n, name, len(text))

	raw, err := s.generate(ctx, questionPrompt(text, n), s.opts.QuestionMaxTokens)
	if err != nil {
		return nil, err
	}
	questions, err := normalizeQuestions(raw, s.opts.IndexPolicy)
	if err != nil {
		if apperr.Is(err, apperr.KindGenerationParse) {
			log.Printf("DEBUG: Raw model text before parse error: %s", raw)
		}
		return nil, err
	}

	t := &models.Test{
		Name:       name,
		CreatedAt:  s.now().UTC().Truncate(time.Millisecond),
		SourceText: text,
		SourceURL:  sourceURL,
		Questions:  questions,
		Results:    []models.Submission{},
	}
	if _, err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	log.Printf("INFO: Created test %s with %d questions", t.ID, len(t.Questions))
	return t, nil
}

// Submit grades answers against the stored key and appends the submission.
// When a qId appears more than once the last selection wins.
func (s *Service) Submit(ctx context.Context, testID string, req models.SubmitRequest) (models.Submission, error) {
	t, err := s.store.Get(ctx, testID)
	if err != nil {
		return models.Submission{}, err
	}

	answers := make(map[string]int, len(req.Answers))
	for _, a := range req.Answers {
		if a.SelectedIndex == nil {
			answers[a.QID] = NoSelection
			continue
		}
		answers[a.QID] = *a.SelectedIndex
	}

	sub := Grade(t, answers, s.now().UTC().Truncate(time.Millisecond), s.idGenerator())
	sub.UserID = strings.TrimSpace(req.UserID)

	if err := s.store.AppendSubmission(ctx, testID, sub); err != nil {
		return models.Submission{}, err
	}
	log.Printf("INFO: Recorded submission %s on test %s: score %d", sub.ID, testID, sub.Score)
	return sub, nil
}

// Remediate asks the model to explain the selected questions. The result is
// returned only, never stored.
func (s *Service) Remediate(ctx context.Context, testID string, req models.RemediationRequest) ([]models.Justification, error) {
	if len(req.QIDs) == 0 {
		return nil, apperr.InvalidArgument("qIds must not be empty")
	}
	t, err := s.store.Get(ctx, testID)
	if err != nil {
		return nil, err
	}
	if len(t.Results) == 0 {
		return nil, apperr.New(apperr.KindNoSubmission, "test has no submissions yet")
	}

	selected := selectQuestions(t.Questions, req.QIDs)
	if len(selected) == 0 {
		return nil, apperr.InvalidArgument("none of the requested qIds belong to this test")
	}
	if dropped := len(req.QIDs) - len(selected); dropped > 0 {
		log.Printf("WARN: Remediation on test %s ignoring %d unknown or repeated qIds", testID, dropped)
	}

	notes := strings.TrimSpace(req.ContextNotes)
	if notes == "" {
		notes = t.SourceText
	}

	raw, err := s.generate(ctx, remediationPrompt(selected, notes), s.opts.RemediationMaxTokens)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(selected))
	for i, q := range selected {
		ids[i] = q.ID
	}
	out, err := normalizeJustifications(raw, ids)
	if err != nil {
		if apperr.Is(err, apperr.KindGenerationParse) {
			log.Printf("DEBUG: Raw model text before parse error: %s", raw)
		}
		return nil, err
	}
	return out, nil
}

func (s *Service) requested(n int) int {
	if n <= 0 {
		return s.opts.DefaultRequested
	}
	if n > s.opts.MaxRequested {
		return s.opts.MaxRequested
	}
	return n
}

func (s *Service) transcript(ctx context.Context, videoURL string) (string, error) {
	if s.transcripts == nil {
		return "", apperr.InvalidArgument("videoUrl is not supported on this server")
	}
	text, err := s.transcripts.GetTranscript(ctx, videoURL, "")
	if err != nil {
		return "", apperr.Wrap(apperr.KindInvalidArgument, "could not fetch video transcript", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", apperr.InvalidArgument("video transcript is empty")
	}
	return text, nil
}

// generate bounds one collaborator call by the configured timeout.
func (s *Service) generate(ctx context.Context, prompt string, maxTokens int32) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.gen.Generate(gctx, prompt, maxTokens)
	if err != nil {
		if errors.Is(gctx.Err(), context.DeadlineExceeded) {
			log.Printf("ERROR: Generation timed out after %s", time.Since(start).Round(time.Millisecond))
			return "", apperr.Wrap(apperr.KindGenerationTimeout,
				fmt.Sprintf("generation did not finish within %s", s.opts.Timeout), err)
		}
		log.Printf("ERROR: Generation failed: %v", err)
		return "", apperr.Wrap(apperr.KindGenerationFailed, "generation request failed", err)
	}
	log.Printf("INFO: Generation finished in %s (%d chars)", time.Since(start).Round(time.Millisecond), len(raw))
	return raw, nil
}

func selectQuestions(questions []models.Question, qIDs []string) []models.Question {
	byID := make(map[string]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	seen := make(map[string]bool, len(qIDs))
	var out []models.Question
	for _, id := range qIDs {
		q, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, q)
	}
	return out
}
