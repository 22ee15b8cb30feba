// Package storetest holds the behaviour every store.Store backend must show.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"studyhub/internal/apperr"
	"studyhub/internal/models"
	"studyhub/internal/store"

	"github.com/google/uuid"
)

// Factory returns a fresh, empty store; cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("AppendMissing", func(t *testing.T) { testAppendMissing(t, newStore(t)) })
	t.Run("AppendOrder", func(t *testing.T) { testAppendOrder(t, newStore(t)) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
}

func sampleTest(name string, created time.Time, questions int) *models.Test {
	t := &models.Test{
		Name:       name,
		CreatedAt:  created,
		SourceText: "Photosynthesis converts light into chemical energy.",
	}
	for i := 0; i < questions; i++ {
		t.Questions = append(t.Questions, models.Question{
			ID:           fmt.Sprintf("q%d", i+1),
			Prompt:       fmt.Sprintf("Question %d?", i+1),
			Choices:      []string{"a", "b", "c", "d"},
			CorrectIndex: i % 4,
		})
	}
	return t
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := sampleTest("Biology", created, 3)
	in.ID = "caller-supplied"

	id, err := s.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("Create returned non-uuid id %q", id)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != id || got.Name != "Biology" || got.SourceText != in.SourceText {
		t.Fatalf("Get returned %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt = %s, want %s", got.CreatedAt, created)
	}
	if len(got.Questions) != 3 || got.Questions[2].CorrectIndex != 2 {
		t.Fatalf("questions not round-tripped: %+v", got.Questions)
	}
	if got.Results == nil || len(got.Results) != 0 {
		t.Fatalf("Results = %#v, want empty non-nil slice", got.Results)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, id := range []string{uuid.NewString(), "../../etc/passwd", ""} {
		_, err := s.Get(ctx, id)
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("Get(%q) err = %v, want not_found", id, err)
		}
	}
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second, err := s.Create(ctx, sampleTest("Second", base.Add(time.Minute), 2))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first, err := s.Create(ctx, sampleTest("First", base, 4))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List len = %d, want 2", len(list))
	}
	if list[0].ID != first || list[0].QuestionCount != 4 || list[0].Name != "First" {
		t.Fatalf("list[0] = %+v", list[0])
	}
	if list[1].ID != second || list[1].QuestionCount != 2 {
		t.Fatalf("list[1] = %+v", list[1])
	}
	if !list[0].CreatedAt.Equal(base) {
		t.Fatalf("list[0].CreatedAt = %s, want %s", list[0].CreatedAt, base)
	}
}

func testAppendMissing(t *testing.T, s store.Store) {
	err := s.AppendSubmission(context.Background(), uuid.NewString(), models.Submission{ID: "s1"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("AppendSubmission err = %v, want not_found", err)
	}
}

func testAppendOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	id, err := s.Create(ctx, sampleTest("Order", time.Now().UTC().Truncate(time.Millisecond), 1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 3; i++ {
		sub := models.Submission{ID: fmt.Sprintf("s%d", i), Score: i * 10, Answers: []models.AnswerResult{}}
		if err := s.AppendSubmission(ctx, id, sub); err != nil {
			t.Fatalf("AppendSubmission %d: %v", i, err)
		}
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Results) != 3 {
		t.Fatalf("Results len = %d, want 3", len(got.Results))
	}
	for i, r := range got.Results {
		if r.ID != fmt.Sprintf("s%d", i) || r.Score != i*10 {
			t.Fatalf("Results[%d] = %+v", i, r)
		}
	}
}

func testConcurrentAppends(t *testing.T, s store.Store) {
	ctx := context.Background()
	id, err := s.Create(ctx, sampleTest("Race", time.Now().UTC().Truncate(time.Millisecond), 2))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.AppendSubmission(ctx, id, models.Submission{ID: fmt.Sprintf("s%02d", i)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AppendSubmission: %v", err)
		}
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Results) != n {
		t.Fatalf("Results len = %d, want %d (lost submissions)", len(got.Results), n)
	}
	seen := map[string]bool{}
	for _, r := range got.Results {
		seen[r.ID] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct submissions, got %d", n, len(seen))
	}
}
