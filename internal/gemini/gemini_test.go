package gemini

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestPickModel(t *testing.T) {
	models := []modelInfo{
		{Name: "models/embedding-001", Methods: []string{"embedContent"}},
		{Name: "models/gemini-1.5-flash", Methods: []string{"generateContent", "countTokens"}},
		{Name: "models/gemini-2.0-flash", Methods: []string{"generateContent"}},
	}

	tests := []struct {
		name      string
		preferred string
		models    []modelInfo
		want      string
		wantOK    bool
	}{
		{"preferred available", "gemini-2.0-flash", models, "gemini-2.0-flash", true},
		{"preferred missing", "gemini-9-ultra", models, "gemini-1.5-flash", true},
		{"preferred cannot generate", "embedding-001", models, "gemini-1.5-flash", true},
		{"nothing generates", "gemini-2.0-flash", models[:1], "", false},
		{"empty listing", "gemini-2.0-flash", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickModel(tt.preferred, tt.models)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("pickModel = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestModelCachesDiscovery(t *testing.T) {
	var calls int32
	c := newClient("")
	c.list = func(ctx context.Context) ([]modelInfo, error) {
		atomic.AddInt32(&calls, 1)
		return []modelInfo{{Name: "models/gemini-1.5-pro", Methods: []string{"generateContent"}}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := c.Model(context.Background()); got != "gemini-1.5-pro" {
				t.Errorf("Model = %q, want gemini-1.5-pro", got)
			}
		}()
	}
	wg.Wait()
	c.Model(context.Background())

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("ListModels called %d times, want 1", n)
	}
}

func TestModelListingFailureIsNotCached(t *testing.T) {
	fail := true
	calls := 0
	c := newClient("models/gemini-2.0-flash")
	c.list = func(ctx context.Context) ([]modelInfo, error) {
		calls++
		if fail {
			return nil, errors.New("permission denied")
		}
		return []modelInfo{{Name: "models/gemini-1.5-flash", Methods: []string{"generateContent"}}}, nil
	}

	if got := c.Model(context.Background()); got != "gemini-2.0-flash" {
		t.Fatalf("Model after failed listing = %q, want configured name", got)
	}
	fail = false
	if got := c.Model(context.Background()); got != "gemini-1.5-flash" {
		t.Fatalf("Model after recovery = %q, want gemini-1.5-flash", got)
	}
	if calls != 2 {
		t.Fatalf("ListModels called %d times, want 2", calls)
	}
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text(`{"questions":`),
				genai.Blob{MIMEType: "image/png"},
				genai.Text(`[]}`),
			}},
		}},
	}
	if got := responseText(resp); got != `{"questions":[]}` {
		t.Fatalf("responseText = %q", got)
	}
	if got := responseText(&genai.GenerateContentResponse{}); got != "" {
		t.Fatalf("responseText(no candidates) = %q, want empty", got)
	}
}
