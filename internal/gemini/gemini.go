package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	// DefaultModel is used when GEMINI_MODEL is unset.
	DefaultModel = "gemini-2.0-flash"

	generateContent = "generateContent"
)

// modelInfo is the part of genai.ModelInfo discovery looks at.
type modelInfo struct {
	Name    string
	Methods []string
}

// Client wraps the Gemini client
type Client struct {
	client    *genai.Client
	preferred string

	list  func(ctx context.Context) ([]modelInfo, error)
	group singleflight.Group

	mu       sync.Mutex
	resolved string
}

// NewClient creates a new Gemini client. model may be empty.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := newClient(model)
	c.client = client
	c.list = c.listModels
	return c, nil
}

func newClient(model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{preferred: strings.TrimPrefix(model, "models/")}
}

// Close closes the Gemini client
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Generate sends prompt as a single text part and returns the concatenated
// text of the first candidate. The response is requested as JSON.
func (c *Client) Generate(ctx context.Context, prompt string, maxOutputTokens int32) (string, error) {
	name := c.Model(ctx)

	model := c.client.GenerativeModel(name)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)
	if maxOutputTokens > 0 {
		model.SetMaxOutputTokens(maxOutputTokens)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content with %s: %w", name, err)
	}
	if u := resp.UsageMetadata; u != nil {
		log.Printf("INFO: gemini %s: prompt=%d candidates=%d total=%d tokens",
			name, u.PromptTokenCount, u.CandidatesTokenCount, u.TotalTokenCount)
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

// Model returns the model name to generate with. The first call lists the
// models available to the API key; a successful pick is remembered for the
// lifetime of the client.
func (c *Client) Model(ctx context.Context) string {
	c.mu.Lock()
	resolved := c.resolved
	c.mu.Unlock()
	if resolved != "" {
		return resolved
	}

	v, _, _ := c.group.Do("model", func() (interface{}, error) {
		c.mu.Lock()
		resolved := c.resolved
		c.mu.Unlock()
		if resolved != "" {
			return resolved, nil
		}
		return c.discover(ctx), nil
	})
	return v.(string)
}

func (c *Client) discover(ctx context.Context) string {
	models, err := c.list(ctx)
	if err != nil {
		log.Printf("WARN: gemini model listing failed, using %s: %v", c.preferred, err)
		return c.preferred
	}

	name, ok := pickModel(c.preferred, models)
	if !ok {
		log.Printf("WARN: no listed model supports %s, using %s", generateContent, c.preferred)
		name = c.preferred
	} else if name != c.preferred {
		log.Printf("WARN: model %s not available, falling back to %s", c.preferred, name)
	}

	c.mu.Lock()
	c.resolved = name
	c.mu.Unlock()
	log.Printf("INFO: gemini model resolved to %s", name)
	return name
}

func (c *Client) listModels(ctx context.Context) ([]modelInfo, error) {
	var out []modelInfo
	it := c.client.ListModels(ctx)
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, modelInfo{Name: m.Name, Methods: m.SupportedGenerationMethods})
	}
	return out, nil
}

// pickModel prefers the configured name and otherwise takes the first model
// that can generate content. Names are compared without the "models/" prefix.
func pickModel(preferred string, models []modelInfo) (string, bool) {
	first := ""
	for _, m := range models {
		if !supports(m.Methods, generateContent) {
			continue
		}
		name := strings.TrimPrefix(m.Name, "models/")
		if name == preferred {
			return name, true
		}
		if first == "" {
			first = name
		}
	}
	return first, first != ""
}

func supports(methods []string, want string) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}
