package quiz

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"studyhub/internal/apperr"
	"studyhub/internal/gemini"
	"studyhub/internal/models"
)

// IndexPolicy decides what happens to a generated question whose
// correctIndex falls outside its choices.
type IndexPolicy string

const (
	IndexKeep   IndexPolicy = "keep"   // store as-is and log
	IndexReject IndexPolicy = "reject" // drop the question
)

func ParseIndexPolicy(s string) IndexPolicy {
	switch p := IndexPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case IndexKeep, IndexReject:
		return p
	case "":
		return IndexKeep
	default:
		log.Printf("WARN: unknown index policy %q, using %q", s, IndexKeep)
		return IndexKeep
	}
}

const maxStoredQuestions = 50

var (
	promptKeys      = []string{"prompt", "question", "text"}
	choiceKeys      = []string{"choices", "options"}
	indexKeys       = []string{"correctIndex", "correct_index", "answerIndex"}
	choiceTextKeys  = []string{"text", "choice", "label", "value"}
	qIDKeys         = []string{"qId", "id", "questionId"}
	explanationKeys = []string{"explanation", "justification", "text"}
)

type candidate struct {
	id       string
	question models.Question
}

// normalizeQuestions coerces raw model text into a question list.
func normalizeQuestions(raw string, policy IndexPolicy) ([]models.Question, error) {
	items, err := decodeItems(raw, "questions")
	if err != nil {
		return nil, err
	}

	var cands []candidate
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			log.Printf("WARN: Skipping generated question %d: not an object", i+1)
			continue
		}
		prompt := strings.TrimSpace(stringField(m, promptKeys...))
		if prompt == "" {
			log.Printf("WARN: Skipping generated question %d: empty prompt", i+1)
			continue
		}
		choices, marked := choiceList(m)
		if len(choices) == 0 {
			log.Printf("WARN: Skipping generated question %d: no choices", i+1)
			continue
		}

		idx, ok := intField(m, indexKeys...)
		if !ok {
			idx = max(marked, 0)
		}
		if idx < 0 || idx >= len(choices) {
			if policy == IndexReject {
				log.Printf("WARN: Dropping generated question %d: correctIndex %d outside %d choices", i+1, idx, len(choices))
				continue
			}
			log.Printf("WARN: Generated question %d keeps correctIndex %d outside %d choices", i+1, idx, len(choices))
		}

		cands = append(cands, candidate{
			id: strings.TrimSpace(stringField(m, "id")),
			question: models.Question{
				Prompt:       prompt,
				Choices:      choices,
				CorrectIndex: idx,
			},
		})
	}

	if len(cands) == 0 {
		return nil, apperr.New(apperr.KindEmptyGeneration, "model returned no usable questions")
	}
	if len(cands) > maxStoredQuestions {
		log.Printf("WARN: Model returned %d questions, keeping the first %d", len(cands), maxStoredQuestions)
		cands = cands[:maxStoredQuestions]
	}
	return assignIDs(cands), nil
}

// assignIDs keeps each supplied id that is unique and gives the rest a
// positional "qN" id that does not collide with any kept one.
func assignIDs(cands []candidate) []models.Question {
	count := make(map[string]int, len(cands))
	for _, c := range cands {
		if c.id != "" {
			count[c.id]++
		}
	}
	used := make(map[string]bool, len(cands))
	for id, n := range count {
		if n == 1 {
			used[id] = true
		}
	}

	out := make([]models.Question, len(cands))
	for i, c := range cands {
		q := c.question
		if c.id != "" && count[c.id] == 1 {
			q.ID = c.id
		} else {
			n := i + 1
			for used[fmt.Sprintf("q%d", n)] {
				n++
			}
			q.ID = fmt.Sprintf("q%d", n)
			used[q.ID] = true
		}
		out[i] = q
	}
	return out
}

// normalizeJustifications keeps one explanation per selected id, in the
// order of ids. Entries for other ids are dropped.
func normalizeJustifications(raw string, ids []string) ([]models.Justification, error) {
	items, err := decodeItems(raw, "justifications")
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	found := make(map[string]string, len(ids))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		qid := strings.TrimSpace(stringField(m, qIDKeys...))
		text := strings.TrimSpace(stringField(m, explanationKeys...))
		if qid == "" || text == "" || !wanted[qid] {
			continue
		}
		if _, dup := found[qid]; !dup {
			found[qid] = text
		}
	}

	out := make([]models.Justification, 0, len(found))
	for _, id := range ids {
		if text, ok := found[id]; ok {
			out = append(out, models.Justification{QID: id, Explanation: text})
		}
	}
	if len(out) == 0 {
		return nil, apperr.New(apperr.KindEmptyGeneration, "model returned no usable explanations")
	}
	return out, nil
}

// decodeItems extracts the JSON payload and returns the list under key, or
// the payload itself when it is a bare array.
func decodeItems(raw, key string) ([]any, error) {
	payload, err := gemini.ExtractJSON(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGenerationParse, "could not find JSON in model response", err)
	}

	doc, err := decodeDocument(payload)
	if err != nil && payload[0] == '[' {
		// prose such as "here are [2] questions: {...}"
		if obj, oerr := gemini.ExtractObject(raw); oerr == nil {
			if d, derr := decodeDocument(obj); derr == nil {
				doc, err = d, nil
			}
		}
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGenerationParse, "could not parse model response", err)
	}

	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if items, ok := v[key].([]any); ok {
			return items, nil
		}
		return nil, apperr.Newf(apperr.KindGenerationParse, "model response has no %q array", key)
	default:
		return nil, apperr.New(apperr.KindGenerationParse, "model response is not an object or array")
	}
}

// decodeDocument decodes exactly one JSON value; trailing text is an error.
func decodeDocument(payload string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if rest := strings.TrimSpace(payload[dec.InputOffset():]); rest != "" {
		return nil, fmt.Errorf("unexpected text after JSON value: %.40q", rest)
	}
	return doc, nil
}

// choiceList reads the first present choice list. Entries may be strings,
// numbers or option objects; marked is the index of the first option flagged
// is_correct, or -1.
func choiceList(m map[string]any) (choices []string, marked int) {
	marked = -1
	var list []any
	for _, k := range choiceKeys {
		if l, ok := m[k].([]any); ok {
			list = l
			break
		}
	}
	for i, c := range list {
		switch v := c.(type) {
		case map[string]any:
			choices = append(choices, strings.TrimSpace(stringField(v, choiceTextKeys...)))
			if b, _ := v["is_correct"].(bool); b && marked < 0 {
				marked = i
			}
		default:
			choices = append(choices, strings.TrimSpace(scalarString(v)))
		}
	}
	return choices, marked
}

// stringField returns the first key holding a string or number.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// intField returns the first key holding a JSON number. Fractions are
// truncated; huge values and anything else are "not a number".
func intField(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		n, ok := m[k].(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil && math.Abs(f) <= math.MaxInt32 {
			return int(f), true
		}
	}
	return 0, false
}
