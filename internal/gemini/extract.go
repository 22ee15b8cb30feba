package gemini

import (
	"errors"
	"strings"
)

// ErrNoJSON is returned when a response holds no JSON object or array.
var ErrNoJSON = errors.New("no JSON content found in response")

// ExtractJSON pulls the JSON payload out of model text that may be wrapped
// in markdown fences or surrounded by prose. It slices from the first '{' or
// '[' to the last matching closer; the result still has to be decoded.
func ExtractJSON(text string) (string, error) {
	text = stripFences(strings.TrimSpace(text))
	return sliceFrom(text, strings.IndexAny(text, "{["))
}

// ExtractObject is ExtractJSON for callers that only want a '{' payload.
func ExtractObject(text string) (string, error) {
	text = stripFences(strings.TrimSpace(text))
	return sliceFrom(text, strings.IndexByte(text, '{'))
}

func sliceFrom(text string, start int) (string, error) {
	if start < 0 {
		return "", ErrNoJSON
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end < start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

func stripFences(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}
	body := text[open+3:]
	// drop the info string, e.g. ```json
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
