package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nao1215/marginalia/internal/model"
)

// stripFences removes a surrounding markdown code fence and any prose
// around the outermost JSON object.
func stripFences(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}

func formatError(err error) error {
	return fmt.Errorf("%w: %w", model.ErrExtractionFormat, err)
}

// parseCombined decodes a full extraction response.
func parseCombined(content string) (*model.RawExtractionResult, error) {
	raw, err := model.ParseRawExtraction([]byte(stripFences(content)))
	if err != nil {
		return nil, formatError(err)
	}
	return raw, nil
}

// parseField decodes the value stored under key in a JSON object response.
func parseField[T any](content, key string) (T, error) {
	var zero T

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripFences(content)), &obj); err != nil {
		return zero, formatError(err)
	}
	field, ok := obj[key]
	if !ok {
		return zero, formatError(fmt.Errorf("missing %q", key))
	}

	var v T
	if err := json.Unmarshal(field, &v); err != nil {
		return zero, formatError(fmt.Errorf("%s: %w", key, err))
	}
	return v, nil
}
