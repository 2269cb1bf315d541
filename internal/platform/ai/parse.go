package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences removes a leading ``` or ```json fence line and a trailing
// ``` from text. Text without fences is returned trimmed.
func StripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			lang := strings.TrimSpace(s[:nl])
			if lang == "" || isFenceLanguage(lang) {
				s = s[nl+1:]
			}
		} else {
			s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isFenceLanguage(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// DecodeJSON strips code fences from text and unmarshals it into v. Any
// failure is reported as ErrInvalidFormat.
func DecodeJSON(text string, v any) error {
	body := StripCodeFences(text)
	if body == "" {
		return ErrInvalidFormat
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return nil
}
