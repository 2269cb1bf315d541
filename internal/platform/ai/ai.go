// Package ai wraps the generative-text provider used for report drafts and
// patient insights. Callers own the parsing of whatever text comes back.
package ai

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotConfigured = errors.New("AI service is not configured")
	ErrQuotaExceeded = errors.New("AI quota exceeded, try again later")
	ErrInvalidFormat = errors.New("invalid response format")
	ErrEmptyResponse = errors.New("AI service returned no content")
)

// Image is an optional inline attachment sent with a prompt.
type Image struct {
	MIMEType string
	Data     []byte
}

// format returns the image subtype expected by the provider, e.g. "png".
func (i Image) format() string {
	f := strings.TrimPrefix(strings.ToLower(i.MIMEType), "image/")
	if f == "" || f == "jpg" {
		return "jpeg"
	}
	return f
}

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string, images ...Image) (string, error)
}

// Disabled is the Generator used when no API key is configured.
type Disabled struct{}

func (Disabled) Generate(context.Context, string, ...Image) (string, error) {
	return "", ErrNotConfigured
}

// isQuotaError matches the provider's rate-limit failures by their text.
func isQuotaError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"quota", "429", "resource exhausted", "resource_exhausted", "rate limit"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
