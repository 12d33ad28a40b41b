// Package assist is the boundary to the remote text-generation service.
// Gateway calls never fail: every error degrades to a fallback value.
package assist

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoCredential = errors.New("text-assist credential is not configured")

type GenerateRequest struct {
	Model  string
	Prompt string
	// ResponseMIMEType asks the service for structured output when set,
	// for example "application/json".
	ResponseMIMEType string
}

type GenerateResponse struct {
	Text string
}

// Generator sends one prompt and returns the model's text.
type Generator interface {
	Generate(ctx context.Context, request GenerateRequest) (*GenerateResponse, error)
}

// ProviderError is a non-200 answer from the service.
type ProviderError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("assist: provider returned %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("assist: provider returned %d: %s", e.StatusCode, e.Message)
}
