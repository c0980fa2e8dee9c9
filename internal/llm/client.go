// Package llm provides the structured-completion capability the generation
// agents compose: turn (system prompt, user prompt) into text or schema-shaped
// JSON with bounded transport retry.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"certquiz/internal/config"
)

// Client defines the interface for LLM completion providers.
type Client interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CallError indicates the provider's transport retry budget was exhausted.
type CallError struct {
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("llm call failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// ParseError indicates the response did not satisfy the expected structured
// shape. Parse failures are never retried; the LLM already produced and
// committed to a malformed answer.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("failed to parse llm response: %s (response was: %q)", e.Reason, raw)
}

// Caller wraps a Client with bounded retry and JSON decoding. It is the one
// completion path shared by every agent role.
type Caller struct {
	client     Client
	maxRetries int
	backoff    time.Duration
}

// NewCaller creates a Caller around the given client.
// maxRetries <= 0 defaults to 3 attempts.
func NewCaller(client Client, maxRetries int) *Caller {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Caller{
		client:     client,
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
}

// NewCallerFromConfig builds the configured provider and wraps it.
func NewCallerFromConfig(cfg config.LLMConfig, timeout time.Duration) (*Caller, error) {
	var client Client
	var err error

	switch cfg.Provider {
	case "genai":
		client, err = NewGenAIClient(cfg.APIKey, cfg.Model)
	case "openai":
		client, err = NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s (use 'genai' or 'openai')", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewCaller(client, cfg.MaxRetries), nil
}

// Complete sends the prompts and returns raw text, retrying transport
// failures with exponential backoff up to the attempt budget.
func (c *Caller) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		response, err := c.client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < c.maxRetries {
			select {
			case <-time.After(c.backoff * time.Duration(1<<(attempt-1))):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	return "", &CallError{Attempts: c.maxRetries, Err: lastErr}
}

// CompleteJSON sends the prompts, extracts the JSON object from the response
// (tolerating markdown fences and surrounding prose) and decodes it into out.
// A malformed response yields a ParseError without consuming more attempts.
func (c *Caller) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error {
	userPrompt = userPrompt + "\n\nIMPORTANT: Return ONLY valid JSON, no other text."

	response, err := c.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return err
	}

	payload := extractJSON(response)
	if payload == "" {
		return &ParseError{Reason: "no JSON object found", Raw: response}
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return &ParseError{Reason: err.Error(), Raw: response}
	}
	return nil
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsCallError reports whether err is (or wraps) a CallError.
func IsCallError(err error) bool {
	var ce *CallError
	return errors.As(err, &ce)
}

// extractJSON finds the first balanced JSON object in a response, handling
// markdown code fences and leading prose.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		ch := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return response[start : i+1]
				}
			}
		}
	}

	return ""
}
