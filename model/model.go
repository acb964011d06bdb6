package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentpack/core"
)

// ErrNoResponse is returned by Chat when a model closes its channels without a final response.
var ErrNoResponse = errors.New("model returned no response")

// Message is one rendered prompt part in chat order.
type Message struct {
	Role    core.Role `json:"role"`
	Content string    `json:"content"`
}

// Request captures the normalized model input produced by the stage executor.
// Model and Temperature override the adapter defaults when set.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the final completion emitted by a model.
type Response struct {
	ID           string      `json:"id"`
	Model        string      `json:"model"`
	Content      string      `json:"content"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", ...
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Model is the minimal interface required by the engine to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Chat drains a Generate call and returns the last response received.
func Chat(ctx context.Context, m Model, req Request) (*Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var last *Response
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			last = &r
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}
	if last == nil {
		return nil, ErrNoResponse
	}
	return last, nil
}

// MockModel is a lightweight in‑memory Model useful for tests & examples.
//
// By default it answers "Mock response to: <last user message>". Canned answers
// can be registered per prompt, and Delay/Err let tests shape timing and failures.
type MockModel struct {
	info      Info
	mu        sync.RWMutex
	responses map[string]string
	calls     atomic.Int64
	requests  []Request

	// Delay, when set, is waited before answering (honoring ctx).
	Delay func(req Request) time.Duration
	// Err, when set, is consulted before answering; a non-nil result fails the call.
	Err func(req Request) error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Calls returns how many times Generate was invoked.
func (m *MockModel) Calls() int { return int(m.calls.Load()) }

// Requests returns a copy of every request received so far.
func (m *MockModel) Requests() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.calls.Add(1)
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		if m.Delay != nil {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-time.After(m.Delay(req)):
			}
		}
		if m.Err != nil {
			if err := m.Err(req); err != nil {
				errCh <- err
				return
			}
		}

		prompt := lastUserText(req.Messages)
		m.mu.RLock()
		full := m.responses[prompt]
		m.mu.RUnlock()
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", prompt)
		}

		name := req.Model
		if name == "" {
			name = m.info.Name
		}
		respCh <- Response{
			ID:           fmt.Sprintf("mock-%d", m.Calls()),
			Model:        name,
			Content:      full,
			FinishReason: "stop",
			Usage: &TokenUsage{
				PromptTokens:     len(strings.Fields(prompt)),
				CompletionTokens: len(strings.Fields(full)),
				TotalTokens:      len(strings.Fields(prompt)) + len(strings.Fields(full)),
			},
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

func lastUserText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleUser {
			return msgs[i].Content
		}
	}
	return msgs[len(msgs)-1].Content
}
