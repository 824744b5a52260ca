// Package mock provides a scriptable LLM provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/hashicorp-forge/schemadoc/pkg/llm"
)

// Provider is a scriptable mock provider. Responses are either queued with
// QueueResponse/QueueError (consumed FIFO) or produced by a Script func.
// All calls are recorded for assertions.
type Provider struct {
	mu sync.Mutex

	responses []queued
	errors    []error

	// Script, when set, produces the response for every completion after
	// the queues are drained.
	Script func(req llm.CompletionRequest) (*llm.CompletionResult, error)

	// EmbedDimensions sets the size of generated vectors (default 8).
	EmbedDimensions int

	// EmbedErr, when set, fails every Embed call.
	EmbedErr error

	// EmbedFunc, when set, overrides embedding generation entirely.
	EmbedFunc func(texts []string, model string) ([][]float32, error)

	CompletionCalls []llm.CompletionRequest
	EmbedCalls      [][]string
}

type queued struct {
	result *llm.CompletionResult
	err    error
}

// NewProvider creates an empty mock provider. With no scripted responses it
// echoes a canned completion.
func NewProvider() *Provider {
	return &Provider{EmbedDimensions: 8}
}

// QueueResponse enqueues a successful completion with the given content.
func (p *Provider) QueueResponse(content string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, queued{result: &llm.CompletionResult{
		Content: content,
		Tokens:  llm.TokenUsage{Prompt: 10, Completion: 20, Total: 30},
	}})
	return p
}

// QueueError enqueues a failing completion.
func (p *Provider) QueueError(err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, queued{err: err})
	return p
}

// Complete serves the next queued response, falling back to Script and then
// to a canned response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.CompletionCalls = append(p.CompletionCalls, req)
	if len(p.responses) > 0 {
		next := p.responses[0]
		p.responses = p.responses[1:]
		p.mu.Unlock()
		if next.err != nil {
			return nil, next.err
		}
		result := *next.result
		result.ActualModel = req.Model
		return &result, nil
	}
	script := p.Script
	p.mu.Unlock()

	if script != nil {
		return script(req)
	}

	return &llm.CompletionResult{
		Content:     "mock completion",
		Tokens:      llm.TokenUsage{Prompt: 10, Completion: 20, Total: 30},
		ActualModel: req.Model,
	}, nil
}

// Embed returns deterministic vectors derived from each text's length.
func (p *Provider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, texts)
	embedErr := p.EmbedErr
	embedFunc := p.EmbedFunc
	dims := p.EmbedDimensions
	p.mu.Unlock()

	if embedErr != nil {
		return nil, embedErr
	}
	if embedFunc != nil {
		return embedFunc(texts, model)
	}
	if dims == 0 {
		dims = 8
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, dims)
		for j := range v {
			v[j] = float32((len(text)+i+j)%17) / 17.0
		}
		out[i] = v
	}
	return out, nil
}
