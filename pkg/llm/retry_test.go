package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider returns queued outcomes in order and records calls.
type scriptedProvider struct {
	completions []func() (*CompletionResult, error)
	calls       []CompletionRequest

	embedOutcomes []func() ([][]float32, error)
	embedCalls    int
}

func (p *scriptedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	p.calls = append(p.calls, req)
	if len(p.completions) == 0 {
		return &CompletionResult{Content: "ok", ActualModel: req.Model}, nil
	}
	next := p.completions[0]
	p.completions = p.completions[1:]
	return next()
}

func (p *scriptedProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	p.embedCalls++
	if len(p.embedOutcomes) == 0 {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1}
		}
		return out, nil
	}
	next := p.embedOutcomes[0]
	p.embedOutcomes = p.embedOutcomes[1:]
	return next()
}

func fail(err error) func() (*CompletionResult, error) {
	return func() (*CompletionResult, error) { return nil, err }
}

func succeed(content string) func() (*CompletionResult, error) {
	return func() (*CompletionResult, error) {
		return &CompletionResult{Content: content}, nil
	}
}

func newTestClient(t *testing.T, primary, fallback Provider) (*RetryingClient, *[]time.Duration) {
	t.Helper()
	c, err := NewRetryingClient(RetryingClientConfig{
		Primary:       primary,
		Fallback:      fallback,
		FallbackModel: "fallback-model",
	})
	require.NoError(t, err)

	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestCompleteSucceedsAfterRetry(t *testing.T) {
	primary := &scriptedProvider{completions: []func() (*CompletionResult, error){
		fail(&APIError{StatusCode: 503, Message: "unavailable"}),
		succeed("second try"),
	}}
	c, slept := newTestClient(t, primary, nil)

	result, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "second try", result.Content)
	assert.False(t, result.UsedFallback)
	assert.Len(t, primary.calls, 2)
	require.Len(t, *slept, 1)
	assert.Equal(t, time.Second, (*slept)[0])
}

func TestCompleteHonorsRetryAfter(t *testing.T) {
	primary := &scriptedProvider{completions: []func() (*CompletionResult, error){
		fail(&APIError{StatusCode: 429, Message: "rate limited", RetryAfter: 5 * time.Second}),
		succeed("ok"),
	}}
	c, slept := newTestClient(t, primary, nil)

	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	require.Len(t, *slept, 1)
	assert.Equal(t, 5*time.Second, (*slept)[0])
}

func TestCompleteCapsRetryAfter(t *testing.T) {
	primary := &scriptedProvider{completions: []func() (*CompletionResult, error){
		fail(&APIError{StatusCode: 429, Message: "rate limited", RetryAfter: 120 * time.Second}),
		succeed("ok"),
	}}
	c, slept := newTestClient(t, primary, nil)

	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	require.Len(t, *slept, 1)
	assert.Equal(t, 30*time.Second, (*slept)[0])
}

func TestCompleteNeverRetriesParseErrors(t *testing.T) {
	primary := &scriptedProvider{completions: []func() (*CompletionResult, error){
		fail(NewParseError("not json")),
	}}
	fallback := &scriptedProvider{}
	c, slept := newTestClient(t, primary, fallback)

	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.True(t, IsParseError(err))
	assert.Len(t, primary.calls, 1)
	assert.Empty(t, *slept)
	// Parse errors still trigger the fallback after the single attempt.
	assert.Len(t, fallback.calls, 1)
}

func TestCompleteCreditsErrorFallsBackImmediately(t *testing.T) {
	primary := &scriptedProvider{completions: []func() (*CompletionResult, error){
		fail(&APIError{StatusCode: 402, Message: "out of credits"}),
	}}
	fallback := &scriptedProvider{completions: []func() (*CompletionResult, error){
		succeed("from fallback"),
	}}
	c, slept := newTestClient(t, primary, fallback)

	result, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o", Prompt: "hi"})
	require.NoError(t, err)
	assert.True(t, result.UsedFallback)
	assert.Equal(t, "fallback-model", result.ActualModel)
	assert.Equal(t, "from fallback", result.Content)
	assert.Len(t, primary.calls, 1, "credits error must not be retried")
	assert.Empty(t, *slept)
	require.Len(t, fallback.calls, 1)
	assert.Equal(t, "fallback-model", fallback.calls[0].Model)
}

func TestCompleteExhaustedPrimaryUsesFallback(t *testing.T) {
	primary := &scriptedProvider{completions: []func() (*CompletionResult, error){
		fail(&APIError{StatusCode: 503, Message: "down"}),
		fail(&APIError{StatusCode: 503, Message: "still down"}),
	}}
	fallback := &scriptedProvider{completions: []func() (*CompletionResult, error){
		succeed("rescued"),
	}}
	c, _ := newTestClient(t, primary, fallback)

	result, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.True(t, result.UsedFallback)
	assert.Equal(t, "rescued", result.Content)
	assert.Len(t, primary.calls, 2)
}

func TestCompleteBothProvidersFail(t *testing.T) {
	primary := &scriptedProvider{completions: []func() (*CompletionResult, error){
		fail(&APIError{StatusCode: 503, Message: "down"}),
		fail(&APIError{StatusCode: 503, Message: "down"}),
	}}
	fallback := &scriptedProvider{completions: []func() (*CompletionResult, error){
		fail(&APIError{StatusCode: 500, Message: "also down"}),
	}}
	c, _ := newTestClient(t, primary, fallback)

	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback failed")
}

func TestCompleteNonRecoverableSkipsRetryAndUsesFallback(t *testing.T) {
	primary := &scriptedProvider{completions: []func() (*CompletionResult, error){
		fail(&APIError{StatusCode: 401, Message: "bad key"}),
	}}
	fallback := &scriptedProvider{completions: []func() (*CompletionResult, error){
		succeed("rescued"),
	}}
	c, slept := newTestClient(t, primary, fallback)

	result, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.True(t, result.UsedFallback)
	assert.Len(t, primary.calls, 1)
	assert.Empty(t, *slept)
}

func TestCompleteFallbackDisabledByEnv(t *testing.T) {
	t.Setenv(EnvFallbackEnabled, "false")

	primary := &scriptedProvider{completions: []func() (*CompletionResult, error){
		fail(&APIError{StatusCode: 503, Message: "down"}),
		fail(&APIError{StatusCode: 503, Message: "down"}),
	}}
	fallback := &scriptedProvider{}
	c, _ := newTestClient(t, primary, fallback)

	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Empty(t, fallback.calls)
}

func TestEmbedRetriesAndFallsBack(t *testing.T) {
	primary := &scriptedProvider{embedOutcomes: []func() ([][]float32, error){
		func() ([][]float32, error) { return nil, &APIError{StatusCode: 503, Message: "down"} },
		func() ([][]float32, error) { return nil, &APIError{StatusCode: 503, Message: "down"} },
	}}
	fallback := &scriptedProvider{}
	c, _ := newTestClient(t, primary, fallback)

	vectors, err := c.Embed(context.Background(), []string{"a", "b"}, "text-embedding-3-small")
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 2, primary.embedCalls)
	assert.Equal(t, 1, fallback.embedCalls)
}

func TestFallbackEnabledDefault(t *testing.T) {
	t.Setenv(EnvFallbackEnabled, "")
	assert.True(t, FallbackEnabled())

	t.Setenv(EnvFallbackEnabled, "FALSE")
	assert.True(t, FallbackEnabled(), "only the literal lowercase false disables")

	t.Setenv(EnvFallbackEnabled, "false")
	assert.False(t, FallbackEnabled())
}
