package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
)

// ErrEmbeddingUnsupported is returned by providers without an embedding
// surface; the factory routes embeddings around them.
var ErrEmbeddingUnsupported = errors.New("provider does not support embeddings")

// APIError is a transport or API-level failure from a provider, carrying
// enough detail for classification and retry pacing.
type APIError struct {
	StatusCode int
	Message    string
	// RetryAfter is the parsed Retry-After header, zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error (%d): %s", e.StatusCode, e.Message)
}

var creditsPattern = regexp.MustCompile(`(?i)credits|insufficient|can only afford`)

// IsCreditsError reports whether the error indicates exhausted credits.
// Credits errors bypass retry and trigger immediate fallback.
func IsCreditsError(err error) bool {
	var api *APIError
	if !errors.As(err, &api) {
		return false
	}
	return api.StatusCode == 402 || creditsPattern.MatchString(api.Message)
}

// IsParseError reports whether the error is an unusable-response error.
// Parse errors are never retried.
func IsParseError(err error) bool {
	return agenterr.CodeOf(err) == agenterr.CodeLLMParseFailed
}

// NewParseError builds the unusable-response error.
func NewParseError(detail string) error {
	return agenterr.Recoverable(agenterr.CodeLLMParseFailed,
		"llm returned an unusable response: %s", detail)
}

// Classify maps an API error onto the agent error taxonomy:
//
//	408/504 or a timeout message  -> DOC_LLM_TIMEOUT (recoverable)
//	429/503                       -> DOC_LLM_FAILED (recoverable)
//	400/401/403                   -> DOC_LLM_FAILED (not recoverable)
//
// Anything else passes through unchanged.
func Classify(err error) error {
	var api *APIError
	if !errors.As(err, &api) {
		return err
	}

	msg := strings.ToLower(api.Message)
	switch {
	case api.StatusCode == 408 || api.StatusCode == 504 || strings.Contains(msg, "timeout"):
		return agenterr.Recoverable(agenterr.CodeLLMTimeout,
			"llm call timed out (status %d)", api.StatusCode).Wrap(api)
	case api.StatusCode == 429 || api.StatusCode == 503:
		ae := agenterr.Recoverable(agenterr.CodeLLMFailed,
			"llm provider unavailable (status %d)", api.StatusCode).Wrap(api)
		if api.RetryAfter > 0 {
			ae.With("retry_after_seconds", int(api.RetryAfter.Seconds()))
		}
		return ae
	case api.StatusCode == 400 || api.StatusCode == 401 || api.StatusCode == 403:
		return agenterr.New(agenterr.CodeLLMFailed, agenterr.SeverityError, false,
			"llm request rejected (status %d): %s", api.StatusCode, api.Message).Wrap(api)
	default:
		return agenterr.Recoverable(agenterr.CodeLLMFailed,
			"llm call failed (status %d): %s", api.StatusCode, api.Message).Wrap(api)
	}
}

// RetryAfterOf extracts the Retry-After duration from an error chain.
func RetryAfterOf(err error) time.Duration {
	var api *APIError
	if errors.As(err, &api) {
		return api.RetryAfter
	}
	return 0
}
