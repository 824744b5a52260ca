// Package agenterr defines the machine-stable error taxonomy shared by the
// planner, documenter, and indexer. Every error carries a code, a severity,
// and a recoverable flag; progress files and manifests surface these to the
// external observer.
package agenterr

import (
	"errors"
	"fmt"
	"time"
)

// Severity levels.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
	SeverityFatal   = "fatal"
)

// Planner codes.
const (
	CodeConfigNotFound = "CONFIG_NOT_FOUND"
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeDBUnreachable  = "DB_UNREACHABLE"
)

// Documenter codes.
const (
	CodePlanNotFound           = "DOC_PLAN_NOT_FOUND"
	CodePlanInvalid            = "DOC_PLAN_INVALID"
	CodePlanStale              = "DOC_PLAN_STALE"
	CodeDBConnectionLost       = "DOC_DB_CONNECTION_LOST"
	CodeWorkUnitFailed         = "DOC_WORK_UNIT_FAILED"
	CodeTableExtractionFailed  = "DOC_TABLE_EXTRACTION_FAILED"
	CodeColumnExtractionFailed = "DOC_COLUMN_EXTRACTION_FAILED"
	CodeSamplingTimeout        = "DOC_SAMPLING_TIMEOUT"
	CodeSamplingFailed         = "DOC_SAMPLING_FAILED"
	CodeLLMTimeout             = "DOC_LLM_TIMEOUT"
	CodeLLMFailed              = "DOC_LLM_FAILED"
	CodeLLMParseFailed         = "DOC_LLM_PARSE_FAILED"
	CodeTemplateNotFound       = "DOC_TEMPLATE_NOT_FOUND"
	CodeFileWriteFailed        = "DOC_FILE_WRITE_FAILED"
	CodeManifestWriteFailed    = "DOC_MANIFEST_WRITE_FAILED"
)

// Indexer codes.
const (
	CodeManifestNotFound = "IDX_MANIFEST_NOT_FOUND"
	CodeManifestInvalid  = "IDX_MANIFEST_INVALID"
	CodeFileFailed       = "IDX_FILE_FAILED"
	CodeEmbeddingFailed  = "IDX_EMBEDDING_FAILED"
	CodeFatal            = "IDX_FATAL_ERROR"
)

// AgentError is the typed error carried across stage boundaries.
type AgentError struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Severity    string                 `json:"severity"`
	Recoverable bool                   `json:"recoverable"`
	Timestamp   time.Time              `json:"timestamp"`
	Context     map[string]interface{} `json:"context,omitempty"`

	wrapped error
}

// New creates an AgentError with an explicit severity and recoverability.
func New(code, severity string, recoverable bool, format string, args ...interface{}) *AgentError {
	return &AgentError{
		Code:        code,
		Message:     fmt.Sprintf(format, args...),
		Severity:    severity,
		Recoverable: recoverable,
		Timestamp:   time.Now().UTC(),
	}
}

// Wrap attaches a cause to the error and returns it.
func (e *AgentError) Wrap(err error) *AgentError {
	e.wrapped = err
	return e
}

// With adds a context key/value and returns the error.
func (e *AgentError) With(key string, value interface{}) *AgentError {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[key] = value
	return e
}

func (e *AgentError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error { return e.wrapped }

// Is matches on code so callers can compare against sentinel instances.
func (e *AgentError) Is(target error) bool {
	var ae *AgentError
	if errors.As(target, &ae) {
		return ae.Code == e.Code
	}
	return false
}

// IsFatal reports whether the error should abort the stage.
func (e *AgentError) IsFatal() bool { return e.Severity == SeverityFatal }

// CodeOf extracts the agent error code from an error chain, or "".
func CodeOf(err error) string {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsRecoverable reports the recoverable flag of the first AgentError in the
// chain. Unknown errors are treated as non-recoverable.
func IsRecoverable(err error) bool {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Recoverable
	}
	return false
}

// Warning builds a warning-severity recoverable error.
func Warning(code, format string, args ...interface{}) *AgentError {
	return New(code, SeverityWarning, true, format, args...)
}

// Recoverable builds an error-severity recoverable error.
func Recoverable(code, format string, args ...interface{}) *AgentError {
	return New(code, SeverityError, true, format, args...)
}

// Fatal builds a fatal, non-recoverable error.
func Fatal(code, format string, args ...interface{}) *AgentError {
	return New(code, SeverityFatal, false, format, args...)
}
