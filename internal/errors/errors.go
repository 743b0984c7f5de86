package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Error is the structured error type shared by every chatmydocs component.
// Component boundaries return *Error so callers can branch on Code while
// the CLI and MCP layers render Message and Suggestion.
type Error struct {
	// Code is the unique error code (e.g., "ERR_404_KB_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code's hundreds digit.
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details carries context such as the failing file or knowledge base.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable marks transport failures a caller may resend.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code, so errors.Is can match
// against the sentinel values below.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the user hint and returns the error for chaining.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates an Error whose category, severity and retryability are
// derived from code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from err using err's text as the message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons. They only carry a code.
var (
	ErrExtraction        = &Error{Code: ErrCodeExtraction}
	ErrUnsupportedFormat = &Error{Code: ErrCodeUnsupportedFormat}
	ErrEmbeddingProvider = &Error{Code: ErrCodeEmbeddingProvider}
	ErrGeneration        = &Error{Code: ErrCodeGenerationProvider}
	ErrStoreCreation     = &Error{Code: ErrCodeStoreCreation}
	ErrEmbeddingMismatch = &Error{Code: ErrCodeEmbeddingMismatch}
	ErrNotFound          = &Error{Code: ErrCodeKBNotFound}
	ErrPartialDelete     = &Error{Code: ErrCodePartialDelete}
	ErrUserExists        = &Error{Code: ErrCodeUserExists}
	ErrAuthFailed        = &Error{Code: ErrCodeAuthFailed}
	ErrAnswering         = &Error{Code: ErrCodeAnswering}
)

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// ExtractionError reports an unsupported or corrupt upload. The offending
// filename is part of the message.
func ExtractionError(file string, cause error) *Error {
	msg := fmt.Sprintf("failed to extract text from %q", file)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return New(ErrCodeExtraction, msg, cause).
		WithDetail("file", file).
		WithSuggestion("Remove or convert the file and try again")
}

// UnsupportedFormatError reports an extension no loader handles.
func UnsupportedFormatError(file, ext string) *Error {
	return New(ErrCodeUnsupportedFormat,
		fmt.Sprintf("unsupported file type %q for %q", ext, file), nil).
		WithDetail("file", file).
		WithSuggestion("Supported types: pdf, docx, pptx, xlsx, txt, md, csv, png, jpg, jpeg")
}

// OCRFailed records a skipped image. It is only ever surfaced as a warning.
func OCRFailed(file string, cause error) *Error {
	return New(ErrCodeOCRFailed, fmt.Sprintf("text recognition failed for %q, file skipped", file), cause).
		WithDetail("file", file)
}

// EmbeddingProviderError wraps a failure from the embedding service.
func EmbeddingProviderError(op string, cause error) *Error {
	return New(ErrCodeEmbeddingProvider, fmt.Sprintf("embedding provider failed during %s", op), cause).
		WithSuggestion("Check that the embedding service is reachable and the model is available")
}

// GenerationProviderError wraps a failure from the text-generation service.
func GenerationProviderError(cause error) *Error {
	return New(ErrCodeGenerationProvider, "text generation failed", cause)
}

// StoreCreationError reports an index that could not be created or appended to.
func StoreCreationError(locator string, cause error) *Error {
	msg := fmt.Sprintf("failed to build vector index %q", locator)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return New(ErrCodeStoreCreation, msg, cause).WithDetail("locator", locator)
}

// EmbeddingMismatchError reports a knowledge base built with another model.
func EmbeddingMismatchError(kb, built, active string) *Error {
	return New(ErrCodeEmbeddingMismatch,
		fmt.Sprintf("knowledge base %q was built with embedding model %q but %q is configured", kb, built, active), nil).
		WithDetail("kb", kb).
		WithSuggestion("Configure the original embedding model or rebuild the knowledge base")
}

// NotFoundFailure is the typed "no such knowledge base" result.
func NotFoundFailure(owner, name string) *Error {
	return New(ErrCodeKBNotFound, fmt.Sprintf("knowledge base %q not found", name), nil).
		WithDetail("owner", owner).
		WithDetail("kb", name)
}

// PartialDeleteFailure reports the parts of a knowledge base that could not
// be removed. failed maps part name to its error.
func PartialDeleteFailure(owner, name string, failed map[string]error) *Error {
	parts := make([]string, 0, len(failed))
	for p := range failed {
		parts = append(parts, p)
	}
	sort.Strings(parts)

	causes := make([]error, 0, len(parts))
	for _, p := range parts {
		causes = append(causes, fmt.Errorf("%s: %w", p, failed[p]))
	}

	e := New(ErrCodePartialDelete,
		fmt.Sprintf("knowledge base %q was only partially deleted (failed: %s)", name, strings.Join(parts, ", ")),
		stderrors.Join(causes...)).
		WithDetail("owner", owner).
		WithDetail("kb", name).
		WithSuggestion("Run delete again to remove the remaining state")
	for _, p := range parts {
		e.WithDetail("failed_"+p, failed[p].Error())
	}
	return e
}

// AnsweringError wraps any failure while answering a question.
func AnsweringError(cause error) *Error {
	msg := "failed to answer question"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return New(ErrCodeAnswering, msg, cause).
		WithSuggestion("Resend the question; the provider may be temporarily unavailable")
}

// IsNotFound reports whether err is a NotFoundFailure anywhere in its chain.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

// IsPartialDelete reports whether err is a PartialDeleteFailure.
func IsPartialDelete(err error) bool {
	return stderrors.Is(err, ErrPartialDelete)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCode extracts the code of the first *Error in err's chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetCategory extracts the category of the first *Error in err's chain.
func GetCategory(err error) Category {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category
	}
	return ""
}
