// Package errors provides structured error handling for chatmydocs.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Document extraction errors
//   - 3XX: Provider and vector store errors
//   - 4XX: Knowledge-base lifecycle and validation errors
//   - 5XX: Answering and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryExtraction Category = "EXTRACTION"
	CategoryProvider   Category = "PROVIDER"
	CategoryLifecycle  Category = "LIFECYCLE"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid  = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigNotFound = "ERR_102_CONFIG_NOT_FOUND"

	// Extraction errors (200-299)
	ErrCodeExtraction        = "ERR_201_EXTRACTION"
	ErrCodeUnsupportedFormat = "ERR_202_UNSUPPORTED_FORMAT"
	ErrCodeOCRFailed         = "ERR_203_OCR_FAILED"

	// Provider and store errors (300-399)
	ErrCodeEmbeddingProvider  = "ERR_301_EMBEDDING_PROVIDER"
	ErrCodeGenerationProvider = "ERR_302_GENERATION_PROVIDER"
	ErrCodeStoreCreation      = "ERR_303_STORE_CREATION"
	ErrCodeEmbeddingMismatch  = "ERR_304_EMBEDDING_MISMATCH"
	ErrCodeStoreIO            = "ERR_305_STORE_IO"

	// Lifecycle errors (400-499)
	ErrCodeInvalidName   = "ERR_401_INVALID_NAME"
	ErrCodeInvalidOwner  = "ERR_402_INVALID_OWNER"
	ErrCodeKBNotFound    = "ERR_404_KB_NOT_FOUND"
	ErrCodePartialDelete = "ERR_405_PARTIAL_DELETE"
	ErrCodeUserExists    = "ERR_406_USER_EXISTS"
	ErrCodeAuthFailed    = "ERR_407_AUTH_FAILED"
	ErrCodeInvalidInput  = "ERR_408_INVALID_INPUT"

	// Answering and internal errors (500-599)
	ErrCodeAnswering = "ERR_501_ANSWERING"
	ErrCodeInternal  = "ERR_502_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "404" from "ERR_404_KB_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryExtraction
	case '3':
		return CategoryProvider
	case '4':
		return CategoryLifecycle
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreCreation, ErrCodeConfigInvalid:
		return SeverityFatal
	case ErrCodeOCRFailed, ErrCodePartialDelete:
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports codes whose operation the user may simply resend.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingProvider, ErrCodeGenerationProvider, ErrCodeAnswering, ErrCodeStoreIO:
		return true
	default:
		return false
	}
}
