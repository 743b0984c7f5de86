// Package mcp exposes chatmydocs knowledge bases as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
)

// Custom MCP error codes for chatmydocs.
const (
	// ErrCodeKBNotFound indicates the knowledge base does not exist.
	ErrCodeKBNotFound = -32001

	// ErrCodeProviderFailed indicates an embedding or generation provider failed.
	ErrCodeProviderFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeExtractionFailed indicates a document could not be read.
	ErrCodeExtractionFailed = -32004

	// ErrCodePartialDelete indicates some parts of a knowledge base survived deletion.
	ErrCodePartialDelete = -32005

	// ErrCodeModelMismatch indicates the knowledge base was built with another embedding model.
	ErrCodeModelMismatch = -32006

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var ce *cerrors.Error
	if errors.As(err, &ce) {
		return mapCodedError(ce)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Tool not found.",
		}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: "Invalid parameters.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// mapCodedError converts a coded chatmydocs error to an MCPError.
func mapCodedError(ce *cerrors.Error) *MCPError {
	message := ce.Message
	if ce.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ce.Message, ce.Suggestion)
	}

	switch ce.Code {
	case cerrors.ErrCodeKBNotFound:
		return &MCPError{Code: ErrCodeKBNotFound, Message: message}
	case cerrors.ErrCodePartialDelete:
		return &MCPError{Code: ErrCodePartialDelete, Message: message}
	case cerrors.ErrCodeEmbeddingMismatch:
		return &MCPError{Code: ErrCodeModelMismatch, Message: message}
	case cerrors.ErrCodeEmbeddingProvider, cerrors.ErrCodeGenerationProvider, cerrors.ErrCodeAnswering:
		return &MCPError{Code: ErrCodeProviderFailed, Message: message}
	}

	switch ce.Category {
	case cerrors.CategoryExtraction:
		return &MCPError{Code: ErrCodeExtractionFailed, Message: message}
	case cerrors.CategoryLifecycle:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default: // config, store, internal
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
