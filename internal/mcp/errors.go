// Package mcp exposes the index, search and status operations as Model
// Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
)

// MCP error codes. The -320xx range is reserved by JSON-RPC for
// implementation-defined server errors.
const (
	ErrCodeIndexNotFound     = -32001
	ErrCodeEmbeddingFailed   = -32002
	ErrCodeTimeout           = -32003
	ErrCodeIndexLocked       = -32004
	ErrCodeDimensionMismatch = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is a tool error with a code and a message meant for the client.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an operation error into an MCPError. A missing index gets
// its own code and a message telling the client how to create one.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	var csErr *cserrors.CodeSearchError
	if !errors.As(err, &csErr) {
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error: " + err.Error()}
	}

	message := csErr.Message
	if csErr.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", csErr.Message, csErr.Suggestion)
	}

	switch csErr.Code {
	case cserrors.ErrCodeIndexNotFound:
		root := csErr.Details["path"]
		if root == "" {
			root = "this project"
		}
		return &MCPError{
			Code:    ErrCodeIndexNotFound,
			Message: fmt.Sprintf("No index exists for %s. Run index_codebase first.", root),
		}
	case cserrors.ErrCodeEmbeddingUnavailable, cserrors.ErrCodeModelTimeout:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case cserrors.ErrCodeIndexLocked:
		return &MCPError{Code: ErrCodeIndexLocked, Message: message}
	case cserrors.ErrCodeDimensionMismatch:
		return &MCPError{Code: ErrCodeDimensionMismatch, Message: message}
	}

	if csErr.Category == cserrors.CategoryValidation {
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	}
	return &MCPError{Code: ErrCodeInternalError, Message: message}
}

// NewInvalidParamsError creates an error for invalid tool arguments.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}
