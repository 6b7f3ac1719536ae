package claudeadapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Claude API error type vocabulary.
const (
	ErrTypeInvalidRequest = "invalid_request_error"
	ErrTypeAuthentication = "authentication_error"
	ErrTypePermission     = "permission_error"
	ErrTypeNotFound       = "not_found_error"
	ErrTypeRateLimit      = "rate_limit_error"
	ErrTypeAPI            = "api_error"
	ErrTypeOverloaded     = "overloaded_error"
)

// Error is the error detail in a Claude API error body.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error implements the error interface, returning the error message.
func (e *Error) Error() string {
	return e.Message
}

// ErrorResponse is the envelope Claude clients expect for failures, both as a
// JSON body and as the payload of an `error` stream event:
// {"type":"error","error":{...}}
type ErrorResponse struct {
	Type string `json:"type"`
	Err  Error  `json:"error"`
}

// Error implements the error interface so an ErrorResponse can travel through
// error returns while keeping its wire structure for marshaling.
func (e *ErrorResponse) Error() string {
	return e.Err.Message
}

// NewErrorResponse builds a Claude-format error envelope.
func NewErrorResponse(errType, message string) *ErrorResponse {
	return &ErrorResponse{Type: "error", Err: Error{Type: errType, Message: message}}
}

// UnsupportedContentError reports a content block the translator cannot
// represent in the target schema (e.g. image blocks). The exchange is aborted
// before any upstream call; surfaced to the caller as a client error.
type UnsupportedContentError struct {
	BlockType string
}

func (e *UnsupportedContentError) Error() string {
	return fmt.Sprintf("content block type %q has no translation target", e.BlockType)
}

// MalformedToolArgumentsError reports a tool-call argument payload that failed
// structural parsing. Recovered locally: the affected block is replaced with
// an error-flagged block and the rest of the message is still delivered.
type MalformedToolArgumentsError struct {
	CallID string
	Name   string
	Err    error
}

func (e *MalformedToolArgumentsError) Error() string {
	return fmt.Sprintf("malformed arguments for tool call %s (%s): %v", e.CallID, e.Name, e.Err)
}

func (e *MalformedToolArgumentsError) Unwrap() error { return e.Err }

// UpstreamTransportError reports a network failure, timeout, or non-success
// status from the gateway. Never retried inside the core.
type UpstreamTransportError struct {
	Status int // zero when no HTTP status was received
	Err    error
}

func (e *UpstreamTransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream gateway returned status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("upstream transport failure: %v", e.Err)
}

func (e *UpstreamTransportError) Unwrap() error { return e.Err }

// UpstreamProtocolError reports a gateway response that does not match the
// expected schema. Propagates like a transport error but is logged distinctly
// for diagnosability.
type UpstreamProtocolError struct {
	Reason string
}

func (e *UpstreamProtocolError) Error() string {
	return fmt.Sprintf("upstream protocol violation: %s", e.Reason)
}

// ToErrorResponse maps an error from the translation or transport layers to a
// Claude-format error envelope and the HTTP status to serve it with. The
// mapping is total: anything unrecognized becomes a generic api_error so the
// client never sees an undocumented error type.
func ToErrorResponse(err error) (*ErrorResponse, int) {
	var (
		errResp *ErrorResponse
		unsupp  *UnsupportedContentError
		trans   *UpstreamTransportError
		proto   *UpstreamProtocolError
	)

	switch {
	case errors.As(err, &errResp):
		return errResp, statusForErrorType(errResp.Err.Type)
	case errors.As(err, &unsupp):
		return NewErrorResponse(ErrTypeInvalidRequest, err.Error()), http.StatusBadRequest
	case errors.As(err, &trans):
		return upstreamErrorResponse(trans)
	case errors.As(err, &proto):
		return NewErrorResponse(ErrTypeAPI, err.Error()), http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return NewErrorResponse(ErrTypeAPI, "upstream request timed out"), http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return NewErrorResponse(ErrTypeAPI, "request canceled"), 499
	default:
		return NewErrorResponse(ErrTypeAPI, err.Error()), http.StatusInternalServerError
	}
}

// upstreamErrorResponse maps a gateway HTTP status onto the closest Claude
// error type. Client-side statuses pass through; everything else is reported
// as a bad gateway.
func upstreamErrorResponse(e *UpstreamTransportError) (*ErrorResponse, int) {
	switch e.Status {
	case http.StatusUnauthorized:
		return NewErrorResponse(ErrTypeAuthentication, e.Error()), http.StatusUnauthorized
	case http.StatusForbidden:
		return NewErrorResponse(ErrTypePermission, e.Error()), http.StatusForbidden
	case http.StatusNotFound:
		return NewErrorResponse(ErrTypeNotFound, e.Error()), http.StatusNotFound
	case http.StatusTooManyRequests:
		return NewErrorResponse(ErrTypeRateLimit, e.Error()), http.StatusTooManyRequests
	case http.StatusServiceUnavailable:
		return NewErrorResponse(ErrTypeOverloaded, e.Error()), http.StatusServiceUnavailable
	default:
		return NewErrorResponse(ErrTypeAPI, e.Error()), http.StatusBadGateway
	}
}

// statusForErrorType returns the HTTP status conventionally paired with a
// Claude error type.
func statusForErrorType(errType string) int {
	switch errType {
	case ErrTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrTypeAuthentication:
		return http.StatusUnauthorized
	case ErrTypePermission:
		return http.StatusForbidden
	case ErrTypeNotFound:
		return http.StatusNotFound
	case ErrTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrTypeOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
