package claudeadapter

import (
	"context"
	"iter"
	"net/http"
)

// Adapter defines the contract for transforming client requests to provider
// API calls.
//
// Type parameters allow the interface to express transformation contracts for
// different request/response shapes while maintaining compile-time type
// safety.
//
// Type parameters:
//   - TRequest:  Client-specific request structure
//   - TResponse: Client-specific response structure
//   - TEvent:    Client-specific streaming event protocol
type Adapter[TRequest, TResponse, TEvent any] interface {
	// ProcessRequest transforms the client request, calls the provider API, and
	// returns the transformed response. Implementations should remain stateless
	// across calls; per-exchange state lives in a conversion context owned by
	// the call.
	ProcessRequest(ctx context.Context, clientReq TRequest, transport http.RoundTripper) (*TResponse, error)

	// ProcessStreamingRequest transforms the client request, calls the provider
	// streaming API, and returns an iterator of transformed events. The
	// iterator yields at most one error, as its final element; no events follow
	// an error.
	ProcessStreamingRequest(ctx context.Context, clientReq TRequest, transport http.RoundTripper) (iter.Seq2[StreamEvent, error], error)
}

// MessagesAdapter is the concrete adapter contract for the Claude Messages
// operation served by this gateway.
type MessagesAdapter = Adapter[MessagesRequest, MessagesResponse, StreamEvent]
