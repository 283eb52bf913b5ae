// Package fetcher performs HTTP requests on behalf of page contexts that
// cannot reach remote endpoints themselves. Responses are always fully
// buffered; event streams are collapsed into a single chat-completion body.
package fetcher

import "context"

// Request is a proxied HTTP request.
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Response is the buffered result of a proxied request.
type Response struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// Fetcher executes proxied requests.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}
