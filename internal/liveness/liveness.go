// Package liveness holds the contract of the remote liveness detection
// service and turns its responses into display-ready verdicts.
package liveness

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is what the remote service answered to one submission.
type Response struct {
	StatusCode int
	Body       []byte
	// Payload is Body when it is valid JSON, nil otherwise.
	Payload json.RawMessage
}

// NewResponse wraps a status code and raw body.
func NewResponse(statusCode int, body []byte) *Response {
	resp := &Response{StatusCode: statusCode, Body: body}
	if len(body) > 0 && json.Valid(body) {
		resp.Payload = json.RawMessage(body)
	}
	return resp
}

// OK reports whether the service accepted the image.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// Submitter sends a normalized image to the liveness service.
type Submitter interface {
	Submit(ctx context.Context, image []byte, filename string) (*Response, error)
}

// ClassificationError is returned for application level failures reported
// by the service. Body is kept for diagnostics and is not shown to users.
type ClassificationError struct {
	StatusCode int
	Body       []byte
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("API Error: %d", e.StatusCode)
}
