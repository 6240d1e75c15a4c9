// Package types holds the JSON envelopes every endpoint answers with.
package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the body of every non-2xx answer. Retryable tells clients
// whether repeating the same request can succeed.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
