package model

// ErrorType classifies who is responsible for a relay failure.
type ErrorType string

const (
	// ErrorTypeRelay marks errors produced by this gateway itself.
	ErrorTypeRelay ErrorType = "agrelay_error"
	// ErrorTypeInvalidRequest marks malformed client payloads.
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeUpstream marks errors propagated from the upstream backend.
	ErrorTypeUpstream ErrorType = "upstream_error"
	// ErrorTypeServer marks internal server failures.
	ErrorTypeServer ErrorType = "server_error"
)

// Error is the OpenAI-compatible error payload. RawError keeps the original
// Go error for logging and is never serialized.
type Error struct {
	Message  string    `json:"message"`
	Type     ErrorType `json:"type"`
	Param    string    `json:"param,omitempty"`
	Code     any       `json:"code,omitempty"`
	RawError error     `json:"-"`
}

// ErrorWithStatusCode couples an error payload with the HTTP status to
// surface it under.
type ErrorWithStatusCode struct {
	Error
	StatusCode int `json:"-"`
}
