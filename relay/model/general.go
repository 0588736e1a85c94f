package model

// ResponseFormat mirrors the OpenAI response_format request field.
type ResponseFormat struct {
	Type string `json:"type,omitempty"`
}

// GeneralOpenAIRequest is the canonical chat request every inbound dialect is
// normalized into before translation to the upstream schema. Fields that the
// upstream does not understand are dropped at translation time, not here.
type GeneralOpenAIRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	Tools          []Tool          `json:"tools,omitempty"`
	ToolChoice     any             `json:"tool_choice,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	N              int             `json:"n,omitempty"`
	Stop           any             `json:"stop,omitempty"`
	User           string          `json:"user,omitempty"`
	SessionId      string          `json:"session_id,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// FirstUserMessage returns the first message with the user role, or nil.
func (r *GeneralOpenAIRequest) FirstUserMessage() *Message {
	for i := range r.Messages {
		if r.Messages[i].Role == "user" {
			return &r.Messages[i]
		}
	}
	return nil
}

// LastUserMessage returns the last message with the user role, or nil.
func (r *GeneralOpenAIRequest) LastUserMessage() *Message {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return &r.Messages[i]
		}
	}
	return nil
}
