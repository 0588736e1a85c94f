package model

// TextResponse is a full (non-streaming) chat completion response.
type TextResponse struct {
	Id      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model,omitempty"`
	Choices []TextResponseChoice `json:"choices"`
	Usage   *Usage               `json:"usage,omitempty"`
}

type TextResponseChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// LegacyTextResponse is the /v1/completions (text_completion) projection of a
// chat completion.
type LegacyTextResponse struct {
	Id      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model,omitempty"`
	Choices []LegacyChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}

type LegacyChoice struct {
	Text         string `json:"text"`
	Index        int    `json:"index"`
	Logprobs     any    `json:"logprobs"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ChatCompletionsStreamResponse is a single chat.completion.chunk frame.
type ChatCompletionsStreamResponse struct {
	Id      string                                `json:"id"`
	Object  string                                `json:"object"`
	Created int64                                 `json:"created"`
	Model   string                                `json:"model,omitempty"`
	Choices []ChatCompletionsStreamResponseChoice `json:"choices"`
	Usage   *Usage                                `json:"usage,omitempty"`
}

type ChatCompletionsStreamResponseChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

// StreamDelta is the incremental message fragment inside a stream choice.
type StreamDelta struct {
	Role      string `json:"role,omitempty"`
	Content   any    `json:"content,omitempty"`
	ToolCalls []Tool `json:"tool_calls,omitempty"`
}

// StringContent returns the textual part of a delta fragment.
func (d StreamDelta) StringContent() string {
	return (Message{Content: d.Content}).StringContent()
}

// LegacyStreamResponse is a single text_completion streaming frame.
type LegacyStreamResponse struct {
	Id      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model,omitempty"`
	Choices []LegacyChoice `json:"choices"`
}
