package antigravity

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/agrelay/agrelay/common/helper"
	"github.com/agrelay/agrelay/common/random"
	"github.com/agrelay/agrelay/relay/model"
	"github.com/agrelay/agrelay/relay/streaming"
)

// frameDelta is the dialect-independent content of one upstream SSE frame.
type frameDelta struct {
	text         string
	imageURLs    []string
	toolCalls    []model.Tool
	finishReason string
	usage        *model.Usage
}

// parseFrame decodes one unwrapped upstream data payload.
func parseFrame(payload []byte) (*frameDelta, bool) {
	var resp ChatResponse
	if err := json.Unmarshal(UnwrapResponse(payload), &resp); err != nil {
		return nil, false
	}
	if len(resp.Candidates) == 0 {
		return nil, false
	}

	candidate := resp.Candidates[0]
	delta := &frameDelta{}
	var texts []string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
		if part.InlineData != nil && part.InlineData.Data != "" {
			delta.imageURLs = append(delta.imageURLs,
				fmt.Sprintf("data:%s;base64,%s", part.InlineData.MimeType, part.InlineData.Data))
		}
	}
	delta.text = strings.Join(texts, "")
	delta.toolCalls = candidateToolCalls(&candidate, true)
	if candidate.FinishReason != "" {
		delta.finishReason = mapFinishReason(candidate.FinishReason, len(delta.toolCalls) > 0)
	}
	if resp.UsageMetadata != nil && resp.UsageMetadata.TotalTokenCount > 0 {
		delta.usage = &model.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return delta, true
}

// isErrorEvent reports whether an upstream payload carries an inline error
// object instead of candidates. The backend emits these inside an HTTP-200
// SSE body when a request fails after the stream opened.
func isErrorEvent(payload []byte) bool {
	var evt struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(UnwrapResponse(payload), &evt); err != nil {
		return false
	}
	return len(evt.Error) > 0
}

// translator turns one frame delta into zero or more client SSE frames, and
// finish produces the trailing frames once upstream closes.
type translator interface {
	frame(d *frameDelta) [][]byte
	finish() [][]byte
}

// translate runs a scanner over the upstream SSE body and emits translated
// chunks. Heartbeat comments are dropped here so the client never sees
// them; the peek filter works on already translated chunks.
func translate(body io.ReadCloser, tr translator) <-chan streaming.Chunk {
	out := make(chan streaming.Chunk)
	go func() {
		defer close(out)
		defer func() { _ = body.Close() }()

		scanner := bufio.NewScanner(body)
		helper.ConfigureScannerBuffer(scanner)

		emitted := false
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			payload, ok := strings.CutPrefix(line, "data: ")
			if !ok || payload == "[DONE]" || strings.HasPrefix(payload, ":") {
				continue
			}
			delta, ok := parseFrame([]byte(payload))
			if !ok {
				// inline error events pass through verbatim so the peek
				// filter can abandon the attempt
				if isErrorEvent([]byte(payload)) {
					out <- streaming.Chunk{Data: []byte("data: " + payload + "\n\n")}
					emitted = true
				}
				continue
			}
			for _, frame := range tr.frame(delta) {
				out <- streaming.Chunk{Data: frame}
				emitted = true
			}
		}
		if err := scanner.Err(); err != nil {
			out <- streaming.Chunk{Err: err}
			return
		}
		// heartbeat-only or otherwise dataless streams close bare, without
		// the trailing frame: downstream reads the bare close as an empty
		// stream instead of a successful response
		if !emitted {
			return
		}
		for _, frame := range tr.finish() {
			out <- streaming.Chunk{Data: frame}
		}
	}()
	return out
}

func sseFrame(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return []byte("data: " + string(data) + "\n\n")
}

// chatTranslator emits chat.completion.chunk frames.
type chatTranslator struct {
	id      string
	created int64
	model   string
	usage   *model.Usage
}

func newChatTranslator(modelName string) *chatTranslator {
	return &chatTranslator{
		id:      fmt.Sprintf("chatcmpl-%s", random.GetUUID()),
		created: helper.GetTimestamp(),
		model:   modelName,
	}
}

func (t *chatTranslator) frame(d *frameDelta) [][]byte {
	if d.usage != nil {
		t.usage = d.usage
	}

	choice := model.ChatCompletionsStreamResponseChoice{
		Delta: model.StreamDelta{Role: "assistant"},
	}
	if len(d.imageURLs) > 0 {
		var blocks []model.MessageContent
		if d.text != "" {
			text := d.text
			blocks = append(blocks, model.MessageContent{Type: model.ContentTypeText, Text: &text})
		}
		for _, url := range d.imageURLs {
			blocks = append(blocks, model.MessageContent{
				Type:     model.ContentTypeImageURL,
				ImageURL: &model.ImageURL{Url: url},
			})
		}
		choice.Delta.Content = blocks
	} else if d.text != "" {
		choice.Delta.Content = d.text
	}
	choice.Delta.ToolCalls = d.toolCalls
	if d.finishReason != "" {
		reason := d.finishReason
		choice.FinishReason = &reason
	}

	if choice.Delta.Content == nil && len(choice.Delta.ToolCalls) == 0 && choice.FinishReason == nil {
		return nil
	}

	resp := model.ChatCompletionsStreamResponse{
		Id:      t.id,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
		Choices: []model.ChatCompletionsStreamResponseChoice{choice},
		Usage:   d.usage,
	}
	if frame := sseFrame(resp); frame != nil {
		return [][]byte{frame}
	}
	return nil
}

func (t *chatTranslator) finish() [][]byte {
	return [][]byte{[]byte("data: [DONE]\n\n")}
}

// legacyTranslator emits text_completion frames for /v1/completions clients.
type legacyTranslator struct {
	id      string
	created int64
	model   string
}

func newLegacyTranslator(modelName string) *legacyTranslator {
	return &legacyTranslator{
		id:      fmt.Sprintf("cmpl-%s", random.GetUUID()),
		created: helper.GetTimestamp(),
		model:   modelName,
	}
}

func (t *legacyTranslator) frame(d *frameDelta) [][]byte {
	if d.text == "" && d.finishReason == "" {
		return nil
	}
	resp := model.LegacyStreamResponse{
		Id:      t.id,
		Object:  "text_completion",
		Created: t.created,
		Model:   t.model,
		Choices: []model.LegacyChoice{{
			Text:         d.text,
			Index:        0,
			FinishReason: d.finishReason,
		}},
	}
	if frame := sseFrame(resp); frame != nil {
		return [][]byte{frame}
	}
	return nil
}

func (t *legacyTranslator) finish() [][]byte {
	return [][]byte{[]byte("data: [DONE]\n\n")}
}

// codexTranslator emits Responses-API events for codex-style clients.
type codexTranslator struct {
	id    string
	model string
	text  strings.Builder
}

func newCodexTranslator(modelName string) *codexTranslator {
	return &codexTranslator{
		id:    fmt.Sprintf("resp_%s", random.GetUUID()),
		model: modelName,
	}
}

func codexEvent(eventType string, payload map[string]any) []byte {
	payload["type"] = eventType
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return []byte("event: " + eventType + "\ndata: " + string(data) + "\n\n")
}

func (t *codexTranslator) frame(d *frameDelta) [][]byte {
	if d.text == "" {
		return nil
	}
	t.text.WriteString(d.text)
	frame := codexEvent("response.output_text.delta", map[string]any{
		"response_id": t.id,
		"delta":       d.text,
	})
	if frame == nil {
		return nil
	}
	return [][]byte{frame}
}

func (t *codexTranslator) finish() [][]byte {
	frame := codexEvent("response.completed", map[string]any{
		"response": map[string]any{
			"id":     t.id,
			"model":  t.model,
			"status": "completed",
			"output": []map[string]any{{
				"type": "message",
				"role": "assistant",
				"content": []map[string]any{{
					"type": "output_text",
					"text": t.text.String(),
				}},
			}},
		},
	})
	if frame == nil {
		return nil
	}
	return [][]byte{frame}
}

// NewChatStream translates an upstream SSE body into chat.completion.chunk
// frames.
func NewChatStream(body io.ReadCloser, modelName string) <-chan streaming.Chunk {
	return translate(body, newChatTranslator(modelName))
}

// NewLegacyStream translates an upstream SSE body into text_completion
// frames.
func NewLegacyStream(body io.ReadCloser, modelName string) <-chan streaming.Chunk {
	return translate(body, newLegacyTranslator(modelName))
}

// NewCodexStream translates an upstream SSE body into Responses-API events.
func NewCodexStream(body io.ReadCloser, modelName string) <-chan streaming.Chunk {
	return translate(body, newCodexTranslator(modelName))
}
