package antigravity

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/Laisky/errors/v2"
	"github.com/pkoukk/tiktoken-go"

	"github.com/agrelay/agrelay/common/helper"
	"github.com/agrelay/agrelay/common/random"
	"github.com/agrelay/agrelay/relay/model"
)

// ParseChatResponse decodes an unwrapped or wrapped v1internal JSON body.
func ParseChatResponse(raw []byte) (*ChatResponse, error) {
	payload := UnwrapResponse(raw)
	var resp ChatResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, errors.Wrap(err, "parse upstream response")
	}
	return &resp, nil
}

func mapFinishReason(reason string, hasToolCalls bool) string {
	if hasToolCalls {
		return "tool_calls"
	}
	switch strings.ToUpper(reason) {
	case "", "STOP", "FINISH_REASON_UNSPECIFIED":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}

func candidateToolCalls(candidate *ChatCandidate, streaming bool) []model.Tool {
	var toolCalls []model.Tool
	for partIndex, part := range candidate.Content.Parts {
		if part.FunctionCall == nil {
			continue
		}
		argsBytes, err := json.Marshal(part.FunctionCall.Arguments)
		if err != nil {
			continue
		}
		tc := model.Tool{
			Id:   fmt.Sprintf("call_%s", random.GetUUID()),
			Type: "function",
			Function: model.Function{
				Name:      part.FunctionCall.FunctionName,
				Arguments: string(argsBytes),
			},
		}
		if streaming {
			index := partIndex
			tc.Index = &index
		}
		toolCalls = append(toolCalls, tc)
	}
	return toolCalls
}

// ConvertResponse translates an upstream reply into an OpenAI chat
// completion. When the upstream omits usage metadata, completion tokens are
// estimated from the emitted text.
func ConvertResponse(resp *ChatResponse, modelName string, promptText string) *model.TextResponse {
	full := &model.TextResponse{
		Id:      fmt.Sprintf("chatcmpl-%s", random.GetUUID()),
		Object:  "chat.completion",
		Created: helper.GetTimestamp(),
		Model:   modelName,
		Choices: make([]model.TextResponseChoice, 0, len(resp.Candidates)),
	}

	var completionText strings.Builder
	for i, candidate := range resp.Candidates {
		toolCalls := candidateToolCalls(&candidate, false)

		var textParts []string
		var structured []model.MessageContent
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall != nil {
				continue
			}
			if part.Text != "" {
				textParts = append(textParts, part.Text)
				text := part.Text
				structured = append(structured, model.MessageContent{
					Type: model.ContentTypeText,
					Text: &text,
				})
			}
			if part.InlineData != nil && part.InlineData.Data != "" {
				structured = append(structured, model.MessageContent{
					Type: model.ContentTypeImageURL,
					ImageURL: &model.ImageURL{
						Url: fmt.Sprintf("data:%s;base64,%s", part.InlineData.MimeType, part.InlineData.Data),
					},
				})
			}
		}

		choice := model.TextResponseChoice{
			Index:        i,
			Message:      model.Message{Role: "assistant"},
			FinishReason: mapFinishReason(candidate.FinishReason, len(toolCalls) > 0),
		}
		choice.Message.ToolCalls = toolCalls

		joined := strings.Join(textParts, "\n")
		completionText.WriteString(joined)
		if len(structured) > 1 || (len(structured) == 1 && structured[0].Type != model.ContentTypeText) {
			choice.Message.Content = structured
		} else {
			choice.Message.Content = joined
		}

		full.Choices = append(full.Choices, choice)
	}

	if resp.UsageMetadata != nil && resp.UsageMetadata.TotalTokenCount > 0 {
		full.Usage = &model.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	} else {
		prompt := CountTokenText(promptText)
		completion := CountTokenText(completionText.String())
		full.Usage = &model.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		}
	}
	return full
}

var (
	tokenEncoderOnce sync.Once
	tokenEncoder     *tiktoken.Tiktoken
)

// CountTokenText estimates token usage for a text fragment with the
// cl100k_base encoding. Falls back to a byte heuristic if the encoder
// cannot be initialized.
func CountTokenText(text string) int {
	if text == "" {
		return 0
	}
	tokenEncoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenEncoder = enc
		}
	})
	if tokenEncoder == nil {
		return len(text) / 4
	}
	return len(tokenEncoder.Encode(text, nil, nil))
}
