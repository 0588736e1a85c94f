package streaming

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/agrelay/agrelay/relay/model"
)

const doneMarker = "[DONE]"

type choiceAcc struct {
	content      strings.Builder
	role         string
	finishReason string
	toolCalls    []model.Tool
}

// appendToolCall merges a streaming tool call fragment: a fragment carrying
// an id or name opens a new call, argument-only fragments extend the most
// recent call at the same tool index.
func (acc *choiceAcc) appendToolCall(tc model.Tool) {
	if tc.Index != nil {
		for i := range acc.toolCalls {
			if acc.toolCalls[i].Index != nil && *acc.toolCalls[i].Index == *tc.Index {
				acc.toolCalls[i].Function.Arguments += tc.Function.Arguments
				if tc.Function.Name != "" {
					acc.toolCalls[i].Function.Name = tc.Function.Name
				}
				if tc.Id != "" {
					acc.toolCalls[i].Id = tc.Id
				}
				return
			}
		}
	}
	acc.toolCalls = append(acc.toolCalls, tc)
}

// Collect folds a chat-dialect SSE stream into a single chat completion.
// Content deltas are concatenated per choice index, tool call argument
// fragments are appended per tool index, the final finish_reason and the
// last usage block win.
func Collect(stream <-chan Chunk) (*model.TextResponse, error) {
	resp := &model.TextResponse{Object: "chat.completion"}
	choices := map[int]*choiceAcc{}

	for c := range stream {
		if c.Err != nil {
			return nil, errors.Wrap(c.Err, "collect stream")
		}
		for _, line := range strings.Split(string(c.Data), "\n") {
			line = strings.TrimSpace(line)
			payload, ok := strings.CutPrefix(line, "data: ")
			if !ok || payload == doneMarker || strings.HasPrefix(payload, ":") {
				continue
			}

			var frame model.ChatCompletionsStreamResponse
			if err := json.Unmarshal([]byte(payload), &frame); err != nil {
				// tolerate stray non-JSON frames the same way a streaming
				// client would
				continue
			}

			if frame.Id != "" {
				resp.Id = frame.Id
			}
			if frame.Model != "" {
				resp.Model = frame.Model
			}
			if frame.Created != 0 {
				resp.Created = frame.Created
			}
			if frame.Usage != nil {
				resp.Usage = frame.Usage
			}

			for _, ch := range frame.Choices {
				acc := choices[ch.Index]
				if acc == nil {
					acc = &choiceAcc{}
					choices[ch.Index] = acc
				}
				if ch.Delta.Role != "" {
					acc.role = ch.Delta.Role
				}
				acc.content.WriteString(ch.Delta.StringContent())
				for _, tc := range ch.Delta.ToolCalls {
					acc.appendToolCall(tc)
				}
				if ch.FinishReason != nil && *ch.FinishReason != "" {
					acc.finishReason = *ch.FinishReason
				}
			}
		}
	}

	indexes := make([]int, 0, len(choices))
	for i := range choices {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	for _, i := range indexes {
		acc := choices[i]
		role := acc.role
		if role == "" {
			role = "assistant"
		}
		finish := acc.finishReason
		if finish == "" {
			finish = "stop"
		}
		resp.Choices = append(resp.Choices, model.TextResponseChoice{
			Index: i,
			Message: model.Message{
				Role:      role,
				Content:   acc.content.String(),
				ToolCalls: acc.toolCalls,
			},
			FinishReason: finish,
		})
	}

	if len(resp.Choices) == 0 {
		return nil, errors.Errorf("stream contained no choices")
	}
	return resp, nil
}
