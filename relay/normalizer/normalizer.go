// Package normalizer collapses the accepted inbound dialects (Chat,
// Responses API, Codex, Legacy Completions) into one canonical messages
// list. It operates on the raw decoded body so unknown passthrough fields
// survive untouched.
package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Dialect identifies the inbound payload shape, used by the orchestrator to
// pick the streaming response dialect.
type Dialect int

const (
	DialectChat Dialect = iota
	DialectCodex
	DialectLegacy
)

// Normalize rewrites body in place so that body["messages"] is a non-empty
// list of chat messages, and reports the detected dialect. Running it on an
// already normalized body is a no-op.
func Normalize(body map[string]any) Dialect {
	dialect := detectDialect(body)

	if !hasMessages(body) {
		switch dialect {
		case DialectCodex:
			normalizeResponses(body)
		case DialectLegacy:
			normalizePrompt(body)
		}
	}

	// empty messages after all passes: inject a single blank user turn
	if !hasMessages(body) {
		body["messages"] = []any{
			map[string]any{"role": "user", "content": " "},
		}
	}
	return dialect
}

func detectDialect(body map[string]any) Dialect {
	if _, ok := body["input"]; ok {
		return DialectCodex
	}
	if _, ok := body["instructions"]; ok {
		return DialectCodex
	}
	if _, ok := body["prompt"]; ok {
		return DialectLegacy
	}
	return DialectChat
}

func hasMessages(body map[string]any) bool {
	msgs, ok := body["messages"].([]any)
	return ok && len(msgs) > 0
}

// normalizePrompt converts a Legacy Completions prompt into a single user
// message.
func normalizePrompt(body map[string]any) {
	promptVal, ok := body["prompt"]
	if !ok {
		return
	}

	var prompt string
	switch v := promptVal.(type) {
	case string:
		prompt = v
	case []any:
		var parts []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		prompt = strings.Join(parts, "\n")
	default:
		prompt = fmt.Sprint(v)
	}

	delete(body, "prompt")
	body["messages"] = []any{
		map[string]any{"role": "user", "content": prompt},
	}
}

// normalizeResponses handles both the simple Responses API shape and the
// structured Codex item list.
func normalizeResponses(body map[string]any) {
	var messages []any

	if inst, ok := body["instructions"].(string); ok && inst != "" {
		messages = append(messages, map[string]any{"role": "system", "content": inst})
	}

	switch input := body["input"].(type) {
	case string:
		messages = append(messages, map[string]any{"role": "user", "content": input})
	case []any:
		if isStructuredItems(input) {
			messages = append(messages, convertStructuredItems(input)...)
		} else if isMessageArray(input) {
			messages = append(messages, input...)
		} else {
			var parts []string
			for _, item := range input {
				switch v := item.(type) {
				case string:
					parts = append(parts, v)
				case map[string]any:
					if data, err := json.Marshal(v); err == nil {
						parts = append(parts, string(data))
					}
				}
			}
			if content := strings.Join(parts, "\n"); content != "" {
				messages = append(messages, map[string]any{"role": "user", "content": content})
			}
		}
	}

	body["messages"] = messages
}

func isMessageArray(input []any) bool {
	if len(input) == 0 {
		return false
	}
	first, ok := input[0].(map[string]any)
	if !ok {
		return false
	}
	_, hasRole := first["role"]
	return hasRole
}

func isStructuredItems(input []any) bool {
	for _, item := range input {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if _, hasType := m["type"]; hasType {
			return true
		}
	}
	return false
}

func itemString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func callId(item map[string]any) string {
	if id := itemString(item, "call_id"); id != "" {
		return id
	}
	if id := itemString(item, "id"); id != "" {
		return id
	}
	return "unknown"
}

// convertStructuredItems is the two-pass Codex item conversion: pass 1 maps
// call ids to tool names so tool outputs can be attributed, pass 2 emits
// the messages.
func convertStructuredItems(items []any) []any {
	callIdToName := map[string]string{}
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch itemString(item, "type") {
		case "function_call":
			name := itemString(item, "name")
			if name == "" {
				name = "unknown"
			}
			callIdToName[callId(item)] = name
		case "local_shell_call":
			callIdToName[callId(item)] = "shell"
		case "web_search_call":
			callIdToName[callId(item)] = "google_search"
		}
	}

	var messages []any
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch itemString(item, "type") {
		case "message":
			if msg := convertMessageItem(item); msg != nil {
				messages = append(messages, msg)
			}
		case "function_call", "local_shell_call", "web_search_call":
			messages = append(messages, convertCallItem(item))
		case "function_call_output", "custom_tool_call_output":
			messages = append(messages, convertCallOutputItem(item, callIdToName))
		}
	}
	return messages
}

func convertMessageItem(item map[string]any) map[string]any {
	role := itemString(item, "role")
	if role == "" {
		role = "user"
	}

	content, ok := item["content"].([]any)
	if !ok {
		if text := itemString(item, "content"); text != "" {
			return map[string]any{"role": role, "content": text}
		}
		return map[string]any{"role": role, "content": ""}
	}

	var textParts []string
	var imageBlocks []any
	for _, raw := range content {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := block["text"].(string); ok {
			textParts = append(textParts, text)
			continue
		}
		switch itemString(block, "type") {
		case "input_image":
			if url := itemString(block, "image_url"); url != "" {
				imageBlocks = append(imageBlocks, map[string]any{
					"type":      "image_url",
					"image_url": map[string]any{"url": url},
				})
			}
		case "image_url":
			if urlObj, ok := block["image_url"]; ok {
				imageBlocks = append(imageBlocks, map[string]any{
					"type":      "image_url",
					"image_url": urlObj,
				})
			}
		}
	}

	if len(imageBlocks) == 0 {
		return map[string]any{"role": role, "content": strings.Join(textParts, "\n")}
	}

	var blocks []any
	if len(textParts) > 0 {
		blocks = append(blocks, map[string]any{
			"type": "text",
			"text": strings.Join(textParts, "\n"),
		})
	}
	blocks = append(blocks, imageBlocks...)
	return map[string]any{"role": role, "content": blocks}
}

func convertCallItem(item map[string]any) map[string]any {
	itemType := itemString(item, "type")
	name := itemString(item, "name")
	if name == "" {
		name = "unknown"
	}
	args := itemString(item, "arguments")
	if args == "" {
		args = "{}"
	}

	switch itemType {
	case "local_shell_call":
		name = "shell"
		if action, ok := item["action"].(map[string]any); ok {
			if exec, ok := action["exec"].(map[string]any); ok {
				argsObj := map[string]any{}
				if cmd, ok := exec["command"]; ok {
					// the shell tool schema declares command as an array of
					// strings; scalar commands must be wrapped
					if _, isList := cmd.([]any); isList {
						argsObj["command"] = cmd
					} else {
						argsObj["command"] = []any{cmd}
					}
				}
				if wd, ok := exec["working_directory"]; ok {
					argsObj["workdir"] = wd
				} else if wd, ok := exec["workdir"]; ok {
					argsObj["workdir"] = wd
				}
				if data, err := json.Marshal(argsObj); err == nil {
					args = string(data)
				}
			}
		}
	case "web_search_call":
		name = "google_search"
		if action, ok := item["action"].(map[string]any); ok {
			argsObj := map[string]any{}
			if q, ok := action["query"]; ok {
				argsObj["query"] = q
			}
			if data, err := json.Marshal(argsObj); err == nil {
				args = string(data)
			}
		}
	}

	return map[string]any{
		"role": "assistant",
		"tool_calls": []any{
			map[string]any{
				"id":   callId(item),
				"type": "function",
				"function": map[string]any{
					"name":      name,
					"arguments": args,
				},
			},
		},
	}
}

func convertCallOutputItem(item map[string]any, callIdToName map[string]string) map[string]any {
	id := callId(item)

	var output string
	switch v := item["output"].(type) {
	case string:
		output = v
	case map[string]any:
		if content, ok := v["content"].(string); ok {
			output = content
		} else if data, err := json.Marshal(v); err == nil {
			output = string(data)
		}
	case nil:
		output = ""
	default:
		output = fmt.Sprint(v)
	}

	name, ok := callIdToName[id]
	if !ok {
		// unattributed outputs in this context are almost always shell
		name = "shell"
	}

	return map[string]any{
		"role":         "tool",
		"tool_call_id": id,
		"name":         name,
		"content":      output,
	}
}
