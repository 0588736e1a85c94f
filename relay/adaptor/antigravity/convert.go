package antigravity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agrelay/agrelay/common/config"
	"github.com/agrelay/agrelay/common/random"
	"github.com/agrelay/agrelay/relay/model"
)

var mimeTypeMap = map[string]string{
	"json_object": "application/json",
	"text":        "text/plain",
}

// cleanFunctionParameters strips JSON Schema fields the backend rejects
// (additionalProperties, $schema, top-level description/strict) and maps
// formats to the two supported values.
func cleanFunctionParameters(params any) any {
	cleaned := cleanFunctionParametersInternal(params, true)

	// function declarations require parameters.type to be OBJECT (uppercase)
	if cleanedMap, ok := cleaned.(map[string]any); ok {
		cleanedMap["type"] = "OBJECT"
		return cleanedMap
	}
	return cleaned
}

func cleanFunctionParametersInternal(params any, isTopLevel bool) any {
	switch v := params.(type) {
	case map[string]any:
		cleaned := make(map[string]any)
		formatMapping := map[string]string{
			"date":      "date-time",
			"time":      "date-time",
			"date-time": "date-time",
			"duration":  "date-time",
			"enum":      "enum",
		}
		for key, value := range v {
			if key == "additionalProperties" || key == "$schema" {
				continue
			}
			if isTopLevel && (key == "description" || key == "strict") {
				continue
			}
			if key == "format" {
				if formatStr, ok := value.(string); ok {
					if mapped, exists := formatMapping[formatStr]; exists {
						cleaned[key] = mapped
					}
				}
				continue
			}
			cleaned[key] = cleanFunctionParametersInternal(value, false)
		}
		return cleaned
	case []any:
		cleaned := make([]any, len(v))
		for i, item := range v {
			cleaned[i] = cleanFunctionParametersInternal(item, false)
		}
		return cleaned
	default:
		return v
	}
}

func convertToolChoiceToConfig(toolChoice any) *ToolConfig {
	switch choice := toolChoice.(type) {
	case string:
		if strings.ToLower(strings.TrimSpace(choice)) == "none" {
			return &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{Mode: "NONE"}}
		}
	case map[string]any:
		choiceType := strings.ToLower(strings.TrimSpace(fmt.Sprint(choice["type"])))
		var allowed []string
		switch choiceType {
		case "function":
			if fn, ok := choice["function"].(map[string]any); ok {
				if name, ok := fn["name"].(string); ok && strings.TrimSpace(name) != "" {
					allowed = append(allowed, strings.TrimSpace(name))
				}
			}
		case "tool":
			if name, ok := choice["name"].(string); ok && strings.TrimSpace(name) != "" {
				allowed = append(allowed, strings.TrimSpace(name))
			}
		}
		if len(allowed) > 0 {
			return &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{
				Mode:                 "ANY",
				AllowedFunctionNames: allowed,
			}}
		}
	}
	return nil
}

// parseDataURI splits a data: URI into mime type and base64 payload.
// Remote image URLs are not fetched; callers ship images inline.
func parseDataURI(url string) (mimeType, data string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mimeType = strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = "image/png"
	}
	return mimeType, payload, true
}

// ConvertRequest builds the full v1internal envelope for one attempt. The
// message list must already be normalized; an empty list gets a single
// blank user turn so the backend accepts the request.
func ConvertRequest(textRequest model.GeneralOpenAIRequest, projectID, mappedModel, requestType string) *Envelope {
	geminiRequest := ChatRequest{
		Contents:       make([]ChatContent, 0, len(textRequest.Messages)),
		SafetySettings: SafetySettings(config.GeminiSafetySetting),
		GenerationConfig: ChatGenerationConfig{
			Temperature:     textRequest.Temperature,
			TopP:            textRequest.TopP,
			MaxOutputTokens: textRequest.MaxTokens,
		},
	}

	if geminiRequest.GenerationConfig.MaxOutputTokens == 0 {
		geminiRequest.GenerationConfig.MaxOutputTokens = config.DefaultMaxTokens
	}
	if textRequest.ResponseFormat != nil {
		if mimeType, ok := mimeTypeMap[textRequest.ResponseFormat.Type]; ok {
			geminiRequest.GenerationConfig.ResponseMimeType = mimeType
		}
	}

	// image models reject sampling knobs and need both modalities
	if isImageModel(mappedModel) {
		geminiRequest.GenerationConfig.Temperature = nil
		geminiRequest.GenerationConfig.TopP = nil
		geminiRequest.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}
	}

	if requestType == RequestTypeWebSearch {
		geminiRequest.Tools = append(geminiRequest.Tools, ChatTools{GoogleSearch: &struct{}{}})
	}

	if len(textRequest.Tools) > 0 {
		declarations := make([]FunctionDeclaration, 0, len(textRequest.Tools))
		for _, tool := range textRequest.Tools {
			if tool.Function.Name == "" {
				continue
			}
			declarations = append(declarations, FunctionDeclaration{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  cleanFunctionParameters(tool.Function.Parameters),
			})
		}
		if len(declarations) > 0 {
			geminiRequest.Tools = append(geminiRequest.Tools, ChatTools{FunctionDeclarations: declarations})
		}
	}

	if cfg := convertToolChoiceToConfig(textRequest.ToolChoice); cfg != nil {
		geminiRequest.ToolConfig = cfg
	}

	if geminiRequest.GenerationConfig.TopP != nil &&
		(*geminiRequest.GenerationConfig.TopP < 0 || *geminiRequest.GenerationConfig.TopP > 1) {
		geminiRequest.GenerationConfig.TopP = nil
	}

	for _, message := range textRequest.Messages {
		var parts []Part

		if len(message.ToolCalls) > 0 {
			for _, toolCall := range message.ToolCalls {
				var args any
				if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
					args = toolCall.Function.Arguments
				}
				parts = append(parts, Part{
					FunctionCall: &FunctionCall{
						FunctionName: toolCall.Function.Name,
						Arguments:    args,
					},
				})
			}
		}

		if message.Role == "tool" {
			toolName := ""
			if message.Name != nil {
				toolName = *message.Name
			}
			geminiRequest.Contents = append(geminiRequest.Contents, ChatContent{
				Role: "user",
				Parts: []Part{{
					FunctionResp: &FunctionResponse{
						Name:     toolName,
						Response: map[string]any{"result": message.StringContent()},
					},
				}},
			})
			continue
		}

		for _, block := range message.ParseContent() {
			switch block.Type {
			case model.ContentTypeText:
				if block.Text != nil && *block.Text != "" {
					parts = append(parts, Part{Text: *block.Text})
				}
			case model.ContentTypeImageURL:
				if block.ImageURL == nil {
					continue
				}
				if mimeType, data, ok := parseDataURI(block.ImageURL.Url); ok {
					parts = append(parts, Part{InlineData: &InlineData{
						MimeType: mimeType,
						Data:     data,
					}})
				}
			}
		}

		// parts cannot be empty even for tool-call-only turns
		if len(parts) == 0 {
			parts = append(parts, Part{Text: " "})
		}

		content := ChatContent{Role: message.Role, Parts: parts}

		// the backend only knows user and model roles
		if content.Role == "assistant" {
			content.Role = "model"
		}
		if content.Role == "system" {
			content.Role = ""
			geminiRequest.SystemInstruction = &content
			continue
		}

		geminiRequest.Contents = append(geminiRequest.Contents, content)
	}

	if len(geminiRequest.Contents) == 0 {
		geminiRequest.Contents = append(geminiRequest.Contents, ChatContent{
			Role:  "user",
			Parts: []Part{{Text: " "}},
		})
	}

	return &Envelope{
		Project:     projectID,
		RequestId:   fmt.Sprintf("agent-%s", random.GetUUID()),
		Model:       mappedModel,
		UserAgent:   UserAgent,
		RequestType: requestType,
		Request:     geminiRequest,
	}
}
