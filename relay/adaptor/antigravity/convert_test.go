package antigravity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agrelay/agrelay/relay/model"
)

func strPtr(s string) *string { return &s }

func TestConvertRequestEnvelope(t *testing.T) {
	t.Parallel()

	req := model.GeneralOpenAIRequest{
		Model: "gpt-4o",
		Messages: []model.Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi there"},
		},
	}

	env := ConvertRequest(req, "proj-1", "gemini-3-pro-preview", RequestTypeChat)
	require.Equal(t, "proj-1", env.Project)
	require.Equal(t, "gemini-3-pro-preview", env.Model)
	require.Equal(t, "antigravity", env.UserAgent)
	require.Equal(t, RequestTypeChat, env.RequestType)
	require.NotEmpty(t, env.RequestId)

	// system message becomes systemInstruction, roles map to user/model
	require.NotNil(t, env.Request.SystemInstruction)
	require.Empty(t, env.Request.SystemInstruction.Role)
	require.Equal(t, "be terse", env.Request.SystemInstruction.Parts[0].Text)
	require.Len(t, env.Request.Contents, 2)
	require.Equal(t, "user", env.Request.Contents[0].Role)
	require.Equal(t, "model", env.Request.Contents[1].Role)

	require.Len(t, env.Request.SafetySettings, 5)
	require.NotZero(t, env.Request.GenerationConfig.MaxOutputTokens)
}

func TestConvertRequestEmptyMessages(t *testing.T) {
	t.Parallel()

	env := ConvertRequest(model.GeneralOpenAIRequest{Model: "gpt-4o"}, "p", "gemini-3-pro-preview", RequestTypeChat)
	require.Len(t, env.Request.Contents, 1)
	require.Equal(t, "user", env.Request.Contents[0].Role)
	require.Equal(t, " ", env.Request.Contents[0].Parts[0].Text)
}

func TestConvertRequestToolCleaning(t *testing.T) {
	t.Parallel()

	req := model.GeneralOpenAIRequest{
		Model: "gpt-4o",
		Messages: []model.Message{
			{Role: "user", Content: "weather?"},
		},
		Tools: []model.Tool{{
			Type: "function",
			Function: model.Function{
				Name:        "get_weather",
				Description: "fetch weather",
				Parameters: map[string]any{
					"type":                 "object",
					"$schema":              "http://json-schema.org/draft-07/schema#",
					"additionalProperties": false,
					"properties": map[string]any{
						"city": map[string]any{"type": "string"},
					},
				},
			},
		}},
	}

	env := ConvertRequest(req, "p", "gemini-3-pro-preview", RequestTypeChat)
	require.Len(t, env.Request.Tools, 1)
	decls := env.Request.Tools[0].FunctionDeclarations
	require.Len(t, decls, 1)
	require.Equal(t, "get_weather", decls[0].Name)

	params, ok := decls[0].Parameters.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "OBJECT", params["type"])
	require.NotContains(t, params, "additionalProperties")
	require.NotContains(t, params, "$schema")
	require.Contains(t, params, "properties")
}

func TestConvertRequestToolMessages(t *testing.T) {
	t.Parallel()

	req := model.GeneralOpenAIRequest{
		Model: "gpt-4o",
		Messages: []model.Message{
			{Role: "user", Content: "run ls"},
			{Role: "assistant", ToolCalls: []model.Tool{{
				Id:   "call_1",
				Type: "function",
				Function: model.Function{
					Name:      "shell",
					Arguments: `{"command":["ls"]}`,
				},
			}}},
			{Role: "tool", ToolCallId: "call_1", Name: strPtr("shell"), Content: "README.md"},
		},
	}

	env := ConvertRequest(req, "p", "gemini-3-pro-preview", RequestTypeChat)
	require.Len(t, env.Request.Contents, 3)

	// assistant tool call becomes a functionCall part on the model turn
	modelTurn := env.Request.Contents[1]
	require.Equal(t, "model", modelTurn.Role)
	require.NotNil(t, modelTurn.Parts[0].FunctionCall)
	require.Equal(t, "shell", modelTurn.Parts[0].FunctionCall.FunctionName)

	// tool result becomes a functionResponse part on a user turn
	toolTurn := env.Request.Contents[2]
	require.Equal(t, "user", toolTurn.Role)
	require.NotNil(t, toolTurn.Parts[0].FunctionResp)
	require.Equal(t, "shell", toolTurn.Parts[0].FunctionResp.Name)
}

func TestConvertRequestImageModel(t *testing.T) {
	t.Parallel()

	temp := 0.7
	req := model.GeneralOpenAIRequest{
		Model:       "gemini-3-pro-image",
		Temperature: &temp,
		Messages:    []model.Message{{Role: "user", Content: "draw a cat"}},
	}
	env := ConvertRequest(req, "p", "gemini-3-pro-image", RequestTypeImageGen)
	require.Nil(t, env.Request.GenerationConfig.Temperature)
	require.Equal(t, []string{"TEXT", "IMAGE"}, env.Request.GenerationConfig.ResponseModalities)
}

func TestConvertRequestDataURIImage(t *testing.T) {
	t.Parallel()

	req := model.GeneralOpenAIRequest{
		Model: "gpt-4o",
		Messages: []model.Message{{
			Role: "user",
			Content: []any{
				map[string]any{"type": "text", "text": "what is this"},
				map[string]any{"type": "image_url", "image_url": map[string]any{
					"url": "data:image/png;base64,aGVsbG8=",
				}},
			},
		}},
	}
	env := ConvertRequest(req, "p", "gemini-3-pro-preview", RequestTypeChat)
	require.Len(t, env.Request.Contents, 1)
	parts := env.Request.Contents[0].Parts
	require.Len(t, parts, 2)
	require.Equal(t, "what is this", parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	require.Equal(t, "image/png", parts[1].InlineData.MimeType)
	require.Equal(t, "aGVsbG8=", parts[1].InlineData.Data)
}

func TestBuildImageEnvelope(t *testing.T) {
	t.Parallel()

	env := BuildImageEnvelope("proj", "gemini-3-pro-image", "a cat", ImageConfig{AspectRatio: "1:1", ImageSize: "2K"}, []InlineData{
		{MimeType: "image/png", Data: "bWFpbg=="},
	})
	require.Equal(t, RequestTypeImageGen, env.RequestType)
	require.Equal(t, 1, env.Request.GenerationConfig.CandidateCount)
	require.Equal(t, "2K", env.Request.GenerationConfig.ImageConfig.ImageSize)
	require.Len(t, env.Request.Contents, 1)
	require.Len(t, env.Request.Contents[0].Parts, 2)
	require.Equal(t, "a cat", env.Request.Contents[0].Parts[0].Text)
	require.Equal(t, "OFF", env.Request.SafetySettings[0].Threshold)
}
