package antigravity

import (
	"fmt"

	"github.com/agrelay/agrelay/common/random"
)

// BuildImageEnvelope builds a single-candidate image generation request.
// The backend rejects candidateCount > 1, so callers fan out n requests in
// parallel instead. inline carries the main image, mask, and reference
// images for edits, in that order, after the prompt part.
func BuildImageEnvelope(projectID, modelName, prompt string, imageCfg ImageConfig, inline []InlineData) *Envelope {
	parts := []Part{{Text: prompt}}
	for i := range inline {
		d := inline[i]
		parts = append(parts, Part{InlineData: &d})
	}

	return &Envelope{
		Project:     projectID,
		RequestId:   fmt.Sprintf("img-%s", random.GetUUID()),
		Model:       modelName,
		UserAgent:   UserAgent,
		RequestType: RequestTypeImageGen,
		Request: ChatRequest{
			Contents: []ChatContent{{Role: "user", Parts: parts}},
			GenerationConfig: ChatGenerationConfig{
				CandidateCount: 1,
				ImageConfig:    &imageCfg,
			},
			// image requests run with all safety categories off
			SafetySettings: SafetySettings("OFF"),
		},
	}
}

// BuildImageEditEnvelope is the edit variant: inline data carries the main
// image, optional mask, and reference images after the prompt part, and the
// generation config pins the sampling knobs the edit flow expects.
func BuildImageEditEnvelope(projectID, modelName, prompt string, imageCfg ImageConfig, inline []InlineData) *Envelope {
	env := BuildImageEnvelope(projectID, modelName, prompt, imageCfg, inline)
	env.RequestId = fmt.Sprintf("img-edit-%s", random.GetUUID())

	temp := 1.0
	topP := 0.95
	env.Request.GenerationConfig.Temperature = &temp
	env.Request.GenerationConfig.TopP = &topP
	env.Request.GenerationConfig.TopK = 40
	env.Request.GenerationConfig.MaxOutputTokens = 8192
	env.Request.GenerationConfig.StopSequences = []string{}
	return env
}

// ExtractInlineImages pulls every inlineData payload out of an unwrapped
// image response.
func ExtractInlineImages(resp *ChatResponse) []InlineData {
	var out []InlineData
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				out = append(out, *part.InlineData)
			}
		}
	}
	return out
}
