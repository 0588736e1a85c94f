package antigravity

import "encoding/json"

// Envelope is the v1internal request wrapper. The meaningful Gemini request
// sits under the request key.
type Envelope struct {
	Project     string      `json:"project"`
	RequestId   string      `json:"requestId"`
	Model       string      `json:"model"`
	UserAgent   string      `json:"userAgent"`
	RequestType string      `json:"requestType"`
	Request     ChatRequest `json:"request"`
}

type ChatRequest struct {
	Contents          []ChatContent        `json:"contents"`
	SystemInstruction *ChatContent         `json:"systemInstruction,omitempty"`
	SafetySettings    []ChatSafetySettings `json:"safetySettings,omitempty"`
	GenerationConfig  ChatGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []ChatTools          `json:"tools,omitempty"`
	ToolConfig        *ToolConfig          `json:"toolConfig,omitempty"`
}

type ChatContent struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text         string            `json:"text,omitempty"`
	InlineData   *InlineData       `json:"inlineData,omitempty"`
	FunctionCall *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResp *FunctionResponse `json:"functionResponse,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type FunctionCall struct {
	FunctionName string `json:"name"`
	Arguments    any    `json:"args"`
}

type FunctionResponse struct {
	Name     string `json:"name"`
	Response any    `json:"response"`
}

type ChatSafetySettings struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type ChatGenerationConfig struct {
	Temperature        *float64     `json:"temperature,omitempty"`
	TopP               *float64     `json:"topP,omitempty"`
	TopK               int          `json:"topK,omitempty"`
	MaxOutputTokens    int          `json:"maxOutputTokens,omitempty"`
	CandidateCount     int          `json:"candidateCount,omitempty"`
	StopSequences      []string     `json:"stopSequences,omitempty"`
	ResponseMimeType   string       `json:"responseMimeType,omitempty"`
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *ImageConfig `json:"imageConfig,omitempty"`
}

// ImageConfig controls image generation shape and resolution tier.
type ImageConfig struct {
	AspectRatio string `json:"aspectRatio"`
	ImageSize   string `json:"imageSize"`
}

type ChatTools struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
	GoogleSearch         *struct{}             `json:"googleSearch,omitempty"`
}

type FunctionDeclaration struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type ToolConfig struct {
	FunctionCallingConfig FunctionCallingConfig `json:"functionCallingConfig"`
}

type FunctionCallingConfig struct {
	Mode                 string   `json:"mode,omitempty"`
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

type ChatResponse struct {
	Candidates    []ChatCandidate `json:"candidates"`
	UsageMetadata *UsageMetadata  `json:"usageMetadata,omitempty"`
	ModelVersion  string          `json:"modelVersion,omitempty"`
	ResponseId    string          `json:"responseId,omitempty"`
}

type ChatCandidate struct {
	Content      ChatContent `json:"content"`
	FinishReason string      `json:"finishReason"`
	Index        int64       `json:"index"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// UnwrapResponse strips the v1internal wrapper: payloads arrive either at
// the root or under a response key.
func UnwrapResponse(raw []byte) json.RawMessage {
	var wrapper struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Response) > 0 {
		return wrapper.Response
	}
	return raw
}
