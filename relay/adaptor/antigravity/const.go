// Package antigravity translates OpenAI-dialect requests to the v1internal
// Gemini backend and translates its replies and SSE streams back.
package antigravity

const (
	BaseURLProd  = "https://cloudcode-pa.googleapis.com/v1internal"
	BaseURLDaily = "https://daily-cloudcode-pa.sandbox.googleapis.com/v1internal"

	// the backend only accepts this agent string
	UserAgent = "antigravity"

	MethodGenerateContent       = "generateContent"
	MethodStreamGenerateContent = "streamGenerateContent"
	QueryAltSSE                 = "alt=sse"
)

// Request types govern which account subset is eligible for a call.
const (
	RequestTypeChat       = "chat"
	RequestTypeCodeAssist = "code_assist"
	RequestTypeWebSearch  = "web_search"
	RequestTypeImageGen   = "image_gen"
)

const DefaultImageModel = "gemini-3-pro-image"

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
	"HARM_CATEGORY_CIVIC_INTEGRITY",
}

// SafetySettings builds the full harm-category list at one threshold.
// Image requests use "OFF", text requests use the configured threshold.
func SafetySettings(threshold string) []ChatSafetySettings {
	out := make([]ChatSafetySettings, 0, len(harmCategories))
	for _, cat := range harmCategories {
		out = append(out, ChatSafetySettings{Category: cat, Threshold: threshold})
	}
	return out
}
