package antigravity

import (
	"strconv"
	"strings"

	"github.com/agrelay/agrelay/relay/model"
)

// RequestConfig is the resolved routing profile for one attempt.
type RequestConfig struct {
	RequestType string
	ImageConfig *ImageConfig
}

// ResolveRequestConfig derives the request type from the model pair and the
// declared tools. First match wins: image family, web search tool,
// code-assistant family, plain chat.
func ResolveRequestConfig(clientModel, mappedModel string, tools []model.Tool, size, quality string) RequestConfig {
	if isImageModel(mappedModel) {
		cfg := ParseImageConfig(mappedModel, size, quality)
		return RequestConfig{RequestType: RequestTypeImageGen, ImageConfig: &cfg}
	}
	if hasWebSearchTool(tools) {
		return RequestConfig{RequestType: RequestTypeWebSearch}
	}
	if isCodeAssistModel(mappedModel) {
		return RequestConfig{RequestType: RequestTypeCodeAssist}
	}
	return RequestConfig{RequestType: RequestTypeChat}
}

func isImageModel(modelName string) bool {
	return strings.Contains(strings.ToLower(modelName), "-image")
}

func isCodeAssistModel(modelName string) bool {
	lower := strings.ToLower(modelName)
	return strings.Contains(lower, "code") || strings.Contains(lower, "codex")
}

func hasWebSearchTool(tools []model.Tool) bool {
	for _, t := range tools {
		lowerType := strings.ToLower(t.Type)
		lowerName := strings.ToLower(t.Function.Name)
		if strings.Contains(lowerType, "web_search") ||
			lowerName == "google_search" || lowerName == "web_search" {
			return true
		}
	}
	return false
}

// ParseImageConfig maps OpenAI-style size and quality hints to the backend's
// aspect ratio and resolution tier. Size accepts either "WxH" pixel strings
// or direct "W:H" ratios; quality accepts standard/hd/medium. Unknown values
// fall back to 1:1 / 1K.
func ParseImageConfig(modelName, size, quality string) ImageConfig {
	cfg := ImageConfig{AspectRatio: "1:1", ImageSize: "1K"}

	if ratio := parseAspectRatio(size); ratio != "" {
		cfg.AspectRatio = ratio
	}

	switch strings.ToLower(quality) {
	case "hd":
		cfg.ImageSize = "4K"
	case "medium":
		cfg.ImageSize = "2K"
	case "", "standard":
		// keep 1K
	}
	return cfg
}

// named ratios the backend supports, checked by closest match for pixel sizes
var supportedRatios = []struct {
	name  string
	value float64
}{
	{"1:1", 1},
	{"2:3", 2.0 / 3},
	{"3:2", 3.0 / 2},
	{"3:4", 3.0 / 4},
	{"4:3", 4.0 / 3},
	{"9:16", 9.0 / 16},
	{"16:9", 16.0 / 9},
	{"21:9", 21.0 / 9},
}

func parseAspectRatio(size string) string {
	size = strings.TrimSpace(size)
	if size == "" {
		return ""
	}

	if strings.Contains(size, ":") {
		for _, r := range supportedRatios {
			if size == r.name {
				return r.name
			}
		}
		return ""
	}

	parts := strings.SplitN(strings.ToLower(size), "x", 2)
	if len(parts) != 2 {
		return ""
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return ""
	}

	target := float64(w) / float64(h)
	best := supportedRatios[0]
	bestDiff := diff(target, best.value)
	for _, r := range supportedRatios[1:] {
		if d := diff(target, r.value); d < bestDiff {
			best, bestDiff = r, d
		}
	}
	return best.name
}

func diff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
