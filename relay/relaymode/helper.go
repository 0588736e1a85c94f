package relaymode

import "strings"

// GetByPath maps an inbound request path to a relay mode.
func GetByPath(path string) int {
	switch {
	case strings.HasPrefix(path, "/v1/chat/completions"):
		return ChatCompletions
	case strings.HasPrefix(path, "/v1/completions"):
		return Completions
	case strings.HasPrefix(path, "/v1/responses"):
		return ResponseAPI
	case strings.HasPrefix(path, "/v1/images/generations"):
		return ImagesGenerations
	case strings.HasPrefix(path, "/v1/images/edits"):
		return ImagesEdits
	case strings.HasPrefix(path, "/v1/models"):
		return ModelList
	default:
		return Unknown
	}
}
