package relaymode

const (
	Unknown = iota
	ChatCompletions
	Completions
	// ResponseAPI is for OpenAI Response API direct requests
	ResponseAPI
	ImagesGenerations
	ImagesEdits
	ModelList
)

func String(mode int) string {
	switch mode {
	case ChatCompletions:
		return "chat"
	case Completions:
		return "completion"
	case ResponseAPI:
		return "response_api"
	case ImagesGenerations:
		return "image_generation"
	case ImagesEdits:
		return "image_edit"
	case ModelList:
		return "model_list"
	default:
		return "unknown"
	}
}
