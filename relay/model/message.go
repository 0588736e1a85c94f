package model

const (
	ContentTypeText       = "text"
	ContentTypeImageURL   = "image_url"
	ContentTypeInputImage = "input_image"
)

// ImageURL carries an image reference inside a structured content block.
type ImageURL struct {
	Url    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// MessageContent is one block of structured message content.
type MessageContent struct {
	Type     string    `json:"type"`
	Text     *string   `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Message is a single canonical chat message. Content is either nil, a plain
// string, or an ordered list of content blocks; the helpers below normalize
// access across the three shapes.
type Message struct {
	Role             string `json:"role"`
	Content          any    `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
	Name             *string `json:"name,omitempty"`
	ToolCalls        []Tool  `json:"tool_calls,omitempty"`
	ToolCallId       string  `json:"tool_call_id,omitempty"`
}

// IsStringContent reports whether the content is a plain string.
func (m Message) IsStringContent() bool {
	_, ok := m.Content.(string)
	return ok
}

// StringContent returns the textual content of the message. For block-list
// content the text blocks are concatenated in order.
func (m Message) StringContent() string {
	switch content := m.Content.(type) {
	case string:
		return content
	case []any:
		var text string
		for _, block := range content {
			blockMap, ok := block.(map[string]any)
			if !ok {
				continue
			}
			if blockMap["type"] == ContentTypeText {
				if subStr, ok := blockMap["text"].(string); ok {
					text += subStr
				}
			}
		}
		return text
	case []MessageContent:
		var text string
		for _, block := range content {
			if block.Type == ContentTypeText && block.Text != nil {
				text += *block.Text
			}
		}
		return text
	}
	return ""
}

// ParseContent normalizes the message content into a block list. Plain
// strings become a single text block; unknown block shapes are skipped.
func (m Message) ParseContent() []MessageContent {
	var contentList []MessageContent
	switch content := m.Content.(type) {
	case string:
		contentList = append(contentList, MessageContent{
			Type: ContentTypeText,
			Text: &content,
		})
	case []MessageContent:
		contentList = append(contentList, content...)
	case []any:
		for _, block := range content {
			blockMap, ok := block.(map[string]any)
			if !ok {
				continue
			}
			switch blockMap["type"] {
			case ContentTypeText:
				if text, ok := blockMap["text"].(string); ok {
					contentList = append(contentList, MessageContent{
						Type: ContentTypeText,
						Text: &text,
					})
				}
			case ContentTypeImageURL, ContentTypeInputImage:
				switch urlValue := blockMap["image_url"].(type) {
				case string:
					contentList = append(contentList, MessageContent{
						Type:     ContentTypeImageURL,
						ImageURL: &ImageURL{Url: urlValue},
					})
				case map[string]any:
					if url, ok := urlValue["url"].(string); ok {
						contentList = append(contentList, MessageContent{
							Type:     ContentTypeImageURL,
							ImageURL: &ImageURL{Url: url},
						})
					}
				}
			}
		}
	}
	return contentList
}

// AppendText appends text to the message while preserving the content shape:
// string content is concatenated, block-list content receives an extra text
// block, nil content becomes a plain string.
func (m *Message) AppendText(text string) {
	switch content := m.Content.(type) {
	case nil:
		m.Content = text
	case string:
		m.Content = content + text
	case []any:
		m.Content = append(content, map[string]any{
			"type": ContentTypeText,
			"text": text,
		})
	case []MessageContent:
		m.Content = append(content, MessageContent{
			Type: ContentTypeText,
			Text: &text,
		})
	}
}
