package common

import "unicode/utf8"

const (
	// DefaultLogBodyLimit defines the maximum number of bytes to emit for log previews.
	DefaultLogBodyLimit = 4096
	// LogTruncationSuffix marks truncated log values.
	LogTruncationSuffix = "...[truncated]"
)

// SanitizePayloadForLogging returns a preview of the payload bounded to limit
// bytes and a flag reporting whether truncation happened. Payload previews
// routinely contain base64 image data, so capping the size keeps log lines
// usable.
func SanitizePayloadForLogging(body []byte, limit int) ([]byte, bool) {
	if limit <= 0 || len(body) <= limit {
		return body, false
	}

	cut := limit
	// Do not split a multi-byte rune at the cut point.
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}

	preview := make([]byte, 0, cut+len(LogTruncationSuffix))
	preview = append(preview, body[:cut]...)
	preview = append(preview, []byte(LogTruncationSuffix)...)
	return preview, true
}
