package helper

import "bufio"

const (
	// sseInitialBufferSize covers typical delta frames without a regrow.
	sseInitialBufferSize = 64 * 1024
	// sseMaxLineSize bounds one SSE line. Image responses inline the whole
	// base64 payload in a single data: line, so the cap must fit a full
	// generated image.
	sseMaxLineSize = 32 * 1024 * 1024
)

// ConfigureScannerBuffer sizes a scanner for upstream SSE bodies, whose
// data lines range from a few bytes of delta text to an entire inline
// image.
func ConfigureScannerBuffer(scanner *bufio.Scanner) {
	if scanner == nil {
		return
	}
	scanner.Buffer(make([]byte, sseInitialBufferSize), sseMaxLineSize)
}
