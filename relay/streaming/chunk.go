// Package streaming implements the SSE peek-ahead filter and the
// stream-to-JSON collector used by the relay orchestrator.
package streaming

// Chunk is one unit of a translated SSE stream. Exactly one of Data or Err
// is meaningful; a closed channel marks normal end of stream.
type Chunk struct {
	Data []byte
	Err  error
}

// Prepend returns a stream that yields first before passing through the
// remainder untouched. Used to splice the peeked chunk back in front of the
// live stream without reordering.
func Prepend(first []byte, rest <-chan Chunk) <-chan Chunk {
	out := make(chan Chunk, 1)
	out <- Chunk{Data: first}
	go func() {
		defer close(out)
		for c := range rest {
			out <- c
		}
	}()
	return out
}
