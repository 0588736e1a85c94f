package token

import (
	"fmt"
	"hash/fnv"

	"github.com/agrelay/agrelay/relay/model"
)

// fingerprint content is bounded so huge first messages hash cheaply and
// stably.
const fingerprintContentLimit = 256

// Fingerprint derives a stable session key from the first user message and
// any client-supplied conversation id. Requests with the same fingerprint
// stick to the same account while the pool is healthy. Returns "" when there
// is nothing stable to key on.
func Fingerprint(req *model.GeneralOpenAIRequest) string {
	var seed string

	if first := req.FirstUserMessage(); first != nil {
		content := first.StringContent()
		if len(content) > fingerprintContentLimit {
			content = content[:fingerprintContentLimit]
		}
		seed = first.Role + "|" + content
	}

	switch {
	case req.SessionId != "":
		seed += "|" + req.SessionId
	case req.User != "":
		seed += "|" + req.User
	}

	if seed == "" {
		return ""
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return fmt.Sprintf("%016x", h.Sum64())
}
