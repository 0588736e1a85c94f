package random

import (
	"strings"

	"github.com/google/uuid"
)

// GetUUID returns a random uuid without dashes.
func GetUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
