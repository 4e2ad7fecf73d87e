package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a URL-safe identifier used for request ids.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
