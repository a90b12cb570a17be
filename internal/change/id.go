package change

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates a change-id in the default GX-<ISO-8601-seconds> format,
// with colons replaced by hyphens for filesystem friendliness.
func NewID(now time.Time) string {
	ts := now.UTC().Format("2006-01-02T15:04:05Z")
	return "GX-" + strings.ReplaceAll(ts, ":", "-")
}

// NewDisambiguatedID appends a short uuid suffix, for the rare case two
// batches are started within the same second and the caller wants to
// guarantee distinct change-ids without waiting out the clock.
func NewDisambiguatedID(now time.Time) string {
	return NewID(now) + "-" + uuid.New().String()[:8]
}
