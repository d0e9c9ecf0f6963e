package stats

import (
	"strings"
	"time"

	"github.com/halvden/jellywatch/internal/jellyfin"
)

// LibraryCount is the counted result for one library. When the count lookup
// failed, Count is zero and Unavailable is set; a single bad library never
// aborts the cycle.
type LibraryCount struct {
	Name        string `json:"name"`
	Count       int    `json:"count"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// Report is one cycle's aggregated counts, in server enumeration order.
type Report struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Libraries   []LibraryCount `json:"libraries"`
}

// excluded reports whether a library is skipped from counting. Playlist
// collections are synthetic views over other libraries and would double
// count their contents.
func excluded(f jellyfin.MediaFolder) bool {
	return strings.Contains(strings.ToLower(f.Name), "playlist")
}

// countSeriesOnly reports whether a library should be counted with the
// series filter, so TV libraries count shows rather than seasons and
// episodes.
func countSeriesOnly(f jellyfin.MediaFolder) bool {
	ct := strings.ToLower(f.CollectionType)
	return strings.Contains(ct, "tvshows") || strings.Contains(ct, "tv")
}
