// Package stats turns a Jellyfin library listing into an ordered report of
// per-library item counts.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/halvden/jellywatch/internal/jellyfin"
)

// Sentinel errors for the aggregation stage.
var (
	// ErrNotConfigured indicates the Jellyfin URL or API key is missing.
	ErrNotConfigured = errors.New("jellyfin server not configured")
	// ErrNoLibraries indicates enumeration succeeded but left nothing to count.
	ErrNoLibraries = errors.New("no countable libraries")
)

// LibraryAPI is the slice of the Jellyfin client the collector uses.
type LibraryAPI interface {
	MediaFolders(ctx context.Context) ([]jellyfin.MediaFolder, error)
	CountItems(ctx context.Context, libraryID string, seriesOnly bool) (int, error)
}

// Collector aggregates per-library counts into a Report.
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a collector.
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{logger: logger.With(slog.String("component", "stats"))}
}

// Collect enumerates libraries, filters out playlist collections, counts the
// rest, and assembles a report preserving server order. Enumeration failures
// abort the cycle; a failed count for an individual library records zero and
// continues.
func (c *Collector) Collect(ctx context.Context, api LibraryAPI) (*Report, error) {
	runID := uuid.New().String()
	logger := c.logger.With(slog.String("run_id", runID))

	folders, err := api.MediaFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating libraries: %w", err)
	}
	logger.Info("libraries enumerated", "total", len(folders))

	report := &Report{GeneratedAt: time.Now().UTC()}
	for _, f := range folders {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if excluded(f) {
			logger.Debug("skipping playlist library", "library", f.Name)
			continue
		}

		seriesOnly := countSeriesOnly(f)
		count, err := api.CountItems(ctx, f.ID, seriesOnly)
		if err != nil {
			// Context cancellation is not a per-library condition.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error("counting library failed, recording zero",
				"library", f.Name, "error", err)
			report.Libraries = append(report.Libraries, LibraryCount{Name: f.Name, Unavailable: true})
			continue
		}

		logger.Debug("library counted",
			"library", f.Name, "count", count, "series_only", seriesOnly)
		report.Libraries = append(report.Libraries, LibraryCount{Name: f.Name, Count: count})
	}

	if len(report.Libraries) == 0 {
		return nil, ErrNoLibraries
	}

	logger.Info("report assembled", "libraries", len(report.Libraries))
	return report, nil
}
