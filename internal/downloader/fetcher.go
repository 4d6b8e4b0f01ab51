package downloader

import (
	"context"
	"strings"
	"time"

	"go-media-harvester/internal/helpers"
	"go-media-harvester/internal/models"
)

// Phase tells the worker what the external capability is doing.
type Phase string

const (
	PhaseDownloading Phase = "downloading"
	PhaseProcessing  Phase = "processing"
)

// Request describes one transfer. Resume, when set, is the checkpoint of an earlier
// attempt at the same source.
type Request struct {
	JobID     string
	SourceURL string
	Format    models.Format
	Resume    *models.ResumableState
}

// Event is one progress report. Zero values mean unknown.
type Event struct {
	Phase           Phase
	BytesDownloaded int64
	BytesTotal      int64
	Rate            float64 // bytes per second
	ETA             time.Duration
	PartialPath     string // store reference of the data kept for resuming
	Title           string
}

// Outcome is the result of a successful transfer.
type Outcome struct {
	Reference string
	Title     string
	Checksum  string
}

// Fetcher performs one transfer, reporting progress through emit until it returns.
// Implementations must return promptly once ctx is cancelled.
type Fetcher interface {
	Fetch(ctx context.Context, req Request, emit func(Event)) (Outcome, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req Request, emit func(Event)) (Outcome, error)

func (f FetcherFunc) Fetch(ctx context.Context, req Request, emit func(Event)) (Outcome, error) {
	return f(ctx, req, emit)
}

// partialKey is stable for a source and format, so a resumed job finds the data its
// predecessor left behind even without a checkpoint path.
func partialKey(sourceURL string, format models.Format) string {
	sum, err := helpers.Blake3Hex(strings.NewReader(string(format) + "|" + sourceURL))
	if err != nil || len(sum) < 16 {
		return string(format)
	}
	return strings.ToLower(sum[:16])
}

// resumeRef returns the partial reference recorded in the checkpoint, if any.
func resumeRef(req Request) string {
	if req.Resume != nil {
		return req.Resume.PartialPath
	}
	return ""
}

// rate and eta derive speed figures from a transfer that started at start.
func rate(downloaded int64, start time.Time) float64 {
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 || downloaded <= 0 {
		return 0
	}
	return float64(downloaded) / elapsed
}

func eta(downloaded, total int64, bytesPerSec float64) time.Duration {
	if total <= 0 || bytesPerSec <= 0 || downloaded >= total {
		return 0
	}
	return time.Duration(float64(total-downloaded) / bytesPerSec * float64(time.Second))
}
