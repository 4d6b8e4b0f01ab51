package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go-media-harvester/internal/helpers"
	"go-media-harvester/internal/models"
	"go-media-harvester/internal/queue"

	"github.com/gosuri/uilive"
)

const watchInterval = 300 * time.Millisecond

type watchSummary struct {
	Completed   int
	Failed      int
	Interrupted bool
}

// watchJobs redraws the progress of ids until every job has ended or ctx is done.
func watchJobs(ctx context.Context, m *queue.Manager, ids []string) watchSummary {
	writer := uilive.New()
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		summary, pending := renderJobs(writer, m, ids)
		_ = writer.Flush()
		if pending == 0 {
			return summary
		}
		select {
		case <-ctx.Done():
			summary.Interrupted = true
			return summary
		case <-ticker.C:
		}
	}
}

// renderJobs writes one frame and reports how many jobs are still running.
func renderJobs(writer *uilive.Writer, m *queue.Manager, ids []string) (watchSummary, int) {
	var summary watchSummary
	pending := 0
	for i, id := range ids {
		var w io.Writer = writer
		if i > 0 {
			w = writer.Newline()
		}
		line, state := describeJob(m, id)
		fmt.Fprintln(w, line)
		switch state {
		case models.StatusCompleted:
			summary.Completed++
		case models.StatusFailed:
			summary.Failed++
		case "":
		default:
			pending++
		}
	}
	return summary, pending
}

// describeJob formats one job. Failed jobs are looked up in the incomplete registry.
func describeJob(m *queue.Manager, id string) (string, models.JobStatus) {
	short := shortID(id)
	job, err := m.Job(id)
	if errors.Is(err, queue.ErrNotFound) {
		entry, err := m.Incomplete(id)
		if err != nil {
			return fmt.Sprintf("[%s] removed", short), ""
		}
		return fmt.Sprintf("[%s] failed (%s): %s", short, entry.Failure.Kind, entry.Failure.Message), models.StatusFailed
	}

	name := job.Title
	if name == "" {
		name = job.SourceURL
	}
	p := job.Progress
	switch job.Status {
	case models.StatusQueued:
		return fmt.Sprintf("[%s] queued #%d  %s", short, job.QueuePosition+1, name), job.Status
	case models.StatusStarting:
		return fmt.Sprintf("[%s] starting  %s", short, name), job.Status
	case models.StatusCompleted:
		ref := ""
		if job.Result != nil {
			ref = job.Result.Reference
		}
		return fmt.Sprintf("[%s] completed  %s -> %s", short, name, ref), job.Status
	}

	size := helpers.BytesToSize(uint64(p.BytesDownloaded))
	if p.BytesTotal > 0 {
		size += " / " + helpers.BytesToSize(uint64(p.BytesTotal))
	}
	line := fmt.Sprintf("[%s] %s %5.1f%%  %s", short, job.Status, p.Percent, size)
	if p.Rate > 0 {
		line += "  " + helpers.RateToString(p.Rate)
	}
	if p.ETA > 0 {
		line += "  eta " + p.ETA.Round(time.Second).String()
	}
	return line + "  " + name, job.Status
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
