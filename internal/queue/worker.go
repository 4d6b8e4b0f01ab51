package queue

import (
	"context"

	"go-media-harvester/internal/downloader"
	"go-media-harvester/internal/models"

	log "github.com/sirupsen/logrus"
)

// worker runs the jobs handed to it through the slot channel, one at a time, until the
// channel is closed.
func (m *Manager) worker(id int) {
	defer m.wg.Done()
	log.Debugf("Worker %d started", id)
	for jobID := range m.slots {
		m.run(id, jobID)
	}
	log.Debugf("Worker %d finished", id)
}

func (m *Manager) run(worker int, jobID string) {
	ctx, cancel, req, ok := m.begin(jobID)
	if !ok {
		return
	}
	defer cancel()

	logger := log.WithFields(log.Fields{"worker": worker, "job": jobID})
	var (
		out downloader.Outcome
		err error
	)
	if err = ctx.Err(); err == nil {
		logger.Infof("Fetching %s", req.SourceURL)
		out, err = m.fetcher.Fetch(ctx, req, func(ev downloader.Event) {
			m.onEvent(jobID, ev)
		})
	}

	if done, completed := m.finish(jobID, out, err); completed {
		logger.Infof("Job completed: %s", done.Result.Reference)
		if m.onComplete != nil {
			m.onComplete(done)
		}
	}
}

// begin registers the job's cancel function and builds the fetch request.
func (m *Manager) begin(jobID string) (context.Context, context.CancelFunc, downloader.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		delete(m.active, jobID)
		m.promote()
		return nil, nil, downloader.Request{}, false
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.active[jobID] = cancel

	req := downloader.Request{JobID: job.ID, SourceURL: job.SourceURL, Format: job.Format}
	if job.ResumableState != nil {
		state := *job.ResumableState
		req.Resume = &state
	}
	return ctx, cancel, req, true
}

// onEvent folds one progress event into the job.
func (m *Manager) onEvent(jobID string, ev downloader.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || !job.Status.IsActive() {
		return
	}

	to := models.StatusDownloading
	if ev.Phase == downloader.PhaseProcessing || job.Status == models.StatusProcessing {
		to = models.StatusProcessing
	}
	statusChanged := job.Status != to
	m.setStatus(job, to)

	p := &job.Progress
	p.BytesDownloaded = ev.BytesDownloaded
	if ev.BytesTotal > 0 {
		p.BytesTotal = ev.BytesTotal
	}
	p.Rate = ev.Rate
	p.ETA = ev.ETA
	if p.BytesTotal > 0 {
		pct := float64(p.BytesDownloaded) / float64(p.BytesTotal) * 100
		if pct > 100 {
			pct = 100
		}
		// Percent never moves backwards while the job is active.
		if pct > p.Percent {
			p.Percent = pct
		}
	}
	if ev.Title != "" {
		job.Title = ev.Title
	}

	if job.ResumableState == nil {
		job.ResumableState = &models.ResumableState{SourceURL: job.SourceURL, Format: job.Format}
	}
	state := job.ResumableState
	pathChanged := ev.PartialPath != "" && ev.PartialPath != state.PartialPath
	if ev.PartialPath != "" {
		state.PartialPath = ev.PartialPath
	}
	state.BytesDownloaded = ev.BytesDownloaded
	state.BytesTotal = p.BytesTotal
	state.Title = job.Title

	if statusChanged || pathChanged {
		m.checkpoint(job)
	}
}

// finish records the terminal outcome, releases the slot and promotes the next queued
// job. It returns a copy of the job when it completed.
func (m *Manager) finish(jobID string, out downloader.Outcome, err error) (models.DownloadJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, jobID)
	defer m.promote()

	job, ok := m.jobs[jobID]
	if !ok {
		return models.DownloadJob{}, false
	}

	if err != nil {
		kind := downloader.Classify(err)
		if kind == "" {
			kind = models.FailureUnknown
		}
		m.fail(job, models.FailureInfo{Kind: kind, Message: err.Error()})
		return models.DownloadJob{}, false
	}

	m.setStatus(job, models.StatusCompleted)
	job.FinishedAt = nowUTC()
	job.Progress.Percent = 100
	job.Progress.Rate = 0
	job.Progress.ETA = 0
	if out.Title != "" {
		job.Title = out.Title
	}
	job.Result = &models.JobResult{Reference: out.Reference, Title: job.Title, Checksum: out.Checksum}
	job.ResumableState = nil
	m.dropCheckpoint(jobID)
	return cloneJob(job), true
}
