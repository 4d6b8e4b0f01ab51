// Package queue admits download jobs, runs them on a fixed worker pool and keeps the
// Incomplete Registry of jobs that stopped before completing.
//
// All job state lives behind one lock in the Manager. Workers never touch it directly;
// every change goes through a Manager method that performs one status transition.
// Readers get deep copies.
package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go-media-harvester/internal/database"
	"go-media-harvester/internal/downloader"
	"go-media-harvester/internal/models"
	"go-media-harvester/internal/storage"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxConcurrent is used when Options.MaxConcurrent is not positive.
const DefaultMaxConcurrent = 5

// Options configures a Manager.
type Options struct {
	MaxConcurrent int
	Fetcher       downloader.Fetcher
	// DB persists the registry and checkpoints. Nil keeps them in memory.
	DB *database.DB
	// Store is used to discard partial data of deleted incomplete jobs. Optional.
	Store *storage.Store
	// OnComplete runs on the worker goroutine after a job completes.
	OnComplete func(job models.DownloadJob)
}

// Manager is the Job Store and Queue Manager.
type Manager struct {
	mu       sync.RWMutex
	max      int
	jobs     map[string]*models.DownloadJob // live progress view
	queue    []string                       // FIFO of queued job ids
	active   map[string]context.CancelFunc  // ids holding a worker slot
	registry *Registry
	closed   bool

	slots      chan string
	fetcher    downloader.Fetcher
	store      *storage.Store
	onComplete func(models.DownloadJob)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads the registry, recovers jobs interrupted by an earlier shutdown and starts
// the worker pool.
func New(opts Options) (*Manager, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("queue: a fetcher is required")
	}
	size := opts.MaxConcurrent
	if size <= 0 {
		size = DefaultMaxConcurrent
	}
	registry, err := NewRegistry(opts.DB)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		max:        size,
		jobs:       make(map[string]*models.DownloadJob),
		active:     make(map[string]context.CancelFunc),
		registry:   registry,
		slots:      make(chan string, size),
		fetcher:    opts.Fetcher,
		store:      opts.Store,
		onComplete: opts.OnComplete,
		ctx:        ctx,
		cancel:     cancel,
	}
	if err := m.recover(); err != nil {
		cancel()
		return nil, err
	}

	log.Infof("Starting %d download workers", size)
	for w := 1; w <= size; w++ {
		m.wg.Add(1)
		go m.worker(w)
	}
	return m, nil
}

// MaxConcurrent returns the size of the worker pool.
func (m *Manager) MaxConcurrent() int {
	return m.max
}

// Submit validates and admits a new job. The job starts at once when a slot is free
// and is queued otherwise. An empty format means video.
func (m *Manager) Submit(sourceURL string, format models.Format) (models.DownloadJob, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if format == "" {
		format = models.FormatVideo
	}
	if err := validateSubmission(sourceURL, format); err != nil {
		return models.DownloadJob{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return models.DownloadJob{}, ErrClosed
	}
	if err := m.checkDuplicate(sourceURL, format); err != nil {
		return models.DownloadJob{}, err
	}

	job := &models.DownloadJob{
		ID:        newJobID(),
		SourceURL: sourceURL,
		Format:    format,
		CreatedAt: nowUTC(),
	}
	m.admit(job)
	log.WithFields(log.Fields{"job": job.ID, "url": sourceURL, "format": format, "status": job.Status}).Info("Job submitted")
	return cloneJob(job), nil
}

// Resume re-admits an incomplete job as a new job carrying its checkpoint. The old
// entry leaves the registry. Unknown ids return ErrNotFound and change nothing.
func (m *Manager) Resume(id string) (models.DownloadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.registry.Get(id)
	if !ok {
		return models.DownloadJob{}, ErrNotFound
	}
	if m.closed {
		return models.DownloadJob{}, ErrClosed
	}
	if err := m.checkDuplicate(entry.SourceURL, entry.Format); err != nil {
		return models.DownloadJob{}, err
	}
	if err := m.registry.Delete(id); err != nil {
		return models.DownloadJob{}, err
	}

	state := entry.ResumableState
	job := &models.DownloadJob{
		ID:             newJobID(),
		SourceURL:      entry.SourceURL,
		Format:         entry.Format,
		Title:          entry.Title,
		Progress:       entry.Progress,
		ResumableState: &state,
		ResumedFrom:    id,
		CreatedAt:      nowUTC(),
	}
	job.Progress.Rate = 0
	job.Progress.ETA = 0
	m.admit(job)
	log.WithFields(log.Fields{"job": job.ID, "resumedFrom": id, "status": job.Status}).Info("Job resumed")
	return cloneJob(job), nil
}

// DeleteIncomplete drops a registry entry and discards its partial data unless a live
// job is still using it. Unknown ids return ErrNotFound.
func (m *Manager) DeleteIncomplete(id string) error {
	m.mu.Lock()
	entry, ok := m.registry.Get(id)
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if err := m.registry.Delete(id); err != nil {
		m.mu.Unlock()
		return err
	}
	partial := entry.ResumableState.PartialPath
	if partial != "" && m.partialInUse(entry) {
		partial = ""
	}
	m.mu.Unlock()

	log.WithField("job", id).Info("Incomplete job deleted")
	if partial != "" && m.store != nil {
		if err := m.store.Remove(partial); err != nil {
			log.WithError(err).Warnf("Could not remove partial data %s", partial)
		}
	}
	return nil
}

// ClearCompleted removes terminal jobs from the progress view and returns how many
// were removed. The registry is not touched.
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, job := range m.jobs {
		if job.Status.IsTerminal() {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// Cancel discards a queued job before it starts, or removes a finished job from the
// progress view. Running jobs cannot be cancelled.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	switch {
	case job.Status.IsActive():
		return ErrJobActive
	case job.Status == models.StatusQueued:
		m.removeFromQueue(id)
		m.renumber()
		m.dropCheckpoint(id)
		log.WithField("job", id).Info("Queued job cancelled")
	}
	delete(m.jobs, id)
	return nil
}

// Job returns a copy of one job in the progress view.
func (m *Manager) Job(id string) (models.DownloadJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.DownloadJob{}, ErrNotFound
	}
	return cloneJob(job), nil
}

// Incomplete returns a copy of one registry entry.
func (m *Manager) Incomplete(id string) (models.IncompleteEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.registry.Get(id)
	if !ok {
		return models.IncompleteEntry{}, ErrNotFound
	}
	return entry, nil
}

// GetSnapshot returns a consistent copy of the whole queue.
func (m *Manager) GetSnapshot() models.QueueSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	progress := make(map[string]models.DownloadJob, len(m.jobs))
	for id, job := range m.jobs {
		progress[id] = cloneJob(job)
	}
	return models.QueueSnapshot{
		ActiveCount:   len(m.active),
		MaxConcurrent: m.max,
		QueueCount:    len(m.queue),
		Progress:      progress,
		Incomplete:    m.registry.Snapshot(),
	}
}

// Close stops admission, moves queued jobs into the registry, interrupts running
// fetches and waits for the workers to record them.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, id := range m.queue {
		if job, ok := m.jobs[id]; ok {
			m.fail(job, models.FailureInfo{Kind: models.FailureInterrupted, Message: "discarded at shutdown before starting"})
		}
	}
	m.queue = nil
	close(m.slots)
	m.mu.Unlock()

	log.Info("Stopping download workers...")
	m.cancel()
	m.wg.Wait()
	log.Info("Download workers stopped")
	return nil
}

// --- internals; callers hold m.mu ---

// admit is the single admission path for fresh and resumed jobs.
func (m *Manager) admit(job *models.DownloadJob) {
	m.jobs[job.ID] = job
	if len(m.active) < m.max {
		m.start(job)
	} else {
		m.setStatus(job, models.StatusQueued)
		m.queue = append(m.queue, job.ID)
		job.QueuePosition = len(m.queue) - 1
	}
	m.checkpoint(job)
}

// start gives job a worker slot. The slot channel has room because it never holds
// more ids than there are active jobs.
func (m *Manager) start(job *models.DownloadJob) {
	m.setStatus(job, models.StatusStarting)
	job.QueuePosition = 0
	job.StartedAt = nowUTC()
	m.active[job.ID] = nil
	m.slots <- job.ID
}

// promote fills free slots from the head of the queue, then renumbers the rest.
func (m *Manager) promote() {
	if m.closed {
		return
	}
	promoted := false
	for len(m.active) < m.max && len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		job, ok := m.jobs[id]
		if !ok {
			continue
		}
		m.start(job)
		m.checkpoint(job)
		promoted = true
		log.WithField("job", id).Debug("Promoted from queue")
	}
	if promoted {
		m.renumber()
	}
}

// renumber recomputes every queue position in one pass.
func (m *Manager) renumber() {
	for i, id := range m.queue {
		if job, ok := m.jobs[id]; ok {
			job.QueuePosition = i
		}
	}
}

func (m *Manager) removeFromQueue(id string) {
	for i, queued := range m.queue {
		if queued == id {
			m.queue = append(m.queue[:i:i], m.queue[i+1:]...)
			return
		}
	}
}

// setStatus is the one place a job status changes.
func (m *Manager) setStatus(job *models.DownloadJob, to models.JobStatus) bool {
	if err := models.ValidateTransition(job.Status, to); err != nil {
		log.WithError(err).WithField("job", job.ID).Warn("Ignoring status change")
		return false
	}
	job.Status = to
	return true
}

// fail finalizes a job as failed and moves it from the progress view into the
// registry.
func (m *Manager) fail(job *models.DownloadJob, failure models.FailureInfo) {
	m.setStatus(job, models.StatusFailed)
	job.FinishedAt = nowUTC()
	job.Result = &models.JobResult{Failure: &failure}

	state := models.ResumableState{SourceURL: job.SourceURL, Format: job.Format}
	if job.ResumableState != nil {
		state = *job.ResumableState
	}
	state.SourceURL, state.Format = job.SourceURL, job.Format
	if state.Title == "" {
		state.Title = job.Title
	}
	job.ResumableState = &state

	entry := models.IncompleteEntry{
		ID:             job.ID,
		SourceURL:      job.SourceURL,
		Format:         job.Format,
		Title:          job.Title,
		Failure:        failure,
		Progress:       job.Progress,
		ResumableState: state,
		FailedAt:       job.FinishedAt,
	}
	if err := m.registry.Put(entry); err != nil {
		log.WithError(err).WithField("job", job.ID).Error("Failed to persist incomplete entry")
	}
	m.dropCheckpoint(job.ID)
	delete(m.jobs, job.ID)
	log.WithFields(log.Fields{"job": job.ID, "kind": failure.Kind}).Warnf("Job failed: %s", failure.Message)
}

func (m *Manager) checkDuplicate(sourceURL string, format models.Format) error {
	for id, job := range m.jobs {
		if job.Status.IsTerminal() {
			continue
		}
		if job.SourceURL == sourceURL && job.Format == format {
			return &DuplicateError{ExistingID: id, SourceURL: sourceURL}
		}
	}
	return nil
}

// partialInUse reports whether a live job may be writing the entry's partial data.
func (m *Manager) partialInUse(entry models.IncompleteEntry) bool {
	for _, job := range m.jobs {
		if job.Status.IsTerminal() {
			continue
		}
		if job.SourceURL == entry.SourceURL && job.Format == entry.Format {
			return true
		}
		if job.ResumableState != nil && job.ResumableState.PartialPath == entry.ResumableState.PartialPath {
			return true
		}
	}
	return false
}

func (m *Manager) checkpoint(job *models.DownloadJob) {
	if err := m.registry.SaveCheckpoint(cloneJob(job)); err != nil {
		log.WithError(err).WithField("job", job.ID).Warn("Failed to save checkpoint")
	}
}

func (m *Manager) dropCheckpoint(id string) {
	if err := m.registry.DeleteCheckpoint(id); err != nil {
		log.WithError(err).WithField("job", id).Warn("Failed to delete checkpoint")
	}
}

// recover turns checkpoints left by a previous process into registry entries.
func (m *Manager) recover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	leftovers, err := m.registry.Checkpoints()
	if err != nil {
		return err
	}
	for _, job := range leftovers {
		if job.SourceURL != "" {
			m.fail(&job, models.FailureInfo{Kind: models.FailureInterrupted, Message: "interrupted by a restart"})
		} else {
			m.dropCheckpoint(job.ID)
		}
	}
	if len(leftovers) > 0 {
		log.Infof("Recovered %d interrupted jobs, %d incomplete in total", len(leftovers), m.registry.Len())
	}
	return nil
}

func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func cloneJob(job *models.DownloadJob) models.DownloadJob {
	c := *job
	if job.Result != nil {
		r := *job.Result
		if r.Failure != nil {
			f := *r.Failure
			r.Failure = &f
		}
		c.Result = &r
	}
	if job.ResumableState != nil {
		s := *job.ResumableState
		c.ResumableState = &s
	}
	return c
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
