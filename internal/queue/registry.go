package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go-media-harvester/internal/database"
	"go-media-harvester/internal/models"

	log "github.com/sirupsen/logrus"
)

// Key prefixes in the database.
const (
	incompletePrefix = "incomplete_"
	checkpointPrefix = "checkpoint_"
)

// Registry is the Incomplete Registry plus the checkpoints of live jobs. Entries are
// mirrored in memory for snapshots and persisted when a database is attached. It is
// not safe for concurrent use; the Manager serializes access.
type Registry struct {
	db      *database.DB
	entries map[string]models.IncompleteEntry
}

// NewRegistry loads persisted entries from db. A nil db keeps everything in memory.
func NewRegistry(db *database.DB) (*Registry, error) {
	r := &Registry{db: db, entries: make(map[string]models.IncompleteEntry)}
	if db == nil {
		return r, nil
	}
	err := db.FoldPrefix(incompletePrefix, func(key []byte, value []byte) error {
		var entry models.IncompleteEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Skipping unreadable registry entry %s", string(key))
			return nil
		}
		r.entries[entry.ID] = entry
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading incomplete registry: %w", err)
	}
	log.Debugf("Loaded %d incomplete entries", r.Len())
	return r, nil
}

func (r *Registry) Put(entry models.IncompleteEntry) error {
	r.entries[entry.ID] = entry
	if r.db == nil {
		return nil
	}
	return r.db.PutJSON(incompletePrefix+entry.ID, entry)
}

func (r *Registry) Get(id string) (models.IncompleteEntry, bool) {
	entry, ok := r.entries[id]
	return entry, ok
}

// Delete removes an entry. It reports ErrNotFound for unknown ids.
func (r *Registry) Delete(id string) error {
	if _, ok := r.entries[id]; !ok {
		return ErrNotFound
	}
	delete(r.entries, id)
	if r.db == nil {
		return nil
	}
	if err := r.db.Delete([]byte(incompletePrefix + id)); err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("deleting registry entry %s: %w", id, err)
	}
	return nil
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Snapshot copies all entries.
func (r *Registry) Snapshot() map[string]models.IncompleteEntry {
	out := make(map[string]models.IncompleteEntry, len(r.entries))
	for id, entry := range r.entries {
		out[id] = entry
	}
	return out
}

// SaveCheckpoint records a queued or active job so it survives a crash.
func (r *Registry) SaveCheckpoint(job models.DownloadJob) error {
	if r.db == nil {
		return nil
	}
	return r.db.PutJSON(checkpointPrefix+job.ID, job)
}

func (r *Registry) DeleteCheckpoint(id string) error {
	if r.db == nil {
		return nil
	}
	if err := r.db.Delete([]byte(checkpointPrefix + id)); err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("deleting checkpoint %s: %w", id, err)
	}
	return nil
}

// Checkpoints returns every job checkpoint left in the database.
func (r *Registry) Checkpoints() ([]models.DownloadJob, error) {
	jobs := []models.DownloadJob{}
	if r.db == nil {
		return jobs, nil
	}
	err := r.db.FoldPrefix(checkpointPrefix, func(key []byte, value []byte) error {
		var job models.DownloadJob
		if err := json.Unmarshal(value, &job); err != nil || job.ID == "" {
			log.WithError(err).Warnf("Dropping unreadable checkpoint %s", string(key))
			id := strings.TrimPrefix(string(key), checkpointPrefix)
			job = models.DownloadJob{ID: id}
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading checkpoints: %w", err)
	}
	return jobs, nil
}
