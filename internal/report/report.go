// Package report stores captured page snapshots as JSON files. The queue and extractor
// only read from it; the capture command is the single writer.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"go-media-harvester/internal/helpers"
	"go-media-harvester/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var (
	ErrNotFound    = errors.New("report not found")
	ErrInvalidName = errors.New("invalid report name")
)

const reportExt = ".json"

var slugReplacer = strings.NewReplacer("/", "_", ".", "_", "?", "_", "&", "_", "=", "_")

// Entry summarizes one stored snapshot.
type Entry struct {
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Store reads snapshots from a directory.
type Store struct {
	fs  afero.Afero
	dir string
}

func NewStore(fs afero.Fs, dir string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: afero.Afero{Fs: fs}, dir: dir}
}

// List returns all readable snapshots, newest first. Unreadable files are skipped.
func (s *Store) List() ([]Entry, error) {
	infos, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("reading report directory %s: %w", s.dir, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), reportExt) {
			continue
		}
		snap, err := s.Get(info.Name())
		if err != nil {
			log.WithError(err).Warnf("Skipping unreadable report %s", info.Name())
			continue
		}
		entries = append(entries, Entry{Name: info.Name(), URL: snap.URL, CapturedAt: snap.CapturedAt})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CapturedAt.Equal(entries[j].CapturedAt) {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].CapturedAt.After(entries[j].CapturedAt)
	})
	return entries, nil
}

// Get loads one snapshot by file name.
func (s *Store) Get(name string) (models.PageSnapshot, error) {
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return models.PageSnapshot{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	data, err := s.fs.ReadFile(path.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return models.PageSnapshot{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return models.PageSnapshot{}, fmt.Errorf("reading report %s: %w", name, err)
	}
	var snap models.PageSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.PageSnapshot{}, fmt.Errorf("decoding report %s: %w", name, err)
	}
	return snap, nil
}

// Writer persists snapshots into the same layout the Store reads.
type Writer struct {
	fs  afero.Afero
	dir string
}

func NewWriter(fs afero.Fs, dir string) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Writer{fs: afero.Afero{Fs: fs}, dir: dir}
}

// Save writes snap and returns the file name it was stored under.
func (w *Writer) Save(snap models.PageSnapshot) (string, error) {
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	bare := strings.TrimPrefix(strings.TrimPrefix(snap.URL, "https://"), "http://")
	slug := helpers.ConvertToSlug(slugReplacer.Replace(bare))
	if len(slug) > 80 {
		slug = slug[:80]
	}
	if slug == "" {
		slug = "page"
	}
	name := fmt.Sprintf("%s_%s%s", snap.CapturedAt.UTC().Format("20060102T150405.000"), slug, reportExt)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	if err := w.fs.MkdirAll(w.dir, 0700); err != nil {
		return "", fmt.Errorf("creating report directory %s: %w", w.dir, err)
	}
	if err := w.fs.WriteFile(path.Join(w.dir, name), data, 0600); err != nil {
		return "", fmt.Errorf("writing report %s: %w", name, err)
	}
	log.WithField("report", name).Info("Snapshot saved")
	return name, nil
}
