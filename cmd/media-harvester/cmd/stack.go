package cmd

import (
	"errors"
	"fmt"
	"net/http"

	index "go-media-harvester/index"
	"go-media-harvester/internal/database"
	"go-media-harvester/internal/downloader"
	"go-media-harvester/internal/helpers"
	"go-media-harvester/internal/models"
	"go-media-harvester/internal/queue"
	"go-media-harvester/internal/storage"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// stack is everything a command needs to run downloads.
type stack struct {
	db      *database.DB
	store   *storage.Store
	index   bleve.Index
	manager *queue.Manager
}

// openStack opens the database, artifact store and search index and starts the queue.
func openStack(cfg models.Config) (*stack, error) {
	if !helpers.CheckAndMakeDir(cfg.SavePath) {
		return nil, fmt.Errorf("could not create save path %s", cfg.SavePath)
	}
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	s := &stack{db: db, store: storage.NewStore(afero.NewOsFs(), cfg.SavePath)}

	s.index, err = index.OpenOrCreateIndex(cfg.IndexPath)
	if err != nil {
		// Downloads still work without search.
		log.WithError(err).Warnf("Failed to open search index at %s, completed downloads will not be indexed", cfg.IndexPath)
		s.index = nil
	}

	fetcher := &downloader.Router{
		Direct:   downloader.NewHTTPFetcher(&http.Client{Transport: globalHttpTransport}, s.store, cfg),
		Platform: downloader.NewYTDLPFetcher(s.store, cfg),
	}
	s.manager, err = queue.New(queue.Options{
		MaxConcurrent: cfg.MaxConcurrent,
		Fetcher:       fetcher,
		DB:            db,
		Store:         s.store,
		OnComplete:    s.indexCompleted,
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *stack) indexCompleted(job models.DownloadJob) {
	if s.index == nil {
		return
	}
	if err := index.IndexItem(s.index, index.ItemFromJob(job)); err != nil {
		log.WithError(err).WithField("job", job.ID).Warn("Failed to index completed download")
	}
}

// Close stops the queue first so interrupted jobs reach the registry before the
// database closes.
func (s *stack) Close() error {
	var errs []error
	if s.manager != nil {
		errs = append(errs, s.manager.Close())
	}
	if s.index != nil {
		errs = append(errs, s.index.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
