// Package server exposes the download queue, artifact retrieval, page extraction and
// artifact search over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go-media-harvester/internal/extractor"
	"go-media-harvester/internal/models"
	"go-media-harvester/internal/storage"

	"github.com/blevesearch/bleve/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// Queue is the part of the queue manager the API drives.
type Queue interface {
	Submit(sourceURL string, format models.Format) (models.DownloadJob, error)
	Resume(id string) (models.DownloadJob, error)
	DeleteIncomplete(id string) error
	ClearCompleted() int
	Cancel(id string) error
	Job(id string) (models.DownloadJob, error)
	GetSnapshot() models.QueueSnapshot
}

// Capturer renders a page into an annotated snapshot.
type Capturer interface {
	Capture(ctx context.Context, pageURL string) (models.PageSnapshot, error)
}

// Options wires the server. Store, Capturer and Index are optional; the routes that
// need a missing one answer 503.
type Options struct {
	Addr      string
	Queue     Queue
	Store     *storage.Store
	Capturer  Capturer
	Extractor *extractor.Extractor
	Index     bleve.Index
}

type Server struct {
	queue     Queue
	store     *storage.Store
	capturer  Capturer
	extractor *extractor.Extractor
	index     bleve.Index
	http      *http.Server
}

func New(opts Options) *Server {
	s := &Server{
		queue:     opts.Queue,
		store:     opts.Store,
		capturer:  opts.Capturer,
		extractor: opts.Extractor,
		index:     opts.Index,
	}
	if s.extractor == nil {
		s.extractor = extractor.New()
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/downloads", func(r chi.Router) {
			r.Post("/", s.submitDownload)
			r.Get("/", s.getSnapshot)
			r.Post("/clear", s.clearCompleted)
			r.Get("/{jobID}", s.getDownload)
			r.Delete("/{jobID}", s.cancelDownload)
		})
		r.Route("/incomplete/{jobID}", func(r chi.Router) {
			r.Post("/resume", s.resumeIncomplete)
			r.Delete("/", s.deleteIncomplete)
		})
		r.Get("/files/*", s.getFile)
		r.Post("/extract", s.extract)
		r.Get("/search", s.search)
	})
	return r
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	log.Infof("Starting HTTP server on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Infof("Stopping HTTP server on %s", s.http.Addr)
	return s.http.Shutdown(ctx)
}
