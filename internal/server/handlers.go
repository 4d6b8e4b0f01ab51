package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go-media-harvester/index"
	"go-media-harvester/internal/models"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	log "github.com/sirupsen/logrus"
)

const defaultSearchSize = 20

type submitReq struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

func (req *submitReq) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.URL, validation.Required),
	)
}

type jobResp struct {
	JobID         string           `json:"job_id"`
	Status        models.JobStatus `json:"status"`
	QueuePosition *int             `json:"queue_position,omitempty"`
}

func newJobResp(job models.DownloadJob) jobResp {
	resp := jobResp{JobID: job.ID, Status: job.Status}
	if job.Status == models.StatusQueued {
		pos := job.QueuePosition
		resp.QueuePosition = &pos
	}
	return resp
}

func (s *Server) submitDownload(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err)
		return
	}

	job, err := s.queue.Submit(req.URL, models.Format(strings.ToLower(req.Format)))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newJobResp(job))
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.GetSnapshot())
}

func (s *Server) getDownload(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.Job(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelDownload(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.Cancel(chi.URLParam(r, "jobID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearCompleted(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"removed": s.queue.ClearCompleted()})
}

func (s *Server) resumeIncomplete(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.Resume(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newJobResp(job))
}

func (s *Server) deleteIncomplete(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.DeleteIncomplete(chi.URLParam(r, "jobID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, errUnavailable)
		return
	}
	f, info, err := s.store.Open(chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

type extractReq struct {
	URL string `json:"url"`
}

type extractResp struct {
	URL        string             `json:"url"`
	Candidates []models.Candidate `json:"candidates"`
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	if s.capturer == nil {
		writeError(w, errUnavailable)
		return
	}
	var req extractReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	if err := validation.ValidateStruct(&req, validation.Field(&req.URL, validation.Required)); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err)
		return
	}

	snap, err := s.capturer.Capture(r.Context(), req.URL)
	if err != nil {
		writeErrorStatus(w, http.StatusBadGateway, err)
		return
	}
	candidates := s.extractor.Extract(snap)
	log.WithFields(log.Fields{"url": snap.URL, "candidates": len(candidates)}).Info("Page extracted")
	writeJSON(w, http.StatusOK, extractResp{URL: snap.URL, Candidates: candidates})
}

type searchHit struct {
	ID     string                 `json:"id"`
	Score  float64                `json:"score"`
	Fields map[string]interface{} `json:"fields"`
}

type searchResp struct {
	Total uint64      `json:"total"`
	Hits  []searchHit `json:"hits"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, errUnavailable)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeErrorStatus(w, http.StatusBadRequest, validation.Errors{"q": errors.New("cannot be blank")})
		return
	}
	size := defaultSearchSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeErrorStatus(w, http.StatusBadRequest, fmt.Errorf("invalid size %q", raw))
			return
		}
		size = n
	}

	res, err := index.SearchIndex(s.index, q, size)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err)
		return
	}
	resp := searchResp{Total: res.Total, Hits: make([]searchHit, 0, len(res.Hits))}
	for _, hit := range res.Hits {
		resp.Hits = append(resp.Hits, searchHit{ID: hit.ID, Score: hit.Score, Fields: hit.Fields})
	}
	writeJSON(w, http.StatusOK, resp)
}
