package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-media-harvester/index"
	"go-media-harvester/internal/downloader"
	"go-media-harvester/internal/models"
	"go-media-harvester/internal/queue"
	"go-media-harvester/internal/storage"

	"github.com/blevesearch/bleve/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingFetcher holds "block" URLs until cancelled, fails "fail" URLs and completes
// everything else.
var blockingFetcher = downloader.FetcherFunc(func(ctx context.Context, req downloader.Request, emit func(downloader.Event)) (downloader.Outcome, error) {
	switch {
	case strings.Contains(req.SourceURL, "block"):
		<-ctx.Done()
		return downloader.Outcome{}, ctx.Err()
	case strings.Contains(req.SourceURL, "fail"):
		emit(downloader.Event{Phase: downloader.PhaseDownloading, BytesDownloaded: 10, BytesTotal: 100})
		return downloader.Outcome{}, fmt.Errorf("%w: 404 Not Found", downloader.ErrHttpStatus)
	}
	return downloader.Outcome{Reference: "done.mp4", Title: "done"}, nil
})

type fakeCapturer struct {
	snap models.PageSnapshot
	err  error
}

func (f fakeCapturer) Capture(ctx context.Context, pageURL string) (models.PageSnapshot, error) {
	if f.err != nil {
		return models.PageSnapshot{}, f.err
	}
	snap := f.snap
	snap.URL = pageURL
	return snap, nil
}

type fixture struct {
	srv   *httptest.Server
	queue *queue.Manager
	fs    afero.Fs
	index bleve.Index
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := queue.New(queue.Options{MaxConcurrent: 1, Fetcher: blockingFetcher})
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	require.NoError(t, err)

	capturer := fakeCapturer{snap: models.PageSnapshot{
		Viewport: models.Viewport{Width: 1366, Height: 900},
		HTML:     `<html><body><video data-mh-rect="0,0,640,360" src="/media/clip.mp4"></video></body></html>`,
	}}
	s := New(Options{
		Queue:    m,
		Store:    storage.NewStore(fs, "/media"),
		Capturer: capturer,
		Index:    idx,
	})
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		srv.Close()
		_ = m.Close()
		_ = idx.Close()
	})
	return &fixture{srv: srv, queue: m, fs: fs, index: idx}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v), string(data))
}

func TestSubmitAndQueue(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/downloads", `{"url":"https://example.com/block/a.mp4"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	var first jobResp
	decode(t, body, &first)
	assert.NotEmpty(t, first.JobID)
	assert.Equal(t, models.StatusStarting, first.Status)
	assert.Nil(t, first.QueuePosition)

	resp, body = f.do(t, http.MethodPost, "/api/downloads", `{"url":"https://example.com/block/b.mp4","format":"AUDIO"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	var second jobResp
	decode(t, body, &second)
	assert.Equal(t, models.StatusQueued, second.Status)
	require.NotNil(t, second.QueuePosition)
	assert.Equal(t, 0, *second.QueuePosition)

	resp, body = f.do(t, http.MethodGet, "/api/downloads", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap models.QueueSnapshot
	decode(t, body, &snap)
	assert.Equal(t, 1, snap.ActiveCount)
	assert.Equal(t, 1, snap.QueueCount)
	assert.Equal(t, 1, snap.MaxConcurrent)
	assert.Len(t, snap.Progress, 2)

	resp, body = f.do(t, http.MethodGet, "/api/downloads/"+second.JobID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var job models.DownloadJob
	decode(t, body, &job)
	assert.Equal(t, models.FormatAudio, job.Format)
}

func TestSubmitRejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"malformed json", `{"url":`, http.StatusBadRequest, ""},
		{"missing url", `{}`, http.StatusBadRequest, "url"},
		{"not a url", `{"url":"not a url"}`, http.StatusBadRequest, "url"},
		{"ftp scheme", `{"url":"ftp://example.com/a.mp4"}`, http.StatusBadRequest, "url"},
		{"unknown format", `{"url":"https://example.com/a.mp4","format":"gif"}`, http.StatusBadRequest, "format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/api/downloads", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			var e errorResp
			decode(t, body, &e)
			assert.NotEmpty(t, e.Error)
			if tt.field != "" {
				assert.Contains(t, e.Fields, tt.field)
			}
		})
	}

	assert.Empty(t, f.queue.GetSnapshot().Progress)
}

func TestDuplicateAndCancel(t *testing.T) {
	f := newFixture(t)

	active, err := f.queue.Submit("https://example.com/block/a.mp4", models.FormatVideo)
	require.NoError(t, err)
	queued, err := f.queue.Submit("https://example.com/block/b.mp4", models.FormatVideo)
	require.NoError(t, err)

	resp, body := f.do(t, http.MethodPost, "/api/downloads", `{"url":"https://example.com/block/b.mp4","format":"video"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var e errorResp
	decode(t, body, &e)
	assert.Equal(t, queued.ID, e.ExistingID)

	resp, _ = f.do(t, http.MethodDelete, "/api/downloads/"+active.ID, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/downloads/"+queued.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/downloads/"+queued.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/downloads/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIncompleteLifecycle(t *testing.T) {
	f := newFixture(t)

	job, err := f.queue.Submit("https://example.com/fail/a.mp4", models.FormatVideo)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := f.queue.Incomplete(job.ID)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	resp, body := f.do(t, http.MethodGet, "/api/downloads", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap models.QueueSnapshot
	decode(t, body, &snap)
	require.Contains(t, snap.Incomplete, job.ID)
	assert.Equal(t, models.FailureHTTPStatus, snap.Incomplete[job.ID].Failure.Kind)

	resp, body = f.do(t, http.MethodPost, "/api/incomplete/"+job.ID+"/resume", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	var resumed jobResp
	decode(t, body, &resumed)
	assert.NotEqual(t, job.ID, resumed.JobID)

	require.Eventually(t, func() bool {
		_, err := f.queue.Incomplete(resumed.JobID)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	resp, _ = f.do(t, http.MethodPost, "/api/incomplete/"+job.ID+"/resume", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/incomplete/"+resumed.JobID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = f.do(t, http.MethodDelete, "/api/incomplete/"+resumed.JobID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClearCompleted(t *testing.T) {
	f := newFixture(t)

	_, err := f.queue.Submit("https://example.com/ok/a.mp4", models.FormatVideo)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		for _, job := range f.queue.GetSnapshot().Progress {
			if job.Status == models.StatusCompleted {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	resp, body := f.do(t, http.MethodPost, "/api/downloads/clear", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"removed":1}`, string(body))
	assert.Empty(t, f.queue.GetSnapshot().Progress)
}

func TestGetFile(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "/media/clip.mp4", []byte("video bytes"), 0o644))

	resp, body := f.do(t, http.MethodGet, "/api/files/clip.mp4", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video bytes", string(body))

	resp, _ = f.do(t, http.MethodGet, "/api/files/missing.mp4", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetFileHidesInternalFiles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "/media/.partial/x.part", []byte("partial"), 0o600))
	require.NoError(t, afero.WriteFile(f.fs, "/media/.harvester_db/000000000.data", []byte("db"), 0o600))

	for _, p := range []string{"/api/files/.partial/x.part", "/api/files/.harvester_db/000000000.data"} {
		resp, _ := f.do(t, http.MethodGet, p, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, p)
	}
}

func TestExtract(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/extract", `{"url":"https://example.com/page"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out extractResp
	decode(t, body, &out)
	assert.Equal(t, "https://example.com/page", out.URL)
	assert.Equal(t, []models.Candidate{{URL: "https://example.com/media/clip.mp4", Kind: models.KindDirectVideo}}, out.Candidates)

	resp, _ = f.do(t, http.MethodPost, "/api/extract", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExtractCaptureFailure(t *testing.T) {
	m, err := queue.New(queue.Options{MaxConcurrent: 1, Fetcher: blockingFetcher})
	require.NoError(t, err)
	defer m.Close()

	s := New(Options{Queue: m, Capturer: fakeCapturer{err: fmt.Errorf("browser gone")}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`{"url":"https://example.com/"}`))
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/search?q=clip", nil)
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, index.IndexItem(f.index, index.Item{
		ID:          "j1",
		Type:        "artifact",
		Title:       "Sunset Timelapse",
		SourceURL:   "https://example.com/sunset.mp4",
		Format:      "video",
		Reference:   "sunset.mp4",
		CompletedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	resp, body := f.do(t, http.MethodGet, "/api/search?q=sunset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out searchResp
	decode(t, body, &out)
	assert.Equal(t, uint64(1), out.Total)
	require.Len(t, out.Hits, 1)
	assert.Equal(t, "j1", out.Hits[0].ID)

	resp, _ = f.do(t, http.MethodGet, "/api/search", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/api/search?q=sunset&size=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/api/downloads", "")
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))
}
