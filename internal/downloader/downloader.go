package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go-media-harvester/internal/helpers"
	"go-media-harvester/internal/models"
	"go-media-harvester/internal/storage"

	log "github.com/sirupsen/logrus"
)

// Extensions for content types the system mime table often lacks.
var mediaExtensions = map[string]string{
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"video/x-msvideo": ".avi",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
}

// HTTPFetcher downloads directly addressable media files over HTTP, resuming from the
// partial file of an earlier attempt with a Range request.
type HTTPFetcher struct {
	client   *http.Client
	store    *storage.Store
	stall    time.Duration
	interval time.Duration
}

// NewTransport returns the base transport for direct fetches. Only response headers
// are bounded; body reads are watched by the stall timer instead.
func NewTransport(cfg models.Config) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = time.Duration(cfg.FetchTimeoutSec) * time.Second
	t.DialContext = (&net.Dialer{
		Timeout:   time.Duration(cfg.FetchTimeoutSec) * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext
	return t
}

// NewHTTPFetcher creates a fetcher writing into store. A nil client gets NewTransport.
func NewHTTPFetcher(client *http.Client, store *storage.Store, cfg models.Config) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Transport: NewTransport(cfg)}
	}
	return &HTTPFetcher{
		client:   client,
		store:    store,
		stall:    time.Duration(cfg.StallTimeoutSec) * time.Second,
		interval: time.Duration(cfg.ProgressIntervalMs) * time.Millisecond,
	}
}

// Fetch downloads req.SourceURL into a partial file, renames it into the store on
// success and returns its reference with a BLAKE3 checksum. On failure the partial
// file is kept for a later resume.
func (d *HTTPFetcher) Fetch(ctx context.Context, req Request, emit func(Event)) (Outcome, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	ref := resumeRef(req)
	if ref == "" {
		ref = storage.PartialRef(partialKey(req.SourceURL, req.Format), nameFromURL(req.SourceURL))
	}

	file, offset, err := d.store.OpenPartial(ref)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrFileSystem, err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = file.Close()
		}
	}()
	// dropFresh removes a partial this attempt created before any byte arrived. No
	// event has named it yet, so nothing else could clean it up.
	dropFresh := func() {
		if offset == 0 {
			_ = file.Close()
			closed = true
			d.discard(ref)
		}
	}

	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.SourceURL, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: creating download request for %s: %w", ErrHttpRequest, req.SourceURL, err)
	}
	if offset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		log.WithFields(log.Fields{"url": req.SourceURL, "offset": offset}).Info("Resuming partial download")
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		dropFresh()
		return Outcome{}, transferError(reqCtx, req.SourceURL, err)
	}
	defer resp.Body.Close()

	var total int64 = -1
	alreadyComplete := false
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		total = totalFromContentRange(resp.Header.Get("Content-Range"))
		if total <= 0 && resp.ContentLength >= 0 {
			total = offset + resp.ContentLength
		}
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		if offset > 0 {
			log.WithField("url", req.SourceURL).Warn("Server ignored range request, restarting from zero")
			if err := file.Truncate(0); err != nil {
				return Outcome{}, fmt.Errorf("%w: truncating %s: %w", ErrFileSystem, ref, err)
			}
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				return Outcome{}, fmt.Errorf("%w: rewinding %s: %w", ErrFileSystem, ref, err)
			}
			offset = 0
		}
		total = resp.ContentLength
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		total = totalFromContentRange(resp.Header.Get("Content-Range"))
		if total != offset {
			return Outcome{}, fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, req.SourceURL)
		}
		alreadyComplete = true
	default:
		log.Errorf("Error downloading file: Received status code %d from %s", resp.StatusCode, req.SourceURL)
		dropFresh()
		return Outcome{}, fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, req.SourceURL)
	}
	if total < 0 {
		total = 0
	}

	name := filenameFromResponse(resp, req.SourceURL)
	title := strings.TrimSuffix(name, path.Ext(name))
	if req.Resume != nil && req.Resume.Title != "" {
		title = req.Resume.Title
	}

	emit(Event{Phase: PhaseDownloading, BytesDownloaded: offset, BytesTotal: total, PartialPath: ref, Title: title})

	received := offset
	if !alreadyComplete {
		log.Infof("Downloading %s to %s (Size: %s)...", req.SourceURL, ref, helpers.BytesToSize(uint64(total)))
		start := time.Now()
		var lastEmit time.Time

		var stall *time.Timer
		if d.stall > 0 {
			stall = time.AfterFunc(d.stall, func() { cancel(ErrStalled) })
			defer stall.Stop()
		}

		counter := &helpers.CounterWriter{
			Writer: file,
			OnWrite: func(written uint64) {
				if stall != nil {
					stall.Reset(d.stall)
				}
				if time.Since(lastEmit) < d.interval {
					return
				}
				lastEmit = time.Now()
				got := offset + int64(written)
				r := rate(int64(written), start)
				emit(Event{
					Phase:           PhaseDownloading,
					BytesDownloaded: got,
					BytesTotal:      total,
					Rate:            r,
					ETA:             eta(got, total, r),
					PartialPath:     ref,
					Title:           title,
				})
			},
		}

		_, err = io.Copy(counter, resp.Body)
		received = offset + int64(counter.Total)
		if err != nil {
			var pathErr *os.PathError
			if errors.As(err, &pathErr) && context.Cause(reqCtx) == nil {
				return Outcome{}, fmt.Errorf("%w: writing %s: %w", ErrFileSystem, ref, err)
			}
			if received == 0 {
				d.discard(ref)
			}
			return Outcome{}, transferError(reqCtx, req.SourceURL, err)
		}
		if total > 0 && received != total {
			return Outcome{}, fmt.Errorf("%w: got %d of %d bytes from %s", ErrShortBody, received, total, req.SourceURL)
		}
	}
	if total == 0 {
		total = received
	}
	emit(Event{Phase: PhaseDownloading, BytesDownloaded: received, BytesTotal: total, PartialPath: ref, Title: title})

	if err := file.Close(); err != nil {
		return Outcome{}, fmt.Errorf("%w: closing %s: %w", ErrFileSystem, ref, err)
	}
	closed = true

	finalRef, err := d.store.Finalize(ref, name)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrFileSystem, err)
	}
	checksum, err := d.store.Checksum(finalRef)
	if err != nil {
		log.WithError(err).Warnf("Could not checksum %s", finalRef)
	}

	log.Infof("Successfully downloaded %s", finalRef)
	return Outcome{Reference: finalRef, Title: title, Checksum: checksum}, nil
}

func (d *HTTPFetcher) discard(ref string) {
	if err := d.store.Remove(ref); err != nil {
		log.WithError(err).Debugf("Removing empty partial %s", ref)
	}
}

// transferError explains why a request or body read failed, preferring the reason the
// request context was cancelled.
func transferError(ctx context.Context, sourceURL string, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		if errors.Is(cause, ErrStalled) {
			return fmt.Errorf("%w: no data from %s", ErrStalled, sourceURL)
		}
		return fmt.Errorf("transfer of %s aborted: %w", sourceURL, cause)
	}
	return fmt.Errorf("%w: %s: %w", ErrHttpRequest, sourceURL, err)
}

// totalFromContentRange parses the complete length out of "bytes a-b/total" or
// "bytes */total". It returns -1 when unknown.
func totalFromContentRange(v string) int64 {
	i := strings.LastIndex(v, "/")
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v[i+1:]), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func nameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "download"
	}
	base := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	if base == "" || base == "." || base == "/" {
		return "download"
	}
	return base
}

// filenameFromResponse prefers the Content-Disposition filename, then the URL path,
// adding an extension from Content-Type when the name has none.
func filenameFromResponse(resp *http.Response, sourceURL string) string {
	name := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		_, params, err := mime.ParseMediaType(cd)
		if err == nil && params["filename"] != "" {
			name = path.Base(strings.ReplaceAll(params["filename"], "\\", "/"))
			log.Debugf("Received filename from Content-Disposition: %s", name)
		} else if !strings.HasPrefix(cd, "inline") {
			log.WithError(err).Warnf("Could not parse Content-Disposition header: %s", cd)
		}
	}
	if name == "" || name == "." || name == "/" {
		name = nameFromURL(sourceURL)
	}
	if path.Ext(name) == "" {
		if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
			if ext, ok := mediaExtensions[mediaType]; ok {
				name += ext
			} else if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
				name += exts[0]
			}
		}
	}
	return name
}
