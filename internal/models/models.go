package models

import (
	"time"
)

type (
	Config struct {
		// Paths
		SavePath     string `toml:"SavePath"`
		DatabasePath string `toml:"DatabasePath"`
		IndexPath    string `toml:"IndexPath"`  // Bleve index of completed artifacts
		ReportPath   string `toml:"ReportPath"` // Directory of captured page snapshots

		// Queue Behavior
		MaxConcurrent int `toml:"MaxConcurrent"`

		// Fetch Behavior
		VideoFormat        string `toml:"VideoFormat"` // yt-dlp format selector for media downloads
		AudioCodec         string `toml:"AudioCodec"`
		FetchTimeoutSec    int    `toml:"FetchTimeoutSec"` // Response header timeout for direct fetches
		StallTimeoutSec    int    `toml:"StallTimeoutSec"` // Abort a direct fetch after this long without bytes
		ProgressIntervalMs int    `toml:"ProgressIntervalMs"`

		// Rendering
		ViewportWidth    int    `toml:"ViewportWidth"`
		ViewportHeight   int    `toml:"ViewportHeight"`
		RenderTimeoutSec int    `toml:"RenderTimeoutSec"`
		BrowserURL       string `toml:"BrowserURL"` // DevTools endpoint of an already running browser

		// Server
		ListenAddr string `toml:"ListenAddr"`

		// Other
		LogHttpRequests bool `toml:"LogHttpRequests"`
	}

	// Viewport is the visible area of a rendered page, in CSS pixels.
	Viewport struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}

	// PageSnapshot is one rendered page as captured by the renderer. HTML carries the
	// serialized DOM with layout annotations (see the extractor package).
	PageSnapshot struct {
		URL        string    `json:"url"`
		Viewport   Viewport  `json:"viewport"`
		HTML       string    `json:"html"`
		CapturedAt time.Time `json:"capturedAt"`
	}

	// Candidate is a discovered, classified media reference.
	Candidate struct {
		URL       string        `json:"url"`
		Kind      CandidateKind `json:"kind"`
		Thumbnail string        `json:"thumbnail,omitempty"`
	}

	// Progress of one transfer. BytesTotal, Rate and ETA are zero while unknown.
	Progress struct {
		Percent         float64       `json:"percent"`
		BytesDownloaded int64         `json:"bytesDownloaded"`
		BytesTotal      int64         `json:"bytesTotal,omitempty"`
		Rate            float64       `json:"rate,omitempty"` // bytes per second
		ETA             time.Duration `json:"eta,omitempty"`
	}

	// JobResult is populated only in terminal states.
	JobResult struct {
		Reference string       `json:"reference,omitempty"` // Retrieval reference, relative to the artifact store
		Title     string       `json:"title,omitempty"`
		Checksum  string       `json:"checksum,omitempty"` // BLAKE3 of the artifact
		Failure   *FailureInfo `json:"failure,omitempty"`
	}

	FailureInfo struct {
		Kind    FailureKind `json:"kind"`
		Message string      `json:"message"`
	}

	// ResumableState is the checkpoint needed to continue a partial fetch.
	ResumableState struct {
		SourceURL       string `json:"sourceUrl"`
		Format          Format `json:"format"`
		PartialPath     string `json:"partialPath,omitempty"`
		BytesDownloaded int64  `json:"bytesDownloaded"`
		BytesTotal      int64  `json:"bytesTotal,omitempty"`
		Title           string `json:"title,omitempty"`
	}

	DownloadJob struct {
		ID             string          `json:"id"`
		SourceURL      string          `json:"sourceUrl"`
		Format         Format          `json:"format"`
		Status         JobStatus       `json:"status"`
		QueuePosition  int             `json:"queuePosition"` // Meaningful only while queued
		Progress       Progress        `json:"progress"`
		Title          string          `json:"title,omitempty"`
		Result         *JobResult      `json:"result,omitempty"`
		ResumableState *ResumableState `json:"resumableState,omitempty"`
		ResumedFrom    string          `json:"resumedFrom,omitempty"` // Id of the incomplete job this one replaces
		CreatedAt      time.Time       `json:"createdAt"`
		StartedAt      time.Time       `json:"startedAt,omitempty"`
		FinishedAt     time.Time       `json:"finishedAt,omitempty"`
	}

	// IncompleteEntry is what the Incomplete Registry persists per job.
	IncompleteEntry struct {
		ID             string         `json:"id"`
		SourceURL      string         `json:"sourceUrl"`
		Format         Format         `json:"format"`
		Title          string         `json:"title,omitempty"`
		Failure        FailureInfo    `json:"failure"`
		Progress       Progress       `json:"progress"`
		ResumableState ResumableState `json:"resumableState"`
		FailedAt       time.Time      `json:"failedAt"`
	}

	// QueueSnapshot is a point-in-time copy of the whole queue, safe to hand to readers.
	QueueSnapshot struct {
		ActiveCount   int                        `json:"activeCount"`
		MaxConcurrent int                        `json:"maxConcurrent"`
		QueueCount    int                        `json:"queueCount"`
		Progress      map[string]DownloadJob     `json:"progress"`
		Incomplete    map[string]IncompleteEntry `json:"incomplete"`
	}
)

// Format is the requested output of a download.
type Format string

const (
	FormatVideo Format = "video"
	FormatAudio Format = "audio"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == FormatVideo || f == FormatAudio
}

// CandidateKind classifies a discovered media reference.
type CandidateKind string

const (
	KindDirectVideo        CandidateKind = "direct_video"
	KindYouTube            CandidateKind = "platform_embed_youtube"
	KindVimeo              CandidateKind = "platform_embed_vimeo"
	KindOtherEmbed         CandidateKind = "platform_embed_other"
	KindCompoundIDPlatform CandidateKind = "compound_id_platform"
)

// FailureKind classifies why a transfer did not complete.
type FailureKind string

const (
	FailureNetwork     FailureKind = "network"
	FailureHTTPStatus  FailureKind = "http_status"
	FailureUnsupported FailureKind = "unsupported"
	FailureFileSystem  FailureKind = "filesystem"
	FailureInterrupted FailureKind = "interrupted"
	FailureUnknown     FailureKind = "unknown"
)
