package downloader

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go-media-harvester/internal/models"
	"go-media-harvester/internal/storage"

	"github.com/lrstanley/go-ytdlp"
	log "github.com/sirupsen/logrus"
)

// YTDLPFetcher delegates platform pages and audio extraction to yt-dlp. Partial data
// lives in a per-source directory under the store's partial area so --continue can
// pick it up again.
type YTDLPFetcher struct {
	store       *storage.Store
	videoFormat string
	audioCodec  string
	interval    time.Duration
}

func NewYTDLPFetcher(store *storage.Store, cfg models.Config) *YTDLPFetcher {
	interval := time.Duration(cfg.ProgressIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &YTDLPFetcher{
		store:       store,
		videoFormat: cfg.VideoFormat,
		audioCodec:  cfg.AudioCodec,
		interval:    interval,
	}
}

// command builds the yt-dlp invocation for one request writing into workDir.
func (f *YTDLPFetcher) command(req Request, workDir string) *ytdlp.Command {
	dl := ytdlp.New().
		NoPlaylist().
		Continue().
		RestrictFilenames().
		Output(filepath.Join(f.store.Abs(workDir), "%(title).150B [%(id)s].%(ext)s"))

	if req.Format == models.FormatAudio {
		dl.ExtractAudio().AudioFormat(f.audioCodec)
	} else if f.videoFormat != "" {
		dl.Format(f.videoFormat)
	}
	return dl
}

func (f *YTDLPFetcher) Fetch(ctx context.Context, req Request, emit func(Event)) (Outcome, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	workDir := resumeRef(req)
	if workDir == "" {
		workDir = path.Join(storage.PartialDir, partialKey(req.SourceURL, req.Format))
	}

	title := ""
	if req.Resume != nil {
		title = req.Resume.Title
	}

	dl := f.command(req, workDir)
	dl.ProgressFunc(f.interval, func(update ytdlp.ProgressUpdate) {
		if update.Info != nil && update.Info.Title != nil && *update.Info.Title != "" {
			title = *update.Info.Title
		}
		ev := Event{
			Phase:           PhaseDownloading,
			BytesDownloaded: int64(update.DownloadedBytes),
			BytesTotal:      int64(update.TotalBytes),
			PartialPath:     workDir,
			Title:           title,
		}
		if update.Status == ytdlp.ProgressStatusPostProcessing || update.Status == ytdlp.ProgressStatusFinished {
			ev.Phase = PhaseProcessing
		}
		if !update.Started.IsZero() {
			ev.Rate = rate(ev.BytesDownloaded, update.Started)
		}
		if d := update.ETA(); d > 0 {
			ev.ETA = d
		}
		emit(ev)
	})

	log.WithFields(log.Fields{"url": req.SourceURL, "format": req.Format}).Info("Starting yt-dlp")
	result, err := dl.Run(ctx, req.SourceURL)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, fmt.Errorf("yt-dlp for %s aborted: %w", req.SourceURL, context.Cause(ctx))
		}
		return Outcome{}, classifyToolError(req.SourceURL, err)
	}

	produced := ""
	if infos, err := result.GetExtractedInfo(); err == nil {
		for _, info := range infos {
			if info.Title != nil && *info.Title != "" {
				title = *info.Title
			}
			if info.Filename != nil && *info.Filename != "" {
				produced = *info.Filename
			}
		}
	}
	if produced == "" {
		return Outcome{}, fmt.Errorf("%w: yt-dlp reported no output file for %s", ErrExternalTool, req.SourceURL)
	}
	// Post-processors may have changed the extension of the reported file.
	if req.Format == models.FormatAudio && f.audioCodec != "" {
		produced = strings.TrimSuffix(produced, filepath.Ext(produced)) + "." + f.audioCodec
	}

	producedRef, err := f.store.Rel(produced)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrFileSystem, err)
	}
	finalRef, err := f.store.Finalize(producedRef, path.Base(producedRef))
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrFileSystem, err)
	}
	if err := f.store.Remove(workDir); err != nil {
		log.WithError(err).Debugf("Cleaning yt-dlp work directory %s", workDir)
	}
	if title == "" {
		title = strings.TrimSuffix(path.Base(finalRef), path.Ext(finalRef))
	}
	checksum, err := f.store.Checksum(finalRef)
	if err != nil {
		log.WithError(err).Warnf("Could not checksum %s", finalRef)
	}
	return Outcome{Reference: finalRef, Title: title, Checksum: checksum}, nil
}

// classifyToolError maps yt-dlp failure text onto the fetch sentinels.
func classifyToolError(sourceURL string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Unsupported URL"), strings.Contains(msg, "is not a valid URL"):
		return fmt.Errorf("%w: %s: %v", ErrUnsupported, sourceURL, err)
	case strings.Contains(msg, "HTTP Error"):
		return fmt.Errorf("%w: %s: %v", ErrHttpStatus, sourceURL, err)
	case strings.Contains(msg, "Unable to download"), strings.Contains(msg, "timed out"), strings.Contains(msg, "Connection"):
		return fmt.Errorf("%w: %s: %v", ErrHttpRequest, sourceURL, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrExternalTool, sourceURL, err)
}
