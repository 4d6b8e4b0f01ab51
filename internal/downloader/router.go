package downloader

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"go-media-harvester/internal/models"

	"github.com/samber/lo"
)

// Container extensions the HTTP fetcher can store as-is.
var directExtensions = []string{".mp4", ".webm", ".mov", ".avi", ".mkv", ".m4v", ".mp3", ".m4a"}

// Router sends directly addressable video files to Direct and everything else, audio
// extraction included, to Platform.
type Router struct {
	Direct   Fetcher
	Platform Fetcher
}

// IsDirect reports whether a request can be served by a plain HTTP download.
func IsDirect(req Request) bool {
	if req.Format != models.FormatVideo {
		return false
	}
	u, err := url.Parse(req.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return lo.Contains(directExtensions, strings.ToLower(path.Ext(u.Path)))
}

func (r *Router) Fetch(ctx context.Context, req Request, emit func(Event)) (Outcome, error) {
	target := r.Platform
	if IsDirect(req) && r.Direct != nil {
		target = r.Direct
	}
	if target == nil {
		return Outcome{}, fmt.Errorf("%w: no fetcher for %s", ErrUnsupported, req.SourceURL)
	}
	return target.Fetch(ctx, req, emit)
}
