// Package render captures rendered pages with a headless Chromium and annotates every
// element with the layout facts the extractor needs.
package render

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-media-harvester/internal/models"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	log "github.com/sirupsen/logrus"
)

var (
	ErrBrowser = errors.New("browser unavailable")
	ErrCapture = errors.New("page capture failed")
)

// annotateScript writes data-mh-* attributes on every element and returns the
// viewport size as "width,height".
const annotateScript = `() => {
	document.querySelectorAll('*').forEach(el => {
		const r = el.getBoundingClientRect();
		const cs = getComputedStyle(el);
		el.setAttribute('data-mh-rect', [r.left, r.top, r.width, r.height].join(','));
		el.setAttribute('data-mh-display', cs.display);
		el.setAttribute('data-mh-visibility', cs.visibility);
		el.setAttribute('data-mh-opacity', cs.opacity);
		if (cs.backgroundImage && cs.backgroundImage !== 'none') {
			el.setAttribute('data-mh-bg', cs.backgroundImage);
		}
		if (el.tagName === 'VIDEO' && el.currentSrc) {
			el.setAttribute('data-mh-current-src', el.currentSrc);
		}
	});
	return window.innerWidth + ',' + window.innerHeight;
}`

// Capturer renders pages one at a time.
type Capturer struct {
	controlURL string
	viewport   models.Viewport
	timeout    time.Duration
}

// NewCapturer builds a capturer from config. An empty BrowserURL launches a local
// headless browser per capture.
func NewCapturer(cfg models.Config) *Capturer {
	return &Capturer{
		controlURL: cfg.BrowserURL,
		viewport:   models.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
		timeout:    time.Duration(cfg.RenderTimeoutSec) * time.Second,
	}
}

// Capture loads pageURL and returns its annotated DOM.
func (c *Capturer) Capture(ctx context.Context, pageURL string) (models.PageSnapshot, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	browser, cleanup, err := c.connect(ctx)
	if err != nil {
		return models.PageSnapshot{}, err
	}
	defer cleanup()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return models.PageSnapshot{}, fmt.Errorf("%w: opening tab: %v", ErrCapture, err)
	}
	defer page.Close()

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             c.viewport.Width,
		Height:            c.viewport.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return models.PageSnapshot{}, fmt.Errorf("%w: setting viewport: %v", ErrCapture, err)
	}

	log.WithField("url", pageURL).Debug("Navigating")
	if err := page.Navigate(pageURL); err != nil {
		return models.PageSnapshot{}, fmt.Errorf("%w: navigating to %s: %v", ErrCapture, pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return models.PageSnapshot{}, fmt.Errorf("%w: waiting for %s: %v", ErrCapture, pageURL, err)
	}

	res, err := page.Eval(annotateScript)
	if err != nil {
		return models.PageSnapshot{}, fmt.Errorf("%w: annotating %s: %v", ErrCapture, pageURL, err)
	}
	html, err := page.HTML()
	if err != nil {
		return models.PageSnapshot{}, fmt.Errorf("%w: reading DOM of %s: %v", ErrCapture, pageURL, err)
	}

	snap := models.PageSnapshot{
		URL:        pageURL,
		Viewport:   parseViewport(res.Value.Str(), c.viewport),
		HTML:       html,
		CapturedAt: time.Now().UTC(),
	}
	// Record where redirects ended up so relative links resolve correctly.
	if info, err := page.Info(); err == nil && info.URL != "" {
		snap.URL = info.URL
	}
	log.WithFields(log.Fields{"url": snap.URL, "bytes": len(html)}).Info("Page captured")
	return snap, nil
}

func (c *Capturer) connect(ctx context.Context) (*rod.Browser, func(), error) {
	controlURL := c.controlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Headless(true).Context(ctx)
		u, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: launching chromium: %v", ErrBrowser, err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
			l.Cleanup()
		}
		return nil, nil, fmt.Errorf("%w: connecting to %s: %v", ErrBrowser, controlURL, err)
	}

	cleanup := func() {
		if l == nil {
			// Shared browser: leave it running.
			return
		}
		if err := browser.Close(); err != nil {
			log.WithError(err).Debug("Closing browser")
		}
		l.Cleanup()
	}
	return browser, cleanup, nil
}

// parseViewport reads the "width,height" pair reported by the annotation script.
func parseViewport(s string, fallback models.Viewport) models.Viewport {
	w, h, ok := strings.Cut(s, ",")
	if !ok {
		return fallback
	}
	width, err1 := strconv.Atoi(strings.TrimSpace(w))
	height, err2 := strconv.Atoi(strings.TrimSpace(h))
	if err1 != nil || err2 != nil || width <= 0 || height <= 0 {
		return fallback
	}
	return models.Viewport{Width: width, Height: height}
}
