package extractor

import (
	"net/url"
	"strings"

	"go-media-harvester/internal/models"

	"github.com/PuerkitoBio/goquery"
)

// Rule is one classification step. Rules run in table order over the visible elements
// matching Selector; the first rule to emit a URL decides its kind.
type Rule struct {
	Name string
	// Applies limits the rule to some pages. Nil means every page.
	Applies  func(page *url.URL) bool
	Selector string
	// Source reads the raw reference off an element.
	Source func(s *goquery.Selection) (string, bool)
	// Normalize turns the raw reference into the dedup key and candidate URL.
	Normalize func(raw string, page *url.URL) (string, bool)
	// Classify decides the kind for a normalized URL, or rejects it.
	Classify  func(u *url.URL) (models.CandidateKind, bool)
	Thumbnail func(s *goquery.Selection, page *url.URL) string
}

const cardContainers = ".VideoCard, .video_item, .VideoThumb, [data-video-id]"

var lazyImageAttrs = []string{"src", "data-src", "data-lazy", "data-lazy-src"}

// DefaultRules returns the built-in rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    "compound-id-card",
			Applies: isCompoundHost,
			Selector: strings.Join([]string{
				`a[href*="/video-"]`,
				`a[href*="/video@"]`,
				`a[href*="video"][href*="_"]`,
				`[data-video-id]`,
				`.VideoCard a`,
				`.video_item a`,
				`.VideoThumb a`,
			}, ", "),
			Source:    compoundSource,
			Normalize: canonicalCompoundURL,
			Classify:  always(models.KindCompoundIDPlatform),
			Thumbnail: cardThumbnail,
		},
		{
			Name:      "video-element",
			Selector:  "video",
			Source:    videoSource,
			Normalize: normalizeURL,
			Classify: func(u *url.URL) (models.CandidateKind, bool) {
				if isEphemeralCDN(u) || !hasExt(u, videoElementExts) {
					return "", false
				}
				return models.KindDirectVideo, true
			},
			Thumbnail: func(s *goquery.Selection, page *url.URL) string {
				return resolved(s.AttrOr("poster", ""), page)
			},
		},
		{
			Name:      "iframe-embed",
			Selector:  "iframe",
			Source:    firstAttr("src", "data-src"),
			Normalize: normalizeLink,
			Classify:  providerKind,
		},
		{
			Name:      "anchor",
			Selector:  "a[href]",
			Source:    firstAttr("href"),
			Normalize: normalizeLink,
			Classify: func(u *url.URL) (models.CandidateKind, bool) {
				if kind, ok := providerKind(u); ok {
					return kind, true
				}
				if hasExt(u, anchorMediaExts) {
					return models.KindDirectVideo, true
				}
				return "", false
			},
		},
		{
			Name:      "data-attribute",
			Selector:  "[data-video], [data-video-url], [data-video-src]",
			Source:    firstAttr("data-video", "data-video-url", "data-video-src"),
			Normalize: normalizeURL,
			Classify:  always(models.KindDirectVideo),
		},
	}
}

func always(kind models.CandidateKind) func(*url.URL) (models.CandidateKind, bool) {
	return func(*url.URL) (models.CandidateKind, bool) { return kind, true }
}

// firstAttr returns the first non-empty attribute among names that is not a blob reference.
func firstAttr(names ...string) func(*goquery.Selection) (string, bool) {
	return func(s *goquery.Selection) (string, bool) {
		for _, name := range names {
			if v := strings.TrimSpace(s.AttrOr(name, "")); v != "" {
				if isBlob(v) {
					continue
				}
				return v, true
			}
		}
		return "", false
	}
}

func compoundSource(s *goquery.Selection) (string, bool) {
	if href := s.AttrOr("href", ""); compoundIDPattern.MatchString(href) {
		return href, true
	}
	for _, name := range []string{"data-video-id", "data-video-raw-id"} {
		if id := strings.TrimSpace(s.AttrOr(name, "")); bareCompoundID.MatchString(id) {
			return "video" + id, true
		}
	}
	return "", false
}

func videoSource(s *goquery.Selection) (string, bool) {
	if v, ok := firstAttr("src", AttrCurrentSrc)(s); ok {
		return v, true
	}
	var src string
	s.Find("source[src]").EachWithBreak(func(_ int, source *goquery.Selection) bool {
		if v := strings.TrimSpace(source.AttrOr("src", "")); v != "" && !isBlob(v) {
			src = v
			return false
		}
		return true
	})
	if src != "" {
		return src, true
	}
	return firstAttr("data-src", "data-video-src")(s)
}

// cardThumbnail resolves a preview image: a nested img, then explicit preview
// attributes, then a CSS background on the element or its card.
func cardThumbnail(s *goquery.Selection, page *url.URL) string {
	card := s.Closest(cardContainers)

	for _, scope := range []*goquery.Selection{s, card} {
		if scope.Length() == 0 {
			continue
		}
		imgs := scope.Find("img")
		if goquery.NodeName(scope) == "img" {
			imgs = scope
		}
		var found string
		imgs.EachWithBreak(func(_ int, img *goquery.Selection) bool {
			for _, attr := range lazyImageAttrs {
				if u := resolved(img.AttrOr(attr, ""), page); u != "" {
					found = u
					return false
				}
			}
			return true
		})
		if found != "" {
			return found
		}
	}

	for _, attr := range []string{"data-thumb", "data-preview", "data-poster"} {
		if u := resolved(s.AttrOr(attr, ""), page); u != "" {
			return u
		}
	}

	for _, scope := range []*goquery.Selection{s, card} {
		if scope.Length() == 0 {
			continue
		}
		if u := resolved(cssURL(scope.AttrOr(AttrBackground, "")), page); u != "" {
			return u
		}
	}
	return ""
}

// resolved normalizes a thumbnail reference, ignoring inline data placeholders.
func resolved(raw string, page *url.URL) string {
	if strings.HasPrefix(strings.TrimSpace(raw), "data:") {
		return ""
	}
	u, ok := normalizeURL(raw, page)
	if !ok {
		return ""
	}
	return u
}
