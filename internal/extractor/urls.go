package extractor

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"go-media-harvester/internal/models"

	"github.com/samber/lo"
)

var (
	// compoundIDPattern finds the owner/item pair in a compound-id platform path.
	compoundIDPattern = regexp.MustCompile(`video(-?\d+_\d+)`)
	bareCompoundID    = regexp.MustCompile(`^-?\d+_\d+$`)

	compoundHosts = []string{"vk.com", "vkvideo.ru"}

	// Hosts serving time-limited signed media that cannot be fetched later.
	ephemeralCDNHosts = []string{"okcdn", "vkuservideo"}

	videoElementExts = []string{".mp4", ".webm", ".mov"}
	anchorMediaExts  = []string{".mp4", ".webm", ".avi", ".mov", ".m3u8"}
)

const compoundCanonicalPrefix = "https://vk.com/video"

// normalizeURL resolves raw against the page, lowercases scheme and host and drops the
// fragment. Only http(s) results are accepted.
func normalizeURL(raw string, page *url.URL) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || isBlob(raw) {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if page != nil {
		u = page.ResolveReference(u)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Host = strings.ToLower(u.Host)
	if u.Host == "" {
		return "", false
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), true
}

func isBlob(raw string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "blob:")
}

// canonicalCompoundURL rewrites any reference carrying an owner/item pair into the
// platform's canonical video URL.
func canonicalCompoundURL(raw string, _ *url.URL) (string, bool) {
	if m := compoundIDPattern.FindStringSubmatch(raw); m != nil {
		return compoundCanonicalPrefix + m[1], true
	}
	return "", false
}

func hostMatches(host string, domains []string) bool {
	host = strings.ToLower(host)
	return lo.SomeBy(domains, func(d string) bool {
		return host == d || strings.HasSuffix(host, "."+d)
	})
}

func isCompoundHost(u *url.URL) bool {
	return u != nil && hostMatches(u.Hostname(), compoundHosts)
}

func isEphemeralCDN(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return lo.SomeBy(ephemeralCDNHosts, func(p string) bool {
		return strings.Contains(host, p)
	})
}

func hasExt(u *url.URL, exts []string) bool {
	return lo.Contains(exts, strings.ToLower(path.Ext(u.Path)))
}

// providerKind classifies a URL by the embedding provider hostname.
func providerKind(u *url.URL) (models.CandidateKind, bool) {
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "youtube") || strings.Contains(host, "youtu.be"):
		return models.KindYouTube, true
	case strings.Contains(host, "vimeo"):
		return models.KindVimeo, true
	case strings.Contains(host, "vkvideo"):
		return models.KindCompoundIDPlatform, true
	case strings.Contains(host, "vk.com") && strings.Contains(strings.ToLower(u.Path), "video"):
		return models.KindCompoundIDPlatform, true
	case strings.Contains(host, "dailymotion") || host == "dai.ly":
		return models.KindOtherEmbed, true
	}
	return "", false
}

// normalizeLink is normalizeURL plus canonicalization of compound-id platform links, so
// the same video reached through a card and a plain link dedups to one key.
func normalizeLink(raw string, page *url.URL) (string, bool) {
	normalized, ok := normalizeURL(raw, page)
	if !ok {
		return "", false
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return "", false
	}
	if isCompoundHost(u) {
		if canonical, ok := canonicalCompoundURL(u.Path, nil); ok {
			return canonical, true
		}
	}
	return normalized, true
}
