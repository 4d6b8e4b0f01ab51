// Package extractor discovers media candidates on a rendered page snapshot. It never
// touches the network: layout facts come from annotations written at capture time.
package extractor

import (
	"net/url"
	"strings"

	"go-media-harvester/internal/models"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

// Extractor applies an ordered rule table to page snapshots. It holds no state between
// calls and is safe for concurrent use.
type Extractor struct {
	rules []Rule
}

// New returns an extractor using rules, or DefaultRules when none are given.
func New(rules ...Rule) *Extractor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Extractor{rules: rules}
}

// Extract runs the default rule table over snap.
func Extract(snap models.PageSnapshot) []models.Candidate {
	return New().Extract(snap)
}

// Extract returns the deduplicated candidates of snap in rule order, then document
// order. Malformed input yields fewer candidates, never an error.
func (e *Extractor) Extract(snap models.PageSnapshot) []models.Candidate {
	candidates := make([]models.Candidate, 0)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		log.WithError(err).WithField("page", snap.URL).Debug("Snapshot could not be parsed")
		return candidates
	}

	page, err := url.Parse(snap.URL)
	if err != nil {
		page = nil
	}
	vp := snap.Viewport
	if vp.Width <= 0 || vp.Height <= 0 {
		vp = DefaultViewport
	}

	seen := make(map[string]struct{})
	for _, rule := range e.rules {
		if rule.Applies != nil && !rule.Applies(page) {
			continue
		}
		found := 0
		doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
			c, ok := apply(rule, s, page, vp)
			if !ok {
				return
			}
			if _, dup := seen[c.URL]; dup {
				return
			}
			seen[c.URL] = struct{}{}
			candidates = append(candidates, c)
			found++
		})
		if found > 0 {
			log.WithFields(log.Fields{"page": snap.URL, "rule": rule.Name, "count": found}).Debug("Rule matched")
		}
	}
	return candidates
}

func apply(rule Rule, s *goquery.Selection, page *url.URL, vp models.Viewport) (models.Candidate, bool) {
	if !isVisible(s, vp) {
		return models.Candidate{}, false
	}
	raw, ok := rule.Source(s)
	if !ok {
		return models.Candidate{}, false
	}
	normalized, ok := rule.Normalize(raw, page)
	if !ok {
		return models.Candidate{}, false
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return models.Candidate{}, false
	}
	kind, ok := rule.Classify(u)
	if !ok {
		return models.Candidate{}, false
	}
	c := models.Candidate{URL: normalized, Kind: kind}
	if rule.Thumbnail != nil {
		c.Thumbnail = rule.Thumbnail(s, page)
	}
	return c, true
}
