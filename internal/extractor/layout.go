package extractor

import (
	"strconv"
	"strings"

	"go-media-harvester/internal/models"

	"github.com/PuerkitoBio/goquery"
)

// Layout annotations written onto every element by the capture step.
const (
	AttrRect       = "data-mh-rect" // "left,top,width,height" in CSS pixels
	AttrDisplay    = "data-mh-display"
	AttrVisibility = "data-mh-visibility"
	AttrOpacity    = "data-mh-opacity"
	AttrBackground = "data-mh-bg"
	AttrCurrentSrc = "data-mh-current-src"
)

// DefaultViewport is used when a snapshot does not record its viewport.
var DefaultViewport = models.Viewport{Width: 1366, Height: 900}

type rect struct {
	left, top, width, height float64
}

func parseRect(s string) (rect, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return rect{}, false
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return rect{}, false
		}
		v[i] = f
	}
	return rect{left: v[0], top: v[1], width: v[2], height: v[3]}, true
}

func (r rect) intersects(vp models.Viewport) bool {
	bottom := r.top + r.height
	right := r.left + r.width
	return bottom > 0 && right > 0 && r.top < float64(vp.Height) && r.left < float64(vp.Width)
}

// isVisible reports whether an element was rendered, not styled away, and at least
// partially inside the viewport when the page was captured. Elements without a layout
// annotation had no box and are never visible.
func isVisible(s *goquery.Selection, vp models.Viewport) bool {
	if _, hidden := s.Attr("hidden"); hidden {
		return false
	}
	raw, ok := s.Attr(AttrRect)
	if !ok {
		return false
	}
	r, ok := parseRect(raw)
	if !ok {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(s.AttrOr(AttrDisplay, "")), "none") {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(s.AttrOr(AttrVisibility, "")), "hidden") {
		return false
	}
	if op, ok := s.Attr(AttrOpacity); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(op), 64); err == nil && f == 0 {
			return false
		}
	}
	if r.width == 0 && r.height == 0 {
		return false
	}
	return r.intersects(vp)
}

// cssURL pulls the first url(...) out of a computed background-image value.
func cssURL(value string) string {
	i := strings.Index(value, "url(")
	if i < 0 {
		return ""
	}
	rest := value[i+len("url("):]
	j := strings.Index(rest, ")")
	if j < 0 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(rest[:j]), `"'`)
}
