package extractor

import (
	"testing"

	"go-media-harvester/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// box marks an element as laid out inside a 1366x900 viewport.
const box = `data-mh-rect="10,10,320,180"`

func snapshot(pageURL, body string) models.PageSnapshot {
	return models.PageSnapshot{
		URL:      pageURL,
		Viewport: models.Viewport{Width: 1366, Height: 900},
		HTML:     "<html><body " + box + ">" + body + "</body></html>",
	}
}

func urls(cs []models.Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.URL)
	}
	return out
}

func TestExtractDeterministicAndDeduplicated(t *testing.T) {
	snap := snapshot("https://example.com/page", `
		<video `+box+` src="/media/clip.mp4" poster="/media/clip.jpg"></video>
		<a `+box+` href="https://EXAMPLE.com/media/clip.mp4#t=10">same clip</a>
		<div `+box+` data-video="/media/clip.mp4"></div>
		<a `+box+` href="https://www.youtube.com/watch?v=abc">yt</a>
		<iframe `+box+` src="https://www.youtube.com/watch?v=abc"></iframe>
	`)

	first := Extract(snap)
	second := Extract(snap)
	assert.Equal(t, first, second)

	require.Len(t, first, 2)
	assert.Equal(t, models.Candidate{
		URL:       "https://example.com/media/clip.mp4",
		Kind:      models.KindDirectVideo,
		Thumbnail: "https://example.com/media/clip.jpg",
	}, first[0])
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", first[1].URL)
	assert.Equal(t, models.KindYouTube, first[1].Kind)
}

func TestExtractSkipsInvisibleElements(t *testing.T) {
	snap := snapshot("https://example.com/", `
		<a hidden `+box+` href="/a.mp4">hidden attr</a>
		<a `+box+` data-mh-display="none" href="/b.mp4">display none</a>
		<a `+box+` data-mh-visibility="hidden" href="/c.mp4">visibility hidden</a>
		<a `+box+` data-mh-opacity="0" href="/d.mp4">transparent</a>
		<a data-mh-rect="0,0,0,0" href="/e.mp4">zero size</a>
		<a data-mh-rect="10,2000,100,100" href="/f.mp4">below the fold</a>
		<a data-mh-rect="-500,10,100,100" href="/g.mp4">left of viewport</a>
		<a href="/h.mp4">never laid out</a>
		<a data-mh-rect="garbage" href="/i.mp4">bad rect</a>
		<a data-mh-rect="1300,850,200,200" href="/partial.mp4">partially visible</a>
		<a `+box+` data-mh-opacity="0.5" href="/faded.mp4">faded</a>
	`)

	assert.Equal(t, []string{
		"https://example.com/partial.mp4",
		"https://example.com/faded.mp4",
	}, urls(Extract(snap)))
}

func TestExtractUsesDefaultViewport(t *testing.T) {
	snap := snapshot("https://example.com/", `<a data-mh-rect="10,800,10,10" href="/a.mp4">a</a>`)
	snap.Viewport = models.Viewport{}
	assert.Len(t, Extract(snap), 1)
}

func TestVideoElementRule(t *testing.T) {
	snap := snapshot("https://example.com/", `
		<video `+box+` src="blob:https://example.com/123"></video>
		<video `+box+` src="https://vd1.okcdn.ru/file.mp4"></video>
		<video `+box+` src="https://cdn.example.com/live.m3u8"></video>
		<video `+box+`><source src="blob:x"><source src="/from-source.webm"></video>
		<video `+box+` src="blob:y" data-mh-current-src="/current.mov"></video>
		<video `+box+` data-src="/lazy.mp4"></video>
	`)

	cs := Extract(snap)
	assert.Equal(t, []string{
		"https://example.com/from-source.webm",
		"https://example.com/current.mov",
		"https://example.com/lazy.mp4",
	}, urls(cs))
	for _, c := range cs {
		assert.Equal(t, models.KindDirectVideo, c.Kind)
	}
}

func TestIframeRule(t *testing.T) {
	cases := []struct {
		src  string
		want models.CandidateKind
	}{
		{"https://www.youtube.com/embed/abc", models.KindYouTube},
		{"https://youtu.be/abc", models.KindYouTube},
		{"https://player.vimeo.com/video/42", models.KindVimeo},
		{"https://vk.com/video_ext.php?oid=-1&id=2", models.KindCompoundIDPlatform},
		{"https://www.dailymotion.com/embed/video/x7", models.KindOtherEmbed},
		{"https://ads.example.net/frame", ""},
	}

	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			cs := Extract(snapshot("https://example.com/", `<iframe `+box+` src="`+tc.src+`"></iframe>`))
			if tc.want == "" {
				assert.Empty(t, cs)
				return
			}
			require.Len(t, cs, 1)
			assert.Equal(t, tc.want, cs[0].Kind)
		})
	}
}

func TestIframeDataSrc(t *testing.T) {
	cs := Extract(snapshot("https://example.com/", `<iframe `+box+` data-src="https://player.vimeo.com/video/1"></iframe>`))
	require.Len(t, cs, 1)
	assert.Equal(t, models.KindVimeo, cs[0].Kind)
}

func TestAnchorRule(t *testing.T) {
	snap := snapshot("https://Example.COM/dir/page.html", `
		<a `+box+` href="movie.AVI">relative</a>
		<a `+box+` href="/stream/index.m3u8">manifest</a>
		<a `+box+` href="/doc.pdf">not media</a>
		<a `+box+` href="javascript:void(0)">script</a>
		<a `+box+` href="https://vimeo.com/42">vimeo</a>
		<a `+box+` href="https://vk.com/video-5_6?list=abc">vk link</a>
		<a `+box+` href="https://vk.com/id1">vk profile</a>
	`)

	cs := Extract(snap)
	require.Len(t, cs, 4)
	assert.Equal(t, models.Candidate{URL: "https://example.com/dir/movie.AVI", Kind: models.KindDirectVideo}, cs[0])
	assert.Equal(t, models.Candidate{URL: "https://example.com/stream/index.m3u8", Kind: models.KindDirectVideo}, cs[1])
	assert.Equal(t, models.Candidate{URL: "https://vimeo.com/42", Kind: models.KindVimeo}, cs[2])
	assert.Equal(t, models.Candidate{URL: "https://vk.com/video-5_6", Kind: models.KindCompoundIDPlatform}, cs[3])
}

func TestDataAttributeRule(t *testing.T) {
	snap := snapshot("https://example.com/", `
		<div `+box+` data-video="blob:https://example.com/1"></div>
		<div `+box+` data-video-url="/one.bin"></div>
		<span `+box+` data-video-src="https://cdn.example.com/two"></span>
	`)
	assert.Equal(t, []string{
		"https://example.com/one.bin",
		"https://cdn.example.com/two",
	}, urls(Extract(snap)))
}

func TestCompoundPlatformCards(t *testing.T) {
	snap := snapshot("https://vk.com/videos-1", `
		<div class="VideoCard" `+box+` data-mh-bg="url(&quot;https://sun.userapi.com/card.jpg&quot;)">
			<a `+box+` href="/video-100_200?list=ln">
				<img `+box+` src="data:image/gif;base64,R0lGOD" data-src="https://sun.userapi.com/thumb1.jpg">
			</a>
			<a `+box+` href="https://vk.com/video-100_200">same video, second link</a>
		</div>
		<div class="VideoCard" `+box+` data-mh-bg="url('https://sun.userapi.com/bg2.jpg')">
			<a `+box+` href="/video300_400">no image</a>
		</div>
		<div `+box+` data-video-id="-7_8" data-thumb="/thumb8.jpg"></div>
		<div `+box+` data-video-id="garbage"></div>
		<div hidden `+box+` data-video-id="-9_9"></div>
	`)

	cs := Extract(snap)
	require.Len(t, cs, 3)
	assert.Equal(t, models.Candidate{
		URL:       "https://vk.com/video-100_200",
		Kind:      models.KindCompoundIDPlatform,
		Thumbnail: "https://sun.userapi.com/thumb1.jpg",
	}, cs[0])
	assert.Equal(t, models.Candidate{
		URL:       "https://vk.com/video300_400",
		Kind:      models.KindCompoundIDPlatform,
		Thumbnail: "https://sun.userapi.com/bg2.jpg",
	}, cs[1])
	assert.Equal(t, models.Candidate{
		URL:       "https://vk.com/video-7_8",
		Kind:      models.KindCompoundIDPlatform,
		Thumbnail: "https://vk.com/thumb8.jpg",
	}, cs[2])
}

func TestCompoundVideoIDWinsOverRawID(t *testing.T) {
	snap := snapshot("https://vk.com/videos-1", `
		<div `+box+` data-video-id="-7_8" data-video-raw-id="-5_6"></div>
		<div `+box+` data-video-id="garbage" data-video-raw-id="11_12"></div>
	`)
	cs := Extract(snap)
	require.Len(t, cs, 2)
	assert.Equal(t, "https://vk.com/video-7_8", cs[0].URL)
	assert.Equal(t, "https://vk.com/video11_12", cs[1].URL)
}

func TestCompoundRuleOnlyOnPlatformPages(t *testing.T) {
	snap := snapshot("https://example.com/", `<div `+box+` data-video-id="-7_8"></div>`)
	assert.Empty(t, Extract(snap))
}

func TestCustomRuleTable(t *testing.T) {
	rules := DefaultRules()
	ex := New(rules[1])
	snap := snapshot("https://example.com/", `
		<video `+box+` src="/a.mp4"></video>
		<a `+box+` href="/b.mp4">b</a>
	`)
	assert.Equal(t, []string{"https://example.com/a.mp4"}, urls(ex.Extract(snap)))
}

func TestExtractNeverFailsOnMalformedInput(t *testing.T) {
	for _, html := range []string{"", "<<<>>>", "<a href='", `<video src="::::" ` + box + `>`} {
		snap := models.PageSnapshot{URL: "%%bad", HTML: html}
		assert.NotPanics(t, func() {
			assert.NotNil(t, Extract(snap))
		})
	}
}

func TestCSSURL(t *testing.T) {
	assert.Equal(t, "https://a/b.jpg", cssURL(`url("https://a/b.jpg")`))
	assert.Equal(t, "x.png", cssURL(`linear-gradient(red, blue), url('x.png')`))
	assert.Empty(t, cssURL("none"))
	assert.Empty(t, cssURL("url(broken"))
}
