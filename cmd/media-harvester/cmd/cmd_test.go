package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-media-harvester/internal/api"
	"go-media-harvester/internal/downloader"
	"go-media-harvester/internal/models"
	"go-media-harvester/internal/queue"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGlobalConfigAppliesFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("SavePath = \"media\"\nMaxConcurrent = 3\n"), 0o644))

	oldCfg := cfgFile
	t.Cleanup(func() { cfgFile = oldCfg })
	cfgFile = cfgPath

	require.NoError(t, loadGlobalConfig(&cobra.Command{}, nil))
	assert.Equal(t, "media", globalConfig.SavePath)
	assert.Equal(t, 3, globalConfig.MaxConcurrent)
	assert.Equal(t, filepath.Join("media", ".harvester_db"), globalConfig.DatabasePath)
	assert.NotNil(t, globalHttpTransport)

	c := &cobra.Command{}
	c.Flags().IntVar(&maxConcurrentFlag, "max-concurrent", 0, "")
	c.Flags().StringVar(&savePathFlag, "save-path", "", "")
	c.Flags().BoolVar(&logHttpFlag, "log-http", false, "")
	require.NoError(t, c.Flags().Set("max-concurrent", "7"))
	require.NoError(t, c.Flags().Set("save-path", dir))
	require.NoError(t, c.Flags().Set("log-http", "true"))

	require.NoError(t, loadGlobalConfig(c, nil))
	assert.Equal(t, 7, globalConfig.MaxConcurrent)
	assert.Equal(t, dir, globalConfig.SavePath)
	assert.Equal(t, filepath.Join(dir, ".harvester.bleve"), globalConfig.IndexPath)

	lt, ok := globalHttpTransport.(*api.LoggingTransport)
	require.True(t, ok)
	require.NoError(t, lt.Close())
	assert.FileExists(t, filepath.Join(dir, "http.log"))
}

func TestLoadGlobalConfigMissingFileUsesDefaults(t *testing.T) {
	oldCfg := cfgFile
	t.Cleanup(func() { cfgFile = oldCfg })
	cfgFile = filepath.Join(t.TempDir(), "missing.toml")

	require.NoError(t, loadGlobalConfig(&cobra.Command{}, nil))
	assert.Equal(t, queue.DefaultMaxConcurrent, globalConfig.MaxConcurrent)
	assert.NotEmpty(t, globalConfig.SavePath)
}

// holdFetcher blocks "hold" URLs until cancelled, fails "fail" URLs and completes the
// rest.
var holdFetcher = downloader.FetcherFunc(func(ctx context.Context, req downloader.Request, emit func(downloader.Event)) (downloader.Outcome, error) {
	switch {
	case strings.Contains(req.SourceURL, "hold"):
		emit(downloader.Event{Phase: downloader.PhaseDownloading, BytesDownloaded: 512, BytesTotal: 1024, Title: "held"})
		<-ctx.Done()
		return downloader.Outcome{}, ctx.Err()
	case strings.Contains(req.SourceURL, "fail"):
		return downloader.Outcome{}, fmt.Errorf("%w: 500 Internal Server Error", downloader.ErrHttpStatus)
	}
	return downloader.Outcome{Reference: "clip.mp4", Title: "clip"}, nil
})

func TestSubmitAllFollowsDuplicatesAndSkipsInvalid(t *testing.T) {
	m, err := queue.New(queue.Options{MaxConcurrent: 1, Fetcher: holdFetcher})
	require.NoError(t, err)
	defer m.Close()

	ids := submitAll(m, []string{
		"https://example.com/hold.mp4",
		"not a url",
		"https://example.com/hold.mp4",
		"https://example.com/next.mp4",
	}, models.FormatVideo)
	require.Len(t, ids, 2)

	line, status := describeJob(m, ids[1])
	assert.Equal(t, models.StatusQueued, status)
	assert.Contains(t, line, "queued #1")
}

func TestWatchJobsSummarizes(t *testing.T) {
	m, err := queue.New(queue.Options{MaxConcurrent: 2, Fetcher: holdFetcher})
	require.NoError(t, err)
	defer m.Close()

	ids := submitAll(m, []string{"https://example.com/ok.mp4", "https://example.com/fail.mp4"}, models.FormatVideo)
	require.Len(t, ids, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	summary := watchJobs(ctx, m, ids)
	assert.False(t, summary.Interrupted)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Failed)

	line, status := describeJob(m, ids[1])
	assert.Equal(t, models.StatusFailed, status)
	assert.Contains(t, line, "http_status")
}

func TestWatchJobsStopsOnCancel(t *testing.T) {
	m, err := queue.New(queue.Options{MaxConcurrent: 1, Fetcher: holdFetcher})
	require.NoError(t, err)
	defer m.Close()

	ids := submitAll(m, []string{"https://example.com/hold.mp4"}, models.FormatVideo)
	require.Len(t, ids, 1)
	require.Eventually(t, func() bool {
		job, err := m.Job(ids[0])
		return err == nil && job.Status == models.StatusDownloading
	}, 2*time.Second, 5*time.Millisecond)

	line, _ := describeJob(m, ids[0])
	assert.Contains(t, line, "50.0%")
	assert.Contains(t, line, "held")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.True(t, watchJobs(ctx, m, ids).Interrupted)
}

func TestSortedIncompleteOldestFirst(t *testing.T) {
	now := time.Now()
	got := sortedIncomplete(map[string]models.IncompleteEntry{
		"b": {ID: "b", FailedAt: now},
		"a": {ID: "a", FailedAt: now.Add(-time.Minute)},
		"c": {ID: "c", FailedAt: now},
	})
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "12345678", shortID("0000-12345678"))
}
