package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go-media-harvester/internal/extractor"
	"go-media-harvester/internal/models"
	"go-media-harvester/internal/queue"
	"go-media-harvester/internal/render"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var downloadCmd = &cobra.Command{
	Use:   "download [URL...]",
	Short: "Download media URLs through the queue and show live progress",
	Long: `Submits each URL to the download queue and shows progress until every job ends.
With --from-page the URLs are pages: each is rendered, its media candidates are
extracted and every candidate is downloaded.

Interrupted and failed jobs stay in the incomplete registry; see 'incomplete'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringP("format", "f", string(models.FormatVideo), "Output format (video, audio)")
	downloadCmd.Flags().Bool("from-page", false, "Treat arguments as pages and download every media candidate found on them")
	downloadCmd.Flags().StringSlice("kinds", nil, "With --from-page, only download these candidate kinds (e.g. direct_video, platform_embed_youtube)")

	viper.BindPFlag("download.format", downloadCmd.Flags().Lookup("format"))
	viper.BindPFlag("download.from_page", downloadCmd.Flags().Lookup("from-page"))
	viper.BindPFlag("download.kinds", downloadCmd.Flags().Lookup("kinds"))
}

func runDownload(cmd *cobra.Command, args []string) error {
	format := models.Format(strings.ToLower(viper.GetString("download.format")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	urls := args
	if viper.GetBool("download.from_page") {
		var err error
		urls, err = candidatesFromPages(ctx, args, viper.GetStringSlice("download.kinds"))
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			fmt.Println("No media found on the given pages.")
			return nil
		}
	}

	st, err := openStack(globalConfig)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Error("Error during shutdown")
		}
	}()

	ids := submitAll(st.manager, urls, format)
	if len(ids) == 0 {
		return errors.New("no downloads were accepted")
	}

	summary := watchJobs(ctx, st.manager, ids)
	if summary.Interrupted {
		fmt.Println("Interrupted. Unfinished jobs are kept in the incomplete registry.")
		return nil
	}
	fmt.Printf("Finished: %d completed, %d failed.\n", summary.Completed, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d downloads failed; use 'incomplete list' to resume them", summary.Failed, len(ids))
	}
	return nil
}

// submitAll admits each URL and returns the ids to watch. A duplicate is watched
// under its existing id.
func submitAll(m *queue.Manager, urls []string, format models.Format) []string {
	ids := make([]string, 0, len(urls))
	for _, u := range urls {
		job, err := m.Submit(u, format)
		var dup *queue.DuplicateError
		switch {
		case errors.As(err, &dup):
			log.Warnf("%s is already queued, following job %s", u, dup.ExistingID)
			ids = append(ids, dup.ExistingID)
		case err != nil:
			log.WithError(err).Errorf("Rejected %s", u)
		default:
			ids = append(ids, job.ID)
		}
	}
	return lo.Uniq(ids)
}

// candidatesFromPages renders each page and returns the media URLs found, in page
// order and without duplicates.
func candidatesFromPages(ctx context.Context, pages []string, kinds []string) ([]string, error) {
	capturer := render.NewCapturer(globalConfig)
	ex := extractor.New()

	var urls []string
	for _, page := range pages {
		snap, err := capturer.Capture(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("capturing %s: %w", page, err)
		}
		candidates := ex.Extract(snap)
		if len(kinds) > 0 {
			candidates = lo.Filter(candidates, func(c models.Candidate, _ int) bool {
				return lo.Contains(kinds, string(c.Kind))
			})
		}
		log.Infof("Found %d media candidates on %s", len(candidates), page)
		urls = append(urls, lo.Map(candidates, func(c models.Candidate, _ int) string { return c.URL })...)
	}
	return lo.Uniq(urls), nil
}
