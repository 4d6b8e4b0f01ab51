package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"go-media-harvester/internal/helpers"
	"go-media-harvester/internal/models"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var incompleteCmd = &cobra.Command{
	Use:   "incomplete",
	Short: "Inspect, resume or delete downloads that did not complete",
}

var incompleteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List incomplete downloads",
	Args:  cobra.NoArgs,
	RunE:  runIncompleteList,
}

var incompleteResumeCmd = &cobra.Command{
	Use:   "resume [ID...]",
	Short: "Resume incomplete downloads from their checkpoints",
	Long: `Re-admits each incomplete job to the queue as a new job that continues from the
saved partial data, then shows progress until they end. Use --all to resume every
incomplete job.`,
	RunE: runIncompleteResume,
}

var incompleteDeleteCmd = &cobra.Command{
	Use:   "delete [ID...]",
	Short: "Delete incomplete downloads and their partial data",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIncompleteDelete,
}

func init() {
	rootCmd.AddCommand(incompleteCmd)
	incompleteCmd.AddCommand(incompleteListCmd)
	incompleteCmd.AddCommand(incompleteResumeCmd)
	incompleteCmd.AddCommand(incompleteDeleteCmd)

	incompleteResumeCmd.Flags().Bool("all", false, "Resume every incomplete job")
}

// sortedIncomplete returns registry entries oldest failure first.
func sortedIncomplete(entries map[string]models.IncompleteEntry) []models.IncompleteEntry {
	list := lo.Values(entries)
	sort.Slice(list, func(i, j int) bool {
		if list[i].FailedAt.Equal(list[j].FailedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].FailedAt.Before(list[j].FailedAt)
	})
	return list
}

func runIncompleteList(cmd *cobra.Command, args []string) error {
	st, err := openStack(globalConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	entries := sortedIncomplete(st.manager.GetSnapshot().Incomplete)
	if len(entries) == 0 {
		fmt.Println("No incomplete downloads.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFormat\tProgress\tFailure\tFailed At\tSource")
	fmt.Fprintln(tw, "--\t------\t--------\t-------\t---------\t------")
	for _, e := range entries {
		progress := helpers.BytesToSize(uint64(e.ResumableState.BytesDownloaded))
		if e.Progress.Percent > 0 {
			progress = fmt.Sprintf("%.1f%% (%s)", e.Progress.Percent, progress)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Format, progress, e.Failure.Kind, e.FailedAt.Local().Format("2006-01-02 15:04"), e.SourceURL)
	}
	return tw.Flush()
}

func runIncompleteResume(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if len(args) == 0 && !all {
		return fmt.Errorf("give at least one id or --all")
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

	targets := args
	if all {
		targets = lo.Map(sortedIncomplete(st.manager.GetSnapshot().Incomplete), func(e models.IncompleteEntry, _ int) string {
			return e.ID
		})
	}

	var ids []string
	for _, id := range targets {
		job, err := st.manager.Resume(id)
		if err != nil {
			log.WithError(err).Errorf("Could not resume %s", id)
			continue
		}
		log.Infof("Resumed %s as %s", id, job.ID)
		ids = append(ids, job.ID)
	}
	if len(ids) == 0 {
		return fmt.Errorf("nothing was resumed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	summary := watchJobs(ctx, st.manager, ids)
	if summary.Interrupted {
		fmt.Println("Interrupted. Unfinished jobs are kept in the incomplete registry.")
		return nil
	}
	fmt.Printf("Finished: %d completed, %d failed.\n", summary.Completed, summary.Failed)
	return nil
}

func runIncompleteDelete(cmd *cobra.Command, args []string) error {
	st, err := openStack(globalConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	failed := 0
	for _, id := range args {
		if err := st.manager.DeleteIncomplete(id); err != nil {
			log.WithError(err).Errorf("Could not delete %s", id)
			failed++
			continue
		}
		fmt.Printf("Deleted %s\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", failed, len(args))
	}
	return nil
}
