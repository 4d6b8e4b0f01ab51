package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"go-media-harvester/internal/extractor"
	"go-media-harvester/internal/models"
	"go-media-harvester/internal/render"
	"go-media-harvester/internal/report"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var extractCmd = &cobra.Command{
	Use:   "extract [URL]",
	Short: "List the media candidates on a page",
	Long: `Renders the page in a headless browser and prints the visible media it references.
With --report the page is read from a stored capture instead (see 'capture').`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

var captureCmd = &cobra.Command{
	Use:   "capture [URL]",
	Short: "Render a page and store the snapshot as a report",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCapture,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(captureCmd)

	extractCmd.Flags().String("report", "", "Extract from a stored report instead of rendering the page")
	extractCmd.Flags().Bool("json", false, "Print candidates as JSON")
	captureCmd.Flags().Bool("list", false, "List stored reports")

	viper.BindPFlag("extract.report", extractCmd.Flags().Lookup("report"))
	viper.BindPFlag("extract.json", extractCmd.Flags().Lookup("json"))
}

func runExtract(cmd *cobra.Command, args []string) error {
	var snap models.PageSnapshot
	if name := viper.GetString("extract.report"); name != "" {
		var err error
		snap, err = report.NewStore(afero.NewOsFs(), globalConfig.ReportPath).Get(name)
		if err != nil {
			return err
		}
	} else {
		if len(args) == 0 {
			return fmt.Errorf("give a page URL or --report")
		}
		var err error
		snap, err = render.NewCapturer(globalConfig).Capture(context.Background(), args[0])
		if err != nil {
			return err
		}
	}

	candidates := extractor.New().Extract(snap)
	if viper.GetBool("extract.json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(candidates)
	}
	if len(candidates) == 0 {
		fmt.Printf("No media found on %s\n", snap.URL)
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Kind\tURL\tThumbnail")
	fmt.Fprintln(tw, "----\t---\t---------")
	for _, c := range candidates {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Kind, c.URL, c.Thumbnail)
	}
	return tw.Flush()
}

func runCapture(cmd *cobra.Command, args []string) error {
	if list, _ := cmd.Flags().GetBool("list"); list {
		entries, err := report.NewStore(afero.NewOsFs(), globalConfig.ReportPath).List()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Name\tCaptured\tURL")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.CapturedAt.Local().Format("2006-01-02 15:04"), e.URL)
		}
		return tw.Flush()
	}
	if len(args) == 0 {
		return fmt.Errorf("give a page URL or --list")
	}

	snap, err := render.NewCapturer(globalConfig).Capture(context.Background(), args[0])
	if err != nil {
		return err
	}
	name, err := report.NewWriter(afero.NewOsFs(), globalConfig.ReportPath).Save(snap)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", name)
	return nil
}
