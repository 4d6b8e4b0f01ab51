package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	index "go-media-harvester/index"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search completed downloads",
	Long: `Searches the index of completed downloads. The query uses Bleve query string
syntax, e.g. 'sunset', '+format:audio' or 'host:vk.com'.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if reset, _ := cmd.Flags().GetBool("reset"); reset {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntP("size", "n", 20, "Maximum number of results")
	searchCmd.Flags().Bool("reset", false, "Delete the search index; downloads completed afterwards are indexed again")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	size, _ := cmd.Flags().GetInt("size")
	indexPath := globalConfig.IndexPath

	if reset, _ := cmd.Flags().GetBool("reset"); reset {
		if err := index.DeleteIndex(indexPath); err != nil {
			return fmt.Errorf("failed to delete index at %s: %w", indexPath, err)
		}
		fmt.Printf("Deleted search index at %s\n", indexPath)
		return nil
	}

	log.Debugf("Opening Bleve index at: %s", indexPath)
	// Open rather than create: searching must not create an index.
	bleveIndex, err := bleve.Open(indexPath)
	if err != nil {
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			return fmt.Errorf("no search index at %s; complete a download first", indexPath)
		}
		return fmt.Errorf("failed to open index at %s: %w", indexPath, err)
	}
	defer func() {
		if err := bleveIndex.Close(); err != nil {
			log.Errorf("Error closing Bleve index: %v", err)
		}
	}()

	results, err := index.SearchIndex(bleveIndex, query, size)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	log.Debugf("Search finished. Hits: %d, Total: %d, Took: %s", len(results.Hits), results.Total, results.Took)

	if results.Total == 0 {
		fmt.Println("No results found matching your query.")
		return nil
	}
	fmt.Printf("--- %d of %d results ---\n", len(results.Hits), results.Total)
	for i, hit := range results.Hits {
		fmt.Printf("[%d] %s (score %.2f)\n", i+1, hit.ID, hit.Score)
		fields := make([]string, 0, len(hit.Fields))
		for field := range hit.Fields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Printf("  %s: %v\n", field, hit.Fields[field])
		}
	}
	return nil
}
