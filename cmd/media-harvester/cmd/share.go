package cmd

import (
	"errors"
	"fmt"
	"sync/atomic"

	index "go-media-harvester/index"
	"go-media-harvester/internal/share"
	"go-media-harvester/internal/storage"

	"github.com/blevesearch/bleve/v2"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	announceURLs        []string
	shareQuery          string
	torrentOutputDir    string
	overwriteTorrents   bool
	generateMagnetLinks bool
)

var shareCmd = &cobra.Command{
	Use:   "share [REFERENCE...]",
	Short: "Generate .torrent files for completed downloads",
	Long: `Generates BitTorrent metainfo (.torrent) files for finished artifacts, given by
their retrieval reference or selected with a search --query. You must specify
tracker announce URLs.`,
	RunE: runShare,
}

func init() {
	rootCmd.AddCommand(shareCmd)

	shareCmd.Flags().StringSliceVar(&announceURLs, "announce", []string{}, "Tracker announce URL (repeatable)")
	shareCmd.Flags().StringVarP(&shareQuery, "query", "q", "", "Share every artifact matching this search query")
	shareCmd.Flags().StringVarP(&torrentOutputDir, "output-dir", "o", "", "Directory to save generated .torrent files (default: next to the artifact)")
	shareCmd.Flags().BoolVarP(&overwriteTorrents, "overwrite", "f", false, "Overwrite existing .torrent files")
	shareCmd.Flags().BoolVar(&generateMagnetLinks, "magnet-links", false, "Write a .txt file containing the magnet link alongside each .torrent file")
	shareCmd.Flags().IntP("concurrency", "c", 4, "Number of concurrent torrent generation workers")
}

func runShare(cmd *cobra.Command, args []string) error {
	if len(announceURLs) == 0 {
		return share.ErrNoTrackers
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency <= 0 {
		log.Warnf("Invalid concurrency value %d, defaulting to 4", concurrency)
		concurrency = 4
	}

	refs := args
	if shareQuery != "" {
		found, err := referencesMatching(shareQuery)
		if err != nil {
			return err
		}
		refs = append(refs, found...)
	}
	refs = lo.Uniq(refs)
	if len(refs) == 0 {
		return errors.New("nothing to share: give references or a --query that matches completed downloads")
	}

	store := storage.NewStore(afero.NewOsFs(), globalConfig.SavePath)
	opts := share.Options{
		Trackers:  announceURLs,
		OutputDir: torrentOutputDir,
		Overwrite: overwriteTorrents,
		Magnet:    generateMagnetLinks,
		CreatedBy: "media-harvester",
	}

	var failures atomic.Int64
	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, ref := range refs {
		g.Go(func() error {
			f, _, err := store.Open(ref)
			if err != nil {
				log.WithError(err).Errorf("Cannot share %s", ref)
				failures.Add(1)
				return nil
			}
			_ = f.Close()

			res, err := share.CreateTorrent(store.Abs(ref), opts)
			if err != nil {
				log.WithError(err).Errorf("Failed to generate torrent for %s", ref)
				failures.Add(1)
				return nil
			}
			if res.Magnet != "" {
				fmt.Printf("%s\t%s\n", ref, res.Magnet)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failures.Load(); n > 0 {
		return fmt.Errorf("%d of %d torrents failed to generate", n, len(refs))
	}
	log.Infof("Torrent generation complete for %d artifacts", len(refs))
	return nil
}

// referencesMatching returns the retrieval references of indexed artifacts matching query.
func referencesMatching(query string) ([]string, error) {
	bleveIndex, err := bleve.Open(globalConfig.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", globalConfig.IndexPath, err)
	}
	defer bleveIndex.Close()

	results, err := index.SearchIndex(bleveIndex, query, 1000)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	var refs []string
	for _, hit := range results.Hits {
		if ref, ok := hit.Fields["reference"].(string); ok && ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}
