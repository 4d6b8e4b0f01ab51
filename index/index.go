package index

import (
	"os"
	"path"
	"strings"
	"time"

	"go-media-harvester/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "harvester.bleve"

// Item is one completed artifact. Fields are searchable by their JSON names, e.g.
// '+format:audio' or '+host:vimeo.com'.
type Item struct {
	ID          string    `json:"id"`    // Job id that produced the artifact
	Type        string    `json:"type"`  // Always "artifact" for now
	Title       string    `json:"title"` // Human-readable title reported by the fetcher
	SourceURL   string    `json:"sourceUrl"`
	Host        string    `json:"host"`
	Format      string    `json:"format"`
	Reference   string    `json:"reference"` // Retrieval reference in the artifact store
	Extension   string    `json:"extension,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
	SizeBytes   float64   `json:"sizeBytes,omitempty"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
	ResumedFrom string    `json:"resumedFrom,omitempty"`
}

// ItemFromJob builds the index document for a completed job.
func ItemFromJob(job models.DownloadJob) Item {
	item := Item{
		ID:          job.ID,
		Type:        "artifact",
		Title:       job.Title,
		SourceURL:   job.SourceURL,
		Host:        hostOf(job.SourceURL),
		Format:      string(job.Format),
		SizeBytes:   float64(job.Progress.BytesDownloaded),
		CompletedAt: job.FinishedAt,
		ResumedFrom: job.ResumedFrom,
	}
	if job.Result != nil {
		item.Reference = job.Result.Reference
		item.Checksum = job.Result.Checksum
		item.Extension = strings.TrimPrefix(strings.ToLower(path.Ext(job.Result.Reference)), ".")
		if job.Result.Title != "" {
			item.Title = job.Result.Title
		}
	}
	return item
}

func hostOf(raw string) string {
	rest := raw
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(rest)
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	index, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.WithField("path", indexPath).Info("Creating new index")
		mapping := bleve.NewIndexMapping()
		index, err = bleve.New(indexPath, mapping)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		log.WithField("path", indexPath).Debug("Opened existing index")
	}
	return index, nil
}

// IndexItem adds or updates an item in the Bleve index.
func IndexItem(index bleve.Index, item Item) error {
	return index.Index(item.ID, item)
}

// SearchIndex performs a query string search, newest artifacts first on equal score.
func SearchIndex(index bleve.Index, query string, size int) (*bleve.SearchResult, error) {
	searchQuery := bleve.NewQueryStringQuery(query)
	searchRequest := bleve.NewSearchRequest(searchQuery)
	if size > 0 {
		searchRequest.Size = size
	}
	searchRequest.SortBy([]string{"-_score", "-completedAt"})
	searchRequest.Fields = []string{"*"}
	return index.Search(searchRequest)
}

// DeleteIndex removes the index directory.
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.WithField("path", indexPath).Info("Deleting index")
	return os.RemoveAll(indexPath)
}
