// Package share produces BitTorrent metainfo and magnet links for finished artifacts.
package share

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
)

const pieceLength = 512 * 1024

var ErrNoTrackers = errors.New("at least one tracker announce URL is required")

type Options struct {
	Trackers  []string
	OutputDir string // empty places the .torrent next to the artifact
	Overwrite bool
	Magnet    bool // also write <name>-magnet.txt
	CreatedBy string
}

type Result struct {
	TorrentPath string
	Magnet      string
	Skipped     bool // an existing .torrent was kept
}

// CreateTorrent writes a .torrent for one artifact file.
func CreateTorrent(sourcePath string, opts Options) (Result, error) {
	if len(opts.Trackers) == 0 {
		return Result{}, ErrNoTrackers
	}
	stat, err := os.Stat(sourcePath)
	if err != nil {
		return Result{}, fmt.Errorf("error stating source path %s: %w", sourcePath, err)
	}
	if stat.IsDir() {
		return Result{}, fmt.Errorf("source path is a directory: %s", sourcePath)
	}

	outDir := filepath.Dir(sourcePath)
	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
			return Result{}, fmt.Errorf("error creating output directory %s: %w", opts.OutputDir, err)
		}
		outDir = opts.OutputDir
	}
	outPath := filepath.Join(outDir, stat.Name()+".torrent")
	res := Result{TorrentPath: outPath}

	if !opts.Overwrite {
		if _, err := os.Stat(outPath); err == nil {
			log.WithField("path", outPath).Info("Skipping existing torrent file (use --overwrite to replace)")
			res.Skipped = true
			return res, nil
		}
	}

	mi := metainfo.MetaInfo{
		Announce:     opts.Trackers[0],
		AnnounceList: make([][]string, len(opts.Trackers)),
		CreatedBy:    opts.CreatedBy,
	}
	for i, tracker := range opts.Trackers {
		mi.AnnounceList[i] = []string{tracker}
	}

	info := metainfo.Info{PieceLength: pieceLength}
	if err := info.BuildFromFilePath(sourcePath); err != nil {
		return Result{}, fmt.Errorf("error building torrent info from path %s: %w", sourcePath, err)
	}
	mi.InfoBytes, err = bencode.Marshal(info)
	if err != nil {
		return Result{}, fmt.Errorf("error marshaling torrent info: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return Result{}, fmt.Errorf("error creating torrent file %s: %w", outPath, err)
	}
	if err := mi.Write(f); err != nil {
		_ = f.Close()
		return Result{}, fmt.Errorf("error writing torrent file %s: %w", outPath, err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("error closing torrent file %s: %w", outPath, err)
	}
	log.WithField("path", outPath).Info("Generated torrent file")

	res.Magnet = MagnetURI(mi.HashInfoBytes().HexString(), stat.Name(), opts.Trackers)
	if opts.Magnet {
		magnetPath := strings.TrimSuffix(outPath, ".torrent") + "-magnet.txt"
		if err := os.WriteFile(magnetPath, []byte(res.Magnet), 0644); err != nil {
			// The torrent itself is fine.
			log.WithError(err).WithField("path", magnetPath).Error("Failed to write magnet link file")
		}
	}
	return res, nil
}

// MagnetURI builds a magnet link from a hex info hash.
func MagnetURI(infoHash, name string, trackers []string) string {
	parts := []string{
		"magnet:?xt=urn:btih:" + infoHash,
		"dn=" + url.QueryEscape(name),
	}
	for _, tracker := range trackers {
		parts = append(parts, "tr="+url.QueryEscape(tracker))
	}
	return strings.Join(parts, "&")
}
