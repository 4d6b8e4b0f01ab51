// Package storage keeps downloaded artifacts and partial transfers under one root
// directory. Paths handed out by the store are relative to that root and double as
// retrieval references.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"go-media-harvester/internal/helpers"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// PartialDir holds in-flight transfers, relative to the store root.
const PartialDir = ".partial"

var (
	ErrNotFound         = errors.New("artifact not found")
	ErrInvalidReference = errors.New("invalid retrieval reference")
)

// Store is the artifact store.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore returns a store rooted at root on fs. A nil fs means the OS filesystem.
func NewStore(fs afero.Fs, root string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, root: root}
}

// Abs maps a relative reference to a path on the backing filesystem.
func (s *Store) Abs(ref string) string {
	return filepath.Join(s.root, filepath.FromSlash(ref))
}

// clean validates a reference and returns it in canonical slash form.
func clean(ref string) (string, error) {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, "\\", "/"))
	if ref == "" || strings.HasPrefix(ref, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	cleaned := path.Clean(ref)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return cleaned, nil
}

func hidden(ref string) bool {
	for _, seg := range strings.Split(ref, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// PartialRef returns the partial-file reference for a job. The key should be stable
// across resumes of the same transfer.
func PartialRef(key, name string) string {
	slug := helpers.ConvertToSlug(name)
	if slug == "" {
		slug = "download"
	}
	return path.Join(PartialDir, helpers.ConvertToSlug(key)+"_"+slug+".part")
}

// OpenPartial opens a partial file for appending, creating it if needed, and returns
// the number of bytes already present.
func (s *Store) OpenPartial(ref string) (afero.File, int64, error) {
	ref, err := clean(ref)
	if err != nil {
		return nil, 0, err
	}
	full := s.Abs(ref)
	if err := s.fs.MkdirAll(filepath.Dir(full), 0700); err != nil {
		return nil, 0, fmt.Errorf("creating directory for %s: %w", ref, err)
	}
	f, err := s.fs.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, 0, fmt.Errorf("opening partial file %s: %w", ref, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat partial file %s: %w", ref, err)
	}
	return f, info.Size(), nil
}

// Finalize moves a partial file to its final name in the root and returns the new
// reference. An existing artifact with the same name is never overwritten; a numeric
// suffix is added instead.
func (s *Store) Finalize(partialRef, name string) (string, error) {
	partialRef, err := clean(partialRef)
	if err != nil {
		return "", err
	}
	ext := path.Ext(name)
	base := helpers.ConvertToSlug(strings.TrimSuffix(name, ext))
	if base == "" {
		base = "download"
	}
	ext = strings.ToLower(ext)

	candidate := base + ext
	for i := 1; ; i++ {
		exists, err := afero.Exists(s.fs, s.Abs(candidate))
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", candidate, err)
		}
		if !exists {
			break
		}
		candidate = base + "_" + strconv.Itoa(i) + ext
	}

	if err := s.fs.MkdirAll(s.root, 0700); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := s.fs.Rename(s.Abs(partialRef), s.Abs(candidate)); err != nil {
		return "", fmt.Errorf("renaming %s to %s: %w", partialRef, candidate, err)
	}
	log.Debugf("Finalized %s as %s", partialRef, candidate)
	return candidate, nil
}

// Open returns a reader for a finished artifact. References under a dot-prefixed
// directory or naming a dotfile belong to the application (partial transfers,
// database, index, reports) and are reported as not found.
func (s *Store) Open(ref string) (afero.File, os.FileInfo, error) {
	ref, err := clean(ref)
	if err != nil {
		return nil, nil, err
	}
	if hidden(ref) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	f, err := s.fs.Open(s.Abs(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, nil, fmt.Errorf("opening %s: %w", ref, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", ref, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: %s is a directory", ErrInvalidReference, ref)
	}
	return f, info, nil
}

// Checksum returns the BLAKE3 digest of an artifact.
func (s *Store) Checksum(ref string) (string, error) {
	f, _, err := s.Open(ref)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return helpers.Blake3Hex(f)
}

// Remove deletes an artifact, partial file or partial directory. A missing path is not
// an error.
func (s *Store) Remove(ref string) error {
	ref, err := clean(ref)
	if err != nil {
		return err
	}
	if err := s.fs.RemoveAll(s.Abs(ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", ref, err)
	}
	return nil
}

// Rel converts a path produced by an external tool back into a reference. Paths
// outside the root are rejected.
func (s *Store) Rel(p string) (string, error) {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidReference, p)
	}
	return clean(filepath.ToSlash(rel))
}
