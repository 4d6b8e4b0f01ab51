package downloader

import (
	"context"
	"errors"
	"net"
	"os"

	"go-media-harvester/internal/models"
	"go-media-harvester/internal/storage"
)

// Fetch errors. Fetchers wrap one of these so failures can be classified.
var (
	ErrHttpStatus   = errors.New("unexpected HTTP status code")
	ErrFileSystem   = errors.New("filesystem error") // Covers create, remove, rename
	ErrHttpRequest  = errors.New("HTTP request creation/execution error")
	ErrStalled      = errors.New("transfer stalled")
	ErrUnsupported  = errors.New("unsupported source")
	ErrShortBody    = errors.New("response ended before the advertised length")
	ErrExternalTool = errors.New("external fetch tool failed")
)

// Classify maps a fetch error to the failure kind recorded on the job.
func Classify(err error) models.FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return models.FailureInterrupted
	case errors.Is(err, ErrHttpStatus):
		return models.FailureHTTPStatus
	case errors.Is(err, ErrUnsupported):
		return models.FailureUnsupported
	case errors.Is(err, ErrFileSystem),
		errors.Is(err, storage.ErrInvalidReference),
		errors.Is(err, os.ErrPermission):
		return models.FailureFileSystem
	case errors.Is(err, ErrHttpRequest),
		errors.Is(err, ErrStalled),
		errors.Is(err, ErrShortBody),
		errors.Is(err, context.DeadlineExceeded):
		return models.FailureNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.FailureNetwork
	}
	return models.FailureUnknown
}
