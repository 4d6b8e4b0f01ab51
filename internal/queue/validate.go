package queue

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go-media-harvester/internal/models"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var httpScheme = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return errors.New("must be a valid URL")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.New("must use http or https")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
})

var knownFormat = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if !models.Format(s).Valid() {
		return fmt.Errorf("must be %q or %q", models.FormatVideo, models.FormatAudio)
	}
	return nil
})

// validateSubmission rejects requests that must never enter the job store. The
// returned error wraps ErrValidation and validation.Errors keyed by field.
func validateSubmission(sourceURL string, format models.Format) error {
	err := validation.Errors{
		"url":    validation.Validate(sourceURL, validation.Required, is.URL, httpScheme),
		"format": validation.Validate(string(format), validation.Required, knownFormat),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}
