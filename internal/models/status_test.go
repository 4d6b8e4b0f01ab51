package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from JobStatus
		to   JobStatus
	}{
		{"", StatusQueued},
		{"", StatusStarting},
		{StatusQueued, StatusStarting},
		{StatusStarting, StatusDownloading},
		{StatusDownloading, StatusDownloading},
		{StatusDownloading, StatusProcessing},
		{StatusProcessing, StatusCompleted},
		{StatusDownloading, StatusFailed},
		{StatusStarting, StatusFailed},
	}

	for _, tc := range cases {
		assert.NoError(t, ValidateTransition(tc.from, tc.to), "%q -> %q", tc.from, tc.to)
	}
}

func TestValidateTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from JobStatus
		to   JobStatus
	}{
		{StatusQueued, StatusCompleted},
		{StatusCompleted, StatusStarting},
		{StatusFailed, StatusQueued},
		{StatusProcessing, StatusDownloading},
		{"not_a_state", StatusQueued},
		{StatusQueued, "not_a_state"},
	}

	for _, tc := range cases {
		assert.Error(t, ValidateTransition(tc.from, tc.to), "%q -> %q", tc.from, tc.to)
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusStarting.IsActive())
	assert.True(t, StatusProcessing.IsActive())
	assert.False(t, StatusQueued.IsActive())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusDownloading.IsTerminal())
	assert.True(t, FormatAudio.Valid())
	assert.False(t, Format("flac").Valid())
}
