package storage

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore() *Store {
	return NewStore(afero.NewMemMapFs(), "/media")
}

func TestPartialLifecycle(t *testing.T) {
	s := newMemStore()
	ref := PartialRef("job-1", "Clip One.mp4")
	assert.Equal(t, ".partial/job-1_clip_one.mp4.part", ref)

	f, size, err := s.OpenPartial(ref)
	require.NoError(t, err)
	assert.Zero(t, size)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, size, err = s.OpenPartial(ref)
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)
	_, err = f.Write([]byte(" world"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	final, err := s.Finalize(ref, "Clip One.MP4")
	require.NoError(t, err)
	assert.Equal(t, "clip_one.mp4", final)

	r, info, err := s.Open(final)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.EqualValues(t, 11, info.Size())

	sum, err := s.Checksum(final)
	require.NoError(t, err)
	assert.Len(t, sum, 64)
}

func TestFinalizeNeverOverwrites(t *testing.T) {
	s := newMemStore()
	for i := 0; i < 2; i++ {
		ref := PartialRef("job", "a.mp4")
		f, _, err := s.OpenPartial(ref)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		final, err := s.Finalize(ref, "a.mp4")
		require.NoError(t, err)
		if i == 0 {
			assert.Equal(t, "a.mp4", final)
		} else {
			assert.Equal(t, "a_1.mp4", final)
		}
	}
}

func TestFinalizeKeepsNonLatinTitles(t *testing.T) {
	s := newMemStore()
	ref := PartialRef("job-2", "Закат.mp4")
	f, _, err := s.OpenPartial(ref)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	final, err := s.Finalize(ref, "Закат над морем.MP4")
	require.NoError(t, err)
	assert.Equal(t, "закат_над_морем.mp4", final)

	r, _, err := s.Open(final)
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestOpenRejectsTraversal(t *testing.T) {
	s := newMemStore()
	for _, ref := range []string{"", "/etc/passwd", "../secret", "a/../../b", ".."} {
		_, _, err := s.Open(ref)
		assert.ErrorIs(t, err, ErrInvalidReference, ref)
	}
	_, _, err := s.Open("missing.mp4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenHidesInternalFiles(t *testing.T) {
	s := newMemStore()
	ref := PartialRef("job-1", "clip.mp4")
	f, _, err := s.OpenPartial(ref)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, afero.WriteFile(s.fs, "/media/.harvester_db/000000000.data", []byte("db"), 0o600))

	for _, ref := range []string{ref, ".harvester_db/000000000.data", ".reports", "sub/.hidden.mp4"} {
		_, _, err := s.Open(ref)
		assert.ErrorIs(t, err, ErrNotFound, ref)
	}
}

func TestRemoveIsBestEffort(t *testing.T) {
	s := newMemStore()
	assert.NoError(t, s.Remove("never-existed.part"))
}

func TestRel(t *testing.T) {
	s := newMemStore()
	ref, err := s.Rel(filepath.Join("/media", "sub", "x.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "sub/x.mp3", ref)

	_, err = s.Rel("/elsewhere/x.mp3")
	assert.ErrorIs(t, err, ErrInvalidReference)
}
