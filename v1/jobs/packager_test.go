package jobs

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/annotation-engine/v1/models"
	"github.com/Aleph-Alpha/annotation-engine/v1/progress"
)

func packageRequest() PackageRequest {
	return PackageRequest{
		JobID:       9,
		RunUID:      "pkg",
		GroupID:     "gid",
		ProjectID:   7,
		UserID:      3,
		MediaList:   "1,2,3",
		PackageName: "export",
		PackageDesc: "all of it",
	}
}

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string]string{}
	for _, f := range zr.File {
		assert.Equal(t, zip.Store, f.Method, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = string(body)
	}
	return out
}

func TestRunPackager(t *testing.T) {
	original := "7/raw/a.mov"
	setup := func(t *testing.T) *harness {
		h := newHarness(t)
		h.store.media = []models.Media{
			{ID: 1, Name: "a.mp4", ObjectKey: "7/a.mp4"},
			{ID: 2, Name: "a.mp4", ObjectKey: "7/a2.mp4", OriginalKey: &original},
			{ID: 3, Name: "notes", ObjectKey: "7/notes"},
		}
		h.objects.objects["7/a.mp4"] = []byte("first")
		h.objects.objects["7/a2.mp4"] = []byte("second")
		h.objects.objects[original] = []byte("second original")
		h.objects.objects["7/notes"] = []byte("third")
		return h
	}

	t.Run("zips media with unique names", func(t *testing.T) {
		h := setup(t)

		pkg := h.runner.RunPackager(context.Background(), &stopFlag{}, packageRequest())
		require.NotNil(t, pkg)

		assert.Equal(t, "7/pkg.zip", pkg.ObjectKey)
		assert.Equal(t, "export", pkg.Name)
		assert.Equal(t, "all of it", pkg.Description)
		data := h.objects.objects["7/pkg.zip"]
		assert.Equal(t, int64(len(data)), pkg.Size)
		assert.Equal(t, map[string]string{
			"a.mp4":   "first",
			"a-1.mp4": "second",
			"notes":   "third",
		}, readArchive(t, data))

		assert.Equal(t, []event{
			{"queued", "Preparing...", 0},
			{progress.StateStarted, "Creating zip file...", 0},
			{progress.StateStarted, "Creating zip file...", 33},
			{progress.StateStarted, "Creating zip file...", 66},
			{progress.StateFinished, "Package ready!", 0},
		}, h.reporter.Events())
		assert.Equal(t, progress.PrefixDownload, h.reporter.headers[0].Prefix)
		assert.Len(t, h.store.packages, 1)
		assert.Equal(t, []int64{9}, h.store.finished)
	})

	t.Run("originals replace transcodes when asked", func(t *testing.T) {
		h := setup(t)
		req := packageRequest()
		req.UseOriginals = true

		pkg := h.runner.RunPackager(context.Background(), &stopFlag{}, req)
		require.NotNil(t, pkg)
		files := readArchive(t, h.objects.objects["7/pkg.zip"])
		assert.Equal(t, "second original", files["a-1.mp4"])
		assert.Equal(t, "first", files["a.mp4"])
	})

	t.Run("annotations export", func(t *testing.T) {
		h := setup(t)
		h.store.annotations[1] = []models.Localization{{ID: 40, MediaID: 1}}
		req := packageRequest()
		req.Annotations = true

		pkg := h.runner.RunPackager(context.Background(), &stopFlag{}, req)
		require.NotNil(t, pkg)
		files := readArchive(t, h.objects.objects["7/pkg.zip"])
		assert.Len(t, files, 6)
		assert.Contains(t, files["a__localizations.json"], `"ID": 40`)
		assert.Equal(t, "[]", files["a-1__localizations.json"])
		assert.Contains(t, files, "notes__states.json")
	})

	t.Run("stopped run reports abort", func(t *testing.T) {
		h := setup(t)
		stop := &stopFlag{}
		stop.Store(true)

		pkg := h.runner.RunPackager(context.Background(), stop, packageRequest())

		assert.Nil(t, pkg)
		assert.Equal(t, []event{{progress.StateFailed, "Aborted!", 0}}, h.reporter.terminal())
		assert.Empty(t, h.store.packages)
		assert.Equal(t, []int64{9}, h.store.finished)
	})

	t.Run("missing object fails", func(t *testing.T) {
		h := setup(t)
		delete(h.objects.objects, "7/notes")

		pkg := h.runner.RunPackager(context.Background(), &stopFlag{}, packageRequest())

		assert.Nil(t, pkg)
		assert.Equal(t, []event{{progress.StateFailed, "Failed!", 0}}, h.reporter.terminal())
		assert.Equal(t, []int64{9}, h.store.finished)
	})
}

func TestArchiveNames(t *testing.T) {
	names := archiveNames{}
	assert.Equal(t, "a", names.unique("a"))
	assert.Equal(t, "a-1", names.unique("a"))
	assert.Equal(t, "a-2", names.unique("a"))
	assert.Equal(t, "b", names.unique("b"))

	t.Run("suffixed name taken literally", func(t *testing.T) {
		names := archiveNames{}
		got := []string{names.unique("a"), names.unique("a"), names.unique("a-1")}
		assert.Equal(t, []string{"a", "a-1", "a-1-1"}, got)
	})

	t.Run("literal name taken before the suffix", func(t *testing.T) {
		names := archiveNames{}
		got := []string{names.unique("a"), names.unique("a-1"), names.unique("a")}
		assert.Equal(t, []string{"a", "a-1", "a-2"}, got)
	})

	base, ext := splitExt("clip.final.mp4")
	assert.Equal(t, "clip.final", base)
	assert.Equal(t, ".mp4", ext)
	base, ext = splitExt(".hidden")
	assert.Equal(t, ".hidden", base)
	assert.Empty(t, ext)
}
