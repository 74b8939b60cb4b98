package batch

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"receiptgate/pkg/gate"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 245, G: 245, B: 245, A: 255})
	img = imaging.Paste(img, imaging.New(w/3, h/10+1, color.NRGBA{R: 40, G: 40, B: 40, A: 255}), image.Pt(w/6, h/4))
	require.NoError(t, imaging.Save(img, path))
}

func geometryPipeline() *gate.Pipeline {
	return gate.New(nil, gate.GeometryProfile())
}

func TestIsSupportedExt(t *testing.T) {
	for _, name := range []string{"a.png", "B.JPG", "c.jpeg", "d.webp", "e.pgm", "f.tiff"} {
		assert.True(t, IsSupportedExt(name), name)
	}
	for _, name := range []string{"notes.txt", ".staging.png", "archive.zip", "noext"} {
		assert.False(t, IsSupportedExt(name), name)
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "good.png"), 1000, 300)
	writeImage(t, filepath.Join(dir, "tiny.jpg"), 50, 50)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken.png", "good.png", "tiny.jpg"}, files)

	sum, results, err := New(dir, geometryPipeline(), Options{Workers: 2}).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{
		Total:    3,
		Accepted: 1,
		Rejected: map[gate.Reason]int{gate.ReasonImageReadError: 1, gate.ReasonImageTooSmall: 1},
	}, sum)
	require.Len(t, results, 3)
	assert.Equal(t, "good.png", results[1].Name)
	assert.True(t, results[1].Verdict.OK)
	assert.Equal(t, 1000.0, results[1].Verdict.Metrics[gate.MetricWidth])
}

func TestScanSortsFiles(t *testing.T) {
	dir := t.TempDir()
	sorted := filepath.Join(t.TempDir(), "sorted")
	writeImage(t, filepath.Join(dir, "good.png"), 1000, 300)
	writeImage(t, filepath.Join(dir, "tiny.png"), 50, 50)

	_, _, err := New(dir, geometryPipeline(), Options{SortDir: sorted}).Scan(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(sorted, "accepted", "good.png"))
	assert.FileExists(t, filepath.Join(sorted, "rejected", "IMAGE_TOO_SMALL", "tiny.png"))
	left, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestScanMissingDir(t *testing.T) {
	_, _, err := New(filepath.Join(t.TempDir(), "absent"), geometryPipeline(), Options{}).Scan(context.Background())
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := New(dir, geometryPipeline(), Options{Workers: 1}).Watch(ctx)
	require.NoError(t, err)

	// stage under a hidden name, then rename into place
	staging := filepath.Join(dir, ".incoming.png")
	writeImage(t, staging, 1000, 300)
	require.NoError(t, os.Rename(staging, filepath.Join(dir, "landed.png")))

	select {
	case r := <-results:
		assert.Equal(t, "landed.png", r.Name)
		assert.True(t, r.Verdict.OK, r.Verdict.String())
	case <-time.After(5 * time.Second):
		t.Fatal("no verdict for watched file")
	}

	cancel()
	for range results {
	}
}

func TestScanAndWatch(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "before.png"), 1000, 300)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := New(dir, geometryPipeline(), Options{Workers: 2})
	results, err := v.Watch(ctx)
	require.NoError(t, err)
	// lands after the watcher is live but before the scan lists the directory
	writeImage(t, filepath.Join(dir, "between.png"), 1000, 300)
	sum, _, err := v.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 2, sum.Accepted)

	select {
	case r := <-results:
		t.Fatalf("%s validated twice", r.Name)
	case <-time.After(1500 * time.Millisecond):
	}

	// rewritten content is validated again
	writeImage(t, filepath.Join(dir, "between.png"), 50, 50)
	select {
	case r := <-results:
		assert.Equal(t, "between.png", r.Name)
		assert.Equal(t, gate.ReasonImageTooSmall, r.Verdict.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("no verdict for rewritten file")
	}

	cancel()
	for range results {
	}
}

func TestScanAndWatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "old.png"), 1000, 300)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sum, results, err := New(dir, geometryPipeline(), Options{Workers: 1}).ScanAndWatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total)

	writeImage(t, filepath.Join(dir, "new.png"), 1000, 300)
	select {
	case r := <-results:
		assert.Equal(t, "new.png", r.Name)
		assert.True(t, r.Verdict.OK, r.Verdict.String())
	case <-time.After(5 * time.Second):
		t.Fatal("no verdict for new file")
	}

	cancel()
	for range results {
	}

	_, _, err = New(filepath.Join(dir, "missing"), geometryPipeline(), Options{}).ScanAndWatch(context.Background())
	assert.Error(t, err)
}
