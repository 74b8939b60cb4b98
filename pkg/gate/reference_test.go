package gate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reference.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, receiptGrid(400, 120).Image()), 0o644))

	ref, err := LoadReference(path)
	require.NoError(t, err)
	assert.Equal(t, 400, ref.W())
	assert.Equal(t, 120, ref.H())
	assert.Equal(t, path, ref.Source)

	_, err = LoadReference(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, ErrNoReference)

	junk := filepath.Join(dir, "junk.png")
	require.NoError(t, os.WriteFile(junk, []byte("nope"), 0o644))
	_, err = LoadReference(junk)
	assert.ErrorIs(t, err, ErrNoReference)
}

func TestReferenceBlurredIsMemoized(t *testing.T) {
	ref := testReference(t)
	a := ref.Blurred(1.1)
	assert.Same(t, a, ref.Blurred(1.1))
	assert.Same(t, ref.Grid, ref.Blurred(0))

	_, err := NewReference(&Grid{}, "empty")
	assert.ErrorIs(t, err, ErrNoReference)
}
