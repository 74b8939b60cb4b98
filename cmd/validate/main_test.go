package main

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExitCodes(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	tiny := filepath.Join(dir, "tiny.png")
	require.NoError(t, imaging.Save(imaging.New(1000, 300, color.White), good))
	require.NoError(t, imaging.Save(imaging.New(50, 50, color.White), tiny))
	missingRef := filepath.Join(dir, "reference.png")

	assert.Equal(t, exitAccept, run([]string{good}, "geometry", "", missingRef, false))
	assert.Equal(t, exitReject, run([]string{tiny}, "geometry", "", missingRef, false))
	assert.Equal(t, exitSetup, run(nil, "geometry", "", missingRef, false))
	assert.Equal(t, exitSetup, run([]string{good}, "nope", "", missingRef, false))
	assert.Equal(t, exitSetup, run([]string{filepath.Join(dir, "absent.png")}, "geometry", "", missingRef, false))
	// content profiles need the reference
	assert.Equal(t, exitSetup, run([]string{good}, "structural", "", missingRef, false))

	require.NoError(t, imaging.Save(imaging.New(1000, 300, color.White), missingRef))
	assert.Equal(t, exitAccept, run([]string{good}, "template", "", missingRef, false))
}
