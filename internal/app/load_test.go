package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/John-Robertt/ddmfit/internal/domain"
)

const twoAngles = "1 2\n0.1 1\n" +
	"# Angle section (radial direction) 0 (center angle: 45.0 degrees, range: 0.0 to 90.0 degrees)\n" +
	"1 2\n3 4\n" +
	"# Angle section (radial direction) 1 (center angle: 135.0 degrees, range: 90.0 to 180.0 degrees)\n" +
	"5 6\n7 8\n"

func TestLoadEntries_SkipsBrokenFilesAndKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	good := writeISF(t, dir, "episode3-1_scale8-2.isf", twoAngles)
	bad := writeISF(t, dir, "bad.isf", "1 2\n0.1 1\n1 x\n2 3\n")
	missing := filepath.Join(dir, "missing.isf")
	good2 := writeISF(t, dir, "plain.isf", "1\n0.1 1\n9 9\n")

	core, logs := observer.New(zapcore.WarnLevel)
	entries, skipped, err := LoadEntries(context.Background(), []string{good, bad, missing, good2}, LoadOptions{Angle: NoAngle}, zap.New(core))
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, good, entries[0].ID)
	assert.Equal(t, good2, entries[1].ID)
	assert.Equal(t, domain.FileMeta{Episode: 3, Window: 1, Scale: 8, Tile: 2}, entries[0].Meta)
	assert.Equal(t, domain.UnknownMeta(), entries[1].Meta)
	require.Len(t, entries[0].Angles, 2)
	assert.Equal(t, "Angle 1: Center 135.0°, Range: 90.0° to 180.0°", entries[0].Angles[1].Desc)

	require.Len(t, skipped, 2)
	assert.Equal(t, bad, skipped[0].Path)
	assert.Equal(t, domain.ErrCodeParseFailed, skipped[0].Code)
	assert.Equal(t, missing, skipped[1].Path)
	assert.Equal(t, domain.ErrCodeIOFailed, skipped[1].Code)
	assert.Equal(t, 2, logs.FilterMessage("解析文件失败，跳过").Len())
}

func TestLoadEntries_AngleSelection(t *testing.T) {
	dir := t.TempDir()
	sectioned := writeISF(t, dir, "episode1-0_scale4-0.isf", twoAngles)
	plain := writeISF(t, dir, "episode1-0_scale4-1.isf", "1 2\n0.1 1\n1 1\n1 1\n")

	entries, skipped, err := LoadEntries(context.Background(), []string{sectioned, plain}, LoadOptions{Angle: 1}, nil)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	require.Len(t, entries[0].Angles, 1)
	assert.Equal(t, [][]float64{{5, 6}, {7, 8}}, entries[0].Angles[0].Data)
	assert.True(t, entries[0].Meta.HasSelectedAngle)
	assert.Equal(t, 1, entries[0].Meta.SelectedAngle)

	require.Len(t, skipped, 1)
	assert.Equal(t, plain, skipped[0].Path)
	assert.Equal(t, domain.ErrCodeAngleMissing, skipped[0].Code)
}

func TestLoadEntries_Canceled(t *testing.T) {
	dir := t.TempDir()
	p := writeISF(t, dir, "a.isf", twoAngles)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := LoadEntries(ctx, []string{p, p, p}, LoadOptions{Angle: NoAngle, Workers: 1}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
