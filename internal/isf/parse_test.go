package isf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/ddmfit/internal/domain"
)

// genFile 生成 L 个 scale、T 个 lag、K 个角度分区的文件文本；K=0 表示不带标记。
func genFile(l, t, k int) string {
	var sb strings.Builder
	for i := 0; i < l; i++ {
		fmt.Fprintf(&sb, "%d ", (i+1)*8)
	}
	sb.WriteString("\n")
	for j := 0; j < t; j++ {
		fmt.Fprintf(&sb, "%g ", 0.1*float64(j+1))
	}
	sb.WriteString("\n")

	writeBlock := func(offset int) {
		for i := 0; i < l; i++ {
			for j := 0; j < t; j++ {
				fmt.Fprintf(&sb, "%d ", offset+i*t+j)
			}
			sb.WriteString("\n")
		}
	}

	if k == 0 {
		sb.WriteString("# plain comment\n")
		writeBlock(0)
		return sb.String()
	}
	step := 180.0 / float64(k)
	for a := 0; a < k; a++ {
		fmt.Fprintf(&sb, "# Angle section (radial direction) %d (center angle: %.1f degrees, range: %.1f to %.1f degrees)\n",
			a, step*float64(a)+step/2, step*float64(a), step*float64(a+1))
		sb.WriteString("\n")
		writeBlock(a * 1000)
	}
	return sb.String()
}

func TestParse_SectionedShapes(t *testing.T) {
	for _, tc := range []struct{ l, t, k int }{{1, 1, 1}, {3, 5, 2}, {4, 2, 8}} {
		c, err := Parse(strings.NewReader(genFile(tc.l, tc.t, tc.k)))
		require.NoError(t, err)
		assert.Equal(t, Sectioned, c.Kind)
		require.Len(t, c.Angles, tc.k)
		for _, s := range c.Angles {
			rows, cols := s.Shape()
			assert.Equal(t, tc.l, rows)
			assert.Equal(t, tc.t, cols)
		}
	}
}

func TestParse_SectionDescriptions(t *testing.T) {
	c, err := Parse(strings.NewReader(genFile(2, 3, 4)))
	require.NoError(t, err)
	assert.Equal(t, "Angle 0: Center 22.5°, Range: 0.0° to 45.0°", c.Angles[0].Desc)
	assert.Equal(t, "Angle 3: Center 157.5°, Range: 135.0° to 180.0°", c.Angles[3].Desc)
	assert.Equal(t, float64(3000), c.Angles[3].Data[0][0])
}

func TestParse_NoMarkersYieldsRadialAverage(t *testing.T) {
	c, err := Parse(strings.NewReader(genFile(3, 4, 0)))
	require.NoError(t, err)
	assert.Equal(t, Unsectioned, c.Kind)
	require.Len(t, c.Angles, 1)
	assert.Equal(t, domain.RadialAverage, c.Angles[0].Desc)
	assert.Equal(t, []float64{4, 5, 6, 7}, c.Angles[0].Data[1])
	assert.Equal(t, domain.ScaleAxis{8, 16, 24}, c.Scales)
}

func TestParse_ShapeMismatch(t *testing.T) {
	text := "1 2\n0.1 1 10\n1 2 3\n"
	_, err := Parse(strings.NewReader(text))
	require.Error(t, err)
	assert.Equal(t, KindShapeMismatch, KindOf(err))

	// 列数不一致同样是形状错误。
	text = "1 2\n0.1 1 10\n1 2 3\n4 5\n"
	_, err = Parse(strings.NewReader(text))
	assert.Equal(t, KindShapeMismatch, KindOf(err))
}

func TestParse_SectionShapeMismatchNamesSection(t *testing.T) {
	text := strings.Join([]string{
		"1 2",
		"0.1 1",
		"# Angle section (radial direction) 0 (center angle: 22.5 degrees, range: 0.0 to 45.0 degrees)",
		"1 2",
		"3 4",
		"# Angle section (radial direction) 1 (center angle: 67.5 degrees, range: 45.0 to 90.0 degrees)",
		"1 2",
	}, "\n")
	_, err := Parse(strings.NewReader(text))
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindShapeMismatch, pe.Kind)
	assert.Contains(t, pe.Section, "Angle 1")
}

func TestParse_TooFewLines(t *testing.T) {
	_, err := Parse(strings.NewReader("1 2\n0.1 1\n"))
	assert.Equal(t, KindTooFewLines, KindOf(err))
}

func TestParse_BadNumber(t *testing.T) {
	_, err := Parse(strings.NewReader("1 2\n0.1 x\n1 2\n"))
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindBadNumber, pe.Kind)
	assert.Equal(t, 2, pe.Line)
}

func TestParse_OnlyCommentsIsNoData(t *testing.T) {
	_, err := Parse(strings.NewReader("1\n0.1\n# nothing\n\n"))
	assert.Equal(t, KindNoData, KindOf(err))
}

func TestParse_MalformedMarkerUsesRawText(t *testing.T) {
	text := "1\n0.1 1\n# Angle section north-east\n5 6\n"
	c, err := Parse(strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, c.Angles, 1)
	assert.Equal(t, "Angle section north-east", c.Angles[0].Desc)
}

func TestParseFile_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episode1-0_scale1-0")
	_, err := ParseFile(path)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindIO, pe.Kind)
	assert.Equal(t, path, pe.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseFile_SetsPathOnFormatErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad")
	require.NoError(t, os.WriteFile(path, []byte("1\n"), 0o644))
	_, err := ParseFile(path)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, path, pe.Path)
	assert.Contains(t, err.Error(), path)
}

func TestParseMarker_Variants(t *testing.T) {
	m := ParseMarker("# Angle section (radial direction) 12 (center angle:-7.5 degrees,  range: -15 to 0. degrees) trailing")
	require.True(t, m.OK)
	assert.Equal(t, 12, m.Index)
	assert.Equal(t, -7.5, m.Center)
	assert.Equal(t, -15.0, m.From)
	assert.Equal(t, 0.0, m.To)

	bad := ParseMarker("  # Angle section (radial direction) x (center angle: 1 degrees, range: 0 to 2 degrees)")
	assert.False(t, bad.OK)
	assert.Equal(t, "Angle section (radial direction) x (center angle: 1 degrees, range: 0 to 2 degrees)", bad.Desc())

	assert.True(t, IsMarker("# Angle section"))
	assert.False(t, IsMarker("# angle section"))
}
