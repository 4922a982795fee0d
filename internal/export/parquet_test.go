package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/ddmfit/internal/domain"
)

func TestRows_UsesAngleFromFits(t *testing.T) {
	fits := []domain.AngleFits{
		{Angle: 1, Desc: "dup", Results: []domain.FitResult{
			{Index: 0, Q: 0.5, Params: domain.FitParams{A: 1, Gamma: 2, Beta: 1.2, B: 0.1}},
			{Index: 3, Q: 2.0, Params: domain.FitParams{A: 3, Gamma: 4, Beta: 0.8, B: 0}},
		}},
		{Angle: 2, Desc: "dup", Results: []domain.FitResult{
			{Index: 1, Q: 1.0, Params: domain.FitParams{A: 2, Gamma: 1, Beta: 1, B: 0}},
		}},
	}
	rows := Rows("f.isf", fits)
	require.Len(t, rows, 3)
	assert.Equal(t, int32(1), rows[0].Angle)
	assert.Equal(t, int32(3), rows[1].QIndex)
	assert.Equal(t, 4.0, rows[1].Gamma)
	assert.Equal(t, "f.isf", rows[1].Entry)
	assert.Equal(t, int32(2), rows[2].Angle)
	assert.Equal(t, "dup", rows[2].AngleDesc)

	assert.Empty(t, Rows("x", nil))
}

func TestWriteParquet_RoundTrip(t *testing.T) {
	rows := []FitRow{
		{Entry: "a", Angle: 0, AngleDesc: "Radial Average", QIndex: 0, Q: 0.785, A: 1, Gamma: 2, Beta: 1.2, B: 0.1},
		{Entry: "b", Angle: 2, AngleDesc: "Angle 2", QIndex: 5, Q: 3.1, A: 0.5, Gamma: 20, Beta: 0.7, B: -0.01},
	}
	p := filepath.Join(t.TempDir(), "fits.parquet")
	require.NoError(t, WriteParquet(p, rows))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	got, err := ReadParquet(data)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}
