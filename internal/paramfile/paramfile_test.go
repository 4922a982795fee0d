package paramfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/ddmfit/internal/domain"
	"github.com/John-Robertt/ddmfit/internal/fit"
)

func sample() []domain.AngleFits {
	return []domain.AngleFits{
		{
			Desc: "Angle 0: Center 45.0°, Range: 0.0° to 90.0°",
			Results: []domain.FitResult{
				{Index: 0, Q: 0.785398, Params: domain.FitParams{A: 1, Gamma: 2, Beta: 1.2, B: 0.1}},
				{Index: 2, Q: 12.5, Params: domain.FitParams{A: 0.12345, Gamma: 150.5, Beta: 0.75, B: -0.0004}},
			},
		},
		{Desc: "Angle 1: Center 135.0°, Range: 90.0° to 180.0°"},
	}
}

func TestEncode_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, fit.GenericExp, sample()))

	want := "Fitting model: $I(q,\\tau) = A(1-e^{-(\\Gamma\\tau)^{\\beta}}) + B$\n" +
		"\n" +
		"Angle 0: Center 45.0°, Range: 0.0° to 90.0°\n" +
		"q (2π/λ)   A          Gamma      beta       B         \n" +
		strings.Repeat("-", 55) + "\n" +
		"0.79       1.000      2.000      1.200      0.100     \n" +
		"12.50      0.123      150.500    0.750      -0.000    \n" +
		"\n\n" +
		"Angle 1: Center 135.0°, Range: 90.0° to 180.0°\n" +
		"q (2π/λ)   A          Gamma      beta       B         \n" +
		strings.Repeat("-", 55) + "\n" +
		"\n\n"
	assert.Equal(t, want, buf.String())
}

func TestWrite_CreatesDirAndFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", "x_fit_generic_exp.txt")
	require.NoError(t, Write(p, fit.GenericExp, sample()[:1]))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "Fitting model: "))
	assert.Contains(t, string(b), "0.79       1.000")
}
