package imgx

import (
	"image/color"
	"math"
)

// Jet 是 matplotlib "jet" 色图在 t ∈ [0, 1] 上的取值。
func Jet(t float64) color.RGBA {
	if math.IsNaN(t) {
		t = 0
	}
	t = math.Min(math.Max(t, 0), 1)
	ch := func(center float64) uint8 {
		v := 1.5 - math.Abs(4*t-center)
		v = math.Min(math.Max(v, 0), 1)
		return uint8(math.Round(v * 255))
	}
	return color.RGBA{R: ch(3), G: ch(2), B: ch(1), A: 255}
}

// JetN 返回把 jet 色图等分为 n 份后的第 i 个颜色。
func JetN(i, n int) color.RGBA {
	if n <= 1 {
		return Jet(0)
	}
	return Jet(float64(i) / float64(n-1))
}
