package fit

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// CurveSamples 是拟合曲线在对数网格上的默认采样点数。
const CurveSamples = 100

// LogSpace 返回 [lo, hi] 上 n 个对数等距点。
// lo/hi 非正或 n < 2 时返回 nil（对数轴上无定义）。
func LogSpace(lo, hi float64, n int) []float64 {
	if n < 2 || !(lo > 0) || !(hi > 0) || math.IsInf(hi, 0) {
		return nil
	}
	return floats.LogSpan(make([]float64, n), lo, hi)
}

// PositiveRange 返回 xs 中正数的最小值与最大值；没有正数时 ok=false。
func PositiveRange(xs []float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range xs {
		if v > 0 && !math.IsInf(v, 0) {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			ok = true
		}
	}
	return lo, hi, ok
}
