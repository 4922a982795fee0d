package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// minAmplitude 以下认为振幅退化，Γ 初值回退为 1。
const minAmplitude = 1e-6

// Bounds 是参数的逐项上下界。
type Bounds struct {
	Lo []float64
	Hi []float64
}

// Validate 要求每个参数都满足 lo < hi（严格），且均为有限值。
// 常数列会得到 A 的退化区间 [0, 0]，在这里被拒绝。
func (b Bounds) Validate(names []string) error {
	if len(b.Lo) != len(b.Hi) {
		return fmt.Errorf("%w：上下界长度不一致（%d vs %d）", ErrInconsistentBounds, len(b.Lo), len(b.Hi))
	}
	for i := range b.Lo {
		lo, hi := b.Lo[i], b.Hi[i]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || !(lo < hi) {
			name := fmt.Sprintf("p%d", i)
			if i < len(names) {
				name = names[i]
			}
			return fmt.Errorf("%w：%s ∈ [%g, %g]", ErrInconsistentBounds, name, lo, hi)
		}
	}
	return nil
}

func (b Bounds) clamp(p []float64) {
	for i := range p {
		p[i] = math.Min(math.Max(p[i], b.Lo[i]), b.Hi[i])
	}
}

// genericExpGuess 由数据推导 (A, Γ, β, B) 初值与边界：
//
//	B0 = min(y)，A0 = max(y) − B0
//	Γ0 = 1 / τ_mid（τ_mid > 0 且 A0 > 1e-6），否则 1
//	β0 = 1
//
// 边界把搜索锚定在初值附近：A ∈ [0.5A0, 1.5A0]，Γ ∈ [0.1Γ0, 10Γ0]，
// β ∈ [0.5, 2]，B ∈ [B0 − 0.1, B0 + 0.1]。
func genericExpGuess(lags, y []float64) ([]float64, Bounds) {
	if len(y) == 0 || len(lags) == 0 {
		nan := math.NaN()
		return []float64{nan, nan, 1, nan}, Bounds{
			Lo: []float64{nan, nan, 0.5, nan},
			Hi: []float64{nan, nan, 2, nan},
		}
	}

	b0 := floats.Min(y)
	a0 := floats.Max(y) - b0

	gamma0 := 1.0
	if mid := lags[len(lags)/2]; mid > 0 && a0 > minAmplitude {
		gamma0 = 1 / mid
	}

	p0 := []float64{a0, gamma0, 1.0, b0}
	return p0, Bounds{
		Lo: []float64{a0 * 0.5, gamma0 * 0.1, 0.5, b0 - 0.1},
		Hi: []float64{a0 * 1.5, gamma0 * 10, 2.0, b0 + 0.1},
	}
}
