package fit

import (
	"math"
	"sort"
)

// DefaultModel 是唯一内置模型的名字（CLI --model 的默认值）。
const DefaultModel = "generic_exp"

// expCutoff 以上 exp(-x) 直接视为 0，避免溢出；该区间的贡献可以忽略。
const expCutoff = 700.0

// Model 描述一个可拟合的衰减模型。
//
// 约束：
// - Eval/Jac 必须是纯函数（会被多个 goroutine 并发调用）
// - Params 的顺序就是参数向量的顺序，也是参数文件的列顺序
type Model struct {
	Name     string
	Equation string
	Params   []string

	Eval func(tau float64, p []float64) float64
	// Jac 把 ∂f/∂p_k 写入 dst（len(dst) == len(Params)）。
	Jac func(tau float64, p []float64, dst []float64)
	// Guess 由观测数据推导初值与边界。
	Guess func(lags, y []float64) ([]float64, Bounds)
}

// GenericExp: I(q,τ) = A·(1 − exp(−(Γτ)^β)) + B
var GenericExp = Model{
	Name:     DefaultModel,
	Equation: `$I(q,\tau) = A(1-e^{-(\Gamma\tau)^{\beta}}) + B$`,
	Params:   []string{"A", "Gamma", "beta", "B"},
	Eval:     genericExpEval,
	Jac:      genericExpJac,
	Guess:    genericExpGuess,
}

var registry = map[string]Model{
	GenericExp.Name: GenericExp,
}

// Lookup 按名字查找模型。
func Lookup(name string) (Model, bool) {
	m, ok := registry[name]
	return m, ok
}

// Names 返回全部已注册模型名（已排序）。
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Curve 在给定 lag 网格上求模型值（用于绘制拟合曲线）。
func (m Model) Curve(taus []float64, p []float64) []float64 {
	out := make([]float64, len(taus))
	for i, t := range taus {
		out[i] = m.Eval(t, p)
	}
	return out
}

// stretchedExp 返回 x = (Γτ)^β 与截断后的 exp(-x)。
// x 非有限（例如负 τ 的非整数次幂）时同样按截断处理。
func stretchedExp(gamma, beta, tau float64) (x, e float64) {
	x = math.Pow(gamma*tau, beta)
	if x < expCutoff {
		e = math.Exp(-x)
	}
	return x, e
}

func genericExpEval(tau float64, p []float64) float64 {
	a, gamma, beta, b := p[0], p[1], p[2], p[3]
	_, e := stretchedExp(gamma, beta, tau)
	return a*(1-e) + b
}

func genericExpJac(tau float64, p []float64, dst []float64) {
	a, gamma, beta := p[0], p[1], p[2]
	x, e := stretchedExp(gamma, beta, tau)

	dst[0] = 1 - e
	dst[1] = 0
	dst[2] = 0
	dst[3] = 1
	if e == 0 {
		return
	}
	if gamma != 0 {
		dst[1] = a * e * beta * x / gamma
	}
	if gt := gamma * tau; gt > 0 {
		dst[2] = a * e * x * math.Log(gt)
	}
}
