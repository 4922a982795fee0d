package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrInconsistentBounds = errors.New("fit: 参数边界不一致")
	ErrNotConverged       = errors.New("fit: 未收敛")
	ErrNonFinite          = errors.New("fit: 残差出现非有限值")
	ErrNoData             = errors.New("fit: 没有可拟合的数据点")
)

const (
	lambdaInit = 1e-3
	lambdaMin  = 1e-12
	lambdaMax  = 1e16
	// diagFloor 防止某个参数的 Jacobian 列全为 0 时阻尼项失效。
	diagFloor = 1e-12
)

// Options 控制有界最小二乘的终止条件。
type Options struct {
	MaxEval int
	FTol    float64
	XTol    float64
	GTol    float64
}

// DefaultOptions 返回 n 个参数时的默认终止条件。
func DefaultOptions(n int) Options {
	return Options{
		MaxEval: 100 * (n + 1),
		FTol:    1e-8,
		XTol:    1e-8,
		GTol:    1e-8,
	}
}

// Result 是一次成功拟合的输出。
type Result struct {
	Params []float64
	Cost   float64 // 0.5·Σr²
	Evals  int
	Iters  int
}

// LeastSquares 用投影 Levenberg–Marquardt 在盒约束内最小化 Σ(f(x_i; p) − y_i)²。
//
// 每次迭代解 (JᵀJ + λ·diag(JᵀJ))·δ = −Jᵀr，候选点投影回边界；
// 已贴边且梯度指向外侧的参数本轮冻结。终止条件与 trust-region 实现一致：
// ftol（代价相对下降）、xtol（步长相对大小）、gtol（投影梯度）。
func LeastSquares(m Model, x, y, p0 []float64, b Bounds, opt Options) (Result, error) {
	n := len(m.Params)
	if len(x) == 0 || len(x) != len(y) {
		return Result{}, fmt.Errorf("%w：x=%d y=%d", ErrNoData, len(x), len(y))
	}
	if len(p0) != n {
		return Result{}, fmt.Errorf("fit: 初值长度 %d 与模型参数 %d 不一致", len(p0), n)
	}
	if err := b.Validate(m.Params); err != nil {
		return Result{}, err
	}
	if opt.MaxEval <= 0 {
		opt = DefaultOptions(n)
	}

	p := append([]float64(nil), p0...)
	b.clamp(p)

	r := make([]float64, len(x))
	cost, ok := residuals(m, x, y, p, r)
	evals := 1
	if !ok {
		return Result{}, fmt.Errorf("%w：初值处", ErrNonFinite)
	}

	jac := mat.NewDense(len(x), n, nil)
	row := make([]float64, n)
	grad := make([]float64, n)
	free := make([]bool, n)
	hess := mat.NewSymDense(n, nil)
	lhs := mat.NewSymDense(n, nil)
	rhs := mat.NewVecDense(n, nil)
	step := mat.NewVecDense(n, nil)
	cand := make([]float64, n)
	rCand := make([]float64, len(x))
	delta := mat.NewVecDense(n, nil)
	jd := mat.NewVecDense(len(x), nil)

	lambda := lambdaInit
	for iter := 0; ; iter++ {
		if cost == 0 {
			return Result{Params: p, Cost: cost, Evals: evals, Iters: iter}, nil
		}

		for i, xi := range x {
			m.Jac(xi, p, row)
			jac.SetRow(i, row)
		}
		for k := 0; k < n; k++ {
			grad[k] = floats.Dot(mat.Col(nil, k, jac), r)
		}
		hess.SymOuterK(1, jac.T())

		// 投影梯度：贴边且梯度指向外侧的分量视为 0，同时冻结该参数。
		pgMax := 0.0
		for k := 0; k < n; k++ {
			atLo := p[k] <= b.Lo[k] && grad[k] > 0
			atHi := p[k] >= b.Hi[k] && grad[k] < 0
			free[k] = !(atLo || atHi)
			if free[k] {
				pgMax = math.Max(pgMax, math.Abs(grad[k]))
			}
		}
		if pgMax < opt.GTol {
			return Result{Params: p, Cost: cost, Evals: evals, Iters: iter}, nil
		}

		for {
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					v := 0.0
					switch {
					case !free[i] || !free[j]:
						if i == j {
							v = 1
						}
					case i == j:
						d := hess.At(i, i)
						v = d + lambda*math.Max(d, diagFloor)
					default:
						v = hess.At(i, j)
					}
					lhs.SetSym(i, j, v)
				}
				if free[i] {
					rhs.SetVec(i, -grad[i])
				} else {
					rhs.SetVec(i, 0)
				}
			}

			var chol mat.Cholesky
			solved := chol.Factorize(lhs) && chol.SolveVecTo(step, rhs) == nil
			if !solved {
				lambda *= 10
				if lambda > lambdaMax {
					return Result{}, fmt.Errorf("%w：法方程奇异", ErrNotConverged)
				}
				continue
			}

			for k := 0; k < n; k++ {
				cand[k] = p[k] + step.AtVec(k)
			}
			b.clamp(cand)
			stepNorm := floats.Distance(cand, p, 2)
			pNorm := floats.Norm(p, 2)

			if evals >= opt.MaxEval {
				return Result{}, fmt.Errorf("%w：超过最大函数求值次数 %d", ErrNotConverged, opt.MaxEval)
			}
			newCost, finite := residuals(m, x, y, cand, rCand)
			evals++

			if finite && newCost < cost {
				drop := cost - newCost
				ratio := drop / predicted(jac, grad, cand, p, delta, jd)
				copy(p, cand)
				copy(r, rCand)
				cost = newCost
				lambda = math.Max(lambda/10, lambdaMin)

				// ftol 只在线性模型预测可信（ratio > 0.25）时生效，避免大阻尼下的小步被误判为收敛。
				if (drop < opt.FTol*cost && ratio > 0.25) || stepNorm < opt.XTol*(opt.XTol+pNorm) {
					return Result{Params: p, Cost: cost, Evals: evals, Iters: iter + 1}, nil
				}
				break
			}

			// 被拒绝：步长已小到无意义时按 xtol 收敛，否则加大阻尼重试。
			if stepNorm < opt.XTol*(opt.XTol+pNorm) {
				return Result{Params: p, Cost: cost, Evals: evals, Iters: iter + 1}, nil
			}
			lambda *= 10
			if lambda > lambdaMax {
				return Result{}, fmt.Errorf("%w：阻尼系数发散", ErrNotConverged)
			}
		}
	}
}

// predicted 是线性化模型对投影后步长 d = cand − p 预测的代价下降：−gᵀd − ½‖Jd‖²。
func predicted(jac *mat.Dense, grad, cand, p []float64, d, jd *mat.VecDense) float64 {
	for k := range p {
		d.SetVec(k, cand[k]-p[k])
	}
	jd.MulVec(jac, d)
	return -floats.Dot(grad, d.RawVector().Data) - 0.5*mat.Dot(jd, jd)
}

// residuals 写入 r_i = f(x_i; p) − y_i，返回 0.5·Σr² 与是否全部有限。
func residuals(m Model, x, y, p, r []float64) (float64, bool) {
	for i, xi := range x {
		r[i] = m.Eval(xi, p) - y[i]
	}
	cost := 0.5 * floats.Dot(r, r)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return cost, false
	}
	return cost, true
}
