package fit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/John-Robertt/ddmfit/internal/domain"
	"github.com/John-Robertt/ddmfit/internal/infra/logx"
)

// Q 把尺度序列转换为 wavevector 模长 q = 2π / scale。
func Q(scales domain.ScaleAxis) []float64 {
	out := make([]float64, len(scales))
	for i, s := range scales {
		out[i] = 2 * math.Pi / s
	}
	return out
}

// FitColumn 对单个 wavevector 的强度序列做一次有界拟合。
func FitColumn(m Model, lags, y []float64) (domain.FitParams, error) {
	if len(y) != len(lags) {
		return domain.FitParams{}, fmt.Errorf("%w：lag=%d y=%d", ErrNoData, len(lags), len(y))
	}
	p0, bounds := m.Guess(lags, y)
	res, err := LeastSquares(m, lags, y, p0, bounds, DefaultOptions(len(m.Params)))
	if err != nil {
		return domain.FitParams{}, err
	}
	return domain.ParamsFromSlice(res.Params), nil
}

// BatchFit 对 section 中 indices 指定的每个 wavevector 独立拟合。
//
// - 单列失败只记一条 warning（q + 原因），不影响其他列
// - 返回顺序与 indices 一致；失败的下标直接缺席
// - ctx 取消后不再开始新的列
func BatchFit(ctx context.Context, m Model, lags domain.LagAxis, q []float64, sec domain.AngleSection, indices []int, log *zap.Logger) []domain.FitResult {
	log = logx.Or(log)
	out := make([]domain.FitResult, 0, len(indices))
	for _, i := range indices {
		if err := ctx.Err(); err != nil {
			log.Warn("拟合被取消", zap.String("section", sec.Desc), zap.Error(err))
			break
		}
		if i < 0 || i >= len(q) {
			log.Warn("跳过越界的 wavevector 下标", zap.Int("index", i), zap.Int("count", len(q)))
			continue
		}

		params, err := fitIndex(m, lags, sec, i)
		if err != nil {
			log.Warn("拟合失败，跳过该 q",
				zap.String("q", fmt.Sprintf("%.4f", q[i])),
				zap.Int("index", i),
				zap.String("section", sec.Desc),
				zap.Error(err),
			)
			continue
		}
		out = append(out, domain.FitResult{Index: i, Q: q[i], Params: params})
	}
	return out
}

// fitIndex 把单列的 panic 也降级为错误（数值代码里的越界/除零不应拖垮整个 batch）。
func fitIndex(m Model, lags domain.LagAxis, sec domain.AngleSection, i int) (p domain.FitParams, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("fit: panic：%v", v)
		}
	}()
	y := sec.Column(i)
	if y == nil {
		return domain.FitParams{}, errors.New("fit: section 中没有该 wavevector 的数据")
	}
	return FitColumn(m, lags, y)
}
