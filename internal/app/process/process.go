package process

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/John-Robertt/ddmfit/internal/domain"
	"github.com/John-Robertt/ddmfit/internal/fit"
	"github.com/John-Robertt/ddmfit/internal/infra/logx"
	"github.com/John-Robertt/ddmfit/internal/paramfile"
	"github.com/John-Robertt/ddmfit/internal/plot"
)

// DefaultMaxQ 是每个角度分区默认处理的 wavevector 个数上限。
const DefaultMaxQ = 20

// Options 是所有条目共享的处理参数（只读）。
type Options struct {
	MaxQ          int
	Fit           bool
	Model         fit.Model
	Plots         bool
	ConnectPoints bool
}

// Outcome 是单个条目的处理结果。
type Outcome struct {
	EntryID string
	// Fits 只包含至少有一个成功拟合的角度分区。
	Fits []domain.AngleFits
	ParamPath string
	PlotPath  string
}

// FitCount 返回全部角度的成功拟合数。
func (o Outcome) FitCount() int {
	n := 0
	for _, a := range o.Fits {
		n += len(a.Results)
	}
	return n
}

// Outputs 返回实际写出的文件路径。
func (o Outcome) Outputs() []string {
	out := make([]string, 0, 2)
	if o.ParamPath != "" {
		out = append(out, o.ParamPath)
	}
	if o.PlotPath != "" {
		out = append(out, o.PlotPath)
	}
	return out
}

var ErrEmptyEntry = errors.New("条目没有可处理的数据")

// ProcessEntry 对一个条目逐角度拟合前 min(MaxQ, L) 个 wavevector，
// 拟合有结果时写参数文件，Plots 开启时交给 renderer 出图。
//
// 单列拟合失败只会让该列缺席；函数本身只在 I/O 失败、ctx 取消或条目为空时返回错误。
func ProcessEntry(ctx context.Context, e domain.DataEntry, out domain.OutputPlan, opts Options, r plot.Renderer, log *zap.Logger) (Outcome, error) {
	log = logx.Or(log)
	res := Outcome{EntryID: e.ID}
	if len(e.Angles) == 0 || len(e.Scales) == 0 || len(e.Lags) == 0 {
		return res, fmt.Errorf("%w：%s", ErrEmptyEntry, e.ID)
	}
	if opts.Model.Name == "" {
		opts.Model = fit.GenericExp
	}
	maxQ := opts.MaxQ
	if maxQ <= 0 {
		maxQ = DefaultMaxQ
	}

	q := fit.Q(e.Scales)
	n := min(maxQ, len(q))
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	var curveTaus []float64
	if lo, hi, ok := fit.PositiveRange(e.Lags); ok && opts.Plots && opts.Fit {
		curveTaus = fit.LogSpace(lo, hi, fit.CurveSamples)
	}

	elog := log.With(zap.String("entry", e.ID))
	fig := plot.Figure{
		Lags:          e.Lags,
		CurveTaus:     curveTaus,
		NColors:       n,
		Fitted:        opts.Fit,
		ConnectPoints: opts.ConnectPoints,
	}
	if opts.Fit && len(e.Angles) > 1 {
		fig.Title = fmt.Sprintf("Fitted Model: %s", opts.Model.Name)
	}

	for k, sec := range e.Angles {
		var results []domain.FitResult
		if opts.Fit {
			results = fit.BatchFit(ctx, opts.Model, e.Lags, q, sec, indices, elog)
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if len(results) > 0 {
				res.Fits = append(res.Fits, domain.AngleFits{Angle: angleIndex(e, k), Desc: sec.Desc, Results: results})
			}
		}
		if opts.Plots {
			fig.Panels = append(fig.Panels, panel(sec, q, indices, results, curveTaus, opts.Model))
		}
	}

	if opts.Fit && len(res.Fits) > 0 {
		p := out.ParamPath()
		if err := paramfile.Write(p, opts.Model, res.Fits); err != nil {
			return res, fmt.Errorf("写入参数文件失败：%w", err)
		}
		res.ParamPath = p
	}

	if opts.Plots && r != nil {
		p := out.PlotPath()
		if err := r.Render(p, fig); err != nil {
			return res, fmt.Errorf("绘图失败：%w", err)
		}
		res.PlotPath = p
	}
	return res, nil
}

// angleIndex 把条目内的分区位置换算回源文件中的角度下标。
func angleIndex(e domain.DataEntry, k int) int {
	if e.Meta.HasSelectedAngle {
		return e.Meta.SelectedAngle
	}
	return k
}

func panel(sec domain.AngleSection, q []float64, indices []int, results []domain.FitResult, taus []float64, m fit.Model) plot.Panel {
	byIndex := make(map[int]domain.FitParams, len(results))
	for _, r := range results {
		byIndex[r.Index] = r.Params
	}
	p := plot.Panel{Title: sec.Desc, Series: make([]plot.Series, 0, len(indices))}
	for _, i := range indices {
		s := plot.Series{Index: i, Q: q[i], Y: sec.Column(i)}
		if params, ok := byIndex[i]; ok && len(taus) > 0 {
			s.Fit = m.Curve(taus, params.Slice())
		}
		p.Series = append(p.Series, s)
	}
	return p
}
