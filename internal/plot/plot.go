package plot

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	xfont "golang.org/x/image/font"
	"gonum.org/v1/gonum/floats"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/John-Robertt/ddmfit/internal/infra/fsx"
	"github.com/John-Robertt/ddmfit/internal/infra/imgx"
)

// Series 是一个 wavevector 在某个角度分区上的原始数据（以及可选的拟合曲线）。
type Series struct {
	Index int
	Q     float64
	Y     []float64 // 与 Figure.Lags 对齐
	Fit   []float64 // 与 Figure.CurveTaus 对齐；nil 表示没有拟合结果
}

// Panel 对应一个角度分区。
type Panel struct {
	Title  string
	Series []Series
}

// Figure 是渲染器的全部输入；渲染器只消费，不回写任何数据。
type Figure struct {
	Title     string
	Lags      []float64
	CurveTaus []float64
	Panels    []Panel
	// NColors 是色图等分数（= 本次绘制的 q 个数）。
	NColors int
	// Fitted 表示本次运行开启了拟合；此时数据点一律不连线。
	Fitted        bool
	ConnectPoints bool
}

// Renderer 把 Figure 写成图像文件。实现必须可被多个 goroutine 并发调用。
type Renderer interface {
	Render(path string, fig Figure) error
}

// PNGRenderer 基于 gonum/plot 输出 PNG：半对数 x 轴，多角度时两列网格共享坐标轴。
// 尺寸单位均为像素。
type PNGRenderer struct {
	// 单角度图尺寸。
	SingleW, SingleH int
	// 多角度时每个子图尺寸。
	PanelW, PanelH int
}

// NewPNGRenderer 返回默认尺寸的 PNGRenderer。
func NewPNGRenderer() PNGRenderer {
	return PNGRenderer{SingleW: 1000, SingleH: 700, PanelW: 600, PanelH: 500}
}

const (
	dpi     = 96
	legendW = 150
	titleH  = 40
)

// px 把像素数换算为 dpi 下的长度。
func px(n int) vg.Length {
	return vg.Length(n) * vg.Inch / dpi
}

func (r PNGRenderer) Render(path string, fig Figure) error {
	c, err := r.canvas(fig)
	if err != nil {
		return fmt.Errorf("plot: %s：%w", path, err)
	}
	return fsx.WriteAtomic(path, func(w io.Writer) error {
		png := vgimg.PngCanvas{Canvas: c}
		_, err := png.WriteTo(w)
		return err
	})
}

// Draw 渲染为内存图像（Render 去掉落盘的部分，便于测试）。
func (r PNGRenderer) Draw(fig Figure) (image.Image, error) {
	c, err := r.canvas(fig)
	if err != nil {
		return nil, err
	}
	return c.Image(), nil
}

// size 返回整张图的像素尺寸与网格形状。
func (r PNGRenderer) size(fig Figure) (w, h, cols, rows int) {
	cols, rows = 1, 1
	pw, ph := r.SingleW, r.SingleH
	if len(fig.Panels) > 1 {
		cols = 2
		rows = (len(fig.Panels) + 1) / 2
		pw, ph = r.PanelW, r.PanelH
	}
	h = rows * ph
	if fig.Title != "" {
		h += titleH
	}
	return cols*pw + legendW, h, cols, rows
}

func (r PNGRenderer) canvas(fig Figure) (*vgimg.Canvas, error) {
	if len(fig.Panels) == 0 {
		return nil, fmt.Errorf("没有可绘制的角度分区")
	}
	w, h, cols, rows := r.size(fig)
	c := vgimg.NewWith(vgimg.UseWH(px(w), px(h)), vgimg.UseDPI(dpi))
	dc := draw.New(c)

	top := 0
	if fig.Title != "" {
		top = titleH
		drawTitle(dc, fig.Title, px(w-legendW), px(h))
	}
	area := draw.Crop(dc, 0, -px(legendW), 0, -px(top))
	legendArea := draw.Crop(dc, px(w-legendW), 0, 0, -px(top))

	ax := computeAxes(fig)
	grid := make([][]*gplot.Plot, rows)
	for j := range grid {
		grid[j] = make([]*gplot.Plot, cols)
	}
	multi := len(fig.Panels) > 1
	for i, p := range fig.Panels {
		col, row := i%cols, i/cols
		// 只有最底行画 x 轴标题，只有左列画 y 轴标题。
		showX := !multi || i+cols >= len(fig.Panels)
		showY := !multi || col == 0
		pl, err := panelPlot(fig, p, ax, showX, showY)
		if err != nil {
			return nil, fmt.Errorf("%s：%w", p.Title, err)
		}
		grid[row][col] = pl
	}

	if multi {
		tiles := draw.Tiles{
			Rows:      rows,
			Cols:      cols,
			PadX:      vg.Millimeter,
			PadY:      vg.Millimeter,
			PadTop:    vg.Points(2),
			PadBottom: vg.Points(2),
			PadLeft:   vg.Points(2),
			PadRight:  vg.Points(2),
		}
		canvases := gplot.Align(grid, tiles, area)
		for j := range grid {
			for i, pl := range grid[j] {
				if pl != nil {
					pl.Draw(canvases[j][i])
				}
			}
		}
	} else {
		grid[0][0].Draw(area)
	}

	if err := drawLegend(legendArea, fig); err != nil {
		return nil, err
	}
	return c, nil
}

func drawTitle(dc draw.Canvas, title string, width, height vg.Length) {
	sty := gplot.New().Title.TextStyle
	sty.Font.Size = vg.Points(14)
	sty.Font.Weight = xfont.WeightBold
	sty.XAlign = draw.XCenter
	sty.YAlign = draw.YTop
	dc.FillText(sty, vg.Point{X: width / 2, Y: height - vg.Points(6)}, title)
}

type axes struct {
	logX0, logX1 float64
	y0, y1       float64
}

// computeAxes 求所有子图共享的坐标范围（x 为正 lag 的 log10 范围，按整十进制取整；
// y 为全部有限值范围 + 5% 边距）。
func computeAxes(fig Figure) axes {
	xs := positive(fig.Lags)
	xs = append(xs, positive(fig.CurveTaus)...)
	a := axes{logX0: -1, logX1: 1, y0: 0, y1: 1}
	if len(xs) > 0 {
		a.logX0 = math.Floor(math.Log10(floats.Min(xs)))
		a.logX1 = math.Ceil(math.Log10(floats.Max(xs)))
		if a.logX1 <= a.logX0 {
			a.logX1 = a.logX0 + 1
		}
	}

	var ys []float64
	for _, p := range fig.Panels {
		for _, s := range p.Series {
			ys = appendFinite(ys, s.Y)
			ys = appendFinite(ys, s.Fit)
		}
	}
	if len(ys) > 0 {
		lo, hi := floats.Min(ys), floats.Max(ys)
		pad := 0.05 * (hi - lo)
		if pad == 0 {
			pad = math.Max(math.Abs(hi)*0.05, 0.5)
		}
		a.y0, a.y1 = lo-pad, hi+pad
	}
	return a
}

func panelPlot(fig Figure, p Panel, ax axes, showX, showY bool) (*gplot.Plot, error) {
	pl := gplot.New()
	pl.Title.Text = p.Title
	pl.X.Scale = gplot.LogScale{}
	pl.X.Tick.Marker = gplot.LogTicks{}
	if showX {
		pl.X.Label.Text = "Lag time, τ [s]"
	}
	if showY {
		pl.Y.Label.Text = "I(q, τ) [a. u.]"
	}
	pl.Add(plotter.NewGrid())

	for _, s := range p.Series {
		ps, err := seriesPlotters(fig, s)
		if err != nil {
			return nil, err
		}
		pl.Add(ps...)
	}

	// Add 会按数据扩展坐标范围；共享坐标轴在最后统一覆盖。
	pl.X.Min, pl.X.Max = math.Pow(10, ax.logX0), math.Pow(10, ax.logX1)
	pl.Y.Min, pl.Y.Max = ax.y0, ax.y1
	return pl, nil
}

// seriesPlotters 返回一个 series 的散点、可选连线与拟合曲线（按此顺序）。
func seriesPlotters(fig Figure, s Series) ([]gplot.Plotter, error) {
	c := imgx.JetN(s.Index, fig.NColors)
	var out []gplot.Plotter

	pts := xyPoints(fig.Lags, s.Y)
	if len(pts) > 0 {
		sc, err := scatter(pts, c)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
		if fig.ConnectPoints && !fig.Fitted && len(pts) > 1 {
			l, err := plotter.NewLine(pts)
			if err != nil {
				return nil, err
			}
			l.LineStyle.Color = c
			l.LineStyle.Width = vg.Points(0.75)
			out = append(out, l)
		}
	}

	if curve := xyPoints(fig.CurveTaus, s.Fit); len(curve) > 1 {
		l, err := plotter.NewLine(curve)
		if err != nil {
			return nil, err
		}
		l.LineStyle.Color = c
		l.LineStyle.Width = vg.Points(1)
		out = append(out, l)
	}
	return out, nil
}

func scatter(pts plotter.XYs, c color.Color) (*plotter.Scatter, error) {
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle.Color = c
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(2)
	return sc, nil
}

// drawLegend 以第一个子图的 series 为准列出 q 值。
func drawLegend(dc draw.Canvas, fig Figure) error {
	if len(fig.Panels[0].Series) == 0 {
		return nil
	}
	lg := gplot.New().Legend
	lg.Top = true
	lg.Left = true
	lg.XOffs = vg.Points(6)
	lg.YOffs = -vg.Points(24)
	for _, s := range fig.Panels[0].Series {
		sc, err := scatter(plotter.XYs{{X: 1, Y: 1}}, imgx.JetN(s.Index, fig.NColors))
		if err != nil {
			return err
		}
		lg.Add(fmt.Sprintf("q=%.2f", s.Q), sc)
	}
	lg.Draw(dc)
	return nil
}

// xyPoints 按下标配对 xs/ys，丢弃对数轴上不可画的点（x<=0 或任一坐标非有限）。
func xyPoints(xs, ys []float64) plotter.XYs {
	n := min(len(xs), len(ys))
	out := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		x, y := xs[i], ys[i]
		if !(x > 0) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		out = append(out, plotter.XY{X: x, Y: y})
	}
	return out
}

func positive(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if v > 0 && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func appendFinite(dst, xs []float64) []float64 {
	for _, v := range xs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			dst = append(dst, v)
		}
	}
	return dst
}
