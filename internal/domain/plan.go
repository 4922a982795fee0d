package domain

// OutputPlan 是某个条目的输出路径规划（只描述路径；真正写入由 worker 完成）。
//
// Base 不含扩展名；同一次运行内所有条目的 Base 互不相同。
type OutputPlan struct {
	EntryID string
	Base    string
}

// ParamPath 是拟合参数文本文件路径。
func (p OutputPlan) ParamPath() string { return p.Base + ".txt" }

// PlotPath 是图像文件路径。
func (p OutputPlan) PlotPath() string { return p.Base + ".png" }
