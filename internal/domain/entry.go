package domain

// Unknown 是文件名元数据的哨兵值：未匹配到，或在平均时被折叠掉。
const Unknown = -1

// RadialAverage 是无角度标记文件唯一 section 的固定描述。
const RadialAverage = "Radial Average"

// ScaleAxis 是文件第 1 行的尺度序列（长度 L），q = 2π / scale。
type ScaleAxis []float64

// LagAxis 是文件第 2 行的 lag time 序列（长度 T）。
type LagAxis []float64

// AngleSection 是一个角度分区：描述 + L×T 矩阵（行 = scale 下标，列 = lag 下标）。
type AngleSection struct {
	Desc string
	Data [][]float64
}

// Shape 返回 (rows, cols)；空矩阵返回 (0, 0)。
func (s AngleSection) Shape() (int, int) {
	if len(s.Data) == 0 {
		return 0, 0
	}
	return len(s.Data), len(s.Data[0])
}

// Column 取出第 q 行（某个 wavevector 在所有 lag 上的强度）。
// 文件按 L×T 存储，因此 "列" 在这里对应矩阵的一行。
func (s AngleSection) Column(q int) []float64 {
	if q < 0 || q >= len(s.Data) {
		return nil
	}
	return s.Data[q]
}

// FileMeta 是从文件名解析出的 episode/window/scale/tile。
type FileMeta struct {
	Episode int `json:"episode"`
	Window  int `json:"window"`
	Scale   int `json:"scale"`
	Tile    int `json:"tile"`

	// SelectedAngle 仅在 HasSelectedAngle=true 时有意义（--angle）。
	SelectedAngle    int  `json:"selected_angle,omitempty"`
	HasSelectedAngle bool `json:"has_selected_angle,omitempty"`

	// Averaged 为空表示单文件条目；否则是平均模式名（tiles/episodes）。
	Averaged string `json:"averaged,omitempty"`
}

// UnknownMeta 返回全部字段为哨兵值的元数据。
func UnknownMeta() FileMeta {
	return FileMeta{Episode: Unknown, Window: Unknown, Scale: Unknown, Tile: Unknown}
}

// DataEntry 是下游处理的最小单元：一个文件，或一个平均后的分组。
//
// 不变量：
// - 构建完成后只读（并发 worker 之间共享同一份快照）
// - Angles 中每个矩阵的形状都等于 (len(Scales), len(Lags))
type DataEntry struct {
	// ID 对单文件条目是原始路径；对平均条目是合成标识（如 episode1_scale10_avg_tiles）。
	ID string
	// SourcePath 仅单文件条目非空。
	SourcePath string
	// Sources 是参与构建该条目的全部输入文件（已排序）。
	Sources []string

	Meta   FileMeta
	Scales ScaleAxis
	Lags   LagAxis
	Angles []AngleSection
}

// Skipped 描述加载阶段被整体跳过的输入文件。
type Skipped struct {
	Path string
	Code string
	Msg  string
}
