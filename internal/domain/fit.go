package domain

// FitParams 是拉伸指数模型的四个参数。
type FitParams struct {
	A     float64 `json:"A"`
	Gamma float64 `json:"Gamma"`
	Beta  float64 `json:"beta"`
	B     float64 `json:"B"`
}

// Slice 按模型参数顺序 (A, Gamma, beta, B) 展开。
func (p FitParams) Slice() []float64 {
	return []float64{p.A, p.Gamma, p.Beta, p.B}
}

// ParamsFromSlice 是 Slice 的逆操作；长度不足时缺失项为 0。
func ParamsFromSlice(v []float64) FitParams {
	var p FitParams
	dst := []*float64{&p.A, &p.Gamma, &p.Beta, &p.B}
	for i := range dst {
		if i < len(v) {
			*dst[i] = v[i]
		}
	}
	return p
}

// FitResult 是某个 (AngleSection, wavevector 下标) 的成功拟合结果。
// 拟合失败的下标不会出现（不存在带 NaN 的半成品记录）。
type FitResult struct {
	Index  int       `json:"index"`
	Q      float64   `json:"q"`
	Params FitParams `json:"params"`
}

// AngleFits 是一个角度分区的全部成功拟合。
// Angle 是该分区在源文件中的下标（--angle 选择时即所选下标）。
type AngleFits struct {
	Angle   int         `json:"angle"`
	Desc    string      `json:"desc"`
	Results []FitResult `json:"results"`
}
