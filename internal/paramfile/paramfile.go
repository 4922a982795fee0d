package paramfile

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/John-Robertt/ddmfit/internal/domain"
	"github.com/John-Robertt/ddmfit/internal/fit"
	"github.com/John-Robertt/ddmfit/internal/infra/fsx"
)

const qHeader = "q (2π/λ)"

// Encode 按固定宽度文本格式写出全部角度的拟合参数：
//
//	Fitting model: <equation>
//
//	<angle desc>
//	q (2π/λ)   A          Gamma      beta       B
//	-------------------------------------------------------
//	0.79       1.000      2.000      1.200      0.100
//
// 每个角度块之后跟两个换行。
func Encode(w io.Writer, m fit.Model, angles []domain.AngleFits) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Fitting model: %s\n\n", m.Equation)

	names := make([]string, len(m.Params))
	for i, n := range m.Params {
		names[i] = fmt.Sprintf("%-10s", n)
	}
	header := fmt.Sprintf("%-10s %s\n", qHeader, strings.Join(names, " "))
	rule := strings.Repeat("-", 11+11*len(m.Params)) + "\n"

	for _, a := range angles {
		bw.WriteString(a.Desc)
		bw.WriteString("\n")
		bw.WriteString(header)
		bw.WriteString(rule)
		for _, r := range a.Results {
			vals := r.Params.Slice()
			fields := make([]string, 0, 1+len(m.Params))
			fields = append(fields, fmt.Sprintf("%-10.2f", r.Q))
			for i := range m.Params {
				fields = append(fields, fmt.Sprintf("%-10.3f", vals[i]))
			}
			bw.WriteString(strings.Join(fields, " "))
			bw.WriteString("\n")
		}
		bw.WriteString("\n\n")
	}
	return bw.Flush()
}

// Write 原子写入参数文件到 path（覆盖已有文件）。
func Write(path string, m fit.Model, angles []domain.AngleFits) error {
	return fsx.WriteAtomic(path, func(w io.Writer) error {
		return Encode(w, m, angles)
	})
}
