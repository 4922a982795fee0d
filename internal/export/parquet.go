package export

import (
	"bytes"
	"io"

	parquet "github.com/parquet-go/parquet-go"

	"github.com/John-Robertt/ddmfit/internal/domain"
	"github.com/John-Robertt/ddmfit/internal/infra/fsx"
)

// FitRow 是拟合结果表的一行：一个 (条目, 角度, wavevector) 的参数。
type FitRow struct {
	Entry     string  `parquet:"entry" json:"entry"`
	Angle     int32   `parquet:"angle" json:"angle"`
	AngleDesc string  `parquet:"angle_desc" json:"angle_desc"`
	QIndex    int32   `parquet:"q_index" json:"q_index"`
	Q         float64 `parquet:"q" json:"q"`
	A         float64 `parquet:"a" json:"A"`
	Gamma     float64 `parquet:"gamma" json:"Gamma"`
	Beta      float64 `parquet:"beta" json:"beta"`
	B         float64 `parquet:"b" json:"B"`
}

// Rows 把一个条目的拟合结果展开成表行。
func Rows(entryID string, fits []domain.AngleFits) []FitRow {
	var rows []FitRow
	for _, a := range fits {
		for _, r := range a.Results {
			rows = append(rows, FitRow{
				Entry:     entryID,
				Angle:     int32(a.Angle),
				AngleDesc: a.Desc,
				QIndex:    int32(r.Index),
				Q:         r.Q,
				A:         r.Params.A,
				Gamma:     r.Params.Gamma,
				Beta:      r.Params.Beta,
				B:         r.Params.B,
			})
		}
	}
	return rows
}

// Encode 把 rows 编码为一个 Snappy 压缩的 Parquet 文件。
func Encode(w io.Writer, rows []FitRow) error {
	pw := parquet.NewGenericWriter[FitRow](w, parquet.Compression(&parquet.Snappy))
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			_ = pw.Close()
			return err
		}
	}
	return pw.Close()
}

// WriteParquet 原子写入 Parquet 表到 path。
func WriteParquet(path string, rows []FitRow) error {
	return fsx.WriteAtomic(path, func(w io.Writer) error {
		return Encode(w, rows)
	})
}

// ReadParquet 读回全部行（用于校验与下游工具）。
func ReadParquet(data []byte) ([]FitRow, error) {
	gr := parquet.NewGenericReader[FitRow](bytes.NewReader(data))
	defer gr.Close()

	out := make([]FitRow, 0, 256)
	batch := make([]FitRow, 256)
	for {
		n, err := gr.Read(batch)
		if n > 0 {
			out = append(out, batch[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
