package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

const (
	ErrCodeNoInput       = "no_input"
	ErrCodeNoValidData   = "no_valid_data"
	ErrCodeParseFailed   = "parse_failed"
	ErrCodeIOFailed      = "io_failed"
	ErrCodeAngleMissing  = "angle_missing"
	ErrCodeProcessFailed = "process_failed"
	ErrCodePanic         = "panic"
	ErrCodeExportFailed  = "export_failed"
	ErrCodeConfigInvalid = "config_invalid"
)

// RunReport 是对外稳定输出（stdout JSON）的结构。
type RunReport struct {
	Input     string `json:"input"`
	Mode      string `json:"mode"`
	OutputDir string `json:"output_dir"`
	Fit       bool   `json:"fit"`
	Model     string `json:"model"`
	Workers   int    `json:"workers"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Entries   int `json:"entries"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`

	// 吞吐统计只覆盖 worker pool 阶段，且按成功条目计算。
	ElapsedSec     float64 `json:"elapsed_sec"`
	EntriesPerSec  float64 `json:"entries_per_sec"`
	SecondsPerItem float64 `json:"seconds_per_entry"`
}

type ItemResult struct {
	ID      string   `json:"id"`
	Sources []string `json:"sources"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Angles  int      `json:"angles"`
	Fits    int      `json:"fits"`
	Outputs []string `json:"outputs"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 稳定排序：按 id 字典序；id=="" 的合成条目排在最后
// 3) summary 的计数由 items 计算得出（吞吐字段由调用方填写，这里保留）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].ID
		b := r.Items[j].ID
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	s := r.Summary
	s.Entries, s.Processed, s.Failed, s.Skipped = 0, 0, 0, 0
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
			s.Entries++
		case StatusFailed:
			s.Failed++
			if it.ID != "" {
				s.Entries++
			}
		case StatusSkipped:
			s.Skipped++
		}
	}
	r.Summary = s
}

// SetThroughput 按成功条目数计算吞吐；分母为 0 时对应字段为 0。
func (r *RunReport) SetThroughput(successes int, elapsed time.Duration) {
	sec := elapsed.Seconds()
	r.Summary.ElapsedSec = sec
	r.Summary.EntriesPerSec = 0
	r.Summary.SecondsPerItem = 0
	if sec > 0 {
		r.Summary.EntriesPerSec = float64(successes) / sec
	}
	if successes > 0 {
		r.Summary.SecondsPerItem = sec / float64(successes)
	}
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
