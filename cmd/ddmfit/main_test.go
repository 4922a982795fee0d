package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/ddmfit/internal/config"
	"github.com/John-Robertt/ddmfit/internal/domain"
)

func TestParseRunArgs_OnlyExplicitFlags(t *testing.T) {
	ra, err := parseRunArgs([]string{"--input", "data/*.isf", "--fit=false", "-max-q=5", "--config", "x.yaml"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	l := ra.Layer
	if l.Input == nil || *l.Input != "data/*.isf" {
		t.Fatalf("input 未设置：%+v", l)
	}
	if l.Fit == nil || *l.Fit {
		t.Fatalf("--fit=false 应显式设置为 false：%+v", l.Fit)
	}
	if l.MaxQ == nil || *l.MaxQ != 5 {
		t.Fatalf("max-q 未设置：%+v", l.MaxQ)
	}
	if l.Mode != nil || l.Plots != nil || l.Processes != nil || l.Angle != nil {
		t.Fatalf("未出现的 flag 不应设置：%+v", l)
	}
	if ra.ConfigPath != "x.yaml" {
		t.Fatalf("期望 config=x.yaml，实际 %q", ra.ConfigPath)
	}
}

func TestParseRunArgs_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"--apply"},
		{"--max-q", "many"},
		{"extra"},
		{"--angle", "-3"},
	} {
		if _, err := parseRunArgs(args); err == nil {
			t.Fatalf("%v：期望错误", args)
		}
	}
}

func TestEmitReport_NoTTYWritesSingleJSON(t *testing.T) {
	rr := domain.RunReport{Items: []domain.ItemResult{{ID: "a", Status: domain.StatusProcessed, Sources: []string{}, Outputs: []string{}}}}
	rr.Finalize()

	var stdout, stderr bytes.Buffer
	emitReport(&stdout, &stderr, rr, false)

	var got domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stdout 不是合法 JSON：%v\n%q", err, stdout.String())
	}
	if got.Summary.Processed != 1 {
		t.Fatalf("summary 不符合预期：%+v", got.Summary)
	}
	if !strings.Contains(stderr.String(), "完成：entries=1 processed=1") {
		t.Fatalf("stderr 缺少摘要：%q", stderr.String())
	}
	if exitCode(rr) != 0 {
		t.Fatalf("期望退出码 0")
	}
}

func TestEmitReport_TTYSummaryAndFailures(t *testing.T) {
	rr := domain.RunReport{Items: []domain.ItemResult{
		{ID: "a", Status: domain.StatusFailed, ErrorCode: domain.ErrCodeProcessFailed, ErrorMsg: "disk full"},
		{Status: domain.StatusFailed, ErrorCode: domain.ErrCodeNoValidData, ErrorMsg: "没有可处理的数据"},
	}}
	rr.Finalize()

	var stdout, stderr bytes.Buffer
	emitReport(&stdout, &stderr, rr, true)
	if strings.HasPrefix(strings.TrimSpace(stdout.String()), "{") {
		t.Fatalf("TTY 下不应输出 JSON：%q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "a process_failed: disk full") || !strings.Contains(stderr.String(), "<run> no_valid_data") {
		t.Fatalf("失败明细不符合预期：%q", stderr.String())
	}
	if exitCode(rr) != 1 {
		t.Fatalf("期望退出码 1")
	}
}

func TestReportForConfigError(t *testing.T) {
	rr := reportForConfigError(&config.Error{Code: config.ErrCodeNotFound, Path: "/x/ddmfit.yaml"})
	if len(rr.Items) != 1 || rr.Items[0].ErrorCode != config.ErrCodeNotFound || rr.Summary.Failed != 1 {
		t.Fatalf("报告不符合预期：%+v", rr)
	}
	rr = reportForConfigError(errors.New("x"))
	if rr.Items[0].ErrorCode != domain.ErrCodeConfigInvalid {
		t.Fatalf("未知错误应归为 config_invalid：%+v", rr.Items[0])
	}
}

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// 锁定对外契约：stdout 非 TTY 时只能输出一个 RunReport JSON。
	root := t.TempDir()
	in := filepath.Join(root, "episode1-0_scale8-0.isf")
	body := "8 16\n0.1 1 10 100\n1 0.8 0.5 0.2\n1 0.7 0.3 0.1\n"
	if err := os.WriteFile(in, []byte(body), 0o644); err != nil {
		t.Fatalf("写入数据失败：%v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	repoRoot := filepath.Clean(filepath.Join(wd, "..", ".."))

	cmd := exec.Command("go", "run", "./cmd/ddmfit", "run", "--input", in, "--output-dir", filepath.Join(root, "out"))
	cmd.Dir = repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("命令执行失败：%v\nstderr=%s\nstdout=%s", err, stderr.String(), stdout.String())
	}

	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if rr.Summary.Processed != 1 || len(rr.Items) != 1 || rr.Items[0].ID != in {
		t.Fatalf("报告不符合预期：%+v", rr)
	}
	if strings.Contains(stdout.String(), "配置（生效）") || strings.Contains(stdout.String(), "进度:") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "完成：entries=1") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}
}

func TestWriteReportFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "reports", "run.json")
	rr := domain.RunReport{Input: "x/*.isf", Items: []domain.ItemResult{}}
	rr.Finalize()
	if err := writeReportFile(p, rr); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("读取 report 失败：%v", err)
	}
	var got domain.RunReport
	if err := json.Unmarshal(b, &got); err != nil || got.Input != "x/*.isf" {
		t.Fatalf("report 内容不符合预期：%v %q", err, string(b))
	}
}
