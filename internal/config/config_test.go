package config

import (
	"os"
	"path/filepath"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cwd := t.TempDir()

	eff, err := Load(cwd, "", Layer{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Input != DefaultInput || eff.Mode != "individual" || eff.MaxQ != 20 || eff.Angle != NoAngle {
		t.Fatalf("默认值不符合预期：%+v", eff)
	}
	if eff.Model != "generic_exp" || eff.Fit || eff.Plots || eff.Workers != 0 {
		t.Fatalf("默认值不符合预期：%+v", eff)
	}
	if eff.ConfigPath != "" {
		t.Fatalf("不应读取配置文件：%q", eff.ConfigPath)
	}
}

func TestLoad_ExplicitConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := Load(cwd, "nope.yaml", Layer{})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoad_PrecedenceFileEnvCLI(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("input: \"data/*.isf\"\nmode: tiles\nfit: true\nmax_q: 5\nprocesses: 3\n"))

	// 文件层生效。
	eff, err := Load(cwd, "", Layer{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Input != "data/*.isf" || eff.Mode != "tiles" || !eff.Fit || eff.MaxQ != 5 || eff.Workers != 3 {
		t.Fatalf("文件配置未生效：%+v", eff)
	}
	if eff.ConfigPath != filepath.Join(cwd, FileName) {
		t.Fatalf("ConfigPath 不符合预期：%q", eff.ConfigPath)
	}

	// 环境变量覆盖文件。
	t.Setenv("DDMFIT_MODE", "episodes")
	t.Setenv("DDMFIT_MAX_Q", "7")
	eff, err = Load(cwd, "", Layer{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Mode != "episodes" || eff.MaxQ != 7 || !eff.Fit {
		t.Fatalf("环境变量未覆盖：%+v", eff)
	}

	// CLI 显式 flag 覆盖一切（包括 --fit=false）。
	eff, err = Load(cwd, "", Layer{Fit: ptr(false), Mode: ptr("individual")})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Fit || eff.Mode != "individual" || eff.MaxQ != 7 {
		t.Fatalf("CLI 未覆盖：%+v", eff)
	}
}

func TestLoad_ExplicitConfigPathRelativeToCwd(t *testing.T) {
	cwd := t.TempDir()
	if err := os.MkdirAll(filepath.Join(cwd, "conf"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeFile(t, filepath.Join(cwd, "conf", "run.yaml"), []byte("plots: true\nconnect_points: true\nparquet: fits.parquet\nreport: run.json\n"))

	eff, err := Load(cwd, "conf/run.yaml", Layer{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !eff.Plots || !eff.ConnectPoints || eff.Parquet != "fits.parquet" || eff.Report != "run.json" {
		t.Fatalf("配置未生效：%+v", eff)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		file string
		cli  Layer
	}{
		{name: "yaml 语法错误", file: "mode: [\n"},
		{name: "未知字段", file: "workers: 4\n"},
		{name: "mode", cli: Layer{Mode: ptr("both")}},
		{name: "model", cli: Layer{Model: ptr("nope")}},
		{name: "max_q", cli: Layer{MaxQ: ptr(0)}},
		{name: "angle", cli: Layer{Angle: ptr(-2)}},
		{name: "processes", cli: Layer{Processes: ptr(-1)}},
		{name: "log_level", cli: Layer{LogLevel: ptr("loud")}},
		{name: "input", cli: Layer{Input: ptr("  ")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cwd := t.TempDir()
			if tc.file != "" {
				writeFile(t, filepath.Join(cwd, FileName), []byte(tc.file))
			}
			_, err := Load(cwd, "", tc.cli)
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
			}
		})
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("DDMFIT_PROCESSES", "many")
	_, err := Load(t.TempDir(), "", Layer{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoad_WorkersClamped(t *testing.T) {
	eff, err := Load(t.TempDir(), "", Layer{Processes: ptr(10000)})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Workers != MaxWorkers {
		t.Fatalf("期望截断为 %d，实际 %d", MaxWorkers, eff.Workers)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}
