package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/John-Robertt/ddmfit/internal/app/run"
	"github.com/John-Robertt/ddmfit/internal/config"
	"github.com/John-Robertt/ddmfit/internal/domain"
	"github.com/John-Robertt/ddmfit/internal/infra/fsx"
	"github.com/John-Robertt/ddmfit/internal/infra/logx"
	"github.com/John-Robertt/ddmfit/internal/plot"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.Load(cwd, ra.ConfigPath, ra.Layer)
	if err != nil {
		rr := reportForConfigError(err)
		emitReport(os.Stdout, os.Stderr, rr, isTTY(os.Stdout))
		return 1
	}

	log, err := logx.New(os.Stderr, eff.LogLevel, isTTY(os.Stderr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rr := run.ExecuteWithObserver(ctx, eff, plot.NewPNGRenderer(), log, obs)

	if eff.Report != "" {
		if err := writeReportFile(eff.Report, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report 失败：%v\n", err)
			emitReport(os.Stdout, os.Stderr, rr, isTTY(os.Stdout))
			return 1
		}
	}

	emitReport(os.Stdout, os.Stderr, rr, isTTY(os.Stdout))
	if interactive {
		emitLocations(progressW, eff)
	}
	return exitCode(rr)
}

type runArgs struct {
	ConfigPath string
	// Layer 只包含显式出现在命令行里的 flag。
	Layer config.Layer
}

func parseRunArgs(args []string) (runArgs, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		input         = fs.String("input", "", "")
		outputDir     = fs.String("output-dir", "", "")
		processes     = fs.Int("processes", 0, "")
		mode          = fs.String("mode", "", "")
		angle         = fs.Int("angle", config.NoAngle, "")
		maxQ          = fs.Int("max-q", 0, "")
		doFit         = fs.Bool("fit", false, "")
		model         = fs.String("model", "", "")
		plots         = fs.Bool("plots", false, "")
		connectPoints = fs.Bool("connect-points", false, "")
		parquetPath   = fs.String("parquet", "", "")
		reportPath    = fs.String("report", "", "")
		configPath    = fs.String("config", "", "")
		logLevel      = fs.String("log-level", "", "")
	)

	if err := fs.Parse(args); err != nil {
		return runArgs{}, err
	}
	if fs.NArg() > 0 {
		return runArgs{}, fmt.Errorf("多余的参数 %q", fs.Args())
	}

	ra := runArgs{}
	var bad error
	fs.Visit(func(f *flag.Flag) {
		l := &ra.Layer
		switch f.Name {
		case "input":
			l.Input = input
		case "output-dir":
			l.OutputDir = outputDir
		case "processes":
			l.Processes = processes
		case "mode":
			l.Mode = mode
		case "angle":
			if *angle < 0 {
				bad = fmt.Errorf("--angle 必须 >= 0，实际是 %d", *angle)
			}
			l.Angle = angle
		case "max-q":
			l.MaxQ = maxQ
		case "fit":
			l.Fit = doFit
		case "model":
			l.Model = model
		case "plots":
			l.Plots = plots
		case "connect-points":
			l.ConnectPoints = connectPoints
		case "parquet":
			l.Parquet = parquetPath
		case "report":
			l.Report = reportPath
		case "config":
			ra.ConfigPath = *configPath
		case "log-level":
			l.LogLevel = logLevel
		}
	})
	if bad != nil {
		return runArgs{}, bad
	}
	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  ddmfit run [--input PATTERN] [--mode individual|tiles|episodes] [--fit] [--plots] ...

命令：
  run    解析 ISF 文件，可选平均、拟合与出图

使用 "ddmfit run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  ddmfit run [flags]

参数：
  --input PATTERN      输入文件 glob 或目录（默认 episode300-0_scale1024-0）
  --output-dir DIR     输出目录（默认与输入文件同目录）
  --processes N        并发 worker 数（默认逻辑 CPU 数）
  --mode MODE          individual|tiles|episodes（默认 individual）
  --angle N            只处理第 N 个角度分区
  --max-q N            每个角度最多处理的 q 个数（默认 20）
  --fit                拟合 generic_exp 模型
  --model NAME         拟合模型（默认 generic_exp）
  --plots              生成 PNG 图
  --connect-points     数据点连线
  --parquet PATH       把拟合结果导出为 parquet 表（需要 --fit）
  --report PATH        额外把 RunReport JSON 写入文件
  --config FILE        配置文件（默认读取 ./ddmfit.yaml，若存在）
  --log-level LEVEL    debug|info|warn|error（默认 info）
  -h, --help           显示帮助
`)
}

func summaryLine(rr domain.RunReport) string {
	return fmt.Sprintf("完成：entries=%d processed=%d skipped=%d failed=%d",
		rr.Summary.Entries, rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

// emitReport：stdout 非 TTY 时必须且仅输出一个 RunReport JSON；摘要与失败明细走 stderr。
func emitReport(stdout, stderr io.Writer, rr domain.RunReport, tty bool) {
	if tty {
		fmt.Fprintln(stdout, summaryLine(rr))
		if rr.Summary.ElapsedSec > 0 && rr.Summary.Processed > 0 {
			fmt.Fprintf(stdout, "耗时 %.2fs，平均每个条目 %.3fs\n", rr.Summary.ElapsedSec, rr.Summary.SecondsPerItem)
		}
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			key := it.ID
			if key == "" {
				key = "<run>"
			}
			fmt.Fprintf(stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summaryLine(rr))
}

func exitCode(rr domain.RunReport) int {
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

func reportForConfigError(err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
			Sources:   []string{},
			Outputs:   []string{},
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	path = filepath.Clean(path)
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.Effective) {
	if w == nil {
		return
	}
	out := eff.OutputDir
	if out == "" {
		out = "<与输入文件同目录>"
	}
	fmt.Fprintf(w, "out: %s\n", out)
	if eff.Parquet != "" && eff.Fit {
		fmt.Fprintf(w, "parquet: %s\n", eff.Parquet)
	}
	if eff.Report != "" {
		fmt.Fprintf(w, "report: %s\n", eff.Report)
	}
}
