package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"github.com/John-Robertt/ddmfit/internal/fit"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件/环境变量无法解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// FileName 是 cwd 下自动发现的配置文件名（可选）。
	FileName = "ddmfit.yaml"
	// EnvPrefix 是环境变量前缀：DDMFIT_INPUT、DDMFIT_MAX_Q ...
	EnvPrefix = "DDMFIT"

	DefaultInput    = "episode300-0_scale1024-0"
	DefaultMode     = "individual"
	DefaultMaxQ     = 20
	DefaultLogLevel = "info"
	// MaxWorkers 是 worker 数的上限；超出截断。
	MaxWorkers = 256
	// NoAngle 表示不做角度选择。
	NoAngle = -1
)

// Layer 是一层配置来源（文件 / 环境变量 / CLI）。
// 字段为 nil 表示该层未指定，这能保证覆盖优先级可实现：例如 --fit=false 必须能覆盖文件里的 fit: true。
type Layer struct {
	Input         *string `yaml:"input" split_words:"true"`
	OutputDir     *string `yaml:"output_dir" split_words:"true"`
	Processes     *int    `yaml:"processes" split_words:"true"`
	Mode          *string `yaml:"mode" split_words:"true"`
	Angle         *int    `yaml:"angle" split_words:"true"`
	MaxQ          *int    `yaml:"max_q" split_words:"true"`
	Fit           *bool   `yaml:"fit" split_words:"true"`
	Model         *string `yaml:"model" split_words:"true"`
	Plots         *bool   `yaml:"plots" split_words:"true"`
	ConnectPoints *bool   `yaml:"connect_points" split_words:"true"`
	Parquet       *string `yaml:"parquet" split_words:"true"`
	Report        *string `yaml:"report" split_words:"true"`
	LogLevel      *string `yaml:"log_level" split_words:"true"`
}

// Effective 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type Effective struct {
	Input     string
	OutputDir string
	// Workers 为 0 表示按逻辑 CPU 数自动决定。
	Workers       int
	Mode          string
	Angle         int
	MaxQ          int
	Fit           bool
	Model         string
	Plots         bool
	ConnectPoints bool
	Parquet       string
	// Report 非空时额外把 RunReport JSON 写到该文件。
	Report   string
	LogLevel string

	// ConfigPath 是实际读取到的配置文件（没有则为空）。
	ConfigPath string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	where := e.Path
	if where == "" {
		where = "<env/cli>"
	}
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%s：%v", e.Code, where, e.Err)
		}
		return fmt.Sprintf("%s：%s", e.Code, where)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load 发现并读取配置，按优先级合并为最终配置。
//
// 发现规则：
// - configPath 非空：必须存在
// - 否则尝试 <cwd>/ddmfit.yaml（可选）
//
// 覆盖优先级（固定）：CLI（仅显式指定的 flag）> 环境变量 DDMFIT_* > 配置文件 > 内置默认。
func Load(cwd, configPath string, cli Layer) (Effective, error) {
	var (
		fileLayer Layer
		usedPath  string
	)
	if strings.TrimSpace(configPath) != "" {
		p := absCleanFrom(cwd, configPath)
		l, exists, err := readFileLayer(p)
		if err != nil {
			return Effective{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		if !exists {
			return Effective{}, &Error{Code: ErrCodeNotFound, Path: p, Err: os.ErrNotExist}
		}
		fileLayer, usedPath = l, p
	} else {
		p := filepath.Join(cwd, FileName)
		l, exists, err := readFileLayer(p)
		if err != nil {
			return Effective{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		if exists {
			fileLayer, usedPath = l, p
		}
	}

	var envLayer Layer
	if err := envconfig.Process(EnvPrefix, &envLayer); err != nil {
		return Effective{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("环境变量无效：%w", err)}
	}

	eff := Defaults()
	eff.ConfigPath = usedPath
	for _, l := range []Layer{fileLayer, envLayer, cli} {
		apply(&eff, l)
	}
	if err := normalize(&eff); err != nil {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: usedPath, Err: err}
	}
	return eff, nil
}

// Defaults 返回内置默认配置。
func Defaults() Effective {
	return Effective{
		Input:    DefaultInput,
		Mode:     DefaultMode,
		Angle:    NoAngle,
		MaxQ:     DefaultMaxQ,
		Model:    fit.DefaultModel,
		LogLevel: DefaultLogLevel,
	}
}

func apply(eff *Effective, l Layer) {
	setString(&eff.Input, l.Input)
	setString(&eff.OutputDir, l.OutputDir)
	if l.Processes != nil {
		eff.Workers = *l.Processes
	}
	setString(&eff.Mode, l.Mode)
	if l.Angle != nil {
		eff.Angle = *l.Angle
	}
	if l.MaxQ != nil {
		eff.MaxQ = *l.MaxQ
	}
	if l.Fit != nil {
		eff.Fit = *l.Fit
	}
	setString(&eff.Model, l.Model)
	if l.Plots != nil {
		eff.Plots = *l.Plots
	}
	if l.ConnectPoints != nil {
		eff.ConnectPoints = *l.ConnectPoints
	}
	setString(&eff.Parquet, l.Parquet)
	setString(&eff.Report, l.Report)
	setString(&eff.LogLevel, l.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func normalize(eff *Effective) error {
	if eff.Input == "" {
		return fmt.Errorf("input 不能为空")
	}
	switch eff.Mode {
	case "individual", "tiles", "episodes":
	default:
		return fmt.Errorf("mode 只能是 individual/tiles/episodes，实际是 %q", eff.Mode)
	}
	if _, ok := fit.Lookup(eff.Model); !ok {
		return fmt.Errorf("model 只能是 %s，实际是 %q", strings.Join(fit.Names(), "/"), eff.Model)
	}
	if eff.MaxQ < 1 {
		return fmt.Errorf("max_q 必须 >= 1，实际是 %d", eff.MaxQ)
	}
	if eff.Angle < NoAngle {
		return fmt.Errorf("angle 必须 >= 0，实际是 %d", eff.Angle)
	}
	if eff.Workers < 0 {
		return fmt.Errorf("processes 必须 >= 0（0 表示自动），实际是 %d", eff.Workers)
	}
	if eff.Workers > MaxWorkers {
		eff.Workers = MaxWorkers
	}
	if _, err := zapcore.ParseLevel(eff.LogLevel); err != nil {
		return fmt.Errorf("log_level 无效：%w", err)
	}
	if eff.OutputDir != "" {
		eff.OutputDir = filepath.Clean(eff.OutputDir)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileLayer 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileLayer(path string) (l Layer, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Layer{}, false, nil
		}
		return Layer{}, false, err
	}
	if err := yaml.UnmarshalStrict(b, &l); err != nil {
		return Layer{}, true, err
	}
	return l, true, nil
}
