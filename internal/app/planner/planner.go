package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/ddmfit/internal/domain"
)

// Options 是命名规则需要的运行参数。
type Options struct {
	OutputDir string
	Fit       bool
	Model     string
}

// ExistsFunc 判断路径是否存在（测试可替换）。
type ExistsFunc func(path string) bool

// FileExists 是默认的 ExistsFunc：只做 stat。
func FileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// OutputBase 计算单个条目的输出 base（不含扩展名）。
//
// 规则：
// - 源文件存在：源路径去掉扩展名
// - 平均条目：使用合成 ID
// - 其他：episode<E>-<W>_scale<S>-<T>
// - 后缀：拟合时 _fit_<model>；否则单角度 _angle<N>，多角度 _all_angles
// - OutputDir 非空时只保留 basename 并放到 OutputDir 下
func OutputBase(e domain.DataEntry, opts Options, exists ExistsFunc) string {
	if exists == nil {
		exists = FileExists
	}

	var base string
	switch {
	case e.SourcePath != "" && exists(e.SourcePath):
		base = strings.TrimSuffix(e.SourcePath, filepath.Ext(e.SourcePath))
	case e.Meta.Averaged != "" && e.ID != "":
		base = e.ID
	default:
		m := e.Meta
		base = fmt.Sprintf("episode%d-%d_scale%d-%d", m.Episode, m.Window, m.Scale, m.Tile)
	}

	base += suffix(e, opts)
	if opts.OutputDir != "" {
		base = filepath.Join(opts.OutputDir, filepath.Base(base))
	}
	return base
}

func suffix(e domain.DataEntry, opts Options) string {
	if opts.Fit {
		return "_fit_" + opts.Model
	}
	if len(e.Angles) == 1 {
		return fmt.Sprintf("_angle%d", angleIndex(e))
	}
	return "_all_angles"
}

// angleIndex：显式选择的非 0 角度优先；否则取描述里的 "Angle N"；都没有时为 0。
// 选择 0 与未选择同样按描述命名。
func angleIndex(e domain.DataEntry) int {
	if e.Meta.HasSelectedAngle && e.Meta.SelectedAngle != 0 {
		return e.Meta.SelectedAngle
	}
	if len(e.Angles) == 0 {
		return 0
	}
	if n, ok := angleFromDesc(e.Angles[0].Desc); ok {
		return n
	}
	return 0
}

// angleFromDesc 查找第一个 "Angle" + 空白 + 数字。
func angleFromDesc(desc string) (int, bool) {
	const tag = "Angle"
	for off := 0; ; {
		i := strings.Index(desc[off:], tag)
		if i < 0 {
			return 0, false
		}
		rest := desc[off+i+len(tag):]
		trimmed := strings.TrimLeft(rest, " \t")
		if len(trimmed) < len(rest) {
			n, digits := 0, 0
			for digits < len(trimmed) && trimmed[digits] >= '0' && trimmed[digits] <= '9' {
				n = n*10 + int(trimmed[digits]-'0')
				digits++
			}
			if digits > 0 {
				return n, true
			}
		}
		off += i + len(tag)
	}
}

// PlanOutputs 在派发前为全部条目生成确定性的、互不冲突的输出 base。
// 冲突时按输入顺序依次追加 __2、__3…（与 entries 的顺序绑定，因此 entries 必须已稳定排序）。
func PlanOutputs(entries []domain.DataEntry, opts Options, exists ExistsFunc) []domain.OutputPlan {
	used := make(map[string]struct{}, len(entries))
	plans := make([]domain.OutputPlan, 0, len(entries))
	for _, e := range entries {
		base := allocName(OutputBase(e, opts, exists), used)
		used[base] = struct{}{}
		plans = append(plans, domain.OutputPlan{EntryID: e.ID, Base: base})
	}
	return plans
}

func allocName(name string, used map[string]struct{}) string {
	if _, ok := used[name]; !ok {
		return name
	}
	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s__%d", name, n)
		if _, ok := used[cand]; !ok {
			return cand
		}
	}
}
