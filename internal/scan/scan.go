package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoMatch 表示 pattern 没有匹配到任何数据文件。
var ErrNoMatch = errors.New("没有匹配到任何数据文件")

// FindDataFiles 按 pattern 查找输入数据文件。
//
// 规则：
// - pattern 是已存在的目录：递归遍历，跳过 excludeDirs（通常是输出目录）
// - 否则按文件系统 glob 匹配（语法同 filepath.Match）
// - 目录、以 .png / .txt 结尾（大小写不敏感）的路径、'.' 开头的临时文件一律排除
// - 结果按路径字典序排序
//
// 注意：扫描阶段只做 stat，不读文件内容。
func FindDataFiles(pattern string, excludeDirs []string) ([]string, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("%w：pattern 为空", ErrNoMatch)
	}

	var (
		files []string
		err   error
	)
	if fi, statErr := os.Stat(pattern); statErr == nil && fi.IsDir() {
		files, err = walk(filepath.Clean(pattern), buildExcluded(excludeDirs))
	} else {
		files, err = glob(pattern)
	}
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w：%s", ErrNoMatch, pattern)
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Strings(files)
	return files, nil
}

func glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("非法 glob pattern %q：%w", pattern, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !IsDataFile(m) {
			continue
		}
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func walk(root string, excluded []string) ([]string, error) {
	out := make([]string, 0, 128)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsDataFile(path) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsDataFile 判断路径是否可能是输入数据（排除本工具自身的输出产物）。
func IsDataFile(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	lower := strings.ToLower(path)
	return !strings.HasSuffix(lower, ".png") && !strings.HasSuffix(lower, ".txt")
}

func buildExcluded(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, x := range dirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if abs, err := filepath.Abs(x); err == nil {
			x = abs
		}
		out = append(out, filepath.Clean(x))
	}
	sort.Strings(out)
	return out
}

func isExcluded(path string, excluded []string) bool {
	if len(excluded) == 0 {
		return false
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
