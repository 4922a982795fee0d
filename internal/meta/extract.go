package meta

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/John-Robertt/ddmfit/internal/domain"
)

const (
	episodeTag = "episode"
	scaleTag   = "scale"
)

// Match 是一次文件名扫描的结果；Episode/Scale 表示对应模式是否命中。
type Match struct {
	Meta    domain.FileMeta
	Episode bool
	Scale   bool
}

// Extract 从文件 base name 中提取 episode/window/scale/tile。
// 未命中的字段保持 -1；该函数永不失败。
func Extract(name string) domain.FileMeta {
	return Scan(name).Meta
}

// Scan 与 Extract 相同，但额外报告两个模式各自是否命中（便于上层记录回退原因）。
//
// 约定（与上游二进制的命名契约一致）：
// - "episode<E>-<W>" 给出 episode 与 window
// - "scale<S>-<T>" 给出 scale id 与 tile id
// - 两个模式相互独立；各自取第一次出现
func Scan(name string) Match {
	name = filepath.Base(strings.TrimSpace(name))
	m := Match{Meta: domain.UnknownMeta()}

	if a, b, ok := findPair(name, episodeTag); ok {
		m.Meta.Episode, m.Meta.Window = a, b
		m.Episode = true
	}
	if a, b, ok := findPair(name, scaleTag); ok {
		m.Meta.Scale, m.Meta.Tile = a, b
		m.Scale = true
	}
	return m
}

// findPair 查找 tag 后紧跟 "<digits>-<digits>" 的第一个位置。
func findPair(s, tag string) (int, int, bool) {
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], tag)
		if i < 0 {
			return 0, 0, false
		}
		pos := from + i + len(tag)

		a, n1 := leadingDigits(s[pos:])
		if n1 > 0 && pos+n1 < len(s) && s[pos+n1] == '-' {
			b, n2 := leadingDigits(s[pos+n1+1:])
			if n2 > 0 {
				return a, b, true
			}
		}
		from = from + i + 1
	}
	return 0, 0, false
}

// leadingDigits 解析 s 开头的十进制数字；返回值与消费的字节数。
// 溢出 int 的数字串视为不匹配（返回 n=0）。
func leadingDigits(s string) (int, int) {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n == 0 {
		return 0, 0
	}
	v, err := strconv.Atoi(s[:n])
	if err != nil {
		return 0, 0
	}
	return v, n
}
