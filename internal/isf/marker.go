package isf

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// markerPrefix 判定一行是否为角度分区标记（不论后续格式是否完整）。
	markerPrefix = "# Angle section"
	markerHead   = "# Angle section (radial direction) "
)

// Marker 是对一行角度标记的解析结果。
//
// OK=false 表示行以 markerPrefix 开头，但不符合完整格式；此时 Raw 保存去掉 '#'
// 与首尾空格后的原文，作为 section 描述使用。
type Marker struct {
	Index  int
	Center float64
	From   float64
	To     float64
	OK     bool
	Raw    string
}

// Desc 返回 section 的可读描述。
func (m Marker) Desc() string {
	if !m.OK {
		return m.Raw
	}
	return fmt.Sprintf("Angle %d: Center %.1f°, Range: %.1f° to %.1f°", m.Index, m.Center, m.From, m.To)
}

// IsMarker 判断（已 TrimSpace 的）行是否为角度标记行。
func IsMarker(line string) bool {
	return strings.HasPrefix(line, markerPrefix)
}

// ParseMarker 解析形如
//
//	# Angle section (radial direction) 3 (center angle: 67.5 degrees, range: 45.0 to 90.0 degrees)
//
// 的标记行。格式从第一个完整匹配处开始识别，之后的尾随文本忽略。
func ParseMarker(line string) Marker {
	line = strings.TrimSpace(line)
	m := Marker{Raw: strings.Trim(line, "# ")}

	for from := 0; from < len(line); {
		i := strings.Index(line[from:], markerHead)
		if i < 0 {
			break
		}
		start := from + i
		if got, ok := scanMarker(line[start+len(markerHead):]); ok {
			got.Raw = m.Raw
			return got
		}
		from = start + 1
	}
	return m
}

func scanMarker(s string) (Marker, bool) {
	c := cursor{s: s}
	var m Marker

	idx, ok := c.uint()
	if !ok {
		return Marker{}, false
	}
	m.Index = idx

	c.spaces()
	if !c.lit("(center angle:") {
		return Marker{}, false
	}
	c.spaces()
	if m.Center, ok = c.number(); !ok {
		return Marker{}, false
	}
	c.spaces()
	if !c.lit("degrees,") {
		return Marker{}, false
	}
	c.spaces()
	if !c.lit("range:") {
		return Marker{}, false
	}
	c.spaces()
	if m.From, ok = c.number(); !ok {
		return Marker{}, false
	}
	c.spaces()
	if !c.lit("to") {
		return Marker{}, false
	}
	c.spaces()
	if m.To, ok = c.number(); !ok {
		return Marker{}, false
	}
	c.spaces()
	if !c.lit("degrees)") {
		return Marker{}, false
	}

	m.OK = true
	return m, true
}

// cursor 是一个只前进的小型扫描器。
type cursor struct {
	s   string
	pos int
}

func (c *cursor) lit(want string) bool {
	if strings.HasPrefix(c.s[c.pos:], want) {
		c.pos += len(want)
		return true
	}
	return false
}

func (c *cursor) spaces() {
	for c.pos < len(c.s) {
		switch c.s[c.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			c.pos++
		default:
			return
		}
	}
}

func (c *cursor) digits() int {
	n := 0
	for c.pos+n < len(c.s) && c.s[c.pos+n] >= '0' && c.s[c.pos+n] <= '9' {
		n++
	}
	return n
}

func (c *cursor) uint() (int, bool) {
	n := c.digits()
	if n == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(c.s[c.pos : c.pos+n])
	if err != nil {
		return 0, false
	}
	c.pos += n
	return v, true
}

// number 识别 -?\d+(\.\d*)?
func (c *cursor) number() (float64, bool) {
	start := c.pos
	if c.pos < len(c.s) && c.s[c.pos] == '-' {
		c.pos++
	}
	n := c.digits()
	if n == 0 {
		c.pos = start
		return 0, false
	}
	c.pos += n
	if c.pos < len(c.s) && c.s[c.pos] == '.' {
		c.pos++
		c.pos += c.digits()
	}
	v, err := strconv.ParseFloat(c.s[start:c.pos], 64)
	if err != nil {
		c.pos = start
		return 0, false
	}
	return v, true
}
