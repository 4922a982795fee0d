package isf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/John-Robertt/ddmfit/internal/domain"
)

const maxLineBytes = 64 << 20

// ContentKind 区分文件是否带角度分区标记。
type ContentKind int

const (
	// Unsectioned：全文件没有任何角度标记，所有数据行组成一个 "Radial Average"。
	Unsectioned ContentKind = iota
	// Sectioned：数据被角度标记切分为多个 section。
	Sectioned
)

func (k ContentKind) String() string {
	if k == Sectioned {
		return "sectioned"
	}
	return "unsectioned"
}

// Content 是一个 ISF 文件的解析结果。
type Content struct {
	Kind   ContentKind
	Scales domain.ScaleAxis
	Lags   domain.LagAxis
	Angles []domain.AngleSection
}

// ParseFile 读取并解析一个 ISF 文本文件。
// 任何失败都返回 *Error（带文件路径），调用方据此跳过该文件。
func ParseFile(path string) (Content, error) {
	f, err := os.Open(path)
	if err != nil {
		return Content{}, &Error{Path: path, Kind: KindIO, Err: err}
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			pe.Path = path
			return Content{}, pe
		}
		return Content{}, &Error{Path: path, Kind: KindIO, Err: err}
	}
	return c, nil
}

// Parse 解析 ISF 文本：
//
//	第 1 行：ScaleAxis（空白分隔）
//	第 2 行：LagAxis（空白分隔）
//	其余行：数据行 / '#' 注释 / 角度标记 / 空行
func Parse(r io.Reader) (Content, error) {
	lines, err := readLines(r)
	if err != nil {
		return Content{}, &Error{Kind: KindIO, Err: err}
	}
	if len(lines) < 3 {
		return Content{}, &Error{Kind: KindTooFewLines, Err: fmt.Errorf("只有 %d 行，至少需要 scale、lag 与数据三行", len(lines))}
	}

	scales, err := parseRow(lines[0])
	if err != nil {
		return Content{}, &Error{Kind: KindBadNumber, Line: 1, Section: "scale axis", Err: err}
	}
	lags, err := parseRow(lines[1])
	if err != nil {
		return Content{}, &Error{Kind: KindBadNumber, Line: 2, Section: "lag axis", Err: err}
	}

	body := lines[2:]
	c := Content{Scales: scales, Lags: lags}
	if hasMarkers(body) {
		c.Kind = Sectioned
		c.Angles, err = parseSectioned(body, len(scales), len(lags))
	} else {
		c.Kind = Unsectioned
		c.Angles, err = parseUnsectioned(body, len(scales), len(lags))
	}
	if err != nil {
		return Content{}, err
	}
	return c, nil
}

func hasMarkers(body []string) bool {
	for _, l := range body {
		if IsMarker(strings.TrimSpace(l)) {
			return true
		}
	}
	return false
}

func parseUnsectioned(body []string, nScales, nLags int) ([]domain.AngleSection, error) {
	b := block{desc: domain.RadialAverage}
	for i, raw := range body {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := b.add(line, i+3); err != nil {
			return nil, err
		}
	}
	if len(b.rows) == 0 {
		return nil, &Error{Kind: KindNoData, Section: b.desc, Err: errors.New("没有找到 ISF 数据行")}
	}
	s, err := b.section(nScales, nLags)
	if err != nil {
		return nil, err
	}
	return []domain.AngleSection{s}, nil
}

func parseSectioned(body []string, nScales, nLags int) ([]domain.AngleSection, error) {
	out := make([]domain.AngleSection, 0, 8)
	// 第一个标记之前的数据行以空描述成块（与上游格式的历史行为一致）。
	cur := block{}

	flush := func() error {
		if len(cur.rows) == 0 {
			return nil
		}
		s, err := cur.section(nScales, nLags)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	}

	for i, raw := range body {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if IsMarker(line) {
			if err := flush(); err != nil {
				return nil, err
			}
			cur = block{desc: ParseMarker(line).Desc()}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if err := cur.add(line, i+3); err != nil {
			return nil, err
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return nil, &Error{Kind: KindNoData, Err: errors.New("没有解析出任何有效数据块")}
	}
	return out, nil
}

// block 累积一个 section 的数据行。
type block struct {
	desc string
	rows [][]float64
}

func (b *block) add(line string, lineNo int) error {
	row, err := parseRow(line)
	if err != nil {
		return &Error{Kind: KindBadNumber, Section: b.desc, Line: lineNo, Err: err}
	}
	b.rows = append(b.rows, row)
	return nil
}

// section 校验形状必须严格等于 (L, T)。
func (b *block) section(nScales, nLags int) (domain.AngleSection, error) {
	if len(b.rows) != nScales {
		return domain.AngleSection{}, &Error{
			Kind:    KindShapeMismatch,
			Section: b.desc,
			Err:     fmt.Errorf("期望 (%d, %d)，实际 %d 行", nScales, nLags, len(b.rows)),
		}
	}
	for i, row := range b.rows {
		if len(row) != nLags {
			return domain.AngleSection{}, &Error{
				Kind:    KindShapeMismatch,
				Section: b.desc,
				Err:     fmt.Errorf("期望 (%d, %d)，第 %d 行有 %d 列", nScales, nLags, i+1, len(row)),
			}
		}
	}
	return domain.AngleSection{Desc: b.desc, Data: b.rows}, nil
}

func parseRow(line string) ([]float64, error) {
	fields := strings.Fields(line)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("无法解析数值 %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

func readLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lines := make([]string, 0, 64)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
