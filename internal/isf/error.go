package isf

import (
	"errors"
	"fmt"
)

// Kind 是解析失败的分类。
type Kind string

const (
	KindIO            Kind = "io"
	KindTooFewLines   Kind = "too_few_lines"
	KindBadNumber     Kind = "bad_number"
	KindShapeMismatch Kind = "shape_mismatch"
	KindNoData        Kind = "no_data"
)

// Error 是文件级解析错误（带路径与 section 上下文）。
type Error struct {
	Path    string
	Section string
	Line    int
	Kind    Kind
	Err     error
}

func (e *Error) Error() string {
	where := e.Path
	if where == "" {
		where = "<reader>"
	}
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", where, e.Line)
	}
	if e.Section != "" {
		where = fmt.Sprintf("%s [%s]", where, e.Section)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s：%s：%v", where, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s：%s", where, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf 从 error 中提取 Kind；若不是 *Error 则返回空串。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
