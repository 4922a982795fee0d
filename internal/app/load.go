package app

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/ddmfit/internal/domain"
	"github.com/John-Robertt/ddmfit/internal/infra/logx"
	"github.com/John-Robertt/ddmfit/internal/isf"
	"github.com/John-Robertt/ddmfit/internal/meta"
)

// LoadOptions 控制加载阶段。
type LoadOptions struct {
	// Angle >= 0 时只保留每个文件的第 Angle 个角度分区；缺少该分区的文件被跳过。
	Angle int
	// Workers 是并发解析的文件数上限；<= 0 时取 GOMAXPROCS。
	Workers int
}

// NoAngle 表示不做角度选择。
const NoAngle = -1

type loadSlot struct {
	entry   domain.DataEntry
	ok      bool
	skipped *domain.Skipped
}

// LoadEntries 并发解析 paths，返回与输入顺序一致的条目，以及被整体跳过的文件。
//
// - 单个文件的解析失败只记录并跳过，不会中断其他文件
// - ctx 取消时返回 ctx.Err()（已解析的结果丢弃）
func LoadEntries(ctx context.Context, paths []string, opts LoadOptions, log *zap.Logger) ([]domain.DataEntry, []domain.Skipped, error) {
	log = logx.Or(log)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	slots := make([]loadSlot, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = loadOne(p, opts.Angle, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	entries := make([]domain.DataEntry, 0, len(paths))
	var skipped []domain.Skipped
	for _, s := range slots {
		switch {
		case s.ok:
			entries = append(entries, s.entry)
		case s.skipped != nil:
			skipped = append(skipped, *s.skipped)
		}
	}
	return entries, skipped, nil
}

func loadOne(path string, angle int, log *zap.Logger) loadSlot {
	content, err := isf.ParseFile(path)
	if err != nil {
		code := domain.ErrCodeParseFailed
		if isf.KindOf(err) == isf.KindIO {
			code = domain.ErrCodeIOFailed
		}
		log.Warn("解析文件失败，跳过", zap.String("path", path), zap.String("code", code), zap.Error(err))
		return loadSlot{skipped: &domain.Skipped{Path: path, Code: code, Msg: err.Error()}}
	}

	m := meta.Scan(filepath.Base(path))
	if !m.Episode || !m.Scale {
		log.Debug("文件名元数据不完整，使用 -1 占位",
			zap.String("path", path),
			zap.Bool("episode", m.Episode),
			zap.Bool("scale", m.Scale),
		)
	}
	fm := m.Meta

	angles := content.Angles
	if angle >= 0 {
		if angle >= len(angles) {
			msg := fmt.Sprintf("请求角度 %d，文件只有 %d 个分区", angle, len(angles))
			log.Warn("文件缺少指定角度，跳过", zap.String("path", path), zap.Int("angle", angle), zap.Int("sections", len(angles)))
			return loadSlot{skipped: &domain.Skipped{Path: path, Code: domain.ErrCodeAngleMissing, Msg: msg}}
		}
		angles = []domain.AngleSection{angles[angle]}
		fm.SelectedAngle = angle
		fm.HasSelectedAngle = true
	}

	return loadSlot{ok: true, entry: domain.DataEntry{
		ID:         path,
		SourcePath: path,
		Sources:    []string{path},
		Meta:       fm,
		Scales:     content.Scales,
		Lags:       content.Lags,
		Angles:     angles,
	}}
}
