package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/ddmfit/internal/app"
	"github.com/John-Robertt/ddmfit/internal/app/planner"
	"github.com/John-Robertt/ddmfit/internal/app/process"
	"github.com/John-Robertt/ddmfit/internal/config"
	"github.com/John-Robertt/ddmfit/internal/domain"
	"github.com/John-Robertt/ddmfit/internal/export"
	"github.com/John-Robertt/ddmfit/internal/fit"
	"github.com/John-Robertt/ddmfit/internal/infra/fsx"
	"github.com/John-Robertt/ddmfit/internal/infra/logx"
	"github.com/John-Robertt/ddmfit/internal/plot"
	"github.com/John-Robertt/ddmfit/internal/scan"
)

// processEntry 是单条目处理函数（测试可替换）。
var processEntry = process.ProcessEntry

// Execute 执行一次 run，并返回对外稳定的 RunReport。
// 错误尽量降级为 item 级失败：单个文件/条目失败不影响其他。
func Execute(ctx context.Context, eff config.Effective, r plot.Renderer, log *zap.Logger) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, r, log, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 输出进度/阶段信息。
func ExecuteWithObserver(ctx context.Context, eff config.Effective, r plot.Renderer, log *zap.Logger, obs Observer) domain.RunReport {
	log = logx.Or(log)
	if r == nil {
		r = plot.NewPNGRenderer()
	}
	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		Input:     eff.Input,
		Mode:      eff.Mode,
		OutputDir: eff.OutputDir,
		Fit:       eff.Fit,
		Model:     eff.Model,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, 64),
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	mode, err := app.ParseMode(eff.Mode)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, err.Error()))
		return finish()
	}
	model, ok := fit.Lookup(eff.Model)
	if !ok {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, fmt.Sprintf("未知模型 %q", eff.Model)))
		return finish()
	}

	scanStarted := time.Now()
	var exclude []string
	if eff.OutputDir != "" {
		exclude = []string{eff.OutputDir}
	}
	paths, err := scan.FindDataFiles(eff.Input, exclude)
	if err != nil {
		code := domain.ErrCodeIOFailed
		if errors.Is(err, scan.ErrNoMatch) {
			code = domain.ErrCodeNoInput
		}
		log.Error("没有找到数据文件", zap.String("input", eff.Input), zap.Error(err))
		rr.Items = append(rr.Items, syntheticFailed(code, fmt.Sprintf("没有找到数据文件：%v", err)))
		return finish()
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"files": len(paths)}, time.Since(scanStarted))
	}
	log.Info("找到数据文件", zap.Int("files", len(paths)))

	loadStarted := time.Now()
	loaded, skipped, err := app.LoadEntries(ctx, paths, app.LoadOptions{Angle: eff.Angle, Workers: eff.Workers}, log)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("加载被中断：%v", err)))
		return finish()
	}
	for _, s := range skipped {
		rr.Items = append(rr.Items, skippedItem(s))
	}
	if obs != nil {
		obs.OnPhaseDone("load", map[string]any{
			"entries": len(loaded),
			"skipped": len(skipped),
		}, time.Since(loadStarted))
	}

	groupStarted := time.Now()
	entries := app.GroupAndAverage(loaded, mode, log)
	if obs != nil {
		obs.OnPhaseDone("group", map[string]any{
			"entries": len(entries),
			"mode":    string(mode),
		}, time.Since(groupStarted))
	}
	if len(entries) == 0 {
		log.Error("没有可处理的数据", zap.Int("files", len(paths)), zap.Int("skipped", len(skipped)))
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeNoValidData, "没有可处理的数据"))
		return finish()
	}

	planStarted := time.Now()
	plans := planner.PlanOutputs(entries, planner.Options{
		OutputDir: eff.OutputDir,
		Fit:       eff.Fit,
		Model:     model.Name,
	}, planner.FileExists)
	if obs != nil {
		obs.OnPhaseDone("plan", map[string]any{"outputs": len(plans)}, time.Since(planStarted))
	}

	workers := resolveWorkers(eff.Workers, len(entries))
	rr.Workers = workers
	size := chunkSize(len(entries), workers)
	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":     workers,
			"total_items": len(entries),
			"chunk":       size,
		}, 0)
	}

	opts := process.Options{
		MaxQ:          eff.MaxQ,
		Fit:           eff.Fit,
		Model:         model,
		Plots:         eff.Plots,
		ConnectPoints: eff.ConnectPoints,
	}

	execStarted := time.Now()
	done := 0
	items, outcomes := ProcessAll(ctx, entries, plans, opts, workers, r, log, func(idx int, res domain.ItemResult, dur time.Duration) {
		done++
		if obs != nil {
			obs.OnItemDone(done, len(entries), res.ID, res, dur)
		}
	})
	elapsed := time.Since(execStarted)

	successes := 0
	for _, it := range items {
		if it.Status == domain.StatusProcessed {
			successes++
		}
	}
	rr.Items = append(rr.Items, items...)
	rr.SetThroughput(successes, elapsed)
	log.Info("处理完成",
		zap.Int("processed", successes),
		zap.Int("entries", len(entries)),
		zap.Duration("elapsed", elapsed),
	)

	if eff.Parquet != "" {
		if it, ok := exportParquet(eff, outcomes, log, obs); !ok {
			rr.Items = append(rr.Items, it)
		}
	}

	return finish()
}

// ProcessAll 以 worker pool 并发处理 entries（plans 与 entries 一一对应）。
//
// - 条目按连续区间分块分发，每块 max(1, n/(2·workers)) 个
// - 单个条目的错误或 panic 只让该条目失败，不影响其他条目
// - 返回的 items/outcomes 与 entries 顺序一致
// - onDone 在调用方 goroutine 中串行调用（按完成顺序）
func ProcessAll(
	ctx context.Context,
	entries []domain.DataEntry,
	plans []domain.OutputPlan,
	opts process.Options,
	workers int,
	r plot.Renderer,
	log *zap.Logger,
	onDone func(idx int, res domain.ItemResult, dur time.Duration),
) ([]domain.ItemResult, []process.Outcome) {
	log = logx.Or(log)
	n := len(entries)
	items := make([]domain.ItemResult, n)
	outcomes := make([]process.Outcome, n)
	if n == 0 {
		return items, outcomes
	}
	if workers < 1 {
		workers = 1
	}

	type execResult struct {
		idx     int
		res     domain.ItemResult
		outcome process.Outcome
		dur     time.Duration
	}

	parts := chunks(n, chunkSize(n, workers))
	if workers > len(parts) {
		workers = len(parts)
	}

	jobs := make(chan [2]int)
	results := make(chan execResult, n)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for span := range jobs {
				for idx := span[0]; idx < span[1]; idx++ {
					var plan domain.OutputPlan
					if idx < len(plans) {
						plan = plans[idx]
					}
					started := time.Now()
					out, res := execOne(ctx, entries[idx], plan, opts, r, log)
					results <- execResult{idx: idx, res: res, outcome: out, dur: time.Since(started)}
				}
			}
		}()
	}

	go func() {
		for _, span := range parts {
			jobs <- span
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for it := range results {
		items[it.idx] = it.res
		outcomes[it.idx] = it.outcome
		if onDone != nil {
			onDone(it.idx, it.res, it.dur)
		}
	}
	return items, outcomes
}

func execOne(ctx context.Context, e domain.DataEntry, plan domain.OutputPlan, opts process.Options, r plot.Renderer, log *zap.Logger) (out process.Outcome, item domain.ItemResult) {
	item = domain.ItemResult{
		ID:      e.ID,
		Sources: append([]string{}, e.Sources...),
		Status:  domain.StatusProcessed,
		Angles:  len(e.Angles),
		Outputs: []string{},
	}
	if item.Sources == nil {
		item.Sources = []string{}
	}

	defer func() {
		if v := recover(); v != nil {
			log.Error("处理条目时发生 panic",
				zap.String("entry", e.ID),
				zap.Any("panic", v),
				zap.Stack("stack"),
			)
			out = process.Outcome{EntryID: e.ID}
			item.Status = domain.StatusFailed
			item.ErrorCode = domain.ErrCodePanic
			item.ErrorMsg = fmt.Sprintf("panic：%v", v)
			item.Fits = 0
			item.Outputs = []string{}
		}
	}()

	if err := ctx.Err(); err != nil {
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeProcessFailed
		item.ErrorMsg = err.Error()
		return process.Outcome{EntryID: e.ID}, item
	}

	out, err := processEntry(ctx, e, plan, opts, r, log)
	item.Fits = out.FitCount()
	item.Outputs = out.Outputs()
	if err != nil {
		log.Error("处理条目失败", zap.String("entry", e.ID), zap.Error(err))
		item.Status = domain.StatusFailed
		item.ErrorCode = errorCode(err)
		item.ErrorMsg = err.Error()
	}
	return out, item
}

// errorCode 把落盘阶段的文件系统错误归为 io_failed，其余为 process_failed。
func errorCode(err error) string {
	if fsx.IsPathTypeConflict(err) || fsx.IsCrossDevice(err) {
		return domain.ErrCodeIOFailed
	}
	return domain.ErrCodeProcessFailed
}

func exportParquet(eff config.Effective, outcomes []process.Outcome, log *zap.Logger, obs Observer) (domain.ItemResult, bool) {
	if !eff.Fit {
		log.Warn("未开启拟合，忽略 parquet 导出", zap.String("parquet", eff.Parquet))
		return domain.ItemResult{}, true
	}
	started := time.Now()
	rows := make([]export.FitRow, 0, 64)
	for _, o := range outcomes {
		if len(o.Fits) == 0 {
			continue
		}
		rows = append(rows, export.Rows(o.EntryID, o.Fits)...)
	}
	if err := export.WriteParquet(eff.Parquet, rows); err != nil {
		log.Error("导出 parquet 失败", zap.String("path", eff.Parquet), zap.Error(err))
		return syntheticFailed(domain.ErrCodeExportFailed, fmt.Sprintf("导出 parquet 失败：%v", err)), false
	}
	if obs != nil {
		obs.OnPhaseDone("export", map[string]any{
			"rows": len(rows),
			"path": eff.Parquet,
		}, time.Since(started))
	}
	return domain.ItemResult{}, true
}

func skippedItem(s domain.Skipped) domain.ItemResult {
	return domain.ItemResult{
		ID:        s.Path,
		Sources:   []string{s.Path},
		Status:    domain.StatusSkipped,
		ErrorCode: s.Code,
		ErrorMsg:  s.Msg,
		Outputs:   []string{},
	}
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Sources:   []string{},
		Outputs:   []string{},
	}
}
