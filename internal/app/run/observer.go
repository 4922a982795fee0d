package run

import (
	"time"

	"github.com/John-Robertt/ddmfit/internal/config"
	"github.com/John-Robertt/ddmfit/internal/domain"
)

// Observer 把运行进度/阶段/条目结果从执行流程中解耦出来。
//
// 约束：
// - run 包只发事件，不做任何输出（stdout 留给 RunReport JSON）
// - 实现必须并发安全：事件可能来自多个 goroutine
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(eff config.Effective)
	// OnPhaseDone 在阶段结束/就绪时调用（scan/load/group/plan/exec/export）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个条目处理完成时调用。
	OnItemDone(idx, total int, id string, res domain.ItemResult, dur time.Duration)
	// OnProgress 用于 keepalive（通常由 CLI 自己的 ticker 触发）。
	OnProgress(done, total, ok, fail, skip, active int, activeIDs []string, elapsed time.Duration)
}
