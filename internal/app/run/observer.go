package run

import (
	"time"

	"github.com/John-Robertt/kdcheck/internal/config"
	"github.com/John-Robertt/kdcheck/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：CLI 的 keepalive ticker 与事件可能同时到来。
type Observer interface {
	// OnStart 在执行开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（load/check/plan/repair/verify/save）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在处理决定执行后，对每条资源调用一次（via 为定位器名或策略，可能为空）。
	OnItemDone(idx, total int, it domain.DocumentResource, via string)
}
