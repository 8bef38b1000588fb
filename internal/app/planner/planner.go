// Package planner 为检查结果生成确定性的处理决定：只读文件系统、不修改文档。
package planner

import (
	"context"
	"io"
	"log/slog"

	"github.com/John-Robertt/kdcheck/internal/domain"
	"github.com/John-Robertt/kdcheck/internal/locator"
)

type Options struct {
	Policy domain.Policy
	// RecreateProxies 为 true 时，找不到的代理标记为重新生成（Reload），否则直接去掉代理。
	RecreateProxies bool
	Logger          *slog.Logger
}

// Plan 为每条未终结的资源生成至多一条决定（按资源下标升序）。
//
// 规则：
// - 定位器找到候选 -> Fixed
// - 代理找不到 -> Reload（重新生成）或 Remove（去掉代理）
// - 素材找不到 -> 按策略：keep 不处理，placeholder 用占位，remove 删除；有可用代理的素材只在 remove 策略下删除
// - luma 找不到 -> 非 keep 策略时从转场中去掉
// - 其它资源文件找不到 -> 仅 remove 策略删除引用它的滤镜/转场
// - 字幕图片/字体找不到 -> 保持现状
//
// 返回 error 仅在 ctx 取消时出现。
func Plan(ctx context.Context, items []domain.DocumentResource, reg locator.Registry, opt Options) ([]domain.Decision, error) {
	logger := opt.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	out := make([]domain.Decision, 0, len(items))
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if it.Status.Terminal() {
			continue
		}

		p, used, attempts, err := locator.LocateTrace(ctx, reg, it)
		if err == nil {
			out = append(out, domain.Decision{Index: i, Status: domain.StatusFixed, NewFilePath: p, Reason: used})
			continue
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		for _, a := range attempts {
			if a.Stage == "error" {
				logger.Warn("定位器出错", slog.String("locator", a.Locator), slog.String("path", it.OriginalFilePath), slog.Any("err", a.Err))
			}
		}

		if st, ok := fallback(it, opt); ok {
			out = append(out, domain.Decision{Index: i, Status: st, Reason: "policy:" + string(opt.Policy)})
		}
	}
	return out, nil
}

// fallback 给出找不到替代文件时的处置；ok=false 表示保持现状。
func fallback(it domain.DocumentResource, opt Options) (domain.MissingStatus, bool) {
	switch it.Type {
	case domain.TypeProxy:
		if opt.RecreateProxies {
			return domain.StatusReload, true
		}
		return domain.StatusRemove, true
	case domain.TypeClip:
		if it.Status == domain.StatusMissingButProxy {
			return domain.StatusRemove, opt.Policy == domain.PolicyRemove
		}
		switch opt.Policy {
		case domain.PolicyPlaceholder:
			return domain.StatusPlaceholder, true
		case domain.PolicyRemove:
			return domain.StatusRemove, true
		}
	case domain.TypeLuma:
		return domain.StatusRemove, opt.Policy == domain.PolicyPlaceholder || opt.Policy == domain.PolicyRemove
	case domain.TypeAssetFile:
		return domain.StatusRemove, opt.Policy == domain.PolicyRemove
	}
	return domain.StatusMissing, false
}
