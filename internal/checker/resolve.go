package checker

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/John-Robertt/kdcheck/internal/domain"
	"github.com/John-Robertt/kdcheck/internal/resolve"
)

// ResolveProblems 接收对资源列表的处理决定并执行修复。
//
// 每条决定独立校验：下标越界、已处理、不允许的状态迁移、候选文件与指纹不符的决定会被拒绝（记入返回的 error），
// 其余决定照常执行。扫描阶段已经确定的 Fixed/Remove 资源即使没有对应决定也会被执行。
// changed 表示文档是否被修改。
func (c *Checker) ResolveProblems(decisions []domain.Decision) (changed bool, err error) {
	var errs []error
	for _, d := range decisions {
		if d.Index < 0 || d.Index >= len(c.items) {
			errs = append(errs, fmt.Errorf("checker: 决定下标越界：%d", d.Index))
			continue
		}
		if c.applied[d.Index] {
			errs = append(errs, fmt.Errorf("checker: 资源 %d 已处理", d.Index))
			continue
		}
		it := &c.items[d.Index]
		if !it.Status.CanBecome(d.Status) {
			errs = append(errs, fmt.Errorf("checker: %s %s 不允许从 %s 变为 %s", it.Type, it.OriginalFilePath, it.Status, d.Status))
			continue
		}
		if d.Status == domain.StatusFixed {
			if verr := c.verifyCandidate(*it, d.NewFilePath); verr != nil {
				errs = append(errs, verr)
				continue
			}
			it.NewFilePath = d.NewFilePath
		}
		it.Status = d.Status
		if d.Reason != "" {
			c.logger.Debug("采纳处理决定",
				slog.Int("index", d.Index),
				slog.String("status", d.Status.String()),
				slog.String("reason", d.Reason),
			)
		}
	}
	changed, applyErrs := c.applyPending()
	return changed, errors.Join(append(errs, applyErrs...)...)
}

// applyPending 执行所有尚未应用、且状态要求修改文档的资源。
func (c *Checker) applyPending() (bool, []error) {
	changed := false
	var errs []error
	for i, it := range c.items {
		if c.applied[i] || !it.Status.Terminal() {
			continue
		}
		if err := c.fix.FixMissingItem(it); err != nil {
			errs = append(errs, err)
			continue
		}
		c.applied[i] = true
		changed = true
	}
	return changed, errs
}

// verifyCandidate 校验修复候选：Clip 必须与记录的大小/指纹一致；文件类资源必须存在。
func (c *Checker) verifyCandidate(it domain.DocumentResource, p string) error {
	if p == "" {
		return fmt.Errorf("checker: %s %s 缺少新路径", it.Type, it.OriginalFilePath)
	}
	ok := true
	switch it.Type {
	case domain.TypeClip:
		ok = c.res.Verify(p, it.FileSize, it.Hash, it.ClipType)
	case domain.TypeLuma:
		ok = c.lumas.IsBuiltIn(p) || resolve.Exists(p)
	case domain.TypeProxy, domain.TypeAssetFile, domain.TypeTitleImage:
		ok = resolve.Exists(p)
	case domain.TypeEffect, domain.TypeTransition:
		ok = false
	}
	if !ok {
		return fmt.Errorf("checker: %s %s 的候选 %s 校验失败", it.Type, it.OriginalFilePath, p)
	}
	return nil
}
