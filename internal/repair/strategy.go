package repair

import (
	"fmt"

	"github.com/John-Robertt/kdcheck/internal/domain"
)

// strategy 按资源的目标状态执行修复。it.Status 是已经确定的目标状态。
type strategy func(e *Engine, it domain.DocumentResource) error

var strategies = map[domain.MissingType]strategy{
	domain.TypeClip:       fixClipItem,
	domain.TypeProxy:      fixProxyItem,
	domain.TypeLuma:       fixLumaItem,
	domain.TypeAssetFile:  fixAssetItem,
	domain.TypeTitleImage: fixTitleImageItem,
	domain.TypeTitleFont:  fixTitleFontItem,
	domain.TypeEffect:     fixEffectItem,
	domain.TypeTransition: fixTransitionItem,
}

// FixMissingItem 按资源类型分派到对应的修复操作。
// Missing/MissingButProxy 表示“保持现状”，不修改文档。
func (e *Engine) FixMissingItem(it domain.DocumentResource) error {
	if it.Status == domain.StatusMissing || it.Status == domain.StatusMissingButProxy {
		return nil
	}
	s, ok := strategies[it.Type]
	if !ok {
		return unsupported(it)
	}
	return s(e, it)
}

func unsupported(it domain.DocumentResource) error {
	return fmt.Errorf("%w：type=%s status=%s path=%s", ErrUnsupported, it.Type, it.Status, it.OriginalFilePath)
}

func needPath(it domain.DocumentResource) error {
	if it.NewFilePath == "" {
		return fmt.Errorf("repair: %s %s 缺少新路径", it.Type, it.OriginalFilePath)
	}
	return nil
}

func fixClipItem(e *Engine, it domain.DocumentResource) error {
	switch it.Status {
	case domain.StatusFixed:
		if err := needPath(it); err != nil {
			return err
		}
		if e.FixClip(it.ClipID, it.NewFilePath) == 0 {
			return fmt.Errorf("repair: clip %s 不存在", it.ClipID)
		}
		e.FixMissingSource(it.ClipID)
		e.note("clip %s 已重新链接：%s -> %s", it.ClipID, it.OriginalFilePath, it.NewFilePath)
		return nil
	case domain.StatusPlaceholder:
		e.UsePlaceholderForClip(it.ClipID)
		return nil
	case domain.StatusRemove:
		_, err := e.RemoveClip(it.ClipID)
		return err
	case domain.StatusReload:
		return nil
	}
	return unsupported(it)
}

func fixProxyItem(e *Engine, it domain.DocumentResource) error {
	switch it.Status {
	case domain.StatusFixed:
		if err := needPath(it); err != nil {
			return err
		}
		if e.FixProxyClip(it.ClipID, it.OriginalFilePath, it.NewFilePath) == 0 {
			return fmt.Errorf("repair: clip %s 没有代理 %s", it.ClipID, it.OriginalFilePath)
		}
		e.note("clip %s 的代理已重新链接：%s", it.ClipID, it.NewFilePath)
		return nil
	case domain.StatusReload:
		e.RemoveProxy(it.ClipID, true)
		return nil
	case domain.StatusRemove:
		e.RemoveProxy(it.ClipID, false)
		return nil
	}
	return unsupported(it)
}

func fixLumaItem(e *Engine, it domain.DocumentResource) error {
	switch it.Status {
	case domain.StatusFixed:
		if err := needPath(it); err != nil {
			return err
		}
		n := e.FixAssetResource(LumaPairs(), it.OriginalFilePath, it.NewFilePath)
		e.note("luma %s 已替换为 %s（%d 处）", it.OriginalFilePath, it.NewFilePath, n)
		return nil
	case domain.StatusRemove:
		n := e.FixAssetResource(LumaPairs(), it.OriginalFilePath, "")
		e.note("缺失的 luma %s 已从 %d 个转场中移除", it.OriginalFilePath, n)
		return nil
	}
	return unsupported(it)
}

func fixAssetItem(e *Engine, it domain.DocumentResource) error {
	switch it.Status {
	case domain.StatusFixed:
		if err := needPath(it); err != nil {
			return err
		}
		n := e.FixAssetResource(AssetPairs(), it.OriginalFilePath, it.NewFilePath)
		e.note("资源文件 %s 已替换为 %s（%d 处）", it.OriginalFilePath, it.NewFilePath, n)
		return nil
	case domain.StatusRemove:
		filters, transitions := e.assetIDsUsing(AssetPairs(), it.OriginalFilePath)
		n := e.RemoveAssetsByID("filter", filters) + e.RemoveAssetsByID("transition", transitions)
		e.note("引用缺失文件 %s 的 %d 个滤镜/转场已删除", it.OriginalFilePath, n)
		return nil
	}
	return unsupported(it)
}

func fixTitleImageItem(e *Engine, it domain.DocumentResource) error {
	if it.Status != domain.StatusFixed {
		return unsupported(it)
	}
	if err := needPath(it); err != nil {
		return err
	}
	n := e.FixTitleImage("", it.OriginalFilePath, it.NewFilePath)
	e.note("字幕图片 %s 已替换为 %s（%d 个字幕）", it.OriginalFilePath, it.NewFilePath, n)
	return nil
}

func fixTitleFontItem(e *Engine, it domain.DocumentResource) error {
	if it.Status != domain.StatusFixed {
		return unsupported(it)
	}
	if err := needPath(it); err != nil {
		return err
	}
	n := e.FixTitleFont("", it.OriginalFilePath, it.NewFilePath)
	e.note("字幕字体 %s 已替换为 %s（%d 个字幕）", it.OriginalFilePath, it.NewFilePath, n)
	return nil
}

func fixEffectItem(e *Engine, it domain.DocumentResource) error {
	return removeService(e, it, "filter")
}

func fixTransitionItem(e *Engine, it domain.DocumentResource) error {
	return removeService(e, it, "transition")
}

func removeService(e *Engine, it domain.DocumentResource, tag string) error {
	if it.Status != domain.StatusRemove {
		return unsupported(it)
	}
	var n int
	if it.ClipID != "" {
		n = e.RemoveAssetsByID(tag, []string{it.ClipID})
	} else {
		n = e.RemoveAssetsByService(tag, it.OriginalFilePath)
	}
	e.note("不可用的 %s %s 已删除（%d 个）", tag, it.OriginalFilePath, n)
	return nil
}
