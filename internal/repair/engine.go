// Package repair 对内存中的工程文档执行修复。
//
// Engine 在一次会话内独占文档的可变句柄；所有结构性修改都经由它完成，
// 保证修改后没有悬空引用（playlist/track/transition 指向已删除的 clip）。
package repair

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/John-Robertt/kdcheck/internal/mlt"
	"github.com/John-Robertt/kdcheck/internal/resolve"
	"github.com/John-Robertt/kdcheck/internal/title"
)

// ErrUnsupported 表示某类资源不支持所请求的处理方式（例如删除字幕里的字体）。
var ErrUnsupported = errors.New("repair: 不支持的处理方式")

const (
	placeholderService = "color"
	placeholderColor   = "0xff0000ff"
)

// Engine 是修复操作的唯一入口。不做并发保护。
type Engine struct {
	doc    *mlt.Document
	res    *resolve.Resolver
	logger *slog.Logger

	info     []string
	recreate []string
	emptySeq int
}

func New(doc *mlt.Document, res *resolve.Resolver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = res.Logger
	}
	return &Engine{doc: doc, res: res, logger: logger}
}

// InfoMessages 返回自动修复产生的说明（按发生顺序）。
func (e *Engine) InfoMessages() []string { return append([]string(nil), e.info...) }

// ProxiesToRecreate 返回需要由宿主重新生成代理的 clip id。
func (e *Engine) ProxiesToRecreate() []string { return append([]string(nil), e.recreate...) }

func (e *Engine) note(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.info = append(e.info, msg)
	e.logger.Info(msg)
}

func (e *Engine) samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return e.res.EnsureAbsolutePath(a) == e.res.EnsureAbsolutePath(b)
}

// usesProxy 判断节点当前是否以代理文件作为 resource。
func (e *Engine) usesProxy(n *mlt.Node) bool {
	proxy := n.Property(mlt.PropProxy)
	return len(proxy) > 1 && e.samePath(n.Property(mlt.PropResource), proxy)
}

// FixClip 把 clipID 的源文件改为 newPath，覆盖该 id 的所有 producer/chain（素材箱与时间线实例）。
// 变速 clip 同步改写 warp_resource 与 "speed:path" 形式的 resource；
// 正在使用代理的 clip 只改 originalurl，保留代理。返回修改的节点数。
func (e *Engine) FixClip(clipID, newPath string) int {
	changed := 0
	for _, n := range e.doc.ByClipID(clipID) {
		switch {
		case n.Service() == "timewarp":
			n.SetProperty(mlt.PropWarpResource, newPath)
			if speed, _, ok := mlt.SplitSpeed(n.Property(mlt.PropResource)); ok {
				n.SetProperty(mlt.PropResource, speed+":"+newPath)
				break
			}
			n.SetProperty(mlt.PropResource, newPath)
		case e.usesProxy(n):
			n.SetProperty(mlt.PropOriginalURL, newPath)
		default:
			n.SetProperty(mlt.PropResource, newPath)
			if n.HasProperty(mlt.PropOriginalURL) {
				n.SetProperty(mlt.PropOriginalURL, newPath)
			}
		}
		changed++
	}
	if changed > 0 {
		e.logger.Debug("clip 已重新链接", slog.String("clip_id", clipID), slog.String("path", newPath), slog.Int("nodes", changed))
	}
	return changed
}

// FixProxyClip 把 clipID 的代理从 oldURL 改为 newURL。
func (e *Engine) FixProxyClip(clipID, oldURL, newURL string) int {
	changed := 0
	for _, n := range e.doc.ByClipID(clipID) {
		hit := false
		if e.samePath(n.Property(mlt.PropProxy), oldURL) {
			n.SetProperty(mlt.PropProxy, newURL)
			hit = true
		}
		if e.samePath(n.Property(mlt.PropResource), oldURL) {
			n.SetProperty(mlt.PropResource, newURL)
			hit = true
		}
		if hit {
			changed++
		}
	}
	return changed
}

// RemoveProxy 让 clipID 回到源文件。recreate=true 时保留代理路径并打上 _replaceproxy 标记，
// 由宿主负责重新生成；本包不创建任何文件。
func (e *Engine) RemoveProxy(clipID string, recreate bool) int {
	changed := 0
	for _, n := range e.doc.ByClipID(clipID) {
		if !n.HasProperty(mlt.PropProxy) {
			continue
		}
		if orig := n.Property(mlt.PropOriginalURL); orig != "" && e.usesProxy(n) {
			n.SetProperty(mlt.PropResource, orig)
		}
		if recreate {
			n.SetProperty(mlt.PropReplaceProxy, "1")
		} else {
			n.SetProperty(mlt.PropProxy, "-")
		}
		changed++
	}
	if changed == 0 {
		return 0
	}
	if recreate {
		e.markRecreate(clipID)
		e.note("clip %s 的代理文件缺失，已切回源文件并标记为重新生成", clipID)
	} else {
		e.note("clip %s 的代理文件缺失，已移除代理", clipID)
	}
	return changed
}

func (e *Engine) markRecreate(clipID string) {
	for _, id := range e.recreate {
		if id == clipID {
			return
		}
	}
	e.recreate = append(e.recreate, clipID)
}

// MarkProxyForRecreate 记录扫描阶段发现的 _replaceproxy 标记。
func (e *Engine) MarkProxyForRecreate(clipID string) { e.markRecreate(clipID) }

// UsePlaceholderForClip 把 clipID 的所有 producer 换成纯色占位，
// 保留 id、in/out 与 originalurl，时间线位置与时长不变。
func (e *Engine) UsePlaceholderForClip(clipID string) int {
	changed := 0
	for _, n := range e.doc.ByClipID(clipID) {
		if n.Property(mlt.PropPlaceholder) == "1" {
			continue
		}
		svc := n.Service()
		res := n.Property(mlt.PropResource)
		if svc == "timewarp" {
			n.SetProperty(mlt.PropOrigResource, res)
			if w := n.Property(mlt.PropWarpResource); w != "" {
				res = w
			} else {
				_, res, _ = mlt.SplitSpeed(res)
			}
			n.RemoveProperty(mlt.PropWarpResource)
		}
		if !n.HasProperty(mlt.PropOriginalURL) && res != "" {
			n.SetProperty(mlt.PropOriginalURL, res)
		}
		n.SetProperty(mlt.PropOrigService, svc)
		n.SetProperty(mlt.PropService, placeholderService)
		n.SetProperty(mlt.PropResource, placeholderColor)
		n.SetProperty(mlt.PropPlaceholder, "1")
		if n.Tag() == "chain" {
			n.SetTag("producer")
		}
		changed++
	}
	if changed > 0 {
		e.note("clip %s 的源文件缺失，已替换为占位", clipID)
	}
	return changed
}

// FixMissingSource 清除 _missingsource 标记（源文件已经恢复）。
func (e *Engine) FixMissingSource(clipID string) int {
	changed := 0
	for _, n := range e.doc.ByClipID(clipID) {
		if n.RemoveProperty(mlt.PropMissingSrc) {
			changed++
		}
	}
	return changed
}

// FixInvalidPlaceholderProducer 尝试把“因源文件缺失而以占位保存”的 producer 还原。
// 原始路径可解析到现存文件时才还原，返回是否还原。
func (e *Engine) FixInvalidPlaceholderProducer(n *mlt.Node) bool {
	if !IsInvalidPlaceholder(n) {
		return false
	}
	orig := e.res.EnsureAbsolutePath(n.Property(mlt.PropOriginalURL))
	if orig == "" || !resolve.Exists(orig) {
		return false
	}
	svc := n.Property(mlt.PropOrigService)
	if svc == "" {
		svc = "avformat-novalidate"
	}
	n.SetProperty(mlt.PropService, svc)
	n.SetProperty(mlt.PropResource, orig)
	if svc == "timewarp" {
		speed, _, ok := mlt.SplitSpeed(n.Property(mlt.PropOrigResource))
		if !ok {
			speed = "1"
		}
		n.SetProperty(mlt.PropResource, speed+":"+orig)
		n.SetProperty(mlt.PropWarpResource, orig)
	}
	n.RemoveProperty(mlt.PropOrigResource)
	n.RemoveProperty(mlt.PropOrigService)
	n.RemoveProperty(mlt.PropPlaceholder)
	n.RemoveProperty(mlt.PropMissingSrc)
	if n.Property("text") == "INVALID" {
		n.RemoveProperty("text")
	}
	e.note("占位 clip %s 的源文件已恢复：%s", mlt.ClipID(n), orig)
	return true
}

// IsInvalidPlaceholder 判断节点是否是占位 producer（本工具写入的纯色占位，或引擎写入的 INVALID 文本）。
func IsInvalidPlaceholder(n *mlt.Node) bool {
	if n.Property(mlt.PropPlaceholder) == "1" {
		return true
	}
	return n.Service() == "qtext" && n.Property("text") == "INVALID"
}

// FixTitleImage 改写字幕载荷里的图片路径。clipID 为空时作用于全部字幕。
func (e *Engine) FixTitleImage(clipID, oldPath, newPath string) int {
	return e.rewriteTitles(clipID, func(xml string) (string, bool) {
		refs, err := title.Parse(xml)
		if err != nil {
			return xml, false
		}
		hit := false
		for _, u := range refs.Images {
			if !e.samePath(u, oldPath) {
				continue
			}
			if out, ok := title.ReplaceImage(xml, u, newPath); ok {
				xml, hit = out, true
			}
		}
		return xml, hit
	})
}

// FixTitleFont 把字幕载荷里的字体 oldFont 替换为 newFont。clipID 为空时作用于全部字幕。
func (e *Engine) FixTitleFont(clipID, oldFont, newFont string) int {
	return e.rewriteTitles(clipID, func(xml string) (string, bool) {
		return title.ReplaceFont(xml, oldFont, newFont)
	})
}

func (e *Engine) rewriteTitles(clipID string, fn func(string) (string, bool)) int {
	changed := 0
	for _, n := range e.doc.ProducersAndChains() {
		if clipID != "" && mlt.ClipID(n) != clipID {
			continue
		}
		xml := n.Property(mlt.PropXMLData)
		if xml == "" {
			continue
		}
		if out, ok := fn(xml); ok {
			n.SetProperty(mlt.PropXMLData, out)
			changed++
		}
	}
	return changed
}

// FixAssetResource 把 pairs（service -> 属性名）覆盖的 filter/transition 中等于 oldPath 的资源改为 newPath。
// newPath 为空时删除该属性（例如去掉缺失的 luma，转场退化为普通溶解）。
func (e *Engine) FixAssetResource(pairs map[string]string, oldPath, newPath string) int {
	changed := 0
	for _, n := range e.assetNodes() {
		prop, ok := pairs[n.Service()]
		if !ok || !e.samePath(n.Property(prop), oldPath) {
			continue
		}
		if newPath == "" {
			n.RemoveProperty(prop)
		} else {
			n.SetProperty(prop, newPath)
		}
		changed++
	}
	return changed
}

// assetIDsUsing 返回资源等于 path 的 filter/transition 的 id。
func (e *Engine) assetIDsUsing(pairs map[string]string, path string) (filters, transitions []string) {
	for _, n := range e.assetNodes() {
		prop, ok := pairs[n.Service()]
		if !ok || !e.samePath(n.Property(prop), path) || n.ID() == "" {
			continue
		}
		if n.Tag() == "transition" {
			transitions = append(transitions, n.ID())
		} else {
			filters = append(filters, n.ID())
		}
	}
	return filters, transitions
}

func (e *Engine) assetNodes() []*mlt.Node {
	return append(e.doc.Transitions(), e.doc.Filters()...)
}

// RemoveAssetsByID 删除标签为 tag 且 id 在 ids 中的元素，返回删除数量。
func (e *Engine) RemoveAssetsByID(tag string, ids []string) int {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			want[id] = true
		}
	}
	removed := 0
	for _, n := range e.doc.Elements(tag) {
		if want[n.ID()] && e.doc.Remove(n) {
			removed++
		}
	}
	return removed
}

// RemoveAssetsByService 删除标签为 tag 且 mlt_service 等于 service 的元素（用于没有 id 的 filter）。
func (e *Engine) RemoveAssetsByService(tag, service string) int {
	removed := 0
	for _, n := range e.doc.Elements(tag) {
		if n.Service() == service && e.doc.Remove(n) {
			removed++
		}
	}
	return removed
}

// LumaPairs 返回携带 luma 文件的转场：service -> 属性名。
func LumaPairs() map[string]string {
	return map[string]string{
		"luma":           "resource",
		"movit.luma_mix": "resource",
		"composite":      "luma",
		"region":         "composite.luma",
	}
}

// AssetPairs 返回携带普通资源文件的滤镜/转场：service -> 属性名。
func AssetPairs() map[string]string {
	return map[string]string{
		"avfilter.lut3d": "av.file",
		"avfilter.lut1d": "av.file",
		"shape":          "resource",
		"vidstab":        "filename",
	}
}

// IsLUT 判断 service 是否是 LUT 滤镜。
func IsLUT(service string) bool {
	return service == "avfilter.lut3d" || service == "avfilter.lut1d"
}
