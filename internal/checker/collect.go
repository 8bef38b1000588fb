package checker

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/John-Robertt/kdcheck/internal/domain"
	"github.com/John-Robertt/kdcheck/internal/mlt"
	"github.com/John-Robertt/kdcheck/internal/repair"
	"github.com/John-Robertt/kdcheck/internal/resolve"
	"github.com/John-Robertt/kdcheck/internal/title"
)

// safeSet 记录本会话已确认可用的资源（图片路径或字体名），
// 同一资源被多个字幕引用时只检查一次。找不到的资源不会进入该集合。
type safeSet map[string]struct{}

func (s safeSet) Has(k string) bool { _, ok := s[k]; return ok }

func (s safeSet) Add(k string) { s[k] = struct{}{} }

// HasErrorInProject 重新扫描整个文档并分类所有外部资源。
//
// 返回 true 表示存在需要决定的资源（Fixed/Reload 以外的状态）。
// 若所有问题都能自动修复（全部为 Fixed/Reload），修复会立即应用并返回 false。
func (c *Checker) HasErrorInProject() bool {
	c.items, c.applied = nil, nil
	c.info = append([]string(nil), c.newInfo...)
	c.safeImages, c.safeFonts = safeSet{}, safeSet{}
	c.tractorIDs = c.collectTractorIDs()

	binIDs := map[string]bool{}
	for _, e := range c.doc.BinEntries() {
		if ref := e.Attr("producer"); ref != "" {
			binIDs[ref] = true
		}
	}

	seen := map[string]bool{}
	for _, n := range c.orderedProducers(binIDs) {
		c.collectValidProducers(n, binIDs, seen)
	}
	for _, id := range c.fixSequences() {
		c.note("序列 clip %s 对应的时间线已不存在，将被删除", id)
		c.add(domain.DocumentResource{
			Status:   domain.StatusRemove,
			Type:     domain.TypeClip,
			ClipID:   id,
			ClipType: domain.ClipTimeline,
		}, false)
	}
	c.checkLumas()
	c.checkAssets()
	c.checkServices()

	for _, it := range c.items {
		if unresolved(it.Status) {
			return true
		}
	}
	if _, errs := c.applyPending(); len(errs) > 0 {
		for _, err := range errs {
			c.logger.Warn("自动修复失败", slog.String("err", err.Error()))
		}
		return true
	}
	return false
}

// orderedProducers 先按素材箱顺序返回 bin producer，再按文档顺序返回其余节点。
// 指纹属性只保存在 bin producer 上，因此同一 clip 以 bin producer 为准。
func (c *Checker) orderedProducers(binIDs map[string]bool) []*mlt.Node {
	all := c.doc.ProducersAndChains()
	byID := make(map[string]*mlt.Node, len(all))
	for _, n := range all {
		if id := n.ID(); id != "" {
			if _, ok := byID[id]; !ok {
				byID[id] = n
			}
		}
	}
	out := make([]*mlt.Node, 0, len(all))
	for _, e := range c.doc.BinEntries() {
		if n, ok := byID[e.Attr("producer")]; ok {
			out = append(out, n)
		}
	}
	for _, n := range all {
		if !binIDs[n.ID()] {
			out = append(out, n)
		}
	}
	return out
}

func (c *Checker) collectTractorIDs() map[string]bool {
	ids := map[string]bool{}
	for _, t := range c.doc.Tractors() {
		if id := t.ID(); id != "" {
			ids[id] = true
		}
		if u := t.Property(mlt.PropUUID); u != "" {
			ids[u] = true
		}
	}
	return ids
}

// collectValidProducers 检查单个 producer/chain，返回其 clip id；无法得到可用 producer 时返回空串。
func (c *Checker) collectValidProducers(n *mlt.Node, binIDs, seen map[string]bool) string {
	if repair.IsInvalidPlaceholder(n) {
		return c.checkPlaceholder(n, seen)
	}

	repaired := false
	if binIDs[n.ID()] {
		repaired = c.checkAndRepairProducerID(n)
	}
	id := mlt.ClipID(n)
	if id == "" {
		c.note("producer %s 缺少 clip id 且无法恢复", n.ID())
		return ""
	}
	if seen[id] || c.isSequenceWithSpeedEffect(n) {
		return id
	}
	seen[id] = true
	c.checkClip(n, c.producerResource(n), id, clipTypeOf(n), binIDs[n.ID()], repaired)
	return id
}

func (c *Checker) checkPlaceholder(n *mlt.Node, seen map[string]bool) string {
	id := mlt.ClipID(n)
	if c.fix.FixInvalidPlaceholderProducer(n) {
		if !seen[id] {
			seen[id] = true
			c.add(domain.DocumentResource{
				Status:           domain.StatusReload,
				Type:             domain.TypeClip,
				OriginalFilePath: c.producerResource(n),
				ClipID:           id,
				ClipType:         clipTypeOf(n),
			}, true)
		}
		return id
	}
	if !seen[id] {
		seen[id] = true
		c.add(domain.DocumentResource{
			Status:           domain.StatusPlaceholder,
			Type:             domain.TypeClip,
			OriginalFilePath: c.res.EnsureAbsolutePath(n.Property(mlt.PropOriginalURL)),
			ClipID:           id,
		}, true)
	}
	return ""
}

// checkAndRepairProducerID 为缺少 kdenlive:id 的 bin producer 恢复 id：
// 先找引用同一文件、已有 id 的其它节点；再看元素 id 是否携带数字 id；最后分配一个未使用的新 id。
func (c *Checker) checkAndRepairProducerID(n *mlt.Node) bool {
	if n.HasProperty(mlt.PropClipID) {
		return false
	}
	var id string
	res := n.Property(mlt.PropResource)
	for _, o := range c.doc.ProducersAndChains() {
		if o.Same(n) || res == "" {
			continue
		}
		if o.Property(mlt.PropResource) == res && o.Property(mlt.PropClipID) != "" {
			id = o.Property(mlt.PropClipID)
			break
		}
	}
	if id == "" {
		if guess := mlt.ClipID(n); isNumber(guess) && !c.clipIDUsed(guess, n) {
			id = guess
		}
	}
	if id == "" {
		id = strconv.Itoa(c.maxClipID() + 1)
	}
	n.SetProperty(mlt.PropClipID, id)
	c.note("producer %s 缺少 clip id，已恢复为 %s", n.ID(), id)
	return true
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func (c *Checker) clipIDUsed(id string, except *mlt.Node) bool {
	for _, o := range c.doc.ProducersAndChains() {
		if !o.Same(except) && o.Property(mlt.PropClipID) == id {
			return true
		}
	}
	return false
}

func (c *Checker) maxClipID() int {
	hi := 1
	for _, o := range c.doc.ProducersAndChains() {
		if v, err := strconv.Atoi(o.Property(mlt.PropClipID)); err == nil && v > hi {
			hi = v
		}
	}
	return hi
}

// producerResource 返回 clip 的主资源路径：变速 clip 取 warp_resource，正在使用代理的 clip 取 originalurl。
func (c *Checker) producerResource(n *mlt.Node) string {
	if n.Service() == "timewarp" {
		if w := n.Property(mlt.PropWarpResource); w != "" {
			return w
		}
		return stripSpeed(n.Property(mlt.PropResource))
	}
	res := n.Property(mlt.PropResource)
	proxy := n.Property(mlt.PropProxy)
	if orig := n.Property(mlt.PropOriginalURL); orig != "" && len(proxy) > 1 &&
		c.res.EnsureAbsolutePath(res) == c.res.EnsureAbsolutePath(proxy) {
		return orig
	}
	return res
}

func stripSpeed(res string) string {
	_, p, _ := mlt.SplitSpeed(res)
	return p
}

func clipTypeOf(n *mlt.Node) domain.ClipType {
	if t, ok := domain.ParseClipType(n.Property(mlt.PropProducerType)); ok && t != domain.ClipUnknown {
		return t
	}
	svc := n.Service()
	res := n.Property(mlt.PropResource)
	switch {
	case svc == "color" || svc == "colour":
		return domain.ClipColor
	case svc == "kdenlivetitle":
		if n.Property(mlt.PropXMLData) == "" && res != "" {
			return domain.ClipTextTemplate
		}
		return domain.ClipText
	case svc == "qtext":
		return domain.ClipQText
	case svc == "xml" || svc == "consumer":
		return domain.ClipPlaylist
	case svc == "tractor":
		return domain.ClipTimeline
	case svc == "glaxnimate":
		return domain.ClipAnimation
	case svc == "qml":
		return domain.ClipQml
	case svc == "qimage" || svc == "pixbuf":
		if resolve.IsSlideshow(res) {
			return domain.ClipSlideShow
		}
		return domain.ClipImage
	case strings.HasPrefix(svc, "avformat") || svc == "timewarp":
		return domain.ClipAV
	}
	return domain.ClipUnknown
}

// isSequenceWithSpeedEffect 判断节点是否是“对序列 clip 加了变速”的实例：它引用的是 tractor，不是文件。
func (c *Checker) isSequenceWithSpeedEffect(n *mlt.Node) bool {
	if n.Service() != "timewarp" {
		return false
	}
	return c.tractorIDs[c.producerResource(n)] || clipTypeOf(n) == domain.ClipTimeline
}

// checkClip 检查单个 clip 的源文件与代理，并把结果记入资源列表。
func (c *Checker) checkClip(n *mlt.Node, resource, clipID string, ct domain.ClipType, isBinClip, repaired bool) {
	if ct == domain.ClipText {
		c.checkTitle(n, clipID)
		return
	}
	if !ct.FileBased() || strings.TrimSpace(resource) == "" {
		return
	}
	path := c.res.EnsureAbsolutePath(resource)
	hash := n.Property(mlt.PropFileHash)
	size := n.Property(mlt.PropFileSize)

	if sourceExists(path, ct) {
		if n.HasProperty(mlt.PropMissingSrc) && c.fix.FixMissingSource(clipID) > 0 {
			c.note("clip %s 的源文件已恢复，清除缺失标记", clipID)
		}
		if n.Property(mlt.PropReplaceProxy) == "1" {
			c.fix.MarkProxyForRecreate(clipID)
		}
		c.checkProxy(n, clipID, ct)
		// 代理缺失时由 Proxy 资源承载这个 clip，不再另记 Reload
		if repaired && c.ItemIndexByClipID(clipID) < 0 {
			c.add(domain.DocumentResource{
				Status:           domain.StatusReload,
				Type:             domain.TypeClip,
				OriginalFilePath: path,
				ClipID:           clipID,
				ClipType:         ct,
			}, true)
		}
		return
	}

	it := domain.DocumentResource{
		Status:           domain.StatusMissing,
		Type:             domain.TypeClip,
		OriginalFilePath: path,
		ClipID:           clipID,
		Hash:             hash,
		FileSize:         size,
		ClipType:         ct,
	}
	if p := c.res.Relocator.Rewrite(path); p != "" && c.res.Verify(p, size, hash, ct) {
		it.Status = domain.StatusFixed
		it.NewFilePath = p
	} else if proxy := n.Property(mlt.PropProxy); len(proxy) > 1 && resolve.Exists(c.res.EnsureAbsolutePath(proxy)) {
		it.Status = domain.StatusMissingButProxy
	}
	if !isBinClip {
		c.logger.Debug("仅在时间线上引用的 clip 缺失", slog.String("clip_id", clipID))
	}
	c.add(it, false)
}

func sourceExists(path string, ct domain.ClipType) bool {
	if ct == domain.ClipSlideShow || resolve.IsSlideshow(path) {
		return isDir(parentDir(path))
	}
	return resolve.Exists(path)
}

func parentDir(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i > 0 {
		return p[:i]
	}
	return p
}

// checkProxy 在源文件存在时检查代理文件；代理缺失时记录一条 Proxy 资源。
// 已打上 _replaceproxy 标记的代理已在重建队列中，不再记录。
func (c *Checker) checkProxy(n *mlt.Node, clipID string, ct domain.ClipType) {
	proxy := n.Property(mlt.PropProxy)
	if len(proxy) <= 1 || n.Property(mlt.PropReplaceProxy) == "1" {
		return
	}
	p := c.res.EnsureAbsolutePath(proxy)
	if resolve.Exists(p) || c.listed(domain.TypeProxy, p) {
		return
	}
	it := domain.DocumentResource{
		Status:           domain.StatusMissing,
		Type:             domain.TypeProxy,
		OriginalFilePath: p,
		ClipID:           clipID,
		ClipType:         ct,
	}
	if np := c.res.Relocator.Relocate(p); np != "" {
		it.Status = domain.StatusFixed
		it.NewFilePath = np
	}
	c.add(it, false)
}

func (c *Checker) checkTitle(n *mlt.Node, clipID string) {
	refs, err := title.Parse(n.Property(mlt.PropXMLData))
	if err != nil {
		c.note("字幕 %s 的内容无法解析：%v", clipID, err)
		return
	}
	c.checkMissingImagesAndFonts(refs.Images, refs.Fonts, clipID)
}

// checkMissingImagesAndFonts 检查字幕引用的图片与字体。已确认可用的条目记入 safe 集合，
// 缺失的条目在整个列表中只记录一次。
func (c *Checker) checkMissingImagesAndFonts(images, fonts []string, clipID string) {
	for _, img := range images {
		p := c.res.EnsureAbsolutePath(img)
		if c.safeImages.Has(p) {
			continue
		}
		if resolve.Exists(p) {
			c.safeImages.Add(p)
			continue
		}
		if c.listed(domain.TypeTitleImage, p) {
			continue
		}
		it := domain.DocumentResource{
			Status:           domain.StatusMissing,
			Type:             domain.TypeTitleImage,
			OriginalFilePath: p,
			ClipID:           clipID,
		}
		if np := c.res.Relocator.Relocate(p); np != "" {
			it.Status = domain.StatusFixed
			it.NewFilePath = np
		}
		c.add(it, false)
	}

	if c.fonts == nil {
		return
	}
	for _, f := range fonts {
		if c.safeFonts.Has(f) {
			continue
		}
		if c.fonts.Has(f) {
			c.safeFonts.Add(f)
			continue
		}
		if c.listed(domain.TypeTitleFont, f) {
			continue
		}
		c.add(domain.DocumentResource{
			Status:           domain.StatusMissing,
			Type:             domain.TypeTitleFont,
			OriginalFilePath: f,
		}, false)
	}
}

// fixSequences 返回引用的 tractor 已不存在的序列 clip（按 clip id 去重，字典序）。
func (c *Checker) fixSequences() []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range c.doc.ProducersAndChains() {
		if clipTypeOf(n) != domain.ClipTimeline || n.Service() == "timewarp" {
			continue
		}
		target := n.Property(mlt.PropUUID)
		if target == "" {
			target = n.Property(mlt.PropResource)
		}
		id := mlt.ClipID(n)
		if target == "" || c.tractorIDs[target] || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (c *Checker) checkLumas() {
	pairs := repair.LumaPairs()
	for _, n := range c.doc.Transitions() {
		prop, ok := pairs[n.Service()]
		if !ok {
			continue
		}
		v := strings.TrimSpace(n.Property(prop))
		if v == "" || c.lumas.IsBuiltIn(v) {
			continue
		}
		p := c.res.EnsureAbsolutePath(v)
		if resolve.Exists(p) || c.listed(domain.TypeLuma, p) {
			continue
		}
		it := domain.DocumentResource{Status: domain.StatusMissing, Type: domain.TypeLuma, OriginalFilePath: p}
		if np := c.lumas.FixLumaPath(v); np != "" {
			it.Status, it.NewFilePath = domain.StatusFixed, np
		} else if np := c.res.Relocator.Relocate(p); np != "" {
			it.Status, it.NewFilePath = domain.StatusFixed, np
		}
		c.add(it, false)
	}
}

func (c *Checker) checkAssets() {
	pairs := repair.AssetPairs()
	nodes := append(c.doc.Filters(), c.doc.Transitions()...)
	for _, n := range nodes {
		svc := n.Service()
		prop, ok := pairs[svc]
		if !ok {
			continue
		}
		v := strings.TrimSpace(n.Property(prop))
		if v == "" {
			continue
		}
		p := c.res.EnsureAbsolutePath(v)
		if resolve.Exists(p) || c.listed(domain.TypeAssetFile, p) {
			continue
		}
		it := domain.DocumentResource{Status: domain.StatusMissing, Type: domain.TypeAssetFile, OriginalFilePath: p}
		if repair.IsLUT(svc) {
			if np := c.lumas.FixLutFile(v); np != "" {
				it.Status, it.NewFilePath = domain.StatusFixed, np
			}
		}
		if it.Status == domain.StatusMissing {
			if np := c.res.Relocator.Relocate(p); np != "" {
				it.Status, it.NewFilePath = domain.StatusFixed, np
			}
		}
		c.add(it, false)
	}
}

// checkServices 把引擎不提供的滤镜/转场记为待删除。未加载服务清单时跳过。
func (c *Checker) checkServices() {
	if !c.svc.Known() {
		return
	}
	c.checkServiceTag("filter", domain.TypeEffect, c.svc.HasFilter)
	c.checkServiceTag("transition", domain.TypeTransition, c.svc.HasTransition)
}

func (c *Checker) checkServiceTag(tag string, t domain.MissingType, available func(string) bool) {
	for _, n := range c.doc.Elements(tag) {
		svc := n.Service()
		if svc == "" || available(svc) {
			continue
		}
		dup := false
		for _, it := range c.items {
			if it.Type == t && it.OriginalFilePath == svc && it.ClipID == n.ID() {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		c.add(domain.DocumentResource{
			Status:           domain.StatusRemove,
			Type:             t,
			OriginalFilePath: svc,
			ClipID:           n.ID(),
		}, false)
	}
}
