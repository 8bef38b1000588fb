// Package checker 扫描工程文档引用的全部外部资源，给出分类结果，并把处理决定交给修复引擎执行。
//
// 一次会话：New -> HasErrorInProject -> （可选）ResolveProblems。
// 会话单线程运行；资源列表是会话私有状态，只通过只读访问器对外暴露。
package checker

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/John-Robertt/kdcheck/internal/domain"
	"github.com/John-Robertt/kdcheck/internal/engine"
	"github.com/John-Robertt/kdcheck/internal/luma"
	"github.com/John-Robertt/kdcheck/internal/mlt"
	"github.com/John-Robertt/kdcheck/internal/repair"
	"github.com/John-Robertt/kdcheck/internal/resolve"
	"github.com/John-Robertt/kdcheck/internal/scan"
	"github.com/John-Robertt/kdcheck/internal/title"
)

// Options 是会话依赖的协作者；nil 字段使用保守的默认值。
type Options struct {
	Resolver *resolve.Resolver
	// Lumas 为空时不认定任何内置 luma，也不在安装目录中查找。
	Lumas *luma.Catalog
	// Fonts 为空时跳过字幕字体检查。
	Fonts title.FontCatalog
	// Services 为空（或未加载）时跳过滤镜/转场可用性检查。
	Services *engine.Services
	Logger   *slog.Logger
}

// Checker 持有一次检查会话的全部状态。
type Checker struct {
	project string
	doc     *mlt.Document
	res     *resolve.Resolver
	lumas   *luma.Catalog
	fonts   title.FontCatalog
	svc     *engine.Services
	logger  *slog.Logger
	fix     *repair.Engine

	items   []domain.DocumentResource
	applied []bool
	info    []string
	// 会话创建时产生的说明，每次重新扫描都保留
	newInfo []string

	safeImages safeSet
	safeFonts  safeSet
	tractorIDs map[string]bool
	rootMoved  bool
}

// New 创建检查会话。projectPath 是工程文件路径（用于推断工程目录）；doc 由调用方持有。
//
// 工程文件记录的 root 不存在、而工程文件所在目录不同时，视为工程整体搬迁：
// 文档 root 更新为工程目录，并以“旧 root -> 工程目录”作为重定位规则。
func New(projectPath string, doc *mlt.Document, opt Options) (*Checker, error) {
	if doc == nil {
		return nil, errors.New("checker: 文档不能为空")
	}
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("checker: 工程路径非法：%w", err)
	}
	projectDir := filepath.Dir(abs)

	logger := opt.Logger
	res := opt.Resolver
	if res == nil {
		res = resolve.New(projectDir, scan.NewTree(projectDir, nil, 0), nil, logger)
	}
	if logger == nil {
		logger = res.Logger
	}

	c := &Checker{
		project: abs,
		doc:     doc,
		res:     res,
		lumas:   opt.Lumas,
		fonts:   opt.Fonts,
		svc:     opt.Services,
		logger:  logger,
	}
	if c.lumas == nil {
		c.lumas, _ = luma.NewCatalog(nil, nil, doc.ProfileIsHD(), "")
	}

	root := doc.Root()
	switch {
	case root == "":
		res.Root = projectDir
	case filepath.Clean(root) != projectDir && !isDir(root):
		res.Relocator.Set(root, projectDir)
		doc.SetRoot(projectDir)
		res.Root = projectDir
		c.rootMoved = true
		c.note("工程根目录已从 %s 更新为 %s", root, projectDir)
		c.newInfo = append([]string(nil), c.info...)
	default:
		res.Root = filepath.Clean(root)
	}
	c.fix = repair.New(doc, res, logger)
	return c, nil
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

func (c *Checker) note(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.info = append(c.info, msg)
	c.logger.Info(msg)
}

// RootMoved 表示会话开始时检测到工程整体搬迁（文档 root 已更新）。
func (c *Checker) RootMoved() bool { return c.rootMoved }

// Document 返回会话操作的文档。
func (c *Checker) Document() *mlt.Document { return c.doc }

// Resolver 返回会话使用的路径解析器（定位器共享其重定位规则）。
func (c *Checker) Resolver() *resolve.Resolver { return c.res }

// Lumas 返回会话使用的 luma 查找表。
func (c *Checker) Lumas() *luma.Catalog { return c.lumas }

// ResourceItems 返回资源列表的副本（发现顺序）。
func (c *Checker) ResourceItems() []domain.DocumentResource {
	return append([]domain.DocumentResource(nil), c.items...)
}

// InfoMessages 返回本会话的自动修复说明（含修复引擎产生的说明）。
func (c *Checker) InfoMessages() []string {
	return append(append([]string(nil), c.info...), c.fix.InfoMessages()...)
}

// ProxiesToRecreate 返回需要宿主重新生成代理的 clip id。
func (c *Checker) ProxiesToRecreate() []string { return c.fix.ProxiesToRecreate() }

// ItemsContain 判断列表中是否存在类型为 t、状态为 status 的资源；path 为空时不比较路径。
func (c *Checker) ItemsContain(t domain.MissingType, path string, status domain.MissingStatus) bool {
	for _, it := range c.items {
		if it.Type == t && it.Status == status && (path == "" || it.OriginalFilePath == path) {
			return true
		}
	}
	return false
}

// listed 判断 path 是否已作为待处理或已定位的资源记录过。
func (c *Checker) listed(t domain.MissingType, path string) bool {
	return c.ItemsContain(t, path, domain.StatusMissing) || c.ItemsContain(t, path, domain.StatusFixed)
}

// ItemIndexByClipID 返回首个 ClipID 匹配的 Clip/Proxy 资源下标；不存在时返回 -1。
func (c *Checker) ItemIndexByClipID(id string) int {
	if id == "" {
		return -1
	}
	for i, it := range c.items {
		if (it.Type == domain.TypeClip || it.Type == domain.TypeProxy) && it.ClipID == id {
			return i
		}
	}
	return -1
}

// CheckResults 按类型统计仍需处理的资源（Fixed/Reload 不计）。
func (c *Checker) CheckResults() map[domain.MissingType]int {
	out := make(map[domain.MissingType]int, len(domain.AllMissingTypes))
	for _, it := range c.items {
		if unresolved(it.Status) {
			out[it.Type]++
		}
	}
	return out
}

func unresolved(s domain.MissingStatus) bool {
	return s != domain.StatusFixed && s != domain.StatusReload
}

// add 追加资源；applied 表示扫描阶段已经完成了对应的文档修改。
func (c *Checker) add(it domain.DocumentResource, applied bool) {
	c.items = append(c.items, it)
	c.applied = append(c.applied, applied)
	c.logger.Debug("发现资源问题",
		slog.String("type", it.Type.String()),
		slog.String("status", it.Status.String()),
		slog.String("path", it.OriginalFilePath),
		slog.String("clip_id", it.ClipID),
	)
}
