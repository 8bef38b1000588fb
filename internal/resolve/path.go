// Package resolve 负责资源路径的规范化、工程迁移后的重定位，以及“按名 → 按大小 → 按指纹”的分级递归搜索。
package resolve

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/John-Robertt/kdcheck/internal/domain"
	"github.com/John-Robertt/kdcheck/internal/scan"
)

// Resolver 聚合一次检查会话里的路径解析能力。会话内单线程使用。
type Resolver struct {
	// Root 是相对路径的解析基准（工程文件中的 root，或工程文件所在目录）。
	Root      string
	Tree      scan.Tree
	Hasher    *Hasher
	Relocator *Relocator
	Logger    *slog.Logger
}

func New(root string, tree scan.Tree, hasher *Hasher, logger *slog.Logger) *Resolver {
	if hasher == nil {
		hasher = NewHasher(0, nil)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		Root:      filepath.Clean(strings.TrimSpace(root)),
		Tree:      tree,
		Hasher:    hasher,
		Relocator: NewRelocator(),
		Logger:    logger,
	}
}

// EnsureAbsolutePath 把可能的相对路径解析为基于 Root 的绝对路径；绝对路径只做 Clean。
// 失败时尽力返回原串，从不报错。
func (r *Resolver) EnsureAbsolutePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "file://")
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	if r.Root == "" || r.Root == "." {
		return p
	}
	return filepath.Join(r.Root, p)
}

// Exists 判断路径是否存在（文件或目录）。
func Exists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}

// Verify 判断 path 是否与记录的指纹一致：size/hash 任一已知就必须匹配；都未知时只要求存在。
// 幻灯片以目录指纹比较（path 形如 <dir>/<pattern>）。
func (r *Resolver) Verify(path, size, hash string, ct domain.ClipType) bool {
	if ct == domain.ClipSlideShow {
		dir := filepath.Dir(path)
		fi, err := os.Stat(dir)
		if err != nil || !fi.IsDir() {
			return false
		}
		if hash == "" {
			return true
		}
		h, err := r.Hasher.FolderHash(dir, filepath.Base(path))
		return err == nil && h == hash
	}

	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	if s := strings.TrimSpace(size); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n != fi.Size() {
			return false
		}
	}
	if hash == "" {
		return true
	}
	h, err := r.Hasher.Hash(path)
	return err == nil && h == hash
}

// IsSlideshow 判断 resource 是否是图片序列/幻灯片的模式路径。
func IsSlideshow(resource string) bool {
	return strings.Contains(resource, "/.all.") || strings.Contains(resource, `\.all.`) ||
		strings.Contains(resource, "?") || strings.Contains(resource, "%")
}
