package resolve

import (
	"path/filepath"
	"strings"
)

// Relocator 保存一条“旧根 → 新根”的替换规则，用于工程整体搬迁后的批量重定位。
//
// 规则一旦建立（来自工程 root 与实际目录的差异，或首次成功搜索），会话内不再改变。
type Relocator struct {
	from string
	to   string
}

func NewRelocator() *Relocator { return &Relocator{} }

// Set 显式建立规则；已有规则时不覆盖。
func (r *Relocator) Set(from, to string) bool {
	from = filepath.Clean(strings.TrimSpace(from))
	to = filepath.Clean(strings.TrimSpace(to))
	if r.from != "" || from == "." || to == "." || from == to {
		return false
	}
	r.from, r.to = from, to
	return true
}

// Mapping 返回当前规则。
func (r *Relocator) Mapping() (from, to string, ok bool) {
	return r.from, r.to, r.from != ""
}

// Rewrite 只做前缀替换，不检查目标是否存在；source 不在旧根下时返回空串。
func (r *Relocator) Rewrite(source string) string {
	if r.from == "" {
		return ""
	}
	source = filepath.Clean(source)
	if source == r.from {
		return r.to
	}
	prefix := r.from + string(filepath.Separator)
	if r.from == string(filepath.Separator) {
		prefix = r.from
	}
	if !strings.HasPrefix(source, prefix) {
		return ""
	}
	return filepath.Join(r.to, source[len(prefix):])
}

// Relocate 对 source 应用规则；目标存在才返回，否则返回空串。
func (r *Relocator) Relocate(source string) string {
	p := r.Rewrite(source)
	if p == "" || !Exists(p) {
		return ""
	}
	return p
}

// Learn 从一次成功的搜索结果（oldPath 实际位于 newPath）推导规则：
// 去掉两者共同的尾部路径段，剩余前缀即“旧根 → 新根”。
// 至少需要共享文件名这一段；文件被改名（按指纹命中）时不学习。
func (r *Relocator) Learn(oldPath, newPath string) bool {
	if r.from != "" {
		return false
	}
	a := splitPath(filepath.Clean(oldPath))
	b := splitPath(filepath.Clean(newPath))

	common := 0
	for common < len(a)-1 && common < len(b)-1 && a[len(a)-1-common] == b[len(b)-1-common] {
		common++
	}
	if common == 0 {
		return false
	}
	from := joinPath(a[:len(a)-common])
	to := joinPath(b[:len(b)-common])
	return r.Set(from, to)
}

func splitPath(p string) []string {
	sep := string(filepath.Separator)
	parts := strings.Split(p, sep)
	if strings.HasPrefix(p, sep) {
		parts[0] = sep
	}
	return parts
}

func joinPath(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	return filepath.Join(parts...)
}
