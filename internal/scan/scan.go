package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CacheDirName 是工具在工程目录下的私有目录，永久排除在搜索之外。
const CacheDirName = ".kdcheck"

// Entry 描述目录中的一个文件（只做 stat，不读内容）。
type Entry struct {
	Path    string
	Name    string
	Size    int64
	ModUnix int64
}

// Tree 是一次受限的目录遍历配置：排除目录 + 最大深度。
//
// 规则（硬约束）：
// - 永久排除：<base>/.kdcheck/
// - excludeDirs：相对 base 的路径（若是绝对路径，则按绝对路径处理）
// - MaxDepth<=0 表示不限深度
type Tree struct {
	MaxDepth int
	excluded []string
}

func NewTree(base string, excludeDirs []string, maxDepth int) Tree {
	return Tree{
		MaxDepth: maxDepth,
		excluded: buildExcluded(filepath.Clean(base), excludeDirs),
	}
}

// Descend 判断是否应继续进入 depth 层（根为 0）的目录 dir。
func (t Tree) Descend(dir string, depth int) bool {
	if t.MaxDepth > 0 && depth > t.MaxDepth {
		return false
	}
	return !isExcluded(dir, t.excluded)
}

// ReadDir 列出 dir 的直接子项：files 与 dirs 各自按名称字典序排列。
//
// - 排除目录不会出现在 dirs 中
// - 指向目录的符号链接被忽略（避免遍历成环）；指向文件的符号链接按目标文件处理
// - 无法 stat 的条目直接跳过（不可读不应中断整次搜索）
func (t Tree) ReadDir(dir string) (files []Entry, dirs []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	for _, d := range entries {
		path := filepath.Join(dir, d.Name())

		var info fs.FileInfo
		if d.Type()&fs.ModeSymlink != 0 {
			fi, e := os.Stat(path)
			if e != nil || fi.IsDir() {
				continue
			}
			info = fi
		} else if d.IsDir() {
			if !isExcluded(path, t.excluded) {
				dirs = append(dirs, path)
			}
			continue
		} else {
			fi, e := d.Info()
			if e != nil {
				continue
			}
			info = fi
		}

		if !info.Mode().IsRegular() {
			continue
		}
		files = append(files, Entry{
			Path:    path,
			Name:    d.Name(),
			Size:    info.Size(),
			ModUnix: info.ModTime().Unix(),
		})
	}

	// os.ReadDir 已按名称排序；这里再显式排序一次，锁定契约而不依赖实现细节。
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	sort.Strings(dirs)
	return files, dirs, nil
}

func buildExcluded(base string, excludeDirs []string) []string {
	excluded := make([]string, 0, 1+len(excludeDirs))
	excluded = append(excluded, filepath.Join(base, CacheDirName))

	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		excluded = append(excluded, filepath.Clean(filepath.Join(base, x)))
	}

	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
