package resolve

import (
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/John-Robertt/kdcheck/internal/domain"
)

// 搜索顺序（确定性，且是同指纹多候选时的裁决规则）：
// 深度优先；每个目录先按文件名字典序检查文件，再按目录名字典序进入子目录。
// 深度受 Tree.MaxDepth 限制；被排除的目录不会进入。

// SearchPathRecursively 在 dir 下按文件名查找。
// 幻灯片按模式匹配：img_%05d.png 匹配任意 img_* 文件，.all.png 匹配任意 .png 文件；
// 命中时返回 <命中目录>/<原模式>。
func (r *Resolver) SearchPathRecursively(dir, fileName string, t domain.ClipType) string {
	match, ok := nameMatcher(fileName, t)
	if !ok {
		return ""
	}
	return r.searchPath(filepath.Clean(dir), 0, fileName, t, match)
}

func (r *Resolver) searchPath(dir string, depth int, fileName string, t domain.ClipType, match func(string) bool) string {
	if !r.Tree.Descend(dir, depth) {
		return ""
	}
	files, dirs, err := r.Tree.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, f := range files {
		if !match(f.Name) {
			continue
		}
		if t == domain.ClipSlideShow {
			return filepath.Join(dir, fileName)
		}
		return f.Path
	}
	for _, d := range dirs {
		if p := r.searchPath(d, depth+1, fileName, t, match); p != "" {
			return p
		}
	}
	return ""
}

func nameMatcher(fileName string, t domain.ClipType) (func(string) bool, bool) {
	want := norm.NFC.String(fileName)
	if t != domain.ClipSlideShow {
		return func(name string) bool { return norm.NFC.String(name) == want }, true
	}
	if i := strings.LastIndexByte(want, '%'); i >= 0 {
		prefix := want[:i]
		return func(name string) bool { return strings.HasPrefix(norm.NFC.String(name), prefix) }, true
	}
	if strings.HasPrefix(want, ".all.") {
		ext := strings.ToLower(strings.TrimPrefix(want, ".all"))
		return func(name string) bool { return strings.ToLower(filepath.Ext(name)) == ext }, true
	}
	return nil, false
}

// SearchFileRecursively 在 dir 下查找与记录指纹一致的文件（容忍改名）。
//
// 分级匹配：先比大小（只 stat），大小一致才计算内容指纹；
// 大小与指纹都未知时退化为按文件名搜索；只知其一时，以文件名圈定候选再校验已知项。
func (r *Resolver) SearchFileRecursively(dir, matchSize, matchHash, fileName string) string {
	matchSize = strings.TrimSpace(matchSize)
	matchHash = strings.TrimSpace(matchHash)
	base := filepath.Base(fileName)
	if matchSize == "" && matchHash == "" {
		return r.SearchPathRecursively(dir, base, domain.ClipUnknown)
	}

	size, err := strconv.ParseInt(matchSize, 10, 64)
	hasSize := err == nil
	found := r.searchFile(filepath.Clean(dir), 0, size, hasSize, matchHash, norm.NFC.String(base))
	if found != "" {
		r.Logger.Debug("按指纹找到候选文件", slog.String("name", base), slog.String("found", found))
	}
	return found
}

func (r *Resolver) searchFile(dir string, depth int, size int64, hasSize bool, hash, base string) string {
	if !r.Tree.Descend(dir, depth) {
		return ""
	}
	files, dirs, err := r.Tree.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, f := range files {
		if hasSize {
			if f.Size != size {
				continue
			}
		} else if norm.NFC.String(f.Name) != base {
			continue
		}
		if hash == "" {
			if !hasSize || norm.NFC.String(f.Name) == base {
				return f.Path
			}
			continue
		}
		h, err := r.Hasher.Hash(f.Path)
		if err != nil {
			continue
		}
		if h == hash {
			return f.Path
		}
		r.Logger.Debug("大小一致但指纹不同", slog.String("path", f.Path))
	}
	for _, d := range dirs {
		if p := r.searchFile(d, depth+1, size, hasSize, hash, base); p != "" {
			return p
		}
	}
	return ""
}

// SearchDirRecursively 在 dir 下查找目录指纹与 matchHash 一致的幻灯片目录，返回 <目录>/<模式>。
func (r *Resolver) SearchDirRecursively(dir, matchHash, fullName string) string {
	matchHash = strings.TrimSpace(matchHash)
	if matchHash == "" {
		return ""
	}
	return r.searchDir(filepath.Clean(dir), 0, matchHash, filepath.Base(fullName))
}

func (r *Resolver) searchDir(dir string, depth int, hash, pattern string) string {
	if !r.Tree.Descend(dir, depth) {
		return ""
	}
	files, dirs, err := r.Tree.ReadDir(dir)
	if err != nil {
		return ""
	}
	if len(files) > 0 {
		if h, err := r.Hasher.FolderHash(dir, pattern); err == nil && h == hash {
			return filepath.Join(dir, pattern)
		}
	}
	for _, d := range dirs {
		if p := r.searchDir(d, depth+1, hash, pattern); p != "" {
			return p
		}
	}
	return ""
}
