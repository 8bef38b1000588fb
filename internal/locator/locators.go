package locator

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/kdcheck/internal/domain"
	"github.com/John-Robertt/kdcheck/internal/luma"
	"github.com/John-Robertt/kdcheck/internal/resolve"
	"github.com/John-Robertt/kdcheck/internal/title"
)

const (
	NameRelocate = "relocate"
	NameSearch   = "search"
	NameLuma     = "luma"
	NameLUT      = "lut"
	NameFont     = "font"
)

// verify 按资源类型校验候选：Clip 比对记录的大小/指纹，其它类型只要求存在。
func verify(res *resolve.Resolver, it domain.DocumentResource, p string) bool {
	if it.Type == domain.TypeClip {
		return res.Verify(p, it.FileSize, it.Hash, it.ClipType)
	}
	if it.ClipType == domain.ClipSlideShow {
		return resolve.Exists(filepath.Dir(p))
	}
	return resolve.Exists(p)
}

// Relocate 对原路径应用会话内的“旧根 → 新根”规则。
type Relocate struct {
	Res *resolve.Resolver
}

func (Relocate) Name() string { return NameRelocate }

func (l Relocate) Locate(_ context.Context, it domain.DocumentResource) (string, error) {
	p := l.Res.Relocator.Rewrite(it.OriginalFilePath)
	if p == "" || !verify(l.Res, it, p) {
		return "", ErrNotFound
	}
	return p, nil
}

// Search 在搜索根下递归查找；首次成功且文件未改名时，学习重定位规则供后续资源复用。
type Search struct {
	Res   *resolve.Resolver
	Roots []string
}

func (Search) Name() string { return NameSearch }

func (l Search) Locate(ctx context.Context, it domain.DocumentResource) (string, error) {
	for _, root := range l.roots() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := l.find(root, it)
		if p == "" || !verify(l.Res, it, p) {
			continue
		}
		if l.Res.Relocator.Learn(it.OriginalFilePath, p) {
			from, to, _ := l.Res.Relocator.Mapping()
			l.Res.Logger.Info("学习到重定位规则", "from", from, "to", to)
		}
		return p, nil
	}
	return "", ErrNotFound
}

func (l Search) roots() []string {
	out := make([]string, 0, len(l.Roots)+1)
	seen := map[string]bool{}
	for _, r := range append([]string{l.Res.Root}, l.Roots...) {
		r = strings.TrimSpace(r)
		if r == "" || r == "." {
			continue
		}
		r = filepath.Clean(r)
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

func (l Search) find(root string, it domain.DocumentResource) string {
	name := filepath.Base(it.OriginalFilePath)
	if it.ClipType == domain.ClipSlideShow {
		if p := l.Res.SearchDirRecursively(root, it.Hash, it.OriginalFilePath); p != "" {
			return p
		}
		return l.Res.SearchPathRecursively(root, name, domain.ClipSlideShow)
	}
	if it.Type == domain.TypeClip {
		return l.Res.SearchFileRecursively(root, it.FileSize, it.Hash, name)
	}
	return l.Res.SearchPathRecursively(root, name, domain.ClipUnknown)
}

// Luma 用内置表与安装目录查找转场图案。
type Luma struct {
	Catalog *luma.Catalog
}

func (Luma) Name() string { return NameLuma }

func (l Luma) Locate(_ context.Context, it domain.DocumentResource) (string, error) {
	if l.Catalog == nil {
		return "", ErrNotFound
	}
	if p := l.Catalog.FixLumaPath(it.OriginalFilePath); p != "" {
		return p, nil
	}
	return "", ErrNotFound
}

// LUT 在配置的 LUT 目录中按文件名查找。
type LUT struct {
	Catalog *luma.Catalog
}

func (LUT) Name() string { return NameLUT }

func (l LUT) Locate(_ context.Context, it domain.DocumentResource) (string, error) {
	if l.Catalog == nil {
		return "", ErrNotFound
	}
	if p := l.Catalog.FixLutFile(it.OriginalFilePath); p != "" {
		return p, nil
	}
	return "", ErrNotFound
}

// Font 从候补字体列表中选第一个已安装的字体。
type Font struct {
	Fonts    title.FontCatalog
	Fallback []string
}

func (Font) Name() string { return NameFont }

func (l Font) Locate(_ context.Context, it domain.DocumentResource) (string, error) {
	if l.Fonts == nil {
		return "", ErrNotFound
	}
	for _, f := range l.Fallback {
		f = strings.TrimSpace(f)
		if f != "" && !strings.EqualFold(f, it.OriginalFilePath) && l.Fonts.Has(f) {
			return f, nil
		}
	}
	return "", ErrNotFound
}

// Default 按会话依赖组装全部定位器。
func Default(res *resolve.Resolver, roots []string, cat *luma.Catalog, fonts title.FontCatalog, fallback []string) Registry {
	reg, _ := NewRegistry(
		Relocate{Res: res},
		Search{Res: res, Roots: roots},
		Luma{Catalog: cat},
		LUT{Catalog: cat},
		Font{Fonts: fonts, Fallback: fallback},
	)
	return reg
}
