package title

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font/sfnt"

	"github.com/John-Robertt/kdcheck/internal/scan"
)

// FontCatalog 回答“某个字体名在本机是否可用”。
type FontCatalog interface {
	Has(name string) bool
}

// SystemFonts 从字体目录读取字体名（family/full/PostScript）。首次查询时才扫描。
type SystemFonts struct {
	Dirs []string

	loaded bool
	names  map[string]struct{}
}

func NewSystemFonts(dirs []string) *SystemFonts {
	return &SystemFonts{Dirs: dirs}
}

func (s *SystemFonts) Has(name string) bool {
	if !s.loaded {
		s.load()
	}
	_, ok := s.names[fontKey(name)]
	return ok
}

// Len 返回已索引的字体名数量。
func (s *SystemFonts) Len() int {
	if !s.loaded {
		s.load()
	}
	return len(s.names)
}

func (s *SystemFonts) load() {
	s.loaded = true
	s.names = map[string]struct{}{}
	for _, dir := range s.Dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		s.walk(scan.NewTree(dir, nil, 0), dir, 0)
	}
}

func (s *SystemFonts) walk(tree scan.Tree, dir string, depth int) {
	if !tree.Descend(dir, depth) {
		return
	}
	files, dirs, err := tree.ReadDir(dir)
	if err != nil {
		return
	}
	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".ttf", ".otf", ".ttc", ".otc":
			s.add(strings.TrimSuffix(f.Name, filepath.Ext(f.Name)))
			for _, n := range fontNames(f.Path) {
				s.add(n)
			}
		}
	}
	for _, d := range dirs {
		s.walk(tree, d, depth+1)
	}
}

func (s *SystemFonts) add(name string) {
	if k := fontKey(name); k != "" {
		s.names[k] = struct{}{}
	}
}

var nameIDs = []sfnt.NameID{
	sfnt.NameIDFamily,
	sfnt.NameIDFull,
	sfnt.NameIDPostScript,
	sfnt.NameIDTypographicFamily,
}

// fontNames 读取字体文件（含集合文件）里的名字；文件无法解析时返回 nil。
func fontNames(path string) []string {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var fonts []*sfnt.Font
	if c, err := sfnt.ParseCollection(b); err == nil {
		for i := 0; i < c.NumFonts(); i++ {
			if f, err := c.Font(i); err == nil {
				fonts = append(fonts, f)
			}
		}
	} else if f, err := sfnt.Parse(b); err == nil {
		fonts = append(fonts, f)
	}

	var buf sfnt.Buffer
	var out []string
	for _, f := range fonts {
		for _, id := range nameIDs {
			if n, err := f.Name(&buf, id); err == nil && n != "" {
				out = append(out, n)
			}
		}
	}
	return out
}

// fontKey 忽略大小写、空格、连字符与下划线（"Foo Bold" 与 "Foo-Bold" 视为同名）。
func fontKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch r {
		case ' ', '-', '_':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
