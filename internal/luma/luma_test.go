package luma

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinTable_Loads(t *testing.T) {
	tb, err := loadTable(builtinYAML)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(tb.Builtin) != 22 {
		t.Fatalf("内置 luma 数量不符合预期：%d", len(tb.Builtin))
	}
	for from, to := range tb.Renames {
		found := false
		for _, b := range tb.Builtin {
			if b == to {
				found = true
			}
		}
		if !found {
			t.Fatalf("rename %s -> %s 指向了未知内置名", from, to)
		}
	}
}

func TestIsBuiltIn_DependsOnEngineVersion(t *testing.T) {
	newer, err := NewCatalog(nil, nil, false, "7.24.0")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !newer.IsBuiltIn("luma05.pgm") {
		t.Fatalf("7.24.0 应内置 luma05.pgm")
	}
	if newer.IsBuiltIn("/usr/share/kdenlive/lumas/HD/luma05.png") {
		t.Fatalf(".png 不是内置名")
	}

	older, _ := NewCatalog(nil, nil, false, "7.20.0")
	if older.IsBuiltIn("luma05.pgm") {
		t.Fatalf("7.20.0 不应有内置 luma")
	}
	unknown, _ := NewCatalog(nil, nil, false, "")
	if unknown.IsBuiltIn("luma05.pgm") {
		t.Fatalf("版本未知时不应认定内置")
	}
}

func TestNewCatalog_InvalidVersion(t *testing.T) {
	if _, err := NewCatalog(nil, nil, false, "seven"); err == nil {
		t.Fatalf("期望非法版本报错")
	}
}

func TestFixLumaPath_RenamesLegacyName(t *testing.T) {
	c, _ := NewCatalog(nil, nil, true, "7.22.0")
	if got := c.FixLumaPath("/usr/share/mlt/lumas/HD/bar_horizontal.pgm"); got != "luma01.pgm" {
		t.Fatalf("旧名应映射为内置名，实际 %q", got)
	}
}

func TestFixLumaPath_InstalledDirsPreferProfileFolder(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "PAL", "cloud.pgm"))
	touch(t, filepath.Join(dir, "HD", "cloud.png"))

	hd, _ := NewCatalog([]string{dir}, nil, true, "7.22.0")
	if got := hd.FixLumaPath("/old/lumas/cloud.pgm"); got != filepath.Join(dir, "HD", "cloud.png") {
		t.Fatalf("HD 工程应优先 HD 目录（含扩展名互换），实际 %q", got)
	}
	pal, _ := NewCatalog([]string{dir}, nil, false, "7.22.0")
	if got := pal.FixLumaPath("/old/lumas/cloud.pgm"); got != filepath.Join(dir, "PAL", "cloud.pgm") {
		t.Fatalf("PAL 工程应优先 PAL 目录，实际 %q", got)
	}
	if got := pal.FixLumaPath("/old/lumas/none.pgm"); got != "" {
		t.Fatalf("找不到时应返回空串，实际 %q", got)
	}
}

func TestFixLutFile(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	touch(t, filepath.Join(b, "film.cube"))

	c, _ := NewCatalog(nil, []string{a, b}, false, "")
	if got := c.FixLutFile("/gone/film.cube"); got != filepath.Join(b, "film.cube") {
		t.Fatalf("LUT 查找失败：%q", got)
	}
	if got := c.FixLutFile(""); got != "" {
		t.Fatalf("空输入应返回空串")
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("P5"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
