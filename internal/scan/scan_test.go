package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadDir_SortedAndExcludesCacheDir(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "b.mp4"))
	touch(t, filepath.Join(root, "a.mp4"))
	touch(t, filepath.Join(root, CacheDirName, "hashes.json"))
	touch(t, filepath.Join(root, "z", "x.mp4"))
	touch(t, filepath.Join(root, "m", "y.mp4"))

	tree := NewTree(root, nil, 0)
	files, dirs, err := tree.ReadDir(root)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(files) != 2 || files[0].Name != "a.mp4" || files[1].Name != "b.mp4" {
		t.Fatalf("files 不符合预期：%+v", files)
	}
	if files[0].Size != 1 {
		t.Fatalf("期望 size=1，实际 %d", files[0].Size)
	}
	want := []string{filepath.Join(root, "m"), filepath.Join(root, "z")}
	if len(dirs) != 2 || dirs[0] != want[0] || dirs[1] != want[1] {
		t.Fatalf("dirs 不符合预期：%v", dirs)
	}
}

func TestReadDir_ExcludeDirsFromConfig(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "render", "out.mp4"))
	touch(t, filepath.Join(root, "media", "a.mp4"))

	tree := NewTree(root, []string{"render"}, 0)
	_, dirs, err := tree.ReadDir(root)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(dirs) != 1 || dirs[0] != filepath.Join(root, "media") {
		t.Fatalf("dirs 不符合预期：%v", dirs)
	}
	if tree.Descend(filepath.Join(root, "render", "sub"), 1) {
		t.Fatalf("排除目录的子目录也不应进入")
	}
}

func TestDescend_MaxDepth(t *testing.T) {
	tree := NewTree(t.TempDir(), nil, 2)
	if !tree.Descend("/x", 2) {
		t.Fatalf("depth=2 应允许")
	}
	if tree.Descend("/x", 3) {
		t.Fatalf("depth=3 应拒绝")
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
