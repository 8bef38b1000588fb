package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic_ReplaceAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomic(dir, "report.json", []byte("1")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomic(dir, "report.json", []byte("2")); err != nil {
		t.Fatalf("覆盖写入不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "2" {
		t.Fatalf("内容不一致：%q", string(b))
	}
	assertNoTemp(t, dir)
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	if err := WriteFileAtomic(dir, "a.txt", []byte("hello")); err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}
	assertNoTemp(t, dir)
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("不应写出最终文件")
	}
}

func TestWriteFileAtomicNoOverwrite(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFileAtomicNoOverwrite(dir, "a.txt", []byte("x")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomicNoOverwrite(dir, "a.txt", []byte("y")); !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际：%v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "d"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := WriteFileAtomicNoOverwrite(dir, "d", []byte("z")); !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%v", err)
	}
}

func TestSaveWithBackup_KeepsEveryBackup(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "film.kdenlive")
	if err := os.WriteFile(p, []byte("v1"), 0o600); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	b1, err := SaveWithBackup(p, []byte("v2"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b2, err := SaveWithBackup(p, []byte("v3"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if b1 != p+".bak" || b2 != p+".bak.1" {
		t.Fatalf("备份名不符合预期：%q %q", b1, b2)
	}
	for path, want := range map[string]string{p: "v3", b1: "v1", b2: "v2"} {
		got, err := os.ReadFile(path)
		if err != nil || string(got) != want {
			t.Fatalf("%s：期望 %q，实际 %q err=%v", path, want, got, err)
		}
	}
	fi, err := os.Stat(p)
	if err != nil {
		t.Fatalf("stat 失败：%v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("权限未保留：%v", fi.Mode().Perm())
	}
	assertNoTemp(t, dir)
}

func TestSaveWithBackup_MissingFile(t *testing.T) {
	if _, err := SaveWithBackup(filepath.Join(t.TempDir(), "nope.kdenlive"), []byte("x")); !os.IsNotExist(err) {
		t.Fatalf("期望 not exist，实际：%v", err)
	}
}

func assertNoTemp(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}
