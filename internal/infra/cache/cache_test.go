package cache

import (
	"errors"
	"os"
	"testing"
)

func TestStore_WriteReport(t *testing.T) {
	root := t.TempDir()

	s := New(root, false)
	if err := s.WriteReport([]byte(`{"ok":true}`)); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := os.ReadFile(s.ReportPath())
	if err != nil {
		t.Fatalf("读取报告失败：%v", err)
	}
	if string(b) != `{"ok":true}` {
		t.Fatalf("内容不一致：%q", string(b))
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	root := t.TempDir()

	s := New(root, true)
	if err := s.WriteReport([]byte(`{}`)); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}
	if _, err := os.Stat(s.Dir()); !os.IsNotExist(err) {
		t.Fatalf("只读模式不应创建 .kdcheck：err=%v", err)
	}

	h, err := s.LoadHashes()
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	h.RememberHash("/a.mp4", 1, 2, "x")
	if err := h.Flush(); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}
	if got, ok := h.LookupHash("/a.mp4", 1, 2); !ok || got != "x" {
		t.Fatalf("只读模式下内存中的条目仍应可用")
	}
}

func TestHashes_PersistAndInvalidate(t *testing.T) {
	root := t.TempDir()
	s := New(root, false)

	h, err := s.LoadHashes()
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	h.RememberHash("/media/a.mp4", 100, 1700000000, "abc")
	if err := h.Flush(); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	h2, err := s.LoadHashes()
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got, ok := h2.LookupHash("/media/a.mp4", 100, 1700000000); !ok || got != "abc" {
		t.Fatalf("期望命中持久化缓存，实际 %q ok=%v", got, ok)
	}
	if _, ok := h2.LookupHash("/media/a.mp4", 100, 1700000001); ok {
		t.Fatalf("mtime 变化后不应命中")
	}
	if _, ok := h2.LookupHash("/media/a.mp4", 101, 1700000000); ok {
		t.Fatalf("size 变化后不应命中")
	}
}

func TestHashes_CorruptFile(t *testing.T) {
	root := t.TempDir()
	s := New(root, false)
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(s.HashesPath(), []byte("{"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	h, err := s.LoadHashes()
	if err == nil {
		t.Fatalf("期望解析错误")
	}
	if h == nil || h.Len() != 0 {
		t.Fatalf("解析失败时应返回可用的空缓存")
	}
}
