// Package cache 管理工程目录下 .kdcheck/ 中的会话产物：检查报告与跨会话的文件指纹缓存。
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/John-Robertt/kdcheck/internal/infra/fsx"
)

const (
	DirName    = ".kdcheck"
	ReportName = "report.json"
	HashesName = "hashes.json"

	hashesVersion = 1
)

// Store 提供 <project dir>/.kdcheck/ 下的文件读写。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
type Store struct {
	Root     string // 工程文件所在目录
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

func (s Store) Dir() string { return filepath.Join(s.Root, DirName) }

func (s Store) ReportPath() string { return filepath.Join(s.Dir(), ReportName) }

func (s Store) HashesPath() string { return filepath.Join(s.Dir(), HashesName) }

// WriteReport 覆盖写入 report.json。
func (s Store) WriteReport(b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	return fsx.WriteFileAtomic(s.Dir(), ReportName, b)
}

type hashEntry struct {
	Size    int64  `json:"size"`
	ModUnix int64  `json:"mtime"`
	Hash    string `json:"hash"`
}

type hashesFile struct {
	Version int                  `json:"version"`
	Entries map[string]hashEntry `json:"entries"`
}

// Hashes 是按 (path,size,mtime) 校验的持久化指纹缓存。
// size 或 mtime 变化的条目视为失效，查询不命中。
type Hashes struct {
	store Store

	mu      sync.Mutex
	entries map[string]hashEntry
	dirty   bool
}

// LoadHashes 读取 hashes.json；文件不存在时返回空缓存。版本不符的文件被忽略（当作空缓存）。
func (s Store) LoadHashes() (*Hashes, error) {
	h := &Hashes{store: s, entries: map[string]hashEntry{}}
	b, err := os.ReadFile(s.HashesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return h, err
	}
	var f hashesFile
	if err := json.Unmarshal(b, &f); err != nil {
		return h, fmt.Errorf("cache: %s 无法解析：%w", s.HashesPath(), err)
	}
	if f.Version == hashesVersion && f.Entries != nil {
		h.entries = f.Entries
	}
	return h, nil
}

func (h *Hashes) LookupHash(path string, size, modUnix int64) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[path]
	if !ok || e.Size != size || e.ModUnix != modUnix || e.Hash == "" {
		return "", false
	}
	return e.Hash, true
}

func (h *Hashes) RememberHash(path string, size, modUnix int64, hash string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.entries[path]; ok && e == (hashEntry{Size: size, ModUnix: modUnix, Hash: hash}) {
		return
	}
	h.entries[path] = hashEntry{Size: size, ModUnix: modUnix, Hash: hash}
	h.dirty = true
}

func (h *Hashes) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Flush 在有新条目时写回 hashes.json；只读模式下有新条目返回 ErrReadOnly。
func (h *Hashes) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dirty {
		return nil
	}
	if h.store.ReadOnly {
		return ErrReadOnly
	}
	b, err := json.MarshalIndent(hashesFile{Version: hashesVersion, Entries: h.entries}, "", "  ")
	if err != nil {
		return err
	}
	if err := fsx.WriteFileAtomic(h.store.Dir(), HashesName, append(b, '\n')); err != nil {
		return err
	}
	h.dirty = false
	return nil
}
