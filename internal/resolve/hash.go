package resolve

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// hashChunk 与工程文件中 kdenlive:file_hash 的口径一致：大文件只取首尾各 1MB。
const hashChunk = 1000000

// DefaultHashMemoSize 是内存指纹缓存的默认条目数。
const DefaultHashMemoSize = 4096

// HashStore 是可选的持久化指纹缓存（跨会话复用）。
type HashStore interface {
	LookupHash(path string, size, modUnix int64) (string, bool)
	RememberHash(path string, size, modUnix int64, hash string)
}

type fingerprintKey struct {
	Path    string
	Size    int64
	ModUnix int64
}

// Hasher 计算文件/目录指纹，并以 (path,size,mtime) 为键做会话内记忆。
//
// 约束：size/mtime 任一变化都会让旧指纹失效（键不同），因此记忆永远不会返回过期结果。
type Hasher struct {
	memo  *lru.Cache[fingerprintKey, string]
	store HashStore
}

func NewHasher(memoSize int, store HashStore) *Hasher {
	if memoSize <= 0 {
		memoSize = DefaultHashMemoSize
	}
	memo, _ := lru.New[fingerprintKey, string](memoSize)
	return &Hasher{memo: memo, store: store}
}

// Hash 返回 path 的内容指纹（十六进制 MD5）。
func (h *Hasher) Hash(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	key := fingerprintKey{Path: path, Size: fi.Size(), ModUnix: fi.ModTime().Unix()}
	if v, ok := h.memo.Get(key); ok {
		return v, nil
	}
	if h.store != nil {
		if v, ok := h.store.LookupHash(key.Path, key.Size, key.ModUnix); ok {
			h.memo.Add(key, v)
			return v, nil
		}
	}

	v, _, err := FileHash(path)
	if err != nil {
		return "", err
	}
	h.memo.Add(key, v)
	if h.store != nil {
		h.store.RememberHash(key.Path, key.Size, key.ModUnix, v)
	}
	return v, nil
}

// FileHash 计算单个文件的指纹：文件大于 2MB 时取首尾各 1MB，否则取全文；MD5 后转十六进制。
func FileHash(path string) (hash string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	size = fi.Size()

	sum := md5.New()
	if size > 2*hashChunk {
		if _, err := io.CopyN(sum, f, hashChunk); err != nil {
			return "", 0, err
		}
		if _, err := f.Seek(size-hashChunk, io.SeekStart); err != nil {
			return "", 0, err
		}
		if _, err := io.Copy(sum, f); err != nil {
			return "", 0, err
		}
	} else if _, err := io.Copy(sum, f); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(sum.Sum(nil)), size, nil
}

// FolderHash 计算幻灯片/图片序列目录的指纹。
//
// 口径：pattern + 目录内文件名（字典序，逗号分隔）+ 首个文件指纹与大小 + （多于一个文件时）中间文件指纹与大小，
// 整体再做一次 MD5。目录为空时只对 pattern 取 MD5。
func (h *Hasher) FolderHash(dir, pattern string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(pattern)
	b.WriteString(strings.Join(names, ","))
	pick := []int{}
	if len(names) > 0 {
		pick = append(pick, 0)
	}
	if len(names) > 1 {
		pick = append(pick, len(names)/2)
	}
	for _, i := range pick {
		p := filepath.Join(dir, names[i])
		fh, err := h.Hash(p)
		if err != nil {
			return "", err
		}
		fi, err := os.Stat(p)
		if err != nil {
			return "", err
		}
		b.WriteString(fh)
		b.WriteString(strconv.FormatInt(fi.Size(), 10))
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}
