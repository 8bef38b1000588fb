package resolve

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/John-Robertt/kdcheck/internal/domain"
	"github.com/John-Robertt/kdcheck/internal/scan"
)

func newResolver(t *testing.T, root string) *Resolver {
	t.Helper()
	return New(root, scan.NewTree(root, nil, 0), NewHasher(16, nil), nil)
}

func TestEnsureAbsolutePath(t *testing.T) {
	r := newResolver(t, "/proj")
	cases := map[string]string{
		"media/a.mp4":          filepath.Join("/proj", "media", "a.mp4"),
		"/abs/./b.mp4":         "/abs/b.mp4",
		"file:///abs/c.mp4":    "/abs/c.mp4",
		"":                     "",
		"  media/../d.png  ":   filepath.Join("/proj", "d.png"),
	}
	for in, want := range cases {
		if got := r.EnsureAbsolutePath(in); got != want {
			t.Fatalf("EnsureAbsolutePath(%q)：期望 %q，实际 %q", in, want, got)
		}
	}
}

func TestFileHash_LargeFileUsesHeadAndTail(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte("0123456789"), 250000) // 2.5MB
	data[len(data)-1] = 'X'
	p := filepath.Join(dir, "big.bin")
	write(t, p, data)

	h, size, err := FileHash(p)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if size != int64(len(data)) {
		t.Fatalf("size 不符合预期：%d", size)
	}
	sum := md5.New()
	sum.Write(data[:hashChunk])
	sum.Write(data[len(data)-hashChunk:])
	if want := hex.EncodeToString(sum.Sum(nil)); h != want {
		t.Fatalf("hash 不符合预期：%s != %s", h, want)
	}
}

func TestSearchFileRecursively_SizeThenHash(t *testing.T) {
	root := t.TempDir()
	content := []byte("the real clip bytes")
	decoy := []byte("the fake clip bytes") // 同大小，不同内容
	write(t, filepath.Join(root, "a", "decoy.mp4"), decoy)
	write(t, filepath.Join(root, "b", "renamed.mp4"), content)
	write(t, filepath.Join(root, "c", "renamed_copy.mp4"), content)

	want, size, err := FileHash(filepath.Join(root, "b", "renamed.mp4"))
	if err != nil {
		t.Fatalf("计算指纹失败：%v", err)
	}

	r := newResolver(t, root)
	got := r.SearchFileRecursively(root, strconv.FormatInt(size, 10), want, "/gone/clip.mp4")
	if got != filepath.Join(root, "b", "renamed.mp4") {
		t.Fatalf("期望命中 b/renamed.mp4（字典序首个），实际 %q", got)
	}
	fi, err := os.Stat(got)
	if err != nil || fi.Size() != size {
		t.Fatalf("命中文件大小不一致：%v", err)
	}
	if h, _, _ := FileHash(got); h != want {
		t.Fatalf("命中文件指纹不一致")
	}

	if p := r.SearchFileRecursively(root, "19", "deadbeef", "/gone/clip.mp4"); p != "" {
		t.Fatalf("不存在时应返回空串，实际 %q", p)
	}
}

func TestSearchFileRecursively_NameOnlyFallback(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "x", "y", "clip.mp4"), []byte("x"))

	r := newResolver(t, root)
	got := r.SearchFileRecursively(root, "", "", "/old/clip.mp4")
	if got != filepath.Join(root, "x", "y", "clip.mp4") {
		t.Fatalf("按名搜索失败：%q", got)
	}
}

func TestSearchFileRecursively_DepthBound(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "1", "2", "3", "clip.mp4"), []byte("x"))

	r := New(root, scan.NewTree(root, nil, 2), nil, nil)
	if got := r.SearchPathRecursively(root, "clip.mp4", domain.ClipAV); got != "" {
		t.Fatalf("超过深度限制不应命中，实际 %q", got)
	}
}

func TestSearchPathRecursively_SlideshowPattern(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "seq", "img_00001.png"), []byte("1"))
	write(t, filepath.Join(root, "seq", "img_00002.png"), []byte("2"))

	r := newResolver(t, root)
	got := r.SearchPathRecursively(root, "img_%05d.png", domain.ClipSlideShow)
	if got != filepath.Join(root, "seq", "img_%05d.png") {
		t.Fatalf("幻灯片模式搜索失败：%q", got)
	}
	got = r.SearchPathRecursively(root, ".all.png", domain.ClipSlideShow)
	if got != filepath.Join(root, "seq", ".all.png") {
		t.Fatalf(".all 模式搜索失败：%q", got)
	}
}

func TestSearchDirRecursively(t *testing.T) {
	root := t.TempDir()
	orig := filepath.Join(root, "orig")
	write(t, filepath.Join(orig, "a.png"), []byte("aaa"))
	write(t, filepath.Join(orig, "b.png"), []byte("bbbb"))

	r := newResolver(t, root)
	want, err := r.Hasher.FolderHash(orig, ".all.png")
	if err != nil {
		t.Fatalf("计算目录指纹失败：%v", err)
	}

	moved := filepath.Join(root, "archive", "moved")
	if err := os.MkdirAll(filepath.Dir(moved), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.Rename(orig, moved); err != nil {
		t.Fatalf("移动目录失败：%v", err)
	}
	// 同名文件、不同内容的干扰目录。
	write(t, filepath.Join(root, "aaa", "a.png"), []byte("zzz"))
	write(t, filepath.Join(root, "aaa", "b.png"), []byte("zzzz"))

	got := r.SearchDirRecursively(root, want, "/old/orig/.all.png")
	if got != filepath.Join(moved, ".all.png") {
		t.Fatalf("目录指纹搜索失败：%q", got)
	}
	if !r.Verify(got, "", want, domain.ClipSlideShow) {
		t.Fatalf("命中目录应通过校验")
	}
}

func TestRelocator_LearnThenRelocate(t *testing.T) {
	base := t.TempDir()
	newRoot := filepath.Join(base, "new", "project")
	write(t, filepath.Join(newRoot, "media", "a.mp4"), []byte("a"))
	write(t, filepath.Join(newRoot, "media", "b.mp4"), []byte("b"))

	oldRoot := filepath.Join(base, "old", "project")
	rl := NewRelocator()
	if got := rl.Relocate(filepath.Join(oldRoot, "media", "b.mp4")); got != "" {
		t.Fatalf("无规则时不应重定位：%q", got)
	}
	if !rl.Learn(filepath.Join(oldRoot, "media", "a.mp4"), filepath.Join(newRoot, "media", "a.mp4")) {
		t.Fatalf("应能从首次命中学到规则")
	}
	if got := rl.Relocate(filepath.Join(oldRoot, "media", "b.mp4")); got != filepath.Join(newRoot, "media", "b.mp4") {
		t.Fatalf("重定位失败：%q", got)
	}
	if got := rl.Relocate(filepath.Join(oldRoot, "media", "c.mp4")); got != "" {
		t.Fatalf("目标不存在时应返回空串：%q", got)
	}
	if rl.Learn("/x/a.mp4", "/y/a.mp4") {
		t.Fatalf("规则建立后不应再被覆盖")
	}
}

func TestRelocator_RenamedFileNotLearned(t *testing.T) {
	rl := NewRelocator()
	if rl.Learn("/old/a.mp4", "/new/b.mp4") {
		t.Fatalf("文件名不同（按指纹命中）时不应学习规则")
	}
}

func TestVerify_SizeAndHash(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "a.mp4")
	write(t, p, []byte("abc"))
	h, _, _ := FileHash(p)

	r := newResolver(t, root)
	if !r.Verify(p, "3", h, domain.ClipAV) {
		t.Fatalf("size/hash 一致时应通过")
	}
	if r.Verify(p, "4", "", domain.ClipAV) {
		t.Fatalf("size 不一致时应拒绝")
	}
	if r.Verify(p, "", "00", domain.ClipAV) {
		t.Fatalf("hash 不一致时应拒绝")
	}
	if !r.Verify(p, "", "", domain.ClipAV) {
		t.Fatalf("无指纹时只要求存在")
	}
}

func TestIsSlideshow(t *testing.T) {
	for _, s := range []string{"/a/.all.png", "/a/img_%05d.png", "/a/x.png?begin=1"} {
		if !IsSlideshow(s) {
			t.Fatalf("%q 应判定为幻灯片", s)
		}
	}
	if IsSlideshow("/a/b.png") {
		t.Fatalf("普通图片不应判定为幻灯片")
	}
}

func write(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
