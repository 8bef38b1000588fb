package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/kdcheck/internal/config"
	"github.com/John-Robertt/kdcheck/internal/domain"
)

func TestProgressUI_ItemLines(t *testing.T) {
	var buf bytes.Buffer
	ui := newProgressUI(&buf)
	ui.OnStart(config.EffectiveConfig{Project: "/p/film.kdenlive", ProjectDir: "/p", Policy: domain.PolicyKeep})
	defer ui.Close()

	ui.OnItemDone(1, 2, domain.DocumentResource{
		Status: domain.StatusFixed, Type: domain.TypeClip,
		OriginalFilePath: "/old/a.mp4", NewFilePath: "/new/a.mp4", FileSize: "2048",
	}, "search")
	ui.OnItemDone(2, 2, domain.DocumentResource{Status: domain.StatusRemove, Type: domain.TypeClip, ClipID: "7"}, "policy:remove")
	ui.OnPhaseDone("load", map[string]any{"producers": 3, "fonts": 12, "services": false}, time.Second)
	ui.OnPhaseDone("verify", map[string]any{"remaining": 0}, time.Second)

	out := buf.String()
	for _, want := range []string{
		"[1/2] FIXED clip /old/a.mp4 (2.0 kB) -> /new/a.mp4 via=search",
		"[2/2] REMOVE clip clip 7 via=policy:remove",
		"读取: producers=3 fonts=12 services=",
		"复检: remaining=0",
		`search_roots: ["/p"]`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("输出缺少 %q：\n%s", want, out)
		}
	}
}

func TestParseCheckArgs(t *testing.T) {
	ca, err := parseCheckArgs([]string{"film.kdenlive", "--policy=remove", "--apply=false", "--search-root", "/a", "--search-root=/b"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ca.Project != "film.kdenlive" || ca.Policy != "remove" || !ca.PolicySet || ca.Apply || !ca.ApplySet {
		t.Fatalf("解析结果不符合预期：%+v", ca)
	}
	if len(ca.SearchRoots) != 2 || ca.SearchRoots[1] != "/b" {
		t.Fatalf("search roots 不符合预期：%v", ca.SearchRoots)
	}

	for _, bad := range [][]string{
		{},
		{"a.kdenlive", "b.kdenlive"},
		{"a.kdenlive", "--policy", "delete"},
		{"a.kdenlive", "--apply=yes"},
		{"a.kdenlive", "--nope"},
	} {
		if _, err := parseCheckArgs(bad); err == nil {
			t.Fatalf("期望 %v 报错", bad)
		}
	}
}

func TestTruncateKeepsTail(t *testing.T) {
	if got := truncate("/very/long/path/to/file.mp4", 12); got != ".../file.mp4" {
		t.Fatalf("期望保留路径尾部，实际 %q", got)
	}
}
