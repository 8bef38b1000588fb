package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestCheckReport_Finalize_SummaryCountsAndUTC(t *testing.T) {
	r := CheckReport{
		Project:    "/abs/p.kdenlive",
		DryRun:     true,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []DocumentResource{
			{Type: TypeClip, Status: StatusFixed, OriginalFilePath: "/a.mp4"},
			{Type: TypeClip, Status: StatusMissingButProxy, OriginalFilePath: "/b.mp4"},
			{Type: TypeTitleFont, Status: StatusMissing, OriginalFilePath: "Foo-Bold"},
		},
		Remaining: []DocumentResource{
			{Type: TypeTitleFont, Status: StatusMissing, OriginalFilePath: "Foo-Bold"},
			{Type: TypeClip, Status: StatusMissingButProxy, OriginalFilePath: "/b.mp4"},
		},
	}

	r.Finalize()

	if r.Summary.Fixed != 1 || r.Summary.MissingButProxy != 1 || r.Summary.Missing != 1 || r.Summary.Remaining != 2 {
		t.Fatalf("summary 统计不正确：%+v", r.Summary)
	}
	if r.Remaining[0].Type != TypeClip {
		t.Fatalf("remaining 应按 type 排序：%+v", r.Remaining)
	}
	if r.Counts["clip"] != 1 || r.Counts["title_font"] != 1 || r.Counts["luma"] != 0 {
		t.Fatalf("counts 不正确：%v", r.Counts)
	}
	if r.InfoMessages == nil || r.ProxiesToRecreate == nil {
		t.Fatalf("切片字段应规范化为空切片")
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
	if !bytes.Contains(b, []byte("\"status\":\"missing_but_proxy\"")) {
		t.Fatalf("status 应以文本形式输出：%s", string(b))
	}
}

func TestMissingStatus_CanBecome(t *testing.T) {
	cases := []struct {
		from, to MissingStatus
		want     bool
	}{
		{StatusMissing, StatusFixed, true},
		{StatusMissing, StatusPlaceholder, true},
		{StatusMissing, StatusRemove, true},
		{StatusMissing, StatusMissingButProxy, true},
		{StatusMissingButProxy, StatusFixed, true},
		{StatusMissingButProxy, StatusRemove, true},
		{StatusMissingButProxy, StatusPlaceholder, false},
		{StatusFixed, StatusMissing, false},
		{StatusRemove, StatusFixed, false},
		{StatusPlaceholder, StatusMissing, false},
	}
	for _, c := range cases {
		if got := c.from.CanBecome(c.to); got != c.want {
			t.Fatalf("%s -> %s：期望 %v，实际 %v", c.from, c.to, c.want, got)
		}
	}
}

func TestDocumentResource_Size(t *testing.T) {
	if n, ok := (DocumentResource{FileSize: "1024"}).Size(); !ok || n != 1024 {
		t.Fatalf("期望 1024，实际 %d ok=%v", n, ok)
	}
	if _, ok := (DocumentResource{FileSize: ""}).Size(); ok {
		t.Fatalf("空 FileSize 应返回 ok=false")
	}
	if _, ok := (DocumentResource{FileSize: "x"}).Size(); ok {
		t.Fatalf("非法 FileSize 应返回 ok=false")
	}
}

func TestReadableNames(t *testing.T) {
	if got := StatusMissingButProxy.String(); got != "missing_but_proxy" {
		t.Fatalf("状态名不符合预期：%q", got)
	}
	if got := MissingStatus(99).String(); got != "status(99)" {
		t.Fatalf("越界状态名不符合预期：%q", got)
	}
	if got := TypeTitleFont.String(); got != "title_font" {
		t.Fatalf("类型名不符合预期：%q", got)
	}
	if got := ClipSlideShow.String(); got != "slideshow" {
		t.Fatalf("clip 类型名不符合预期：%q", got)
	}
	if got := ClipType(-1).String(); got != "unknown" {
		t.Fatalf("越界 clip 类型名不符合预期：%q", got)
	}

	b, err := json.Marshal(DocumentResource{Type: TypeLuma, Status: StatusRemove, ClipType: ClipImage})
	if err != nil {
		t.Fatalf("序列化失败：%v", err)
	}
	for _, want := range []string{`"type":"luma"`, `"status":"remove"`, `"clip_type":"image"`} {
		if !bytes.Contains(b, []byte(want)) {
			t.Fatalf("JSON 缺少 %s：%s", want, b)
		}
	}
}
