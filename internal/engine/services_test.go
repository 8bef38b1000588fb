package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const meltOutput = `---
filters:
  - affine
  - avfilter.lut3d
  - brightness
...
---
transitions:
  - luma
  - composite
  - qtblend
...
`

func TestLoadServices_MultiDocument(t *testing.T) {
	s, err := LoadServices(strings.NewReader(meltOutput))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !s.HasFilter("avfilter.lut3d") || s.HasFilter("frei0r.nope") {
		t.Fatalf("filter 查询不符合预期")
	}
	if !s.HasTransition("qtblend") || s.HasTransition("affine") {
		t.Fatalf("transition 查询不符合预期")
	}
	if got := s.Filters(); len(got) != 3 || got[0] != "affine" {
		t.Fatalf("Filters 不符合预期：%#v", got)
	}
}

func TestLoadServices_EmptyIsError(t *testing.T) {
	if _, err := LoadServices(strings.NewReader("---\nproducers:\n  - color\n")); err == nil {
		t.Fatalf("期望空清单报错")
	}
	if _, err := LoadServices(strings.NewReader("filters: [a\n")); err == nil {
		t.Fatalf("期望非法 YAML 报错")
	}
}

func TestUnknownServices_AcceptEverything(t *testing.T) {
	s, err := LoadServicesFile("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if s.Known() || !s.HasFilter("anything") || !s.HasTransition("anything") {
		t.Fatalf("未知清单应放行所有服务")
	}
	var nilSet *Services
	if !nilSet.HasFilter("x") {
		t.Fatalf("nil 集合应放行")
	}
}

func TestLoadServicesFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "services.yaml")
	if err := os.WriteFile(p, []byte(meltOutput), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	s, err := LoadServicesFile(p)
	if err != nil || !s.Known() {
		t.Fatalf("读取清单失败：%v", err)
	}
	if _, err := LoadServicesFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("文件不存在应报错")
	}
}
