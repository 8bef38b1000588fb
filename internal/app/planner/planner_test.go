package planner

import (
	"context"
	"testing"

	"github.com/John-Robertt/kdcheck/internal/domain"
	"github.com/John-Robertt/kdcheck/internal/locator"
)

type stubLocator struct {
	name  string
	found map[string]string
}

func (l stubLocator) Name() string { return l.name }

func (l stubLocator) Locate(_ context.Context, it domain.DocumentResource) (string, error) {
	if p, ok := l.found[it.OriginalFilePath]; ok {
		return p, nil
	}
	return "", locator.ErrNotFound
}

func registry(t *testing.T, found map[string]string) locator.Registry {
	t.Helper()
	reg, err := locator.NewRegistry(
		stubLocator{name: locator.NameRelocate},
		stubLocator{name: locator.NameSearch, found: found},
		stubLocator{name: locator.NameLuma},
		stubLocator{name: locator.NameLUT},
		stubLocator{name: locator.NameFont},
	)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	return reg
}

func missing(t domain.MissingType, path string) domain.DocumentResource {
	return domain.DocumentResource{Status: domain.StatusMissing, Type: t, OriginalFilePath: path, ClipID: "2"}
}

func byIndex(ds []domain.Decision) map[int]domain.Decision {
	m := make(map[int]domain.Decision, len(ds))
	for _, d := range ds {
		m[d.Index] = d
	}
	return m
}

func TestPlan_FoundCandidateIsFixed(t *testing.T) {
	items := []domain.DocumentResource{
		{Status: domain.StatusFixed, Type: domain.TypeClip, OriginalFilePath: "/old/x.mp4"},
		missing(domain.TypeClip, "/old/a.mp4"),
	}
	ds, err := Plan(context.Background(), items, registry(t, map[string]string{"/old/a.mp4": "/new/a.mp4"}), Options{Policy: domain.PolicyKeep})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(ds) != 1 {
		t.Fatalf("期望 1 条决定，实际 %+v", ds)
	}
	d := ds[0]
	if d.Index != 1 || d.Status != domain.StatusFixed || d.NewFilePath != "/new/a.mp4" || d.Reason != locator.NameSearch {
		t.Fatalf("决定不符合预期：%+v", d)
	}
}

func TestPlan_ClipPolicy(t *testing.T) {
	items := []domain.DocumentResource{
		missing(domain.TypeClip, "/gone/a.mp4"),
		{Status: domain.StatusMissingButProxy, Type: domain.TypeClip, OriginalFilePath: "/gone/b.mp4"},
	}
	reg := registry(t, nil)

	cases := []struct {
		policy  domain.Policy
		first   domain.MissingStatus
		hasNext bool
	}{
		{domain.PolicyPlaceholder, domain.StatusPlaceholder, false},
		{domain.PolicyRemove, domain.StatusRemove, true},
	}
	for _, c := range cases {
		ds, err := Plan(context.Background(), items, reg, Options{Policy: c.policy})
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		m := byIndex(ds)
		if m[0].Status != c.first {
			t.Fatalf("policy=%s：期望 %s，实际 %+v", c.policy, c.first, m[0])
		}
		if _, ok := m[1]; ok != c.hasNext {
			t.Fatalf("policy=%s：有代理的素材决定不符合预期：%+v", c.policy, ds)
		}
	}

	ds, _ := Plan(context.Background(), items, reg, Options{Policy: domain.PolicyKeep})
	if len(ds) != 0 {
		t.Fatalf("keep 策略不应产生决定：%+v", ds)
	}
}

func TestPlan_ProxyReloadOrRemove(t *testing.T) {
	items := []domain.DocumentResource{missing(domain.TypeProxy, "/gone/a_proxy.mp4")}
	reg := registry(t, nil)

	ds, _ := Plan(context.Background(), items, reg, Options{RecreateProxies: true})
	if len(ds) != 1 || ds[0].Status != domain.StatusReload {
		t.Fatalf("期望 Reload，实际 %+v", ds)
	}
	ds, _ = Plan(context.Background(), items, reg, Options{})
	if len(ds) != 1 || ds[0].Status != domain.StatusRemove {
		t.Fatalf("期望 Remove，实际 %+v", ds)
	}
}

func TestPlan_AssetsAndTitles(t *testing.T) {
	items := []domain.DocumentResource{
		missing(domain.TypeLuma, "/gone/wipe.pgm"),
		missing(domain.TypeAssetFile, "/gone/film.cube"),
		missing(domain.TypeTitleImage, "/gone/logo.png"),
		missing(domain.TypeTitleFont, "Foo-Bold"),
	}
	reg := registry(t, nil)

	ds, _ := Plan(context.Background(), items, reg, Options{Policy: domain.PolicyPlaceholder})
	m := byIndex(ds)
	if len(ds) != 1 || m[0].Status != domain.StatusRemove {
		t.Fatalf("placeholder 策略只应去掉 luma：%+v", ds)
	}

	ds, _ = Plan(context.Background(), items, reg, Options{Policy: domain.PolicyRemove})
	m = byIndex(ds)
	if len(ds) != 2 || m[0].Status != domain.StatusRemove || m[1].Status != domain.StatusRemove {
		t.Fatalf("remove 策略应去掉 luma 与资源文件：%+v", ds)
	}
}

func TestPlan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Plan(ctx, []domain.DocumentResource{missing(domain.TypeClip, "/gone/a.mp4")}, registry(t, nil), Options{})
	if err == nil {
		t.Fatalf("期望返回取消错误")
	}
}
