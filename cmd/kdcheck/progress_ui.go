package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/kdcheck/internal/app/run"
	"github.com/John-Robertt/kdcheck/internal/config"
	"github.com/John-Robertt/kdcheck/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：递归搜索可能很久没有事件，定期输出一行当前阶段
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time
	phase       string

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

// 阶段完成后，下一阶段的名字（用于 keepalive 提示正在做什么）。
var nextPhase = map[string]string{
	"":       "load",
	"load":   "check",
	"check":  "plan",
	"plan":   "repair",
	"repair": "verify",
	"verify": "save",
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不保存工程/不写报告)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] kdcheck check (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  project: %s\n", eff.Project)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  policy: %s\n", eff.Policy)
	fmt.Fprintf(p.w, "  recreate_proxies: %s\n", onOff(eff.RecreateProxies))
	fmt.Fprintf(p.w, "  search_roots: %s\n", formatStringListJSON(append([]string{eff.ProjectDir}, eff.SearchRoots...)))
	fmt.Fprintf(p.w, "  exclude_dirs: %s + 固定排除 .kdcheck/\n", formatStringListJSON(eff.ExcludeDirs))
	fmt.Fprintf(p.w, "  max_search_depth: %s\n", formatDepth(eff.MaxSearchDepth))
	fmt.Fprintf(p.w, "  engine_version: %s\n", eff.EngineVersion)
	if eff.ServicesFile != "" {
		fmt.Fprintf(p.w, "  services_file: %s\n", truncate(eff.ServicesFile, 120))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	p.startTickerLocked()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "load":
		fonts := ""
		if _, ok := fields["fonts"]; ok {
			fonts = fmt.Sprintf(" fonts=%d", intField(fields, "fonts"))
		}
		fmt.Fprintf(p.w, "读取: producers=%d%s services=%s (%s)\n",
			intField(fields, "producers"), fonts, onOff(boolField(fields, "services")), formatShortDuration(dur),
		)
	case "check":
		moved := ""
		if boolField(fields, "root_moved") {
			moved = " root_moved"
		}
		fmt.Fprintf(p.w, "检查: items=%d unresolved=%d%s (%s)\n",
			intField(fields, "items"), intField(fields, "unresolved"), moved, formatShortDuration(dur),
		)
	case "plan":
		fmt.Fprintf(p.w, "定位: decisions=%d found=%d (%s)\n",
			intField(fields, "decisions"), intField(fields, "found"), formatShortDuration(dur),
		)
	case "repair":
		fmt.Fprintf(p.w, "修复: applied=%d rejected=%d (%s)\n\n",
			intField(fields, "applied"), intField(fields, "rejected"), formatShortDuration(dur),
		)
	case "verify":
		fmt.Fprintf(p.w, "\n复检: remaining=%d (%s)\n", intField(fields, "remaining"), formatShortDuration(dur))
	case "save":
		if boolField(fields, "saved") {
			fmt.Fprintf(p.w, "保存: backup=%s (%s)\n", fields["backup"], formatShortDuration(dur))
		} else {
			fmt.Fprintf(p.w, "保存: changed=%s (跳过)\n", onOff(boolField(fields, "changed")))
		}
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.phase = name
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, it domain.DocumentResource, via string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "[%d/%d] %s %s %s%s\n", idx, total, statusLabel(it.Status), it.Type, itemTarget(it), viaNote(via))
	p.lastPrinted = time.Now()
}

// Close 停止 keepalive；可重复调用。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	if p.tickerStarted {
		return
	}
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: phase=%s elapsed=%s\n", nextPhase[p.phase], formatElapsed(time.Since(p.startedAt)))
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func statusLabel(s domain.MissingStatus) string {
	switch s {
	case domain.StatusFixed:
		return "FIXED"
	case domain.StatusReload:
		return "RELOAD"
	case domain.StatusMissingButProxy:
		return "PROXY"
	case domain.StatusPlaceholder:
		return "PLACEHOLDER"
	case domain.StatusRemove:
		return "REMOVE"
	default:
		return "MISSING"
	}
}

func itemTarget(it domain.DocumentResource) string {
	src := displayPath(it)
	if n, ok := it.Size(); ok {
		src += " (" + humanize.Bytes(uint64(n)) + ")"
	}
	if it.Status == domain.StatusFixed && it.NewFilePath != "" {
		return truncate(src, 100) + " -> " + truncate(it.NewFilePath, 100)
	}
	return truncate(src, 160)
}

func viaNote(via string) string {
	via = strings.TrimSpace(via)
	if via == "" {
		return ""
	}
	return " via=" + via
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatDepth(d int) string {
	if d <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", d)
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return "..." + s[len(s)-max+3:]
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}

func boolField(fields map[string]any, key string) bool {
	v, _ := fields[key].(bool)
	return v
}
