package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	ErrCodeProjectNotFound = "project_not_found"
	ErrCodeProjectInvalid  = "project_invalid"
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeIOFailed        = "io_failed"
	ErrCodeCrossDevice     = "cross_device"
	ErrCodeCancelled       = "cancelled"
)

// CheckReport 是对外稳定输出（report.json / stdout JSON）的结构。
type CheckReport struct {
	SessionID string `json:"session_id"`
	Project   string `json:"project"`
	DryRun    bool   `json:"dry_run"`
	Saved     bool   `json:"saved"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary  `json:"summary"`
	Counts  map[string]int `json:"counts"`

	// Items 是首轮检查得到的完整资源列表（发现顺序）。
	Items []DocumentResource `json:"items"`
	// Remaining 是修复后复检仍存在的问题。
	Remaining []DocumentResource `json:"remaining"`

	InfoMessages      []string `json:"info_messages"`
	ProxiesToRecreate []string `json:"proxies_to_recreate"`

	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

type ReportSummary struct {
	Fixed           int `json:"fixed"`
	Reload          int `json:"reload"`
	Missing         int `json:"missing"`
	MissingButProxy int `json:"missing_but_proxy"`
	Placeholder     int `json:"placeholder"`
	Remove          int `json:"remove"`
	Remaining       int `json:"remaining"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) remaining 稳定排序：按 type，再按原始路径
// 3) summary/counts 由 items/remaining 计算得出
func (r *CheckReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Items == nil {
		r.Items = []DocumentResource{}
	}
	if r.Remaining == nil {
		r.Remaining = []DocumentResource{}
	}
	if r.InfoMessages == nil {
		r.InfoMessages = []string{}
	}
	if r.ProxiesToRecreate == nil {
		r.ProxiesToRecreate = []string{}
	}

	sort.SliceStable(r.Remaining, func(i, j int) bool {
		a, b := r.Remaining[i], r.Remaining[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.OriginalFilePath < b.OriginalFilePath
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusFixed:
			s.Fixed++
		case StatusReload:
			s.Reload++
		case StatusMissing:
			s.Missing++
		case StatusMissingButProxy:
			s.MissingButProxy++
		case StatusPlaceholder:
			s.Placeholder++
		case StatusRemove:
			s.Remove++
		}
	}
	s.Remaining = len(r.Remaining)
	r.Summary = s

	counts := make(map[string]int, len(AllMissingTypes))
	for _, t := range AllMissingTypes {
		counts[t.String()] = 0
	}
	for _, it := range r.Remaining {
		counts[it.Type.String()]++
	}
	r.Counts = counts
}

// MarshalJSON 仅用于集中约束输出的稳定性（map 由 encoding/json 按 key 排序输出）。
func (r CheckReport) MarshalJSON() ([]byte, error) {
	type Alias CheckReport
	return json.Marshal(Alias(r))
}
