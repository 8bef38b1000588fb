package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// MissingStatus 是单个资源在一次检查会话中的状态。
//
// 约束（状态只能前进）：
// - Missing -> Fixed | Placeholder | Remove | MissingButProxy | Reload
// - MissingButProxy -> Fixed | Remove
// - 其余状态在同一会话内均为终态
type MissingStatus int

const (
	StatusFixed MissingStatus = iota
	StatusReload
	StatusMissing
	StatusMissingButProxy
	StatusPlaceholder
	StatusRemove
)

var statusNames = [...]string{
	StatusFixed:           "fixed",
	StatusReload:          "reload",
	StatusMissing:         "missing",
	StatusMissingButProxy: "missing_but_proxy",
	StatusPlaceholder:     "placeholder",
	StatusRemove:          "remove",
}

func (s MissingStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
	return statusNames[s]
}

func (s MissingStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *MissingStatus) UnmarshalText(b []byte) error {
	v := strings.TrimSpace(string(b))
	for i, n := range statusNames {
		if n == v {
			*s = MissingStatus(i)
			return nil
		}
	}
	return fmt.Errorf("未知 status：%q", v)
}

// CanBecome 判断 s -> to 是否是允许的状态迁移。相同状态视为允许（幂等）。
func (s MissingStatus) CanBecome(to MissingStatus) bool {
	if s == to {
		return true
	}
	switch s {
	case StatusMissing:
		switch to {
		case StatusFixed, StatusPlaceholder, StatusRemove, StatusMissingButProxy, StatusReload:
			return true
		}
	case StatusMissingButProxy:
		return to == StatusFixed || to == StatusRemove
	}
	return false
}

// Terminal 表示该状态不再接受任何迁移。
func (s MissingStatus) Terminal() bool {
	return s != StatusMissing && s != StatusMissingButProxy
}

// MissingType 是资源类别，决定修复时走哪条策略。
type MissingType int

const (
	TypeClip MissingType = iota
	TypeProxy
	TypeLuma
	TypeAssetFile
	TypeTitleImage
	TypeTitleFont
	TypeEffect
	TypeTransition
)

// AllMissingTypes 按固定顺序列出全部类型（报告输出依赖该顺序）。
var AllMissingTypes = []MissingType{
	TypeClip, TypeProxy, TypeLuma, TypeAssetFile, TypeTitleImage, TypeTitleFont, TypeEffect, TypeTransition,
}

var typeNames = [...]string{
	TypeClip:       "clip",
	TypeProxy:      "proxy",
	TypeLuma:       "luma",
	TypeAssetFile:  "asset_file",
	TypeTitleImage: "title_image",
	TypeTitleFont:  "title_font",
	TypeEffect:     "effect",
	TypeTransition: "transition",
}

func (t MissingType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
	return typeNames[t]
}

func (t MissingType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *MissingType) UnmarshalText(b []byte) error {
	v := strings.TrimSpace(string(b))
	for i, n := range typeNames {
		if n == v {
			*t = MissingType(i)
			return nil
		}
	}
	return fmt.Errorf("未知 type：%q", v)
}

// DocumentResource 是扫描阶段发现的一条外部资源引用。
//
// 不变量：
// - Clip/Proxy 类型的 ClipID 在同一列表内唯一
// - NewFilePath 只有在找到修复候选后才会填写
// - Hash/FileSize 来自工程文件中记录的指纹（kdenlive:file_hash / kdenlive:file_size），可能为空
type DocumentResource struct {
	Status           MissingStatus `json:"status"`
	Type             MissingType   `json:"type"`
	OriginalFilePath string        `json:"original_file_path"`
	NewFilePath      string        `json:"new_file_path,omitempty"`
	ClipID           string        `json:"clip_id,omitempty"`
	Hash             string        `json:"hash,omitempty"`
	FileSize         string        `json:"file_size,omitempty"`
	ClipType         ClipType      `json:"clip_type"`
}

// Size 解析 FileSize；为空或非法时 ok=false。
func (r DocumentResource) Size() (int64, bool) {
	s := strings.TrimSpace(r.FileSize)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Decision 是对某条资源的处理决定（由自动规划或交互界面产生），交给修复引擎执行。
type Decision struct {
	Index       int           `json:"index"`
	Status      MissingStatus `json:"status"`
	NewFilePath string        `json:"new_file_path,omitempty"`
	Reason      string        `json:"reason,omitempty"`
}
