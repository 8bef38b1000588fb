package domain

import (
	"fmt"
	"strings"
)

// Policy 决定自动处理时，找不到替代文件的素材如何处置。
type Policy string

const (
	PolicyKeep        Policy = "keep"
	PolicyPlaceholder Policy = "placeholder"
	PolicyRemove      Policy = "remove"
)

// ParsePolicy 解析策略名（大小写不敏感）；空串视为 keep。
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyKeep, nil
	case PolicyKeep, PolicyPlaceholder, PolicyRemove:
		return p, nil
	default:
		return "", fmt.Errorf("未知策略：%q（可选 keep/placeholder/remove）", s)
	}
}
