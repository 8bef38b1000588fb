package locator

import (
	"fmt"
	"strings"
)

// Registry 是定位器的只读注册表（按 name 索引）。
type Registry struct {
	byName map[string]Locator
}

func NewRegistry(locators ...Locator) (Registry, error) {
	byName := make(map[string]Locator, len(locators))
	for _, l := range locators {
		if l == nil {
			return Registry{}, fmt.Errorf("locator 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(l.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("locator.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 locator：%q", name)
		}
		byName[name] = l
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Locator, bool) {
	if r.byName == nil {
		return nil, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	l, ok := r.byName[name]
	return l, ok
}
