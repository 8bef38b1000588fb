// Package engine 读取多媒体引擎的服务清单（melt -query 的 YAML 输出），用于判断工程里的滤镜/转场是否可用。
package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type query struct {
	Filters     []string `yaml:"filters"`
	Transitions []string `yaml:"transitions"`
	Producers   []string `yaml:"producers"`
}

// Services 是引擎可用服务的集合。零值表示“未知”，此时所有查询都返回 true。
type Services struct {
	known       bool
	filters     map[string]struct{}
	transitions map[string]struct{}
	producers   map[string]struct{}
}

// LoadServices 解析一段或多段 YAML 文档（melt -query filters / transitions 可以拼接在一起）。
func LoadServices(r io.Reader) (*Services, error) {
	s := &Services{
		known:       true,
		filters:     map[string]struct{}{},
		transitions: map[string]struct{}{},
		producers:   map[string]struct{}{},
	}
	dec := yaml.NewDecoder(r)
	for {
		var q query
		err := dec.Decode(&q)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("engine: 解析服务清单失败：%w", err)
		}
		add(s.filters, q.Filters)
		add(s.transitions, q.Transitions)
		add(s.producers, q.Producers)
	}
	if len(s.filters) == 0 && len(s.transitions) == 0 {
		return nil, errors.New("engine: 服务清单为空")
	}
	return s, nil
}

// LoadServicesFile 读取 path；path 为空时返回“未知”集合。
func LoadServicesFile(path string) (*Services, error) {
	if path == "" {
		return &Services{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadServices(f)
}

func add(m map[string]struct{}, names []string) {
	for _, n := range names {
		if n != "" {
			m[n] = struct{}{}
		}
	}
}

// Known 表示是否加载了清单。
func (s *Services) Known() bool { return s != nil && s.known }

func (s *Services) HasFilter(name string) bool {
	if !s.Known() {
		return true
	}
	_, ok := s.filters[name]
	return ok
}

func (s *Services) HasTransition(name string) bool {
	if !s.Known() {
		return true
	}
	_, ok := s.transitions[name]
	return ok
}

// Filters 返回已知滤镜名（字典序）。
func (s *Services) Filters() []string {
	if !s.Known() {
		return nil
	}
	out := make([]string, 0, len(s.filters))
	for n := range s.filters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
