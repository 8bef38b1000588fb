// Package luma 负责转场 luma（灰度擦除图）与 LUT 文件的定位。
//
// 两类来源：
// - 引擎内置：新版本引擎自带 lumaNN.pgm，工程里只写文件名，不需要磁盘文件
// - 安装目录：按 HD/PAL 分目录存放，扩展名可能是 .pgm 或 .png
package luma

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

//go:embed builtin.yaml
var builtinYAML []byte

type table struct {
	BuiltinSince string            `yaml:"builtin_since"`
	Builtin      []string          `yaml:"builtin"`
	Renames      map[string]string `yaml:"renames"`
}

func loadTable(b []byte) (table, error) {
	var t table
	if err := yaml.Unmarshal(b, &t); err != nil {
		return table{}, fmt.Errorf("luma: 解析内置表失败：%w", err)
	}
	if !semver.IsValid(canonical(t.BuiltinSince)) {
		return table{}, fmt.Errorf("luma: builtin_since 非法：%q", t.BuiltinSince)
	}
	return t, nil
}

// Catalog 是一次会话使用的 luma/LUT 查找表。
type Catalog struct {
	LumaDirs []string
	LutDirs  []string
	// HD 决定优先查找 HD 还是 PAL 子目录（来自工程 profile）。
	HD bool
	// EngineVersion 是目标引擎版本（如 "7.22.0"）；为空表示未知，此时不认定任何内置 luma。
	EngineVersion string

	builtin map[string]struct{}
	renames map[string]string
	since   string
}

func NewCatalog(lumaDirs, lutDirs []string, hd bool, engineVersion string) (*Catalog, error) {
	t, err := loadTable(builtinYAML)
	if err != nil {
		return nil, err
	}
	v := strings.TrimSpace(engineVersion)
	if v != "" && !semver.IsValid(canonical(v)) {
		return nil, fmt.Errorf("luma: engine_version 非法：%q", engineVersion)
	}
	c := &Catalog{
		LumaDirs:      lumaDirs,
		LutDirs:       lutDirs,
		HD:            hd,
		EngineVersion: v,
		builtin:       make(map[string]struct{}, len(t.Builtin)),
		renames:       t.Renames,
		since:         canonical(t.BuiltinSince),
	}
	for _, n := range t.Builtin {
		c.builtin[n] = struct{}{}
	}
	return c, nil
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func (c *Catalog) hasBuiltins() bool {
	return c.EngineVersion != "" && semver.Compare(canonical(c.EngineVersion), c.since) >= 0
}

// IsBuiltIn 判断 file 是否指向引擎内置 luma（只看文件名）。
func (c *Catalog) IsBuiltIn(file string) bool {
	if !c.hasBuiltins() {
		return false
	}
	_, ok := c.builtin[filepath.Base(file)]
	return ok
}

// FixLumaPath 为缺失的 luma 找到当前可用的替代：
// 1) 旧资源名在新引擎上映射为内置名（返回裸文件名）
// 2) 已是内置名则原样返回文件名
// 3) 依次在安装目录中查找（HD/PAL 子目录、.pgm/.png 互换）
// 找不到返回空串。
func (c *Catalog) FixLumaPath(file string) string {
	base := filepath.Base(strings.TrimSpace(file))
	if base == "" || base == "." {
		return ""
	}
	if c.hasBuiltins() {
		if to, ok := c.renames[base]; ok {
			return to
		}
		if _, ok := c.builtin[base]; ok {
			return base
		}
	}
	for _, dir := range c.LumaDirs {
		if p := c.SearchLuma(dir, base); p != "" {
			return p
		}
	}
	return ""
}

// SearchLuma 在 dir（及其 HD/PAL 子目录）中查找 file；返回找到的绝对路径或空串。
func (c *Catalog) SearchLuma(dir, file string) string {
	if strings.TrimSpace(dir) == "" {
		return ""
	}
	sub := []string{"PAL", "HD"}
	if c.HD {
		sub = []string{"HD", "PAL"}
	}
	names := alternates(filepath.Base(file))
	for _, d := range []string{filepath.Join(dir, sub[0]), filepath.Join(dir, sub[1]), dir} {
		for _, n := range names {
			p := filepath.Join(d, n)
			if isFile(p) {
				return p
			}
		}
	}
	return ""
}

// FixLutFile 在配置的 LUT 目录中按文件名查找替代。
func (c *Catalog) FixLutFile(file string) string {
	base := filepath.Base(strings.TrimSpace(file))
	if base == "" || base == "." {
		return ""
	}
	for _, dir := range c.LutDirs {
		p := filepath.Join(dir, base)
		if isFile(p) {
			return p
		}
	}
	return ""
}

func alternates(name string) []string {
	ext := strings.ToLower(filepath.Ext(name))
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	switch ext {
	case ".pgm":
		return []string{name, stem + ".png"}
	case ".png":
		return []string{name, stem + ".pgm"}
	}
	return []string{name}
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
