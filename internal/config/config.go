package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/mod/semver"

	"github.com/John-Robertt/kdcheck/internal/domain"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeProjectNotFound 表示工程文件不存在或不是普通文件。
	ErrCodeProjectNotFound = "project_not_found"
)

const (
	// FileName 是工程目录下可选的配置文件名。
	FileName = "kdcheck.json"
	// DotEnvName 是工程目录下可选的环境变量文件名。
	DotEnvName = ".env"

	DefaultEngineVersion = "7.22.0"
	DefaultHashCacheSize = 4096
)

// 环境变量覆盖：列表以 os.PathListSeparator 分隔。
const (
	EnvSearchRoots = "KDCHECK_SEARCH_ROOTS"
	EnvLumaDirs    = "KDCHECK_LUMA_DIRS"
	EnvFontDirs    = "KDCHECK_FONT_DIRS"
	EnvPolicy      = "KDCHECK_POLICY"
)

// DefaultLumaDirs / DefaultFontDirs 在配置与环境变量都未指定时使用。
var (
	DefaultLumaDirs = []string{"/usr/share/kdenlive/lumas", "/usr/share/mlt-7/lumas", "/usr/share/mlt/lumas"}
	DefaultFontDirs = []string{"/usr/share/fonts", "/usr/local/share/fonts", "~/.local/share/fonts", "~/.fonts"}
)

// CLIArgs 是 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Project string

	Policy    string
	PolicySet bool

	Apply    bool
	ApplySet bool

	// SearchRoots 来自可重复的 --search-root，追加在配置与环境变量之后。
	SearchRoots []string
}

// FileConfig 对应 kdcheck.json 的解析结构。
type FileConfig struct {
	Policy          string   `json:"policy"`
	Apply           *bool    `json:"apply"`
	RecreateProxies *bool    `json:"recreate_proxies"`
	SearchRoots     []string `json:"search_roots"`
	ExcludeDirs     []string `json:"exclude_dirs"`
	MaxSearchDepth  int      `json:"max_search_depth"`
	LumaDirs        []string `json:"luma_dirs"`
	LutDirs         []string `json:"lut_dirs"`
	FontDirs        []string `json:"font_dirs"`
	FontFallback    []string `json:"font_fallback"`
	EngineVersion   string   `json:"engine_version"`
	ServicesFile    string   `json:"services_file"`
	HashCacheSize   int      `json:"hash_cache_size"`
}

// EffectiveConfig 是合并并规范化后的最终配置（路径均为绝对路径）。
type EffectiveConfig struct {
	Project    string
	ProjectDir string

	Policy          domain.Policy
	Apply           bool
	RecreateProxies bool

	SearchRoots    []string
	ExcludeDirs    []string
	MaxSearchDepth int

	LumaDirs      []string
	LutDirs       []string
	FontDirs      []string
	FontFallback  []string
	EngineVersion string
	ServicesFile  string
	HashCacheSize int
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeProjectNotFound:
		return fmt.Sprintf("%s：工程文件 %q 不存在", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取工程目录下的配置与 .env，然后与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：
// - policy：CLI > 环境变量 > config > 默认 keep
// - apply：CLI --apply/--apply=false > config > 默认 false
// - search_roots：config + 环境变量 + CLI 依次追加（去重）
// - luma_dirs/font_dirs：环境变量 > config > 内置默认
// - 其他字段：仅由 config 控制
//
// 环境变量先查进程环境，再查工程目录下的 .env（不修改进程环境）。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}
	if strings.TrimSpace(cli.Project) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeProjectNotFound, Path: "", Err: os.ErrNotExist}
	}
	project := absCleanFrom(cwdAbs, cli.Project)
	fi, err := os.Stat(project)
	if err != nil || !fi.Mode().IsRegular() {
		if err == nil {
			err = fmt.Errorf("不是普通文件")
		}
		return EffectiveConfig{}, &Error{Code: ErrCodeProjectNotFound, Path: project, Err: err}
	}
	projectDir := filepath.Dir(project)

	cfgPath := filepath.Join(projectDir, FileName)
	fc, _, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	envPath := filepath.Join(projectDir, DotEnvName)
	env, err := readEnv(envPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: envPath, Err: err}
	}

	return merge(project, cli, fc, env, cfgPath)
}

func merge(project string, cli CLIArgs, fc FileConfig, env func(string) string, cfgPath string) (EffectiveConfig, error) {
	base := filepath.Dir(project)
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	policyRaw := fc.Policy
	if v := env(EnvPolicy); v != "" {
		policyRaw = v
	}
	if cli.PolicySet {
		policyRaw = cli.Policy
	}
	policy, err := domain.ParsePolicy(policyRaw)
	if err != nil {
		return invalid(err)
	}

	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	recreate := true
	if fc.RecreateProxies != nil {
		recreate = *fc.RecreateProxies
	}

	if fc.MaxSearchDepth < 0 {
		return invalid(fmt.Errorf("max_search_depth 不能为负数：%d", fc.MaxSearchDepth))
	}
	if fc.HashCacheSize < 0 {
		return invalid(fmt.Errorf("hash_cache_size 不能为负数：%d", fc.HashCacheSize))
	}
	hashCache := fc.HashCacheSize
	if hashCache == 0 {
		hashCache = DefaultHashCacheSize
	}

	engineVersion := strings.TrimSpace(fc.EngineVersion)
	if engineVersion == "" {
		engineVersion = DefaultEngineVersion
	}
	if !semver.IsValid("v" + strings.TrimPrefix(engineVersion, "v")) {
		return invalid(fmt.Errorf("engine_version 不是合法版本号：%q", engineVersion))
	}

	roots := append(append([]string(nil), fc.SearchRoots...), splitList(env(EnvSearchRoots))...)
	roots = append(roots, cli.SearchRoots...)

	lumaDirs := pick(splitList(env(EnvLumaDirs)), fc.LumaDirs, DefaultLumaDirs)
	fontDirs := pick(splitList(env(EnvFontDirs)), fc.FontDirs, DefaultFontDirs)

	services := ""
	if s := strings.TrimSpace(fc.ServicesFile); s != "" {
		services = absCleanFrom(base, expandHome(s))
	}

	return EffectiveConfig{
		Project:         project,
		ProjectDir:      base,
		Policy:          policy,
		Apply:           apply,
		RecreateProxies: recreate,
		SearchRoots:     absList(base, roots),
		ExcludeDirs:     absList(base, fc.ExcludeDirs),
		MaxSearchDepth:  fc.MaxSearchDepth,
		LumaDirs:        absList(base, lumaDirs),
		LutDirs:         absList(base, fc.LutDirs),
		FontDirs:        absList(base, fontDirs),
		FontFallback:    trimList(fc.FontFallback),
		EngineVersion:   engineVersion,
		ServicesFile:    services,
		HashCacheSize:   hashCache,
	}, nil
}

func pick(lists ...[]string) []string {
	for _, l := range lists {
		if len(trimList(l)) > 0 {
			return l
		}
	}
	return nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return filepath.SplitList(s)
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// absList 把列表规范化为绝对路径并去重（保持首次出现的顺序）。
func absList(base string, in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range trimList(in) {
		p := absCleanFrom(base, expandHome(s))
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// readEnv 返回环境变量查找函数：进程环境（非空）优先，其次是 .env 文件（不存在时忽略）。
func readEnv(path string) (func(string) string, error) {
	file := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		m, err := godotenv.Read(path)
		if err != nil {
			return nil, err
		}
		file = m
	}
	return func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(file[key])
	}, nil
}
