package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/John-Robertt/kdcheck/internal/domain"
)

// Attempt 记录一次定位尝试（用于解释为什么用了某个候选，或为什么没找到）。
type Attempt struct {
	Locator string // locator name（小写）
	Stage   string // "skip" / "miss" / "error" / "ok"
	Err     error  // Stage=="ok" 时为 nil
}

// Locate 按资源类型的固定顺序尝试定位器，返回首个候选。
func Locate(ctx context.Context, reg Registry, it domain.DocumentResource) (path, used string, err error) {
	path, used, _, err = LocateTrace(ctx, reg, it)
	return path, used, err
}

// LocateTrace 与 Locate 相同，但额外返回尝试链路。
func LocateTrace(ctx context.Context, reg Registry, it domain.DocumentResource) (path, used string, attempts []Attempt, err error) {
	if it.OriginalFilePath == "" {
		return "", "", nil, fmt.Errorf("original_file_path 不能为空")
	}

	var lastErr error = ErrNotFound
	for _, name := range Order(it.Type) {
		if cerr := ctx.Err(); cerr != nil {
			return "", "", attempts, cerr
		}
		l, ok := reg.Get(name)
		if !ok {
			attempts = append(attempts, Attempt{Locator: name, Stage: "skip", Err: fmt.Errorf("locator 未注册：%q", name)})
			continue
		}
		p, lerr := l.Locate(ctx, it)
		switch {
		case lerr == nil && p != "":
			attempts = append(attempts, Attempt{Locator: name, Stage: "ok"})
			return p, name, attempts, nil
		case lerr == nil || errors.Is(lerr, ErrNotFound):
			attempts = append(attempts, Attempt{Locator: name, Stage: "miss", Err: ErrNotFound})
		default:
			lastErr = &Error{Locator: name, Err: lerr}
			attempts = append(attempts, Attempt{Locator: name, Stage: "error", Err: lerr})
		}
	}
	return "", "", attempts, lastErr
}

// Error 是定位器自身故障（不是“没找到”）。
type Error struct {
	Locator string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("locator=%s: %v", e.Locator, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Order 返回资源类型对应的定位器顺序：先做不需要遍历目录的查找，递归搜索放在最后。
func Order(t domain.MissingType) []string {
	switch t {
	case domain.TypeClip, domain.TypeProxy, domain.TypeTitleImage:
		return []string{NameRelocate, NameSearch}
	case domain.TypeLuma:
		return []string{NameLuma, NameRelocate, NameSearch}
	case domain.TypeAssetFile:
		return []string{NameLUT, NameRelocate, NameSearch}
	case domain.TypeTitleFont:
		return []string{NameFont}
	default:
		return nil
	}
}
