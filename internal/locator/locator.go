package locator

import (
	"context"
	"errors"

	"github.com/John-Robertt/kdcheck/internal/domain"
)

// ErrNotFound 表示定位器没有找到候选。
var ErrNotFound = errors.New("未找到候选")

// Locator 把“去哪里找替代文件”的策略限制在 locator 包内部；规划只依赖统一接口。
//
// 约束：
// - Locate 只读文件系统，不修改文档
// - 找不到时返回 ErrNotFound（其它错误视为定位器自身故障）
// - 返回的候选必须已通过该类资源的校验（Clip 需与记录的大小/指纹一致）
type Locator interface {
	Name() string
	Locate(ctx context.Context, it domain.DocumentResource) (string, error)
}
