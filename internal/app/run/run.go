package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/kdcheck/internal/app/planner"
	"github.com/John-Robertt/kdcheck/internal/checker"
	"github.com/John-Robertt/kdcheck/internal/config"
	"github.com/John-Robertt/kdcheck/internal/domain"
	"github.com/John-Robertt/kdcheck/internal/engine"
	"github.com/John-Robertt/kdcheck/internal/infra/cache"
	"github.com/John-Robertt/kdcheck/internal/infra/fsx"
	"github.com/John-Robertt/kdcheck/internal/locator"
	"github.com/John-Robertt/kdcheck/internal/luma"
	"github.com/John-Robertt/kdcheck/internal/mlt"
	"github.com/John-Robertt/kdcheck/internal/resolve"
	"github.com/John-Robertt/kdcheck/internal/scan"
	"github.com/John-Robertt/kdcheck/internal/title"
)

// Options 是执行期的可选依赖；零值可用。
type Options struct {
	Observer Observer
	Logger   *slog.Logger
	// Fonts 替换系统字体目录扫描（测试用）；为空时按配置扫描 FontDirs。
	Fonts title.FontCatalog
}

// Execute 执行一次检查（dry-run/apply），并返回对外稳定的 CheckReport。
// 资源问题都记录在报告里；只有工程无法读取、配置无效、写入失败时才设置 error_code。
func Execute(ctx context.Context, eff config.EffectiveConfig) domain.CheckReport {
	return ExecuteWith(ctx, eff, Options{})
}

// ExecuteWith 与 Execute 相同，但允许传入 Observer/Logger（由上层决定是否启用）。
func ExecuteWith(ctx context.Context, eff config.EffectiveConfig, opt Options) domain.CheckReport {
	obs := opt.Observer
	logger := opt.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if obs != nil {
		obs.OnStart(eff)
	}

	rep := domain.CheckReport{
		SessionID: uuid.NewString(),
		Project:   eff.Project,
		DryRun:    !eff.Apply,
		StartedAt: time.Now().UTC(),
	}
	fail := func(code string, err error) domain.CheckReport {
		rep.ErrorCode = code
		rep.ErrorMsg = err.Error()
		rep.FinishedAt = time.Now().UTC()
		rep.Finalize()
		logger.Error("检查中止", slog.String("error_code", code), slog.String("err", err.Error()))
		return rep
	}
	phase := func(name string, started time.Time, fields map[string]any) {
		if obs != nil {
			obs.OnPhaseDone(name, fields, time.Since(started))
		}
	}

	// load：工程文档 + 会话依赖
	started := time.Now()
	raw, err := os.ReadFile(eff.Project)
	if err != nil {
		if os.IsNotExist(err) {
			return fail(domain.ErrCodeProjectNotFound, err)
		}
		return fail(domain.ErrCodeIOFailed, err)
	}
	doc, err := mlt.Parse(raw)
	if err != nil {
		return fail(domain.ErrCodeProjectInvalid, err)
	}
	baseline, err := doc.Bytes()
	if err != nil {
		return fail(domain.ErrCodeProjectInvalid, err)
	}

	store := cache.New(eff.ProjectDir, !eff.Apply)
	hashes, err := store.LoadHashes()
	if err != nil {
		logger.Warn("指纹缓存不可用，已忽略", slog.String("err", err.Error()))
	}
	hasher := resolve.NewHasher(eff.HashCacheSize, hashes)
	newResolver := func() *resolve.Resolver {
		return resolve.New(eff.ProjectDir, scan.NewTree(eff.ProjectDir, eff.ExcludeDirs, eff.MaxSearchDepth), hasher, logger)
	}

	lumas, err := luma.NewCatalog(eff.LumaDirs, eff.LutDirs, doc.ProfileIsHD(), eff.EngineVersion)
	if err != nil {
		return fail(domain.ErrCodeConfigInvalid, err)
	}
	services, err := engine.LoadServicesFile(eff.ServicesFile)
	if err != nil {
		return fail(domain.ErrCodeConfigInvalid, fmt.Errorf("读取服务清单失败：%w", err))
	}
	fonts := opt.Fonts
	if fonts == nil {
		fonts = title.NewSystemFonts(eff.FontDirs)
	}
	checkerOpt := checker.Options{Lumas: lumas, Fonts: fonts, Services: services, Logger: logger}
	loaded := map[string]any{
		"producers":   len(doc.ProducersAndChains()),
		"services":    services.Known(),
		"document_id": doc.DocumentID(),
	}
	if sf, ok := fonts.(*title.SystemFonts); ok {
		loaded["fonts"] = sf.Len()
	}
	logger.Debug("工程已读取", slog.String("document_id", doc.DocumentID()), slog.Int("producers", len(doc.ProducersAndChains())))
	phase("load", started, loaded)

	// check
	started = time.Now()
	checkerOpt.Resolver = newResolver()
	chk, err := checker.New(eff.Project, doc, checkerOpt)
	if err != nil {
		return fail(domain.ErrCodeProjectInvalid, err)
	}
	hasErr := chk.HasErrorInProject()
	items := chk.ResourceItems()
	phase("check", started, map[string]any{
		"items":      len(items),
		"unresolved": countUnresolved(items),
		"root_moved": chk.RootMoved(),
	})

	// plan
	started = time.Now()
	var decisions []domain.Decision
	if hasErr {
		reg := locator.Default(chk.Resolver(), eff.SearchRoots, chk.Lumas(), fonts, eff.FontFallback)
		decisions, err = planner.Plan(ctx, items, reg, planner.Options{
			Policy:          eff.Policy,
			RecreateProxies: eff.RecreateProxies,
			Logger:          logger,
		})
		if err != nil {
			return fail(domain.ErrCodeCancelled, err)
		}
	}
	phase("plan", started, map[string]any{
		"decisions": len(decisions),
		"found":     countStatus(decisions, domain.StatusFixed),
	})

	// repair
	started = time.Now()
	rejected := 0
	if hasErr {
		if _, rerr := chk.ResolveProblems(decisions); rerr != nil {
			rejected = len(unjoin(rerr))
			for _, e := range unjoin(rerr) {
				logger.Warn("处理决定未执行", slog.String("err", e.Error()))
			}
		}
	}
	rep.Items = chk.ResourceItems()
	via := make(map[int]string, len(decisions))
	for _, d := range decisions {
		via[d.Index] = d.Reason
	}
	if obs != nil {
		for i, it := range rep.Items {
			obs.OnItemDone(i+1, len(rep.Items), it, via[i])
		}
	}
	rep.InfoMessages = chk.InfoMessages()
	rep.ProxiesToRecreate = chk.ProxiesToRecreate()
	phase("repair", started, map[string]any{
		"applied":  len(decisions) - rejected,
		"rejected": rejected,
	})

	// verify：修复后的文档再检查一遍，剩余问题进入 remaining
	started = time.Now()
	checkerOpt.Resolver = newResolver()
	again, err := checker.New(eff.Project, doc, checkerOpt)
	if err != nil {
		return fail(domain.ErrCodeProjectInvalid, err)
	}
	again.HasErrorInProject()
	for _, it := range again.ResourceItems() {
		if it.Status != domain.StatusFixed && it.Status != domain.StatusReload {
			rep.Remaining = append(rep.Remaining, it)
		}
	}
	phase("verify", started, map[string]any{"remaining": len(rep.Remaining)})

	// save：仅 apply，且文档确有变化
	started = time.Now()
	out, err := doc.Bytes()
	if err != nil {
		return fail(domain.ErrCodeIOFailed, err)
	}
	changed := !bytes.Equal(out, baseline)
	backup := ""
	if eff.Apply && changed {
		backup, err = fsx.SaveWithBackup(eff.Project, out)
		if err != nil {
			return fail(saveErrCode(err), fmt.Errorf("保存工程失败：%w", err))
		}
		rep.Saved = true
		rep.InfoMessages = append(rep.InfoMessages, fmt.Sprintf("原工程已备份为 %s", backup))
	}
	if eff.Apply && hashes != nil {
		if err := hashes.Flush(); err != nil && !errors.Is(err, cache.ErrReadOnly) {
			logger.Warn("写入指纹缓存失败", slog.String("err", err.Error()))
		}
	}
	phase("save", started, map[string]any{
		"changed": changed,
		"saved":   rep.Saved,
		"backup":  backup,
	})

	rep.FinishedAt = time.Now().UTC()
	rep.Finalize()
	return rep
}

// saveErrCode 区分跨盘 rename 失败与普通写入失败。
func saveErrCode(err error) string {
	if fsx.IsCrossDevice(err) {
		return domain.ErrCodeCrossDevice
	}
	return domain.ErrCodeIOFailed
}

func countUnresolved(items []domain.DocumentResource) int {
	n := 0
	for _, it := range items {
		if it.Status != domain.StatusFixed && it.Status != domain.StatusReload {
			n++
		}
	}
	return n
}

func countStatus(ds []domain.Decision, st domain.MissingStatus) int {
	n := 0
	for _, d := range ds {
		if d.Status == st {
			n++
		}
	}
	return n
}

// unjoin 展开 errors.Join 的结果。
func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
