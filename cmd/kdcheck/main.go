package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/John-Robertt/kdcheck/internal/app/run"
	"github.com/John-Robertt/kdcheck/internal/config"
	"github.com/John-Robertt/kdcheck/internal/domain"
	"github.com/John-Robertt/kdcheck/internal/infra/cache"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "check":
		if code := checkCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func checkCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printCheckUsage()
			return 0
		}
	}

	ca, err := parseCheckArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printCheckUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Project:     ca.Project,
		Policy:      ca.Policy,
		PolicySet:   ca.PolicySet,
		Apply:       ca.Apply,
		ApplySet:    ca.ApplySet,
		SearchRoots: ca.SearchRoots,
	})
	if err != nil {
		emitReport(reportForConfigError(cwd, ca, err))
		return 1
	}

	level := slog.LevelWarn
	if ca.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	progressW, interactive := pickProgressWriter()
	var ui *progressUI
	opt := run.Options{Logger: logger}
	if interactive {
		ui = newProgressUI(progressW)
		opt.Observer = ui
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep := run.ExecuteWith(ctx, eff, opt)
	if ui != nil {
		ui.Close()
	}

	// apply：写入 <project dir>/.kdcheck/report.json；dry-run 禁止落盘。
	if eff.Apply {
		if err := writeReportFile(eff.ProjectDir, rep); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
			emitReport(rep)
			return 1
		}
	}

	emitReport(rep)
	if interactive {
		emitLocations(progressW, eff, rep)
	}
	if rep.ErrorCode == "" && rep.Summary.Remaining == 0 {
		return 0
	}
	return 1
}

type checkArgs struct {
	Project     string
	Policy      string
	PolicySet   bool
	Apply       bool
	ApplySet    bool
	SearchRoots []string
	Verbose     bool
}

func parseCheckArgs(args []string) (checkArgs, error) {
	ca := checkArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--policy":
			if i+1 >= len(args) {
				return checkArgs{}, fmt.Errorf("--policy 需要一个值")
			}
			i++
			ca.Policy = args[i]
			ca.PolicySet = true
		case strings.HasPrefix(a, "--policy="):
			ca.Policy = strings.TrimPrefix(a, "--policy=")
			ca.PolicySet = true
		case a == "--search-root":
			if i+1 >= len(args) {
				return checkArgs{}, fmt.Errorf("--search-root 需要一个值")
			}
			i++
			ca.SearchRoots = append(ca.SearchRoots, args[i])
		case strings.HasPrefix(a, "--search-root="):
			ca.SearchRoots = append(ca.SearchRoots, strings.TrimPrefix(a, "--search-root="))
		case a == "--apply":
			ca.Apply = true
			ca.ApplySet = true
		case strings.HasPrefix(a, "--apply="):
			v := strings.TrimPrefix(a, "--apply=")
			switch v {
			case "true":
				ca.Apply = true
			case "false":
				ca.Apply = false
			default:
				return checkArgs{}, fmt.Errorf("--apply 只能是 true 或 false，实际是 %q", v)
			}
			ca.ApplySet = true
		case a == "-v" || a == "--verbose":
			ca.Verbose = true
		case strings.HasPrefix(a, "-"):
			return checkArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ca.Project != "" {
				return checkArgs{}, fmt.Errorf("重复的工程文件：%q 与 %q", ca.Project, a)
			}
			ca.Project = a
		}
	}

	if ca.Project == "" {
		return checkArgs{}, fmt.Errorf("缺少工程文件参数")
	}
	if ca.PolicySet {
		if _, err := domain.ParsePolicy(ca.Policy); err != nil || strings.TrimSpace(ca.Policy) == "" {
			return checkArgs{}, fmt.Errorf("--policy 只能是 keep、placeholder 或 remove，实际是 %q", ca.Policy)
		}
	}
	for _, r := range ca.SearchRoots {
		if strings.TrimSpace(r) == "" {
			return checkArgs{}, fmt.Errorf("--search-root 不能为空")
		}
	}

	return ca, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  kdcheck check <project.kdenlive> [--policy keep|placeholder|remove] [--apply[=true|false]] [--search-root DIR]...

命令：
  check  检查工程引用的外部资源并尝试修复（默认 dry-run）

使用 "kdcheck check --help" 查看详细说明。
`)
}

func printCheckUsage() {
	fmt.Fprint(os.Stdout, `用法：
  kdcheck check <project.kdenlive> [--policy keep|placeholder|remove] [--apply[=true|false]] [--search-root DIR]...

参数：
  --policy       找不到替代文件的素材如何处置：keep（默认，保持缺失）| placeholder（占位）| remove（删除）
  --apply        保存修复后的工程（先备份为 .bak）并写入 .kdcheck/report.json；支持 --apply=false 覆盖配置
  --search-root  额外的搜索根目录，可重复；工程目录总会被搜索
  -v, --verbose  输出调试日志（stderr）
  -h, --help     显示帮助

退出码：0 无剩余问题；1 仍有问题或运行失败；2 参数错误
`)
}

func summaryLine(rep domain.CheckReport) string {
	s := rep.Summary
	return fmt.Sprintf("完成：fixed=%d reload=%d placeholder=%d remove=%d missing=%d missing_but_proxy=%d remaining=%d",
		s.Fixed, s.Reload, s.Placeholder, s.Remove, s.Missing, s.MissingButProxy, s.Remaining,
	)
}

func emitReport(rep domain.CheckReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summaryLine(rep))
		if rep.ErrorCode != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", rep.ErrorCode, rep.ErrorMsg)
		}
		for _, it := range rep.Remaining {
			fmt.Fprintf(os.Stderr, "%s %s: %s%s\n", it.Type, it.Status, displayPath(it), sizeNote(it))
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 CheckReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rep)
	fmt.Fprintln(os.Stderr, summaryLine(rep))
}

func displayPath(it domain.DocumentResource) string {
	if it.OriginalFilePath != "" {
		return it.OriginalFilePath
	}
	if it.ClipID != "" {
		return "clip " + it.ClipID
	}
	return "<unknown>"
}

func sizeNote(it domain.DocumentResource) string {
	n, ok := it.Size()
	if !ok {
		return ""
	}
	return " (" + humanize.Bytes(uint64(n)) + ")"
}

func reportForConfigError(cwd string, ca checkArgs, err error) domain.CheckReport {
	now := time.Now().UTC()
	project := ca.Project
	if project != "" && !filepath.IsAbs(project) {
		project = filepath.Join(cwd, project)
	}
	rep := domain.CheckReport{
		SessionID:  uuid.NewString(),
		Project:    project,
		DryRun:     !(ca.ApplySet && ca.Apply),
		StartedAt:  now,
		FinishedAt: now,
		ErrorCode:  config.Code(err),
		ErrorMsg:   err.Error(),
	}
	rep.Finalize()
	return rep
}

func writeReportFile(projectDir string, rep domain.CheckReport) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return cache.New(projectDir, false).WriteReport(b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, rep domain.CheckReport) {
	if w == nil {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", cache.New(eff.ProjectDir, false).ReportPath())
	}
	if rep.Saved {
		fmt.Fprintf(w, "project: %s\n", eff.Project)
	}
}
