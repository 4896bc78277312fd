package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/haksik/internal/app/menurepo"
	"github.com/John-Robertt/haksik/internal/config"
	"github.com/John-Robertt/haksik/internal/infra/cache"
	"github.com/John-Robertt/haksik/internal/infra/httpx"
	"github.com/John-Robertt/haksik/internal/infra/logx"
	"github.com/John-Robertt/haksik/internal/provider"
	"github.com/John-Robertt/haksik/internal/provider/inucoop"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// runtimeError 标记“运行期失败”（退出码 1）；其余错误（参数/子命令/flag）一律按用法错误处理（退出码 2）。
type runtimeError struct{ err error }

func (e *runtimeError) Error() string { return e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

func runtimeErr(err error) error {
	if err == nil {
		return nil
	}
	return &runtimeError{err: err}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return exitRuntime
	}

	a := &cli{stdout: stdout, stderr: stderr, cwd: cwd, isTTY: isTTY}
	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		var re *runtimeError
		if errors.As(err, &re) {
			fmt.Fprintf(stderr, "错误：%v\n", re.err)
			return exitRuntime
		}
		fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
		fmt.Fprint(stderr, root.UsageString())
		return exitUsage
	}
	return exitOK
}

// cli 持有全局 flag 与输出端；stdout 是否为 TTY 决定输出格式。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	cwd    string
	isTTY  func(io.Writer) bool

	configPath string
	cacheDir   string
	logLevel   string

	root *cobra.Command
}

func (a *cli) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "haksik",
		Short:         "今日食堂菜单（inucoop）抓取与缓存",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "配置文件路径（默认尝试 ./haksik.json 等）")
	pf.StringVar(&a.cacheDir, "cache-dir", "", "缓存目录（默认 <UserCacheDir>/haksik）")
	pf.StringVar(&a.logLevel, "log-level", "", "日志级别：debug|info|warn|error")

	a.root = root
	root.AddCommand(a.newShowCmd())
	root.AddCommand(a.newThemeCmd())
	root.AddCommand(a.newWidgetCmd())
	return root
}

// env 是一次命令执行所需的已装配依赖。
type env struct {
	eff     config.EffectiveConfig
	log     *slog.Logger
	catalog provider.Catalog
	cache   *cache.SnapshotCache
}

func (a *cli) loadEnv(persist bool) (env, error) {
	pf := a.root.PersistentFlags()
	eff, err := config.LoadEffective(a.cwd, config.CLIArgs{
		ConfigPath:  a.configPath,
		CacheDir:    a.cacheDir,
		CacheDirSet: pf.Changed("cache-dir"),
		LogLevel:    a.logLevel,
		LogLevelSet: pf.Changed("log-level"),
	})
	if err != nil {
		return env{}, runtimeErr(err)
	}
	logger := logx.New(a.stderr, eff.Log)
	if eff.ConfigFile != "" {
		logger.Info("using config file", "path", eff.ConfigFile)
	}

	catalog, err := eff.Catalog()
	if err != nil {
		return env{}, runtimeErr(err)
	}

	var kv cache.KV = cache.NewFileKV(eff.CacheDir, false)
	if !persist {
		kv = cache.NewMemoryKV()
	}
	return env{
		eff:     eff,
		log:     logger,
		catalog: catalog,
		cache:   cache.NewSnapshotCache(kv, logger),
	}, nil
}

func (e env) repository(obs menurepo.Observer) (*menurepo.Repository, error) {
	client, err := httpx.NewClient(httpx.Options{
		ProxyURL: e.eff.ProxyURL,
		RetryMax: e.eff.RetryMax,
		Timeout:  e.eff.FetchTimeout,
	})
	if err != nil {
		return nil, err
	}
	fetcher := inucoop.Provider{
		Catalog: e.catalog,
		Client:  client,
		Logger:  e.log,
	}
	return menurepo.New(fetcher, e.cache, menurepo.Options{
		Catalog:      e.catalog,
		FetchTimeout: e.eff.FetchTimeout,
		Location:     e.eff.Location,
		Logger:       e.log,
		Observer:     obs,
	}), nil
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func (a *cli) pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if a.isTTY(a.stderr) {
		return a.stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if a.isTTY(a.stdout) {
		return a.stdout, true
	}
	return nil, false
}
