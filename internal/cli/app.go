// Package cli 实现 nvc 的 cobra 命令树。
package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/liangyou/nvc/internal/env"
	"github.com/liangyou/nvc/internal/logging"
	"github.com/liangyou/nvc/internal/version"
	"github.com/liangyou/nvc/pkg/models"
)

// ResolveService 将版本描述解析为具体版本。
type ResolveService interface {
	Resolve(ctx context.Context, spec models.Specifier, cwd string, scope version.Scope) (version.Resolution, error)
}

// InstallService 描述安装能力。
type InstallService interface {
	Ensure(ctx context.Context, v models.Version, opts version.EnsureOptions) (models.InstalledVersion, error)
}

// SwitchService 描述版本切换能力。
type SwitchService interface {
	Use(ctx context.Context, spec models.Specifier, cwd string, opts version.UseOptions) (version.UseResult, error)
}

// ListService 描述版本查询能力。
type ListService interface {
	RemoteVersions(ctx context.Context, filter version.RemoteFilter) ([]models.RemoteVersion, error)
	LocalVersions() ([]version.LocalEntry, error)
	CurrentVersion() (models.Version, bool, error)
}

// AliasService 描述别名管理能力。
type AliasService interface {
	Set(name string, v models.Version) error
	Get(name string) (models.Version, error)
	Remove(name string) error
	List() ([]models.Alias, error)
}

// UninstallService 描述卸载能力。
type UninstallService interface {
	Target(spec models.Specifier) (models.Version, error)
	Uninstall(v models.Version) (version.UninstallResult, error)
}

// ExecService 描述在指定版本下运行命令的能力。
type ExecService interface {
	Run(ctx context.Context, req version.ExecRequest) (int, error)
}

// EnvService 描述 shell 集成能力。
type EnvService interface {
	DetectShell() (env.Shell, error)
	NewSession() (env.Session, error)
	Snippet(shell env.Shell, session env.Session, opts env.SnippetOptions) (string, error)
	UpdateShellConfig(shell env.Shell) (string, error)
}

// Services 是命令执行所需的全部服务，由 ServiceFactory 在配置加载后构造。
type Services struct {
	Config      *models.Config
	Resolver    ResolveService
	Installer   InstallService
	Switcher    SwitchService
	Lister      ListService
	Aliases     AliasService
	Uninstaller UninstallService
	Executor    ExecService
	Env         EnvService
}

// ConfigLoader 根据显式设置的命令行参数构造配置。
type ConfigLoader func(flags map[string]any) (*models.Config, error)

// ServiceFactory 基于配置构造服务。
type ServiceFactory func(ctx context.Context, cfg *models.Config) (*Services, error)

// App 负责 CLI 命令解析与分发。
type App struct {
	out        io.Writer
	errOut     io.Writer
	in         io.Reader
	version    string
	loadConfig ConfigLoader
	factory    ServiceFactory
	getwd      func() (string, error)
	setupLog   func(io.Writer, models.LogLevel)

	services *Services
	exitCode int
}

// NewApp 创建 CLI 应用实例。
func NewApp(out, errOut io.Writer, loadConfig ConfigLoader, factory ServiceFactory, version string) *App {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &App{
		out:        out,
		errOut:     errOut,
		in:         os.Stdin,
		version:    version,
		loadConfig: loadConfig,
		factory:    factory,
		getwd:      os.Getwd,
		setupLog:   logging.SetupLoggerTo,
	}
}

// Run 解析参数并执行命令，返回进程应使用的退出码。
func (a *App) Run(ctx context.Context, args []string) (int, error) {
	a.exitCode = 0
	a.services = nil
	root := a.rootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		return 1, err
	}
	return a.exitCode, nil
}

// configFlags 是可覆盖配置项的全局参数，参数名中的 - 对应配置键中的 _。
var configFlags = []struct {
	name  string
	usage string
	bool  bool
}{
	{name: "node-dist-mirror", usage: "Node.js download mirror [env: NVC_NODE_DIST_MIRROR]"},
	{name: "dir", usage: "root directory of nvc installations [env: NVC_DIR]"},
	{name: "multishell-path", usage: "session symlink of the current shell [env: NVC_MULTISHELL_PATH]"},
	{name: "log-level", usage: "quiet, error, info or debug [env: NVC_LOGLEVEL]"},
	{name: "arch", usage: "architecture of installed binaries [env: NVC_ARCH]"},
	{name: "version-file-strategy", usage: "local or recursive [env: NVC_VERSION_FILE_STRATEGY]"},
	{name: "corepack-enabled", usage: "run corepack enable after installing [env: NVC_COREPACK_ENABLED]", bool: true},
	{name: "resolve-engines", usage: "use engines.node from package.json [env: NVC_RESOLVE_ENGINES]", bool: true},
	{name: "auto-mirror", usage: "pick a mirror by region when none is configured [env: NVC_AUTO_MIRROR]", bool: true},
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "nvc",
		Short:         "Fast and simple Node.js version manager",
		Version:       a.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipsSetup(cmd) {
				return nil
			}
			return a.setup(cmd)
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	for _, f := range configFlags {
		if f.bool {
			root.PersistentFlags().Bool(f.name, false, f.usage)
		} else {
			root.PersistentFlags().String(f.name, "", f.usage)
		}
	}

	root.AddCommand(
		a.lsRemoteCommand(),
		a.lsCommand(),
		a.installCommand(),
		a.useCommand(),
		a.envCommand(),
		a.aliasCommand(),
		a.unaliasCommand(),
		a.defaultCommand(),
		a.currentCommand(),
		a.execCommand(),
		a.uninstallCommand(),
	)
	return root
}

// skipsSetup 对 cobra 自带的 help 与 completion 命令不加载配置。
func skipsSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}

// setup 加载配置、初始化日志并构造服务。
func (a *App) setup(cmd *cobra.Command) error {
	flags := map[string]any{}
	cmd.Root().PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			flags[strings.ReplaceAll(f.Name, "-", "_")] = f.Value.String()
		}
	})

	cfg, err := a.loadConfig(flags)
	if err != nil {
		return err
	}
	a.setupLog(a.errOut, cfg.LogLevel)

	services, err := a.factory(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	a.services = services
	return nil
}
