package version

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/internal/platform"
	"github.com/liangyou/nvc/internal/remote"
	"github.com/liangyou/nvc/internal/storage"
	"github.com/liangyou/nvc/pkg/models"
)

// EnsureOptions 控制一次安装。
type EnsureOptions struct {
	// Force 即使已安装也重新下载并替换。
	Force bool
	// Progress 在每次读取下载数据后被调用。
	Progress ProgressFunc
}

// CommandRunner 执行外部命令，安装阶段用于 corepack enable。
type CommandRunner func(ctx context.Context, name string, args []string, env []string) error

// Installer 负责将远程发布包安装到本地存储。
type Installer struct {
	cfg        *models.Config
	storage    storage.LocalStorage
	catalog    remote.Catalog
	downloader ArtifactDownloader
	platform   *platform.Checker
	runCommand CommandRunner
	now        func() time.Time
	logger     zerolog.Logger
}

// InstallerOption 配置 Installer。
type InstallerOption func(*Installer)

// WithPlatform 指定平台检测器。
func WithPlatform(checker *platform.Checker) InstallerOption {
	return func(i *Installer) {
		if checker != nil {
			i.platform = checker
		}
	}
}

// WithCommandRunner 替换执行 corepack 的方式。
func WithCommandRunner(run CommandRunner) InstallerOption {
	return func(i *Installer) {
		if run != nil {
			i.runCommand = run
		}
	}
}

// WithInstallerLogger 指定日志。
func WithInstallerLogger(logger zerolog.Logger) InstallerOption {
	return func(i *Installer) {
		i.logger = logger
	}
}

// NewInstaller 创建 Installer。
func NewInstaller(cfg *models.Config, store storage.LocalStorage, catalog remote.Catalog, downloader ArtifactDownloader, opts ...InstallerOption) *Installer {
	i := &Installer{
		cfg:        cfg,
		storage:    store,
		catalog:    catalog,
		downloader: downloader,
		platform:   platform.NewChecker(cfg),
		runCommand: runCommand,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ensure 保证 version 以配置的架构安装在本地。已安装且架构一致时不访问网络。
func (i *Installer) Ensure(ctx context.Context, version models.Version, opts EnsureOptions) (models.InstalledVersion, error) {
	arch := i.platform.ArchFor(version, i.cfg.Arch)

	existing, installed, err := i.storage.Get(version)
	if err != nil {
		return models.InstalledVersion{}, err
	}
	if installed && !opts.Force && (existing.Arch == "" || existing.Arch == arch) {
		i.logger.Debug().Str("version", version.String()).Msg("Version already installed")
		return existing, nil
	}

	plat, err := i.platform.Platform()
	if err != nil {
		return models.InstalledVersion{}, nvcerr.Wrap(err, nvcerr.InvalidInput, "installer")
	}

	rv, err := i.catalog.Lookup(ctx, version)
	if err != nil {
		return models.InstalledVersion{}, err
	}
	if !remote.HasArtifact(rv, plat, arch) {
		return models.InstalledVersion{}, nvcerr.Newf(nvcerr.RemoteVersionNotFound,
			"installer: %s has no build for %s-%s", version, plat, arch)
	}
	version = rv.Version

	i.logger.Info().Str("version", version.String()).Str("arch", string(arch)).Msg("Installing Node")

	staging, err := i.storage.NewStaging("install-*")
	if err != nil {
		return models.InstalledVersion{}, err
	}
	defer os.RemoveAll(staging)

	url := DownloadURL(strings.TrimRight(i.cfg.NodeDistMirror, "/"), version.String(), plat, string(arch), i.platform.ArchiveExt())
	archivePath, err := i.downloader.Download(ctx, url, staging, opts.Progress)
	if err != nil {
		return models.InstalledVersion{}, err
	}

	versionDir := filepath.Join(staging, version.String())
	installDir := filepath.Join(versionDir, "installation")
	if err := extractArchive(archivePath, installDir); err != nil {
		return models.InstalledVersion{}, err
	}
	if err := os.Remove(archivePath); err != nil {
		i.logger.Debug().Err(err).Msg("Failed to remove downloaded archive")
	}

	if i.cfg.CorepackEnabled {
		if err := i.enableCorepack(ctx, installDir); err != nil {
			return models.InstalledVersion{}, err
		}
	}

	inst := models.InstalledVersion{Version: version, Arch: arch, InstalledAt: i.now().UTC()}
	if err := i.storage.WriteMetadata(versionDir, inst); err != nil {
		return models.InstalledVersion{}, err
	}

	var trash string
	if installed {
		if trash, err = i.storage.Unpublish(version); err != nil {
			return models.InstalledVersion{}, err
		}
		defer os.RemoveAll(trash)
	}

	published, err := i.storage.Publish(versionDir, version)
	if err != nil {
		if trash != "" {
			i.restore(trash, version)
		}
		return models.InstalledVersion{}, err
	}
	if !published {
		i.logger.Debug().Str("version", version.String()).Msg("Another process published this version first")
	}

	final, ok, err := i.storage.Get(version)
	if err != nil {
		return models.InstalledVersion{}, err
	}
	if !ok {
		return models.InstalledVersion{}, nvcerr.Newf(nvcerr.FilesystemError, "installer: %s vanished after publish", version)
	}
	return final, nil
}

// restore 在新版本发布失败时把撤下的旧安装放回原处。
func (i *Installer) restore(trash string, version models.Version) {
	if _, err := i.storage.Publish(filepath.Join(trash, version.String()), version); err != nil {
		i.logger.Error().Err(err).Str("version", version.String()).Msg("Failed to restore previous installation")
	}
}

func (i *Installer) enableCorepack(ctx context.Context, installDir string) error {
	bin := installDir
	if !i.platform.IsWindows() {
		bin = filepath.Join(installDir, "bin")
	}
	env := append(os.Environ(), "PATH="+bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	corepack := filepath.Join(bin, "corepack")
	if err := i.runCommand(ctx, corepack, []string{"enable", "--install-directory", bin}, env); err != nil {
		return nvcerr.Wrap(err, nvcerr.FilesystemError, "installer: corepack enable")
	}
	return nil
}

func runCommand(ctx context.Context, name string, args []string, env []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	if err != nil && len(out) > 0 {
		return &commandError{err: err, output: strings.TrimSpace(string(out))}
	}
	return err
}

type commandError struct {
	err    error
	output string
}

func (e *commandError) Error() string { return e.err.Error() + ": " + e.output }
func (e *commandError) Unwrap() error { return e.err }
