package version

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/pkg/models"
)

// SessionLink 是切换版本所需的会话链接操作。
type SessionLink interface {
	Point(sessionPath string, version models.Version) error
	Current(sessionPath string) (models.Version, bool, error)
	Clear(sessionPath string) error
}

// AliasWriter 是切换时保存 default 所需的别名写入能力。
type AliasWriter interface {
	Set(name string, version models.Version) error
}

// VersionInstaller 保证某个版本已安装。
type VersionInstaller interface {
	Ensure(ctx context.Context, version models.Version, opts EnsureOptions) (models.InstalledVersion, error)
}

// UseOptions 控制 use 命令。
type UseOptions struct {
	InstallIfMissing bool
	Save             bool
	Progress         ProgressFunc
}

// UseResult 描述一次切换的结果。
type UseResult struct {
	Version   models.Version
	Previous  models.Version
	Changed   bool
	Bypass    bool
	Installed bool
	Source    string
}

// Switcher 负责切换当前会话使用的 Node 版本。
type Switcher struct {
	cfg       *models.Config
	resolver  *Resolver
	installer VersionInstaller
	link      SessionLink
	aliases   AliasWriter
	logger    zerolog.Logger
}

// NewSwitcher 创建 Switcher。
func NewSwitcher(cfg *models.Config, resolver *Resolver, installer VersionInstaller, link SessionLink, aliases AliasWriter, logger zerolog.Logger) *Switcher {
	return &Switcher{
		cfg:       cfg,
		resolver:  resolver,
		installer: installer,
		link:      link,
		aliases:   aliases,
		logger:    logger,
	}
}

// Use 解析 spec 并把会话链接指向结果。没有已安装版本满足范围描述时从远程目录选取并安装。
func (s *Switcher) Use(ctx context.Context, spec models.Specifier, cwd string, opts UseOptions) (UseResult, error) {
	session := s.cfg.MultishellPath
	if session == "" {
		return UseResult{}, nvcerr.New(nvcerr.InvalidInput, "switcher: NVC_MULTISHELL_PATH is not set; add `eval \"$(nvc env)\"` to your shell profile")
	}

	res, err := s.resolver.Resolve(ctx, spec, cwd, ScopeInstalled)
	if err != nil && (errors.Is(err, ErrRangeNotInstalled) || opts.InstallIfMissing &&
		(nvcerr.IsKind(err, nvcerr.VersionNotInstalled) || nvcerr.IsKind(err, nvcerr.NoMatchingVersion))) {
		s.logger.Debug().Err(err).Msg("Falling back to remote resolution")
		res, err = s.resolver.Resolve(ctx, spec, cwd, ScopeRemote)
	}
	if err != nil {
		return UseResult{}, err
	}

	previous, hadPrevious, err := s.link.Current(session)
	if err != nil {
		return UseResult{}, err
	}

	if res.Bypass {
		if err := s.link.Clear(session); err != nil {
			return UseResult{}, err
		}
		return UseResult{Bypass: true, Previous: previous, Changed: hadPrevious, Source: res.Source}, nil
	}

	result := UseResult{Version: res.Version, Previous: previous, Source: res.Source}
	if !res.Installed {
		inst, err := s.installer.Ensure(ctx, res.Version, EnsureOptions{Progress: opts.Progress})
		if err != nil {
			return UseResult{}, err
		}
		result.Version = inst.Version
		result.Installed = true
	}

	if err := s.link.Point(session, result.Version); err != nil {
		return UseResult{}, err
	}
	result.Changed = !hadPrevious || !previous.Same(result.Version)

	if opts.Save {
		if err := s.aliases.Set(models.DefaultAlias, result.Version); err != nil {
			return UseResult{}, err
		}
	}

	s.logger.Debug().Str("version", result.Version.String()).Bool("changed", result.Changed).Msg("Session switched")
	return result, nil
}
