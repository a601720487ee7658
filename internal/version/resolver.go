// Package version 实现版本解析、安装、切换、卸载、列表与在指定版本下执行命令。
package version

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/internal/remote"
	"github.com/liangyou/nvc/internal/storage"
	"github.com/liangyou/nvc/pkg/models"
)

// Scope 决定解析时使用的候选集合。
type Scope int

const (
	// ScopeInstalled 只在已安装版本中挑选，用于 use、exec、current 等只读命令。
	ScopeInstalled Scope = iota
	// ScopeRemote 在远程目录中挑选，用于 install。
	ScopeRemote
)

func (s Scope) String() string {
	if s == ScopeRemote {
		return "remote"
	}
	return "installed"
}

// ErrRangeNotInstalled 表示没有已安装版本满足范围描述。切换版本时据此回退到远程目录并触发安装。
var ErrRangeNotInstalled = errors.New("range has no installed satisfier")

// Resolution 是一次解析的结果。Bypass 为 true 时不应接管 PATH。
type Resolution struct {
	Version   models.Version
	Installed bool
	Bypass    bool
	Source    string
}

// AliasReader 是解析器需要的别名读取能力。
type AliasReader interface {
	Get(name string) (models.Version, error)
}

// Resolver 将版本描述解析为一个具体版本。
type Resolver struct {
	cfg     *models.Config
	fs      afero.Fs
	storage storage.LocalStorage
	catalog remote.Catalog
	aliases AliasReader
	logger  zerolog.Logger
}

// ResolverOption 配置 Resolver。
type ResolverOption func(*Resolver)

// WithFs 指定查找版本文件与 package.json 使用的文件系统。
func WithFs(fs afero.Fs) ResolverOption {
	return func(r *Resolver) {
		if fs != nil {
			r.fs = fs
		}
	}
}

// WithResolverLogger 指定日志。
func WithResolverLogger(logger zerolog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver 创建解析器。
func NewResolver(cfg *models.Config, store storage.LocalStorage, catalog remote.Catalog, aliases AliasReader, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cfg:     cfg,
		fs:      afero.NewOsFs(),
		storage: store,
		catalog: catalog,
		aliases: aliases,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 解析 spec；spec 为 nil 时依次尝试版本文件、engines.node（需开启）与 default 别名。
func (r *Resolver) Resolve(ctx context.Context, spec models.Specifier, cwd string, scope Scope) (Resolution, error) {
	source := "argument"
	if spec == nil {
		var err error
		spec, source, err = r.ambientSpecifier(cwd)
		if err != nil {
			return Resolution{}, err
		}
	}

	res, err := r.resolveSpecifier(ctx, spec, scope)
	if err != nil {
		return Resolution{}, err
	}
	res.Source = source
	r.logger.Debug().
		Str("specifier", spec.String()).
		Str("source", source).
		Str("scope", scope.String()).
		Str("version", res.Version.String()).
		Bool("installed", res.Installed).
		Msg("Resolved version")
	return res, nil
}

// ambientSpecifier 按优先级从工作目录推导版本描述。
func (r *Resolver) ambientSpecifier(cwd string) (models.Specifier, string, error) {
	file, ok, err := FindVersionFile(r.fs, cwd, r.cfg.VersionFileStrategy)
	if err != nil {
		return nil, "", err
	}
	if ok {
		return file.Specifier, file.Path, nil
	}

	if r.cfg.ResolveEngines {
		engines, ok, err := FindEnginesRange(r.fs, cwd, r.cfg.VersionFileStrategy)
		if err != nil {
			return nil, "", err
		}
		if ok {
			return engines.Range, engines.Path + " (engines.node)", nil
		}
	}

	if _, err := r.aliases.Get(models.DefaultAlias); err != nil {
		if nvcerr.IsKind(err, nvcerr.AliasNotFound) {
			return nil, "", nvcerr.New(nvcerr.NoVersionConfigured,
				"no version specified: add a .node-version file or set a default with `nvc default <version>`")
		}
		return nil, "", err
	}
	return models.AliasName{Name: models.DefaultAlias}, "default alias", nil
}

func (r *Resolver) resolveSpecifier(ctx context.Context, spec models.Specifier, scope Scope) (Resolution, error) {
	switch s := spec.(type) {
	case models.Bypass:
		return Resolution{Bypass: true}, nil
	case models.AliasName:
		v, err := r.aliases.Get(s.Name)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Version: v, Installed: true}, nil
	case models.Exact:
		return r.resolveExact(ctx, s.Version, scope)
	case models.Range:
		return r.resolveRange(ctx, s, scope)
	case models.Partial:
		return r.pickMax(ctx, scope, spec, s.Matches)
	case models.LtsCodename:
		return r.pickMax(ctx, scope, spec, s.Matches)
	case models.LatestLts:
		return r.pickMax(ctx, scope, spec, models.Version.IsLTS)
	case models.Latest:
		return r.pickMax(ctx, scope, spec, func(models.Version) bool { return true })
	default:
		return Resolution{}, nvcerr.Newf(nvcerr.SpecifierUnparseable, "unsupported specifier %T", spec)
	}
}

func (r *Resolver) resolveExact(ctx context.Context, v models.Version, scope Scope) (Resolution, error) {
	inst, ok, err := r.storage.Get(v)
	if err != nil {
		return Resolution{}, err
	}
	if ok {
		return Resolution{Version: inst.Version, Installed: true}, nil
	}
	if scope == ScopeInstalled {
		return Resolution{}, nvcerr.Newf(nvcerr.VersionNotInstalled, "version %s is not installed", v)
	}
	rv, err := r.catalog.Lookup(ctx, v)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Version: rv.Version}, nil
}

// resolveRange 优先选择满足范围的最高已安装版本，没有时才回落到远程目录。
func (r *Resolver) resolveRange(ctx context.Context, rng models.Range, scope Scope) (Resolution, error) {
	installed, err := r.installedVersions()
	if err != nil {
		return Resolution{}, err
	}
	if v, ok := maxMatching(installed, rng.Matches); ok {
		return Resolution{Version: v, Installed: true}, nil
	}
	if scope == ScopeInstalled {
		return Resolution{}, nvcerr.Wrapf(ErrRangeNotInstalled, nvcerr.VersionNotInstalled, "no installed version satisfies %q", rng.Raw)
	}

	remoteVersions, err := r.remoteVersions(ctx)
	if err != nil {
		return Resolution{}, err
	}
	if v, ok := maxMatching(remoteVersions, rng.Matches); ok {
		return Resolution{Version: v}, nil
	}
	return Resolution{}, nvcerr.Newf(nvcerr.NoMatchingVersion, "no version satisfies %q", rng.Raw)
}

func (r *Resolver) pickMax(ctx context.Context, scope Scope, spec models.Specifier, match func(models.Version) bool) (Resolution, error) {
	var (
		candidates []models.Version
		err        error
	)
	if scope == ScopeRemote {
		candidates, err = r.remoteVersions(ctx)
	} else {
		candidates, err = r.installedVersions()
	}
	if err != nil {
		return Resolution{}, err
	}

	if len(candidates) == 0 && scope == ScopeInstalled {
		return Resolution{}, nvcerr.Newf(nvcerr.VersionNotInstalled, "no installed version matches %s: nothing is installed", spec)
	}
	v, ok := maxMatching(candidates, match)
	if !ok {
		return Resolution{}, nvcerr.Newf(nvcerr.NoMatchingVersion, "no %s version matches %s", scope, spec)
	}

	if scope == ScopeInstalled {
		return Resolution{Version: v, Installed: true}, nil
	}
	_, installed, err := r.storage.Get(v)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Version: v, Installed: installed}, nil
}

func (r *Resolver) installedVersions() ([]models.Version, error) {
	list, err := r.storage.List()
	if err != nil {
		return nil, err
	}
	out := make([]models.Version, 0, len(list))
	for _, inst := range list {
		out = append(out, inst.Version)
	}
	return out, nil
}

func (r *Resolver) remoteVersions(ctx context.Context) ([]models.Version, error) {
	if r.catalog == nil {
		return nil, nvcerr.New(nvcerr.InvalidInput, "resolver: remote catalog is not configured")
	}
	list, err := r.catalog.FetchVersions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Version, 0, len(list))
	for _, rv := range list {
		out = append(out, rv.Version)
	}
	return out, nil
}

// maxMatching 返回满足条件的最大版本。
func maxMatching(versions []models.Version, match func(models.Version) bool) (models.Version, bool) {
	filtered := slices.DeleteFunc(slices.Clone(versions), func(v models.Version) bool { return !match(v) })
	if len(filtered) == 0 {
		return models.Version{}, false
	}
	return slices.MaxFunc(filtered, models.Version.Compare), true
}
