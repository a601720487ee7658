package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liangyou/nvc/internal/env"
	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/internal/version"
	"github.com/liangyou/nvc/pkg/models"
)

type fakeResolver struct {
	result version.Resolution
	err    error
	specs  []models.Specifier
	scopes []version.Scope
}

func (f *fakeResolver) Resolve(_ context.Context, spec models.Specifier, _ string, scope version.Scope) (version.Resolution, error) {
	f.specs = append(f.specs, spec)
	f.scopes = append(f.scopes, scope)
	return f.result, f.err
}

type fakeInstaller struct {
	ensured []models.Version
	opts    []version.EnsureOptions
	err     error
}

func (f *fakeInstaller) Ensure(_ context.Context, v models.Version, opts version.EnsureOptions) (models.InstalledVersion, error) {
	if f.err != nil {
		return models.InstalledVersion{}, f.err
	}
	f.ensured = append(f.ensured, v)
	f.opts = append(f.opts, opts)
	return models.InstalledVersion{Version: v, Arch: models.ArchX64}, nil
}

type fakeSwitcher struct {
	result version.UseResult
	err    error
	specs  []models.Specifier
	opts   []version.UseOptions
}

func (f *fakeSwitcher) Use(_ context.Context, spec models.Specifier, _ string, opts version.UseOptions) (version.UseResult, error) {
	f.specs = append(f.specs, spec)
	f.opts = append(f.opts, opts)
	return f.result, f.err
}

type fakeLister struct {
	remote  []models.RemoteVersion
	local   []version.LocalEntry
	current models.Version
	hasCur  bool
	filters []version.RemoteFilter
}

func (f *fakeLister) RemoteVersions(_ context.Context, filter version.RemoteFilter) ([]models.RemoteVersion, error) {
	f.filters = append(f.filters, filter)
	return f.remote, nil
}

func (f *fakeLister) LocalVersions() ([]version.LocalEntry, error) {
	return f.local, nil
}

func (f *fakeLister) CurrentVersion() (models.Version, bool, error) {
	return f.current, f.hasCur, nil
}

type fakeAliases struct {
	entries map[string]models.Version
	removed []string
}

func newFakeAliases() *fakeAliases {
	return &fakeAliases{entries: map[string]models.Version{}}
}

func (f *fakeAliases) Set(name string, v models.Version) error {
	f.entries[name] = v
	return nil
}

func (f *fakeAliases) Get(name string) (models.Version, error) {
	v, ok := f.entries[name]
	if !ok {
		return models.Version{}, nvcerr.Newf(nvcerr.AliasNotFound, "alias %q not found", name)
	}
	return v, nil
}

func (f *fakeAliases) Remove(name string) error {
	f.removed = append(f.removed, name)
	delete(f.entries, name)
	return nil
}

func (f *fakeAliases) List() ([]models.Alias, error) {
	var out []models.Alias
	for name, v := range f.entries {
		out = append(out, models.Alias{Name: name, Version: v})
	}
	return out, nil
}

type fakeUninstaller struct {
	target  models.Version
	removed []string
	err     error
}

func (f *fakeUninstaller) Target(models.Specifier) (models.Version, error) {
	return f.target, f.err
}

func (f *fakeUninstaller) Uninstall(v models.Version) (version.UninstallResult, error) {
	return version.UninstallResult{Version: v, RemovedAliases: f.removed}, nil
}

type fakeExecutor struct {
	req  version.ExecRequest
	code int
}

func (f *fakeExecutor) Run(_ context.Context, req version.ExecRequest) (int, error) {
	f.req = req
	return f.code, nil
}

type fakeEnv struct {
	written []env.Shell
	opts    env.SnippetOptions
}

func (f *fakeEnv) DetectShell() (env.Shell, error) { return env.Bash, nil }

func (f *fakeEnv) NewSession() (env.Session, error) {
	return env.Session{Path: "/tmp/nvc/multishells/1_1", BaseDir: "/home/u/.nvc"}, nil
}

func (f *fakeEnv) Snippet(shell env.Shell, session env.Session, opts env.SnippetOptions) (string, error) {
	f.opts = opts
	return "export NVC_MULTISHELL_PATH=" + session.Path + " # " + string(shell) + "\n", nil
}

func (f *fakeEnv) UpdateShellConfig(shell env.Shell) (string, error) {
	f.written = append(f.written, shell)
	return "/home/u/.bashrc", nil
}

type harness struct {
	resolver    *fakeResolver
	installer   *fakeInstaller
	switcher    *fakeSwitcher
	lister      *fakeLister
	aliases     *fakeAliases
	uninstaller *fakeUninstaller
	executor    *fakeExecutor
	env         *fakeEnv
	flags       map[string]any
	out         *bytes.Buffer
	errOut      *bytes.Buffer
	app         *App
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		resolver:    &fakeResolver{},
		installer:   &fakeInstaller{},
		switcher:    &fakeSwitcher{},
		lister:      &fakeLister{},
		aliases:     newFakeAliases(),
		uninstaller: &fakeUninstaller{},
		executor:    &fakeExecutor{},
		env:         &fakeEnv{},
		out:         &bytes.Buffer{},
		errOut:      &bytes.Buffer{},
	}
	loader := func(flags map[string]any) (*models.Config, error) {
		h.flags = flags
		return &models.Config{LogLevel: models.LogQuiet}, nil
	}
	factory := func(_ context.Context, cfg *models.Config) (*Services, error) {
		return &Services{
			Config:      cfg,
			Resolver:    h.resolver,
			Installer:   h.installer,
			Switcher:    h.switcher,
			Lister:      h.lister,
			Aliases:     h.aliases,
			Uninstaller: h.uninstaller,
			Executor:    h.executor,
			Env:         h.env,
		}, nil
	}
	h.app = NewApp(h.out, h.errOut, loader, factory, "test")
	h.app.getwd = func() (string, error) { return "/work", nil }
	h.app.setupLog = func(io.Writer, models.LogLevel) {}
	return h
}

func (h *harness) run(t *testing.T, args ...string) (int, error) {
	t.Helper()
	return h.app.Run(context.Background(), args)
}

func mustVersion(t *testing.T, s string) models.Version {
	t.Helper()
	v, err := models.ParseVersion(s)
	require.NoError(t, err)
	return v
}

func TestLsRemoteFilters(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	v := mustVersion(t, "18.12.0")
	v.LTS = "Hydrogen"
	h.lister.remote = []models.RemoteVersion{{Version: mustVersion(t, "17.0.0")}, {Version: v}}

	_, err := h.run(t, "ls-remote", "--filter", "18")
	require.NoError(t, err)
	assert.Equal(t, "v17.0.0\nv18.12.0 (Hydrogen)\n", h.out.String())

	_, err = h.run(t, "ls-remote", "--lts")
	require.NoError(t, err)
	_, err = h.run(t, "list-remote", "--lts=hydrogen", "--latest")
	require.NoError(t, err)

	require.Len(t, h.lister.filters, 3)
	assert.Equal(t, version.RemoteFilter{Prefix: "18"}, h.lister.filters[0])
	assert.Equal(t, version.RemoteFilter{LTS: true}, h.lister.filters[1])
	assert.Equal(t, version.RemoteFilter{Codename: "hydrogen", Latest: true}, h.lister.filters[2])
}

func TestLsRemoteEmpty(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.run(t, "ls-remote")
	require.NoError(t, err)
	assert.Empty(t, h.out.String())
	assert.Contains(t, h.errOut.String(), "No versions were found")
}

func TestLsMarksCurrentAndSystem(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.lister.local = []version.LocalEntry{
		{Installed: models.InstalledVersion{Version: mustVersion(t, "16.0.0")}, Current: true},
		{Installed: models.InstalledVersion{Version: mustVersion(t, "18.0.0")}, Aliases: []string{"default"}},
	}

	_, err := h.run(t, "ls")
	require.NoError(t, err)
	assert.Equal(t, "* v16.0.0\n  v18.0.0 default\n  system\n", h.out.String())
}

func TestLsWithoutCurrentMarksSystem(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.run(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "* system\n", h.out.String())
}

func TestInstallResolvesRemoteAndSetsDefault(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	target := mustVersion(t, "18.12.1")
	h.resolver.result = version.Resolution{Version: target}

	_, err := h.run(t, "install", "18", "--progress", "never")
	require.NoError(t, err)

	require.Len(t, h.resolver.specs, 1)
	assert.Equal(t, models.Partial{Major: 18}, h.resolver.specs[0])
	assert.Equal(t, version.ScopeRemote, h.resolver.scopes[0])
	assert.Equal(t, []models.Version{target}, h.installer.ensured)
	assert.Contains(t, h.out.String(), "Installed Node v18.12.1")

	def, err := h.aliases.Get(models.DefaultAlias)
	require.NoError(t, err)
	assert.Equal(t, target, def)
}

func TestInstallKeepsExistingDefault(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	existing := mustVersion(t, "16.0.0")
	h.aliases.entries[models.DefaultAlias] = existing
	h.resolver.result = version.Resolution{Version: mustVersion(t, "18.12.1")}

	_, err := h.run(t, "install", "--lts")
	require.NoError(t, err)
	assert.Equal(t, models.LatestLts{}, h.resolver.specs[0])
	assert.Equal(t, existing, h.aliases.entries[models.DefaultAlias])
}

func TestInstallSkipsInstalledUnlessForced(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.resolver.result = version.Resolution{Version: mustVersion(t, "18.12.1"), Installed: true}

	_, err := h.run(t, "install", "18.12.1")
	require.NoError(t, err)
	assert.Empty(t, h.installer.ensured)
	assert.Contains(t, h.errOut.String(), "already installed")

	_, err = h.run(t, "install", "18.12.1", "--force")
	require.NoError(t, err)
	require.Len(t, h.installer.opts, 1)
	assert.True(t, h.installer.opts[0].Force)
}

func TestInstallRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	cases := [][]string{
		{"install", "system"},
		{"install", "18", "--lts"},
		{"install", "18", "--progress", "sometimes"},
	}
	for _, args := range cases {
		h := newHarness(t)
		_, err := h.run(t, args...)
		require.Error(t, err, strings.Join(args, " "))
		assert.True(t, nvcerr.IsKind(err, nvcerr.InvalidInput), strings.Join(args, " "))
		assert.Empty(t, h.installer.ensured)
	}
}

func TestInstallPropagatesResolverError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.resolver.err = nvcerr.New(nvcerr.NoMatchingVersion, "no version matches 99")

	code, err := h.run(t, "install", "99")
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.True(t, nvcerr.IsKind(err, nvcerr.NoMatchingVersion))
}

func TestUsePassesOptions(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.switcher.result = version.UseResult{Version: mustVersion(t, "18.0.0"), Changed: true}

	_, err := h.run(t, "use", "18", "--install-if-missing", "--save")
	require.NoError(t, err)

	require.Len(t, h.switcher.opts, 1)
	assert.True(t, h.switcher.opts[0].InstallIfMissing)
	assert.True(t, h.switcher.opts[0].Save)
	assert.Equal(t, models.Partial{Major: 18}, h.switcher.specs[0])
	assert.Equal(t, "Using Node v18.0.0\n", h.out.String())
}

func TestUseWithoutArgumentDefersToVersionFiles(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.switcher.result = version.UseResult{Version: mustVersion(t, "18.0.0")}

	_, err := h.run(t, "use", "--silent-if-unchanged")
	require.NoError(t, err)
	assert.Nil(t, h.switcher.specs[0])
	assert.Empty(t, h.out.String())
}

func TestUseSystem(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.switcher.result = version.UseResult{Bypass: true, Changed: true}

	_, err := h.run(t, "use", "system")
	require.NoError(t, err)
	assert.Equal(t, models.Bypass{}, h.switcher.specs[0])
	assert.Contains(t, h.out.String(), "system node")
}

func TestEnvPrintsSnippet(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.run(t, "env", "--shell", "fish", "--use-on-cd")
	require.NoError(t, err)
	assert.Equal(t, "export NVC_MULTISHELL_PATH=/tmp/nvc/multishells/1_1 # fish\n", h.out.String())
	assert.True(t, h.env.opts.UseOnCd)
}

func TestEnvWritesProfile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.run(t, "env", "--write-profile")
	require.NoError(t, err)
	assert.Equal(t, []env.Shell{env.Bash}, h.env.written)
	assert.Empty(t, h.out.String())
	assert.Contains(t, h.errOut.String(), "/home/u/.bashrc")
}

func TestEnvRejectsUnknownShell(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.run(t, "env", "--shell", "tcsh")
	require.Error(t, err)
}

func TestAliasAndDefault(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	target := mustVersion(t, "18.0.0")
	h.resolver.result = version.Resolution{Version: target, Installed: true}

	_, err := h.run(t, "alias", "18", "work")
	require.NoError(t, err)
	assert.Equal(t, version.ScopeInstalled, h.resolver.scopes[0])
	assert.Equal(t, target, h.aliases.entries["work"])

	_, err = h.run(t, "default", "18")
	require.NoError(t, err)
	assert.Equal(t, target, h.aliases.entries[models.DefaultAlias])

	h.out.Reset()
	_, err = h.run(t, "default")
	require.NoError(t, err)
	assert.Equal(t, "v18.0.0\n", h.out.String())

	_, err = h.run(t, "unalias", "work")
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, h.aliases.removed)
}

func TestAliasRequiresInstalledVersion(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.resolver.result = version.Resolution{Version: mustVersion(t, "20.0.0")}

	_, err := h.run(t, "alias", "20", "next")
	require.Error(t, err)
	assert.True(t, nvcerr.IsKind(err, nvcerr.VersionNotInstalled))
	assert.Empty(t, h.aliases.entries)
}

func TestDefaultWithoutAliasFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.run(t, "default")
	require.Error(t, err)
	assert.True(t, nvcerr.IsKind(err, nvcerr.AliasNotFound))
}

func TestCurrent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.run(t, "current")
	require.NoError(t, err)
	assert.Equal(t, "none\n", h.out.String())

	h.out.Reset()
	h.lister.current = mustVersion(t, "16.14.0")
	h.lister.hasCur = true
	_, err = h.run(t, "current")
	require.NoError(t, err)
	assert.Equal(t, "v16.14.0\n", h.out.String())
}

func TestExecReturnsChildExitCode(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.executor.code = 7

	code, err := h.run(t, "exec", "--using", "18", "--", "node", "-e", "process.exit(7)")
	require.NoError(t, err)
	assert.Equal(t, 7, code)
	assert.Equal(t, "node", h.executor.req.Command)
	assert.Equal(t, []string{"-e", "process.exit(7)"}, h.executor.req.Args)
	assert.Equal(t, models.Partial{Major: 18}, h.executor.req.Specifier)
	assert.Equal(t, "/work", h.executor.req.Cwd)
}

func TestExecWithoutUsing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.run(t, "exec", "npm", "--version")
	require.NoError(t, err)
	assert.Nil(t, h.executor.req.Specifier)
	assert.Equal(t, []string{"--version"}, h.executor.req.Args)
}

func TestUninstallReportsAliases(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.uninstaller.target = mustVersion(t, "16.0.0")
	h.uninstaller.removed = []string{"default", "old"}

	_, err := h.run(t, "uninstall", "old")
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "Uninstalled Node v16.0.0")
	assert.Contains(t, h.out.String(), "Removed aliases: default, old")
}

func TestUninstallTargetError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.uninstaller.err = nvcerr.New(nvcerr.VersionNotInstalled, "version v16.0.0 is not installed")

	_, err := h.run(t, "uninstall", "16.0.0")
	require.Error(t, err)
	assert.True(t, nvcerr.IsKind(err, nvcerr.VersionNotInstalled))
}

func TestConfigFlagsReachLoader(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.run(t, "--log-level", "debug", "current", "--corepack-enabled", "--dir", "/opt/nvc")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"log_level":        "debug",
		"corepack_enabled": "true",
		"dir":              "/opt/nvc",
	}, h.flags)
}

func TestLoaderErrorStopsCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.app.loadConfig = func(map[string]any) (*models.Config, error) {
		return nil, nvcerr.New(nvcerr.ConfigInvalid, "bad mirror")
	}
	_, err := h.run(t, "current")
	require.Error(t, err)
	assert.True(t, nvcerr.IsKind(err, nvcerr.ConfigInvalid))
	assert.Empty(t, h.out.String())
}

func TestFormatError(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	msg := FormatError(buf, nvcerr.New(nvcerr.NoVersionConfigured, "no version configured"))
	assert.True(t, strings.HasPrefix(msg, "error: no version configured"))
	assert.Contains(t, msg, "nvc ls-remote --lts")

	assert.Equal(t, "error: boom", FormatError(buf, errors.New("boom")))
}

func TestCompletionSkipsSetup(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.app.loadConfig = func(map[string]any) (*models.Config, error) {
		return nil, errors.New("config must not be loaded")
	}
	_, err := h.run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "bash completion")
}

func TestLsRemoteCodenameNeedsEquals(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.run(t, "ls-remote", "--lts", "hydrogen")
	require.Error(t, err)
	assert.Empty(t, h.lister.filters)

	_, err = h.run(t, "ls-remote", "--help")
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "--lts=<codename>")
}
