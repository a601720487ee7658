package version

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/pkg/models"
)

func TestIntegrationInstallUseUninstall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "v16.20.0@Gallium", "v18.12.0@Hydrogen")
	mirror := newMirrorServer(t, "v16.20.0", "v18.12.0")
	installer := newTestInstaller(f, mirror)
	f.cfg.MultishellPath = filepath.Join(t.TempDir(), "session")
	resolver := f.resolver()
	switcher := NewSwitcher(f.cfg, resolver, installer, f.link, f.aliases, zerolog.Nop())
	uninstaller := NewUninstaller(f.cfg, f.store, f.aliases, f.link, zerolog.Nop())
	ctx := context.Background()

	res, err := resolver.Resolve(ctx, models.LatestLts{}, "/", ScopeRemote)
	require.NoError(t, err)
	require.False(t, res.Installed)
	_, err = installer.Ensure(ctx, res.Version, EnsureOptions{})
	require.NoError(t, err)

	used, err := switcher.Use(ctx, mustSpec(t, "lts/gallium"), "/", UseOptions{InstallIfMissing: true, Save: true})
	require.NoError(t, err)
	assert.Equal(t, "v16.20.0", used.Version.String())
	assert.Equal(t, int32(2), mirror.downloads.Load())

	require.NoError(t, f.aliases.Set("team", mustVersion(t, "v16.20.0")))

	list, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)

	target, err := uninstaller.Target(mustSpec(t, "team"))
	require.NoError(t, err)
	out, err := uninstaller.Uninstall(target)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"default", "team"}, out.RemovedAliases)
	assert.True(t, out.SessionCleared)

	_, err = f.aliases.Get("team")
	assert.True(t, nvcerr.IsKind(err, nvcerr.AliasNotFound))

	remaining, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "v18.12.0", remaining[0].Version.String())
}
