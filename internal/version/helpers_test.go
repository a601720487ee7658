package version

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/liangyou/nvc/internal/alias"
	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/internal/shelllink"
	"github.com/liangyou/nvc/internal/storage"
	"github.com/liangyou/nvc/internal/storage/storagetest"
	"github.com/liangyou/nvc/pkg/models"
)

// fakeCatalog 是内存中的远程目录，记录访问次数。
type fakeCatalog struct {
	versions []models.RemoteVersion
	fetches  atomic.Int32
}

func newFakeCatalog(t *testing.T, entries ...string) *fakeCatalog {
	t.Helper()
	c := &fakeCatalog{}
	for _, e := range entries {
		raw, lts, _ := strings.Cut(e, "@")
		v, err := models.ParseVersion(raw)
		require.NoError(t, err)
		v.LTS = lts
		c.versions = append(c.versions, models.RemoteVersion{Version: v})
	}
	sort.Slice(c.versions, func(i, j int) bool { return c.versions[i].Version.Compare(c.versions[j].Version) < 0 })
	return c
}

func (c *fakeCatalog) FetchVersions(context.Context) ([]models.RemoteVersion, error) {
	c.fetches.Add(1)
	return append([]models.RemoteVersion(nil), c.versions...), nil
}

func (c *fakeCatalog) Lookup(ctx context.Context, v models.Version) (models.RemoteVersion, error) {
	list, _ := c.FetchVersions(ctx)
	for _, rv := range list {
		if rv.Version.Same(v) {
			return rv, nil
		}
	}
	return models.RemoteVersion{}, nvcerr.Newf(nvcerr.RemoteVersionNotFound, "version %s not found", v)
}

// fixture 汇集一个临时 nvc 根目录下的真实存储、别名与会话链接。
type fixture struct {
	cfg     *models.Config
	store   *storage.FileStorage
	aliases *alias.Store
	link    *shelllink.Link
	catalog *fakeCatalog
}

func newFixture(t *testing.T, remote ...string) *fixture {
	t.Helper()
	cfg := storagetest.NewConfig(t)
	store := storage.NewFileStorage(cfg)
	return &fixture{
		cfg:     cfg,
		store:   store,
		aliases: alias.NewStore(cfg, store, zerolog.Nop()),
		link:    shelllink.New(store, zerolog.Nop()),
		catalog: newFakeCatalog(t, remote...),
	}
}

func (f *fixture) install(t *testing.T, versions ...string) {
	t.Helper()
	for _, e := range versions {
		raw, lts, _ := strings.Cut(e, "@")
		storagetest.Install(t, f.store, raw, lts)
	}
}

func (f *fixture) resolver(opts ...ResolverOption) *Resolver {
	return NewResolver(f.cfg, f.store, f.catalog, f.aliases, opts...)
}

func mustVersion(t *testing.T, raw string) models.Version {
	t.Helper()
	v, err := models.ParseVersion(raw)
	require.NoError(t, err)
	return v
}

func mustSpec(t *testing.T, raw string) models.Specifier {
	t.Helper()
	spec, err := models.ParseSpecifier(raw)
	require.NoError(t, err)
	return spec
}

// nodeTarXz 构造与官方发布包结构一致的 tar.xz：node-<v>-linux-x64/bin/node。
func nodeTarXz(t *testing.T, top string, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(xw)

	require.NoError(t, tw.WriteHeader(&tar.Header{Name: top + "/", Mode: 0o755, Typeflag: tar.TypeDir}))
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	dirs := map[string]bool{}
	for _, name := range names {
		if dir := path.Dir(name); dir != "." && !dirs[dir] {
			dirs[dir] = true
			require.NoError(t, tw.WriteHeader(&tar.Header{Name: path.Join(top, dir) + "/", Mode: 0o755, Typeflag: tar.TypeDir}))
		}
		content := files[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     path.Join(top, name),
			Mode:     0o755,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, xw.Close())
	return buf.Bytes()
}

func nodeZip(t *testing.T, top string, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create(top + "/")
	require.NoError(t, err)
	for name, content := range files {
		w, err := zw.Create(path.Join(top, name))
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// mirrorServer 模拟发布源，为每个版本提供 linux-x64 的 tar.xz，并统计下载次数。
type mirrorServer struct {
	*httptest.Server
	downloads atomic.Int32
}

func newMirrorServer(t *testing.T, versions ...string) *mirrorServer {
	t.Helper()
	m := &mirrorServer{}
	archives := map[string][]byte{}
	for _, raw := range versions {
		top := fmt.Sprintf("node-%s-linux-x64", raw)
		archives[fmt.Sprintf("/%s/%s.tar.xz", raw, top)] = nodeTarXz(t, top, map[string]string{
			"bin/node":       "#!/bin/sh\necho " + raw + "\n",
			"include/node.h": "// header",
		})
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		m.downloads.Add(1)
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		_, _ = w.Write(data)
	}))
	t.Cleanup(m.Close)
	return m
}
