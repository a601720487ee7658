package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/pkg/models"
)

const sampleIndex = `[
  {"version":"v18.0.0","date":"2022-04-19","files":["linux-x64","osx-arm64-tar","win-x64-zip"],"lts":false},
  {"version":"v16.14.0","date":"2022-02-08","files":["linux-x64","osx-x64-tar"],"lts":"Gallium"},
  {"version":"v16.2.0","date":"2021-05-19","files":["linux-x64"],"lts":false},
  {"version":"v0.12.0-rc.1","date":"2015-01-01","files":[],"lts":false}
]`

func newIndexServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.URL.Path != "/index.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchVersionsParsesAndSorts(t *testing.T) {
	t.Parallel()

	server := newIndexServer(t, sampleIndex, nil)
	client := NewClient(WithMirror(server.URL+"/"), WithHTTPClient(server.Client()))

	versions, err := client.FetchVersions(context.Background())
	require.NoError(t, err)
	require.Len(t, versions, 3)

	assert.Equal(t, "v16.2.0", versions[0].Version.String())
	assert.Equal(t, "v16.14.0", versions[1].Version.String())
	assert.Equal(t, "Gallium", versions[1].Version.LTS)
	assert.Equal(t, "v18.0.0", versions[2].Version.String())
	assert.False(t, versions[2].Version.IsLTS())
	assert.Equal(t, server.URL, client.Mirror())
}

func TestFetchVersionsHandlesHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := NewClient(WithMirror(server.URL), WithHTTPClient(server.Client()))

	_, err := client.FetchVersions(context.Background())
	require.Error(t, err)
	assert.True(t, nvcerr.IsKind(err, nvcerr.NetworkError))
}

func TestFetchVersionsUsesCache(t *testing.T) {
	t.Parallel()

	var hits int32
	server := newIndexServer(t, sampleIndex, &hits)
	client := NewClient(WithMirror(server.URL), WithHTTPClient(server.Client()), WithCacheTTL(time.Hour))

	for i := 0; i < 2; i++ {
		versions, err := client.FetchVersions(context.Background())
		require.NoError(t, err)
		require.Len(t, versions, 3)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	server := newIndexServer(t, sampleIndex, nil)
	client := NewClient(WithMirror(server.URL), WithHTTPClient(server.Client()))

	rv, err := client.Lookup(context.Background(), models.Version{Major: 16, Minor: 14})
	require.NoError(t, err)
	assert.Equal(t, "Gallium", rv.Version.LTS)

	_, err = client.Lookup(context.Background(), models.Version{Major: 99})
	require.Error(t, err)
	assert.True(t, nvcerr.IsKind(err, nvcerr.RemoteVersionNotFound))
}

func TestArtifactKeyAndHasArtifact(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "linux-x64", ArtifactKey("linux", models.ArchX64))
	assert.Equal(t, "osx-arm64-tar", ArtifactKey("darwin", models.ArchArm64))
	assert.Equal(t, "win-x86-zip", ArtifactKey("win", models.ArchX86))

	rv := models.RemoteVersion{Files: []string{"linux-x64", "osx-x64-tar"}}
	assert.True(t, HasArtifact(rv, "linux", models.ArchX64))
	assert.False(t, HasArtifact(rv, "darwin", models.ArchArm64))
	assert.True(t, HasArtifact(models.RemoteVersion{}, "linux", models.ArchS390x))
}
