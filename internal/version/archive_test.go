package version

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/liangyou/nvc/internal/nvcerr"
)

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestExtractTarXzStripsTopLevel(t *testing.T) {
	t.Parallel()

	archive := writeArchive(t, "node.tar.xz", nodeTarXz(t, "node-v18.0.0-linux-x64", map[string]string{
		"bin/node":         "binary",
		"lib/node/LICENSE": "mit",
	}))
	dest := filepath.Join(t.TempDir(), "installation")

	require.NoError(t, extractArchive(archive, dest))
	data, err := os.ReadFile(filepath.Join(dest, "bin", "node"))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))
	assert.FileExists(t, filepath.Join(dest, "lib", "node", "LICENSE"))
	assert.NoDirExists(t, filepath.Join(dest, "node-v18.0.0-linux-x64"))
}

func TestExtractZipStripsTopLevel(t *testing.T) {
	t.Parallel()

	archive := writeArchive(t, "node.zip", nodeZip(t, "node-v18.0.0-win-x64", map[string]string{
		"node.exe":          "exe",
		"node_modules/a.js": "js",
	}))
	dest := filepath.Join(t.TempDir(), "installation")

	require.NoError(t, extractArchive(archive, dest))
	assert.FileExists(t, filepath.Join(dest, "node.exe"))
	assert.FileExists(t, filepath.Join(dest, "node_modules", "a.js"))
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(xw)
	content := "evil"
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "node/../../escape", Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}))
	_, err = tw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, xw.Close())

	archive := writeArchive(t, "evil.tar.xz", buf.Bytes())
	err = extractArchive(archive, filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.True(t, nvcerr.IsKind(err, nvcerr.ArchiveError))
}

func TestExtractCorruptArchive(t *testing.T) {
	t.Parallel()

	archive := writeArchive(t, "bad.tar.xz", []byte("not an archive"))
	err := extractArchive(archive, filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.True(t, nvcerr.IsKind(err, nvcerr.ArchiveError))

	err = extractArchive(writeArchive(t, "node.rar", []byte("x")), filepath.Join(t.TempDir(), "out"))
	assert.True(t, nvcerr.IsKind(err, nvcerr.ArchiveError))
}

func TestStripTopLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		skip bool
	}{
		{in: "node-v1/", skip: true},
		{in: "./node-v1", skip: true},
		{in: "node-v1/bin/node", want: "bin/node"},
		{in: "./node-v1/include/", want: "include"},
	}
	for _, tt := range tests {
		got, skip := stripTopLevel(tt.in)
		assert.Equal(t, tt.skip, skip, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
