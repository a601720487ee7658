package version

import (
	"archive/tar"
	"bufio"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"

	"github.com/liangyou/nvc/internal/nvcerr"
)

// extractArchive 按扩展名解压发布包到 dest，并去掉包内唯一的顶层目录。
func extractArchive(archivePath, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nvcerr.Wrap(err, nvcerr.FilesystemError, "installer: prepare extract dir")
	}
	switch {
	case strings.HasSuffix(archivePath, ".tar.xz"):
		return extractTarXz(archivePath, dest)
	case strings.HasSuffix(archivePath, ".zip"):
		return extractZip(archivePath, dest)
	default:
		return nvcerr.Newf(nvcerr.ArchiveError, "installer: unrecognized archive %s", filepath.Base(archivePath))
	}
}

func extractTarXz(archivePath, dest string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return nvcerr.Wrap(err, nvcerr.FilesystemError, "installer: open archive")
	}
	defer file.Close()

	xr, err := xz.NewReader(bufio.NewReader(file))
	if err != nil {
		return nvcerr.Wrap(err, nvcerr.ArchiveError, "installer: xz reader")
	}

	tr := tar.NewReader(xr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nvcerr.Wrap(err, nvcerr.ArchiveError, "installer: read archive")
		}

		relPath, skip := stripTopLevel(header.Name)
		if skip {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(relPath))
		if err := ensureWithinRoot(dest, target); err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(header.FileInfo().Mode())); err != nil {
				return nvcerr.Wrapf(err, nvcerr.FilesystemError, "installer: mkdir %s", target)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, header.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nvcerr.Wrapf(err, nvcerr.FilesystemError, "installer: mkdir for link %s", target)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return nvcerr.Wrapf(err, nvcerr.FilesystemError, "installer: symlink %s", target)
			}
		case tar.TypeLink:
			linkRel, skip := stripTopLevel(header.Linkname)
			if skip {
				return nvcerr.Newf(nvcerr.ArchiveError, "installer: bad hard link %q", header.Name)
			}
			source := filepath.Join(dest, filepath.FromSlash(linkRel))
			if err := ensureWithinRoot(dest, source); err != nil {
				return err
			}
			if err := os.Link(source, target); err != nil {
				return nvcerr.Wrapf(err, nvcerr.FilesystemError, "installer: hard link %s", target)
			}
		case tar.TypeXGlobalHeader, tar.TypeXHeader:
		default:
			return nvcerr.Newf(nvcerr.ArchiveError, "installer: unsupported tar entry %q", header.Name)
		}
	}
	return nil
}

func extractZip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nvcerr.Wrap(err, nvcerr.ArchiveError, "installer: open zip")
	}
	defer zr.Close()

	for _, f := range zr.File {
		relPath, skip := stripTopLevel(f.Name)
		if skip {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(relPath))
		if err := ensureWithinRoot(dest, target); err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nvcerr.Wrapf(err, nvcerr.FilesystemError, "installer: mkdir %s", target)
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nvcerr.Wrapf(err, nvcerr.ArchiveError, "installer: open zip entry %s", f.Name)
		}
		err = writeFile(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nvcerr.Wrapf(err, nvcerr.FilesystemError, "installer: mkdir for file %s", target)
	}
	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return nvcerr.Wrapf(err, nvcerr.FilesystemError, "installer: create file %s", target)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return nvcerr.Wrapf(err, nvcerr.ArchiveError, "installer: copy file %s", target)
	}
	if err := f.Close(); err != nil {
		return nvcerr.Wrapf(err, nvcerr.FilesystemError, "installer: close file %s", target)
	}
	return nil
}

func dirMode(mode os.FileMode) os.FileMode {
	if perm := mode.Perm(); perm != 0 {
		return perm | 0o700
	}
	return 0o755
}

// stripTopLevel 去掉 node-vX.Y.Z-<platform>-<arch>/ 前缀；顶层目录本身返回 skip。
func stripTopLevel(name string) (string, bool) {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	if clean == "." || clean == "" || clean == "/" {
		return "", true
	}
	if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return clean, false
	}
	_, rest, found := strings.Cut(clean, "/")
	if !found || rest == "" {
		return "", true
	}
	return rest, false
}

func ensureWithinRoot(root, target string) error {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if target == root {
		return nil
	}
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return nvcerr.Newf(nvcerr.ArchiveError, "installer: illegal path %s", target)
	}
	return nil
}
