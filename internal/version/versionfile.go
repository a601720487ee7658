package version

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/pkg/models"
)

// versionFileNames 按优先级排列；同一目录下 .node-version 优先于 .nvmrc。
var versionFileNames = []string{".node-version", ".nvmrc"}

// VersionFile 表示找到的版本文件及其内容。
type VersionFile struct {
	Path      string
	Specifier models.Specifier
}

// FindVersionFile 按策略查找最近的版本文件。未找到时 ok 为 false，不视为错误。
func FindVersionFile(fs afero.Fs, cwd string, strategy models.VersionFileStrategy) (VersionFile, bool, error) {
	var (
		found VersionFile
		ok    bool
	)
	err := walkUp(cwd, strategy, func(dir string) (bool, error) {
		for _, name := range versionFileNames {
			path := filepath.Join(dir, name)
			data, err := afero.ReadFile(fs, path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return false, nvcerr.Wrapf(err, nvcerr.FilesystemError, "resolver: read %s", path)
			}
			line := firstSpecifierLine(data)
			if line == "" {
				continue
			}
			spec, err := models.ParseSpecifier(line)
			if err != nil {
				return false, nvcerr.Wrapf(err, nvcerr.SpecifierUnparseable, "resolver: %s", path)
			}
			found, ok = VersionFile{Path: path, Specifier: spec}, true
			return true, nil
		}
		return false, nil
	})
	return found, ok, err
}

// firstSpecifierLine 返回第一行非空、非注释的内容。
func firstSpecifierLine(data []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// walkUp 在 cwd 上调用 visit；recursive 策略下继续向上直到根目录或 visit 返回 true。
func walkUp(cwd string, strategy models.VersionFileStrategy, visit func(dir string) (bool, error)) error {
	dir := filepath.Clean(cwd)
	for {
		done, err := visit(dir)
		if err != nil || done {
			return err
		}
		if strategy != models.StrategyRecursive {
			return nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}
