package version

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/pkg/models"
)

const manifestFileName = "package.json"

type packageManifest struct {
	Engines struct {
		Node string `json:"node"`
	} `json:"engines"`
}

// EnginesRange 是 package.json 中声明的 engines.node 范围。
type EnginesRange struct {
	Path  string
	Range models.Range
}

// FindEnginesRange 查找最近一个声明了 engines.node 的 package.json。
func FindEnginesRange(fs afero.Fs, cwd string, strategy models.VersionFileStrategy) (EnginesRange, bool, error) {
	var (
		found EnginesRange
		ok    bool
	)
	err := walkUp(cwd, strategy, func(dir string) (bool, error) {
		path := filepath.Join(dir, manifestFileName)
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return false, nil
			}
			return false, nvcerr.Wrapf(err, nvcerr.FilesystemError, "resolver: read %s", path)
		}

		var manifest packageManifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			return false, nvcerr.Wrapf(err, nvcerr.SpecifierUnparseable, "resolver: decode %s", path)
		}
		raw := strings.TrimSpace(manifest.Engines.Node)
		if raw == "" {
			return false, nil
		}
		r, err := models.ParseRange(raw)
		if err != nil {
			return false, nvcerr.Wrapf(err, nvcerr.SpecifierUnparseable, "resolver: engines.node in %s", path)
		}
		found, ok = EnginesRange{Path: path, Range: r}, true
		return true, nil
	})
	return found, ok, err
}
