// Package alias 以 aliases/<name> 符号链接的形式保存版本别名。
package alias

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/liangyou/nvc/internal/fsutil"
	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/internal/storage"
	"github.com/liangyou/nvc/pkg/models"
)

// Store 管理别名。别名总是直接指向某个版本的安装目录，写入时已展平，不存在别名指向别名。
type Store struct {
	dir     string
	storage storage.LocalStorage
	logger  zerolog.Logger
}

// NewStore 创建别名存储。
func NewStore(cfg *models.Config, store storage.LocalStorage, logger zerolog.Logger) *Store {
	return &Store{dir: cfg.AliasesDir(), storage: store, logger: logger}
}

// Path 返回别名对应的符号链接路径。
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Set 将别名指向已安装的版本，通过临时链接加 rename 原子替换。
func (s *Store) Set(name string, version models.Version) error {
	if err := models.ValidateAliasName(name); err != nil {
		return err
	}
	if _, ok, err := s.storage.Get(version); err != nil {
		return err
	} else if !ok {
		return nvcerr.Newf(nvcerr.VersionNotInstalled, "alias: version %s is not installed", version)
	}

	if err := fsutil.ReplaceSymlink(s.storage.InstallationDir(version), s.Path(name)); err != nil {
		return nvcerr.Wrapf(err, nvcerr.FilesystemError, "alias: set %s", name)
	}
	s.logger.Debug().Str("alias", name).Str("version", version.String()).Msg("Alias set")
	return nil
}

// Get 解引用别名，返回其指向的已安装版本。
func (s *Store) Get(name string) (models.Version, error) {
	target, err := os.Readlink(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrInvalid) {
			return models.Version{}, nvcerr.Newf(nvcerr.AliasNotFound, "alias %q not found", name)
		}
		return models.Version{}, nvcerr.Wrapf(err, nvcerr.FilesystemError, "alias: read %s", name)
	}

	version, ok := s.storage.VersionFromPath(target)
	if !ok {
		return models.Version{}, nvcerr.Newf(nvcerr.AliasNotFound, "alias %q points outside the installation directory", name)
	}
	inst, ok, err := s.storage.Get(version)
	if err != nil {
		return models.Version{}, err
	}
	if !ok {
		return models.Version{}, nvcerr.Newf(nvcerr.AliasNotFound, "alias %q points to %s which is not installed", name, version)
	}
	return inst.Version, nil
}

// Remove 删除别名。
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nvcerr.Newf(nvcerr.AliasNotFound, "alias %q not found", name)
		}
		return nvcerr.Wrapf(err, nvcerr.FilesystemError, "alias: remove %s", name)
	}
	s.logger.Debug().Str("alias", name).Msg("Alias removed")
	return nil
}

// List 返回所有可解析的别名，按名称排序。
func (s *Store) List() ([]models.Alias, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.Alias{}, nil
		}
		return nil, nvcerr.Wrap(err, nvcerr.FilesystemError, "alias: read aliases dir")
	}

	aliases := make([]models.Alias, 0, len(entries))
	for _, entry := range entries {
		if fsutil.IsTempLink(entry.Name()) {
			continue
		}
		v, err := s.Get(entry.Name())
		if err != nil {
			if nvcerr.IsKind(err, nvcerr.AliasNotFound) {
				continue
			}
			return nil, err
		}
		aliases = append(aliases, models.Alias{Name: entry.Name(), Version: v})
	}
	slices.SortFunc(aliases, func(a, b models.Alias) int { return strings.Compare(a.Name, b.Name) })
	return aliases, nil
}

// NamesFor 返回指向指定版本的别名名称。
func (s *Store) NamesFor(version models.Version) ([]string, error) {
	aliases, err := s.List()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, a := range aliases {
		if a.Version.Same(version) {
			names = append(names, a.Name)
		}
	}
	return names, nil
}

// SweepVersion 删除所有指向该版本的别名（含 default 以及已悬空的链接），即使部分删除失败也会处理完全部别名。
func (s *Store) SweepVersion(version models.Version) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, nvcerr.Wrap(err, nvcerr.FilesystemError, "alias: read aliases dir")
	}

	var removed []string
	var errs []error
	for _, entry := range entries {
		if fsutil.IsTempLink(entry.Name()) {
			continue
		}
		target, err := os.Readlink(s.Path(entry.Name()))
		if err != nil {
			continue
		}
		v, ok := s.storage.VersionFromPath(target)
		if !ok || !v.Same(version) {
			continue
		}
		if err := os.Remove(s.Path(entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, entry.Name())
	}
	if len(errs) > 0 {
		return removed, nvcerr.Wrap(errors.Join(errs...), nvcerr.FilesystemError, "alias: sweep "+version.String())
	}
	return removed, nil
}
