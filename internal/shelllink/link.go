// Package shelllink 管理每个 shell 会话独占的 "当前版本" 符号链接。
package shelllink

import (
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/liangyou/nvc/internal/fsutil"
	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/internal/storage"
	"github.com/liangyou/nvc/pkg/models"
)

// Link 将会话路径指向某个已安装版本的 bin 目录。不同会话使用不同路径，互不影响。
type Link struct {
	storage storage.LocalStorage
	logger  zerolog.Logger
}

// New 创建 Link。
func New(store storage.LocalStorage, logger zerolog.Logger) *Link {
	return &Link{storage: store, logger: logger}
}

// Point 原子地将会话链接指向 version 的 bin 目录。
func (l *Link) Point(sessionPath string, version models.Version) error {
	if err := requireSession(sessionPath); err != nil {
		return err
	}
	if _, ok, err := l.storage.Get(version); err != nil {
		return err
	} else if !ok {
		return nvcerr.Newf(nvcerr.VersionNotInstalled, "shell link: version %s is not installed", version)
	}

	if err := fsutil.ReplaceSymlink(l.storage.BinDir(version), sessionPath); err != nil {
		return nvcerr.Wrap(err, nvcerr.FilesystemError, "shell link: repoint session")
	}
	l.logger.Debug().Str("session", sessionPath).Str("version", version.String()).Msg("Session link updated")
	return nil
}

// Current 返回会话链接当前指向的版本；链接不存在或不指向安装目录时 ok 为 false。
func (l *Link) Current(sessionPath string) (models.Version, bool, error) {
	if sessionPath == "" {
		return models.Version{}, false, nil
	}
	target, err := os.Readlink(sessionPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrInvalid) {
			return models.Version{}, false, nil
		}
		return models.Version{}, false, nvcerr.Wrap(err, nvcerr.FilesystemError, "shell link: read session")
	}
	version, ok := l.storage.VersionFromPath(target)
	if !ok {
		return models.Version{}, false, nil
	}
	inst, installed, err := l.storage.Get(version)
	if err != nil {
		return models.Version{}, false, err
	}
	if !installed {
		return models.Version{}, false, nil
	}
	return inst.Version, true, nil
}

// Clear 删除会话链接，使 PATH 回落到系统自带的 node。
func (l *Link) Clear(sessionPath string) error {
	if err := requireSession(sessionPath); err != nil {
		return err
	}
	if err := os.Remove(sessionPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nvcerr.Wrap(err, nvcerr.FilesystemError, "shell link: clear session")
	}
	return nil
}

func requireSession(sessionPath string) error {
	if sessionPath == "" {
		return nvcerr.New(nvcerr.InvalidInput, "shell link: session path is not set; evaluate `nvc env` in your shell first")
	}
	return nil
}
