package version

import (
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/internal/storage"
	"github.com/liangyou/nvc/pkg/models"
)

// AliasManager 是卸载时需要的别名能力。
type AliasManager interface {
	Get(name string) (models.Version, error)
	SweepVersion(version models.Version) ([]string, error)
}

// UninstallResult 描述一次卸载。
type UninstallResult struct {
	Version        models.Version
	RemovedAliases []string
	SessionCleared bool
}

// Uninstaller 删除本地已安装的 Node 版本及指向它的所有别名。
type Uninstaller struct {
	cfg     *models.Config
	storage storage.LocalStorage
	aliases AliasManager
	link    SessionLink
	logger  zerolog.Logger
}

// NewUninstaller 创建卸载器。
func NewUninstaller(cfg *models.Config, store storage.LocalStorage, aliases AliasManager, link SessionLink, logger zerolog.Logger) *Uninstaller {
	return &Uninstaller{cfg: cfg, storage: store, aliases: aliases, link: link, logger: logger}
}

// Target 将用户输入解析为要卸载的版本：完整版本号、唯一匹配的前缀或别名。
func (u *Uninstaller) Target(spec models.Specifier) (models.Version, error) {
	switch s := spec.(type) {
	case models.Exact:
		return s.Version, nil
	case models.AliasName:
		return u.aliases.Get(s.Name)
	case models.Partial:
		list, err := u.storage.List()
		if err != nil {
			return models.Version{}, err
		}
		var matches []models.Version
		for _, inst := range list {
			if s.Matches(inst.Version) {
				matches = append(matches, inst.Version)
			}
		}
		switch len(matches) {
		case 0:
			return models.Version{}, nvcerr.Newf(nvcerr.VersionNotInstalled, "no installed version matches %s", s)
		case 1:
			return matches[0], nil
		default:
			return models.Version{}, nvcerr.Newf(nvcerr.InvalidInput, "%d installed versions match %s, specify one exactly", len(matches), s)
		}
	default:
		return models.Version{}, nvcerr.Newf(nvcerr.InvalidInput, "cannot uninstall %q: give a version or an alias", spec)
	}
}

// Uninstall 先将版本目录原子地移出安装目录，再清理别名，最后删除文件。
// 别名清理无论删除是否成功都会执行完毕。
func (u *Uninstaller) Uninstall(version models.Version) (UninstallResult, error) {
	session := u.cfg.MultishellPath
	current, hasCurrent, err := u.link.Current(session)
	if err != nil {
		return UninstallResult{}, err
	}

	trash, err := u.storage.Unpublish(version)
	if err != nil {
		return UninstallResult{}, err
	}
	result := UninstallResult{Version: version}

	removed, sweepErr := u.aliases.SweepVersion(version)
	result.RemovedAliases = removed

	var removeErr error
	if err := os.RemoveAll(trash); err != nil {
		removeErr = nvcerr.Wrapf(err, nvcerr.FilesystemError, "uninstaller: delete %s", version)
	}

	var clearErr error
	if hasCurrent && current.Same(version) {
		if clearErr = u.link.Clear(session); clearErr == nil {
			result.SessionCleared = true
		}
	}

	u.logger.Debug().
		Str("version", version.String()).
		Strs("aliases", removed).
		Bool("session_cleared", result.SessionCleared).
		Msg("Version uninstalled")
	return result, errors.Join(sweepErr, removeErr, clearErr)
}
