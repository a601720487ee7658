package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/pkg/models"
)

const (
	installationDirName = "installation"
	metadataFileName    = "metadata.json"
)

// LocalStorage 定义本地已安装版本的读取、发布与撤销接口。
type LocalStorage interface {
	List() ([]models.InstalledVersion, error)
	Get(version models.Version) (models.InstalledVersion, bool, error)
	VersionDir(version models.Version) string
	InstallationDir(version models.Version) string
	BinDir(version models.Version) string
	VersionFromPath(path string) (models.Version, bool)
	NewStaging(pattern string) (string, error)
	WriteMetadata(stagedVersionDir string, inst models.InstalledVersion) error
	Publish(stagedVersionDir string, version models.Version) (bool, error)
	Unpublish(version models.Version) (string, error)
}

// FileStorage 以 node-versions/<version> 目录的形式保存安装结果。
// 目录只通过 rename 出现或消失，因此读取方看到的要么是完整安装，要么不存在。
type FileStorage struct {
	installDir string
	stagingDir string
	goos       string
}

// Metadata 表示每个安装目录中的 metadata.json，在发布前写入临时目录。
type Metadata struct {
	Version     string    `json:"version"`
	LTS         string    `json:"lts,omitempty"`
	Arch        string    `json:"arch"`
	InstalledAt time.Time `json:"installed_at"`
}

// NewFileStorage 构造一个文件系统存储实例。
func NewFileStorage(cfg *models.Config) *FileStorage {
	return &FileStorage{
		installDir: cfg.InstallationsDir(),
		stagingDir: cfg.StagingDir(),
		goos:       runtime.GOOS,
	}
}

// List 返回所有已发布版本，按版本号升序。
func (s *FileStorage) List() ([]models.InstalledVersion, error) {
	entries, err := os.ReadDir(s.installDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.InstalledVersion{}, nil
		}
		return nil, nvcerr.Wrap(err, nvcerr.FilesystemError, "storage: read installations")
	}

	versions := make([]models.InstalledVersion, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "v") {
			continue
		}
		v, err := models.ParseVersion(entry.Name())
		if err != nil {
			continue
		}
		inst, ok, err := s.Get(v)
		if err != nil {
			return nil, err
		}
		if ok {
			versions = append(versions, inst)
		}
	}

	slices.SortFunc(versions, func(a, b models.InstalledVersion) int {
		return a.Version.Compare(b.Version)
	})
	return versions, nil
}

// Get 返回指定版本的安装信息；未安装时 ok 为 false。
func (s *FileStorage) Get(version models.Version) (models.InstalledVersion, bool, error) {
	dir := s.VersionDir(version)
	info, err := os.Stat(filepath.Join(dir, installationDirName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.InstalledVersion{}, false, nil
		}
		return models.InstalledVersion{}, false, nvcerr.Wrapf(err, nvcerr.FilesystemError, "storage: stat %s", version)
	}
	if !info.IsDir() {
		return models.InstalledVersion{}, false, nil
	}

	inst := models.InstalledVersion{Version: version, Dir: dir}
	meta, err := readMetadata(dir)
	switch {
	case err == nil:
		inst.Version.LTS = meta.LTS
		inst.Arch = models.Arch(meta.Arch)
		inst.InstalledAt = meta.InstalledAt
	case errors.Is(err, os.ErrNotExist):
	default:
		return models.InstalledVersion{}, false, nvcerr.Wrapf(err, nvcerr.FilesystemError, "storage: read metadata of %s", version)
	}
	return inst, true, nil
}

// VersionDir 返回版本目录 node-versions/<version>。
func (s *FileStorage) VersionDir(version models.Version) string {
	return filepath.Join(s.installDir, version.String())
}

// InstallationDir 返回解压后的 Node.js 目录。
func (s *FileStorage) InstallationDir(version models.Version) string {
	return filepath.Join(s.VersionDir(version), installationDirName)
}

// BinDir 返回可执行文件目录；Windows 发行包的可执行文件位于根目录。
func (s *FileStorage) BinDir(version models.Version) string {
	if s.goos == "windows" {
		return s.InstallationDir(version)
	}
	return filepath.Join(s.InstallationDir(version), "bin")
}

// VersionFromPath 从指向安装目录内部的路径中解析版本号。
func (s *FileStorage) VersionFromPath(path string) (models.Version, bool) {
	rel, err := filepath.Rel(s.installDir, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return models.Version{}, false
	}
	first := strings.Split(rel, string(filepath.Separator))[0]
	v, err := models.ParseVersion(first)
	if err != nil {
		return models.Version{}, false
	}
	return v, true
}

// NewStaging 在 staging 目录下创建临时目录，与安装目录位于同一文件系统以保证 rename 原子。
func (s *FileStorage) NewStaging(pattern string) (string, error) {
	if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
		return "", nvcerr.Wrap(err, nvcerr.FilesystemError, "storage: prepare staging dir")
	}
	dir, err := os.MkdirTemp(s.stagingDir, pattern)
	if err != nil {
		return "", nvcerr.Wrap(err, nvcerr.FilesystemError, "storage: create staging dir")
	}
	return dir, nil
}

// WriteMetadata 向尚未发布的版本目录写入 metadata.json。
func (s *FileStorage) WriteMetadata(stagedVersionDir string, inst models.InstalledVersion) error {
	meta := Metadata{
		Version:     inst.Version.String(),
		LTS:         inst.Version.LTS,
		Arch:        string(inst.Arch),
		InstalledAt: inst.InstalledAt.UTC(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nvcerr.Wrap(err, nvcerr.FilesystemError, "storage: encode metadata")
	}
	if err := os.WriteFile(filepath.Join(stagedVersionDir, metadataFileName), data, 0o644); err != nil {
		return nvcerr.Wrap(err, nvcerr.FilesystemError, "storage: write metadata")
	}
	return nil
}

// Publish 通过一次 rename 将暂存目录发布为 node-versions/<version>。
// 目标已存在（并发安装同一版本）时以已有目录为准，返回 false，由调用方丢弃暂存内容。
func (s *FileStorage) Publish(stagedVersionDir string, version models.Version) (bool, error) {
	if err := os.MkdirAll(s.installDir, 0o755); err != nil {
		return false, nvcerr.Wrap(err, nvcerr.FilesystemError, "storage: prepare installations dir")
	}
	target := s.VersionDir(version)
	if _, err := os.Lstat(target); err == nil {
		return false, nil
	}
	if err := os.Rename(stagedVersionDir, target); err != nil {
		if _, statErr := os.Lstat(target); statErr == nil {
			return false, nil
		}
		return false, nvcerr.Wrapf(err, nvcerr.FilesystemError, "storage: publish %s", version)
	}
	return true, nil
}

// Unpublish 将版本目录 rename 进 staging，使其立即对读取方不可见，返回待删除的临时目录。
func (s *FileStorage) Unpublish(version models.Version) (string, error) {
	_, ok, err := s.Get(version)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nvcerr.Newf(nvcerr.VersionNotInstalled, "storage: version %s is not installed", version)
	}

	trash, err := s.NewStaging("trash-*")
	if err != nil {
		return "", err
	}
	if err := os.Rename(s.VersionDir(version), filepath.Join(trash, version.String())); err != nil {
		_ = os.RemoveAll(trash)
		return "", nvcerr.Wrapf(err, nvcerr.FilesystemError, "storage: unpublish %s", version)
	}
	return trash, nil
}

func readMetadata(versionDir string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(versionDir, metadataFileName))
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode %s: %w", metadataFileName, err)
	}
	return meta, nil
}
