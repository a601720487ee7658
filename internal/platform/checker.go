package platform

import (
	"os"
	"runtime"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/pkg/models"
)

var goarchToNode = map[string]models.Arch{
	"386":     models.ArchX86,
	"amd64":   models.ArchX64,
	"arm64":   models.ArchArm64,
	"arm":     models.ArchArmv7l,
	"ppc64le": models.ArchPpc64le,
	"ppc64":   models.ArchPpc64,
	"s390x":   models.ArchS390x,
}

// Checker 将宿主平台映射为 Node.js 发布包的命名，并校验 nvc 根目录可用。
type Checker struct {
	cfg    *models.Config
	goos   func() string
	goarch func() string
}

// NewChecker 创建平台检测器。
func NewChecker(cfg *models.Config) *Checker {
	return &Checker{
		cfg:    cfg,
		goos:   func() string { return runtime.GOOS },
		goarch: func() string { return runtime.GOARCH },
	}
}

// NewCheckerFor 创建一个固定操作系统与架构的检测器。
func NewCheckerFor(cfg *models.Config, goos, goarch string) *Checker {
	return &Checker{
		cfg:    cfg,
		goos:   func() string { return goos },
		goarch: func() string { return goarch },
	}
}

// DefaultArch 返回宿主架构对应的 Node.js 架构名。
func DefaultArch() models.Arch {
	return NewChecker(nil).HostArch()
}

// HostArch 返回宿主架构，无法映射时回退到 x64。
func (c *Checker) HostArch() models.Arch {
	if arch, ok := goarchToNode[c.goarch()]; ok {
		return arch
	}
	return models.ArchX64
}

// Platform 返回发布包文件名中的平台段：linux、darwin 或 win。
func (c *Checker) Platform() (string, error) {
	switch goos := c.goos(); goos {
	case "linux", "darwin", "aix":
		return goos, nil
	case "windows":
		return "win", nil
	default:
		return "", nvcerr.Newf(nvcerr.InvalidInput, "platform: unsupported operating system %s", goos)
	}
}

// ArchiveExt 返回发布包扩展名：Windows 为 zip，其他平台为 tar.xz。
func (c *Checker) ArchiveExt() string {
	if c.goos() == "windows" {
		return "zip"
	}
	return "tar.xz"
}

// IsWindows 表示宿主是否为 Windows。
func (c *Checker) IsWindows() bool {
	return c.goos() == "windows"
}

// ArchFor 返回安装指定版本实际使用的架构。Apple 芯片上 16 以前的版本没有 arm64 构建，使用 x64。
func (c *Checker) ArchFor(version models.Version, requested models.Arch) models.Arch {
	if c.goos() == "darwin" && requested == models.ArchArm64 && version.Major < 16 {
		return models.ArchX64
	}
	return requested
}

// Validate 校验当前平台与 nvc 根目录权限。
func (c *Checker) Validate() error {
	if _, err := c.Platform(); err != nil {
		return err
	}
	if c.cfg == nil || c.cfg.BaseDir == "" {
		return nvcerr.New(nvcerr.ConfigInvalid, "platform: base directory is not configured")
	}
	if err := os.MkdirAll(c.cfg.BaseDir, 0o755); err != nil {
		return nvcerr.Wrapf(err, nvcerr.FilesystemError, "platform: cannot access base directory %s", c.cfg.BaseDir)
	}
	return nil
}
