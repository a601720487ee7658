package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMirror 是 Node.js 官方发布源。
const DefaultMirror = "https://nodejs.org/dist"

// Arch 是 Node.js 发布包使用的架构标识。
type Arch string

const (
	ArchX86     Arch = "x86"
	ArchX64     Arch = "x64"
	ArchArm64   Arch = "arm64"
	ArchArmv7l  Arch = "armv7l"
	ArchPpc64le Arch = "ppc64le"
	ArchPpc64   Arch = "ppc64"
	ArchS390x   Arch = "s390x"
)

var knownArches = []Arch{ArchX86, ArchX64, ArchArm64, ArchArmv7l, ArchPpc64le, ArchPpc64, ArchS390x}

// ParseArch 校验架构名称。
func ParseArch(s string) (Arch, error) {
	for _, a := range knownArches {
		if strings.EqualFold(s, string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unsupported arch %q", s)
}

// VersionFileStrategy 控制版本文件的查找范围。
type VersionFileStrategy string

const (
	// StrategyLocal 只查找当前目录。
	StrategyLocal VersionFileStrategy = "local"
	// StrategyRecursive 从当前目录逐级向上查找直到根目录。
	StrategyRecursive VersionFileStrategy = "recursive"
)

// ParseVersionFileStrategy 校验版本文件查找策略。
func ParseVersionFileStrategy(s string) (VersionFileStrategy, error) {
	switch VersionFileStrategy(strings.ToLower(s)) {
	case StrategyLocal:
		return StrategyLocal, nil
	case StrategyRecursive:
		return StrategyRecursive, nil
	default:
		return "", fmt.Errorf("unsupported version file strategy %q", s)
	}
}

// LogLevel 是 nvc 的日志级别。
type LogLevel string

const (
	LogQuiet LogLevel = "quiet"
	LogError LogLevel = "error"
	LogInfo  LogLevel = "info"
	LogDebug LogLevel = "debug"
)

// ParseLogLevel 校验日志级别。
func ParseLogLevel(s string) (LogLevel, error) {
	switch LogLevel(strings.ToLower(s)) {
	case LogQuiet:
		return LogQuiet, nil
	case LogError:
		return LogError, nil
	case LogInfo, "":
		return LogInfo, nil
	case LogDebug:
		return LogDebug, nil
	default:
		return "", fmt.Errorf("unsupported log level %q", s)
	}
}

// Config 是进程启动时构造一次、之后只读传递给各组件的配置。
type Config struct {
	NodeDistMirror      string              // 发布源地址，不带末尾斜杠
	MirrorExplicit      bool                // 发布源是否由用户显式配置
	BaseDir             string              // nvc 根目录
	MultishellPath      string              // 当前 shell 会话的符号链接路径
	LogLevel            LogLevel            // 日志级别
	Arch                Arch                // 安装使用的架构
	VersionFileStrategy VersionFileStrategy // 版本文件查找策略
	CorepackEnabled     bool                // 安装后执行 corepack enable
	ResolveEngines      bool                // 没有版本文件时读取 package.json 的 engines.node
	AutoMirror          bool                // 未显式配置发布源时按地区自动选择
	RemoteCacheTTL      time.Duration       // Catalog 的进程内缓存时间
}

// InstallationsDir 返回已安装版本所在目录。
func (c *Config) InstallationsDir() string {
	return filepath.Join(c.BaseDir, "node-versions")
}

// AliasesDir 返回别名符号链接所在目录。
func (c *Config) AliasesDir() string {
	return filepath.Join(c.BaseDir, "aliases")
}

// StagingDir 返回下载与解压的临时目录，与安装目录位于同一文件系统。
func (c *Config) StagingDir() string {
	return filepath.Join(c.BaseDir, "staging")
}
