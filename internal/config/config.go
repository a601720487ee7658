// Package config 在进程启动时构造唯一的 models.Config。
// 来源优先级从低到高：内置默认值、$XDG_CONFIG_HOME/nvc/config.toml、NVC_* 环境变量、命令行显式传入的参数。
package config

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/internal/platform"
	"github.com/liangyou/nvc/internal/region"
	"github.com/liangyou/nvc/pkg/models"
)

const (
	appName    = "nvc"
	envPrefix  = "NVC_"
	legacyDir  = ".nvc"
	configFile = "config.toml"
)

// 配置键，同时也是 TOML 文件中的键名。
const (
	KeyNodeDistMirror      = "node_dist_mirror"
	KeyDir                 = "dir"
	KeyMultishellPath      = "multishell_path"
	KeyLogLevel            = "log_level"
	KeyArch                = "arch"
	KeyVersionFileStrategy = "version_file_strategy"
	KeyCorepackEnabled     = "corepack_enabled"
	KeyResolveEngines      = "resolve_engines"
	KeyAutoMirror          = "auto_mirror"
	KeyRemoteCacheTTL      = "remote_cache_ttl"
)

// envAliases 处理环境变量名与配置键不一致的情况。
var envAliases = map[string]string{
	"loglevel": KeyLogLevel,
}

var knownKeys = map[string]bool{
	KeyNodeDistMirror:      true,
	KeyDir:                 true,
	KeyMultishellPath:      true,
	KeyLogLevel:            true,
	KeyArch:                true,
	KeyVersionFileStrategy: true,
	KeyCorepackEnabled:     true,
	KeyResolveEngines:      true,
	KeyAutoMirror:          true,
	KeyRemoteCacheTTL:      true,
}

type rawConfig struct {
	NodeDistMirror      string        `koanf:"node_dist_mirror"`
	Dir                 string        `koanf:"dir"`
	MultishellPath      string        `koanf:"multishell_path"`
	LogLevel            string        `koanf:"log_level"`
	Arch                string        `koanf:"arch"`
	VersionFileStrategy string        `koanf:"version_file_strategy"`
	CorepackEnabled     bool          `koanf:"corepack_enabled"`
	ResolveEngines      bool          `koanf:"resolve_engines"`
	AutoMirror          bool          `koanf:"auto_mirror"`
	RemoteCacheTTL      time.Duration `koanf:"remote_cache_ttl"`
}

// Options 允许覆盖 Load 使用的路径，主要用于测试。
type Options struct {
	// ConfigFile 为空时使用 $XDG_CONFIG_HOME/nvc/config.toml，文件不存在时忽略。
	ConfigFile string
	// HomeDir 用于检测旧版 ~/.nvc 目录。
	HomeDir string
	// DataHome 为空时使用 $XDG_DATA_HOME。
	DataHome string
	// Flags 是命令行中被显式设置的参数，键为配置键。
	Flags map[string]any
	// MirrorDetector 在 auto_mirror 开启且未显式配置发布源时用于按地区选择发布源，为 nil 时不探测。
	MirrorDetector region.CountryDetector
	// Logger 记录地区探测结果，零值不输出。
	Logger zerolog.Logger
}

// DefaultConfigFile 返回默认配置文件路径。
func DefaultConfigFile() string {
	return filepath.Join(xdg.ConfigHome, appName, configFile)
}

// MultishellsDir 返回存放各 shell 会话链接的目录。
func MultishellsDir() string {
	return filepath.Join(xdg.StateHome, appName, "multishells")
}

// Load 合并所有来源并校验，返回只读的配置记录。
func Load(opts Options) (*models.Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		KeyLogLevel:            string(models.LogInfo),
		KeyArch:                string(platform.DefaultArch()),
		KeyVersionFileStrategy: string(models.StrategyLocal),
		KeyCorepackEnabled:     false,
		KeyResolveEngines:      false,
		KeyAutoMirror:          false,
		KeyRemoteCacheTTL:      "5m",
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, nvcerr.Wrap(err, nvcerr.ConfigInvalid, "config: load defaults")
	}

	path := opts.ConfigFile
	if path == "" {
		path = DefaultConfigFile()
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, nvcerr.Wrapf(err, nvcerr.ConfigInvalid, "config: load %s", path)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, nvcerr.Wrapf(err, nvcerr.ConfigInvalid, "config: stat %s", path)
	}

	err := k.Load(env.ProviderWithValue(envPrefix, ".", func(name, value string) (string, any) {
		key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
		if alias, ok := envAliases[key]; ok {
			key = alias
		}
		if !knownKeys[key] || strings.TrimSpace(value) == "" {
			return "", nil
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, nvcerr.Wrap(err, nvcerr.ConfigInvalid, "config: load environment")
	}

	if len(opts.Flags) > 0 {
		if err := k.Load(confmap.Provider(opts.Flags, "."), nil); err != nil {
			return nil, nvcerr.Wrap(err, nvcerr.ConfigInvalid, "config: load flags")
		}
	}

	var raw rawConfig
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &raw,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}
	if err := k.UnmarshalWithConf("", &raw, unmarshalConf); err != nil {
		return nil, nvcerr.Wrap(err, nvcerr.ConfigInvalid, "config: decode")
	}

	cfg, err := build(raw, k.Exists(KeyNodeDistMirror), opts)
	if err != nil {
		return nil, err
	}
	region.ApplyAutoMirror(context.Background(), cfg, opts.MirrorDetector, opts.Logger)
	return cfg, nil
}

func build(raw rawConfig, mirrorSet bool, opts Options) (*models.Config, error) {
	cfg := &models.Config{
		MultishellPath:  strings.TrimSpace(raw.MultishellPath),
		CorepackEnabled: raw.CorepackEnabled,
		ResolveEngines:  raw.ResolveEngines,
		AutoMirror:      raw.AutoMirror,
		RemoteCacheTTL:  raw.RemoteCacheTTL,
		NodeDistMirror:  models.DefaultMirror,
	}

	if mirrorSet && strings.TrimSpace(raw.NodeDistMirror) != "" {
		mirror, err := validateMirror(raw.NodeDistMirror)
		if err != nil {
			return nil, err
		}
		cfg.NodeDistMirror = mirror
		cfg.MirrorExplicit = true
	}

	level, err := models.ParseLogLevel(raw.LogLevel)
	if err != nil {
		return nil, nvcerr.Wrap(err, nvcerr.ConfigInvalid, "config: "+KeyLogLevel)
	}
	cfg.LogLevel = level

	arch, err := models.ParseArch(raw.Arch)
	if err != nil {
		return nil, nvcerr.Wrap(err, nvcerr.ConfigInvalid, "config: "+KeyArch)
	}
	cfg.Arch = arch

	strategy, err := models.ParseVersionFileStrategy(raw.VersionFileStrategy)
	if err != nil {
		return nil, nvcerr.Wrap(err, nvcerr.ConfigInvalid, "config: "+KeyVersionFileStrategy)
	}
	cfg.VersionFileStrategy = strategy

	if cfg.RemoteCacheTTL < 0 {
		return nil, nvcerr.Newf(nvcerr.ConfigInvalid, "config: %s must not be negative", KeyRemoteCacheTTL)
	}

	baseDir, err := resolveBaseDir(raw.Dir, opts)
	if err != nil {
		return nil, err
	}
	cfg.BaseDir = baseDir
	return cfg, nil
}

func validateMirror(raw string) (string, error) {
	mirror := strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(mirror)
	if err != nil {
		return "", nvcerr.Wrapf(err, nvcerr.ConfigInvalid, "config: %s", KeyNodeDistMirror)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", nvcerr.Newf(nvcerr.ConfigInvalid, "config: %s must be an http(s) URL, got %q", KeyNodeDistMirror, raw)
	}
	return mirror, nil
}

// resolveBaseDir 选择根目录：显式配置优先，其次是已存在的旧版 ~/.nvc，最后是 $XDG_DATA_HOME/nvc。
// 结果总是绝对路径，符号链接的目标按链接所在目录解析，相对路径会悬空。
func resolveBaseDir(dir string, opts Options) (string, error) {
	home := opts.HomeDir
	if home == "" {
		home = xdg.Home
	}

	if dir = strings.TrimSpace(dir); dir != "" {
		switch {
		case dir == "~":
			dir = home
		case strings.HasPrefix(dir, "~/"):
			dir = filepath.Join(home, dir[2:])
		}
		return absDir(dir)
	}

	legacy := filepath.Join(home, legacyDir)
	if info, err := os.Stat(legacy); err == nil && info.IsDir() {
		return absDir(legacy)
	}

	dataHome := opts.DataHome
	if dataHome == "" {
		dataHome = xdg.DataHome
	}
	return absDir(filepath.Join(dataHome, appName))
}

func absDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", nvcerr.Wrapf(err, nvcerr.ConfigInvalid, "config: resolve %s %q", KeyDir, dir)
	}
	return abs, nil
}
