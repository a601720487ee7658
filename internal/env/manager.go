// Package env 为 shell 生成会话环境：创建会话链接、输出环境变量脚本、写入 shell 配置文件。
package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/pkg/models"
)

const (
	blockStart = "# >>> nvc initialize >>>"
	blockEnd   = "# <<< nvc initialize <<<"
)

// Shell 是支持的 shell 类型。
type Shell string

const (
	Bash       Shell = "bash"
	Zsh        Shell = "zsh"
	Fish       Shell = "fish"
	PowerShell Shell = "powershell"
)

// ParseShell 校验 shell 名称，接受 pwsh 作为 powershell 的别名。
func ParseShell(name string) (Shell, error) {
	switch strings.ToLower(strings.TrimSuffix(filepath.Base(name), ".exe")) {
	case "bash":
		return Bash, nil
	case "zsh":
		return Zsh, nil
	case "fish":
		return Fish, nil
	case "powershell", "pwsh":
		return PowerShell, nil
	default:
		return "", nvcerr.Newf(nvcerr.InvalidInput, "env: unsupported shell %q", name)
	}
}

// AliasReader 读取 default 别名以初始化新会话。
type AliasReader interface {
	Get(name string) (models.Version, error)
}

// SessionPointer 将会话链接指向某个版本。
type SessionPointer interface {
	Point(sessionPath string, version models.Version) error
}

// Session 是 env 创建的会话。
type Session struct {
	Path    string
	BaseDir string
	Seeded  bool
	Version models.Version
}

// SnippetOptions 控制输出的脚本内容。
type SnippetOptions struct {
	UseOnCd bool
}

// Manager 管理会话目录与 shell 集成。
type Manager struct {
	cfg         *models.Config
	sessionsDir string
	aliases     AliasReader
	link        SessionPointer
	logger      zerolog.Logger

	homeFn func() (string, error)
	envFn  func(string) string
	pidFn  func() int
	now    func() time.Time
}

// NewManager 构造环境配置服务。sessionsDir 下的每个条目对应一个 shell 会话。
func NewManager(cfg *models.Config, sessionsDir string, aliases AliasReader, link SessionPointer, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		sessionsDir: sessionsDir,
		aliases:     aliases,
		link:        link,
		logger:      logger,
		homeFn:      os.UserHomeDir,
		envFn:       os.Getenv,
		pidFn:       os.Getppid,
		now:         time.Now,
	}
}

// DetectShell 根据 SHELL 环境变量推断当前 shell，未设置时 Windows 上为 powershell，其他为 bash。
func (m *Manager) DetectShell() (Shell, error) {
	shellPath := m.envFn("SHELL")
	if shellPath == "" {
		if m.envFn("PSModulePath") != "" {
			return PowerShell, nil
		}
		return Bash, nil
	}
	return ParseShell(shellPath)
}

// NewSession 创建一个新的会话链接路径，存在 default 别名时让会话指向它。
func (m *Manager) NewSession() (Session, error) {
	if err := os.MkdirAll(m.sessionsDir, 0o755); err != nil {
		return Session{}, nvcerr.Wrap(err, nvcerr.FilesystemError, "env: create sessions dir")
	}
	path := filepath.Join(m.sessionsDir, fmt.Sprintf("%d_%d", m.pidFn(), m.now().UnixNano()))
	session := Session{Path: path, BaseDir: m.cfg.BaseDir}

	version, err := m.aliases.Get(models.DefaultAlias)
	switch {
	case err == nil:
		if err := m.link.Point(path, version); err != nil {
			return Session{}, err
		}
		session.Seeded = true
		session.Version = version
	case nvcerr.IsKind(err, nvcerr.AliasNotFound):
		m.logger.Debug().Msg("No default alias, session starts empty")
	default:
		return Session{}, err
	}
	return session, nil
}

// Snippet 返回在 shell 中 eval 的脚本。
func (m *Manager) Snippet(shell Shell, session Session, opts SnippetOptions) (string, error) {
	var lines []string
	switch shell {
	case Bash, Zsh:
		lines = []string{
			fmt.Sprintf("export NVC_MULTISHELL_PATH=%s", shellQuote(session.Path)),
			fmt.Sprintf("export NVC_DIR=%s", shellQuote(session.BaseDir)),
			fmt.Sprintf("export PATH=%s:\"$PATH\"", shellQuote(session.Path)),
			"hash -r 2>/dev/null || true",
		}
		if opts.UseOnCd && shell == Bash {
			lines = append(lines,
				"__nvc_use_if_file_found() {",
				"  if [[ -f .node-version || -f .nvmrc ]]; then nvc use --silent-if-unchanged; fi",
				"}",
				"__nvcd() { \\cd \"$@\" || return $?; __nvc_use_if_file_found; }",
				"alias cd=__nvcd",
				"__nvc_use_if_file_found",
			)
		}
		if opts.UseOnCd && shell == Zsh {
			lines = append(lines,
				"autoload -U add-zsh-hook",
				"_nvc_autoload_hook() {",
				"  if [[ -f .node-version || -f .nvmrc ]]; then nvc use --silent-if-unchanged; fi",
				"}",
				"add-zsh-hook chpwd _nvc_autoload_hook && _nvc_autoload_hook",
			)
		}
	case Fish:
		lines = []string{
			fmt.Sprintf("set -gx NVC_MULTISHELL_PATH %s", shellQuote(session.Path)),
			fmt.Sprintf("set -gx NVC_DIR %s", shellQuote(session.BaseDir)),
			fmt.Sprintf("set -gx PATH %s $PATH", shellQuote(session.Path)),
		}
		if opts.UseOnCd {
			lines = append(lines,
				"function _nvc_autoload_hook --on-variable PWD",
				"  status --is-command-substitution; and return",
				"  if test -f .node-version -o -f .nvmrc; nvc use --silent-if-unchanged; end",
				"end",
				"_nvc_autoload_hook",
			)
		}
	case PowerShell:
		lines = []string{
			fmt.Sprintf("$env:NVC_MULTISHELL_PATH = %s", psQuote(session.Path)),
			fmt.Sprintf("$env:NVC_DIR = %s", psQuote(session.BaseDir)),
			fmt.Sprintf("$env:PATH = %s + [IO.Path]::PathSeparator + $env:PATH", psQuote(session.Path)),
		}
		if opts.UseOnCd {
			lines = append(lines,
				"function global:Set-NvcOnLoad { if ((Test-Path .nvmrc) -or (Test-Path .node-version)) { nvc use --silent-if-unchanged } }",
				"function global:Set-LocationWithNvc { param($path); Set-Location $path; Set-NvcOnLoad }",
				"Set-Alias -Scope global cd_with_nvc Set-LocationWithNvc",
				"Set-Alias -Option AllScope -Scope global cd Set-LocationWithNvc",
				"Set-NvcOnLoad",
			)
		}
	default:
		return "", nvcerr.Newf(nvcerr.InvalidInput, "env: unsupported shell %q", shell)
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// UpdateShellConfig 在 shell 配置文件中写入（或替换）初始化块，返回被修改的文件。
func (m *Manager) UpdateShellConfig(shell Shell) (string, error) {
	configPath, err := m.configFileForShell(shell)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", nvcerr.Wrap(err, nvcerr.FilesystemError, "env: ensure config dir")
	}

	var existing []byte
	if data, err := os.ReadFile(configPath); err == nil {
		existing = data
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", nvcerr.Wrap(err, nvcerr.FilesystemError, "env: read config")
	}

	merged := mergeConfig(string(existing), buildConfigBlock(shell))
	if err := os.WriteFile(configPath, []byte(merged), 0o644); err != nil {
		return "", nvcerr.Wrap(err, nvcerr.FilesystemError, "env: write config")
	}
	return configPath, nil
}

func (m *Manager) configFileForShell(shell Shell) (string, error) {
	home, err := m.homeFn()
	if err != nil {
		return "", nvcerr.Wrap(err, nvcerr.FilesystemError, "env: home dir")
	}

	switch shell {
	case Bash:
		path := filepath.Join(home, ".bashrc")
		if fileExists(path) {
			return path, nil
		}
		return filepath.Join(home, ".bash_profile"), nil
	case Zsh:
		return filepath.Join(home, ".zshrc"), nil
	case Fish:
		return filepath.Join(home, ".config", "fish", "conf.d", "nvc.fish"), nil
	default:
		return "", nvcerr.Newf(nvcerr.InvalidInput, "env: cannot update profile for shell %q, add `nvc env --shell %s | Out-String | Invoke-Expression` manually", shell, shell)
	}
}

func buildConfigBlock(shell Shell) string {
	line := `eval "$(nvc env --use-on-cd)"`
	if shell == Fish {
		line = "nvc env --use-on-cd --shell fish | source"
	}
	return strings.Join([]string{blockStart, line, blockEnd}, "\n")
}

func mergeConfig(existing, block string) string {
	cleaned := removeExistingBlock(existing)
	cleaned = strings.TrimRight(cleaned, "\n")
	if strings.TrimSpace(cleaned) == "" {
		return block + "\n"
	}
	return cleaned + "\n\n" + block + "\n"
}

func removeExistingBlock(content string) string {
	var builder strings.Builder
	skipping := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == blockStart {
			skipping = true
			continue
		}
		if trimmed == blockEnd {
			skipping = false
			continue
		}
		if skipping {
			continue
		}
		if line == "" && builder.Len() == 0 {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte('\n')
		}
		builder.WriteString(line)
	}
	return strings.Trim(builder.String(), "\n")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
