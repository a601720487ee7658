package version

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/internal/storage"
	"github.com/liangyou/nvc/pkg/models"
)

// ExecRequest 描述要在某个版本下运行的命令。
type ExecRequest struct {
	Specifier models.Specifier
	Cwd       string
	Command   string
	Args      []string
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
}

// Executor 在解析出的版本下运行子进程，不修改会话链接与别名。
type Executor struct {
	resolver *Resolver
	storage  storage.LocalStorage
	environ  func() []string
	logger   zerolog.Logger
}

// NewExecutor 创建 Executor。
func NewExecutor(resolver *Resolver, store storage.LocalStorage, logger zerolog.Logger) *Executor {
	return &Executor{resolver: resolver, storage: store, environ: os.Environ, logger: logger}
}

// Run 解析版本并运行命令，返回子进程退出码。子进程因信号终止时按 shell 约定返回 128+信号值。
func (e *Executor) Run(ctx context.Context, req ExecRequest) (int, error) {
	if req.Command == "" {
		return 0, nvcerr.New(nvcerr.InvalidInput, "exec: command is required")
	}

	res, err := e.resolver.Resolve(ctx, req.Specifier, req.Cwd, ScopeInstalled)
	if err != nil {
		return 0, err
	}

	env := e.environ()
	if !res.Bypass {
		if !res.Installed {
			return 0, nvcerr.Newf(nvcerr.VersionNotInstalled, "exec: %s is not installed, run `nvc install %s` first", res.Version, res.Version)
		}
		env = prependPath(env, e.storage.BinDir(res.Version))
	}

	path, err := lookPath(req.Command, pathValue(env))
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(path, req.Args...)
	cmd.Env = env
	cmd.Dir = req.Cwd
	cmd.Stdin = req.Stdin
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr

	e.logger.Debug().Str("command", path).Strs("args", req.Args).Str("version", res.Version.String()).Msg("Executing")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, forwardedSignals...)
	defer signal.Stop(signals)

	if err := cmd.Start(); err != nil {
		return 0, nvcerr.Wrapf(err, nvcerr.InvalidInput, "exec: start %s", req.Command)
	}

	// 发给 nvc 的信号转发给子进程，由子进程决定是否退出。
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-signals:
				e.logger.Debug().Str("signal", sig.String()).Msg("Forwarding signal")
				_ = cmd.Process.Signal(sig)
			case <-done:
				return
			}
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	if waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitCode(exitErr.ProcessState), nil
	}
	return 0, nvcerr.Wrapf(waitErr, nvcerr.Unknown, "exec: wait for %s", req.Command)
}

func pathValue(env []string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if key, value, ok := strings.Cut(env[i], "="); ok && strings.EqualFold(key, "PATH") {
			return value
		}
	}
	return ""
}

// prependPath 返回将 dir 置于 PATH 最前面的新环境。
func prependPath(env []string, dir string) []string {
	out := make([]string, 0, len(env)+1)
	current := pathValue(env)
	for _, kv := range env {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.EqualFold(key, "PATH") {
			continue
		}
		out = append(out, kv)
	}
	value := dir
	if current != "" {
		value += string(os.PathListSeparator) + current
	}
	return append(out, "PATH="+value)
}

// lookPath 在给定的 PATH 中查找可执行文件，exec.LookPath 只会查看当前进程的 PATH。
func lookPath(command, pathEnv string) (string, error) {
	if strings.ContainsRune(command, '/') || strings.ContainsRune(command, filepath.Separator) {
		return command, nil
	}
	exts := []string{""}
	if runtime.GOOS == "windows" {
		exts = []string{".exe", ".cmd", ".bat", ""}
	}
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			continue
		}
		for _, ext := range exts {
			candidate := filepath.Join(dir, command+ext)
			if isExecutable(candidate) {
				return candidate, nil
			}
		}
	}
	return "", nvcerr.Newf(nvcerr.InvalidInput, "exec: command %q not found", command)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return runtime.GOOS == "windows" || info.Mode().Perm()&0o111 != 0
}
