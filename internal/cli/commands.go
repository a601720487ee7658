package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liangyou/nvc/internal/env"
	"github.com/liangyou/nvc/internal/nvcerr"
	"github.com/liangyou/nvc/internal/version"
	"github.com/liangyou/nvc/pkg/models"
)

func (a *App) lsRemoteCommand() *cobra.Command {
	var (
		lts    string
		filter string
		latest bool
	)
	cmd := &cobra.Command{
		Use:     "ls-remote",
		Aliases: []string{"list-remote"},
		Short:   "List all remote Node.js versions",
		Example: `  nvc ls-remote --lts
  nvc ls-remote --lts=hydrogen --latest
  nvc ls-remote --filter 18`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := version.RemoteFilter{Prefix: filter, Latest: latest}
			switch lts {
			case "":
			case "*":
				f.LTS = true
			default:
				f.Codename = lts
			}
			versions, err := a.services.Lister.RemoteVersions(cmd.Context(), f)
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Fprintln(a.errOut, "No versions were found!")
				return nil
			}
			for _, v := range versions {
				fmt.Fprintln(a.out, version.FormatRemoteVersion(v))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lts, "lts", "", "show only LTS versions; use --lts=<codename> (with =) for one LTS line")
	cmd.Flags().Lookup("lts").NoOptDefVal = "*"
	cmd.Flags().StringVar(&filter, "filter", "", "show only versions starting with this prefix, e.g. 18 or 18.1")
	cmd.Flags().BoolVar(&latest, "latest", false, "show only the latest matching version")
	return cmd
}

func (a *App) lsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List installed Node.js versions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.services.Lister.LocalVersions()
			if err != nil {
				return err
			}
			st := newStyles(a.out)
			hasCurrent := false
			for _, e := range entries {
				line := version.FormatLocalVersion(e)
				if e.Current {
					hasCurrent = true
					line = st.current(line)
				}
				fmt.Fprintln(a.out, line)
			}
			system := "  system"
			if !hasCurrent {
				system = "* system"
			}
			fmt.Fprintln(a.out, st.dim(system))
			return nil
		},
	}
}

func (a *App) installCommand() *cobra.Command {
	var (
		lts      bool
		latest   bool
		force    bool
		progress string
	)
	cmd := &cobra.Command{
		Use:   "install [version]",
		Short: "Install a Node.js version",
		Long: `Install a Node.js version.

The version may be exact (18.12.1), partial (18 or 18.12), lts/*, lts/<codename> or latest.
Without an argument the version is read from .node-version or .nvmrc.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var spec models.Specifier
			switch {
			case len(args) == 1 && (lts || latest):
				return nvcerr.New(nvcerr.InvalidInput, "give either a version or --lts/--latest, not both")
			case len(args) == 1:
				s, err := models.ParseSpecifier(args[0])
				if err != nil {
					return err
				}
				spec = s
			case lts:
				spec = models.LatestLts{}
			case latest:
				spec = models.Latest{}
			}
			if _, ok := spec.(models.Bypass); ok {
				return nvcerr.New(nvcerr.InvalidInput, "system is not an installable version")
			}
			mode, err := parseProgressMode(progress)
			if err != nil {
				return err
			}

			cwd, err := a.getwd()
			if err != nil {
				return err
			}
			res, err := a.services.Resolver.Resolve(cmd.Context(), spec, cwd, version.ScopeRemote)
			if err != nil {
				return err
			}
			if res.Bypass {
				return nvcerr.New(nvcerr.InvalidInput, "system is not an installable version")
			}
			st := newStyles(a.out)
			if res.Installed && !force {
				fmt.Fprintf(a.errOut, "Version %s is already installed\n", res.Version)
				return nil
			}

			bar := newProgress(a.errOut, mode, res.Version)
			inst, err := a.services.Installer.Ensure(cmd.Context(), res.Version, version.EnsureOptions{Force: force, Progress: bar.Update})
			bar.Stop()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, st.success(fmt.Sprintf("Installed Node %s (%s)", inst.Version, inst.Arch)))

			if _, err := a.services.Aliases.Get(models.DefaultAlias); nvcerr.IsKind(err, nvcerr.AliasNotFound) {
				if err := a.services.Aliases.Set(models.DefaultAlias, inst.Version); err != nil {
					return err
				}
				fmt.Fprintf(a.errOut, "Set %s as the default version\n", inst.Version)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&lts, "lts", false, "install the latest LTS version")
	cmd.Flags().BoolVar(&latest, "latest", false, "install the latest version")
	cmd.Flags().BoolVar(&force, "force", false, "reinstall even if the version is already installed")
	cmd.Flags().StringVar(&progress, "progress", string(progressAuto), "show a download progress bar: auto, always or never")
	return cmd
}

func (a *App) useCommand() *cobra.Command {
	var (
		installIfMissing bool
		save             bool
		silent           bool
	)
	cmd := &cobra.Command{
		Use:   "use [version]",
		Short: "Change the Node.js version of the current shell",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := optionalSpecifier(args)
			if err != nil {
				return err
			}
			cwd, err := a.getwd()
			if err != nil {
				return err
			}

			bar := newProgress(a.errOut, progressAuto, models.Version{})
			res, err := a.services.Switcher.Use(cmd.Context(), spec, cwd, version.UseOptions{
				InstallIfMissing: installIfMissing,
				Save:             save,
				Progress:         bar.Update,
			})
			bar.Stop()
			if err != nil {
				return err
			}
			if silent && !res.Changed {
				return nil
			}
			if res.Bypass {
				fmt.Fprintln(a.out, "Bypassing nvc: using the system node")
				return nil
			}
			fmt.Fprintln(a.out, newStyles(a.out).success("Using Node "+res.Version.String()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&installIfMissing, "install-if-missing", false, "install the version if it is not installed yet")
	cmd.Flags().BoolVar(&save, "save", false, "also set the version as the default")
	cmd.Flags().BoolVar(&silent, "silent-if-unchanged", false, "print nothing when the version does not change")
	return cmd
}

func (a *App) envCommand() *cobra.Command {
	var (
		shellName    string
		useOnCd      bool
		writeProfile bool
	)
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Print the environment for a new shell session",
		Long: `Print the environment for a new shell session.

Add the following to your shell profile:

  eval "$(nvc env --use-on-cd)"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shell, err := a.shell(shellName)
			if err != nil {
				return err
			}
			if writeProfile {
				path, err := a.services.Env.UpdateShellConfig(shell)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.errOut, "Updated %s, restart your shell to apply\n", path)
				return nil
			}

			session, err := a.services.Env.NewSession()
			if err != nil {
				return err
			}
			snippet, err := a.services.Env.Snippet(shell, session, env.SnippetOptions{UseOnCd: useOnCd})
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, snippet)
			return nil
		},
	}
	cmd.Flags().StringVar(&shellName, "shell", "", "bash, zsh, fish or powershell (detected from $SHELL by default)")
	cmd.Flags().BoolVar(&useOnCd, "use-on-cd", false, "switch versions automatically when entering a directory with a version file")
	cmd.Flags().BoolVar(&writeProfile, "write-profile", false, "add the nvc initialization block to the shell profile instead of printing")
	return cmd
}

func (a *App) shell(name string) (env.Shell, error) {
	if name != "" {
		return env.ParseShell(name)
	}
	return a.services.Env.DetectShell()
}

func (a *App) aliasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "alias <version> <name>",
		Short: "Alias a version to a common name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.resolveInstalled(cmd, args[0])
			if err != nil {
				return err
			}
			if err := a.services.Aliases.Set(args[1], v); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s -> %s\n", args[1], v)
			return nil
		},
	}
}

func (a *App) unaliasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unalias <name>",
		Short: "Remove an alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.services.Aliases.Remove(args[0])
		},
	}
}

func (a *App) defaultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "default [version]",
		Short: "Set or print the default version",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				v, err := a.services.Aliases.Get(models.DefaultAlias)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, v)
				return nil
			}
			v, err := a.resolveInstalled(cmd, args[0])
			if err != nil {
				return err
			}
			if err := a.services.Aliases.Set(models.DefaultAlias, v); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s -> %s\n", models.DefaultAlias, v)
			return nil
		},
	}
}

func (a *App) currentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Print the Node.js version of the current shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok, err := a.services.Lister.CurrentVersion()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(a.out, "none")
				return nil
			}
			fmt.Fprintln(a.out, v)
			return nil
		},
	}
}

func (a *App) execCommand() *cobra.Command {
	var using string
	cmd := &cobra.Command{
		Use:   "exec [--using <version>] -- <command> [args...]",
		Short: "Run a command within the context of a Node.js version",
		Example: `  nvc exec --using 18 -- node --version
  nvc exec -- npm test`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var spec models.Specifier
			if using != "" {
				s, err := models.ParseSpecifier(using)
				if err != nil {
					return err
				}
				spec = s
			}
			cwd, err := a.getwd()
			if err != nil {
				return err
			}
			code, err := a.services.Executor.Run(cmd.Context(), version.ExecRequest{
				Specifier: spec,
				Cwd:       cwd,
				Command:   args[0],
				Args:      args[1:],
				Stdin:     a.in,
				Stdout:    a.out,
				Stderr:    a.errOut,
			})
			if err != nil {
				return err
			}
			a.exitCode = code
			return nil
		},
	}
	cmd.Flags().StringVar(&using, "using", "", "version to run with; read from version files when empty")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func (a *App) uninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <version|alias>",
		Short: "Uninstall a Node.js version",
		Long: `Uninstall a Node.js version.

When an alias is given, the version it points to is removed together with every alias pointing to it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := models.ParseSpecifier(args[0])
			if err != nil {
				return err
			}
			v, err := a.services.Uninstaller.Target(spec)
			if err != nil {
				return err
			}
			res, err := a.services.Uninstaller.Uninstall(v)
			if err != nil && res.Version == (models.Version{}) {
				return err
			}
			fmt.Fprintln(a.out, newStyles(a.out).success("Uninstalled Node "+v.String()))
			if len(res.RemovedAliases) > 0 {
				fmt.Fprintf(a.out, "Removed aliases: %s\n", strings.Join(res.RemovedAliases, ", "))
			}
			return err
		},
	}
}

func (a *App) resolveInstalled(cmd *cobra.Command, raw string) (models.Version, error) {
	spec, err := models.ParseSpecifier(raw)
	if err != nil {
		return models.Version{}, err
	}
	cwd, err := a.getwd()
	if err != nil {
		return models.Version{}, err
	}
	res, err := a.services.Resolver.Resolve(cmd.Context(), spec, cwd, version.ScopeInstalled)
	if err != nil {
		return models.Version{}, err
	}
	if res.Bypass {
		return models.Version{}, nvcerr.New(nvcerr.InvalidInput, "system cannot be aliased")
	}
	if !res.Installed {
		return models.Version{}, nvcerr.Newf(nvcerr.VersionNotInstalled, "version %s is not installed", res.Version)
	}
	return res.Version, nil
}

func optionalSpecifier(args []string) (models.Specifier, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return models.ParseSpecifier(args[0])
}

// FormatError 生成面向用户的错误信息，终端输出时带颜色。
func FormatError(w io.Writer, err error) string {
	msg := err.Error()
	var nerr *nvcerr.Error
	if errors.As(err, &nerr) && nerr.Kind == nvcerr.NoVersionConfigured {
		msg += "\nhint: run `nvc ls-remote --lts` to see available versions"
	}
	return newStyles(w).errorLine(msg)
}
