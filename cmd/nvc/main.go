package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/liangyou/nvc/internal/alias"
	"github.com/liangyou/nvc/internal/cli"
	"github.com/liangyou/nvc/internal/config"
	"github.com/liangyou/nvc/internal/env"
	"github.com/liangyou/nvc/internal/logging"
	"github.com/liangyou/nvc/internal/platform"
	"github.com/liangyou/nvc/internal/region"
	"github.com/liangyou/nvc/internal/remote"
	"github.com/liangyou/nvc/internal/shelllink"
	"github.com/liangyou/nvc/internal/storage"
	"github.com/liangyou/nvc/internal/version"
	"github.com/liangyou/nvc/pkg/models"
)

const appVersion = "0.1.0"

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr, loadConfig, buildServices, appVersion)
	code, err := app.Run(context.Background(), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(os.Stderr, err))
		os.Exit(1)
	}
	os.Exit(code)
}

func loadConfig(flags map[string]any) (*models.Config, error) {
	return config.Load(config.Options{
		Flags:          flags,
		MirrorDetector: region.NewDetector(region.WithTimeout(2 * time.Second)),
	})
}

func buildServices(ctx context.Context, cfg *models.Config) (*cli.Services, error) {
	if err := platform.NewChecker(cfg).Validate(); err != nil {
		return nil, err
	}

	store := storage.NewFileStorage(cfg)
	aliases := alias.NewStore(cfg, store, logging.GetLogger("alias"))
	link := shelllink.New(store, logging.GetLogger("shelllink"))
	catalog := remote.NewClient(
		remote.WithMirror(cfg.NodeDistMirror),
		remote.WithCacheTTL(cfg.RemoteCacheTTL),
		remote.WithLogger(logging.GetLogger("remote")),
	)

	downloader := version.NewDownloader(version.WithDownloaderLogger(logging.GetLogger("downloader")))
	installer := version.NewInstaller(cfg, store, catalog, downloader,
		version.WithInstallerLogger(logging.GetLogger("installer")),
	)
	resolver := version.NewResolver(cfg, store, catalog, aliases,
		version.WithResolverLogger(logging.GetLogger("resolver")),
	)

	return &cli.Services{
		Config:      cfg,
		Resolver:    resolver,
		Installer:   installer,
		Switcher:    version.NewSwitcher(cfg, resolver, installer, link, aliases, logging.GetLogger("switcher")),
		Lister:      version.NewLister(cfg, catalog, store, aliases, link),
		Aliases:     aliases,
		Uninstaller: version.NewUninstaller(cfg, store, aliases, link, logging.GetLogger("uninstaller")),
		Executor:    version.NewExecutor(resolver, store, logging.GetLogger("executor")),
		Env:         env.NewManager(cfg, config.MultishellsDir(), aliases, link, logging.GetLogger("env")),
	}, nil
}
