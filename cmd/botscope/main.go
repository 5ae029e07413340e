// Botscope provisions the tweets/users bot-detection dataset, validates its
// fields and manages the cache of preprocessed step artifacts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/botscope/botscope/pkg/cache"
	"github.com/botscope/botscope/pkg/config"
	"github.com/botscope/botscope/pkg/dataset"
	bserrors "github.com/botscope/botscope/pkg/errors"
	"github.com/botscope/botscope/pkg/fetch"
	"github.com/botscope/botscope/pkg/logger"
	"github.com/botscope/botscope/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	root       string
	logLevel   string
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, stopping...")
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		reportError(os.Stderr, err, logger.Get().GetLevel() <= zerolog.DebugLevel)
		os.Exit(1)
	}
}

// reportError prints err, followed by its stack when trace is set and err
// carries one.
func reportError(w io.Writer, err error, trace bool) {
	fmt.Fprintln(w, err)
	if !trace {
		return
	}
	var coded *bserrors.Error
	if errors.As(err, &coded) && len(coded.StackTrace) > 0 {
		fmt.Fprint(w, coded.FormatStack())
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "botscope",
		Short: "Botscope - provision and validate the bot-detection dataset",
		Long: `Botscope downloads (or mounts) the tweets/users dataset, checks every field
against its expected type and keeps preprocessing results as Parquet artifacts.

Configuration is read from ~/.botscope/config.yaml, ./botscope.yaml, the file
given with --config and BOTSCOPE_* environment variables, in that order.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.configFile, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&g.root, "root", "", "Dataset root directory")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, off)")

	rootCmd.AddCommand(newFetchCmd(g), newValidateCmd(g), newCacheCmd(g), newConfigCmd(g))
	return rootCmd
}

// env is everything a command needs after configuration is settled.
type env struct {
	mgr *config.Manager
	cfg *config.Config
	log zerolog.Logger
}

// setup loads configuration, applies flag overrides and initialises logging.
func setup(g *globalFlags) (*env, error) {
	m := config.NewManager()
	if err := m.Load(g.configFile); err != nil {
		return nil, err
	}
	cfg := m.Get()

	if g.root != "" {
		cfg.Dataset.Root = g.root
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	log := logger.Init(logger.Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "botscope",
	})
	log.Debug().Strs("config_files", m.GetPaths()).Msg("configuration loaded")
	return &env{mgr: m, cfg: cfg, log: log}, nil
}

// probe returns the environment probe selected by configuration.
func (e *env) probe() (dataset.Probe, error) {
	which, fixed, err := dataset.ParseEnvironment(e.cfg.Dataset.Environment)
	if err != nil {
		return nil, err
	}
	if fixed {
		return dataset.Fixed(which), nil
	}
	return dataset.DefaultNotebookProbe(), nil
}

func (e *env) resolver(probe dataset.Probe) *dataset.Resolver {
	c := e.cfg
	registry := fetch.NewDefaultRegistry(fetch.Options{
		S3: fetch.S3Config{
			Region:       c.S3.Region,
			Endpoint:     c.S3.Endpoint,
			UsePathStyle: c.S3.UsePathStyle,
		},
		GCSKeyFile: c.GCS.KeyFile,
		Azure:      fetch.AzureConfig{AccountKey: c.Azure.AccountKey},
		Progress:   tui.DownloadProgress(os.Stderr),
	})

	store := dataset.NewStore(c.Dataset.Root, dataset.Manifest(c.Dataset.Files),
		dataset.WithStoreLogger(logger.Named("store")))

	return dataset.NewResolver(store, registry,
		dataset.WithProbe(probe),
		dataset.WithArchive(c.Dataset.ArchiveURL),
		dataset.WithSharedDrive(c.Dataset.MountPoint, c.Dataset.SharedSubpath),
		dataset.WithResolverLogger(logger.Named("resolver")),
	)
}

func (e *env) cache() *cache.Cache {
	return cache.New(e.cfg.CacheRoot(),
		cache.WithCompression(e.cfg.Cache.Compression),
		cache.WithLogger(logger.Named("cache")),
	)
}
