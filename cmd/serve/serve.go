package serve

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/sync/errgroup"

	"github.com/sig-0/p2prates/cmd/env"
	"github.com/sig-0/p2prates/ingest"
	"github.com/sig-0/p2prates/publish"
	"github.com/sig-0/p2prates/registry"
	"github.com/sig-0/p2prates/server"
	"github.com/sig-0/p2prates/server/config"
	"github.com/sig-0/p2prates/storage"
)

// serveCfg wraps the serve configuration
type serveCfg struct {
	config *config.Config

	configPath string
}

// NewServeCmd creates the serve subcommand
func NewServeCmd() *ffcli.Command {
	cfg := &serveCfg{
		config: config.DefaultConfig(),
	}

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg.registerFlags(fs)

	cmd := &ffcli.Command{
		Name:       "serve",
		ShortUsage: "serve <subcommand> [flags]",
		LongHelp:   "Serves the p2prates backend",
		FlagSet:    fs,
		Exec: func(_ context.Context, _ []string) error {
			return flag.ErrHelp
		},
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}

	cmd.Subcommands = []*ffcli.Command{
		newServeSQLCmd(cfg),
		newServeMemoryCmd(cfg),
	}

	return cmd
}

func (c *serveCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.config.ListenAddress,
		"listen",
		config.DefaultListenAddress,
		"the IP:PORT URL for the server",
	)

	fs.StringVar(
		&c.configPath,
		"config",
		"",
		"the path to the server TOML configuration, if any",
	)
}

// loadConfig reads the server configuration file, if any.
// An explicit listen flag takes precedence over the file
func (c *serveCfg) loadConfig() error {
	if c.configPath == "" {
		return nil
	}

	listenAddress := c.config.ListenAddress

	serverCfg, err := config.Read(c.configPath)
	if err != nil {
		return fmt.Errorf("unable to read server config, %w", err)
	}

	if listenAddress != config.DefaultListenAddress {
		serverCfg.ListenAddress = listenAddress
	}

	c.config = serverCfg

	return nil
}

// run serves the p2prates backend on top of the given storage,
// until the context is cancelled or a signal is caught
func (c *serveCfg) run(ctx context.Context, backend storage.Storage, logger *slog.Logger) error {
	pipelineCfg := c.config.Pipeline
	if pipelineCfg == nil {
		pipelineCfg = config.DefaultPipelineConfig()
	}

	samples := storage.NewSampleStore(
		backend,
		storage.WithLogger(logger),
		storage.WithMaxLimit(pipelineCfg.HistoryMaxLimit),
	)

	// Optional NATS publishing of every fresh sample
	var consumers []ingest.Handler

	if natsURL := os.Getenv(env.Prefix + env.NATSURLSuffix); natsURL != "" {
		conn, err := publish.Connect(natsURL, logger)
		if err != nil {
			return fmt.Errorf("unable to connect to NATS: %w", err)
		}

		defer conn.Close()

		publisher, err := publish.NewNATSPublisher(
			conn,
			pipelineCfg.NATSSubject,
			publish.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("unable to create NATS publisher: %w", err)
		}

		consumers = append(consumers, publisher.Handle)
	}

	s, err := server.New(
		samples,
		server.WithLogger(logger),
		server.WithConfig(c.config),
		server.WithPipeline(
			registry.New(),
			newPipelineFactory(
				pipelineCfg,
				newScraper(pipelineCfg, logger),
				samples,
				logger,
				consumers...,
			),
		),
	)
	if err != nil {
		return fmt.Errorf("unable to create server, %w", err)
	}

	runCtx, cancelFn := signal.NotifyContext(
		ctx,
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer cancelFn()

	group, gCtx := errgroup.WithContext(runCtx)

	// Start the HTTP server, which owns the pipeline lifecycle
	group.Go(func() error {
		return s.Serve(gCtx)
	})

	return group.Wait()
}
