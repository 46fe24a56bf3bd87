// Command plauder is an interactive chat client for DIAL deployments.
//
// Usage:
//
//	plauder [--config FILE] [--stream | --no-stream] [--client raw|sdk]
//	        [--deployment NAME] [--resume SESSION_ID]
//
// Configuration is read from a YAML file, a .env file and the environment
// (DIAL_API_KEY, DIAL_ENDPOINT, PLAUDER_*); flags override both. Logs go
// to stderr, the conversation to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/plauder/pkg/config"
	"github.com/rhuss/plauder/pkg/debug"
	"github.com/rhuss/plauder/pkg/engine"
	"github.com/rhuss/plauder/pkg/observability"
	"github.com/rhuss/plauder/pkg/provider"
	"github.com/rhuss/plauder/pkg/provider/dial"
	"github.com/rhuss/plauder/pkg/provider/openaisdk"
	"github.com/rhuss/plauder/pkg/session"
	"github.com/rhuss/plauder/pkg/storage"
	"github.com/rhuss/plauder/pkg/storage/memory"
	"github.com/rhuss/plauder/pkg/storage/postgres"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("plauder failed", "error", err)
		os.Exit(1)
	}
}

// options holds the command-line flags. Pointer fields are nil when the
// flag was not given.
type options struct {
	configPath string
	stream     *bool
	client     string
	deployment string
	resume     string
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("plauder", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	opts := &options{}
	var stream, noStream bool
	fs.StringVar(&opts.configPath, "config", "", "path to the YAML config file")
	fs.BoolVar(&stream, "stream", false, "stream answers as they are generated")
	fs.BoolVar(&noStream, "no-stream", false, "wait for complete answers")
	fs.StringVar(&opts.client, "client", "", "provider client: raw or sdk")
	fs.StringVar(&opts.deployment, "deployment", "", "DIAL deployment name")
	fs.StringVar(&opts.resume, "resume", "", "continue a stored session")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stderr)
			fs.PrintDefaults()
		}
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	switch {
	case stream && noStream:
		return nil, fmt.Errorf("--stream and --no-stream are mutually exclusive")
	case stream:
		opts.stream = &stream
	case noStream:
		off := false
		opts.stream = &off
	}
	return opts, nil
}

// apply overrides cfg with the flags that were set.
func (o *options) apply(cfg *config.Config) error {
	if o.stream != nil {
		cfg.Chat.Stream = *o.stream
	}
	if o.client != "" {
		cfg.DIAL.Client = o.client
	}
	if o.deployment != "" {
		cfg.DIAL.Deployment = o.deployment
	}
	return cfg.Validate()
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := opts.apply(cfg); err != nil {
		return fmt.Errorf("flags: %w", err)
	}

	debug.Init(cfg.Observability.Debug, cfg.Observability.LogLevel, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:  cfg.Observability.Tracing.Enabled,
		Endpoint: cfg.Observability.Tracing.Endpoint,
		Insecure: cfg.Observability.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	prov, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	eng, err := engine.New(prov, os.Stdout, engine.Config{})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	sess, err := session.New(eng, session.Config{
		Stream:              cfg.Chat.Stream,
		DefaultSystemPrompt: cfg.Chat.SystemPrompt,
		Deployment:          cfg.DIAL.Deployment,
		ResumeID:            opts.resume,
	}, session.WithStore(store))
	if err != nil {
		return err
	}

	debug.Log(debug.CategorySession, "starting chat",
		"provider", eng.Provider(),
		"deployment", cfg.DIAL.Deployment,
		"stream", cfg.Chat.Stream,
		"storage", cfg.Storage.Type,
		"session", sess.ID(),
	)

	g, gctx := errgroup.WithContext(ctx)
	chatCtx, chatDone := context.WithCancel(gctx)

	if cfg.Observability.Metrics.Enabled {
		g.Go(func() error {
			if err := observability.ServeMetrics(chatCtx, cfg.Observability.Metrics.Addr, cfg.Observability.Metrics.Path); err != nil {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer chatDone()
		err := sess.Run(chatCtx, os.Stdin, os.Stdout)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// Interrupted by a signal.
			return nil
		}
		return err
	})

	err = g.Wait()
	if cfg.Storage.Type == config.StoragePostgres {
		slog.Info("transcript saved", "session", sess.ID(), "resume", "plauder --resume "+sess.ID())
	}
	return err
}

// newProvider builds the client selected by dial.client.
func newProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.DIAL.Client {
	case config.ClientSDK:
		return openaisdk.New(openaisdk.Config{
			BaseURL:     cfg.DIAL.Endpoint,
			APIKey:      cfg.DIAL.APIKey,
			Deployment:  cfg.DIAL.Deployment,
			APIVersion:  cfg.DIAL.APIVersion,
			Timeout:     cfg.DIAL.Timeout,
			Temperature: cfg.DIAL.Temperature,
			MaxTokens:   cfg.DIAL.MaxTokens,
		})
	case config.ClientRaw, "":
		dc := dial.DefaultConfig(cfg.DIAL.Endpoint, cfg.DIAL.APIKey, cfg.DIAL.Deployment)
		dc.Timeout = cfg.DIAL.Timeout
		dc.Temperature = cfg.DIAL.Temperature
		dc.MaxTokens = cfg.DIAL.MaxTokens
		return dial.New(dc)
	default:
		return nil, fmt.Errorf("unknown client %q", cfg.DIAL.Client)
	}
}

// newStore builds the transcript store selected by storage.type. It
// returns a nil store for "none".
func newStore(ctx context.Context, cfg *config.Config) (storage.TranscriptStore, error) {
	switch cfg.Storage.Type {
	case config.StorageNone:
		slog.Debug("storage disabled")
		return nil, nil
	case config.StorageMemory, "":
		slog.Debug("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return memory.New(cfg.Storage.MaxSize), nil
	case config.StoragePostgres:
		pg := cfg.Storage.Postgres
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            pg.DSN,
			MaxConns:       pg.MaxConns,
			MigrateOnStart: pg.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		slog.Debug("storage enabled", "type", "postgres")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}
