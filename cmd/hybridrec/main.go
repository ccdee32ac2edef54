package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/localrivet/hybridrec"
	"github.com/localrivet/hybridrec/internal/config"
	"github.com/localrivet/hybridrec/internal/encoder"
	"github.com/localrivet/hybridrec/internal/ingest"
	"github.com/localrivet/hybridrec/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "hybridrec",
		Usage: "hybrid semantic and collaborative item recommender",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "config file path",
				Value: config.DefaultConfigFilename,
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment file path",
				Value: config.DefaultEnvFilename,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve recommendations over MCP stdio and HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "http",
						Usage: "HTTP listen address, overrides the config file",
					},
					&cli.BoolFlag{
						Name:  "no-stdio",
						Usage: "disable the MCP stdio transport",
					},
				},
				Action: serveAction,
			},
			{
				Name:  "import",
				Usage: "load CSV artifacts into the SQLite store",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "items",
						Usage:    "catalog CSV with id and title columns",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "interactions",
						Usage:    "interaction CSV with user, item and interaction columns",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "collaborative",
						Usage:    "collaborative embedding CSV",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "semantic",
						Usage: "semantic embedding CSV; titles are encoded when omitted",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "titles per encoder batch, overrides the config file",
					},
				},
				Action: importAction,
			},
			{
				Name:  "init",
				Usage: "write the default configuration to the config path",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "overwrite an existing config file",
					},
				},
				Action: initAction,
			},
			{
				Name:   "health",
				Usage:  "check every configured encoder provider and print a JSON report",
				Action: healthAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "hybridrec:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and builds the process logger. Logs go to
// stderr since stdout carries the MCP stdio stream.
func loadConfig(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfigWithPath(cmd.String("config"), cmd.String("env"))
	if err != nil {
		return nil, nil, err
	}
	log := logger.FromSettings(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(log)
	log.Debug("Configuration loaded", "path", cfg.GetConfigPath())
	return cfg, log, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr := cmd.String("http"); addr != "" {
		cfg.Server.HTTPAddr = addr
	}
	if cmd.Bool("no-stdio") {
		cfg.Server.Stdio = false
	}

	srv, err := hybridrec.NewServer(hybridrec.ServerOptions{Config: cfg, Logger: log})
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	select {
	case err = <-done:
		if stopErr := srv.Stop(); stopErr != nil {
			log.Error("Shutdown failed", "error", stopErr)
		}
		return err
	case <-ctx.Done():
		log.Info("Received shutdown signal, terminating gracefully")
		if err := srv.Stop(); err != nil {
			return err
		}
		<-done
		log.Info("Shutdown complete")
		return nil
	}
}

func importAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	comps, err := hybridrec.CreateComponents(cfg, log)
	if err != nil {
		return err
	}
	defer comps.Store.Close()

	batchSize := cfg.Encoder.BatchSize
	if n := cmd.Int("batch-size"); n > 0 {
		batchSize = int(n)
	}

	im := &ingest.Importer{
		Store:     comps.Store,
		Embedder:  comps.Encoder,
		BatchSize: batchSize,
		Logger:    logger.WithComponent(log, "import"),
	}
	stats, err := im.Import(ctx, ingest.Sources{
		Items:         cmd.String("items"),
		Interactions:  cmd.String("interactions"),
		Semantic:      cmd.String("semantic"),
		Collaborative: cmd.String("collaborative"),
	})
	if err != nil {
		return err
	}

	log.Info("Import complete",
		"items", stats.Items,
		"interactions", stats.Interactions,
		"spaces", len(stats.Spaces))
	return nil
}

func initAction(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		return fmt.Errorf("%s already exists; use --force to overwrite it", path)
	}

	cfg := config.NewConfig()
	if err := cfg.SaveToFile(path); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Wrote default configuration to", cfg.GetConfigPath())
	return nil
}

func healthAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	comps, err := hybridrec.CreateComponents(cfg, log)
	if err != nil {
		return err
	}
	defer comps.Store.Close()

	enc, ok := comps.Encoder.(*encoder.ResilientEncoder)
	if !ok {
		log.Info("Encoder has no remote providers", "provider", cfg.Encoder.Provider)
		return nil
	}

	report, err := encoder.CreateHealthReportJSON(ctx, enc)
	if err != nil {
		return err
	}
	fmt.Println(report)
	return nil
}
