package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"localhost/deepseek-proxy/internal/app"
	"localhost/deepseek-proxy/internal/config"
	"localhost/deepseek-proxy/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	cmd := &cli.Command{
		Name:    "dsgate",
		Usage:   "Claude-compatible gateway for DeepSeek models",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to TOML configuration file",
			},
		},
		Commands: []*cli.Command{
			startCommand(version),
			initCommand(),
			credentialsCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func startCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Starts the gateway",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return startAction(ctx, cmd, version)
		},
	}
}

func startAction(ctx context.Context, cmd *cli.Command, version string) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	err = observability.Instrument(observability.LogOptions{
		Level:  cfg.Server.SlogLevel(),
		Format: cfg.Server.LogFormat,
		File:   cfg.Server.LogFile,
	})
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write an example configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Usage: "destination path",
				Value: "dsgate.toml",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("out")
			if err := config.WriteExample(path); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
}
