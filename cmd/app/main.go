package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notecanvas/internal"
	"github.com/starford/notecanvas/internal/script"
	pkgconfig "github.com/starford/notecanvas/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func replay(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("replay: script path is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := script.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}
	if doc := cmd.String("document"); doc != "" {
		s.Document = doc
	}

	rep, err := internal.Replay(ctx, s, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func main() {
	cmd := &cli.Command{
		Name:   "notecanvas",
		Usage:  "Paged handwriting canvas with undo history, page storage and read aloud",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the page service HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve read-only page tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:      "replay",
				Usage:     "Play an editing script against the page service",
				ArgsUsage: "<script.yaml>",
				Action:    replay,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "document",
						Usage: "Override the script's document id",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
