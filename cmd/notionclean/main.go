package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notionclean/internal"
	"github.com/starford/notionclean/internal/pathclean"
	pkgconfig "github.com/starford/notionclean/pkg/config"
)

var version = "dev"

const defaultConfigFile = "config/config.yaml"

// loadConfig reads the config file (optional unless --config was given) and
// applies command-line overrides: positional <source> <destination> first,
// then flags.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()

	configPath := cmd.String("config")
	if cmd.IsSet("config") {
		if err := pkgconfig.Decode(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cmd.NArg() > 0 {
		cfg.Export.Source = cmd.Args().Get(0)
	}
	if cmd.NArg() > 1 {
		cfg.Export.Destination = cmd.Args().Get(1)
	}
	if cmd.IsSet("workers") {
		cfg.Export.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("skip") {
		cfg.Export.Skip = cmd.StringSlice("skip")
	}
	if cmd.IsSet("manifest") {
		cfg.Manifest.Path = cmd.String("manifest")
	}
	if cmd.IsSet("log-level") {
		if err := cfg.App.LogLevel.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}
	if cmd.IsSet("log-format") {
		cfg.App.LogFormat = cmd.String("log-format")
	}
	if cmd.IsSet("port") {
		cfg.App.HTTP.Port = int(cmd.Int("port"))
	}
	return cfg, nil
}

func runClean(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() == 1 || cmd.NArg() > 2 {
		return fmt.Errorf("usage: %s <source> <destination>", cmd.Root().Name)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sum, err := internal.Clean(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
	if err != nil {
		return fmt.Errorf("clean error: %w", err)
	}

	fmt.Fprintf(cmd.Root().Writer, "written: %d, skipped: %d, failed: %d, collisions: %d (%s)\n",
		sum.Written, sum.Skipped, sum.Failed, len(sum.Collisions), sum.Duration.Round(time.Millisecond))
	if sum.HasFailures() {
		return fmt.Errorf("%d files failed", sum.Failed)
	}
	return nil
}

func runNormalize(_ context.Context, cmd *cli.Command) error {
	if cmd.NArg() == 0 {
		return errors.New("at least one path is required")
	}
	for _, p := range cmd.Args().Slice() {
		fmt.Fprintln(cmd.Root().Writer, pathclean.Clean(p))
	}
	return nil
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Watch(ctx, internal.WithConfig(cfg))
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Serve(ctx,
		internal.WithConfig(cfg),
		internal.WithWatch(cmd.Bool("watch")),
		internal.WithVersion(version))
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func runReport(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rep, err := internal.Report(ctx, cmd.String("run"), internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("report error: %w", err)
	}
	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "notionclean",
		Usage:     "Turn a Notion-style export into a tree of portable, cleanly named Markdown files",
		Version:   version,
		ArgsUsage: "<source> <destination>",
		Action:    runClean,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigFile,
				Value:       defaultConfigFile,
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Number of files processed at once",
				Sources: cli.EnvVars("NOTIONCLEAN_WORKERS"),
			},
			&cli.StringSliceFlag{
				Name:  "skip",
				Usage: "Base-name or path pattern to leave out (repeatable)",
			},
			&cli.StringFlag{
				Name:    "manifest",
				Usage:   "Path to the SQLite run manifest (empty disables it)",
				Sources: cli.EnvVars("NOTIONCLEAN_MANIFEST"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (json, text)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "clean",
				Usage:     "Clean the whole export once",
				ArgsUsage: "[<source> <destination>]",
				Action:    runClean,
			},
			{
				Name:      "normalize",
				Usage:     "Print the cleaned form of each path",
				ArgsUsage: "<path>...",
				Action:    runNormalize,
			},
			{
				Name:      "watch",
				Usage:     "Clean the export, then follow changes until interrupted",
				ArgsUsage: "[<source> <destination>]",
				Action:    runWatch,
			},
			{
				Name:      "serve",
				Usage:     "Serve the HTTP API",
				ArgsUsage: "[<source> <destination>]",
				Action:    runServe,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "HTTP port",
						Sources: cli.EnvVars("NOTIONCLEAN_PORT"),
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Follow export changes while serving",
					},
				},
			},
			{
				Name:      "mcp",
				Usage:     "Serve MCP tools on stdin/stdout",
				ArgsUsage: "[<source> <destination>]",
				Action:    runMCP,
			},
			{
				Name:   "report",
				Usage:  "Print the manifest report of a run as JSON",
				Action: runReport,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Run id (defaults to the latest run)",
					},
				},
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
