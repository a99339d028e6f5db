package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/catread/internal"
	pkgconfig "github.com/starford/catread/pkg/config"
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

func ingestOnce(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	added, err := internal.IngestOnce(ctx, internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	fmt.Printf("added %d book(s)\n", added)
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func addUser(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	u, err := internal.AddUser(ctx, cmd.String("username"), cmd.String("password"),
		internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	fmt.Printf("created user %q with id %d\n", u.Username, u.ID)
	return nil
}

func inspect(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("inspect: a book path is required")
	}
	return internal.Inspect(ctx, path, os.Stdout)
}

func main() {
	cmd := &cli.Command{
		Name:   "catread",
		Usage:  "EPUB library reader with per-user reading progress",
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
				Usage:  "Run the HTTP API and the ingestion scheduler",
				Action: serve,
			},
			{
				Name:   "ingest",
				Usage:  "Scan the library once and exit",
				Action: ingestOnce,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:      "inspect",
				Usage:     "Show what ingesting a book file would store, without storing it",
				ArgsUsage: "<file.epub>",
				Action:    inspect,
			},
			{
				Name:  "user",
				Usage: "Manage reader accounts",
				Commands: []*cli.Command{
					{
						Name:   "add",
						Usage:  "Create a reader account",
						Action: addUser,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
							&cli.StringFlag{
								Name:     "password",
								Aliases:  []string{"p"},
								Required: true,
								Sources:  cli.EnvVars("CATREAD_PASSWORD"),
							},
						},
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
