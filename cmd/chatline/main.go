package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
	"github.com/urfave/cli/v3"

	intrnl "chatline/internal"
	"chatline/internal/app"
)

func main() {
	root := &cli.Command{
		Name:  "chatline",
		Usage: "Realtime 1:1 chat backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before reading the environment",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "sqlite database path (defaults to a per-user path)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "DEBUG, INFO, WARN or ERROR",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			seedCommand(),
			versionCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP and socket server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address",
			},
			&cli.BoolFlag{
				Name:  "debug-routes",
				Usage: "mount the /api/debug endpoints",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("addr") {
				cfg.Addr = c.String("addr")
			}
			if c.IsSet("debug-routes") {
				cfg.DebugRoutes = c.Bool("debug-routes")
			}
			logger := logs.GetLoggerFromString(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			handle, err := app.RunServer(ctx, logger, cfg)
			if err != nil {
				return fmt.Errorf("start server: %w", err)
			}
			return handle.Wait()
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the database schema and exit",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger := logs.GetLoggerFromString(cfg.LogLevel)
			store, err := app.OpenStore(ctx, cfg.DBPath)
			if err != nil {
				return err
			}
			logger.Info("database migrated", "path", cfg.DBPath)
			return store.Close()
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Create demo users",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "JSON array of {email, fullname, password, profilePic}; defaults to the built-in demo set",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger := logs.GetLoggerFromString(cfg.LogLevel)
			users := app.DemoUsers
			if path := c.String("file"); path != "" {
				if users, err = app.LoadSeedFile(path); err != nil {
					return err
				}
			}
			store, err := app.OpenStore(ctx, cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()
			created, err := app.SeedUsers(ctx, store, users)
			if err != nil {
				return err
			}
			logger.Info("users seeded", "created", created, "skipped", len(users)-created)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(ctx context.Context, c *cli.Command) error {
			fmt.Println(intrnl.BuildVersion())
			return nil
		},
	}
}

func loadConfig(c *cli.Command) (app.ServerConfig, error) {
	var files []string
	if envFile := c.String("env-file"); envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := app.LoadServerConfig(files...)
	if err != nil {
		return app.ServerConfig{}, err
	}
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg, nil
}
