package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/config"
	sqliteRepo "github.com/sakif/exam-archive/internal/repository/sqlite"
	"github.com/sakif/exam-archive/internal/server"
	"github.com/sakif/exam-archive/internal/storage"
)

func main() {
	serveFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML config file (optional; env vars and .env still apply)",
			EnvVars: []string{"CONFIG_FILE"},
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "HTTP port (overrides config)",
		},
		&cli.StringFlag{
			Name:  "db",
			Usage: "SQLite database path (overrides config)",
		},
	}

	app := &cli.App{
		Name:   "exam-archive",
		Usage:  "Past-exam archive API server",
		Flags:  serveFlags,
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server (default)",
				Flags:  serveFlags,
				Action: serve,
			},
			{
				Name:      "hash-password",
				Usage:     "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
				ArgsUsage: "[password]  (read from stdin when omitted)",
				Action:    hashPassword,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("db") {
		cfg.Database.Path = c.String("db")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	// SQLite creates the file but not its parent directories.
	if dir := filepath.Dir(cfg.Database.Path); cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	files, err := newStorage(c.Context, cfg, logger)
	if err != nil {
		db.Close()
		return err
	}

	srv, err := server.New(cfg, logger, db, files)
	if err != nil {
		db.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Start()
}

func newStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Provider, error) {
	switch cfg.Storage.Driver {
	case config.StorageDrive:
		d := cfg.Storage.Drive
		p, err := storage.NewDriveProvider(ctx, storage.DriveConfig{
			ClientID:     d.ClientID,
			ClientSecret: d.ClientSecret,
			RefreshToken: d.RefreshToken,
			FolderID:     d.FolderID,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating drive storage: %w", err)
		}
		return p, nil
	default:
		p, err := storage.NewLocalProvider(cfg.Storage.Local.Dir, cfg.Storage.Local.BaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("creating local storage: %w", err)
		}
		return p, nil
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func hashPassword(c *cli.Context) error {
	password := c.Args().First()
	if password == "" {
		fmt.Fprint(os.Stderr, "password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.NewPasswordService().Hash(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
