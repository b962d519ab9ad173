package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/mauriciomholiveira/cobranca-api/pkg/config"
	"github.com/mauriciomholiveira/cobranca-api/pkg/database"
	"github.com/mauriciomholiveira/cobranca-api/pkg/logger"
)

func main() {
	var migrationsPath string
	flag.StringVar(&migrationsPath, "path", "", "path to migrations directory (defaults to DB_MIGRATIONS_PATH)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if migrationsPath == "" {
		migrationsPath = cfg.Database.MigrationsPath
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	m, err := database.NewMigrator(db.DB, migrationsPath, logr)
	if err != nil {
		logr.Fatal("failed to init migrator", zap.Error(err))
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			logr.Fatal("migrate up failed", zap.Error(err))
		}
	case "down":
		if err := m.Down(); err != nil {
			logr.Fatal("migrate down failed", zap.Error(err))
		}
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			logr.Fatal("failed to read version", zap.Error(err))
		}
		logr.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: migrate [-path <dir>] <command>

Commands:
  up        Apply all pending migrations
  down      Roll back the last migration
  version   Show the current schema version`)
}
