package main

import (
	"context"
	"os"
	"strconv"
	"strings"

	"rug-sentinel/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	cmdUp      = "up"
	cmdDown    = "down"
	cmdVersion = "version"

	usage = "usage: go run ./cmd/migrate [up|down|version] [steps]"
)

var (
	loadEnvFunc = godotenv.Load
	openPool    = pgxpool.New
)

func main() {
	loadEnvFunc()

	if len(os.Args) < 2 {
		log.Fatal(usage)
	}
	command := os.Args[1]
	steps, err := parseSteps(command, os.Args[2:])
	if err != nil {
		log.Fatal(err)
	}

	dsn := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureMigrationTable(ctx, pool); err != nil {
		log.Fatalf("ensure schema_migrations table: %v", err)
	}
	migrations, err := db.LoadMigrations(db.MigrationsFS)
	if err != nil {
		log.Fatalf("load migrations: %v", err)
	}

	switch command {
	case cmdUp:
		applied, err := db.ApplyUp(ctx, pool, migrations)
		if err != nil {
			log.Fatalf("apply migrations up: %v", err)
		}
		log.Infof("migrations up complete (%d applied)", applied)
	case cmdDown:
		rolledBack, err := db.ApplyDown(ctx, pool, migrations, steps)
		if err != nil {
			log.Fatalf("apply migrations down: %v", err)
		}
		log.Infof("migrations down complete (%d rolled back)", rolledBack)
	case cmdVersion:
		version, name, err := db.CurrentVersion(ctx, pool)
		if err != nil {
			log.Fatalf("read current version: %v", err)
		}
		if version == 0 {
			log.Info("no migrations applied")
			return
		}
		log.Infof("current version: %d (%s)", version, name)
	}
}

func parseSteps(command string, rest []string) (int, error) {
	switch command {
	case cmdUp, cmdVersion:
		return 0, nil
	case cmdDown:
		if len(rest) == 0 {
			return 1, nil
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil || n <= 0 {
			return 0, &usageError{msg: "invalid down steps: " + strconv.Quote(rest[0])}
		}
		return n, nil
	default:
		return 0, &usageError{msg: "unknown command " + strconv.Quote(command) + ". " + usage}
	}
}

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }
