package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"telegram-group-subscription/internal/config"
	pg "telegram-group-subscription/internal/infra/db/postgres"
	"telegram-group-subscription/internal/infra/logging"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [-config path] up|down|status\n")
	}
	flag.Parse()
	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	switch cmd {
	case "up":
		err = pg.Migrate(ctx, pool)
	case "down":
		err = pg.MigrateDown(ctx, pool)
	case "status":
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", cmd).Msg("migration failed")
	}

	version, err := pg.MigrationStatus(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("read schema version")
	}
	logger.Info().Str("command", cmd).Int64("version", version).Msg("schema up to date")
}
