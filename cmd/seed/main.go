package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"telegram-group-subscription/internal/config"
	tele "telegram-group-subscription/internal/infra/adapters/telegram"
	pg "telegram-group-subscription/internal/infra/db/postgres"
	"telegram-group-subscription/internal/infra/logging"
	"telegram-group-subscription/internal/usecase"
)

// seed whitelists existing group members so they keep access without paying.
// IDs come from -ids (comma separated) and/or -file (one per line).
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	idList := flag.String("ids", "", "comma separated Telegram user ids")
	idFile := flag.String("file", "", "file with one Telegram user id per line")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ids, err := collectIDs(*idList, *idFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("read ids")
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to seed: pass -ids or -file")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrations")
	}

	// Whitelisting never talks to Telegram; the noop adapter satisfies the ports.
	noop := tele.NewNoopBotAdapter(logger)
	subUC := usecase.NewSubscriptionUseCase(
		pg.NewPostgresUserRepo(pool),
		pg.NewPostgresActivityLogRepo(pool),
		pg.NewTxManager(pool),
		noop, noop, logger,
	)

	n, err := subUC.BulkWhitelist(ctx, ids)
	if err != nil {
		logger.Fatal().Err(err).Int("whitelisted", n).Msg("bulk whitelist")
	}
	logger.Info().Int("requested", len(ids)).Int("whitelisted", n).Msg("seed complete")
}

func collectIDs(list, file string) ([]int64, error) {
	var raw []string
	if list != "" {
		raw = append(raw, strings.Split(list, ",")...)
	}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			raw = append(raw, sc.Text())
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}

	seen := map[int64]bool{}
	var ids []int64
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid telegram id %q", s)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
