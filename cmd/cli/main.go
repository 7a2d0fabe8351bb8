package main

import (
	"os"
	"strings"

	"github.com/nimasrn/crm-dispatch/internal/config"
	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/nimasrn/crm-dispatch/pkg/pg"
)

// usage: cli [--env=.env] [--dir=./migrations]
func main() {
	if err := config.Load(argValue("--env=", ".env")); err != nil {
		logger.Error("failed to load config", "error", err)
	}

	cfg := config.Get()
	pgConf := pg.Config{
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
	}
	if err := pg.Migrate(pgConf, argValue("--dir=", "./migrations")); err != nil {
		logger.Error("migration: error running migrations", "error", err)
		os.Exit(1)
	}
}

// argValue returns the value of the first os.Args entry starting with
// prefix, or fallback. Paths that do not exist resolve to "".
func argValue(prefix, fallback string) string {
	path := fallback
	for _, v := range os.Args[1:] {
		if strings.HasPrefix(v, prefix) {
			path = strings.TrimPrefix(v, prefix)
			break
		}
	}
	if _, err := os.Stat(path); err != nil {
		logger.Warn("path not found, ignoring", "flag", prefix, "path", path)
		return ""
	}
	return path
}
