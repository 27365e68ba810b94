package main

import (
	"os"

	"github.com/pagepulse/pagepulse/internal/config"
	"github.com/pagepulse/pagepulse/internal/database"
	"github.com/pagepulse/pagepulse/internal/logging"
	"github.com/pagepulse/pagepulse/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logging.Base()
		log.Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	log := logging.WithComponent("main")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Database.Path).Msg("failed to open database")
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, cfg)
	if err := srv.Start(); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
	log.Info().Msg("server exited")
}
