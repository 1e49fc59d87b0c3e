package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"tradesim/internal/infrastructure/config"
	"tradesim/internal/infrastructure/logger"
	"tradesim/internal/infrastructure/svc"
	"tradesim/internal/interfaces/web"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	logger.Setup("info")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service initialization failed")
	}
	defer sc.Close()

	server := web.NewServer(web.Deps{
		Portfolio:  sc.Portfolio,
		Trades:     sc.Trades,
		Accounts:   sc.Accounts,
		Hub:        sc.Hub(),
		Currency:   cfg.App.Currency,
		UserHeader: cfg.App.UserHeader,
	})

	log.Info().
		Str("config", *configPath).
		Str("listen", cfg.App.Listen).
		Str("storage", cfg.Storage.Driver).
		Str("quotes", cfg.Quote.Provider).
		Str("starting_cash", cfg.StartingCash().String()).
		Msg("tradesim started")

	if err := server.ListenAndServe(ctx, cfg.App.Listen); err != nil {
		log.Error().Err(err).Msg("http server exited")
	}
}
