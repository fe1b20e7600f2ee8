package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/farm"
	"github.com/danmuck/magicctl/internal/ircfeed"
	"github.com/danmuck/magicctl/internal/logging"
	"github.com/danmuck/magicctl/internal/observability"
	"github.com/danmuck/magicctl/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime()
	observability.InitLogger("hookd")

	fs := pflag.NewFlagSet("hookd", pflag.ExitOnError)
	farmPath := fs.String("config", envOr("MAGICCTL_CONFIG", "/etc/magicctl/farm.toml"), "farm config path")
	serverPath := fs.String("server-config", "", "optional hookd config path")
	_ = fs.Parse(os.Args[1:])

	if err := run(*farmPath, *serverPath); err != nil {
		fmt.Fprintf(os.Stderr, "hookd: %v\n", err)
		os.Exit(1)
	}
}

func run(farmPath, serverPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(farmPath)
	if err != nil {
		return err
	}
	svcCfg, err := loadServiceConfig(serverPath, cfg)
	if err != nil {
		return err
	}
	if svcCfg.Server.Token == "" {
		log.Warn().Msg("no hookd token configured, authenticated routes will reject every request")
	}

	services, err := farm.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	formatter := ircfeed.NewFormatter(cfg.IRC, services.Groups())
	publisher := ircfeed.NewPublisher(formatter, nil, cfg.IRC.Feeds)
	handler := services.Hooks(svcCfg.Messages, services.Mailer())

	log.Info().
		Str("wiki", cfg.DBName).
		Int("feeds", len(cfg.IRC.Feeds)).
		Bool("swift", cfg.Swift.Enabled).
		Msg("hookd starting")
	return server.New(handler, publisher, svcCfg.Server).Run(ctx, svcCfg.Addr)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
