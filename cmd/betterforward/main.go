// Command betterforward runs the private-message relay bot: one staffed
// Telegram group, one topic per end user, captcha-gated first contact, and
// a keyword spam filter in front of routing.
package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mymmrac/telego"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/TobyLinn/BetterForward/internal/config"
	"github.com/TobyLinn/BetterForward/internal/dispatch"
	"github.com/TobyLinn/BetterForward/internal/ops"
	"github.com/TobyLinn/BetterForward/internal/repo"
	"github.com/TobyLinn/BetterForward/internal/services"
	"github.com/TobyLinn/BetterForward/internal/sysutil"
	tg "github.com/TobyLinn/BetterForward/internal/telegram"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("cannot open database")
	}
	if err := repo.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}
	version, _ := repo.CurrentSchemaVersion(db)
	log.Info().Int("schema_version", version).Str("path", cfg.DBPath).Msg("database ready")

	api, err := telego.NewBot(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot initialize Telegram client")
	}

	transport := tg.NewTransport(api, cfg.GroupID, cfg.TransportTimeout, cfg.SendRate, cfg.SendBurst)

	spam, err := services.NewSpamFilter(context.Background(), db)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load spam rules")
	}
	captcha := services.NewCaptchaEngine(db, cfg.CaptchaMaxAttempts, cfg.CaptchaLockout,
		cfg.CaptchaChallengeTTL, services.ParseDifficulty(cfg.CaptchaDifficulty))
	router := services.NewTopicRouter(db, transport, cfg.GroupID)
	admin := services.NewAdmin(spam, captcha)

	dispatcher := dispatch.NewDispatcher(router, captcha, spam, transport, cfg.WorkerPoolSize, cfg.DispatchTimeout)
	bot := tg.NewBot(api, dispatcher, admin, transport, cfg.GroupID)

	var opsSrv = ops.NewServer(cfg.OpsAddr, db)
	if cfg.OpsAddr != "" {
		go ops.Serve(opsSrv)
		log.Info().Str("addr", cfg.OpsAddr).Msg("ops endpoints listening")
	}

	go func() {
		<-sysutil.ShutdownSignal()
		log.Info().Msg("shutting down")
		bot.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = opsSrv.Shutdown(shutdownCtx)
	}()

	if err := bot.Run(); err != nil {
		log.Fatal().Err(err).Msg("bot stopped with error")
	}

	dispatcher.Wait()
	log.Info().Msg("all in-flight events drained, bye")
}
