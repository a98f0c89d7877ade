// Command supplybot runs the festival supply-request coordinator: a Telegram
// bot that turns stall requests into tickets, routes them to the responsible
// organizer group, mirrors the live board onto MQTT for the dashboard, and
// serves a small read-only ops API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-supply-bot/internal/bot"
	"github.com/tbourn/go-supply-bot/internal/config"
	"github.com/tbourn/go-supply-bot/internal/dashboard"
	"github.com/tbourn/go-supply-bot/internal/domain"
	httpapi "github.com/tbourn/go-supply-bot/internal/http"
	"github.com/tbourn/go-supply-bot/internal/observability"
	"github.com/tbourn/go-supply-bot/internal/repo"
	"github.com/tbourn/go-supply-bot/internal/services"
	"github.com/tbourn/go-supply-bot/internal/state"
	"github.com/tbourn/go-supply-bot/internal/sysutil"
)

// version is stamped at build time via ldflags.
var version = "dev"

// closer is satisfied by both dashboard publishers.
type closer interface {
	services.Publisher
	Close()
}

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if cfg.Telegram.Token == "" {
		log.Fatal().Msg("TELEGRAM_TOKEN is required")
	}
	gin.SetMode(cfg.GinMode)

	groups, err := config.LoadGroups(cfg.GroupsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.GroupsPath).Msg("load groups")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	st, err := repo.LoadState(ctx, db)
	if err != nil {
		// A corrupt blob must not be silently replaced with an empty board.
		log.Fatal().Err(err).Msg("load persisted state")
	}
	store := state.New(st, state.PersistFunc(func(ctx context.Context, st *domain.State) error {
		return repo.SaveState(ctx, db, st)
	}))

	var pub closer = dashboard.Noop{}
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = sysutil.Hostname("supplybot")
		}
		mq, err := dashboard.Connect(cfg.MQTT)
		if err != nil {
			log.Fatal().Err(err).Msg("dashboard broker")
		}
		pub = mq
	}
	defer pub.Close()

	tg, err := bot.NewTelegram(cfg.Telegram.Token, cfg.GinMode == gin.DebugMode)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram")
	}

	roster := services.NewRosterService(store)
	tickets := services.NewTicketService(store, groups, pub)
	notify := services.NewNotifyService(store, tg, cfg.Telegram.ChannelChatID, cfg.Telegram.DeveloperChatID, cfg.ChannelRPS, cfg.ChannelBurst)
	wizard := services.NewWizardService(store, tickets, notify, groups)
	router := bot.NewRouter(roster, tickets, wizard, notify, tg, groups, cfg.Telegram.DeveloperChatID)

	// Republish the surviving tickets so a restart repaints the dashboard.
	for _, t := range tickets.ListOpen("") {
		pub.Publish(fmt.Sprintf("tickets/%d", t.UID), t.Snapshot())
	}

	engine := gin.New()
	httpapi.RegisterRoutes(engine, tickets, roster, cfg)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("ops api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ops api server")
		}
	}()

	// The update loop is deliberately sequential: every mutation funnels
	// through the shared state lock anyway, and in-order handling keeps the
	// wizard conversations coherent per chat.
	updates := tg.Updates()
	log.Info().Str("version", version).Msg("supplybot running")
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case upd, ok := <-updates:
			if !ok {
				break loop
			}
			router.HandleUpdate(ctx, upd)
		}
	}

	log.Info().Msg("shutting down")
	tg.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("ops api shutdown")
	}
}
