package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/innerjoy/funnel/internal/config"
	"github.com/innerjoy/funnel/internal/db"
	"github.com/innerjoy/funnel/internal/dispatch"
	"github.com/innerjoy/funnel/internal/flow"
	"github.com/innerjoy/funnel/internal/handlers"
	"github.com/innerjoy/funnel/internal/keylock"
	"github.com/innerjoy/funnel/internal/logger"
	"github.com/innerjoy/funnel/internal/schedule"
	"github.com/innerjoy/funnel/internal/sender"
	"github.com/innerjoy/funnel/internal/slots"
	"github.com/innerjoy/funnel/internal/store"
	"github.com/innerjoy/funnel/internal/templates"
	"github.com/innerjoy/funnel/internal/web"
	"github.com/innerjoy/funnel/internal/window"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	var st store.Store = store.Nop{}
	if cfg.DBPath != "" {
		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Msg("db open")
		}
		st = store.NewGorm(conn)
	} else {
		log.Warn().Msg("DB_PATH empty: running without persistence")
	}

	var snd sender.Sender = sender.LogSender{Log: logger.For("sender")}
	if cfg.WAToken != "" && cfg.WAPhoneID != "" {
		cc, err := sender.NewCloudClient(sender.Options{
			BaseURL: cfg.WABaseURL,
			PhoneID: cfg.WAPhoneID,
			Token:   cfg.WAToken,
			Timeout: cfg.SendTimeout,
			Retries: cfg.SendRetries,
			Backoff: cfg.SendRetryBackoff,
			Logger:  logger.For("sender"),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("sender")
		}
		snd = cc
	} else {
		log.Warn().Msg("no WhatsApp credentials: messages are logged, not sent")
	}

	cal := slots.New(cfg.Location)
	composer := flow.Composer{
		Templates:  templates.Default(),
		Calendar:   cal,
		Links:      cfg.Links,
		InviteLink: cfg.InviteLink(),
	}
	policy := window.Policy{
		TriggerPhrase: cfg.TriggerPhrase,
		Organic:       cfg.OrganicWindow,
		PaidAd:        cfg.PaidAdWindow,
	}
	sched := schedule.New(st, cal, cfg.SessionDuration, logger.For("schedule"))
	locks := keylock.New()

	eng := flow.New(flow.Deps{
		Store:         st,
		Sender:        snd,
		Composer:      composer,
		Scheduler:     sched,
		Window:        policy,
		Locks:         locks,
		FallbackDelay: cfg.FallbackDelay,
		Log:           logger.For("flow"),
	})
	disp := dispatch.New(dispatch.Deps{
		Store:     st,
		Sender:    snd,
		Composer:  composer,
		Scheduler: sched,
		Window:    policy,
		Locks:     locks,
		Log:       logger.For("dispatch"),
	}, dispatch.Options{
		SweepSpec:       cfg.SweepSpec,
		ClaimLease:      cfg.ClaimLease,
		Concurrency:     cfg.SendConcurrency,
		ReinviteEnabled: cfg.ReinviteEnabled,
		ReinviteSpec:    cfg.ReinviteSpec,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := disp.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("dispatcher")
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: web.Router(handlers.Deps{
			Engine:      eng,
			Sweeper:     disp,
			Store:       st,
			Dedupe:      handlers.NewDedupe(cfg.DedupeTTL),
			VerifyToken: cfg.WAVerifyToken,
			AppSecret:   cfg.WAAppSecret,
			AdminToken:  cfg.AdminToken,
			InviteLink:  cfg.InviteLink(),
			Log:         logger.For("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("InnerJoy funnel listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	disp.Stop()
}
