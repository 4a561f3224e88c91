package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/insushim/alchan-sub004/internal/clients/exchange"
	"github.com/insushim/alchan-sub004/internal/clients/finance"
	"github.com/insushim/alchan-sub004/internal/config"
	"github.com/insushim/alchan-sub004/internal/database"
	"github.com/insushim/alchan-sub004/internal/modules/events"
	"github.com/insushim/alchan-sub004/internal/modules/ingestion"
	"github.com/insushim/alchan-sub004/internal/modules/market"
	"github.com/insushim/alchan-sub004/internal/modules/settlement"
	"github.com/insushim/alchan-sub004/internal/modules/snapshot"
	"github.com/insushim/alchan-sub004/internal/scheduler"
	"github.com/insushim/alchan-sub004/internal/server"
	"github.com/insushim/alchan-sub004/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting market engine")

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	loc := cfg.Location()
	conn := db.Conn()

	instruments := market.NewInstrumentRepository(conn, log)
	accounts := market.NewAccountRepository(conn, log)
	positions := market.NewPositionRepository(conn, log)
	settings := market.NewSettingsRepository(conn, log)
	eventSettings := events.NewSettingsRepository(conn, log)

	if err := market.NewSeeder(instruments, log).Seed(); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed instruments")
	}

	snapshots := snapshot.NewService(instruments, conn, log)
	rates := ingestion.NewExchangeRateService(exchange.NewClient(log), settings, log)
	ingest := ingestion.NewService(
		finance.NewClient(log),
		rates,
		instruments,
		snapshots,
		ingestion.NewFixedDelayPacer(cfg.FetchDelay),
		log,
	)

	injector := events.NewInjector(eventSettings, instruments, accounts, loc, nil, log)
	trades := settlement.NewTradeService(conn, instruments, accounts, positions, log)

	vacation := scheduler.NewVacationCache(settings, cfg.VacationCacheTTL, log)
	orchestrator := scheduler.NewOrchestrator(
		buildTasks(ingest, rates, injector, accounts, log),
		vacation,
		loc,
		log,
	)

	if cfg.InternalScheduler {
		sched := scheduler.New(orchestrator, log)
		if err := sched.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
		defer sched.Stop()
	} else if cfg.SchedulerToken == "" {
		log.Warn().Msg("No scheduler token configured, trigger endpoints are disabled")
	}

	srv := server.New(server.Config{
		Port:           cfg.Port,
		SchedulerToken: cfg.SchedulerToken,
		Location:       loc,
		Log:            log,
		DB:             db,
		Orchestrator:   orchestrator,
		Vacation:       vacation,
		Injector:       injector,
		Snapshots:      snapshots,
		Instruments:    instruments,
		Trades:         trades,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// buildTasks assembles the orchestrator task table
func buildTasks(
	ingest *ingestion.Service,
	rates *ingestion.ExchangeRateService,
	injector *events.Injector,
	accounts *market.AccountRepository,
	log zerolog.Logger,
) []scheduler.Task {
	return []scheduler.Task{
		{
			Name: "price_ingestion",
			Window: scheduler.Window{
				Days:         scheduler.Weekdays(),
				StartHour:    8,
				EndHour:      15,
				EveryMinutes: 5,
			},
			Run: func(ctx context.Context) error {
				report, err := ingest.UpdateRealPrices(ctx)
				log.Info().
					Int("updated", report.Updated).
					Int("failed", report.Failed).
					Int("skipped", report.Skipped).
					Msg("Price ingestion cycle finished")
				return err
			},
		},
		{
			Name: "exchange_rate",
			Window: scheduler.Window{
				Days:         scheduler.EveryDay(),
				EveryMinutes: 60,
			},
			Run: func(ctx context.Context) error {
				rate := rates.UpdateRate(ctx)
				log.Info().Float64("usd_krw", rate.Rate).Msg("Exchange rate refreshed")
				return nil
			},
		},
		{
			Name:   "daily_event_roll",
			Window: scheduler.At(9, 5, scheduler.Weekdays()...),
			Run: func(ctx context.Context) error {
				classes, err := accounts.ListClasses()
				if err != nil {
					return err
				}

				var errs []error
				for _, class := range classes {
					_, err := injector.TriggerClassEvent(ctx, class, events.TriggerScheduled)
					if errors.Is(err, events.ErrCooldownActive) || errors.Is(err, events.ErrNoTemplates) {
						continue
					}
					if err != nil {
						errs = append(errs, err)
					}
				}
				return errors.Join(errs...)
			},
		},
	}
}
