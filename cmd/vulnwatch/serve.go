package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vulnwatch/vulnwatch-go/internal/alerting"
	"github.com/vulnwatch/vulnwatch-go/internal/api"
	"github.com/vulnwatch/vulnwatch-go/internal/conf"
	"github.com/vulnwatch/vulnwatch-go/internal/datastore"
	"github.com/vulnwatch/vulnwatch-go/internal/datastore/repository"
	"github.com/vulnwatch/vulnwatch-go/internal/errors"
	"github.com/vulnwatch/vulnwatch-go/internal/logger"
	"github.com/vulnwatch/vulnwatch-go/internal/mailer"
	"github.com/vulnwatch/vulnwatch-go/internal/notification"
)

const shutdownTimeout = 15 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the alerting service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	log := logger.NewSlogLogger(os.Stderr, logger.ParseLevel(logLevel), nil)

	settings, err := conf.Load(configFile)
	if err != nil {
		return err
	}

	db, err := datastore.Open(settings.Database.Driver, settings.Database.DSN)
	if err != nil {
		return err
	}
	ruleStore := repository.NewAlertRuleStore(db)
	queueStore := repository.NewEmailQueueStore(db)

	engine := mailer.NewEngine(&settings.Email, queueStore, log)

	push, err := notification.NewShoutrrrProvider(&settings.Push, log)
	if err != nil {
		return err
	}
	recipients := notification.NewStaticDirectory(
		settings.Alerting.Recipients, settings.Alerting.DefaultRecipient)
	dispatcher := alerting.NewDispatcher(engine, push, recipients, log)

	bus := alerting.NewVulnEventBus()
	defer bus.Stop()

	var coordinator *alerting.Coordinator
	remote := settings.Alerting.RemoteBaseURL != ""
	if remote {
		// Edge mode: rule reads and trigger writes go through the central
		// API; seeding and history pruning stay with the owner of the rules.
		triggers := repository.NewRemoteTriggerStore(
			settings.Alerting.RemoteBaseURL, settings.Alerting.RemoteTimeout.Std())
		coordinator = alerting.NewCoordinator(triggers, dispatcher, log,
			alerting.WithMaxRulesPerEvent(settings.Alerting.MaxRulesPerEvent),
			alerting.WithDedupTTL(settings.Alerting.DedupTTL.Std()))
		bus.Subscribe(coordinator.ProcessVulnerability)
		log.Info("using remote rule store",
			logger.String("base_url", settings.Alerting.RemoteBaseURL))
	} else {
		coordinator, err = alerting.Initialize(ruleStore, dispatcher, bus, &settings.Alerting, log)
		if err != nil {
			return err
		}
		stopCleanup := coordinator.StartTriggerCleanup(ruleStore, settings.Alerting.TriggerRetentionDays)
		defer stopCleanup()
	}

	stopSweep := engine.StartQueueSweep()
	defer stopSweep()

	server := api.New(&settings.Server, ruleStore, queueStore, coordinator, bus, engine, log)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("shutting down", logger.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("http shutdown incomplete", logger.Error(err))
	}
	return nil
}
