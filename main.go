package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"solbridge/account"
	"solbridge/config"
	"solbridge/kraken"
	"solbridge/logger"
	"solbridge/market"
	"solbridge/models"
	"solbridge/orders"
	"solbridge/wallet"
	"solbridge/withdraw"
	"solbridge/workflow"
	"solbridge/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if config.IsProductionLike(config.AppEnvironment()) && !cfg.Storage.S3.Enabled {
		log.Warn("S3 storage disabled in a production-like environment; run reports stay local only")
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Solbridge.Name,
		"version": cfg.Solbridge.Version,
		"env":     config.AppEnvironment(),
	}).Info("starting solbridge")

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.Namespace)
	}

	creds, err := config.CredentialsFromEnv()
	if err != nil {
		log.WithError(err).Error("Exchange credentials missing")
		os.Exit(1)
	}

	client, err := kraken.NewClient(cfg.Kraken, creds, log)
	if err != nil {
		log.WithError(err).Error("Failed to build exchange client")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	resolver := market.NewResolver(cfg.Workflow.TargetAsset, cfg.Workflow.QuoteAssets, log)
	if err := resolver.LoadPairs(ctx, client); err != nil {
		log.WithError(err).Error("Failed to load trading pairs")
		os.Exit(1)
	}

	settings := workflow.SettingsFromConfig(cfg.Workflow)

	var destination wallet.AddressSource
	if cfg.Wallet.Keyfile != "" {
		destination = wallet.FileSource{Asset: settings.TargetAsset, Path: cfg.Wallet.Keyfile}
	} else {
		destination = wallet.StaticSource{Asset: settings.TargetAsset, Address: cfg.Wallet.Address}
	}

	manager := withdraw.NewManager(client, cfg.Workflow.AddressLabelPrefix,
		settings.WithdrawalFeeBuffer, log)

	// Surface the available withdrawal networks before funds move.
	if methods, err := manager.Methods(ctx, cfg.Workflow.TargetAsset); err != nil {
		log.WithError(err).Warn("Could not list withdrawal methods")
	} else {
		for _, m := range methods {
			log.WithComponent("main").WithFields(logger.Fields{
				"method":  m.Method,
				"network": m.Network,
				"minimum": m.Minimum,
			}).Info("withdrawal method available")
		}
	}

	orchestrator := workflow.NewOrchestrator(
		settings,
		account.NewReader(client, log),
		resolver,
		orders.NewExecutor(client, log),
		manager,
		destination,
		workflow.NewClock(),
		log,
	)

	report := orchestrator.Run(ctx)

	reportWriter, err := writer.NewReportWriter(cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to build report writer")
	} else if path, err := reportWriter.Write(context.Background(), report); err != nil {
		log.WithError(err).Error("Failed to persist report")
	} else {
		log.WithFields(logger.Fields{"path": path}).Info("run report persisted")
	}

	switch report.FinalState {
	case models.StateSucceeded:
		log.WithFields(logger.Fields{
			"withdrawal_ref": report.WithdrawalRef,
			"amount":         report.WithdrawalAmount.String(),
		}).Info("solbridge finished")
	case models.StateAwaitingConfirmation:
		log.WithFields(logger.Fields{"address_label": report.AddressLabel}).
			Warn("withdrawal address needs out-of-band confirmation; rerun once confirmed")
	default:
		log.WithFields(logger.Fields{
			"state":  string(report.FinalState),
			"reason": report.FailureReason,
		}).Error("solbridge failed")
		os.Exit(1)
	}
}
