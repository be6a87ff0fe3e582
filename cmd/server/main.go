package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/dimiro1/banner"
	"github.com/joho/godotenv"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"

	"github.com/adpulse/campaign-watcher/internal/alerts"
	"github.com/adpulse/campaign-watcher/internal/api"
	"github.com/adpulse/campaign-watcher/internal/config"
	"github.com/adpulse/campaign-watcher/internal/metrics"
	"github.com/adpulse/campaign-watcher/internal/notifications"
	"github.com/adpulse/campaign-watcher/internal/reports"
	"github.com/adpulse/campaign-watcher/internal/scheduler"
	"github.com/adpulse/campaign-watcher/internal/store"
)

const bannerText = `
{{ .Title "Campaign Watcher" "" 0 }}
{{ .AnsiBackground.BrightBlue }}{{ .AnsiColor.White }}
{{ .AnsiReset }}
`

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Printf("No .env or .env.local file found. Using environment variables.\n")
		}
	}

	banner.Init(colorable.NewColorableStdout(), true, true, strings.NewReader(bannerText))

	configPath := flag.String("config", "config/config.json", "path to config file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          false,
		DisableTimestamp:       false,
		TimestampFormat:        "2006-01-02T15:04:05-07:00",
		DisableLevelTruncation: false,
		PadLevelText:           false,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	db, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer db.Close()

	var mailer notifications.Mailer
	if cfg.SMTP.Host != "" {
		mailer = notifications.NewSMTPMailer(notifications.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Password: cfg.SMTP.Password,
		}, logger)
	} else {
		logger.Warn("SMTP not configured, report and alert mail disabled")
	}

	var slack *notifications.SlackService
	if cfg.Slack.WebhookURL != "" {
		slack, err = notifications.NewSlackService(cfg.Slack.WebhookURL, logger)
		if err != nil {
			logger.Warnf("Failed to initialize Slack service: %v", err)
		}
	}

	catalog, err := config.LoadPlatformCatalog()
	if err != nil {
		logger.Warnf("Platform catalog unavailable: %v", err)
	}

	engine := metrics.NewEngine(db, logger)
	notifier := notifications.NewService(mailer, slack, logger)
	evaluator := alerts.NewEvaluator(db, engine, notifier, logger)
	if catalog != nil {
		evaluator.SetPlatformNamer(catalog)
	}
	orchestrator := reports.NewOrchestrator(db, engine, mailer, reports.NewHTMLRenderer(), logger)

	sched := scheduler.New(db, orchestrator, evaluator, logger)
	sched.SetSweepInterval(cfg.SweepInterval())
	orchestrator.BindTimers(sched)

	ctx := context.Background()
	if err := sched.Init(ctx); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	handler := api.NewHandler(db, sched, orchestrator, evaluator, logger)
	if catalog != nil {
		handler.SetCatalog(catalog)
	}

	logger.Infof("Server starting on port %s - Press Ctrl+C to stop.", cfg.Server.Port)
	if err := api.StartServer(ctx, handler, cfg.Server.Port); err != nil {
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Server stopped")
}
