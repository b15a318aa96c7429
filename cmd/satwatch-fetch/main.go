package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"satwatch/internal/acquire"
	"satwatch/internal/auth"
	"satwatch/internal/catalog"
	"satwatch/internal/config"
	"satwatch/internal/download"
	"satwatch/internal/logging"
	"satwatch/internal/registry"
	"satwatch/internal/report"
	"satwatch/internal/telemetry"
)

func main() {
	projectCode := flag.String("project", "", "project code to acquire imagery for")
	allProjects := flag.Bool("all", false, "acquire imagery for every registered project")
	year := flag.Int("year", 0, "acquisition year (defaults to the configured year)")
	flag.Parse()

	_ = godotenv.Load()
	logging.Setup(os.Getenv("SATWATCH_LOG_LEVEL"))

	if *projectCode == "" && !*allProjects {
		logging.Fatalf("Either -project or -all is required")
	}

	settings, err := config.LoadSettings(config.SettingsPath())
	if err != nil {
		logging.Fatalf("Failed to load settings: %v", err)
	}
	if *year != 0 {
		settings.AcquireYear = *year
	}

	clientID, clientSecret, err := config.Credentials()
	if err != nil {
		logging.Fatalf("Failed to load credentials: %v", err)
	}

	reg, err := registry.Load(settings.RegistryPath)
	if err != nil {
		logging.Fatalf("Failed to load project registry: %v", err)
	}

	reports, err := report.Open(settings.ReportDBPath)
	if err != nil {
		logging.Fatalf("Failed to open report database: %v", err)
	}
	defer reports.Close()

	var cat catalog.Client
	switch settings.Backend {
	case "search":
		cat = catalog.NewSearchClient(settings.SearchURL, settings.AssetKey)
	default:
		cat = catalog.NewProcessingClient(settings.ProcessingURL, settings.Bands, settings.SCLBand)
	}

	tokens := auth.NewTokenSource(settings.TokenURL, clientID, clientSecret)
	fetcher := download.New(tokens)

	tracker := telemetry.New(slog.Default())
	defer tracker.Close()

	pipeline := acquire.New(cat, fetcher, reports, logging.Component("acquire"), acquire.Options{
		Collection:    settings.Collection,
		MaxCloudCover: settings.MaxCloudCover,
		BufferKm:      settings.BufferKm,
		WindowDays:    settings.WindowDays,
		Workers:       int64(settings.Workers),
		DataDir:       settings.DataDir,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	codes := []string{*projectCode}
	if *allProjects {
		codes = reg.Codes()
	}

	slices := acquire.DefaultSlices(settings.AcquireYear, settings.Months)

	exitCode := 0
	for _, code := range codes {
		project, err := reg.Lookup(code)
		if err != nil {
			slog.Error("project not in registry", "code", code, "error", err)
			exitCode = 1
			continue
		}

		summary, err := pipeline.AcquireProject(ctx, project, slices)
		if err != nil {
			slog.Error("acquisition run failed", "project", code, "error", err)
			exitCode = 1
			continue
		}

		tracker.Track("acquisition_run", map[string]interface{}{
			"downloaded": summary.Downloaded,
			"no_scene":   summary.NoScene,
			"failed":     summary.Failed,
		})
		if summary.Failed > 0 {
			exitCode = 1
		}

		if ctx.Err() != nil {
			slog.Warn("interrupted, stopping")
			exitCode = 1
			break
		}
	}

	os.Exit(exitCode)
}
