// Command ride-report runs the bike tracker backend: the device
// ingestion callback, the read API and the migrate subcommand.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/ride.report/internal/api"
	"github.com/banshee-data/ride.report/internal/config"
	"github.com/banshee-data/ride.report/internal/db"
	"github.com/banshee-data/ride.report/internal/ingest"
	"github.com/banshee-data/ride.report/internal/segment"
	"github.com/banshee-data/ride.report/internal/strava"
	"github.com/banshee-data/ride.report/internal/timeutil"
	"github.com/banshee-data/ride.report/internal/version"
)

var (
	addr        = flag.String("addr", "", "HTTP listen address (default :8080)")
	dbPath      = flag.String("db", "", "Path to database file (default: ride.db)")
	tuningPath  = flag.String("config", "", "Path to tuning JSON file")
	envFile     = flag.String("env", "", "Path to .env file (default: ./.env if present)")
	devMode     = flag.Bool("dev", false, "Run in dev mode (on-disk migrations)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("ride-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *devMode {
		db.DevMode = true
	}

	cfg, err := config.Load(*envFile, *tuningPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	// Subcommand dispatch: 'ride-report migrate up' and friends manage
	// the schema without starting the server.
	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "migrate":
			db.RunMigrateCommand(args[1:], cfg.DBPath)
			return
		default:
			log.Fatalf("Unknown command: %s", args[0])
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	clock := timeutil.RealClock{}
	engine := segment.NewEngine(cfg.InactivityThreshold)
	ingestSvc := ingest.NewService(database, engine, cfg.DeviceID, cfg.Scales, clock)

	var uploader api.Uploader
	if cfg.StravaEnabled() {
		uploader = strava.NewClient(nil, database, cfg.StravaClientID, cfg.StravaClientSecret, clock)
	} else {
		log.Print("strava credentials not configured; uploads disabled")
	}

	mux := api.NewServer(database, cfg, ingestSvc, uploader, clock).ServeMux()
	database.AttachAdminRoutes(mux)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.LoggingMiddleware(mux),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("ride.report %s listening on %s (threshold %v, timezone %s)",
			version.Version, cfg.Addr, cfg.InactivityThreshold, cfg.Timezone)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
