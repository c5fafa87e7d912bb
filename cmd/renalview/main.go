package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/renalview/renalview/internal/config"
	"github.com/renalview/renalview/internal/db"
	"github.com/renalview/renalview/internal/importer"
	"github.com/renalview/renalview/internal/server"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const (
	watcherDebounce = 500 * time.Millisecond
	shutdownTimeout = 10 * time.Second
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "seed":
			runSeed(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("renalview %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`renalview %s - clinical reporting backend

Serves windowed dashboard statistics and patient visit histories
over a local HTTP API, backed by SQLite. Clinical data arrives as
JSON bundles dropped into the bundle directory.

Usage:
  renalview [flags]          Start the server (default command)
  renalview serve [flags]    Start the server (explicit)
  renalview seed [flags]     Import all bundles from the bundle dir
  renalview version          Show version information
  renalview help             Show this help

Server flags:
  -host string        Host to bind to (default "127.0.0.1")
  -port int           Port to listen on (default 8080)
  -data-dir string    Data directory (database, config)
  -bundle-dir string  Directory watched for JSON bundles
  -no-watch           Don't watch the bundle directory

Environment variables:
  RENALVIEW_DATA_DIR     Data directory (database, config)
  RENALVIEW_BUNDLE_DIR   Bundle directory
  RENALVIEW_HOST         Host to bind to
  RENALVIEW_PORT         Port to listen on

Data is stored in ~/.renalview/ by default.
`, version)
}

func runServe(args []string) {
	cfg := mustLoadConfig(args)
	database := mustOpenDB(cfg)
	defer database.Close()

	im := importer.New(database)

	if cfg.WatchBundles {
		stopWatcher := startBundleWatcher(cfg, im)
		defer stopWatcher()
	}

	port := server.FindAvailablePort(cfg.Host, cfg.Port)
	if port != cfg.Port {
		fmt.Printf("Port %d in use, using %d\n", cfg.Port, port)
	}
	cfg.Port = port

	srv := server.New(cfg, database,
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
	)

	fmt.Printf("renalview %s listening at http://%s:%d\n",
		version, cfg.Host, cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case s := <-sig:
		log.Printf("received %s, shutting down", s)
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func runSeed(args []string) {
	cfg := mustLoadConfig(args)
	database := mustOpenDB(cfg)
	defer database.Close()

	fmt.Printf("Importing bundles from %s...\n", cfg.BundleDir)
	n, err := importer.New(database).ImportDir(cfg.BundleDir)
	if err != nil {
		log.Fatalf("importing bundles: %v", err)
	}
	fmt.Printf("Imported %d bundles\n", n)
}

func mustLoadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("renalview", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: renalview [serve|seed] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	return cfg
}

func mustOpenDB(cfg config.Config) *db.DB {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	return database
}

func startBundleWatcher(
	cfg config.Config, im *importer.Importer,
) func() {
	onChange := func(paths []string) {
		for _, path := range paths {
			if err := im.ImportFile(path); err != nil {
				log.Printf("importing %s: %v", path, err)
			}
		}
	}
	watcher, err := importer.NewWatcher(watcherDebounce, onChange)
	if err != nil {
		log.Printf("warning: bundle watcher unavailable: %v", err)
		return func() {}
	}

	if err := watcher.Watch(cfg.BundleDir); err != nil {
		log.Printf("warning: watching %s: %v", cfg.BundleDir, err)
	}
	watcher.Start()
	return watcher.Stop
}
