package main

// @title TC API
// @version 1.0
// @description Retrieval and memory context service for local and hosted chat agents

// @contact.name API Support
// @contact.url https://github.com/RuFFyGTLP/TC

// @license.name MIT

// @host localhost:8080
// @BasePath /
// @schemes http

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RuFFyGTLP/TC/config"
	"github.com/RuFFyGTLP/TC/pkg/logger"
	"github.com/RuFFyGTLP/TC/pkg/telemetry/tracing"
	"github.com/RuFFyGTLP/TC/pkg/version"
)

type options struct {
	configPath  string
	envFile     string
	port        int
	logLevel    string
	debug       bool
	storage     string
	printConfig bool
	version     bool
	help        bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "Path to configuration file (yaml, json or toml)")
	fs.StringVar(&o.envFile, "env-file", "", "Path to a .env file with provider settings")
	fs.IntVar(&o.port, "port", 0, "Override server port")
	fs.StringVar(&o.logLevel, "log-level", "", "Override log level")
	fs.BoolVar(&o.debug, "debug", false, "Enable debug mode")
	fs.StringVar(&o.storage, "storage", "", "Override storage backend (noop, memory, badger, redis, sqlite)")
	fs.BoolVar(&o.printConfig, "print-config", false, "Print the effective configuration and exit")
	fs.BoolVar(&o.version, "version", false, "Print version information")
	fs.BoolVar(&o.help, "help", false, "Print help information")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// overrides maps the command line flags to config keys.
func (o *options) overrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if o.port != 0 {
		overrides["server.port"] = o.port
	}
	if o.logLevel != "" {
		overrides["log.level"] = o.logLevel
	}
	if o.debug {
		overrides["app.debug"] = true
	}
	if o.storage != "" {
		overrides["storage.type"] = o.storage
	}

	return overrides
}

func (o *options) loader() *config.Loader {
	var opts []config.LoaderOption
	if o.envFile != "" {
		opts = append(opts, config.WithEnvFile(o.envFile))
	}
	return config.NewLoader(opts...)
}

func newLogger(cfg *config.Config) logger.Logger {
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug {
		logCfg.Level = logger.DebugLevel
	}
	return logger.New(logCfg)
}

func main() {
	fs := flag.NewFlagSet("tc", flag.ExitOnError)
	opts, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	os.Exit(run(opts, fs, os.Stdout, os.Stderr))
}

func run(opts *options, fs *flag.FlagSet, stdout, stderr io.Writer) int {
	// Print help
	if opts.help {
		printHelp(fs, stdout)
		return 0
	}

	// Print version
	if opts.version {
		printVersion(stdout)
		return 0
	}

	// Load configuration
	loader := opts.loader()
	cfg, err := loader.Load(opts.configPath, opts.overrides())
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration:\n%s\n", err)
		return 1
	}

	if opts.printConfig {
		if err := config.Dump(cfg, stdout, "yaml"); err != nil {
			fmt.Fprintf(stderr, "Failed to print configuration: %v\n", err)
			return 1
		}
		return 0
	}

	log := newLogger(cfg)
	logger.SetGlobal(log)
	defer log.Close()

	log.Info("Starting TC",
		"version", version.Get().Version,
		"buildTime", version.Get().BuildTime,
		"gitCommit", version.Get().GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Get().Version,
		tracing.WithLogger(log), tracing.WithEnvironment(cfg.App.Environment))
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tcancel()
		if err := shutdownTracing(tctx); err != nil {
			log.Error("Error shutting down tracing", "error", err)
		}
	}()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize service", "error", err)
		return 1
	}
	log.Info("Initialized storage", "type", cfg.Storage.Type)

	// Start metrics server if enabled
	if a.metrics.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := a.metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	a.load(ctx)

	if cfg.Models.AutoRefresh {
		a.detector.Start(ctx)
	} else {
		go a.detector.Detect(ctx)
	}

	// Hot reload needs a file to watch.
	if opts.configPath != "" {
		watcher, err := config.NewWatcher(opts.configPath, loader,
			config.WithWatcherLogger(log), config.WithOverrides(opts.overrides()))
		if err != nil {
			log.Warn("Config watcher disabled", "error", err)
		} else {
			applied := config.ExtractHotReloadable(cfg)
			updates := make(chan *config.Config, 1)
			watcher.OnChange(func(next *config.Config) {
				select {
				case updates <- next:
				case <-ctx.Done():
				}
			})
			go func() {
				for {
					select {
					case next := <-updates:
						applied = a.applyConfig(applied, next)
					case <-ctx.Done():
						return
					}
				}
			}()
			go func() {
				if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("Config watcher stopped", "error", err)
				}
			}()
			defer func() { _ = watcher.Stop() }()
		}
	}

	// Start HTTP server in a separate goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := a.server.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("TC is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
		"storage", cfg.Storage.Type,
	)

	// Wait for shutdown signal or server error
	exit := 0
	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
		exit = 1
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	log.Info("Shutting down")
	a.close(shutdownCtx)
	cancel()

	log.Info("TC stopped gracefully")
	return exit
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "TC - Agent Context Service\n")
	b := version.Get()
	fmt.Fprintf(w, "Version:    %s\n", b.Version)
	fmt.Fprintf(w, "Build Time: %s\n", b.BuildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", b.GitCommit)
	fmt.Fprintf(w, "Go Version: %s\n", b.GoVersion)
}

func printHelp(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, "TC - Retrieval and memory context service for chat agents\n\n")
	fmt.Fprintf(w, "Usage: tc [options]\n\n")
	fmt.Fprintf(w, "Options:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  tc                                   # Run with default config\n")
	fmt.Fprintf(w, "  tc -config config.yaml               # Use specific config file\n")
	fmt.Fprintf(w, "  tc -storage sqlite -env-file .env    # Persist to SQLite, keys from .env\n")
	fmt.Fprintf(w, "  tc -print-config                     # Print the effective configuration\n")
	fmt.Fprintf(w, "  tc -version                          # Print version info\n")
}
