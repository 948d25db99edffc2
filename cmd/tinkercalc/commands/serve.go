package commands

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/livetemplate/tinkercalc/internal/config"
	"github.com/livetemplate/tinkercalc/internal/server"
)

// serveOptions holds the parsed serve arguments.
type serveOptions struct {
	dir        string
	configPath string
	port       string
	host       string
	watch      *bool
	debug      bool
}

// parseServeArgs parses serve flags. The first non-flag argument is the
// directory to serve.
func parseServeArgs(args []string) serveOptions {
	opts := serveOptions{dir: "."}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--watch" || arg == "-w" {
			watchVal := true
			opts.watch = &watchVal
		} else if arg == "--no-watch" {
			watchVal := false
			opts.watch = &watchVal
		} else if arg == "--debug" {
			opts.debug = true
		} else if arg == "--port" || arg == "-p" {
			if i+1 < len(args) {
				opts.port = args[i+1]
				i++
			}
		} else if arg == "--host" {
			if i+1 < len(args) {
				opts.host = args[i+1]
				i++
			}
		} else if arg == "--config" || arg == "-c" {
			if i+1 < len(args) {
				opts.configPath = args[i+1]
				i++
			}
		} else if !strings.HasPrefix(arg, "-") {
			// Positional argument (directory)
			opts.dir = arg
		}
	}

	return opts
}

// loadServeConfig loads the configuration for opts and applies flag overrides.
func loadServeConfig(opts serveOptions, absDir string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Printf("📝 Using config: %s\n", opts.configPath)
	} else {
		// Try to load from directory
		cfg, err = config.LoadFromDir(absDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// CLI flags override config
	if opts.port != "" {
		portInt, err := strconv.Atoi(opts.port)
		if err != nil || portInt < 0 || portInt > 65535 {
			return nil, fmt.Errorf("invalid port: %s", opts.port)
		}
		cfg.Server.Port = portInt
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.watch != nil {
		cfg.Features.HotReload = *opts.watch
	}
	if opts.debug {
		cfg.Server.Debug = true
	}

	return cfg, nil
}

// ServeCommand implements the serve command.
func ServeCommand(args []string) error {
	opts := parseServeArgs(args)

	// Check if directory exists
	if _, err := os.Stat(opts.dir); os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", opts.dir)
	}

	// Get absolute path
	absDir, err := filepath.Abs(opts.dir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	cfg, err := loadServeConfig(opts, absDir)
	if err != nil {
		return err
	}

	fmt.Printf("🧮 Tinkercalc Server\n\n")
	fmt.Printf("Serving: %s\n", absDir)
	fmt.Printf("Locale: %s\n", cfg.GetLocale())

	srv, err := server.New(absDir, cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	// Enable watch mode if requested
	if cfg.Features.HotReload {
		if err := srv.EnableWatch(cfg.Server.Debug); err != nil {
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
		fmt.Printf("\n👀 Watch mode enabled - templates and help reload on changes\n")
	}

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("\n🌐 Server running at http://%s\n", addr)
	if cfg.IsAPIEnabled() {
		fmt.Printf("🔌 REST API enabled at /api/calculator/sessions\n")
		if cfg.API.IsAuthEnabled() {
			fmt.Printf("🔑 API key required (%s header)\n", cfg.API.Auth.GetHeaderName())
		}
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("📈 Metrics at /metrics\n")
	}
	fmt.Printf("⚡ Gzip compression enabled\n")
	fmt.Printf("Press Ctrl+C to stop\n\n")

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		fmt.Printf("\n🛑 Shutting down gracefully...\n")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: HTTP server shutdown error: %v\n", err)
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func init() {
	log.SetFlags(0) // Remove timestamp from logs
}
