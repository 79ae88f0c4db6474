package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/labstack/echo/v4"
	"github.com/manager-data-agent/backend/internal/api"
	"github.com/manager-data-agent/backend/internal/assistant"
	"github.com/manager-data-agent/backend/internal/config"
	"github.com/manager-data-agent/backend/internal/conversation"
	"github.com/manager-data-agent/backend/internal/dataset"
	"github.com/manager-data-agent/backend/internal/logging"
	"github.com/manager-data-agent/backend/internal/storage"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const banner = `
    ┌─┐┌┐┌┌─┐┬ ┬ ┬┌─┐┌┬┐
    ├─┤│││├─┤│ └┬┘└─┐ │
    ┴ ┴┘└┘┴ ┴┴─┘┴ └─┘ ┴  manager / analyst
`

func main() {
	if err := run(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// configPath returns CONFIG_PATH, or config.yaml next to the executable.
func configPath() (string, error) {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), "config.yaml"), nil
}

func run() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	closeLog := logging.Init(cfg.Logging)
	defer closeLog()
	log := logging.For("server")

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	loader, err := dataset.NewLoader(dataset.Options{
		Threads:     cfg.DuckDB.Threads,
		MemoryLimit: cfg.DuckDB.MemoryLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize dataset engine: %w", err)
	}
	defer loader.Close()

	capability, err := assistant.New(cfg.Assistant, loader)
	if err != nil {
		return fmt.Errorf("failed to initialize analysis capability: %w", err)
	}

	router := conversation.NewRouter(
		loader,
		storage.NewResolver(fileStore, cfg.GetDataDir(), cfg.Dataset.RestrictPaths),
		capability,
		conversation.Options{
			PreviewRows:     cfg.Dataset.PreviewRows,
			FileDescription: cfg.Dataset.Description,
			StrictStage:     cfg.Conversation.StrictStage,
		},
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, cfg.Server)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:     fileStore,
		Router:    router,
		Inspector: loader,
		Config:    cfg,
		Version:   Version,
	}))

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(path, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func printBanner(configPath string, cfg *config.AppConfig) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray.Printf("    version: %s (built %s)\n\n", Version, BuildTime)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:    http://%s\n", cfg.GetServerAddr())
	green.Print("    ▶ ")
	fmt.Printf("Data Dir:  %s\n", cfg.GetDataDir())
	green.Print("    ▶ ")
	fmt.Printf("Provider:  %s (%s)", cfg.Assistant.Provider, cfg.Assistant.Model)
	if cfg.Assistant.RunCode {
		yellow.Print(" [run_sql]")
	}
	fmt.Println()
	if cfg.Dataset.RestrictPaths {
		green.Print("    ▶ ")
		fmt.Println("Paths:     restricted to data dir")
	}
	fmt.Println()
}
