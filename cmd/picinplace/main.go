// Command picinplace is the e-paper picture frame daemon.
// Run with --mock to use a simulated panel (no SPI device required).
package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/asetapen/picinplace/internal/api"
	"github.com/asetapen/picinplace/internal/codec"
	"github.com/asetapen/picinplace/internal/config"
	"github.com/asetapen/picinplace/internal/display"
	"github.com/asetapen/picinplace/internal/events"
	"github.com/asetapen/picinplace/internal/frame"
	"github.com/asetapen/picinplace/internal/models"
	"github.com/asetapen/picinplace/internal/store"
	"github.com/asetapen/picinplace/internal/zeroconf"
)

//go:embed web/index.html
var webFiles embed.FS

func main() {
	var (
		mock    = flag.Bool("mock", false, "use mock display driver (no SPI device required)")
		addr    = flag.String("addr", ":8000", "HTTP listen address")
		dataDir = flag.String("data-dir", "", "data directory (default: ~/.config/picinplace)")
		debug   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	// Configure logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Resolve data directory
	if *dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Error("cannot determine home directory", "err", err)
			os.Exit(1)
		}
		*dataDir = filepath.Join(home, ".config", "picinplace")
	}
	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		slog.Error("cannot create data directory", "path", *dataDir, "err", err)
		os.Exit(1)
	}

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Display driver
	var drv display.Driver
	if *mock {
		slog.Info("using mock display driver")
		drv = display.NewMock()
	} else {
		slog.Info("using SPI e-paper display driver")
		var err error
		drv, err = newPanel()
		if err != nil {
			slog.Error("display driver unavailable", "err", err)
			os.Exit(1)
		}
	}
	if err := drv.Init(ctx); err != nil {
		slog.Error("display initialization failed", "err", err)
		os.Exit(1)
	}

	// Image store
	c := codec.New(models.DisplayWidth, models.DisplayHeight)
	imagesDir := filepath.Join(*dataDir, "images")
	st, err := store.New(imagesDir, c, models.DefaultConfig().MaxImages)
	if err != nil {
		slog.Error("image store initialization failed", "err", err)
		os.Exit(1)
	}

	// Config store
	cfgStore := config.NewJSONStore(*dataDir)

	// Event bus
	bus := events.NewBus()

	// Controller
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "picinplace"
	}
	port := 8000
	if parts := strings.SplitN(*addr, ":", 2); len(parts) == 2 && parts[1] != "" {
		if p, err := strconv.Atoi(parts[1]); err == nil {
			port = p
		}
	}
	uiURL := fmt.Sprintf("http://%s.local", hostname)
	if port != 80 {
		uiURL = fmt.Sprintf("http://%s.local:%d", hostname, port)
	}

	ctrl, err := frame.New(st, drv, cfgStore, bus, uiURL)
	if err != nil {
		slog.Error("controller initialization failed", "err", err)
		os.Exit(1)
	}
	if err := ctrl.Start(ctx); err != nil {
		slog.Error("image scan failed", "dir", imagesDir, "err", err)
		os.Exit(1)
	}

	// Reload config when config.json is edited out-of-band
	go cfgStore.Watch(ctx, ctrl.ReloadConfig)

	// Zeroconf mDNS registration
	zc := zeroconf.New(hostname, port)
	go func() {
		if err := zc.Start(ctx); err != nil {
			slog.Warn("zeroconf failed", "err", err)
		}
	}()

	// HTTP server
	router := api.NewRouter(ctrl, bus)

	// Add the control UI
	webFS, err := fs.Sub(webFiles, "web")
	if err != nil {
		slog.Error("failed to load web files", "err", err)
		os.Exit(1)
	}
	router.(*chi.Mux).Handle("/*", http.FileServer(http.FS(webFS)))

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout (needed for SSE)
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("picinplace listening", "addr", *addr, "mock", *mock, "data", *dataDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the cycling loop; a refresh in flight is allowed to finish.
	ctrl.Shutdown()

	// Graceful HTTP shutdown
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}

	slog.Info("shutdown complete")
}
