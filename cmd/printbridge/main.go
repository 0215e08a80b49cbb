// Command printbridge accepts print jobs over HTTP and WebSocket and sends
// them to one ESC/POS receipt printer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlexStarov/escpos-print-bridge/bridge"
	"github.com/AlexStarov/escpos-print-bridge/config"
	"github.com/AlexStarov/escpos-print-bridge/log"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (overrides "+config.FileEnv+")")
	flag.Parse()

	getenv := os.Getenv
	if *configPath != "" {
		getenv = func(key string) string {
			if key == config.FileEnv {
				return *configPath
			}
			return os.Getenv(key)
		}
	}

	if err := run(getenv); err != nil {
		fmt.Fprintln(os.Stderr, "printbridge:", err)
		os.Exit(1)
	}
}

func run(getenv func(string) string) error {
	cfg, err := config.Load(getenv)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, closer, err := log.New(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Dir: cfg.Log.Dir})
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	svc, err := bridge.NewService(cfg, logger.With("src", "service"))
	if err != nil {
		return err
	}
	srv := bridge.NewServer(svc, cfg.Server, logger.With("src", "server"))

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", cfg.Server.ListenAddr,
			"tls", cfg.TLS(),
			"printer", svc.Dialer.Addr(),
			"link", cfg.Printer.Link,
		)
		if cfg.TLS() {
			errc <- httpServer.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			errc <- httpServer.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// in-flight jobs get the copy timeout for every copy they may still send
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Printer.Timeout*time.Duration(cfg.Print.MaxCopies)+5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
