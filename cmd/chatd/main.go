package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gochatd/pkg/admin"
	"gochatd/pkg/config"
	"gochatd/pkg/health"
	"gochatd/pkg/logger"
	"gochatd/pkg/presence"
	"gochatd/pkg/rooms"
	"gochatd/pkg/server"
	"gochatd/pkg/store"
)

func main() {
	// Parse command line flags
	addr := flag.String("addr", "", "Chat listener address (overrides config)")
	gatewayAddr := flag.String("gateway-addr", "", "WebSocket gateway address (empty disables)")
	adminAddr := flag.String("admin-addr", "", "Admin API address (empty disables)")
	configPath := flag.String("config", "", "Config file path (optional)")
	dbType := flag.String("db-type", "", "Database backend: sqlite or mysql")
	dbPath := flag.String("db-path", "", "Database file path (sqlite) or DSN (mysql)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "Log format: text or json")
	flag.Parse()

	// Load configuration (defaults, then file, then env)
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Init(logger.InfoLevel, "text")
		logger.Get().ErrorWithErr("failed to load configuration", err)
		os.Exit(1)
	}

	// Command-line flags win over file and env
	if *addr != "" {
		cfg.ChatAddress = *addr
	}
	if *gatewayAddr != "" {
		cfg.GatewayAddress = *gatewayAddr
	}
	if *adminAddr != "" {
		cfg.AdminAddress = *adminAddr
	}
	if *dbType != "" {
		cfg.Database.Type = *dbType
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	logger.Init(logger.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		log.ErrorWithErr("invalid configuration", err)
		os.Exit(1)
	}

	log.Info("configuration loaded", "config", cfg.String())

	st, err := store.NewStore(cfg.Database)
	if err != nil {
		log.ErrorWithErr("failed to open store", err)
		os.Exit(1)
	}
	defer st.Close()

	pr := presence.NewRegistry()
	rm := rooms.NewRegistry()
	srv := server.New(cfg.ChatAddress, st, pr, rm)

	errorChan := make(chan error, 3)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			errorChan <- err
		}
	}()

	var gateway *server.Gateway
	if cfg.GatewayAddress != "" {
		gateway = server.NewGateway(cfg.GatewayAddress, srv)
		go func() {
			if err := gateway.ListenAndServe(); err != nil {
				errorChan <- err
			}
		}()
	}

	var adminSrv *admin.Server
	if cfg.AdminAddress != "" {
		api := admin.NewAPI(st, pr, rm, health.NewMonitor())
		adminSrv = admin.NewServer(cfg.AdminAddress, api)
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil {
				errorChan <- err
			}
		}()
	}

	// Wait for shutdown signal or a fatal listener error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-sigChan:
		log.Info("received signal", "signal", sig.String())
	case err := <-errorChan:
		log.ErrorWithErr("server error", err)
	}

	log.Info("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if adminSrv != nil {
		if err := adminSrv.Shutdown(ctx); err != nil {
			log.ErrorWithErr("admin shutdown error", err)
		}
	}
	if gateway != nil {
		if err := gateway.Shutdown(ctx); err != nil {
			log.ErrorWithErr("gateway shutdown error", err)
		}
	}
	srv.Shutdown()

	log.Info("server stopped")
}
