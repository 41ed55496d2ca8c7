package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/holodash/comlink/internal/api"
	"github.com/holodash/comlink/internal/config"
	"github.com/holodash/comlink/internal/directory"
	"github.com/holodash/comlink/internal/messagelog"
	"github.com/holodash/comlink/internal/server"
	"github.com/holodash/comlink/internal/stats"
	"github.com/holodash/comlink/internal/store"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	storeURL       string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&storeURL, "store-url", "", "record store URL, e.g. redis://localhost:6379/0 (in-memory store when empty)")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[comlink] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, storeURL, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	var recordStore store.RecordStore
	if cfg.StoreURL == "" {
		logger.Println("no store URL configured, using in-memory record store")
		recordStore = store.NewMemoryStore()
	} else {
		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		rs, err := store.NewRedisStore(connectCtx, cfg.StoreURL)
		cancel()
		if err != nil {
			logger.Fatal("store open:", err)
		}
		recordStore = rs
	}
	defer func() {
		if err := recordStore.Close(); err != nil {
			logger.Println("store close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	dir := directory.NewDirectory(logger, recordStore, statsUpdater)
	msgLog := messagelog.NewLog(logger, recordStore, statsUpdater)

	chatServer, err := server.NewChatServer(logger, dir, msgLog, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewComlinkApp(mux, logger, chatServer, dir, msgLog, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
