package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aldarlabs/voicebridge/src/bridge"
	"github.com/aldarlabs/voicebridge/src/config"
	"github.com/aldarlabs/voicebridge/src/logger"
	"github.com/aldarlabs/voicebridge/src/operator"
	"github.com/aldarlabs/voicebridge/src/tools"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger.Init()
	log := logger.WithPrefix("Main")

	cfg, err := config.Load()
	if err != nil {
		log.Error("Configuration error: %v", err)
		os.Exit(1)
	}

	registry := bridge.NewRegistry()

	dispatcher := tools.NewDispatcher()
	tools.RegisterAldarTools(dispatcher, cfg.AldarBaseAPIURL)

	mux := http.NewServeMux()
	mux.Handle("/media", bridge.NewHandler(cfg, registry, dispatcher))
	mux.Handle("/operator", operator.NewHandler(registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","active_calls":%d}`, len(registry.List()))
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Shutdown did not complete cleanly: %v", err)
	}
}
