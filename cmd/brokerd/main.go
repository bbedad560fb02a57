package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sparrowmqtt/broker/internal/auth"
	"github.com/sparrowmqtt/broker/internal/broker"
	"github.com/sparrowmqtt/broker/internal/config"
	"github.com/sparrowmqtt/broker/internal/logger"
	"github.com/sparrowmqtt/broker/internal/statusapi"
	"github.com/sparrowmqtt/broker/internal/transport"
)

func gracefulShutdown(cancel context.CancelFunc, httpSrv *http.Server, done chan struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Println("graceful shutdown triggered")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Println(err)
	}
	time.Sleep(500 * time.Millisecond)

	close(done)
}

func main() {
	cfgPath := "config.yml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Panicf("failed to load config from %s: %v", cfgPath, err)
	}

	logger.InitGlobalLogger(logger.ProductionConfig())
	lg := logger.GetGlobalLogger()

	var authStore *auth.Store
	if cfg.Auth.StorePath != "" {
		db, err := sql.Open("sqlite3", cfg.Auth.StorePath)
		if err != nil {
			log.Panicf("failed to open credential store: %v", err)
		}
		authStore = auth.New(db)
		if err := authStore.EnsureSchema(); err != nil {
			log.Panicf("failed to prepare credential store schema: %v", err)
		}
	}

	brokerCfg := broker.Config{
		QoSTimeout:         cfg.Broker.QoSTimeout(),
		MaxQoSRetries:      cfg.Broker.MaxQoSRetries,
		MessageLogCapacity: cfg.Broker.MessageLogCapacity,
		MaxSessions:        cfg.Broker.MaxSessions,
		WifiSSID:           cfg.Server.WifiSSID,
		WifiIP:             cfg.Server.WifiIP,
	}
	// Guard against the typed-nil-interface trap: a nil *auth.Store must
	// leave Authenticator as a true nil interface, not a non-nil interface
	// wrapping a nil pointer.
	if authStore != nil {
		brokerCfg.Authenticator = authStore
	}
	brk := broker.New(brokerCfg, lg)

	ctx, cancel := context.WithCancel(context.Background())

	srv := transport.New(":"+cfg.Server.MQTTPort, brk, lg, cfg.Broker.MaxSessions)
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("mqtt server error: %v", err)
		}
	}()
	log.Printf("mqtt broker listening on :%s\n", cfg.Server.MQTTPort)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Server.HTTPPort,
		Handler: statusapi.New(brk, lg).Mux(),
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("status server error: %v", err)
		}
	}()
	log.Printf("status endpoint listening on :%s\n", cfg.Server.HTTPPort)

	done := make(chan struct{}, 1)
	go gracefulShutdown(cancel, httpSrv, done)

	<-done
	log.Println("graceful shutdown complete")
}
