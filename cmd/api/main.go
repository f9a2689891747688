package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dialer-platform/internal/analytics"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/bridge"
	"dialer-platform/internal/config"
	"dialer-platform/internal/disposition"
	"dialer-platform/internal/gateway"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/lookup"
	"dialer-platform/internal/notify"
	"dialer-platform/internal/outcome"
	"dialer-platform/internal/session"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Agent notification fan-out. Without a broker URL events are published
	// to an in-process mock, which keeps local runs broker-free.
	var pub notify.Publisher
	if cfg.MQTT.BrokerURL != "" {
		pub, err = notify.NewMQTTPublisher(notify.MQTTOptions{Broker: cfg.MQTT.BrokerURL, ClientID: cfg.MQTT.ClientID})
		if err != nil {
			log.Error("mqtt init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("MQTT_BROKER_URL not set, agent notifications stay in-process")
		pub = notify.NewMockPublisher()
	}
	bus := notify.NewBus(pub, notify.BusOptions{TopicPrefix: cfg.MQTT.TopicPrefix, Logger: log})
	bus.Start(rootCtx)
	defer bus.Close()

	// Session orchestration core.
	store := session.NewStore(session.NewPostgresRepo(db))
	resolver := lookup.NewResolver(lookup.NewPostgresContacts(db), lookup.NewRedisDialIndex(rdb), cfg.Dialer.CallbackWindow)

	var carrier telephony.Carrier
	if cfg.Carrier.AccountSID != "" {
		carrier = telephony.NewHTTPCarrier(cfg.Carrier)
	} else {
		log.Warn("carrier credentials not set, using in-memory carrier")
		carrier = telephony.NewMemoryCarrier()
	}

	coordinator := bridge.NewCoordinator(store, carrier, bridge.NewRedisSlots(rdb, 0), bus, resolver, bridge.Options{
		JoinDelay:         cfg.Dialer.AgentJoinDelay,
		StatusCallbackURL: cfg.Carrier.CallbackURL,
		OutboundCallerID:  cfg.Dialer.OutboundCallerID,
	})
	gw := gateway.NewService(store, resolver, bus, coordinator, cfg.Dialer)

	engine := outcome.NewEngine(outcome.NewPostgresCatalog(db), outcome.NewPostgresRepo(db))
	recorder := disposition.NewRecorder(store, coordinator, engine, disposition.NewPostgresRepo(db))

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:      authManager,
		Sessions:  store,
		Bridge:    coordinator,
		Recorder:  recorder,
		Analytics: analytics.NewService(outcome.NewPostgresRepo(db)),
	}
	registerRoutes(r, registerDeps{
		handlers: h,
		webhooks: telephony.WebhookHandlers{Gateway: gw},
		authMW:   auth.RequireAccessToken(authManager),
		carrier:  carrier,
		db:       db,
		redis:    rdb,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
