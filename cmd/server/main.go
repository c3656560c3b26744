package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/booking"
	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/locations"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/storage"
	"github.com/example/ride-dispatch/internal/ws"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var (
		rideStore    storage.RideStore
		noteStore    storage.NotificationStore
		bookingStore booking.Store
	)
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.DB().Close()
		if cfg.RunMigrations {
			if err := runMigrations(pg.DB()); err != nil {
				logger.Error("migrations failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		rideStore = pg
		noteStore = pg
		bookingStore = booking.NewPostgresStore(pg.DB())
	} else {
		mem := storage.NewMemoryStore()
		rideStore = mem
		noteStore = mem
		bookingStore = booking.NewMemoryStore()
		logger.Info("no PG_DSN set, using in-memory stores")
	}

	registry := presence.NewRegistry(cfg.PresenceGracePeriod)
	defer registry.Close()

	hub := ws.NewHub()

	var publisher notify.Publisher
	if cfg.AMQPURL != "" {
		amqpPub, err := notify.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			logger.Error("rabbitmq unavailable", "error", err)
			os.Exit(1)
		}
		defer amqpPub.Close()
		publisher = amqpPub
	}
	relay := notify.NewRelay(noteStore, publisher, hub, logging.NewComponentLogger(cfg.LogLevel, "notify"))

	var pay lifecycle.Payments
	if sc := payments.NewStripeClient(); sc != nil {
		pay = sc
		logger.Info("stripe payments enabled")
	}

	engine := lifecycle.NewEngine(rideStore, registry, relay, pay, logging.NewComponentLogger(cfg.LogLevel, "lifecycle"))
	allocator := booking.NewAllocator(bookingStore, logging.NewComponentLogger(cfg.LogLevel, "booking"))
	dispatcher := dispatch.NewDispatcher(registry, relay, hub, logging.NewComponentLogger(cfg.LogLevel, "dispatch"))

	var producer *ingest.LocationProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewLocationProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}
	var producerPort httpapi.LocationPublisher
	if producer != nil {
		producerPort = producer
	}
	var gatewayProducer ws.LocationPublisher
	if producer != nil {
		gatewayProducer = producer
	}

	var mirror *locations.RedisMirror
	if cfg.RedisAddr != "" {
		mirror = locations.NewRedisMirror(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		defer mirror.Close()
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	gateway := ws.NewGateway(hub, registry, engine, dispatcher, verifier, gatewayProducer, logging.NewComponentLogger(cfg.LogLevel, "ws"))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(engine, allocator, dispatcher, registry, gateway, producerPort, mirror, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}

// runMigrations applies every migrations/*.sql file in filename order.
// The statements are idempotent (CREATE TABLE IF NOT EXISTS) so
// re-running on boot is safe.
func runMigrations(db *sql.DB) error {
	files, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(b)); err != nil {
			return err
		}
	}
	return nil
}
