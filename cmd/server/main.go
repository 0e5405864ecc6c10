package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-booking-core/internal/booking"
	"github.com/iliyamo/ticket-booking-core/internal/config"
	"github.com/iliyamo/ticket-booking-core/internal/database"
	"github.com/iliyamo/ticket-booking-core/internal/handler"
	"github.com/iliyamo/ticket-booking-core/internal/inventory"
	"github.com/iliyamo/ticket-booking-core/internal/issuer"
	"github.com/iliyamo/ticket-booking-core/internal/ledger"
	"github.com/iliyamo/ticket-booking-core/internal/lock"
	"github.com/iliyamo/ticket-booking-core/internal/metrics"
	"github.com/iliyamo/ticket-booking-core/internal/middleware"
	"github.com/iliyamo/ticket-booking-core/internal/payment"
	"github.com/iliyamo/ticket-booking-core/internal/publisher"
	"github.com/iliyamo/ticket-booking-core/internal/queue"
	"github.com/iliyamo/ticket-booking-core/internal/repository"
	"github.com/iliyamo/ticket-booking-core/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()
	log := newLogger(cfg)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("schema migration failed")
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig(), log)
	if rdb != nil {
		defer rdb.Close()
	}

	locker := newLocker(cfg, rdb, log)
	var claims payment.ClaimStore = repository.NewProofRepo(db)
	if rdb != nil {
		claims = payment.NewRedisClaims(rdb, "proof")
	}

	tickets := repository.NewTicketRepo(db)
	inv := inventory.New(repository.NewEventSeatRepo(db), tickets, locker, log)
	pub := newPublisher(cfg, log)
	defer pub.Close()

	svc := booking.New(booking.Deps{
		Events:    repository.NewEventRepo(db),
		Inventory: inv,
		Verifier:  payment.NewVerifier(cfg.PaymentProofSecret, cfg.PaymentProofIssuer),
		Claims:    claims,
		Ledger:    ledger.New(tickets, inv, log),
		Issuer:    issuer.New(cfg.TicketSigningSecret, nil),
		Publisher: pub,
		Locker:    locker,
		Log:       log,
	})

	if cfg.EventBroker == "rabbitmq" {
		go func() {
			if err := queue.StartAuditConsumer(ctx, cfg.RabbitMQURL, queue.NewAuditLog(cfg.AuditLogDir), log); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("audit consumer stopped")
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(requestLogger(log))
	e.Use(metrics.Middleware())

	router.RegisterRoutes(e, healthChecks(db, rdb))
	router.RegisterPublic(e, handler.NewSeatHandler(svc), middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log))
	router.RegisterCustomer(e, handler.NewBookingHandler(svc), cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterStaff(e, handler.NewStaffHandler(svc), cfg.JWTSecret)
	if cfg.PaymentSimulation {
		signer := payment.NewSigner(cfg.PaymentProofSecret, cfg.PaymentProofIssuer)
		router.RegisterPaymentSimulation(e, handler.NewPaymentSimHandler(signer, cfg.PaymentProofTTL), cfg.JWTSecret)
		log.Warn("payment simulation enabled")
	}

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	log.Info("stopped")
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func newLocker(cfg config.Config, rdb *redis.Client, log logrus.FieldLogger) lock.Locker {
	if cfg.LockBackend != "redis" {
		return lock.NewLocal()
	}
	if rdb == nil {
		log.Fatal("LOCK_BACKEND=redis but redis is unavailable")
	}
	return lock.NewRedis(rdb, "lock", cfg.LockTTL, log)
}

func newPublisher(cfg config.Config, log logrus.FieldLogger) publisher.Publisher {
	switch cfg.EventBroker {
	case "rabbitmq":
		return publisher.NewRabbitMQ(cfg.RabbitMQURL, log)
	case "kafka":
		return publisher.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	default:
		return publisher.Noop{}
	}
}

func healthChecks(db *sql.DB, rdb *redis.Client) map[string]handler.Check {
	checks := map[string]handler.Check{"mysql": db.PingContext}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

// requestLogger forwards echo access lines into logrus.
func requestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}
