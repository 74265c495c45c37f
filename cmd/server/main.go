package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/movie-ticket-booking/internal/config"
	"github.com/iliyamo/movie-ticket-booking/internal/database"
	"github.com/iliyamo/movie-ticket-booking/internal/handler"
	"github.com/iliyamo/movie-ticket-booking/internal/inventory"
	"github.com/iliyamo/movie-ticket-booking/internal/logger"
	"github.com/iliyamo/movie-ticket-booking/internal/middleware"
	"github.com/iliyamo/movie-ticket-booking/internal/queue"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
	"github.com/iliyamo/movie-ticket-booking/internal/repository/filestore"
	"github.com/iliyamo/movie-ticket-booking/internal/repository/mongostore"
	"github.com/iliyamo/movie-ticket-booking/internal/repository/mysqlstore"
	"github.com/iliyamo/movie-ticket-booking/internal/router"
	"github.com/iliyamo/movie-ticket-booking/internal/service"
)

func main() {
	// a missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	log := logger.Setup(cfg.Env, cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	repos, err := openStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.StorageDriver, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repos.Close(closeCtx); err != nil {
			log.WithError(err).Warn("close storage")
		}
	}()

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		events = service.NewRabbitPublisher(cfg.RabbitURL, log)
	}

	inv := inventory.NewManager(repos.Inventory, inventory.WithLogger(log))
	bookings := service.NewBookingService(repos, inv,
		service.WithCancellationWindow(cfg.CancellationWindow),
		service.WithEvents(events),
		service.WithLogger(log),
	)
	catalog := service.NewCatalogService(repos, log)
	seats := service.NewSeatService(repos.Theaters, inv)

	rl := config.LoadRateLimitConfig()
	e := router.New(router.Deps{
		Cfg:       cfg,
		Log:       log,
		Ping:      repos.Ping,
		Auth:      handler.NewAuthHandler(cfg, repos.Users, log),
		Catalog:   handler.NewCatalogHandler(catalog, log),
		Bookings:  handler.NewBookingHandler(bookings, log),
		Screens:   handler.NewScreenHandler(seats, log),
		Cache:     middleware.NewCache(config.LoadCacheConfig(), rdb, log),
		RateLimit: rl,
		Limiter:   middleware.NewLimiter(rl, rdb, log),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "storage": cfg.StorageDriver}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if cfg.EventsEnabled {
		consumer := queue.NewConsumer(cfg.RabbitURL, cfg.BookingLogPath, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	return g.Wait()
}

// openStorage connects the backend named by STORAGE_DRIVER.
func openStorage(ctx context.Context, cfg config.Config, log *logrus.Logger) (repository.Repositories, error) {
	switch cfg.StorageDriver {
	case config.StorageMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return repository.Repositories{}, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return repository.Repositories{}, fmt.Errorf("migrate: %w", err)
		}
		return mysqlstore.Repositories(db), nil
	case config.StorageMongo:
		db, err := database.OpenMongo(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return repository.Repositories{}, err
		}
		store, err := mongostore.New(ctx, db)
		if err != nil {
			_ = db.Client().Disconnect(context.Background())
			return repository.Repositories{}, err
		}
		return store.Repositories(), nil
	default:
		store, err := filestore.Open(cfg.DataDir, log)
		if err != nil {
			return repository.Repositories{}, err
		}
		return store.Repositories(), nil
	}
}
