package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"

	"github.com/totegamma/ojstore/internal/config"
	"github.com/totegamma/ojstore/internal/infra/cache"
	"github.com/totegamma/ojstore/internal/infra/database"
	"github.com/totegamma/ojstore/internal/infra/repository"
	"github.com/totegamma/ojstore/internal/present/rest"
	"github.com/totegamma/ojstore/internal/service"
	"github.com/totegamma/ojstore/internal/usecase"
)

const serviceName = "ojstore"

func main() {
	path := os.Getenv("OJSTORE_CONFIG")
	if path == "" {
		path = "config.yaml"
	}

	conf, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", path), slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.SetDefault(newLogger(conf))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if conf.Server.EnableTrace {
		cleanup, err := setupTraceProvider(ctx, conf.Server.TraceEndpoint)
		if err != nil {
			slog.Error("failed to setup tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer cleanup()
	}

	db, err := openDatabase(conf)
	if err != nil {
		slog.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("failed to get database handle", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sqlDB.Close()

	readCache, err := newCache(conf)
	if err != nil {
		slog.Error("failed to setup cache", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var publisher usecase.Publisher = service.NopPublisher{}
	if conf.Server.RedisAddr != "" {
		rdb, err := database.NewRedis(ctx, conf.Server.RedisAddr, conf.Server.RedisDB)
		if err != nil {
			slog.Error("failed to connect redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rdb.Close()
		publisher = service.NewSignalService(rdb)
	}

	store := repository.NewStore(db, readCache, conf.ToDomain())
	features := rest.Features{
		Contests:    usecase.NewContestUsecase(store.Documents, store.Statuses, publisher, nil),
		Discussions: usecase.NewDiscussionUsecase(store.Documents, store.Statuses, publisher),
		Problems:    usecase.NewProblemUsecase(store.Documents, store.Statuses, publisher),
		Userfiles:   usecase.NewUserfileUsecase(store.Documents, store.Statuses, publisher),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	rest.NewHandler(store.Documents, store.Statuses, features, sqlDB).RegisterRoutes(e)

	go func() {
		slog.Info("listening", slog.String("addr", conf.Server.Listen))
		if err := e.Start(conf.Server.Listen); err != nil && err != http.ErrServerClosed {
			slog.Error("server stopped", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
}

func newLogger(conf config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: conf.LogLevel()}
	if conf.Store.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func openDatabase(conf config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	if conf.Server.SqlitePath != "" {
		db, err = database.NewSqlite(conf.Server.SqlitePath)
	} else {
		db, err = database.NewPostgres(conf.Server.PostgresDsn)
	}
	if err != nil {
		return nil, err
	}
	return db, database.Migrate(db)
}

func newCache(conf config.Config) (cache.Cache, error) {
	ttl := conf.ToDomain().CacheTTL
	switch conf.Store.CacheMode {
	case config.CacheMemcached:
		mc, err := database.NewMemcached(conf.Server.MemcachedAddr)
		if err != nil {
			return nil, err
		}
		return cache.NewMemcached(mc, ttl), nil
	case config.CacheLocal:
		return cache.NewLocal(ttl), nil
	default:
		return cache.Nop{}, nil
	}
}

func setupTraceProvider(ctx context.Context, endpoint string) (func(), error) {
	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", slog.String("error", err.Error()))
		}
	}, nil
}
