// Package server assembles the application: configuration, database,
// external clients, services, HTTP routes and background workers.
package server

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "sync"
    "syscall"
    "time"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/redis/go-redis/v9"

    "github.com/krushi/krushi-api/internal/config"
    "github.com/krushi/krushi-api/internal/database"
    "github.com/krushi/krushi-api/internal/genai"
    "github.com/krushi/krushi-api/internal/handler"
    "github.com/krushi/krushi-api/internal/inference"
    "github.com/krushi/krushi-api/internal/logging"
    "github.com/krushi/krushi-api/internal/middleware"
    "github.com/krushi/krushi-api/internal/queue"
    "github.com/krushi/krushi-api/internal/router"
    "github.com/krushi/krushi-api/internal/service"
    "github.com/krushi/krushi-api/internal/storage"
    "github.com/krushi/krushi-api/internal/utils"
    "github.com/krushi/krushi-api/internal/weather"
)

// App owns every long-lived dependency of the process.
type App struct {
    cfg   config.Config
    log   *logging.SlogLogger
    db    *sql.DB
    redis *redis.Client
    echo  *echo.Echo
    gate  *inference.Gate
    auth  *service.AuthService
    agros *service.AgronomistService
}

// NewApp connects to MySQL (running migrations when enabled), Redis and
// object storage, then builds services and routes.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
    log := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

    db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        return nil, fmt.Errorf("db init error: %w", err)
    }
    if cfg.DBMigrate {
        if err := database.RunMigrations(ctx, db); err != nil {
            _ = db.Close()
            return nil, fmt.Errorf("migrations: %w", err)
        }
    }

    objects, err := storage.NewS3Store(ctx, cfg.Storage)
    if err != nil {
        _ = db.Close()
        return nil, fmt.Errorf("object storage: %w", err)
    }

    rdb := config.NewRedisClient(ctx)
    if rdb == nil {
        log.Warn(ctx, "redis unavailable, rate limiting and response cache disabled")
    }

    app := &App{cfg: cfg, log: log, db: db, redis: rdb}
    app.echo = app.routes(objects)
    return app, nil
}

func (app *App) routes(objects storage.ObjectStore) *echo.Echo {
    cfg, log := app.cfg, app.log
    store := service.NewSQLStore(app.db)
    tokens := utils.NewTokenService(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

    var events service.ReportEvents
    if cfg.AMQPURL != "" {
        events = queue.NewPublisher(cfg.AMQPURL, log)
    }

    client := inference.NewClient(cfg.Inference)
    app.gate = inference.NewGate(client, inference.NewSupervisor(cfg.Inference, log), cfg.Inference, log)
    ai := genai.NewClient(cfg.Gemini)

    app.auth = service.NewAuthService(store, tokens, objects, cfg.Auth, log)
    app.agros = service.NewAgronomistService(store, log)
    detector := service.NewDetector(store, app.gate, client, objects, events, cfg.Inference, log)
    reports := service.NewReportService(store, objects, ai, events, log)
    forecasts := service.NewWeatherService(store, weather.NewClient(cfg.Weather, log), ai, log)

    e := echo.New()
    e.HideBanner = true
    e.Use(echomw.Recover())
    e.Use(echomw.RequestID())
    e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
        AllowOrigins:     cfg.CORSOrigins,
        AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
        AllowCredentials: true,
    }))
    e.Use(echomw.BodyLimit(cfg.BodyLimit))
    e.Use(requestLogger(log))

    auth := middleware.JWTAuth(app.auth)
    limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), app.redis, log)
    cache := middleware.NewRedisCache(config.LoadCacheConfig(), app.redis, log)

    router.RegisterRoutes(e)
    router.RegisterAuth(e, handler.NewAuthHandler(app.auth, log), auth, limiter)
    router.RegisterUsers(e, handler.NewUserHandler(service.NewUserService(store, objects, cfg.Auth, log), log), auth)
    router.RegisterMedia(e, handler.NewMediaHandler(service.NewMediaService(store, objects, log), log), auth)
    router.RegisterAgronomists(e, handler.NewAgronomistHandler(app.agros, log), auth)
    router.RegisterAdmin(e, handler.NewAdminHandler(service.NewAdminService(store, objects, log), log), auth)
    router.RegisterLocations(e, handler.NewLocationHandler(service.NewLocationService(store), log), auth, cache)
    router.RegisterCrops(e, handler.NewCropHandler(service.NewCropService(store), log), auth)
    router.RegisterReports(e, handler.NewReportHandler(detector, reports, cfg.Inference, log), auth)
    router.RegisterWeather(e, handler.NewWeatherHandler(forecasts, weather.NewGeocoder(cfg.Weather), log), auth, cache)
    return e
}

func requestLogger(log logging.Logger) echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogStatus:    true,
        LogMethod:    true,
        LogURI:       true,
        LogLatency:   true,
        LogRequestID: true,
        LogRemoteIP:  true,
        HandleError:  true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            args := []any{"method", v.Method, "uri", v.URI, "status", v.Status,
                "latency", v.Latency.Round(time.Millisecond), "request_id", v.RequestID, "ip", v.RemoteIP}
            if v.Error != nil {
                args = append(args, "error", v.Error)
            }
            if v.Status >= http.StatusInternalServerError {
                log.Error(c.Request().Context(), "request", args...)
            } else {
                log.Info(c.Request().Context(), "request", args...)
            }
            return nil
        },
    })
}

func (app *App) initSignalHandler(cancel context.CancelFunc) {
    sigs := make(chan os.Signal, 1)
    signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
    go func() {
        <-sigs
        cancel()
    }()
}

// Run serves HTTP and the background workers until a termination signal
// arrives or the server fails, then shuts everything down.
func (app *App) Run(ctx context.Context) error {
    ctx, cancel := context.WithCancel(ctx)
    defer cancel()
    app.initSignalHandler(cancel)

    app.log.Info(ctx, "starting krushi-api", "env", app.cfg.Env, "port", app.cfg.Port)

    if err := app.auth.EnsureAdmin(ctx, app.cfg.Admin); err != nil {
        app.log.Error(ctx, "bootstrap admin failed", "error", err)
    }

    var wg sync.WaitGroup
    wg.Add(1)
    go func() {
        defer wg.Done()
        app.auth.RunSessionPurge(ctx, app.cfg.Auth.PurgeInterval)
    }()

    if app.cfg.AMQPURL != "" {
        wg.Add(1)
        go func() {
            defer wg.Done()
            h := queue.NewReportHandler(app.agros, "", app.log)
            if err := queue.StartReportConsumer(ctx, app.cfg.AMQPURL, h); err != nil && !errors.Is(err, context.Canceled) {
                app.log.Error(ctx, "report consumer stopped", "error", err)
            }
        }()
    }

    serveErr := make(chan error, 1)
    go func() {
        if err := app.echo.Start(":" + app.cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
            serveErr <- err
        }
        close(serveErr)
    }()

    var runErr error
    select {
    case <-ctx.Done():
    case runErr = <-serveErr:
        cancel()
    }

    shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
    defer stop()
    if err := app.echo.Shutdown(shutdownCtx); err != nil {
        app.log.Error(shutdownCtx, "http shutdown", "error", err)
    }
    if err := app.gate.Supervisor().Stop(shutdownCtx); err != nil {
        app.log.Warn(shutdownCtx, "inference server stop", "error", err)
    }
    wg.Wait()
    app.close()
    app.log.Info(shutdownCtx, "stopped")
    return runErr
}

func (app *App) close() {
    if app.redis != nil {
        _ = app.redis.Close()
    }
    _ = app.db.Close()
}
