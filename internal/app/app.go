package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"amoflow/internal/amocrm"
	"amoflow/internal/config"
	"amoflow/internal/handlers"
	"amoflow/internal/logger"
	"amoflow/internal/middleware"
	"amoflow/internal/pdf"
	"amoflow/internal/repositories"
	"amoflow/internal/routes"
	"amoflow/internal/services"
	"amoflow/internal/throttle"
)

// App — собранное приложение: клиент amoCRM, сервисы и уведомления.
type App struct {
	Config *config.Config
	Log    *log.Logger
	Client *amocrm.Client
	Runner *services.Runner
	Stages *services.StageService
	Report *pdf.ReportGenerator

	closers []func() error
}

// Build собирает приложение: token store → клиент amoCRM (с проверкой токена) → сервисы.
// pacer nil — настоящие паузы (throttle.SleepPacer).
func Build(ctx context.Context, cfg *config.Config, logr *log.Logger, pacer throttle.Pacer, opts ...amocrm.Option) (*App, error) {
	if logr == nil {
		logr = logger.New(cfg.Log)
	}
	if pacer == nil {
		pacer = throttle.SleepPacer{}
	}
	a := &App{Config: cfg, Log: logr, Report: pdf.NewReportGenerator(cfg.Notify.FontPath)}

	tokens, closeTokens, err := OpenTokenRepository(ctx, cfg.TokenStore)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeTokens)

	base := []amocrm.Option{
		amocrm.WithLogger(logr),
		amocrm.WithPacer(pacer),
		amocrm.WithPaging(cfg.Processing.Limit, cfg.Throttle.PageDelay),
	}
	client, err := amocrm.NewClient(ctx, cfg.AmoCRM, tokens, append(base, opts...)...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("amocrm client: %w", err)
	}
	a.Client = client

	move := services.NewMoveLeadsService(client, cfg.Processing, cfg.Throttle, pacer, logr)
	cp := services.NewCopyLeadsService(client, cfg.Processing, cfg.Throttle, pacer, logr)
	a.Runner = services.NewRunner(move, cp, a.notifier(), logr)
	a.Runner.Debug = cfg.Log.Debug
	a.Stages = services.NewStageService(client)
	return a, nil
}

// notifier собирает включённые в конфиге каналы; ни одного — nil.
func (a *App) notifier() services.Notifier {
	var out services.MultiNotifier
	tg := a.Config.Notify.Telegram
	if tg.BotToken != "" && tg.ChatID != 0 {
		n, err := services.NewTelegramNotifier(tg, &http.Client{Timeout: 10 * time.Second}, a.Log)
		if err != nil {
			a.Log.WithError(err).Warn("[tg] уведомления в Telegram отключены")
		} else {
			out = append(out, n)
		}
	}
	if em := a.Config.Notify.Email; em.SMTPHost != "" && len(em.To) > 0 {
		out = append(out, services.NewEmailNotifier(em, a.Report))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// OpenTokenRepository открывает хранилище токена по token_store.driver.
func OpenTokenRepository(ctx context.Context, cfg config.TokenStoreConfig) (repositories.TokenRepository, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case "", "file":
		return repositories.NewFileTokenRepository(cfg.Path), noop, nil
	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("token store: redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("token store: redis ping: %w", err)
		}
		return repositories.NewRedisTokenRepository(rdb, cfg.Key), rdb.Close, nil
	case "postgres", "sqlite":
		db, err := sql.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("token store: open %s: %w", cfg.Driver, err)
		}
		if cfg.Driver == "sqlite" {
			db.SetMaxOpenConns(1)
		}
		if err := repositories.EnsureTokenSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("token store: schema: %w", err)
		}
		return repositories.NewSQLTokenRepository(db, cfg.Driver, cfg.Key), db.Close, nil
	}
	return nil, nil, &config.FieldError{Field: "token_store.driver", Reason: fmt.Sprintf("unknown driver %q", cfg.Driver)}
}

// Authorize выполняет первичный обмен authorization_code на токен и сохраняет его.
func Authorize(ctx context.Context, cfg *config.Config, logr *log.Logger, opts ...amocrm.Option) error {
	tokens, closeTokens, err := OpenTokenRepository(ctx, cfg.TokenStore)
	if err != nil {
		return err
	}
	defer closeTokens()

	client := amocrm.New(cfg.AmoCRM, tokens, append([]amocrm.Option{amocrm.WithLogger(logr)}, opts...)...)
	if err := client.Authorize(ctx, false); err != nil {
		return err
	}
	logr.Info("[amocrm] токен получен и сохранён")
	return nil
}

// Router собирает gin с маршрутами консоли.
func (a *App) Router() (*gin.Engine, error) {
	secret := []byte(a.Config.Console.JWTSecret)
	if len(secret) == 0 {
		var err error
		if secret, err = middleware.EphemeralSecret(); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		if a.Config.Console.AuthEnabled() {
			a.Log.Warn("[http] console.jwt_secret не задан, токены консоли не переживут перезапуск")
		}
	}
	if !a.Config.Console.AuthEnabled() {
		a.Log.Warn("[http] console.password_hash не задан, консоль открыта без авторизации")
	}

	if !a.Config.Log.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())

	authHandler := handlers.NewAuthHandler(a.Config.Console, secret, a.Log)
	automationHandler := handlers.NewAutomationHandler(a.Runner, a.Stages, a.Config.Processing, a.Log)

	routes.SetupRoutes(router, authHandler, automationHandler, routes.Options{
		JWTSecret:   secret,
		AuthEnabled: a.Config.Console.AuthEnabled(),
		Debug:       a.Config.Log.Debug,
		Log:         a.Log,
	})
	return router, nil
}

// Serve слушает server.port до отмены ctx.
func (a *App) Serve(ctx context.Context) error {
	router, err := a.Router()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Infof("Сервер запущен на %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.Log.Info("Остановка сервера")
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		a.Log.Errorf("Ошибка закрытия ресурсов: %v", errors.Join(errs...))
	}
	return errors.Join(errs...)
}
