package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/mosaic/config"
	"github.com/mohammad-safakhou/mosaic/internal/memory"
	"github.com/mohammad-safakhou/mosaic/internal/retrieval"
	"github.com/mohammad-safakhou/mosaic/internal/runtime"
	"github.com/mohammad-safakhou/mosaic/internal/store"
	"github.com/mohammad-safakhou/mosaic/internal/telemetry"
	"github.com/mohammad-safakhou/mosaic/internal/tutor"
	"github.com/mohammad-safakhou/mosaic/provider"
)

// Run wires the full service and blocks serving HTTP.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	dsn := cfg.Storage.Postgres.DSN()
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	redisClient, err := memory.Connect(ctx, cfg.Storage.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	mem := memory.NewRedisStore(redisClient)

	prov, err := provider.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}

	tel := telemetry.NewTelemetry(cfg.Telemetry)
	defer tel.Shutdown()

	var retriever tutor.Retriever
	if rc := retrieval.New(cfg.Retrieval); rc.Enabled() {
		retriever = rc
	}

	orch := tutor.NewOrchestrator(cfg, prov, mem, st, st, retriever, tel)

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(api.Group("/auth"))

	protected := api.Group("")
	protected.Use(runtime.EchoAuthMiddleware(secret))

	th := &TutorHandler{Orch: orch}
	th.Register(protected)

	gh := &GraphHandler{Store: st, VisibleAt: cfg.Tutor.Normalize().GraphVisibleAt}
	gh.Register(protected.Group("/graph"))

	ph := &ProgressHandler{Store: st, Memory: mem, Window: cfg.Tutor.Normalize().HistoryWindow}
	ph.Register(protected.Group("/progress"))

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10010"
	}
	baseLogger.Printf("listening on %s", addr)
	return e.Start(addr)
}
