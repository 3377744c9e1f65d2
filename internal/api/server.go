// Package api serves the staking service over HTTP for browser wallets and dashboards.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/NebulaNode/nebula/internal/lib/journal"
	"github.com/NebulaNode/nebula/internal/lib/nebula"
	"github.com/NebulaNode/nebula/internal/lib/session"
	"github.com/NebulaNode/nebula/internal/lib/stake"
)

// Staking is what the handlers need from the staking service. *nebula.Nebula satisfies it.
type Staking interface {
	Profile() nebula.Profile
	State() nebula.ValidatorState
	RefreshWallet(ctx context.Context, owner string) (nebula.Summary, error)
	Quote(ctx context.Context, owner string, action stake.Action, amount uint64) (stake.Decision, error)
	PrepareTransaction(ctx context.Context, owner string, decision stake.Decision) (nebula.Prepared, error)
	History(ctx context.Context, owner string, limit int) ([]journal.Entry, error)
}

// Deps aggregates what the routes are wired against. Cache and RPCHealth are optional.
type Deps struct {
	Service   Staking
	Logger    *slog.Logger
	Cache     *redis.Client
	RPCHealth func(ctx context.Context) error
	Version   string
}

type Server struct {
	app *fiber.App
}

func New(d Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "nebula",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          2 * time.Minute,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(d.Logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(requestLogger(d.Logger))

	registerHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	h := &handlers{service: d.Service, logger: d.Logger}
	api := app.Group("/api/v1")
	api.Get("/validator", h.validator)
	api.Get("/panels", h.panels)
	api.Get("/tools", h.tools)

	wallets := api.Group("/wallets/:address")
	wallets.Get("", h.wallet)
	wallets.Post("/quote", h.quote)
	wallets.Post("/transactions", h.transaction)
	wallets.Get("/history", h.history)

	return &Server{app: app}
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func registerHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		rpcStatus := "ok"
		redisStatus := "disabled"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.RPCHealth != nil {
			if err := d.RPCHealth(ctx); err != nil {
				rpcStatus = err.Error()
			}
		}
		if d.Cache != nil {
			redisStatus = "ok"
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}
		status := http.StatusOK
		if rpcStatus != "ok" || (redisStatus != "ok" && redisStatus != "disabled") {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"rpc": rpcStatus, "redis": redisStatus},
			"version":   d.Version,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		}
		logger.Debug("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start).String(),
			"requestId", c.GetRespHeader(fiber.HeaderXRequestID),
		)
		return err
	}
}

// statusFor maps service errors onto http status codes.
func statusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, stake.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, stake.ErrInvalidAmount), errors.Is(err, stake.ErrWalletNotProvided),
		errors.Is(err, nebula.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, stake.ErrSubmissionFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", c.Path(), "error", err)
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
}
