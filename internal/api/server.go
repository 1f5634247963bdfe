// Package api exposes the HTTP surface: alert rule management, the
// internal trigger endpoints consumed by remote coordinator instances,
// and email delivery introspection.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/vulnwatch/vulnwatch-go/internal/alerting"
	"github.com/vulnwatch/vulnwatch-go/internal/conf"
	"github.com/vulnwatch/vulnwatch-go/internal/datastore/repository"
	"github.com/vulnwatch/vulnwatch-go/internal/logger"
	"github.com/vulnwatch/vulnwatch-go/internal/mailer"
)

const limiterStaleAfter = 10 * time.Minute

// Controller wires HTTP handlers to the stores and engines behind them.
type Controller struct {
	Echo        *echo.Echo
	settings    *conf.ServerSettings
	rules       repository.AlertRuleStore
	queue       repository.EmailQueueStore
	coordinator *alerting.Coordinator
	bus         *alerting.VulnEventBus
	mail        *mailer.Engine
	log         logger.Logger
}

// New builds the controller and registers all routes.
func New(settings *conf.ServerSettings, rules repository.AlertRuleStore, queue repository.EmailQueueStore, coordinator *alerting.Coordinator, bus *alerting.VulnEventBus, mail *mailer.Engine, log logger.Logger) *Controller {
	if log == nil {
		log = logger.NewDefault()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if settings.RatePerSecond > 0 {
		e.Use(ipRateLimit(settings.RatePerSecond, settings.RateBurst))
	}

	c := &Controller{
		Echo:        e,
		settings:    settings,
		rules:       rules,
		queue:       queue,
		coordinator: coordinator,
		bus:         bus,
		mail:        mail,
		log:         log,
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	v1 := c.Echo.Group("/api/v1")
	v1.GET("/healthz", c.Healthz)

	alerts := v1.Group("/alerts")
	alerts.GET("/rules", c.ListAlertRules)
	alerts.POST("/rules", c.CreateAlertRule)
	alerts.GET("/rules/active", c.GetActiveRules)
	alerts.GET("/rules/:id", c.GetAlertRule)
	alerts.POST("/rules/:id/test", c.TestAlertRule)
	alerts.POST("/evaluate", c.EvaluateVulnerability)
	alerts.GET("/triggers", c.ListTriggers)
	alerts.POST("/triggers", c.RecordTrigger)
	alerts.PATCH("/triggers/:id/status", c.UpdateTriggerStatus)

	email := v1.Group("/email")
	email.GET("/status", c.GetEmailStatus)
	email.GET("/stats", c.GetEmailStats)
	email.DELETE("/stats", c.ResetEmailStats)
	email.GET("/queue", c.GetEmailQueue)
}

// Start serves until the listener fails or Shutdown is called.
func (c *Controller) Start() error {
	addr := fmt.Sprintf("%s:%d", c.settings.Host, c.settings.Port)
	c.log.Info("http server starting", logger.String("addr", addr))
	return c.Echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.Echo.Shutdown(ctx)
}

// Healthz is the liveness probe.
func (c *Controller) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleError logs and returns a sanitized JSON error.
func (c *Controller) handleError(ctx echo.Context, err error, message string, code int) error {
	c.log.Error(message, logger.Error(err), logger.String("path", ctx.Path()))
	return ctx.JSON(code, map[string]string{"error": message})
}

// ipRateLimit throttles clients per IP with a token bucket. Stale entries
// are dropped lazily on lookup so no cleanup goroutine is needed.
func ipRateLimit(perSecond float64, burst int) echo.MiddlewareFunc {
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}

	type limiterEntry struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var mu sync.Mutex
	limiters := make(map[string]*limiterEntry)

	get := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		entry, ok := limiters[ip]
		if !ok {
			for addr, e := range limiters {
				if now.Sub(e.lastSeen) > limiterStaleAfter {
					delete(limiters, addr)
				}
			}
			entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
			limiters[ip] = entry
		}
		entry.lastSeen = now
		return entry.limiter
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !get(ctx.RealIP()).Allow() {
				return ctx.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "rate limit exceeded",
				})
			}
			return next(ctx)
		}
	}
}
