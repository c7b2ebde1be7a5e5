package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "github.com/vetclinic/portal/docs"
	"github.com/vetclinic/portal/internal/api/handler"
	"github.com/vetclinic/portal/internal/api/metrics"
	"github.com/vetclinic/portal/internal/api/middleware"
	"github.com/vetclinic/portal/internal/core/domain"
	"github.com/vetclinic/portal/internal/core/ports"
	"github.com/vetclinic/portal/internal/core/service"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Log      zerolog.Logger
	Registry *service.Registry
	Chat     ports.ChatService
	// Conversations restricts chat routes to consultation participants.
	Conversations ports.ConversationGate

	ClinicAPI      *url.URL
	ProxyTransport http.RoundTripper
	Cookies        middleware.CookieOptions
	HealthChecks   map[string]handler.DependencyCheck

	// LoginRatePerMin caps login attempts per client IP. Zero disables it.
	LoginRatePerMin float64
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace: "vetportal",
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health"
		},
	}))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(d.Registry)
	pageHandler := handler.NewPageHandler()
	profileHandler := handler.NewProfileHandler()
	chatHandler := handler.NewChatHandler(d.Chat, d.Log.With().Str("component", "chat").Logger())

	session := middleware.Session(d.Registry, d.Cookies)
	authenticated := middleware.RequireIdentity(domain.AnyAuthenticated, metrics.ObserveGuard)

	// --- Auth routes ---
	login := []echo.MiddlewareFunc{session}
	if d.LoginRatePerMin > 0 {
		login = append([]echo.MiddlewareFunc{loginLimiter(d.LoginRatePerMin)}, login...)
	}
	e.POST("/auth/login", authHandler.Login, login...)
	e.POST("/auth/logout", authHandler.Logout, session)
	e.GET("/session", authHandler.Session, session)
	e.PUT("/profile", profileHandler.Update, session, authenticated)

	// --- Guarded page shells ---
	e.GET("/pages/*", pageHandler.Show, session, middleware.GuardPages(domain.PortalRoutes, metrics.ObserveGuard))

	// --- Chat ---
	chat := e.Group("/chat/:conversationId", session, authenticated, middleware.RequireParticipant(d.Conversations, "conversationId"))
	chat.GET("/messages", chatHandler.History)
	chat.POST("/messages", chatHandler.Send)
	chat.GET("/stream", chatHandler.Stream)

	// --- Clinic API pass-through ---
	e.Group("/api", session, middleware.AttachBearer(), middleware.ClinicProxy(d.ClinicAPI, d.ProxyTransport))

	// --- Health checks, metrics and docs (no session) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(d.HealthChecks)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func loginLimiter(perMin float64) echo.MiddlewareFunc {
	store := echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perMin / 60),
		Burst:     5,
		ExpiresIn: 5 * time.Minute,
	})
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			metrics.LoginAttemptsTotal.WithLabelValues("rate_limited").Inc()
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts")
		},
	})
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
