package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mergimg0/ttnts121-sub002/internal/auth"
	"github.com/mergimg0/ttnts121-sub002/internal/booking"
	"github.com/mergimg0/ttnts121-sub002/internal/config"
	"github.com/mergimg0/ttnts121-sub002/internal/ledger"
	"github.com/mergimg0/ttnts121-sub002/internal/session"
)

type Handlers struct {
	Bookings *booking.Handler
	Sessions *session.Handler
	Refunds  *ledger.Handler
}

type Server struct {
	router  *gin.Engine
	http    *http.Server
	limiter *RateLimiter
}

func New(cfg *config.Config, h Handlers, checks map[string]HealthCheck) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLoggingMiddleware(), MetricsMiddleware(), corsMiddleware())

	router.GET("/health", Health(checks))
	router.GET("/metrics", Metrics())

	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateBurst, 3*time.Minute)
	limited := RateLimitMiddleware(limiter)

	router.POST("/webhooks/omise", limited, h.Bookings.OmiseWebhook)

	api := router.Group("/api", limited)
	{
		api.GET("/sessions/upcoming", h.Sessions.ListUpcoming)
		api.GET("/sessions/:sessionID", h.Sessions.Get)
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	bookings := api.Group("/bookings", authMiddleware)
	{
		bookings.GET("/:bookingID/cancellation", h.Bookings.PreviewCancellation)
		bookings.POST("/:bookingID/cancel", h.Bookings.Cancel)
		bookings.POST("/:bookingID/transfer", h.Bookings.Transfer)
		bookings.POST("/:bookingID/balance-payment", h.Bookings.RequestBalancePayment)
	}

	admin := api.Group("/admin", authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/refunds/failed", h.Refunds.ListFailed)
		admin.POST("/refunds/:entryID/resolve", h.Refunds.Resolve)
		admin.GET("/bookings/:bookingID/refunds", h.Refunds.ListForBooking)
	}

	return &Server{
		router:  router,
		limiter: limiter,
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.limiter.Stop()
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	})
}
