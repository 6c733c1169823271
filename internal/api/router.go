package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/xrl111/smart-eparking-pi4/internal/api/handler"
	"github.com/xrl111/smart-eparking-pi4/internal/api/middleware"
	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

// Services gom các dependency mà router cần.
type Services struct {
	Auth       handler.Authenticator
	Controller handler.ParkingController
	Link       handler.LinkStatusProvider
	Sessions   handler.SessionService
	Pricing    handler.PricingRuleService
	Logs       handler.AuditLogReader
	LPR        handler.PlateRecognizer
}

func SetupRouter(svc Services, authMw *middleware.AuthMiddleware, wsManager *handler.WebSocketManager, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(log), gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	controlH := handler.NewControlHandler(svc.Controller, svc.Link)
	r.GET("/health", controlH.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint (không cần auth cho real-time connection)
	wsHandler := handler.NewWebSocketHandler(wsManager)
	r.GET("/ws", wsHandler.HandleWebSocket)

	authHandler := handler.NewAuthHandler(svc.Auth)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	staff := authMw.AuthorizeRole(domain.RoleAdmin, domain.RoleOperator)
	admin := authMw.AuthorizeRole(domain.RoleAdmin)

	v1 := r.Group("/api/v1")
	v1.Use(authMw.Authenticate())
	{
		v1.GET("/status", controlH.GetStatus)
		v1.GET("/mode", controlH.GetMode)
		v1.POST("/mode", staff, controlH.SetMode)
		v1.POST("/gate", staff, controlH.SetGate)
		v1.POST("/slots/:index", staff, controlH.SetSlot)

		sessionH := handler.NewParkingSessionHandler(svc.Sessions)
		sessionRoutes := v1.Group("/sessions")
		{
			sessionRoutes.GET("/mine", sessionH.MySessions)
			sessionRoutes.GET("/active", staff, sessionH.ActiveSessions)
			sessionRoutes.GET("/history", staff, sessionH.SessionHistory)
			sessionRoutes.POST("/start", staff, sessionH.StartSession)
			sessionRoutes.POST("/end", staff, sessionH.EndSession)
			sessionRoutes.GET("/:id", staff, sessionH.GetSession)
			sessionRoutes.GET("/:id/fee", staff, sessionH.FeeQuote)
			sessionRoutes.POST("/:id/pay", staff, sessionH.PaySession)
		}
		v1.GET("/stats", staff, sessionH.Statistics)

		pricingH := handler.NewPricingRuleHandler(svc.Pricing)
		pricingRoutes := v1.Group("/pricing-rules")
		{
			pricingRoutes.GET("", staff, pricingH.List)
			pricingRoutes.GET("/:id", staff, pricingH.Get)
			pricingRoutes.POST("", admin, pricingH.Create)
			pricingRoutes.PUT("/:id", admin, pricingH.Update)
			pricingRoutes.DELETE("/:id", admin, pricingH.Delete)
		}

		v1.GET("/logs", admin, handler.NewSystemLogHandler(svc.Logs).Recent)

		lprH := handler.NewLPRHandler(svc.LPR, svc.Sessions, log)
		v1.POST("/lpr/recognize", staff, lprH.Recognize)
	}
	return r
}

// requestLogger thay gin.Logger, ghi access log qua zerolog.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		ev := log.Debug()
		if status >= 500 {
			ev = log.Error()
		} else if status >= 400 {
			ev = log.Info()
		}
		ev.Str("method", c.Request.Method).Str("path", c.Request.URL.Path).Int("status", status).
			Dur("latency", time.Since(start)).Str("client_ip", c.ClientIP()).Msg("HTTP request")
	}
}
