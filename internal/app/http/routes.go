package routes

import (
	"context"
	"net/http"
	"time"

	"econfere-api/database"
	adminapi "econfere-api/internal/api/admin"
	analysisapi "econfere-api/internal/api/analysis"
	asaaswebhooks "econfere-api/internal/api/asaaswebhook"
	authapi "econfere-api/internal/api/auth"
	billingapi "econfere-api/internal/api/billing"
	stripewebhooks "econfere-api/internal/api/stripewebhook"
	usersapi "econfere-api/internal/api/users"
	"econfere-api/internal/app/http/middleware"
	"econfere-api/internal/domain/users"
	"econfere-api/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Deps carries the constructed handlers. A nil Gatherer leaves /metrics unmounted
// and a nil Limiter disables rate limiting on the public auth routes.
type Deps struct {
	DB        *gorm.DB
	JWTSecret string
	Limiter   *middleware.IPLimiter
	Gatherer  prometheus.Gatherer

	Auth     *authapi.Handler
	Users    *usersapi.Handler
	Analysis *analysisapi.Handler
	Billing  *billingapi.Handler
	Stripe   *stripewebhooks.Handler
	Asaas    *asaaswebhooks.Handler
	Admin    *adminapi.Handler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/health", health(d.DB))
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(d.Gatherer)))
	}

	// Provider callbacks carry their own signature or token
	r.POST("/api/payment/webhook/stripe", d.Stripe.Handle)
	r.POST("/api/payment/webhook/asaas", d.Asaas.Handle)

	public := r.Group("/auth")
	if d.Limiter != nil {
		public.Use(middleware.RateLimit(d.Limiter))
	}
	public.Use(middleware.SanitizeInput())
	public.POST("/register", d.Auth.Register)
	public.POST("/login", d.Auth.Login)
	public.POST("/google", d.Auth.GoogleToken)
	public.GET("/google", d.Auth.GoogleStart)
	public.GET("/google/callback", d.Auth.GoogleCallback)
	public.POST("/forgot-password", d.Auth.ForgotPassword)
	public.POST("/reset-password", d.Auth.ResetPassword)
	public.POST("/resend-verification", d.Auth.ResendVerification)
	public.GET("/verify", d.Users.VerifyEmail)

	authed := middleware.AuthMiddleware(d.JWTSecret)

	account := r.Group("/auth", authed)
	account.GET("/profile", d.Users.Profile)
	account.POST("/change-password", middleware.SanitizeInput(), d.Auth.ChangePassword)

	analyses := r.Group("/api/analise", authed)
	analyses.POST("", d.Analysis.Create)
	analyses.GET("", d.Analysis.History)
	analyses.GET("/check-free", d.Analysis.CheckFree)
	analyses.GET("/prices", d.Analysis.Prices)
	analyses.GET("/:id", d.Analysis.Get)
	analyses.GET("/:id/download", d.Analysis.Download)

	pay := r.Group("/api/payment", authed, middleware.SanitizeInput())
	pay.POST("/intent", d.Billing.CreateIntent)
	pay.POST("/confirm", d.Billing.Confirm)
	pay.GET("/history", d.Billing.History)

	admin := r.Group("/api/admin", authed, middleware.RequireRole(users.RoleAdmin))
	admin.GET("/stats", d.Admin.Stats)
	admin.GET("/users", d.Admin.ListUsers)
	admin.GET("/users/:id", d.Admin.GetUser)
	admin.PATCH("/users/:id/role", d.Admin.UpdateRole)
	admin.DELETE("/users/:id", d.Admin.DeleteUser)
	admin.GET("/payments", d.Admin.ListPayments)
	admin.GET("/analyses", d.Admin.ListAnalyses)
}

func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := database.Ping(ctx, db); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
