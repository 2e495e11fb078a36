package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"econfere-api/config"
	"econfere-api/database"
	adminapi "econfere-api/internal/api/admin"
	analysisapi "econfere-api/internal/api/analysis"
	asaaswebhooks "econfere-api/internal/api/asaaswebhook"
	authapi "econfere-api/internal/api/auth"
	billingapi "econfere-api/internal/api/billing"
	stripewebhooks "econfere-api/internal/api/stripewebhook"
	usersapi "econfere-api/internal/api/users"
	routes "econfere-api/internal/app/http"
	"econfere-api/internal/app/http/middleware"
	"econfere-api/internal/domain/analysis"
	"econfere-api/internal/domain/billing"
	"econfere-api/internal/domain/quota"
	"econfere-api/internal/infra/asaas"
	"econfere-api/internal/infra/dedupe"
	"econfere-api/internal/infra/mailer"
	"econfere-api/internal/infra/mercadopago"
	"econfere-api/internal/infra/payments"
	"econfere-api/internal/infra/report"
	"econfere-api/internal/infra/storage"
	"econfere-api/internal/infra/stripe"
	"econfere-api/internal/logger"
	"econfere-api/internal/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.SetupDefault(os.Stdout, cfg.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBDriver, cfg.DBURL)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.NewCollector(reg)

	mail := mailer.New(mailer.Config{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUser,
		Password:  cfg.SMTPPassword,
		From:      cfg.SMTPFrom,
		PublicURL: cfg.PublicURL,
	})
	if !mail.Enabled() {
		log.Warn("SMTP not configured, e-mails will not be sent")
	}

	gateways := payments.NewRegistry(cfg.DefaultPaymentGateway,
		stripe.New(cfg.StripeSecretKey, log),
		mercadopago.New(cfg.MercadoPagoAccessToken, log),
		asaas.New(cfg.AsaasAPIKey, cfg.AsaasCustomerID, log,
			asaas.WithBaseURL(asaas.BaseURLFor(cfg.AsaasEnvironment))),
	)
	if _, err := gateways.Get(""); err != nil {
		return fmt.Errorf("DEFAULT_PAYMENT_GATEWAY: %w", err)
	}

	seen, err := webhookStore(ctx, cfg.RedisURL, log)
	if err != nil {
		return err
	}
	if c, ok := seen.(io.Closer); ok {
		defer c.Close()
	}

	tracker := quota.NewTracker(db)
	workflow := analysis.NewWorkflow(db, tracker, report.NewGenerator(cfg.ResultsDir), log)
	confirmer := billing.NewConfirmer(db, mail, log)

	var google *authapi.Google
	if cfg.GoogleEnabled() {
		google = authapi.NewGoogle(authapi.GoogleConfig{
			ClientID:         cfg.GoogleClientID,
			ClientSecret:     cfg.GoogleClientSecret,
			RedirectURL:      cfg.GoogleRedirectURL,
			FrontendRedirect: cfg.GoogleFrontendRedirect,
			SecureCookie:     cfg.IsProduction(),
		}, authapi.NewGoogleVerifier(ctx, cfg.GoogleClientID))
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log, rec))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Analysis-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Deps{
		DB:        db,
		JWTSecret: cfg.JWTSecret,
		Limiter:   middleware.NewIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Gatherer:  reg,
		Auth: authapi.NewHandler(db, authapi.Config{
			JWTSecret:   cfg.JWTSecret,
			TokenTTL:    cfg.JWTExpiresIn,
			AdminEmail:  cfg.AdminEmail,
			FrontendURL: cfg.FrontendURL,
		}, mail, google, log),
		Users:    usersapi.NewHandler(db, cfg.FrontendURL, log),
		Analysis: analysisapi.NewHandler(db, workflow, tracker, storage.NewLocal(cfg.UploadDir, cfg.MaxFileSize), rec, log),
		Billing:  billingapi.NewHandler(db, gateways, confirmer, rec, log),
		Stripe:   stripewebhooks.NewHandler(db, confirmer, seen, cfg.StripeWebhookSecret, rec, log),
		Asaas:    asaaswebhooks.NewHandler(db, confirmer, seen, cfg.AsaasWebhookToken, rec, log),
		Admin:    adminapi.NewHandler(db, log),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", srv.Addr, "env", cfg.AppEnv, "gateways", gateways.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server stopped gracefully")
	return nil
}

// webhookStore picks Redis when REDIS_URL is set, memory otherwise.
func webhookStore(ctx context.Context, redisURL string, log *slog.Logger) (dedupe.Store, error) {
	if redisURL == "" {
		log.Info("webhook de-duplication in memory")
		return dedupe.NewMemory(dedupe.DefaultTTL), nil
	}
	store, err := dedupe.NewRedisFromURL(ctx, redisURL, dedupe.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	log.Info("webhook de-duplication in redis")
	return store, nil
}
