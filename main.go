package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"mpesa-checkout-service/config"
	"mpesa-checkout-service/handlers"
	"mpesa-checkout-service/logging"
	"mpesa-checkout-service/monitoring"
	"mpesa-checkout-service/mpesa"
	"mpesa-checkout-service/service"
	"mpesa-checkout-service/store"
	"mpesa-checkout-service/web"
)

func main() {
	// Load configuration before anything opens a network connection; a
	// half-configured service must fail here, not mid-payment.
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	// Initialize structured logging
	if err := logging.InitLogger(cfg.ServiceName, cfg.OTELEndpoint); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logging.Sync()
	defer func() {
		if err := logging.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()

	// Initialize OpenTelemetry
	tp, tracer, err := monitoring.InitTracer(cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		logging.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	mp, registry, err := monitoring.InitMeter(cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		logging.Fatal("Failed to initialize meter", zap.Error(err))
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Payment record store: redis when configured, in-memory otherwise.
	var records store.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logging.Fatal("Failed to connect to redis", zap.Error(err), zap.String("addr", cfg.RedisAddr))
		}
		records = store.NewRedis(client, cfg.RecordTTL, logging.GetLogger())
		defer client.Close()
		logging.Info("Using redis payment store", zap.String("addr", cfg.RedisAddr))
	} else {
		records = store.NewMemory(cfg.RecordTTL)
		logging.Info("Using in-memory payment store")
	}

	// Gateway client and service layer
	gateway := mpesa.NewClient(mpesa.Config{
		BaseURL:        cfg.BaseURL(),
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		ShortCode:      cfg.ShortCode,
		Passkey:        cfg.Passkey,
		CallbackURL:    cfg.CallbackURL(),
		Timeout:        cfg.GatewayTimeout,
	})
	paymentService := service.NewPaymentService(tracer, gateway, records, cfg)

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg)

	// Setup Gin router
	r := gin.Default()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logging.Fatal("Invalid trusted proxy configuration", zap.Error(err))
	}
	r.SetHTMLTemplate(web.Templates())

	// OpenTelemetry middleware
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMetricsMiddleware())

	// Routes
	r.GET("/", paymentHandler.Index)
	r.GET("/health", paymentHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	r.POST("/api/payments", paymentHandler.InitiatePayment)
	r.GET("/api/payments/:id/status", paymentHandler.Status)
	r.POST("/api/calculator", paymentHandler.Calculate)
	r.POST("/callback/:secret", paymentHandler.Callback)

	// Start server
	logging.Info("Checkout service starting",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment),
	)
	if err := r.Run(":" + cfg.Port); err != nil {
		logging.Fatal("Failed to start server", zap.Error(err))
	}
}

// httpMetricsMiddleware records HTTP request metrics
func httpMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		// Record duration
		duration := float64(time.Since(start).Milliseconds())

		monitoring.HTTPServerDuration.Record(c.Request.Context(), duration,
			metric.WithAttributes(
				attribute.String("http_method", c.Request.Method),
				attribute.String("http_route", c.FullPath()),
				attribute.String("http_status_code", strconv.Itoa(c.Writer.Status())),
			),
		)
	}
}
