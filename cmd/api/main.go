package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/aws"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/config"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/engine"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/handlers"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/listings"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/logging"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/notify"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/settlement"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/wallet"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.Metrics())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterSwapOrderRoutes(r, cfg)
	handlers.RegisterPaymentRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("bookswap-api", cfg.Environment)
	ctx := context.Background()

	clients, err := aws.NewAWSClients(ctx, cfg.AWS())
	if err != nil {
		logger.Error("failed to init aws clients", "error", err)
		os.Exit(1)
	}

	pool, err := wallet.Connect(ctx, cfg.WalletDBSource)
	if err != nil {
		logger.Error("failed to connect wallet database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	ledger := wallet.NewLedger(pool, cfg.SettlementAccountID)
	if err := ledger.EnsureSchema(ctx); err != nil {
		logger.Error("failed to apply wallet schema", "error", err)
		os.Exit(1)
	}

	fee, _ := cfg.CommitmentFee() // checked by config.Load

	var notifier notify.Notifier = notify.Noop{}
	if cfg.NotificationsQueueURL != "" {
		notifier = notify.NewSQSNotifier(aws.NewPublisher(clients.SQS, cfg.NotificationsQueueURL))
	} else {
		logger.Warn("NOTIFICATIONS_QUEUE_URL not set, notifications are dropped")
	}

	engineCfg := engine.Config{
		Store:       swaporder.NewStore(clients.DynamoDB, cfg.OrdersTable),
		Payments:    ledger,
		Refunds:     ledger,
		Notifier:    notifier,
		Listings:    listings.NewDirectory(clients.DynamoDB, cfg.ListingsTable),
		Logger:      logger,
		MaxAttempts: cfg.EngineMaxAttempts,
		DefaultFee:  fee,
	}
	if cfg.InlineSettlement {
		engineCfg.Settler = settlement.NewSettler(ledger, aws.NewMetricsEmitter(clients.CloudWatch, cfg.MetricsNamespace), logger)
	}

	r := setupRouter(handlers.HandlerConfig{
		Service:        engine.New(engineCfg),
		Idempotency:    idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		Logger:         logger,
		SessionSecret:  cfg.SessionSecret,
		SessionIssuer:  cfg.SessionIssuer,
		CallbackSecret: cfg.PaymentCallbackSecret,
	})

	if cfg.RunLocal {
		logger.Info("running local server", "addr", cfg.ListenAddr)
		if err := r.Run(cfg.ListenAddr); err != nil {
			logger.Error("local server stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
