package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/aws"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/config"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/logging"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/settlement"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("bookswap-settlement-worker", cfg.Environment)
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

	settler := settlement.NewSettler(
		wallet.NewLedger(pool, cfg.SettlementAccountID),
		aws.NewMetricsEmitter(clients.CloudWatch, cfg.MetricsNamespace),
		logger,
	)
	p := NewProcessor(swaporder.NewStore(clients.DynamoDB, cfg.OrdersTable), settler, logger)

	// RUN_LOCAL settles a single order named by LOCAL_ORDER_ID instead of consuming the stream.
	if cfg.RunLocal {
		orderID := cfg.LocalOrderID
		if orderID == "" {
			logger.Error("LOCAL_ORDER_ID is required when RUN_LOCAL is set")
			os.Exit(1)
		}
		if err := p.SettleOrder(ctx, orderID); err != nil {
			logger.Error("local settlement failed", "order_id", orderID, "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
