package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/aws"
	"github.com/imrishuroy/go-bookswap-orderflow/internal/swaporder"
)

// Config is the runtime configuration shared by the api and worker binaries.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	RunLocal    bool   `env:"RUN_LOCAL"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`

	// worker with RUN_LOCAL: settle this order and exit instead of consuming the stream
	LocalOrderID string `env:"LOCAL_ORDER_ID"`

	AWSRegion           string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpointOverride string `env:"AWS_ENDPOINT_OVERRIDE"`

	OrdersTable           string        `env:"SWAP_ORDERS_TABLE" envDefault:"swap-orders"`
	IdempotencyTable      string        `env:"IDEMPOTENCY_TABLE" envDefault:"idempotency"`
	ListingsTable         string        `env:"LISTINGS_TABLE" envDefault:"listings"`
	NotificationsQueueURL string        `env:"NOTIFICATIONS_QUEUE_URL"`
	IdempotencyTTL        time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"48h"`

	DefaultCommitmentFee string `env:"DEFAULT_COMMITMENT_FEE" envDefault:"200"`
	WalletDBSource       string `env:"WALLET_DB_SOURCE"`
	SettlementAccountID  string `env:"SETTLEMENT_ACCOUNT_ID" envDefault:"platform-settlement"`
	InlineSettlement     bool   `env:"INLINE_SETTLEMENT"`
	EngineMaxAttempts    int    `env:"ENGINE_MAX_ATTEMPTS" envDefault:"5"`

	SessionSecret         string `env:"SESSION_JWT_SECRET"`
	SessionIssuer         string `env:"SESSION_JWT_ISSUER"`
	PaymentCallbackSecret string `env:"PAYMENT_CALLBACK_SECRET"`

	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"BookSwap"`
}

// Load parses the environment and validates the values every binary needs.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.WalletDBSource) == "" {
		errs = append(errs, errors.New("WALLET_DB_SOURCE environment variable is required"))
	}
	if _, err := c.CommitmentFee(); err != nil {
		errs = append(errs, err)
	}
	if c.EngineMaxAttempts < 1 {
		errs = append(errs, errors.New("ENGINE_MAX_ATTEMPTS must be at least 1"))
	}
	if strings.TrimSpace(c.OrdersTable) == "" {
		errs = append(errs, errors.New("SWAP_ORDERS_TABLE must not be empty"))
	}
	return errors.Join(errs...)
}

// CommitmentFee parses DEFAULT_COMMITMENT_FEE.
func (c *Config) CommitmentFee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(strings.TrimSpace(c.DefaultCommitmentFee))
	if err != nil {
		return decimal.Zero, fmt.Errorf("DEFAULT_COMMITMENT_FEE: %w", err)
	}
	if !swaporder.ValidAmount(fee) {
		return decimal.Zero, errors.New("DEFAULT_COMMITMENT_FEE must be a positive amount in whole cents")
	}
	return fee, nil
}

// AWS returns the SDK loading options.
func (c *Config) AWS() aws.ConfigOptions {
	return aws.ConfigOptions{Region: c.AWSRegion, EndpointOverride: c.AWSEndpointOverride}
}
