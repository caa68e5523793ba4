package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kitkatcodeskitty/LMS-sub001/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	RunAddress           string
	DatabaseURI          string
	JWTSecret            string
	PayoutGatewayAddress string
	PolicyFile           string
	LogLevel             string
	LogFormat            string
	Policy               models.PayoutPolicy
}

// policyFile mirrors models.PayoutPolicy for YAML loading. Zero values
// mean "keep the platform default".
type policyFile struct {
	WithdrawableFraction   float64 `yaml:"withdrawable_fraction"`
	CommissionSplit        float64 `yaml:"commission_split"`
	MinBankTransfer        float64 `yaml:"min_bank_transfer"`
	MinMobileBanking       float64 `yaml:"min_mobile_banking"`
	DuplicateWindowSeconds int     `yaml:"duplicate_window_seconds"`
}

func NewConfig() *Config {
	var cfg Config

	flag.StringVar(&cfg.RunAddress, "a", "", "Server run address")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "Database URI")
	flag.StringVar(&cfg.JWTSecret, "s", "", "JWT signing secret")
	flag.StringVar(&cfg.PayoutGatewayAddress, "g", "", "Payout gateway address")
	flag.StringVar(&cfg.PolicyFile, "p", "", "Payout policy file (YAML)")
	flag.StringVar(&cfg.LogLevel, "l", "info", "Log level")
	flag.StringVar(&cfg.LogFormat, "f", "text", "Log format (text or json)")
	flag.Parse()

	if envAddr := os.Getenv("RUN_ADDRESS"); envAddr != "" {
		cfg.RunAddress = envAddr
	}

	if envDBURI := os.Getenv("DATABASE_URI"); envDBURI != "" {
		cfg.DatabaseURI = envDBURI
	}

	if envSecret := os.Getenv("JWT_SECRET"); envSecret != "" {
		cfg.JWTSecret = envSecret
	}

	if envGateway := os.Getenv("PAYOUT_GATEWAY_ADDRESS"); envGateway != "" {
		cfg.PayoutGatewayAddress = envGateway
	}

	if envPolicy := os.Getenv("POLICY_FILE"); envPolicy != "" {
		cfg.PolicyFile = envPolicy
	}

	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		cfg.LogLevel = envLevel
	}

	if envFormat := os.Getenv("LOG_FORMAT"); envFormat != "" {
		cfg.LogFormat = envFormat
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = ":8080"
	}

	cfg.Policy = models.DefaultPolicy()

	return &cfg
}

// LoadPolicy overrides the default payout policy from the configured YAML
// file. Missing file path keeps the defaults; an unreadable or malformed
// file is an error rather than a silent fallback.
func (c *Config) LoadPolicy() error {
	if c.PolicyFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.PolicyFile)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}

	if pf.WithdrawableFraction > 0 {
		c.Policy.WithdrawableFraction = decimal.NewFromFloat(pf.WithdrawableFraction)
	}
	if pf.CommissionSplit > 0 {
		c.Policy.CommissionSplit = decimal.NewFromFloat(pf.CommissionSplit)
	}
	if pf.MinBankTransfer > 0 {
		c.Policy.MinBankTransfer = decimal.NewFromFloat(pf.MinBankTransfer)
	}
	if pf.MinMobileBanking > 0 {
		c.Policy.MinMobileBanking = decimal.NewFromFloat(pf.MinMobileBanking)
	}
	if pf.DuplicateWindowSeconds > 0 {
		c.Policy.DuplicateWindow = time.Duration(pf.DuplicateWindowSeconds) * time.Second
	}

	return nil
}
