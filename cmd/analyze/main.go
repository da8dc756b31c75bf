// Package main is a one-shot CLI: scan a depositor's vault events, compute
// the yield analysis and print it to stdout.
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/vault-yield/internal/circuitbreaker"
	"github.com/yourorg/vault-yield/internal/config"
	"github.com/yourorg/vault-yield/internal/ledger"
	"github.com/yourorg/vault-yield/internal/oracle"
	"github.com/yourorg/vault-yield/internal/report"
	"github.com/yourorg/vault-yield/internal/segment"
	"github.com/yourorg/vault-yield/internal/storage"
	"github.com/yourorg/vault-yield/internal/validation"
	"github.com/yourorg/vault-yield/internal/yield"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		vaultFlag  = flag.String("vault", "", "vault address (overrides config)")
		userFlag   = flag.String("user", "", "depositor address to analyze")
		fromBlock  = flag.Uint64("from", 0, "first block to scan for events")
		full       = flag.Bool("full", true, "print the full period table")
		timeout    = flag.Duration("timeout", 2*time.Minute, "analysis timeout")
	)
	flag.Parse()

	setupLogging()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Loading configuration: %v", err)
	}
	if *vaultFlag != "" {
		cfg.Chain.VaultAddress = *vaultFlag
	}
	if !common.IsHexAddress(cfg.Chain.VaultAddress) {
		logrus.Fatalf("Invalid vault address %q", cfg.Chain.VaultAddress)
	}
	if !common.IsHexAddress(*userFlag) {
		logrus.Fatalf("Invalid user address %q (use -user)", *userFlag)
	}

	client, err := ethclient.Dial(cfg.Chain.RPCEndpoint)
	if err != nil {
		logrus.Fatalf("Dialing %s: %v", cfg.Chain.RPCEndpoint, err)
	}
	vault := common.HexToAddress(cfg.Chain.VaultAddress)

	var breaker *circuitbreaker.Breaker
	if cfg.Breaker.Enabled {
		breaker = circuitbreaker.New(circuitbreaker.Options{
			MaxJumpRatio:    cfg.Breaker.MaxJumpRatio,
			MaxDropRatio:    cfg.Breaker.MaxDropRatio,
			Cooldown:        cfg.Breaker.Cooldown,
			HealthThreshold: cfg.Breaker.HealthThreshold,
			OnTrip: func(reason string) {
				logrus.Warnf("Price breaker tripped: %s", reason)
			},
		})
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.Chain.RateLimitRPS), int(cfg.Chain.RateLimitRPS)+1)
	chainOracle, err := oracle.NewVaultPriceOracle(client, vault, cfg.Chain.ShareDecimals, limiter, breaker)
	if err != nil {
		logrus.Fatalf("Building price oracle: %v", err)
	}

	priceOracle := yield.PriceOracle(chainOracle)
	if cfg.Storage.DSN != "" {
		store, err := storage.Open(cfg.Storage.DSN)
		if err != nil {
			logrus.Fatalf("Opening storage: %v", err)
		}
		defer store.Close()
		priceOracle = oracle.NewCachingPriceOracle(chainOracle, store, cfg.Chain.VaultAddress)
	}

	var rewards yield.RewardOracle
	if cfg.Rewards.BaseURL != "" {
		rewards = oracle.NewRewardsClient(cfg.Rewards.BaseURL, cfg.Rewards.APIKey)
	}

	calc := yield.DefaultConfig()
	calc.SecondsPerYear = cfg.Analysis.SecondsPerYear
	calc.SignedInterest = cfg.Analysis.SignedInterest
	calc.UnderlyingDecimals = cfg.Chain.AssetDecimals

	engine := yield.NewEngine(yield.EngineConfig{
		Calc: calc,
		Segment: segment.Options{
			MinPeriodDuration: cfg.Analysis.MinPeriodDuration,
			Overdraw:          ledger.OverdrawPolicy(cfg.Analysis.OverdrawPolicy),
		},
		Validation:      validation.Options{MaxPlausibleAPY: cfg.Analysis.MaxPlausibleAPY},
		UnderlyingAsset: cfg.Chain.UnderlyingAsset,
	}, priceOracle, rewards)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	now, err := chainOracle.Current(ctx)
	if err != nil {
		logrus.Fatalf("Resolving current block: %v", err)
	}

	scanner := oracle.NewEventScanner(client, vault)
	interactions, err := scanner.UserInteractions(ctx, common.HexToAddress(*userFlag), *fromBlock, now.Block)
	if err != nil {
		logrus.Fatalf("Scanning vault events: %v", err)
	}

	analysis, err := engine.ComputeYield(ctx, cfg.Chain.VaultAddress, *userFlag, interactions, now)
	if err != nil {
		logrus.Fatalf("Computing yield: %v", err)
	}

	report.NewConsole(os.Stdout, *full, cfg.Chain.AssetDecimals).Render(analysis)
}

func setupLogging() {
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if strings.ToLower(os.Getenv("LOG_LEVEL")) == "debug" {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
}
