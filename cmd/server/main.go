// Package main runs the vault yield analyzer as an HTTP service: POST a
// vault depositor and get back the per-period and aggregate yield analysis.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/vault-yield/internal/circuitbreaker"
	"github.com/yourorg/vault-yield/internal/config"
	"github.com/yourorg/vault-yield/internal/ledger"
	"github.com/yourorg/vault-yield/internal/model"
	"github.com/yourorg/vault-yield/internal/oracle"
	"github.com/yourorg/vault-yield/internal/otel"
	"github.com/yourorg/vault-yield/internal/security"
	"github.com/yourorg/vault-yield/internal/segment"
	"github.com/yourorg/vault-yield/internal/storage"
	"github.com/yourorg/vault-yield/internal/validation"
	"github.com/yourorg/vault-yield/internal/yield"
)

// startTime records service start for uptime reporting.
var startTime = time.Now()

// Server is the HTTP adapter around the yield engine.
type Server struct {
	cfg     *config.Config
	engine  *yield.Engine
	scanner *oracle.EventScanner
	chain   *oracle.VaultPriceOracle
	store   *storage.Store
	signer  *security.ReportSigner
	metrics *serverMetrics
	server  *http.Server
}

// serverMetrics holds the Prometheus instruments.
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	omittedPeriods  prometheus.Counter
	aggregateAPY    prometheus.Gauge
	periodCount     prometheus.Gauge
}

func registerMetrics() *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultyield_requests_total",
				Help: "Total number of analysis requests processed",
			},
			[]string{"status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vaultyield_request_duration_seconds",
				Help:    "Analysis request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		omittedPeriods: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultyield_omitted_periods_total",
				Help: "Periods omitted due to unavailable price samples",
			},
		),
		aggregateAPY: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vaultyield_weighted_total_apy",
				Help: "Weighted total APY of the last analysis",
			},
		),
		periodCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vaultyield_period_count",
				Help: "Period count of the last analysis",
			},
		),
	}

	prometheus.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.omittedPeriods,
		m.aggregateAPY,
		m.periodCount,
	)
	return m
}

func main() {
	setupLogging()

	cfg, err := config.Load(config.GetEnvOrDefault("CONFIG_PATH", ""))
	if err != nil {
		logrus.Fatalf("Loading configuration: %v", err)
	}

	shutdownTracer := otel.InitTracer(config.GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""))
	defer shutdownTracer()

	server, err := NewServer(cfg)
	if err != nil {
		logrus.Fatalf("Initializing server: %v", err)
	}
	server.Start()
}

// setupLogging configures logrus from LOG_FORMAT / LOG_LEVEL.
func setupLogging() {
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// NewServer wires the engine, oracles and storage from configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg.Chain.RPCEndpoint == "" {
		return nil, errors.New("chain.rpc_endpoint is required")
	}
	if !common.IsHexAddress(cfg.Chain.VaultAddress) {
		return nil, fmt.Errorf("invalid vault address %q", cfg.Chain.VaultAddress)
	}

	client, err := ethclient.Dial(cfg.Chain.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Chain.RPCEndpoint, err)
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
		return nil, err
	}

	var store *storage.Store
	priceOracle := yield.PriceOracle(chainOracle)
	if cfg.Storage.DSN != "" {
		store, err = storage.Open(cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
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

	s := &Server{
		cfg:     cfg,
		engine:  engine,
		scanner: oracle.NewEventScanner(client, vault),
		chain:   chainOracle,
		store:   store,
	}

	if cfg.Server.SignResponses {
		signer, err := security.NewReportSigner(os.Getenv("REPORT_SIGNING_SEED"))
		if err != nil {
			return nil, err
		}
		s.signer = signer
		logrus.Infof("Report signing enabled, public key %s", signer.PublicKey())
	}
	if cfg.Server.EnableMetrics {
		s.metrics = registerMetrics()
	}

	logrus.WithFields(logrus.Fields{
		"port":    cfg.Server.Port,
		"vault":   cfg.Chain.VaultAddress,
		"rewards": cfg.Rewards.BaseURL != "",
		"storage": cfg.Storage.DSN != "",
		"breaker": cfg.Breaker.Enabled,
	}).Info("Server initialized")

	return s, nil
}

// Start begins serving and blocks until SIGINT/SIGTERM.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         ":" + s.cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.Server.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", s.cfg.Server.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server shutdown failed: %v", err)
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	logrus.Info("Server stopped")
}

// analyzeRequest is the POST /analyze body.
type analyzeRequest struct {
	User      string `json:"user"`
	FromBlock uint64 `json:"from_block,omitempty"`
}

// handleAnalyze runs one full analysis: scan the user's vault events, compute
// yield against the current block, persist the summary and respond.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !common.IsHexAddress(req.User) {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid user address %q", req.User))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Server.Timeout)
	defer cancel()

	now, err := s.chain.Current(ctx)
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, fmt.Sprintf("Resolving current block: %v", err))
		return
	}

	interactions, err := s.scanner.UserInteractions(ctx, common.HexToAddress(req.User), req.FromBlock, now.Block)
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, fmt.Sprintf("Scanning vault events: %v", err))
		return
	}

	analysis, err := s.engine.ComputeYield(ctx, s.cfg.Chain.VaultAddress, req.User, interactions, now)
	if err != nil {
		if errors.Is(err, ledger.ErrOverdrawn) {
			s.errorResponse(w, http.StatusUnprocessableEntity, fmt.Sprintf("Ledger invariant violated: %v", err))
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Computing yield: %v", err))
		return
	}

	if s.store != nil {
		if err := s.store.SaveRun(ctx, analysis); err != nil {
			logrus.WithError(err).Warn("Persisting run summary failed")
		}
	}

	if s.metrics != nil {
		s.metrics.requestCounter.WithLabelValues("success").Inc()
		s.metrics.requestDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
		s.metrics.aggregateAPY.Set(analysis.Aggregate.WeightedTotalAPY)
		s.metrics.periodCount.Set(float64(analysis.Aggregate.PeriodCount))
		for _, d := range analysis.Diagnostics {
			if d.Kind == model.DiagMissingPrice {
				s.metrics.omittedPeriods.Inc()
			}
		}
	}

	var payload interface{} = analysis
	if s.signer != nil {
		signed, err := s.signer.Sign(analysis)
		if err != nil {
			logrus.WithError(err).Warn("Signing report failed; responding unsigned")
		} else {
			payload = signed
		}
	}

	writeJSON(w, http.StatusOK, payload)
}

// handleHealth is a simple liveness endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus reports configuration and uptime.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "operational",
		"uptime": time.Since(startTime).String(),
		"vault":  s.cfg.Chain.VaultAddress,
		"configuration": map[string]interface{}{
			"min_period_duration": s.cfg.Analysis.MinPeriodDuration.String(),
			"overdraw_policy":     s.cfg.Analysis.OverdrawPolicy,
			"signed_interest":     s.cfg.Analysis.SignedInterest,
			"breaker":             s.cfg.Breaker.Enabled,
			"rewards":             s.cfg.Rewards.BaseURL != "",
		},
	}
	writeJSON(w, http.StatusOK, status)
}

// errorResponse returns a JSON error body and counts the failure.
func (s *Server) errorResponse(w http.ResponseWriter, statusCode int, msg string) {
	logrus.Warn(msg)
	if s.metrics != nil {
		s.metrics.requestCounter.WithLabelValues("error").Inc()
	}
	writeJSON(w, statusCode, map[string]interface{}{
		"status": "error",
		"error":  msg,
	})
}
