// Package config loads the Brain's configuration from the environment and
// validates the bounds every downstream engine relies on.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AllocationConfig controls the equity-tier curve and leverage caps consumed
// by the AllocationEngine.
type AllocationConfig struct {
	StartP2Equity float64 // equity at which Phase 2 starts unlocking
	FullP2Equity  float64 // equity at which Phase 2 is fully unlocked
	StartP3Equity float64 // equity at which Phase 3 starts unlocking

	// MicroMaxEquity, SmallMaxEquity, MediumMaxEquity, and LargeMaxEquity are
	// the inclusive upper bounds of their equity tier band; anything above
	// LargeMaxEquity is INSTITUTIONAL.
	MicroMaxEquity  float64
	SmallMaxEquity  float64
	MediumMaxEquity float64
	LargeMaxEquity  float64

	// LeverageCaps maps equity tier -> max leverage, monotonically
	// non-increasing with tier risk (MICRO has the lowest cap).
	LeverageCaps map[string]float64
}

// PerformanceConfig controls the PerformanceTracker's Sharpe-driven modifier.
type PerformanceConfig struct {
	WindowDays      int
	MinTradeCount   int
	MalusThreshold  float64
	BonusThreshold  float64
	MalusMultiplier float64
	BonusMultiplier float64
}

// RiskConfig controls every RiskGuardian gate.
type RiskConfig struct {
	MinStopMultiplier      float64
	MaxPositionNotional    float64
	SymbolWhitelist        []string // empty means no restriction
	CostVetoEnabled        bool
	BaseFeeBps             float64
	MinExpectancyRatio     float64
	MaxEndToEndLatency     time.Duration
	SoftLatencyThreshold   time.Duration
	TailExponentThreshold  float64
	TailLeverageCap        float64
	MaxAccountLeverage     float64
	MaxCorrelation         float64
	CorrelationPenalty     float64
	CorrelationTTL         time.Duration
	CorrelationRingBufferN int
	Phase3ID               string
	Phase1ID               string
}

// TreasuryConfig controls the CapitalFlowManager ratchet and sweep.
type TreasuryConfig struct {
	SweepThreshold  float64 // trigger = targetAllocation * SweepThreshold
	ReserveLimit    float64
	MaxRetries      int
	RetryBaseDelay  time.Duration
	InitialCapital  float64
	SweepTriggerPct float64 // equity-increase trigger, e.g. 0.10
}

// RouterConfig controls order-routing validation and algorithm behavior.
type RouterConfig struct {
	TimeSlices              int
	MinOrderSize            float64
	MaxOrderSize            float64
	MarketDataTimeout       time.Duration
	EnableCoLocation        bool
	EnableNetworkOptimization bool
}

// HFTConfig bounds the priority-queue batch processor.
type HFTConfig struct {
	MaxLatencyMicros     int64
	PriorityQueueSize    int
	BatchSize            int
	BatchTimeout         time.Duration
	PreallocatedObjects  int
	FailureThreshold     int
	CircuitBreakerBudget time.Duration
	RecoveryTime         time.Duration
	ShutdownGracePeriod  time.Duration
}

// AuthConfig controls the HMAC/bearer boundary.
type AuthConfig struct {
	HMACSecret       string
	HMACAlgorithm    string // sha256 or sha512
	TimestampTolerance time.Duration
	BearerToken      string
}

// Config is the fully resolved application configuration.
type Config struct {
	Port    int
	DevMode bool
	LogLevel string

	DatabasePath string

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string

	MarketDataURL      string
	ExchangeAPIKey     string
	ExchangeAPISecret  string
	ExchangeAsset      string
	VenueIDs           []string
	BackupIntervalHours int
	BackupRetentionDays int

	Allocation  AllocationConfig
	Performance PerformanceConfig
	Risk        RiskConfig
	Treasury    TreasuryConfig
	Router      RouterConfig
	HFT         HFTConfig
	Auth        AuthConfig
}

// Load reads configuration from environment variables, applying the same
// sensible defaults a development deployment would need.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("BRAIN_PORT", 8090),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/brain.db"),
		S3Bucket:          getEnv("BRAIN_BACKUP_BUCKET", ""),
		S3Region:          getEnv("BRAIN_BACKUP_REGION", "auto"),
		S3Endpoint:        getEnv("BRAIN_BACKUP_ENDPOINT", ""),
		S3AccessKeyID:     getEnv("BRAIN_BACKUP_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("BRAIN_BACKUP_SECRET_ACCESS_KEY", ""),

		MarketDataURL:       getEnv("MARKET_DATA_URL", "wss://stream.example.com/marketdata"),
		ExchangeAPIKey:      getEnv("EXCHANGE_API_KEY", ""),
		ExchangeAPISecret:   getEnv("EXCHANGE_API_SECRET", ""),
		ExchangeAsset:       getEnv("EXCHANGE_SETTLEMENT_ASSET", "USDT"),
		VenueIDs:            getEnvAsList("VENUE_IDS"),
		BackupIntervalHours: getEnvAsInt("BACKUP_INTERVAL_HOURS", 6),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),

		Allocation: AllocationConfig{
			StartP2Equity: getEnvAsFloat("ALLOC_START_P2_EQUITY", 1500),
			FullP2Equity:  getEnvAsFloat("ALLOC_FULL_P2_EQUITY", 5000),
			StartP3Equity: getEnvAsFloat("ALLOC_START_P3_EQUITY", 20000),

			MicroMaxEquity:  getEnvAsFloat("ALLOC_TIER_MICRO_MAX", 1000),
			SmallMaxEquity:  getEnvAsFloat("ALLOC_TIER_SMALL_MAX", 10000),
			MediumMaxEquity: getEnvAsFloat("ALLOC_TIER_MEDIUM_MAX", 100000),
			LargeMaxEquity:  getEnvAsFloat("ALLOC_TIER_LARGE_MAX", 1000000),

			LeverageCaps: map[string]float64{
				"MICRO":         3,
				"SMALL":         5,
				"MEDIUM":        8,
				"LARGE":         10,
				"INSTITUTIONAL": 15,
			},
		},

		Performance: PerformanceConfig{
			WindowDays:      getEnvAsInt("PERF_WINDOW_DAYS", 30),
			MinTradeCount:   getEnvAsInt("PERF_MIN_TRADE_COUNT", 10),
			MalusThreshold:  getEnvAsFloat("PERF_MALUS_THRESHOLD", 0),
			BonusThreshold:  getEnvAsFloat("PERF_BONUS_THRESHOLD", 1.5),
			MalusMultiplier: getEnvAsFloat("PERF_MALUS_MULTIPLIER", 0.5),
			BonusMultiplier: getEnvAsFloat("PERF_BONUS_MULTIPLIER", 1.2),
		},

		Risk: RiskConfig{
			MinStopMultiplier:      getEnvAsFloat("RISK_MIN_STOP_MULTIPLIER", 1.0),
			MaxPositionNotional:    getEnvAsFloat("RISK_MAX_POSITION_NOTIONAL", 100000),
			SymbolWhitelist:        getEnvAsList("RISK_SYMBOL_WHITELIST"),
			CostVetoEnabled:        getEnvAsBool("RISK_COST_VETO_ENABLED", true),
			BaseFeeBps:             getEnvAsFloat("RISK_BASE_FEE_BPS", 5),
			MinExpectancyRatio:     getEnvAsFloat("RISK_MIN_EXPECTANCY_RATIO", 1.5),
			MaxEndToEndLatency:     getEnvAsDuration("RISK_MAX_E2E_LATENCY_MS", 500*time.Millisecond),
			SoftLatencyThreshold:   getEnvAsDuration("RISK_SOFT_LATENCY_THRESHOLD_MS", 200*time.Millisecond),
			TailExponentThreshold:  getEnvAsFloat("RISK_TAIL_EXPONENT_THRESHOLD", 2.0),
			TailLeverageCap:        getEnvAsFloat("RISK_TAIL_LEVERAGE_CAP", 3.0),
			MaxAccountLeverage:     getEnvAsFloat("RISK_MAX_ACCOUNT_LEVERAGE", 10.0),
			MaxCorrelation:         getEnvAsFloat("RISK_MAX_CORRELATION", 0.8),
			CorrelationPenalty:     getEnvAsFloat("RISK_CORRELATION_PENALTY", 0.5),
			CorrelationTTL:         time.Duration(getEnvAsInt("RISK_CORRELATION_TTL_SEC", 300)) * time.Second,
			CorrelationRingBufferN: getEnvAsInt("RISK_CORRELATION_RING_N", 100),
			Phase1ID:               getEnv("PHASE1_ID", "phase1"),
			Phase3ID:               getEnv("PHASE3_ID", "phase3"),
		},

		Treasury: TreasuryConfig{
			SweepThreshold:  getEnvAsFloat("TREASURY_SWEEP_THRESHOLD", 1.2),
			ReserveLimit:    getEnvAsFloat("TREASURY_RESERVE_LIMIT", 2000),
			MaxRetries:      getEnvAsInt("TREASURY_MAX_RETRIES", 5),
			RetryBaseDelay:  getEnvAsDuration("TREASURY_RETRY_BASE_DELAY_MS", 500*time.Millisecond),
			InitialCapital:  getEnvAsFloat("TREASURY_INITIAL_CAPITAL", 1000),
			SweepTriggerPct: getEnvAsFloat("TREASURY_EQUITY_SWEEP_TRIGGER_PCT", 0.10),
		},

		Router: RouterConfig{
			TimeSlices:                getEnvAsInt("ROUTER_TWAP_TIME_SLICES", 10),
			MinOrderSize:              getEnvAsFloat("ROUTER_MIN_ORDER_SIZE", 1),
			MaxOrderSize:              getEnvAsFloat("ROUTER_MAX_ORDER_SIZE", 1000000),
			MarketDataTimeout:         time.Duration(getEnvAsInt("ROUTER_MARKET_DATA_TIMEOUT_SEC", 5)) * time.Second,
			EnableCoLocation:          getEnvAsBool("ROUTER_ENABLE_COLOCATION", true),
			EnableNetworkOptimization: getEnvAsBool("ROUTER_ENABLE_NETWORK_OPT", true),
		},

		HFT: HFTConfig{
			MaxLatencyMicros:     int64(getEnvAsInt("HFT_MAX_LATENCY_MICROS", 10000)),
			PriorityQueueSize:    getEnvAsInt("HFT_QUEUE_SIZE", 10000),
			BatchSize:            getEnvAsInt("HFT_BATCH_SIZE", 100),
			BatchTimeout:         time.Duration(getEnvAsInt("HFT_BATCH_TIMEOUT_MICROS", 1000)) * time.Microsecond,
			PreallocatedObjects:  getEnvAsInt("HFT_PREALLOCATED_OBJECTS", 1000),
			FailureThreshold:     getEnvAsInt("HFT_BREAKER_FAILURE_THRESHOLD", 5),
			CircuitBreakerBudget: time.Duration(getEnvAsInt("HFT_BREAKER_THRESHOLD_MS", 5)) * time.Millisecond,
			RecoveryTime:         getEnvAsDuration("HFT_BREAKER_RECOVERY_MS", 30000*time.Millisecond),
			ShutdownGracePeriod:  getEnvAsDuration("HFT_SHUTDOWN_GRACE_MS", 2000*time.Millisecond),
		},

		Auth: AuthConfig{
			HMACSecret:         getEnv("AUTH_HMAC_SECRET", ""),
			HMACAlgorithm:      getEnv("AUTH_HMAC_ALGORITHM", "sha256"),
			TimestampTolerance: time.Duration(getEnvAsInt("AUTH_TIMESTAMP_TOLERANCE_SEC", 300)) * time.Second,
			BearerToken:        getEnv("AUTH_BEARER_TOKEN", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the bounds every engine assumes hold. A failure here is a
// ConfigurationError: fatal at startup, never silently corrected.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.Allocation.StartP2Equity <= 0 || c.Allocation.FullP2Equity <= c.Allocation.StartP2Equity ||
		c.Allocation.StartP3Equity <= c.Allocation.FullP2Equity {
		return fmt.Errorf("equity tier thresholds must be strictly increasing and positive")
	}
	if c.Allocation.MicroMaxEquity <= 0 ||
		c.Allocation.SmallMaxEquity <= c.Allocation.MicroMaxEquity ||
		c.Allocation.MediumMaxEquity <= c.Allocation.SmallMaxEquity ||
		c.Allocation.LargeMaxEquity <= c.Allocation.MediumMaxEquity {
		return fmt.Errorf("equity tier band cutoffs must be strictly increasing and positive")
	}
	if c.Treasury.ReserveLimit < 0 {
		return fmt.Errorf("TREASURY_RESERVE_LIMIT must be >= 0")
	}
	if c.Treasury.SweepThreshold <= 1 {
		return fmt.Errorf("TREASURY_SWEEP_THRESHOLD must be > 1")
	}
	if c.Risk.MaxAccountLeverage <= 0 {
		return fmt.Errorf("RISK_MAX_ACCOUNT_LEVERAGE must be > 0")
	}
	if c.HFT.PreallocatedObjects <= 0 || c.HFT.PriorityQueueSize <= 0 {
		return fmt.Errorf("HFT pool/queue sizes must be > 0")
	}
	if c.Auth.HMACAlgorithm != "sha256" && c.Auth.HMACAlgorithm != "sha512" {
		return fmt.Errorf("AUTH_HMAC_ALGORITHM must be sha256 or sha512")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return iv
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if fv, err := strconv.ParseFloat(v, 64); err == nil {
			return fv
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if bv, err := strconv.ParseBool(v); err == nil {
			return bv
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return time.Duration(iv) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
