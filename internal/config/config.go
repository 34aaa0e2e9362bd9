// Package config defines all configuration for the trading core.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via RISK_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun      bool              `mapstructure:"dry_run"`
	Equities    EquitiesConfig    `mapstructure:"equities"`
	Prediction  PredictionConfig  `mapstructure:"prediction"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Drawdown    DrawdownConfig    `mapstructure:"drawdown"`
	Sizing      SizingConfig      `mapstructure:"sizing"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Compliance  ComplianceConfig  `mapstructure:"compliance"`
	Approval    ApprovalConfig    `mapstructure:"approval"`
	PnL         PnLConfig         `mapstructure:"pnl"`
	Thesis      ThesisConfig      `mapstructure:"thesis"`
	Strategy    StrategyConfig    `mapstructure:"strategy"`
	Scanner     ScannerConfig     `mapstructure:"scanner"`
	Journal     JournalConfig     `mapstructure:"journal"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// EquitiesConfig holds the equities broker endpoints and credentials.
// Paper and live environments differ by host; the data host is shared.
type EquitiesConfig struct {
	APIKey           string `mapstructure:"api_key"`
	APISecret        string `mapstructure:"api_secret"`
	Paper            bool   `mapstructure:"paper"`
	BaseURL          string `mapstructure:"base_url"`
	DataURL          string `mapstructure:"data_url"`
	StreamURL        string `mapstructure:"stream_url"`
	TradingStreamURL string `mapstructure:"trading_stream_url"`
	DataFeed         string `mapstructure:"data_feed"` // "iex" (free) or "sip" (paid)
	RateLimitPerMin  int    `mapstructure:"rate_limit_per_min"`
}

// PredictionConfig holds the prediction-market venue endpoints and
// credentials. Either email/password (session token) or an API key.
type PredictionConfig struct {
	Email           string `mapstructure:"email"`
	Password        string `mapstructure:"password"`
	APIKey          string `mapstructure:"api_key"`
	Demo            bool   `mapstructure:"demo"`
	BaseURL         string `mapstructure:"base_url"`
	WSURL           string `mapstructure:"ws_url"`
	RateLimitPerSec int    `mapstructure:"rate_limit_per_sec"`
}

// RiskConfig sets the hard pre-trade limits enforced by the risk engine.
// Monetary values are in account-currency dollars; the risk package converts
// them to decimals at startup.
type RiskConfig struct {
	MaxOrderNotional    float64 `mapstructure:"max_order_notional"`
	MaxOrderShares      int64   `mapstructure:"max_order_shares"`
	MaxPositionShares   int64   `mapstructure:"max_position_shares"`
	MaxPositionNotional float64 `mapstructure:"max_position_notional"`
	MaxTotalExposure    float64 `mapstructure:"max_total_exposure"`
	MaxConcentrationPct float64 `mapstructure:"max_concentration_pct"`

	MaxDailyLoss   float64 `mapstructure:"max_daily_loss"`
	MaxWeeklyLoss  float64 `mapstructure:"max_weekly_loss"`
	MaxDrawdownPct float64 `mapstructure:"max_drawdown_pct"`

	DailySpendLimit   float64 `mapstructure:"daily_spend_limit"`
	WeeklySpendLimit  float64 `mapstructure:"weekly_spend_limit"`
	MonthlySpendLimit float64 `mapstructure:"monthly_spend_limit"`

	ApprovalNotionalThreshold float64 `mapstructure:"approval_notional_threshold"`
	ApprovalLossThreshold     float64 `mapstructure:"approval_loss_threshold"`

	AllowedSymbols []string `mapstructure:"allowed_symbols"` // empty = allowlist disabled
	BlockedSymbols []string `mapstructure:"blocked_symbols"`

	// Circuit breaker
	MaxRejectRate    float64       `mapstructure:"max_reject_rate"`
	MaxSlippagePct   float64       `mapstructure:"max_slippage_pct"`
	RejectWindowSize int           `mapstructure:"reject_window_size"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// DrawdownConfig sets the equity-drawdown thresholds for each protection
// level. Thresholds are fractions of peak equity; a drawdown exactly equal
// to a threshold activates the higher level.
type DrawdownConfig struct {
	CautionPct            float64 `mapstructure:"caution_pct"`
	WarningPct            float64 `mapstructure:"warning_pct"`
	CriticalPct           float64 `mapstructure:"critical_pct"`
	EmergencyPct          float64 `mapstructure:"emergency_pct"`
	RecoveryCooldownHours float64 `mapstructure:"recovery_cooldown_hours"`
	ReducedSizingPct      float64 `mapstructure:"reduced_sizing_pct"`
	PreserveWinners       bool    `mapstructure:"preserve_winners"`
}

// SizingConfig tunes Kelly-based position sizing.
type SizingConfig struct {
	Mode            string  `mapstructure:"mode"` // "full", "half", "quarter", "volatility"
	MaxPositionPct  float64 `mapstructure:"max_position_pct"`
	MaxTotalRiskPct float64 `mapstructure:"max_total_risk_pct"`
	DefaultStopPct  float64 `mapstructure:"default_stop_pct"`
	MinSampleTrades int     `mapstructure:"min_sample_trades"`
	TargetVol       float64 `mapstructure:"target_vol"`
}

// CorrelationConfig sets sector/group/single-name exposure ceilings as
// fractions of account equity.
type CorrelationConfig struct {
	MaxSingleStockPct     float64 `mapstructure:"max_single_stock_pct"`
	MaxSectorExposurePct  float64 `mapstructure:"max_sector_exposure_pct"`
	MaxUnknownSectorPct   float64 `mapstructure:"max_unknown_sector_pct"`
	MaxGroupExposurePct   float64 `mapstructure:"max_group_exposure_pct"`
	MaxPositionsPerSector int     `mapstructure:"max_positions_per_sector"`
}

// ComplianceConfig restricts prediction-market trading by category and
// ticker, with per-market contract limits.
type ComplianceConfig struct {
	BlockedCategories      []string `mapstructure:"blocked_categories"`
	AllowedCategories      []string `mapstructure:"allowed_categories"` // empty = all allowed
	BlockedTickers         []string `mapstructure:"blocked_tickers"`
	MaxContractsPerMarket  int64    `mapstructure:"max_contracts_per_market"`
	MaxOrderContracts      int64    `mapstructure:"max_order_contracts"`
	MaxOpenPositions       int      `mapstructure:"max_open_positions"`
	MaxCategoryExposurePct float64  `mapstructure:"max_category_exposure_pct"`
	MinOrderbookDepth      int      `mapstructure:"min_orderbook_depth"`
}

// ApprovalConfig controls the human-in-the-loop workflow.
type ApprovalConfig struct {
	MaxPending  int           `mapstructure:"max_pending"`
	Timeout     time.Duration `mapstructure:"timeout"`
	HistorySize int           `mapstructure:"history_size"`
}

// PnLConfig sets P&L alert thresholds and the per-(type, scope) cooldown.
type PnLConfig struct {
	DailyProfitTarget     float64 `mapstructure:"daily_profit_target"`
	DailyLossLimit        float64 `mapstructure:"daily_loss_limit"`
	PositionProfitPct     float64 `mapstructure:"position_profit_pct"`
	PositionLossPct       float64 `mapstructure:"position_loss_pct"`
	PositionProfitUSD     float64 `mapstructure:"position_profit_usd"`
	PositionLossUSD       float64 `mapstructure:"position_loss_usd"`
	LosingStreak          int     `mapstructure:"losing_streak"`
	WinningStreak         int     `mapstructure:"winning_streak"`
	VelocityThresholdPct  float64 `mapstructure:"velocity_threshold_pct"`
	VelocityWindowMinutes int     `mapstructure:"velocity_window_minutes"`
	DrawdownWarningPct    float64 `mapstructure:"drawdown_warning_pct"`
	CooldownMinutes       int     `mapstructure:"cooldown_minutes"`
}

// ThesisConfig sets where thesis documents are persisted and the flat
// round-trip fee used for realized P&L.
type ThesisConfig struct {
	DataDir       string `mapstructure:"data_dir"`
	FeeCents      int    `mapstructure:"fee_cents"` // round-trip, per contract
	CleanupTTLDay int    `mapstructure:"cleanup_ttl_days"`
}

// StrategyConfig tunes the value/mispricing evaluator.
type StrategyConfig struct {
	MinEdge                   float64 `mapstructure:"min_edge"`
	MinConfidence             float64 `mapstructure:"min_confidence"`
	MaxPositionPct            float64 `mapstructure:"max_position_pct"`
	MaxPositionPerMarket      float64 `mapstructure:"max_position_per_market"`
	MinLiquidityScore         float64 `mapstructure:"min_liquidity_score"`
	MaxSpreadPct              float64 `mapstructure:"max_spread_pct"`
	MinTimeToCloseHours       float64 `mapstructure:"min_time_to_close_hours"`
	MaxKellyFraction          float64 `mapstructure:"max_kelly_fraction"`
	InvalidationEdgeThreshold float64 `mapstructure:"invalidation_edge_threshold"`
	InvalidationPriceMovePct  float64 `mapstructure:"invalidation_price_move_pct"`
}

// ScannerConfig controls how the core discovers candidate prediction markets.
type ScannerConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	MinVolume24h       int64         `mapstructure:"min_volume_24h"`
	MaxTimeToCloseDays int           `mapstructure:"max_time_to_close_days"`
	Categories         []string      `mapstructure:"categories"` // empty = all
	MaxCandidates      int           `mapstructure:"max_candidates"`
}

// JournalConfig sets where the append-only audit trail is written.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// MonitorConfig controls venue health checking.
type MonitorConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: RISK_EQUITIES_API_KEY, RISK_EQUITIES_API_SECRET,
// RISK_PREDICTION_EMAIL, RISK_PREDICTION_PASSWORD, RISK_PREDICTION_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("RISK_EQUITIES_API_KEY"); key != "" {
		cfg.Equities.APIKey = key
	}
	if secret := os.Getenv("RISK_EQUITIES_API_SECRET"); secret != "" {
		cfg.Equities.APISecret = secret
	}
	if email := os.Getenv("RISK_PREDICTION_EMAIL"); email != "" {
		cfg.Prediction.Email = email
	}
	if pass := os.Getenv("RISK_PREDICTION_PASSWORD"); pass != "" {
		cfg.Prediction.Password = pass
	}
	if key := os.Getenv("RISK_PREDICTION_API_KEY"); key != "" {
		cfg.Prediction.APIKey = key
	}
	if os.Getenv("RISK_DRY_RUN") == "true" || os.Getenv("RISK_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills zero values that have sensible operational defaults.
func applyDefaults(cfg *Config) {
	if cfg.Equities.RateLimitPerMin == 0 {
		cfg.Equities.RateLimitPerMin = 200
	}
	if cfg.Equities.DataFeed == "" {
		cfg.Equities.DataFeed = "iex"
	}
	if cfg.Prediction.RateLimitPerSec == 0 {
		cfg.Prediction.RateLimitPerSec = 10
	}
	if cfg.Risk.RejectWindowSize == 0 {
		cfg.Risk.RejectWindowSize = 10
	}
	if cfg.Risk.BreakerCooldown == 0 {
		cfg.Risk.BreakerCooldown = 5 * time.Minute
	}
	if cfg.Sizing.MinSampleTrades == 0 {
		cfg.Sizing.MinSampleTrades = 30
	}
	if cfg.Sizing.DefaultStopPct == 0 {
		cfg.Sizing.DefaultStopPct = 0.02
	}
	if cfg.Approval.MaxPending == 0 {
		cfg.Approval.MaxPending = 100
	}
	if cfg.Approval.HistorySize == 0 {
		cfg.Approval.HistorySize = 1000
	}
	if cfg.Approval.Timeout == 0 {
		cfg.Approval.Timeout = 5 * time.Minute
	}
	if cfg.PnL.CooldownMinutes == 0 {
		cfg.PnL.CooldownMinutes = 10
	}
	if cfg.PnL.VelocityWindowMinutes == 0 {
		cfg.PnL.VelocityWindowMinutes = 15
	}
	if cfg.PnL.DrawdownWarningPct == 0 {
		cfg.PnL.DrawdownWarningPct = 0.05
	}
	if cfg.Thesis.FeeCents == 0 {
		cfg.Thesis.FeeCents = 14
	}
	if cfg.Thesis.CleanupTTLDay == 0 {
		cfg.Thesis.CleanupTTLDay = 30
	}
	if cfg.Strategy.MinEdge == 0 {
		cfg.Strategy.MinEdge = 0.05
	}
	if cfg.Monitor.CheckInterval == 0 {
		cfg.Monitor.CheckInterval = time.Minute
	}
	if cfg.Scanner.PollInterval == 0 {
		cfg.Scanner.PollInterval = time.Minute
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Equities.APIKey == "" {
		return fmt.Errorf("equities.api_key is required (set RISK_EQUITIES_API_KEY)")
	}
	if c.Equities.APISecret == "" {
		return fmt.Errorf("equities.api_secret is required (set RISK_EQUITIES_API_SECRET)")
	}
	if c.Equities.BaseURL == "" {
		return fmt.Errorf("equities.base_url is required")
	}
	if c.Prediction.APIKey == "" && (c.Prediction.Email == "" || c.Prediction.Password == "") {
		return fmt.Errorf("prediction venue needs api_key or email+password")
	}
	if c.Prediction.BaseURL == "" {
		return fmt.Errorf("prediction.base_url is required")
	}
	if c.Risk.MaxOrderNotional <= 0 {
		return fmt.Errorf("risk.max_order_notional must be > 0")
	}
	if c.Risk.MaxTotalExposure <= 0 {
		return fmt.Errorf("risk.max_total_exposure must be > 0")
	}
	if c.Risk.MaxConcentrationPct <= 0 || c.Risk.MaxConcentrationPct > 1 {
		return fmt.Errorf("risk.max_concentration_pct must be in (0, 1]")
	}
	if c.Risk.MaxRejectRate <= 0 || c.Risk.MaxRejectRate > 1 {
		return fmt.Errorf("risk.max_reject_rate must be in (0, 1]")
	}
	dd := c.Drawdown
	if !(dd.CautionPct < dd.WarningPct && dd.WarningPct < dd.CriticalPct && dd.CriticalPct < dd.EmergencyPct) {
		return fmt.Errorf("drawdown thresholds must be strictly increasing: caution < warning < critical < emergency")
	}
	if c.Sizing.MaxPositionPct <= 0 || c.Sizing.MaxPositionPct > 1 {
		return fmt.Errorf("sizing.max_position_pct must be in (0, 1]")
	}
	if c.Thesis.DataDir == "" {
		return fmt.Errorf("thesis.data_dir is required")
	}
	return nil
}
