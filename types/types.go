package types

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES — trade intents, decisions, records, whale configs
// Lives in its own package so risk/execution/monitor avoid import cycles.
// ═══════════════════════════════════════════════════════════════════════════════

// MaxTradeValueNative is the hard structural ceiling on a single trade in
// native units, independent of the configurable risk limits.
var MaxTradeValueNative = decimal.NewFromInt(1000)

// TradeIntent is a caller's request to move value, prior to approval.
// Immutable once constructed through NewTradeIntent.
type TradeIntent struct {
	Destination common.Address
	ValueNative decimal.Decimal
	Payload     []byte
}

// NewTradeIntent validates and normalizes raw trade inputs.
func NewTradeIntent(destination string, value decimal.Decimal, payloadHex string) (*TradeIntent, error) {
	if !common.IsHexAddress(destination) {
		return nil, Validationf("invalid destination address: %s", destination)
	}
	if value.LessThanOrEqual(decimal.Zero) {
		return nil, Validationf("trade amount must be positive")
	}
	if value.GreaterThan(MaxTradeValueNative) {
		return nil, Validationf("trade amount %s exceeds hard ceiling %s",
			value.String(), MaxTradeValueNative.String())
	}
	payload, err := ParsePayload(payloadHex)
	if err != nil {
		return nil, err
	}
	return &TradeIntent{
		Destination: common.HexToAddress(destination),
		ValueNative: value,
		Payload:     payload,
	}, nil
}

// ParsePayload decodes an optional 0x-prefixed hex payload of even length.
// Empty string and bare "0x" both mean no payload.
func ParsePayload(payloadHex string) ([]byte, error) {
	if payloadHex == "" || payloadHex == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(payloadHex, "0x") {
		return nil, Validationf("payload must be 0x-prefixed hex")
	}
	raw := payloadHex[2:]
	if len(raw)%2 != 0 {
		return nil, Validationf("payload hex must have even length")
	}
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, Validationf("payload is not valid hex: %v", err)
	}
	return data, nil
}

// Decision is the risk gateway's verdict for one assessment.
// Produced fresh per Assess call, never mutated afterwards.
type Decision struct {
	Approved  bool      `json:"approved"`
	Reason    string    `json:"reason,omitempty"`
	RiskScore int       `json:"risk_score"`
	Warnings  []string  `json:"warnings,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskLimits is a read-only snapshot of the gateway's configured limits.
type RiskLimits struct {
	MaxTradeAmount   decimal.Decimal `json:"max_trade_amount"`
	MaxDailyVolume   decimal.Decimal `json:"max_daily_volume"`
	MaxHourlyTrades  int             `json:"max_hourly_trades"`
	MaxDailyTrades   int             `json:"max_daily_trades"`
	AllowedAddresses []string        `json:"allowed_addresses"`
}

// LimitsUpdate is an explicit partial update for risk limits.
// Nil fields are left unchanged; set fields must be positive.
type LimitsUpdate struct {
	MaxTradeAmount  *decimal.Decimal `json:"max_trade_amount,omitempty"`
	MaxDailyVolume  *decimal.Decimal `json:"max_daily_volume,omitempty"`
	MaxHourlyTrades *int             `json:"max_hourly_trades,omitempty"`
	MaxDailyTrades  *int             `json:"max_daily_trades,omitempty"`
}

// Validate checks every set field before any is applied.
func (u LimitsUpdate) Validate() error {
	if u.MaxTradeAmount != nil && u.MaxTradeAmount.LessThanOrEqual(decimal.Zero) {
		return Validationf("max_trade_amount must be positive")
	}
	if u.MaxDailyVolume != nil && u.MaxDailyVolume.LessThanOrEqual(decimal.Zero) {
		return Validationf("max_daily_volume must be positive")
	}
	if u.MaxHourlyTrades != nil && *u.MaxHourlyTrades <= 0 {
		return Validationf("max_hourly_trades must be positive")
	}
	if u.MaxDailyTrades != nil && *u.MaxDailyTrades <= 0 {
		return Validationf("max_daily_trades must be positive")
	}
	return nil
}

// TradeRecord is an append-only history entry kept by the risk gateway.
type TradeRecord struct {
	Timestamp          time.Time       `json:"timestamp"`
	Destination        string          `json:"destination"`
	ValueNative        decimal.Decimal `json:"value_native"`
	TxRef              string          `json:"tx_ref"`
	RunningDailyVolume decimal.Decimal `json:"running_daily_volume"`
	RunningDailyCount  int             `json:"running_daily_count"`
}

// TradingStats summarizes current window usage against the limits.
type TradingStats struct {
	DailyVolume           decimal.Decimal `json:"daily_volume"`
	DailyVolumeLimit      decimal.Decimal `json:"daily_volume_limit"`
	DailyVolumeRemaining  decimal.Decimal `json:"daily_volume_remaining"`
	DailyTrades           int             `json:"daily_trades"`
	DailyTradeLimit       int             `json:"daily_trade_limit"`
	DailyTradesRemaining  int             `json:"daily_trades_remaining"`
	HourlyTrades          int             `json:"hourly_trades"`
	HourlyTradeLimit      int             `json:"hourly_trade_limit"`
	HourlyTradesRemaining int             `json:"hourly_trades_remaining"`
	LastTrade             *TradeRecord    `json:"last_trade,omitempty"`
}

// TxStatus is the lifecycle state of a submitted transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// TradeResult is returned after a successful submission.
type TradeResult struct {
	TxRef       string          `json:"tx_ref"`
	Status      TxStatus        `json:"status"`
	Destination string          `json:"destination"`
	ValueNative decimal.Decimal `json:"value_native"`
	GasLimit    uint64          `json:"gas_limit"`
	Decision    *Decision       `json:"decision,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// SimulationReport is the result of a dry-run trade evaluation.
type SimulationReport struct {
	Approved          bool            `json:"approved"`
	Decision          *Decision       `json:"decision"`
	GasEstimate       uint64          `json:"gas_estimate"`
	FeeCostNative     decimal.Decimal `json:"fee_cost_native"`
	TotalCostNative   decimal.Decimal `json:"total_cost_native"`
	BalanceNative     decimal.Decimal `json:"balance_native"`
	BalanceSufficient bool            `json:"balance_sufficient"`
	Timestamp         time.Time       `json:"timestamp"`
}

// ObservedTrade is a third-party market trade seen on the activity feed.
// Identity for dedup purposes is (SourceAddress, ExternalRef).
type ObservedTrade struct {
	SourceAddress string          `json:"source_address"`
	MarketID      string          `json:"market_id"`
	OutcomeIndex  int             `json:"outcome_index"`
	AmountQuote   decimal.Decimal `json:"amount_quote"`
	Price         decimal.Decimal `json:"price"`
	ObservedAt    time.Time       `json:"observed_at"`
	ExternalRef   string          `json:"external_ref"`
}

// WhaleConfig describes one monitored address.
type WhaleConfig struct {
	Address          string          `json:"address"`
	DisplayName      string          `json:"display_name"`
	Category         string          `json:"category"`
	PositionFraction decimal.Decimal `json:"position_fraction"`
	MaxDailyTrades   int             `json:"max_daily_trades"`
	Enabled          bool            `json:"enabled"`
}

var one = decimal.NewFromInt(1)

// Validate checks a whale registration.
func (w WhaleConfig) Validate() error {
	if !common.IsHexAddress(w.Address) {
		return Validationf("invalid whale address: %s", w.Address)
	}
	if w.PositionFraction.LessThanOrEqual(decimal.Zero) || w.PositionFraction.GreaterThan(one) {
		return Validationf("position_fraction must be in (0, 1]")
	}
	if w.MaxDailyTrades < 0 {
		return Validationf("max_daily_trades must not be negative")
	}
	return nil
}

// WhaleUpdate is an explicit partial update for a monitored address.
type WhaleUpdate struct {
	DisplayName      *string          `json:"display_name,omitempty"`
	Category         *string          `json:"category,omitempty"`
	PositionFraction *decimal.Decimal `json:"position_fraction,omitempty"`
	MaxDailyTrades   *int             `json:"max_daily_trades,omitempty"`
	Enabled          *bool            `json:"enabled,omitempty"`
}

// Validate checks every set field before any is applied.
func (u WhaleUpdate) Validate() error {
	if u.PositionFraction != nil &&
		(u.PositionFraction.LessThanOrEqual(decimal.Zero) || u.PositionFraction.GreaterThan(one)) {
		return Validationf("position_fraction must be in (0, 1]")
	}
	if u.MaxDailyTrades != nil && *u.MaxDailyTrades < 0 {
		return Validationf("max_daily_trades must not be negative")
	}
	return nil
}

// MonitorStatus reports the copy-trading monitor's current state.
type MonitorStatus struct {
	Running      bool          `json:"running"`
	TrackedCount int           `json:"tracked_count"`
	Whales       []WhaleConfig `json:"whales"`
}

// NetworkInfo is a snapshot of the connected chain.
type NetworkInfo struct {
	ChainID        uint64          `json:"chain_id"`
	LatestBlock    uint64          `json:"latest_block"`
	FeePriceNative decimal.Decimal `json:"fee_price_native"`
}

// TradingSummary aggregates wallet, gateway and network state for operators.
type TradingSummary struct {
	WalletAddress string       `json:"wallet_address"`
	BalanceNative string       `json:"balance_native"`
	Stats         TradingStats `json:"stats"`
	Limits        RiskLimits   `json:"limits"`
	Network       *NetworkInfo `json:"network,omitempty"`
}
