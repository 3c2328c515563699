package risk

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK GATEWAY - Central trade approval system
// ═══════════════════════════════════════════════════════════════════════════════
//
// Caller asks → Gateway approves/rejects → Executor submits → Gateway records
//
// Assess is a pure read of (intent, counters, limits); only Record mutates.
// All counter access goes through one mutex.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Score weights per failed check. Warnings add on top without blocking.
const (
	scoreNonPositive   = 100
	scoreAmountExceed  = 50
	scoreNotAllowed    = 100
	scoreDailyVolume   = 40
	scoreHourlyCount   = 30
	scoreDailyCount    = 25
	scoreLargePayload  = 10
	scoreSoftThreshold = 5
)

// largePayloadBytes triggers the "large data payload" warning.
const largePayloadBytes = 5000

var softLimitFraction = decimal.NewFromFloat(0.8)

// Config holds the gateway's starting limits and allow-list.
type Config struct {
	MaxTradeAmount   decimal.Decimal
	MaxDailyVolume   decimal.Decimal
	MaxHourlyTrades  int
	MaxDailyTrades   int
	AllowedAddresses []string
}

// ConfigFromEnv reads limits from the environment with safe defaults.
func ConfigFromEnv() Config {
	cfg := Config{
		MaxTradeAmount:  envDecimal("MAX_TRADE_AMOUNT", "1.0"),
		MaxDailyVolume:  envDecimal("MAX_DAILY_VOLUME", "10.0"),
		MaxHourlyTrades: envInt("MAX_HOURLY_TRADES", 20),
		MaxDailyTrades:  envInt("MAX_DAILY_TRADES", 100),
	}
	if raw := os.Getenv("ALLOWED_ADDRESSES"); raw != "" {
		for _, addr := range strings.Split(raw, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				cfg.AllowedAddresses = append(cfg.AllowedAddresses, addr)
			}
		}
	}
	return cfg
}

func envDecimal(key, fallback string) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		raw = fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("⚠️ Invalid decimal env value, using default")
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Msg("⚠️ Invalid integer env value, using default")
		return fallback
	}
	return n
}

// Gateway is the stateful trade approval system.
type Gateway struct {
	mu    sync.RWMutex
	clock Clock

	maxTradeAmount  decimal.Decimal
	maxDailyVolume  decimal.Decimal
	maxHourlyTrades int
	maxDailyTrades  int

	allowed map[string]bool // lowercased address → allowed

	dailyVolume map[string]decimal.Decimal
	dailyCount  map[string]int
	hourlyCount map[string]int

	history []types.TradeRecord
}

const historyLimit = 1000

// NewGateway builds a gateway with the given limits.
func NewGateway(cfg Config, clock Clock) *Gateway {
	if clock == nil {
		clock = SystemClock()
	}
	g := &Gateway{
		clock:           clock,
		maxTradeAmount:  cfg.MaxTradeAmount,
		maxDailyVolume:  cfg.MaxDailyVolume,
		maxHourlyTrades: cfg.MaxHourlyTrades,
		maxDailyTrades:  cfg.MaxDailyTrades,
		allowed:         make(map[string]bool),
		dailyVolume:     make(map[string]decimal.Decimal),
		dailyCount:      make(map[string]int),
		hourlyCount:     make(map[string]int),
	}
	for _, addr := range cfg.AllowedAddresses {
		g.allowed[strings.ToLower(addr)] = true
	}

	log.Info().
		Str("max_trade_amount", g.maxTradeAmount.String()).
		Str("max_daily_volume", g.maxDailyVolume.String()).
		Int("max_hourly_trades", g.maxHourlyTrades).
		Int("max_daily_trades", g.maxDailyTrades).
		Int("allowed_addresses", len(g.allowed)).
		Msg("🛡️ Risk gateway initialized")

	return g
}

// Assess evaluates a trade against the current limits and counters.
// Side-effect-free: repeat calls without an intervening Record return the
// same verdict. Never panics past this boundary.
func (g *Gateway) Assess(destination string, value decimal.Decimal, payload []byte) (d types.Decision) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("❌ Risk assessment panicked")
			d = types.Decision{
				Approved:  false,
				Reason:    fmt.Sprintf("assessment error: %v", r),
				RiskScore: 100,
				Timestamp: g.clock.Now(),
			}
		}
	}()

	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.clock.Now()
	d = types.Decision{Timestamp: now}

	reject := func(score int, format string, args ...interface{}) types.Decision {
		d.Approved = false
		d.Reason = fmt.Sprintf(format, args...)
		d.RiskScore = score
		log.Warn().Str("reason", d.Reason).Int("risk_score", d.RiskScore).Msg("🚫 Trade rejected")
		return d
	}

	if value.LessThanOrEqual(decimal.Zero) {
		return reject(scoreNonPositive, "trade amount must be positive")
	}
	if value.GreaterThan(g.maxTradeAmount) {
		return reject(scoreAmountExceed, "trade amount %s exceeds limit %s",
			value.String(), limitString(g.maxTradeAmount))
	}
	if !g.allowed[strings.ToLower(destination)] {
		return reject(scoreNotAllowed, "destination %s not in allowed address list", destination)
	}

	dayVolume := g.dailyVolume[dayKey(now)]
	projected := dayVolume.Add(value)
	if projected.GreaterThan(g.maxDailyVolume) {
		return reject(scoreDailyVolume, "daily volume would exceed limit: %s > %s",
			projected.String(), limitString(g.maxDailyVolume))
	}

	hourCount := g.hourlyCount[hourKey(now)]
	if hourCount >= g.maxHourlyTrades {
		return reject(scoreHourlyCount, "hourly trade count limit reached: %d >= %d",
			hourCount, g.maxHourlyTrades)
	}

	dayCount := g.dailyCount[dayKey(now)]
	if dayCount >= g.maxDailyTrades {
		return reject(scoreDailyCount, "daily trade count limit reached: %d >= %d",
			dayCount, g.maxDailyTrades)
	}

	d.Approved = true
	if len(payload) > largePayloadBytes {
		d.Warnings = append(d.Warnings, "large data payload detected")
		d.RiskScore += scoreLargePayload
	}
	if value.GreaterThan(g.maxTradeAmount.Mul(softLimitFraction)) {
		d.Warnings = append(d.Warnings, "high-value trade detected")
		d.RiskScore += scoreSoftThreshold
	}
	if projected.GreaterThan(g.maxDailyVolume.Mul(softLimitFraction)) {
		d.Warnings = append(d.Warnings, "approaching daily volume limit")
		d.RiskScore += scoreSoftThreshold
	}
	if decimal.NewFromInt(int64(dayCount+1)).GreaterThan(
		decimal.NewFromInt(int64(g.maxDailyTrades)).Mul(softLimitFraction)) {
		d.Warnings = append(d.Warnings, "approaching daily trade limit")
		d.RiskScore += scoreSoftThreshold
	}

	log.Debug().
		Bool("approved", d.Approved).
		Int("risk_score", d.RiskScore).
		Int("warnings", len(d.Warnings)).
		Msg("Trade assessment completed")

	return d
}

// Record books a submitted trade into the current windows and history.
// Must be called exactly once per submitted trade, never for rejections.
func (g *Gateway) Record(destination string, value decimal.Decimal, txRef string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	day := dayKey(now)
	hour := hourKey(now)

	g.dailyVolume[day] = g.dailyVolume[day].Add(value)
	g.dailyCount[day]++
	g.hourlyCount[hour]++

	g.history = append(g.history, types.TradeRecord{
		Timestamp:          now,
		Destination:        destination,
		ValueNative:        value,
		TxRef:              txRef,
		RunningDailyVolume: g.dailyVolume[day],
		RunningDailyCount:  g.dailyCount[day],
	})
	if len(g.history) > historyLimit {
		g.history = g.history[len(g.history)-historyLimit:]
	}

	log.Info().
		Str("destination", destination).
		Str("value", value.String()).
		Str("tx_ref", txRef).
		Str("daily_volume", g.dailyVolume[day].String()).
		Int("daily_count", g.dailyCount[day]).
		Msg("📒 Trade recorded")
}

// UpdateLimits applies a validated partial update, effective immediately
// for subsequent assessments. Past decisions are never recomputed.
func (g *Gateway) UpdateLimits(update types.LimitsUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if update.MaxTradeAmount != nil {
		g.maxTradeAmount = *update.MaxTradeAmount
	}
	if update.MaxDailyVolume != nil {
		g.maxDailyVolume = *update.MaxDailyVolume
	}
	if update.MaxHourlyTrades != nil {
		g.maxHourlyTrades = *update.MaxHourlyTrades
	}
	if update.MaxDailyTrades != nil {
		g.maxDailyTrades = *update.MaxDailyTrades
	}

	log.Info().
		Str("max_trade_amount", g.maxTradeAmount.String()).
		Str("max_daily_volume", g.maxDailyVolume.String()).
		Int("max_hourly_trades", g.maxHourlyTrades).
		Int("max_daily_trades", g.maxDailyTrades).
		Msg("🔧 Risk limits updated")

	return nil
}

// AddAllowedAddress permits a destination for subsequent assessments.
func (g *Gateway) AddAllowedAddress(address string) {
	g.mu.Lock()
	g.allowed[strings.ToLower(address)] = true
	g.mu.Unlock()
	log.Info().Str("address", address).Msg("✅ Address added to allow-list")
}

// RemoveAllowedAddress revokes a destination.
func (g *Gateway) RemoveAllowedAddress(address string) {
	g.mu.Lock()
	delete(g.allowed, strings.ToLower(address))
	g.mu.Unlock()
	log.Info().Str("address", address).Msg("🗑️ Address removed from allow-list")
}

// Limits returns a snapshot of the configured limits and allow-list.
func (g *Gateway) Limits() types.RiskLimits {
	g.mu.RLock()
	defer g.mu.RUnlock()

	addrs := make([]string, 0, len(g.allowed))
	for addr := range g.allowed {
		addrs = append(addrs, addr)
	}
	return types.RiskLimits{
		MaxTradeAmount:   g.maxTradeAmount,
		MaxDailyVolume:   g.maxDailyVolume,
		MaxHourlyTrades:  g.maxHourlyTrades,
		MaxDailyTrades:   g.maxDailyTrades,
		AllowedAddresses: addrs,
	}
}

// Stats reports current window usage against the limits.
func (g *Gateway) Stats() types.TradingStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.clock.Now()
	dayVolume := g.dailyVolume[dayKey(now)]
	dayCount := g.dailyCount[dayKey(now)]
	hourCount := g.hourlyCount[hourKey(now)]

	stats := types.TradingStats{
		DailyVolume:           dayVolume,
		DailyVolumeLimit:      g.maxDailyVolume,
		DailyVolumeRemaining:  decimal.Max(decimal.Zero, g.maxDailyVolume.Sub(dayVolume)),
		DailyTrades:           dayCount,
		DailyTradeLimit:       g.maxDailyTrades,
		DailyTradesRemaining:  maxInt(0, g.maxDailyTrades-dayCount),
		HourlyTrades:          hourCount,
		HourlyTradeLimit:      g.maxHourlyTrades,
		HourlyTradesRemaining: maxInt(0, g.maxHourlyTrades-hourCount),
	}
	if len(g.history) > 0 {
		last := g.history[len(g.history)-1]
		stats.LastTrade = &last
	}
	return stats
}

// History returns the most recent trade records, newest last.
// limit <= 0 returns everything retained.
func (g *Gateway) History(limit int) []types.TradeRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := len(g.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.TradeRecord, n)
	copy(out, g.history[len(g.history)-n:])
	return out
}

// limitString renders a limit at the scale it was configured with, so a cap
// set as "1.0" reads back as "1.0" in rejection reasons, not "1".
// decimal.String trims trailing zeros.
func limitString(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
