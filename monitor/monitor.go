package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// WHALE COPY-TRADING MONITOR
// ═══════════════════════════════════════════════════════════════════════════════
//
// Poll the activity feed per tracked address → drop stale → dedup →
// delay → size proportionally → bet through the executor.
//
// The monitor never bypasses the risk gateway: every derived trade goes
// through the executor's market-bet pipeline.
//
// ═══════════════════════════════════════════════════════════════════════════════

// seenLimit bounds each whale's dedup set. Far above the per-poll page
// size, so overlap between polls always hits the set.
const seenLimit = 64

// BetExecutor is the monitor's view of the trade executor.
type BetExecutor interface {
	ExecuteMarketBet(ctx context.Context, marketID string, outcome int, amountQuote, price decimal.Decimal) (*types.TradeResult, error)
	QuoteBalance(ctx context.Context) (decimal.Decimal, error)
}

// ActivityFetcher is the monitor's view of the market feed.
type ActivityFetcher interface {
	FetchRecentActivity(ctx context.Context, address string, limit int) ([]types.ObservedTrade, error)
}

// Config holds the monitor's tunables.
type Config struct {
	PollInterval      time.Duration
	CopyDelay         time.Duration
	FreshnessWindow   time.Duration
	GlobalMaxFraction decimal.Decimal
	MinNotional       decimal.Decimal
	FetchLimit        int
	FailureBackoff    time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:      30 * time.Second,
		CopyDelay:         5 * time.Second,
		FreshnessWindow:   5 * time.Minute,
		GlobalMaxFraction: decimal.NewFromFloat(0.05),
		MinNotional:       decimal.NewFromInt(1),
		FetchLimit:        5,
		FailureBackoff:    5 * time.Second,
	}
}

// whaleState is one tracked address plus its dedup and cap bookkeeping.
type whaleState struct {
	cfg types.WhaleConfig

	seen     map[string]bool
	seenFIFO []string

	busy bool // a poll cycle for this whale is in flight

	dayKey   string
	dayCount int
}

// Monitor owns the polling lifecycle: Stopped → Running → Stopped.
type Monitor struct {
	mu sync.Mutex

	cfg  Config
	exec BetExecutor
	feed ActivityFetcher
	now  func() time.Time

	whales map[string]*whaleState

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	onEvent func(msg string)
}

// New builds a stopped monitor.
func New(cfg Config, exec BetExecutor, feed ActivityFetcher) *Monitor {
	return &Monitor{
		cfg:    cfg,
		exec:   exec,
		feed:   feed,
		now:    func() time.Time { return time.Now().UTC() },
		whales: make(map[string]*whaleState),
	}
}

// SetEventCallback registers a hook for lifecycle and copy-trade events.
func (m *Monitor) SetEventCallback(cb func(msg string)) {
	m.onEvent = cb
}

// AddWhale registers an address for copy trading.
func (m *Monitor) AddWhale(cfg types.WhaleConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	key := strings.ToLower(cfg.Address)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.whales[key]; exists {
		return types.Validationf("whale %s already tracked", cfg.Address)
	}
	m.whales[key] = &whaleState{
		cfg:  cfg,
		seen: make(map[string]bool),
	}
	log.Info().Str("address", cfg.Address).Str("name", cfg.DisplayName).Msg("🐋 Whale added")
	return nil
}

// RemoveWhale stops tracking an address.
func (m *Monitor) RemoveWhale(address string) error {
	key := strings.ToLower(address)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.whales[key]; !exists {
		return types.Validationf("whale %s not tracked", address)
	}
	delete(m.whales, key)
	log.Info().Str("address", address).Msg("🗑️ Whale removed")
	return nil
}

// UpdateWhale applies a validated partial update.
func (m *Monitor) UpdateWhale(address string, update types.WhaleUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	key := strings.ToLower(address)

	m.mu.Lock()
	defer m.mu.Unlock()
	w, exists := m.whales[key]
	if !exists {
		return types.Validationf("whale %s not tracked", address)
	}
	if update.DisplayName != nil {
		w.cfg.DisplayName = *update.DisplayName
	}
	if update.Category != nil {
		w.cfg.Category = *update.Category
	}
	if update.PositionFraction != nil {
		w.cfg.PositionFraction = *update.PositionFraction
	}
	if update.MaxDailyTrades != nil {
		w.cfg.MaxDailyTrades = *update.MaxDailyTrades
	}
	if update.Enabled != nil {
		w.cfg.Enabled = *update.Enabled
	}
	log.Info().Str("address", address).Msg("🔧 Whale config updated")
	return nil
}

// Start begins polling. Re-entrant starts are no-ops.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(stopCh)

	log.Info().Dur("interval", m.cfg.PollInterval).Msg("👀 Whale monitoring started")
	m.emit("Whale monitoring started")
}

// Stop prevents new poll cycles. Work already dispatched for a whale
// runs to completion; nothing in flight is aborted.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	log.Info().Msg("🛑 Whale monitoring stopped")
	m.emit("Whale monitoring stopped")
}

// Status reports the monitor's state and tracked whales.
func (m *Monitor) Status() types.MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	whales := make([]types.WhaleConfig, 0, len(m.whales))
	for _, w := range m.whales {
		whales = append(whales, w.cfg)
	}
	return types.MonitorStatus{
		Running:      m.running,
		TrackedCount: len(m.whales),
		Whales:       whales,
	}
}

func (m *Monitor) run(stopCh chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	m.cycle()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.cycle()
		}
	}
}

// cycle dispatches one poll per enabled whale. Whales run concurrently
// with each other but never overlap themselves: a whale still busy from
// the previous cycle (including its copy delay) is skipped.
func (m *Monitor) cycle() {
	m.mu.Lock()
	var due []string
	for key, w := range m.whales {
		if w.cfg.Enabled && !w.busy {
			w.busy = true
			due = append(due, key)
		}
	}
	m.mu.Unlock()

	for _, key := range due {
		go func(key string) {
			defer func() {
				m.mu.Lock()
				if w, ok := m.whales[key]; ok {
					w.busy = false
				}
				m.mu.Unlock()
			}()
			m.pollWhale(key)
		}(key)
	}
}

// pollWhale runs one full cycle for one whale. All failures are logged
// and contained here; nothing escapes to stop the loop or starve other
// whales.
func (m *Monitor) pollWhale(key string) {
	ctx := context.Background()

	m.mu.Lock()
	w, ok := m.whales[key]
	if !ok || !w.cfg.Enabled {
		m.mu.Unlock()
		return
	}
	cfg := w.cfg
	m.mu.Unlock()

	trades, err := m.feed.FetchRecentActivity(ctx, cfg.Address, m.cfg.FetchLimit)
	if err != nil {
		log.Warn().Err(err).Str("address", cfg.Address).Msg("⚠️ Activity poll failed, backing off")
		time.Sleep(m.cfg.FailureBackoff)
		return
	}

	for _, trade := range trades {
		if m.now().Sub(trade.ObservedAt) > m.cfg.FreshnessWindow {
			continue // stale trades are never copied, even on first sight
		}
		if !m.markSeen(key, trade.ExternalRef) {
			continue
		}
		m.copyTrade(ctx, key, cfg, trade)
	}
}

// markSeen reports whether the ref is new and books it into the bounded
// FIFO dedup set.
func (m *Monitor) markSeen(key, ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.whales[key]
	if !ok || w.seen[ref] {
		return false
	}
	w.seen[ref] = true
	w.seenFIFO = append(w.seenFIFO, ref)
	if len(w.seenFIFO) > seenLimit {
		oldest := w.seenFIFO[0]
		w.seenFIFO = w.seenFIFO[1:]
		delete(w.seen, oldest)
	}
	return true
}

// underDailyCap reports whether the whale still has copy budget for the
// current UTC day. Safe to check-then-count without extra locking only
// because cycles for one whale never overlap.
func (m *Monitor) underDailyCap(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.whales[key]
	if !ok {
		return false
	}
	today := m.now().Format("2006-01-02")
	if w.dayKey != today {
		w.dayKey = today
		w.dayCount = 0
	}
	return w.cfg.MaxDailyTrades <= 0 || w.dayCount < w.cfg.MaxDailyTrades
}

// countDailyCopy consumes one slot of the whale's per-day budget.
func (m *Monitor) countDailyCopy(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.whales[key]; ok {
		w.dayCount++
	}
}

func (m *Monitor) copyTrade(ctx context.Context, key string, cfg types.WhaleConfig, trade types.ObservedTrade) {
	if !m.underDailyCap(key) {
		log.Info().
			Str("address", cfg.Address).
			Str("ref", trade.ExternalRef).
			Int("max_daily_trades", cfg.MaxDailyTrades).
			Msg("⏸️ Daily copy cap reached, skipping")
		return
	}

	// Intentional pause between detection and action.
	time.Sleep(m.cfg.CopyDelay)

	balance, err := m.exec.QuoteBalance(ctx)
	if err != nil {
		log.Warn().Err(err).Str("address", cfg.Address).Msg("⚠️ Quote balance unavailable, skipping copy")
		return
	}

	fraction := decimal.Min(cfg.PositionFraction, m.cfg.GlobalMaxFraction)
	amount := balance.Mul(fraction)
	if amount.LessThan(m.cfg.MinNotional) {
		log.Info().
			Str("address", cfg.Address).
			Str("computed", amount.String()).
			Str("min_notional", m.cfg.MinNotional.String()).
			Msg("⏭️ Copy size below minimum notional, skipping")
		return
	}

	log.Info().
		Str("whale", cfg.DisplayName).
		Str("market", trade.MarketID).
		Int("outcome", trade.OutcomeIndex).
		Str("amount", amount.String()).
		Msg("🐋 Copying whale trade")

	result, err := m.exec.ExecuteMarketBet(ctx, trade.MarketID, trade.OutcomeIndex, amount, trade.Price)
	if err != nil {
		log.Error().Err(err).
			Str("whale", cfg.DisplayName).
			Str("market", trade.MarketID).
			Msg("❌ Copy trade failed")
		return
	}

	m.countDailyCopy(key)
	log.Info().Str("tx_ref", result.TxRef).Str("whale", cfg.DisplayName).Msg("✅ Copy trade submitted")
	m.emit(fmt.Sprintf("Copied %s: %s on %s (%s)", cfg.DisplayName, amount.StringFixed(2), trade.MarketID, result.TxRef))
}

func (m *Monitor) emit(msg string) {
	if m.onEvent == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("❌ Monitor event callback panicked")
		}
	}()
	m.onEvent(msg)
}
