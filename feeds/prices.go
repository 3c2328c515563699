package feeds

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RATE FEED - Live quote/native conversion rate from the Binance stream
// ═══════════════════════════════════════════════════════════════════════════════

const (
	binanceWSURL = "wss://stream.binance.com:9443/ws"

	// rateStaleAfter is how long a streamed price stays trustworthy.
	rateStaleAfter = 5 * time.Minute
)

// RateFeed streams trades for one symbol (e.g. ethusdt) and exposes the
// latest price as the quote-per-native conversion rate. Before the first
// tick, or when the stream goes stale, the static fallback applies.
type RateFeed struct {
	wsURL    string
	symbol   string
	fallback decimal.Decimal

	mu         sync.RWMutex
	lastPrice  decimal.Decimal
	lastUpdate time.Time

	running bool
	stopCh  chan struct{}
	conn    *websocket.Conn
}

// NewRateFeed builds a feed for symbol with a static fallback rate.
func NewRateFeed(symbol string, fallback decimal.Decimal) *RateFeed {
	return &RateFeed{
		wsURL:    binanceWSURL,
		symbol:   symbol,
		fallback: fallback,
		stopCh:   make(chan struct{}),
	}
}

// Start connects the stream and begins updating the rate.
func (f *RateFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.mu.Unlock()

	go f.runWebSocket()
	log.Info().Str("symbol", f.symbol).Msg("📈 Rate feed started")
}

// Stop closes the stream. Convert keeps working on the fallback rate.
func (f *RateFeed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.mu.Unlock()

	close(f.stopCh)
	if f.conn != nil {
		f.conn.Close()
	}
	log.Info().Str("symbol", f.symbol).Msg("🛑 Rate feed stopped")
}

// Rate returns the current quote-per-native price and whether it came
// from the live stream.
func (f *RateFeed) Rate() (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.lastPrice.IsZero() || time.Since(f.lastUpdate) > rateStaleAfter {
		return f.fallback, false
	}
	return f.lastPrice, true
}

// Convert turns a quote amount into native units at the current rate.
// Satisfies the executor's QuoteConverter contract.
func (f *RateFeed) Convert(amountQuote decimal.Decimal) (decimal.Decimal, error) {
	rate, live := f.Rate()
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("no usable conversion rate for %s", f.symbol)
	}
	if !live {
		log.Debug().Str("symbol", f.symbol).Str("rate", rate.String()).Msg("Using fallback conversion rate")
	}
	return amountQuote.Div(rate), nil
}

func (f *RateFeed) isRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

func (f *RateFeed) runWebSocket() {
	for f.isRunning() {
		if err := f.connect(); err != nil {
			log.Error().Err(err).Msg("Rate feed connection failed")
			select {
			case <-f.stopCh:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		f.readMessages()

		if f.isRunning() {
			log.Warn().Msg("Rate feed disconnected, reconnecting...")
			time.Sleep(time.Second)
		}
	}
}

func (f *RateFeed) connect() error {
	url := fmt.Sprintf("%s/%s@trade", f.wsURL, f.symbol)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	f.conn = conn
	log.Info().Str("url", url).Msg("🔌 Rate feed connected")
	return nil
}

type tradeEvent struct {
	EventType string `json:"e"`
	Price     string `json:"p"`
}

func (f *RateFeed) readMessages() {
	for f.isRunning() {
		_, message, err := f.conn.ReadMessage()
		if err != nil {
			if f.isRunning() {
				log.Error().Err(err).Msg("Rate feed read error")
			}
			return
		}

		var event tradeEvent
		if err := json.Unmarshal(message, &event); err != nil || event.EventType != "trade" {
			continue
		}
		price, err := decimal.NewFromString(event.Price)
		if err != nil || price.LessThanOrEqual(decimal.Zero) {
			continue
		}

		f.mu.Lock()
		f.lastPrice = price
		f.lastUpdate = time.Now()
		f.mu.Unlock()
	}
}
