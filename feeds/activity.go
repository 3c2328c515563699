package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ACTIVITY FEED - Recent market trades per tracked address
// ═══════════════════════════════════════════════════════════════════════════════

const DefaultActivityAPI = "https://data-api.polymarket.com"

// ActivityClient polls the data API for an address's recent trades.
// Transport failures yield an empty result and a logged warning; parse
// failures skip the offending row.
type ActivityClient struct {
	baseURL string
	client  *http.Client
}

// NewActivityClient builds a client for the given data API base URL.
func NewActivityClient(baseURL string) *ActivityClient {
	if baseURL == "" {
		baseURL = DefaultActivityAPI
	}
	return &ActivityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// activityRow mirrors the data API's trade row shape.
type activityRow struct {
	Slug      string      `json:"slug"`
	Outcome   string      `json:"outcome"`
	Amount    json.Number `json:"amount"`
	AvgPrice  json.Number `json:"avgPrice"`
	Timestamp string      `json:"timestamp"`
	TxHash    string      `json:"txHash"`
}

// FetchRecentActivity returns the address's most recent trades, newest
// first. The returned error is informational for backoff decisions; the
// slice is always usable.
func (c *ActivityClient) FetchRecentActivity(ctx context.Context, address string, limit int) ([]types.ObservedTrade, error) {
	q := url.Values{}
	q.Set("user", address)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sortBy", "timestamp")
	q.Set("sortDirection", "DESC")

	endpoint := fmt.Sprintf("%s/closed-positions?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("address", address).Msg("⚠️ Activity feed unreachable")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("activity feed returned status %d", resp.StatusCode)
		log.Warn().Int("status", resp.StatusCode).Str("address", address).Msg("⚠️ Activity feed error")
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn().Err(err).Str("address", address).Msg("⚠️ Activity feed read failed")
		return nil, err
	}

	rows, err := decodeRows(body)
	if err != nil {
		log.Warn().Err(err).Str("address", address).Msg("⚠️ Activity feed returned malformed JSON")
		return nil, err
	}

	trades := make([]types.ObservedTrade, 0, len(rows))
	for _, row := range rows {
		trade, err := row.toObservedTrade(address)
		if err != nil {
			log.Debug().Err(err).Str("address", address).Msg("Skipping unparseable activity row")
			continue
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// decodeRows accepts both a bare array and a {"data": [...]} wrapper.
func decodeRows(body []byte) ([]activityRow, error) {
	var rows []activityRow
	if err := json.Unmarshal(body, &rows); err == nil {
		return rows, nil
	}
	var wrapped struct {
		Data []activityRow `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Data, nil
}

func (r activityRow) toObservedTrade(address string) (types.ObservedTrade, error) {
	if r.TxHash == "" {
		return types.ObservedTrade{}, fmt.Errorf("row missing txHash")
	}

	amount, err := decimal.NewFromString(r.Amount.String())
	if err != nil {
		return types.ObservedTrade{}, fmt.Errorf("bad amount %q: %w", r.Amount, err)
	}
	price, err := decimal.NewFromString(r.AvgPrice.String())
	if err != nil {
		return types.ObservedTrade{}, fmt.Errorf("bad price %q: %w", r.AvgPrice, err)
	}

	observedAt, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return types.ObservedTrade{}, err
	}

	outcome := 0
	switch strings.ToLower(r.Outcome) {
	case "yes", "true", "1":
		outcome = 1
	}

	return types.ObservedTrade{
		SourceAddress: address,
		MarketID:      r.Slug,
		OutcomeIndex:  outcome,
		AmountQuote:   amount,
		Price:         price,
		ObservedAt:    observedAt,
		ExternalRef:   r.TxHash,
	}, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("row missing timestamp")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	// Some feed rows carry unix seconds instead.
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}
