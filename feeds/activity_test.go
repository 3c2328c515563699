package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFetchRecentActivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user"); got != "0xwhale" {
			t.Errorf("user param = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit param = %q", got)
		}
		w.Write([]byte(`[
			{"slug":"market-a","outcome":"Yes","amount":"120.5","avgPrice":"0.63","timestamp":"2026-08-29T10:00:00Z","txHash":"0x111"},
			{"slug":"market-b","outcome":"No","amount":"50","avgPrice":"0.4","timestamp":"2026-08-29T09:59:00Z","txHash":"0x222"}
		]`))
	}))
	defer srv.Close()

	c := NewActivityClient(srv.URL)
	trades, err := c.FetchRecentActivity(context.Background(), "0xwhale", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}

	first := trades[0]
	if first.MarketID != "market-a" || first.OutcomeIndex != 1 || first.ExternalRef != "0x111" {
		t.Errorf("unexpected first trade: %+v", first)
	}
	if !first.AmountQuote.Equal(decimal.NewFromFloat(120.5)) {
		t.Errorf("amount = %s", first.AmountQuote)
	}
	if first.ObservedAt != time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC) {
		t.Errorf("observedAt = %s", first.ObservedAt)
	}
	if trades[1].OutcomeIndex != 0 {
		t.Errorf("outcome No should map to 0, got %d", trades[1].OutcomeIndex)
	}
}

func TestFetchRecentActivityWrappedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"slug":"m","outcome":"yes","amount":"10","avgPrice":"0.5","timestamp":"2026-08-29T10:00:00Z","txHash":"0xabc"}]}`))
	}))
	defer srv.Close()

	trades, err := NewActivityClient(srv.URL).FetchRecentActivity(context.Background(), "0xwhale", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || trades[0].ExternalRef != "0xabc" {
		t.Errorf("unexpected result: %+v", trades)
	}
}

func TestFetchRecentActivitySkipsBadRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"slug":"good","outcome":"yes","amount":"10","avgPrice":"0.5","timestamp":"2026-08-29T10:00:00Z","txHash":"0xgood"},
			{"slug":"no-hash","outcome":"yes","amount":"10","avgPrice":"0.5","timestamp":"2026-08-29T10:00:00Z"},
			{"slug":"bad-time","outcome":"yes","amount":"10","avgPrice":"0.5","timestamp":"whenever","txHash":"0xbad"}
		]`))
	}))
	defer srv.Close()

	trades, err := NewActivityClient(srv.URL).FetchRecentActivity(context.Background(), "0xwhale", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || trades[0].ExternalRef != "0xgood" {
		t.Errorf("expected only the parseable row, got %+v", trades)
	}
}

func TestFetchRecentActivityUnixTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"slug":"m","outcome":"no","amount":"10","avgPrice":"0.5","timestamp":"1787000000","txHash":"0xepoch"}]`))
	}))
	defer srv.Close()

	trades, err := NewActivityClient(srv.URL).FetchRecentActivity(context.Background(), "0xwhale", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	if trades[0].ObservedAt != time.Unix(1787000000, 0).UTC() {
		t.Errorf("observedAt = %s", trades[0].ObservedAt)
	}
}

func TestFetchRecentActivityServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	trades, err := NewActivityClient(srv.URL).FetchRecentActivity(context.Background(), "0xwhale", 5)
	if err == nil {
		t.Error("expected error for 502 response")
	}
	if len(trades) != 0 {
		t.Errorf("expected empty result, got %d trades", len(trades))
	}
}

func TestFetchRecentActivityUnreachable(t *testing.T) {
	c := NewActivityClient("http://127.0.0.1:1")
	trades, err := c.FetchRecentActivity(context.Background(), "0xwhale", 5)
	if err == nil {
		t.Error("expected transport error")
	}
	if len(trades) != 0 {
		t.Errorf("expected empty result, got %d trades", len(trades))
	}
}

func TestRateFeedFallback(t *testing.T) {
	f := NewRateFeed("ethusdt", decimal.NewFromInt(2000))

	rate, live := f.Rate()
	if live {
		t.Error("rate should not be live before the first tick")
	}
	if !rate.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("fallback rate = %s", rate)
	}

	// 100 quote units at 2000 per native is 0.05 native.
	native, err := f.Convert(decimal.NewFromInt(100))
	if err != nil {
		t.Fatal(err)
	}
	if !native.Equal(decimal.NewFromFloat(0.05)) {
		t.Errorf("converted = %s, want 0.05", native)
	}
}

func TestRateFeedUsesLivePrice(t *testing.T) {
	f := NewRateFeed("ethusdt", decimal.NewFromInt(2000))
	f.mu.Lock()
	f.lastPrice = decimal.NewFromInt(4000)
	f.lastUpdate = time.Now()
	f.mu.Unlock()

	rate, live := f.Rate()
	if !live || !rate.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("rate = %s live = %v", rate, live)
	}

	native, err := f.Convert(decimal.NewFromInt(100))
	if err != nil {
		t.Fatal(err)
	}
	if !native.Equal(decimal.NewFromFloat(0.025)) {
		t.Errorf("converted = %s, want 0.025", native)
	}
}

func TestRateFeedStalePriceFallsBack(t *testing.T) {
	f := NewRateFeed("ethusdt", decimal.NewFromInt(2000))
	f.mu.Lock()
	f.lastPrice = decimal.NewFromInt(4000)
	f.lastUpdate = time.Now().Add(-10 * time.Minute)
	f.mu.Unlock()

	rate, live := f.Rate()
	if live {
		t.Error("stale price must not count as live")
	}
	if !rate.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("rate = %s, want fallback 2000", rate)
	}
}

func TestRateFeedConvertRejectsZeroRate(t *testing.T) {
	f := NewRateFeed("ethusdt", decimal.Zero)
	if _, err := f.Convert(decimal.NewFromInt(100)); err == nil {
		t.Error("expected error with no usable rate")
	}
}
