package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const timeSeriesFixture = `{
	"meta": {"symbol": "BTC/USD", "interval": "5min"},
	"values": [
		{"datetime": "2025-06-01 12:10:00", "open": "101.0", "high": "102.0", "low": "100.5", "close": "101.5", "volume": "1200"},
		{"datetime": "2025-06-01 12:00:00", "open": "100.0", "high": "101.0", "low": "99.5", "close": "100.5", "volume": "1000"},
		{"datetime": "2025-06-01 12:05:00", "open": "100.5", "high": "101.5", "low": "100.0", "close": "101.0", "volume": "1100"}
	],
	"status": "ok"
}`

func TestGetHistoricalCandles(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"symbol":     r.URL.Query().Get("symbol"),
			"interval":   r.URL.Query().Get("interval"),
			"outputsize": r.URL.Query().Get("outputsize"),
			"end_date":   r.URL.Query().Get("end_date"),
			"start_date": r.URL.Query().Get("start_date"),
		}
		w.Write([]byte(timeSeriesFixture))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{APIKey: "test", BaseURL: server.URL})
	end := time.Date(2025, 6, 1, 12, 10, 0, 0, time.UTC)

	candles, err := client.GetHistoricalCandles(context.Background(), "BTC/USD", "5min", 3, time.Time{}, end)
	if err != nil {
		t.Fatalf("GetHistoricalCandles() error = %v", err)
	}

	if gotQuery["symbol"] != "BTC/USD" || gotQuery["interval"] != "5min" || gotQuery["outputsize"] != "3" {
		t.Errorf("unexpected query parameters: %v", gotQuery)
	}
	if gotQuery["end_date"] != "2025-06-01 12:10:00" {
		t.Errorf("end_date = %q, want the formatted end time", gotQuery["end_date"])
	}
	if gotQuery["start_date"] != "" {
		t.Errorf("start_date = %q, want omitted for a zero start", gotQuery["start_date"])
	}

	if len(candles) != 3 {
		t.Fatalf("candles = %d, want 3", len(candles))
	}
	// Response arrives newest-first and must come back oldest-first
	for i := 1; i < len(candles); i++ {
		if !candles[i].Time.After(candles[i-1].Time) {
			t.Fatalf("candles not sorted oldest first: %v then %v", candles[i-1].Time, candles[i].Time)
		}
	}
	first := candles[0]
	if first.Open != 100.0 || first.High != 101.0 || first.Low != 99.5 || first.Close != 100.5 || first.Volume != 1000 {
		t.Errorf("oldest candle parsed wrong: %+v", first)
	}
}

func TestGetHistoricalCandlesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"symbol not found"}`))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{APIKey: "test", BaseURL: server.URL})
	_, err := client.GetHistoricalCandles(context.Background(), "NOPE", "5min", 10, time.Time{}, time.Time{})
	if err == nil {
		t.Fatal("expected an error from the API error body")
	}
}

func TestGetHistoricalCandlesEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":{},"values":[],"status":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{APIKey: "test", BaseURL: server.URL})
	_, err := client.GetHistoricalCandles(context.Background(), "BTC/USD", "5min", 10, time.Time{}, time.Time{})
	if err == nil {
		t.Fatal("expected an error for an empty candle list")
	}
}

func TestParseDatetime(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2025-06-01 12:00:00", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		{"2025-06-01", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseDatetime(tt.input)
		if err != nil {
			t.Fatalf("parseDatetime(%q) error = %v", tt.input, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDatetime(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := parseDatetime("not-a-date"); err == nil {
		t.Error("parseDatetime accepted garbage input")
	}
}
