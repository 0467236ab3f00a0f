package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/selivandex/crypto-index/internal/adapters/config"
)

func testClient(t *testing.T, handler http.HandlerFunc, callDelay time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(&config.ProviderConfig{
		BaseURL:   srv.URL,
		Timeout:   2 * time.Second,
		CallDelay: callDelay,
	})
}

func chartHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"prices":[[1600000000000,1.5]],"market_caps":[[1600000000000,100]],"total_volumes":[[1600000000000,10]]}`))
}

func TestFetchHistoricalSeries(t *testing.T) {
	client := testClient(t, chartHandler, 0)

	series, err := client.FetchHistoricalSeries(context.Background(), "bitcoin", 30)
	if err != nil {
		t.Fatalf("FetchHistoricalSeries() error = %v", err)
	}
	if len(series.Prices) != 1 {
		t.Fatalf("got %d price points, want 1", len(series.Prices))
	}
	if series.Prices[0].Value != 1.5 {
		t.Errorf("price = %v, want 1.5", series.Prices[0].Value)
	}
	want := time.UnixMilli(1600000000000).UTC()
	if !series.Prices[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", series.Prices[0].Timestamp, want)
	}
}

// The client is shared across concurrently scheduled stages; pacing must
// serialize their calls into one delay budget.
func TestPacingSharedAcrossGoroutines(t *testing.T) {
	const delay = 20 * time.Millisecond
	const calls = 4

	client := testClient(t, chartHandler, delay)

	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.FetchHistoricalSeries(context.Background(), "bitcoin", 30)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("FetchHistoricalSeries() error = %v", err)
		}
	}

	// First call is unpaced, the remaining three each wait the full delay
	if elapsed := time.Since(start); elapsed < (calls-1)*delay {
		t.Errorf("4 calls finished in %v, want at least %v of pacing", elapsed, (calls-1)*delay)
	}
}

func TestPacingCancellation(t *testing.T) {
	client := testClient(t, chartHandler, time.Minute)

	// Prime lastCall so the second fetch has to wait
	if _, err := client.FetchHistoricalSeries(context.Background(), "bitcoin", 30); err != nil {
		t.Fatalf("priming fetch error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := client.FetchHistoricalSeries(ctx, "bitcoin", 30); err == nil {
		t.Fatal("expected context error while waiting out the call delay")
	}
}

func TestAPIErrorSurfaced(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}, 0)

	if _, err := client.FetchHistoricalSeries(context.Background(), "bitcoin", 30); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
