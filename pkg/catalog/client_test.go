package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ranmori/anidb-catalog-client/internal/testutil"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

// testSource is a minimal Source pointed at a mock server. Bodies starting
// with "ERR:" become typed failures; anything else becomes a record whose
// primary title is the body.
type testSource struct {
	baseURL string
}

func (s *testSource) Name() string { return "test" }

func (s *testSource) RequestURL(id int) string {
	return s.baseURL + "?aid=" + strconv.Itoa(id)
}

func (s *testSource) Parse(raw []byte, id int) (*Record, error) {
	body := strings.TrimSpace(string(raw))
	if rest, ok := strings.CutPrefix(body, "ERR:"); ok {
		return nil, &Error{ID: id, Kind: Kind(rest), Message: "upstream failure"}
	}
	return &Record{ID: id, PrimaryTitle: body}, nil
}

// newTestClient builds a client against the mock catalog with short
// intervals so tests finish quickly.
func newTestClient(t *testing.T, mock *testutil.MockCatalog) *Client {
	t.Helper()

	cfg := Config{
		Redis:          setupTestRedis(t),
		Source:         &testSource{baseURL: mock.URL()},
		MinInterval:    40 * time.Millisecond,
		OrderingDelay:  5 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer redisClient.Close()

	source := &testSource{baseURL: "http://example.invalid"}

	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			config: Config{
				Redis:         redisClient,
				Source:        source,
				MinInterval:   10 * time.Second,
				OrderingDelay: 100 * time.Millisecond,
			},
			expectError: false,
		},
		{
			name: "nil redis",
			config: Config{
				Source:      source,
				MinInterval: 10 * time.Second,
			},
			expectError: true,
			errorMsg:    "redis client is required",
		},
		{
			name: "nil source",
			config: Config{
				Redis:       redisClient,
				MinInterval: 10 * time.Second,
			},
			expectError: true,
			errorMsg:    "source adapter is required",
		},
		{
			name: "zero min interval",
			config: Config{
				Redis:  redisClient,
				Source: source,
			},
			expectError: true,
			errorMsg:    "min_interval must be positive (got 0s)",
		},
		{
			name: "negative ordering delay",
			config: Config{
				Redis:         redisClient,
				Source:        source,
				MinInterval:   10 * time.Second,
				OrderingDelay: -1 * time.Millisecond,
			},
			expectError: true,
			errorMsg:    "ordering_delay must not be negative (got -1ms)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if client == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer redisClient.Close()

	source := &testSource{}
	cfg := DefaultConfig(redisClient, source)

	if cfg.Redis != redisClient {
		t.Error("Redis client not set correctly")
	}
	if cfg.Source != Source(source) {
		t.Error("Source not set correctly")
	}
	if cfg.MinInterval != 10*time.Second {
		t.Errorf("MinInterval = %v, want 10s", cfg.MinInterval)
	}
	if cfg.OrderingDelay != 100*time.Millisecond {
		t.Errorf("OrderingDelay = %v, want 100ms", cfg.OrderingDelay)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
}

func TestFetch_CacheIdempotence(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse(101, testutil.OKResponse("Cowboy Bebop"))

	c := newTestClient(t, mock)
	ctx := context.Background()

	first, err := c.Fetch(ctx, 101)
	if err != nil {
		t.Fatalf("Fetch() #1 error = %v", err)
	}

	second, err := c.Fetch(ctx, 101)
	if err != nil {
		t.Fatalf("Fetch() #2 error = %v", err)
	}

	if mock.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1 (second fetch must hit cache)", mock.RequestCount())
	}
	if first.PrimaryTitle != "Cowboy Bebop" || second.PrimaryTitle != "Cowboy Bebop" {
		t.Errorf("titles = %q, %q, want %q", first.PrimaryTitle, second.PrimaryTitle, "Cowboy Bebop")
	}
	if !first.FetchedAt.Equal(second.FetchedAt) {
		t.Errorf("cached record FetchedAt = %v, want %v", second.FetchedAt, first.FetchedAt)
	}
}

func TestFetch_TypedFailures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind Kind
	}{
		{
			name:     "not found",
			body:     "ERR:not_found",
			wantKind: KindNotFound,
		},
		{
			name:     "banned",
			body:     "ERR:banned",
			wantKind: KindBanned,
		},
		{
			name:     "malformed",
			body:     "ERR:malformed",
			wantKind: KindMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCatalog()
			defer mock.Close()
			mock.SetResponse(7, testutil.OKResponse(tt.body))

			c := newTestClient(t, mock)

			rec, err := c.Fetch(context.Background(), 7)
			if rec != nil {
				t.Fatalf("Fetch() record = %+v, want nil", rec)
			}
			kind, ok := ErrorKind(err)
			if !ok {
				t.Fatalf("Fetch() error = %v, want typed *Error", err)
			}
			if kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", kind, tt.wantKind)
			}
		})
	}
}

func TestFetch_FailuresAreNotCached(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse(8, testutil.OKResponse("ERR:not_found"))

	c := newTestClient(t, mock)
	ctx := context.Background()

	if _, err := c.Fetch(ctx, 8); !IsNotFound(err) {
		t.Fatalf("Fetch() error = %v, want NotFound", err)
	}

	// The id becomes available upstream; a later fetch must go live again.
	mock.SetResponse(8, testutil.OKResponse("Now Exists"))

	rec, err := c.Fetch(ctx, 8)
	if err != nil {
		t.Fatalf("Fetch() after upstream fix error = %v", err)
	}
	if rec.PrimaryTitle != "Now Exists" {
		t.Errorf("PrimaryTitle = %q, want fresh result", rec.PrimaryTitle)
	}
	if mock.RequestCount() != 2 {
		t.Errorf("RequestCount = %d, want 2", mock.RequestCount())
	}
}

func TestFetch_NonOKStatusIsNetwork(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse(9, testutil.MockResponse{StatusCode: http.StatusBadGateway, Body: "gateway error"})

	c := newTestClient(t, mock)

	_, err := c.Fetch(context.Background(), 9)
	if !IsNetwork(err) {
		t.Errorf("Fetch() error = %v, want Network", err)
	}
}

func TestFetch_TransportErrorIsNetwork(t *testing.T) {
	mock := testutil.NewMockCatalog()
	mock.Close() // connection refused from here on

	redisClient := setupTestRedis(t)
	cfg := Config{
		Redis:          redisClient,
		Source:         &testSource{baseURL: mock.URL()},
		MinInterval:    40 * time.Millisecond,
		OrderingDelay:  5 * time.Millisecond,
		RequestTimeout: time.Second,
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.Fetch(context.Background(), 10)
	if !IsNetwork(err) {
		t.Errorf("Fetch() error = %v, want Network", err)
	}
}

func TestFetch_TimeoutConsumesWindow(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse(11, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "Slow Anime",
		Delay:      300 * time.Millisecond,
	})
	mock.SetResponse(12, testutil.OKResponse("Fast Anime"))

	redisClient := setupTestRedis(t)
	cfg := Config{
		Redis:          redisClient,
		Source:         &testSource{baseURL: mock.URL()},
		MinInterval:    100 * time.Millisecond,
		OrderingDelay:  5 * time.Millisecond,
		RequestTimeout: 50 * time.Millisecond,
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if _, err := c.Fetch(ctx, 11); !IsNetwork(err) {
		t.Fatalf("Fetch() of slow id error = %v, want Network (timeout)", err)
	}

	if _, err := c.Fetch(ctx, 12); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	times := mock.RequestTimes()
	if len(times) != 2 {
		t.Fatalf("request count = %d, want 2", len(times))
	}
	// The timed-out request still counts against the rate limit.
	if gap := times[1].Sub(times[0]); gap < 100*time.Millisecond {
		t.Errorf("gap after timeout = %v, want >= min interval", gap)
	}
}

func TestFetch_RateLimitGap(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	c := newTestClient(t, mock)
	ctx := context.Background()

	for id := 21; id <= 23; id++ {
		if _, err := c.Fetch(ctx, id); err != nil {
			t.Fatalf("Fetch(%d) error = %v", id, err)
		}
	}

	times := mock.RequestTimes()
	if len(times) != 3 {
		t.Fatalf("request count = %d, want 3", len(times))
	}
	for i := 1; i < len(times); i++ {
		// Arrival-time jitter can only widen the gap at the sender; allow a
		// small tolerance for the receive side.
		if gap := times[i].Sub(times[i-1]); gap < 35*time.Millisecond {
			t.Errorf("gap %d = %v, want >= ~40ms", i, gap)
		}
	}
}

func TestFetch_SendsSourceQueryParams(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	c := newTestClient(t, mock)

	if _, err := c.Fetch(context.Background(), 42); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if got := mock.LastQuery().Get("aid"); got != "42" {
		t.Errorf("aid query param = %q, want 42", got)
	}
}

func TestFetch_CorruptedCacheEntryRefetches(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse(55, testutil.OKResponse("Recovered"))

	redisClient := setupTestRedis(t)
	cfg := Config{
		Redis:          redisClient,
		Source:         &testSource{baseURL: mock.URL()},
		MinInterval:    40 * time.Millisecond,
		OrderingDelay:  5 * time.Millisecond,
		RequestTimeout: time.Second,
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	// Entry whose Data is not a record.
	if err := redisClient.Set(ctx, "catalog:anidb:record:55",
		fmt.Sprintf(`{"data":"bm90IGpzb24=","fetched_at":%q}`, time.Now().Format(time.RFC3339)), 0).Err(); err != nil {
		t.Fatalf("raw set failed: %v", err)
	}

	rec, err := c.Fetch(ctx, 55)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if rec.PrimaryTitle != "Recovered" {
		t.Errorf("PrimaryTitle = %q, want live refetch", rec.PrimaryTitle)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", mock.RequestCount())
	}
}
