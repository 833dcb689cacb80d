// Package catalog implements the rate-limited, cached catalog client: one
// live request per configured interval, indefinite caching of successful
// responses, and strictly ordered batch resolution.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ranmori/anidb-catalog-client/pkg/cache"
	"github.com/ranmori/anidb-catalog-client/pkg/ratelimit"
)

// Prometheus metrics for catalog client operations.
var (
	catalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total live catalog requests by source and status",
	}, []string{"source", "status"})

	catalogRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Live catalog request duration in seconds by source",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	catalogFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_failures_total",
		Help: "Total catalog lookup failures by kind",
	}, []string{"kind"})
)

// Record is the normalized representation of one catalog item. A record is
// immutable once returned: refreshing an identifier replaces the cache
// entry but never mutates a record a caller already holds.
type Record struct {
	ID             int     `json:"id"`
	PrimaryTitle   string  `json:"primary_title"`
	LocalizedTitle string  `json:"localized_title,omitempty"`
	ReleaseDate    string  `json:"release_date,omitempty"`
	Rating         float64 `json:"rating,omitempty"`
	RatingVotes    int     `json:"rating_votes,omitempty"`

	// CoverURL is empty when the source provides no image. A missing image
	// is represented as nothing rather than a guessed reference.
	CoverURL string `json:"cover_url,omitempty"`

	// CoverUnverified is set when the source's file reference failed the
	// expected shape check and was kept verbatim instead of being turned
	// into a CDN URL.
	CoverUnverified bool `json:"cover_unverified,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

// Source adapts one upstream catalog: URL construction on the way out,
// response normalization on the way back. Implementations return *Error
// with the appropriate Kind for every failure they can classify.
type Source interface {
	// Name tags logs and metrics.
	Name() string

	// RequestURL returns the full GET URL for one identifier.
	RequestURL(id int) string

	// Parse converts a raw response body into a Record or a typed failure.
	Parse(raw []byte, id int) (*Record, error)
}

// Client is the rate-limited catalog client.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	scheduler  *ratelimit.Scheduler
	source     Source
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis client backing the record cache.
	Redis *redis.Client

	// Source adapter for the upstream catalog.
	Source Source

	// MinInterval is the minimum spacing between live requests.
	MinInterval time.Duration

	// OrderingDelay is the fixed wait imposed on cache hits so cached and
	// live results keep their relative order within a batch.
	OrderingDelay time.Duration

	// RequestTimeout bounds each live request. A timed-out request still
	// consumes the rate-limit window.
	RequestTimeout time.Duration

	// Clock drives the scheduler; nil means the system clock.
	Clock ratelimit.Clock
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redisClient *redis.Client, source Source) Config {
	return Config{
		Redis:          redisClient,
		Source:         source,
		MinInterval:    10 * time.Second,
		OrderingDelay:  100 * time.Millisecond,
		RequestTimeout: 10 * time.Second,
	}
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if cfg.Source == nil {
		return nil, fmt.Errorf("source adapter is required")
	}

	if cfg.MinInterval <= 0 {
		return nil, fmt.Errorf("min_interval must be positive (got %v)", cfg.MinInterval)
	}

	if cfg.OrderingDelay < 0 {
		return nil, fmt.Errorf("ordering_delay must not be negative (got %v)", cfg.OrderingDelay)
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	logger := log.With().Str("component", "catalog-client").Str("source", cfg.Source.Name()).Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		cache:     cache.NewManager(cfg.Redis),
		scheduler: ratelimit.NewScheduler(cfg.MinInterval, cfg.OrderingDelay, cfg.Clock),
		source:    cfg.Source,
		logger:    logger,
	}, nil
}

// Fetch resolves one identifier: cache hit after the ordering delay, or a
// live rate-limited request. Exactly one of record and error is returned,
// and every error is a typed *Error.
func (c *Client) Fetch(ctx context.Context, id int) (*Record, error) {
	key := strconv.Itoa(id)

	entry, err := c.cache.Get(ctx, key)
	if err != nil && err != cache.ErrCacheMiss {
		// Degraded cache read: treat as a miss and fetch live.
		c.logger.Warn().Err(err).Int("id", id).Msg("Cache get failed")
	}

	if err == nil {
		var rec Record
		if uerr := json.Unmarshal(entry.Data, &rec); uerr == nil {
			if derr := c.scheduler.DelayHit(ctx); derr != nil {
				return nil, &Error{ID: id, Kind: KindNetwork, Message: "cancelled during ordering delay", Err: derr}
			}
			c.logger.Debug().Int("id", id).Bool("cache_hit", true).Msg("Resolved from cache")
			return &rec, nil
		}
		// Corrupted entry: drop it and fall through to a live fetch.
		c.logger.Warn().Int("id", id).Msg("Dropping corrupted cache entry")
		if derr := c.cache.Delete(ctx, key); derr != nil {
			c.logger.Warn().Err(derr).Int("id", id).Msg("Cache delete failed")
		}
	}

	return c.fetchLive(ctx, id, key)
}

// fetchLive waits for the rate-limit window, performs exactly one request
// and persists the normalized record on success.
func (c *Client) fetchLive(ctx context.Context, id int, key string) (*Record, error) {
	if err := c.scheduler.Acquire(ctx); err != nil {
		return nil, &Error{ID: id, Kind: KindNetwork, Message: "cancelled while waiting for the request window", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.source.RequestURL(id), nil)
	if err != nil {
		return nil, c.fail(&Error{ID: id, Kind: KindNetwork, Message: "create request", Err: err})
	}

	source := c.source.Name()
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	catalogRequestDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())

	if err != nil {
		catalogRequestsTotal.WithLabelValues(source, "transport_error").Inc()
		c.logger.Warn().Err(err).Int("id", id).Msg("Catalog request failed")
		return nil, c.fail(&Error{ID: id, Kind: KindNetwork, Message: "request failed", Err: err})
	}
	defer resp.Body.Close()

	catalogRequestsTotal.WithLabelValues(source, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(&Error{ID: id, Kind: KindNetwork, Message: "read response body", Err: err})
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("id", id).Int("status_code", resp.StatusCode).Msg("Unexpected catalog status")
		return nil, c.fail(&Error{
			ID:      id,
			Kind:    KindNetwork,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		})
	}

	rec, perr := c.source.Parse(body, id)
	if perr != nil {
		cerr, ok := perr.(*Error)
		if !ok {
			cerr = &Error{ID: id, Kind: KindMalformed, Message: "parse response", Err: perr}
		}
		c.logger.Warn().Int("id", id).Str("kind", string(cerr.Kind)).Msg("Catalog response rejected")
		return nil, c.fail(cerr)
	}

	rec.FetchedAt = time.Now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn().Err(err).Int("id", id).Msg("Failed to serialize record for cache")
	} else if serr := c.cache.Set(ctx, key, &cache.Entry{Data: data, FetchedAt: rec.FetchedAt}); serr != nil {
		// Best-effort persistence: the in-memory record is still good.
		c.logger.Warn().Err(serr).Int("id", id).Msg("Failed to persist record")
	}

	c.logger.Debug().Int("id", id).Bool("cache_hit", false).Msg("Resolved from catalog")
	return rec, nil
}

// fail records a failure metric and returns the error unchanged.
func (c *Client) fail(err *Error) *Error {
	catalogFailuresTotal.WithLabelValues(string(err.Kind)).Inc()
	return err
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Cache returns the cache manager (for testing and operational tooling).
func (c *Client) Cache() *cache.Manager {
	return c.cache
}
