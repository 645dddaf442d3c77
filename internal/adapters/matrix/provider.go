// Package matrix implements the road-network matrix provider against an
// OSRM-style table endpoint, with chunked block requests, bounded concurrent
// fan-out, retry with exponential backoff, and a deterministic haversine
// fallback when the service is unconfigured or unreachable.
package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/paulmach/orb"

	"zone-routing-service/internal/adapters/cache"
	"zone-routing-service/internal/ports"
)

// Config tunes the provider. Zero values select the documented defaults.
type Config struct {
	// BaseURL enables the external service; empty selects fallback-only mode.
	BaseURL string
	// Profile is the routing profile segment of the table URL.
	Profile string
	// MaxRetries bounds attempts per block request.
	MaxRetries int
	// Backoff is the initial retry delay; it doubles per attempt.
	Backoff time.Duration
	// RequestTimeout bounds each attempt.
	RequestTimeout time.Duration
	// ProbeTimeout bounds the health probe.
	ProbeTimeout time.Duration
	// ChunkSize is the maximum number of coordinates per table request.
	ChunkSize int
	// Concurrency bounds concurrent block requests.
	Concurrency int
	// LRUSize is the in-memory table-response cache capacity.
	LRUSize int
}

func (c *Config) applyDefaults() {
	if c.Profile == "" {
		c.Profile = "driving"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 4
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 2 * time.Second
	}
	if c.ChunkSize <= 1 {
		c.ChunkSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.LRUSize <= 0 {
		c.LRUSize = 64
	}
}

// Provider implements ports.MatrixProvider. Safe for concurrent use; it
// owns a keep-alive HTTP client shared across calls.
type Provider struct {
	cfg       Config
	session   *http.Client
	logger    *slog.Logger
	responses *lru.Cache
	pairs     cache.PairCache
}

// New builds a provider. pairs may be nil to disable the persistent cache.
func New(cfg Config, pairs cache.PairCache, logger *slog.Logger) (*Provider, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	responses, err := lru.New(cfg.LRUSize)
	if err != nil {
		return nil, fmt.Errorf("matrix provider: response cache: %w", err)
	}

	return &Provider{
		cfg: cfg,
		session: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: cfg.Concurrency,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		logger:    logger,
		responses: responses,
		pairs:     pairs,
	}, nil
}

// Close releases pooled connections.
func (p *Provider) Close() {
	p.session.CloseIdleConnections()
}

// Matrix returns the N×N distance (km) and duration (minute) matrices for
// the ordered point set.
func (p *Provider) Matrix(ctx context.Context, points []orb.Point) (ports.Matrices, error) {
	n := len(points)
	m := ports.Matrices{
		DistancesKm:  newSquare(n),
		DurationsMin: newSquare(n),
	}
	if n < 2 {
		return m, nil
	}

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	if p.cfg.BaseURL == "" {
		fillFallbackBlock(m.DistancesKm, m.DurationsMin, points, all, all)
		return m, nil
	}

	if p.fillFromPairCache(ctx, points, &m) {
		return m, nil
	}

	degraded, err := p.fetchAll(ctx, points, &m)
	if err != nil {
		return ports.Matrices{}, err
	}
	m.Degraded = degraded

	if p.pairs != nil && !degraded {
		p.storePairs(ctx, points, &m)
	}

	return m, nil
}

// Probe reports whether the backing service answers its health endpoint.
func (p *Provider) Probe(ctx context.Context) bool {
	if p.cfg.BaseURL == "" {
		// Fallback mode is deterministic and total.
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := p.session.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// fetchAll covers the full matrix with block requests fanned out under the
// concurrency bound. Failed blocks degrade to fallback values rather than
// failing the whole matrix. Only caller cancellation is returned as error.
func (p *Provider) fetchAll(ctx context.Context, points []orb.Point, m *ports.Matrices) (bool, error) {
	type block struct{ sources, dests []int }
	type blockResult struct {
		block    block
		meters   [][]float64
		seconds  [][]float64
		degraded bool
	}

	blocks := splitBlocks(len(points), p.cfg.ChunkSize)

	sem := make(chan struct{}, p.cfg.Concurrency)
	results := make(chan blockResult, len(blocks))
	var wg sync.WaitGroup

	for _, b := range blocks {
		wg.Add(1)
		go func(b block) {
			sem <- struct{}{}
			defer wg.Done()
			defer func() { <-sem }()

			meters, seconds, err := p.fetchBlock(ctx, points, b.sources, b.dests)
			if err != nil {
				p.logger.Warn("matrix block failed, using fallback",
					"sources", len(b.sources), "dests", len(b.dests), "err", err)
				results <- blockResult{block: b, degraded: true}
				return
			}
			results <- blockResult{block: b, meters: meters, seconds: seconds}
		}(block{b.sources, b.dests})
	}

	wg.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("matrix fetch: %w", err)
	}

	degraded := false
	for res := range results {
		if res.degraded {
			degraded = true
			fillFallbackBlock(m.DistancesKm, m.DurationsMin, points, res.block.sources, res.block.dests)
			continue
		}
		for si, i := range res.block.sources {
			for di, j := range res.block.dests {
				if i == j {
					continue
				}
				m.DistancesKm[i][j] = res.meters[si][di] / 1000
				m.DurationsMin[i][j] = res.seconds[si][di] / 60
			}
		}
	}

	return degraded, nil
}

type tableResponse struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Durations [][]*float64 `json:"durations"`
	Distances [][]*float64 `json:"distances"`
}

// fetchBlock requests one (sources × dests) table block. Results are in
// wire units (meters, seconds); unroutable cells are filled via fallback.
func (p *Provider) fetchBlock(
	ctx context.Context,
	points []orb.Point,
	sources, dests []int,
) (meters, seconds [][]float64, err error) {
	endpoint := p.blockURL(points, sources, dests)

	if cached, ok := p.responses.Get(endpoint); ok {
		b := cached.(cachedBlock)
		return b.meters, b.seconds, nil
	}

	body, err := p.doWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("table request failed: %w", err)
	}

	var tr tableResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, nil, fmt.Errorf("decode table response: %w", err)
	}
	if tr.Code != "Ok" {
		return nil, nil, fmt.Errorf("table response code %q: %s", tr.Code, tr.Message)
	}
	if len(tr.Durations) != len(sources) || len(tr.Distances) != len(sources) {
		return nil, nil, fmt.Errorf(
			"table rows do not match sources: durations=%d distances=%d sources=%d",
			len(tr.Durations), len(tr.Distances), len(sources),
		)
	}

	meters = make([][]float64, len(sources))
	seconds = make([][]float64, len(sources))
	for si, i := range sources {
		if len(tr.Durations[si]) != len(dests) || len(tr.Distances[si]) != len(dests) {
			return nil, nil, errors.New("table columns do not match destinations")
		}

		meters[si] = make([]float64, len(dests))
		seconds[si] = make([]float64, len(dests))
		for di, j := range dests {
			mPtr := tr.Distances[si][di]
			sPtr := tr.Durations[si][di]
			if mPtr == nil || sPtr == nil {
				// Snapping failed for this pair; keep the matrix total.
				km, min := fallbackCell(points[i], points[j])
				meters[si][di] = km * 1000
				seconds[si][di] = min * 60
				continue
			}
			meters[si][di] = *mPtr
			seconds[si][di] = *sPtr
		}
	}

	p.responses.Add(endpoint, cachedBlock{meters: meters, seconds: seconds})
	return meters, seconds, nil
}

type cachedBlock struct {
	meters  [][]float64
	seconds [][]float64
}

// blockURL renders the table request for one block. The URL doubles as the
// response-cache key.
func (p *Provider) blockURL(points []orb.Point, sources, dests []int) string {
	union := make([]int, 0, len(sources)+len(dests))
	pos := make(map[int]int, len(sources)+len(dests))
	for _, i := range append(append([]int{}, sources...), dests...) {
		if _, ok := pos[i]; ok {
			continue
		}
		pos[i] = len(union)
		union = append(union, i)
	}

	var sb strings.Builder
	sb.WriteString(p.cfg.BaseURL)
	sb.WriteString("/table/v1/")
	sb.WriteString(p.cfg.Profile)
	sb.WriteString("/")
	for k, i := range union {
		if k > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(strconv.FormatFloat(points[i][0], 'f', 6, 64))
		sb.WriteString(",")
		sb.WriteString(strconv.FormatFloat(points[i][1], 'f', 6, 64))
	}
	sb.WriteString("?annotations=duration,distance")

	sb.WriteString("&sources=")
	for k, i := range sources {
		if k > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(strconv.Itoa(pos[i]))
	}
	sb.WriteString("&destinations=")
	for k, i := range dests {
		if k > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(strconv.Itoa(pos[i]))
	}

	return sb.String()
}

// fillFromPairCache assembles the whole matrix from the persistent cache.
// Any miss aborts so one table fetch refreshes everything.
func (p *Provider) fillFromPairCache(ctx context.Context, points []orb.Point, m *ports.Matrices) bool {
	if p.pairs == nil {
		return false
	}

	keys := make([]string, len(points))
	for i, pt := range points {
		keys[i] = cache.PointKey(pt)
	}

	for i := range points {
		dests := make([]string, 0, len(points)-1)
		for j, k := range keys {
			if j != i {
				dests = append(dests, k)
			}
		}

		hits, err := p.pairs.GetMany(ctx, keys[i], dests)
		if err != nil {
			p.logger.Warn("matrix pair cache read failed", "err", err)
			return false
		}

		for j, k := range keys {
			if j == i {
				continue
			}
			r, ok := hits[k]
			if !ok {
				return false
			}
			m.DistancesKm[i][j] = r.DistanceMeters / 1000
			m.DurationsMin[i][j] = r.DurationSeconds / 60
		}
	}

	return true
}

// storePairs writes fetched values through to the persistent cache.
func (p *Provider) storePairs(ctx context.Context, points []orb.Point, m *ports.Matrices) {
	keys := make([]string, len(points))
	for i, pt := range points {
		keys[i] = cache.PointKey(pt)
	}

	for i := range points {
		row := make(map[string]cache.PairResult, len(points)-1)
		for j, k := range keys {
			if j == i || k == keys[i] {
				continue
			}
			row[k] = cache.PairResult{
				DistanceMeters:  m.DistancesKm[i][j] * 1000,
				DurationSeconds: m.DurationsMin[i][j] * 60,
			}
		}
		if err := p.pairs.PutMany(ctx, keys[i], row); err != nil {
			p.logger.Warn("matrix pair cache write failed", "err", err)
			return
		}
	}
}

type blockSpan struct {
	sources []int
	dests   []int
}

// splitBlocks covers an n×n matrix with table requests of at most chunk
// coordinates each. Small point sets fit one all-to-all request.
func splitBlocks(n, chunk int) []blockSpan {
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	if n <= chunk {
		return []blockSpan{{sources: all, dests: all}}
	}

	side := chunk / 2
	if side < 1 {
		side = 1
	}

	var groups [][]int
	for start := 0; start < n; start += side {
		end := start + side
		if end > n {
			end = n
		}
		groups = append(groups, all[start:end])
	}

	blocks := make([]blockSpan, 0, len(groups)*len(groups))
	for _, src := range groups {
		for _, dst := range groups {
			blocks = append(blocks, blockSpan{sources: src, dests: dst})
		}
	}
	return blocks
}

func newSquare(n int) [][]float64 {
	rows := make([][]float64, n)
	cells := make([]float64, n*n)
	for i := range rows {
		rows[i] = cells[i*n : (i+1)*n]
	}
	return rows
}
