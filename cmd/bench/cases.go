// README: Checks against a running quote engine: environment, API contract, caching and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

var sampleQuote = map[string]any{
	"origin":      "Toshkent",
	"destination": "Samarqand",
	"cargoType":   "general",
	"weightKg":    1000,
	"urgency":     "normal",
}

var sampleRoute = map[string]any{
	"origin":      "Toshkent",
	"destination": "Buxoro",
	"cargoType":   "general",
	"weightKg":    3000,
	"urgency":     "normal",
	"weather":     "clear",
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: tables exist", Run: checkTables},
		httpCase("API: health", http.MethodGet, base+"/health", nil, http.StatusOK),

		httpCase("Quote: valid request", http.MethodPost, base+"/api/quotes", sampleQuote, http.StatusOK),
		httpCase("Quote: missing origin -> 400", http.MethodPost, base+"/api/quotes", map[string]any{"destination": "Samarqand"}, http.StatusBadRequest),
		httpCase("Quote: same city -> 400", http.MethodPost, base+"/api/quotes", map[string]any{"origin": "Toshkent", "destination": "toshkent"}, http.StatusBadRequest),
		httpCase("Quote: bad urgency -> 400", http.MethodPost, base+"/api/quotes", map[string]any{"origin": "Toshkent", "destination": "Samarqand", "urgency": "asap"}, http.StatusBadRequest),
		{Name: "Quote: repeat is served from cache", Run: func(ctx context.Context, r *Runner) Result {
			return repeatSameID(ctx, r, base+"/api/quotes", sampleQuote, "quoteId")
		}},
		{Name: "Quote: concurrent identical requests share one quote", Run: func(ctx context.Context, r *Runner) Result {
			body := map[string]any{"origin": "Toshkent", "destination": "Namangan", "weightKg": 2500, "urgency": "urgent"}
			return concurrentSameID(ctx, r, base+"/api/quotes", body, "quoteId")
		}},
		httpCase("Quote: dynamic table", http.MethodPost, base+"/api/quotes/dynamic", map[string]any{"routes": []string{"Toshkent-Samarqand", "Toshkent-Buxoro"}, "timeframe": "24h"}, http.StatusOK),
		httpCase("Quote: accept unknown -> 404", http.MethodPost, base+"/api/quotes/does-not-exist/accept", map[string]any{"orderId": "bench"}, http.StatusNotFound),

		httpCase("Route: valid request", http.MethodPost, base+"/api/routes", sampleRoute, http.StatusOK),
		httpCase("Route: batch", http.MethodPost, base+"/api/routes/batch", map[string]any{"requests": []any{sampleRoute, sampleQuote}}, http.StatusOK),
		httpCase("Route: empty batch -> 400", http.MethodPost, base+"/api/routes/batch", map[string]any{"requests": []any{}}, http.StatusBadRequest),
		httpCase("Route: history", http.MethodGet, base+"/api/routes/history?limit=5", nil, http.StatusOK),

		httpCase("Analytics: month", http.MethodGet, base+"/api/analytics?period=month", nil, http.StatusOK),
		httpCase("Market: read prices", http.MethodGet, base+"/api/market/prices", nil, http.StatusOK),
		httpCase("Ops: metrics", http.MethodGet, base+"/metrics", nil, http.StatusOK),

		{Name: "Perf: quote throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, base+"/api/quotes", sampleQuote)
		}},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "dsn not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: StatusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "dsn not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: StatusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: StatusPass, Note: fmt.Sprintf("%d tables", len(tables))}
}

func httpCase(name, method, url string, body any, okStatuses ...int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			status, _, err := r.do(ctx, method, url, body)
			if err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			latency := time.Since(start)
			if slices.Contains(okStatuses, status) {
				return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
			}
			return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
		},
	}
}

func (r *Runner) do(ctx context.Context, method, url string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

func (r *Runner) idOf(ctx context.Context, url string, body any, field string) (string, error) {
	status, raw, err := r.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("status=%d", status)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	id, _ := doc[field].(string)
	return id, nil
}

func repeatSameID(ctx context.Context, r *Runner, url string, body any, field string) Result {
	first, err := r.idOf(ctx, url, body, field)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	start := time.Now()
	second, err := r.idOf(ctx, url, body, field)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if first == "" || first != second {
		return Result{Status: StatusFail, Note: fmt.Sprintf("ids differ: %q vs %q", first, second)}
	}
	return Result{Status: StatusPass, Latency: time.Since(start)}
}

func concurrentSameID(ctx context.Context, r *Runner, url string, body any, field string) Result {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]int{}
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := r.idOf(ctx, url, body, field)
			if err != nil {
				return
			}
			mu.Lock()
			ids[id]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	if len(ids) > 1 {
		return Result{Status: StatusFail, Note: fmt.Sprintf("%d distinct ids", len(ids))}
	}
	return Result{Status: StatusPass}
}

func perfLoad(ctx context.Context, r *Runner, url string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.do(ctx, http.MethodPost, url, payload)
				if err != nil || status != http.StatusOK {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}
