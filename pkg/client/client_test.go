package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/jira-scraper/internal/testutil"
	"github.com/Sternrassler/jira-scraper/pkg/record"
)

const testUserAgent = "jira-scraper-test/1.0 (test@example.com)"

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) (*Client, *recordingSleeper) {
	t.Helper()

	cfg := DefaultConfig(baseURL, testUserAgent)
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	sleeper := &recordingSleeper{}
	c.SetSleeper(sleeper.sleep)
	return c, sleeper
}

// fakePacer records cooldowns.
type fakePacer struct {
	mu        sync.Mutex
	waits     int
	cooldowns []time.Duration
}

func (p *fakePacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits++
	return nil
}

func (p *fakePacer) Cooldown(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cooldowns = append(p.cooldowns, d)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("https://issues.apache.org/jira", testUserAgent),
			expectError: false,
		},
		{
			name:        "missing base url",
			config:      DefaultConfig("", testUserAgent),
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "invalid base url",
			config:      DefaultConfig("not a url", testUserAgent),
			expectError: true,
			errorMsg:    "invalid base url",
		},
		{
			name:        "missing user agent",
			config:      DefaultConfig("https://issues.apache.org/jira", ""),
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name: "zero max attempts",
			config: func() Config {
				cfg := DefaultConfig("https://issues.apache.org/jira", testUserAgent)
				cfg.Retry.MaxAttempts = 0
				return cfg
			}(),
			expectError: true,
			errorMsg:    "max_attempts must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error containing %q, got nil", tt.errorMsg)
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Error("Expected client, got nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://issues.apache.org/jira", testUserAgent)

	if cfg.JQL != DefaultJQL {
		t.Errorf("Expected JQL %q, got %q", DefaultJQL, cfg.JQL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected Timeout 30s, got %v", cfg.Timeout)
	}
	if cfg.Retry != DefaultRetryConfig() {
		t.Errorf("Expected default retry config, got %+v", cfg.Retry)
	}
	if cfg.Pacer != nil {
		t.Error("Expected no pacer by default")
	}
}

func TestFetchPage_RequestShape(t *testing.T) {
	mock := testutil.NewMockJira()
	defer mock.Close()
	mock.SetDataset("HADOOP", 120)

	c, _ := newTestClient(t, mock.URL()+"/", nil)

	page, err := c.FetchPage(context.Background(), PageRequest{Partition: "HADOOP", Offset: 100, PageSize: 50})
	if err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}

	if len(page.Issues) != 20 {
		t.Errorf("Expected 20 issues, got %d", len(page.Issues))
	}
	if !page.TotalKnown || page.Total != 120 {
		t.Errorf("Expected known total 120, got %d (known=%v)", page.Total, page.TotalKnown)
	}
	if key := page.Issues[0].String("key"); key != "HADOOP-101" {
		t.Errorf("Expected first key HADOOP-101, got %q", key)
	}

	reqs := mock.Requests("HADOOP")
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(reqs))
	}
	if reqs[0].StartAt != 100 || reqs[0].MaxResults != 50 {
		t.Errorf("Expected startAt=100 maxResults=50, got %d/%d", reqs[0].StartAt, reqs[0].MaxResults)
	}
	if ua := reqs[0].Header.Get("User-Agent"); ua != testUserAgent {
		t.Errorf("Expected User-Agent %q, got %q", testUserAgent, ua)
	}
	if accept := reqs[0].Header.Get("Accept"); accept != "application/json" {
		t.Errorf("Expected Accept application/json, got %q", accept)
	}
}

func TestFetchPage_QueryParameters(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"path":   r.URL.Path,
			"jql":    q.Get("jql"),
			"fields": q.Get("fields"),
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"total":0,"issues":[]}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, nil)
	if _, err := c.FetchPage(context.Background(), PageRequest{Partition: "SPARK", PageSize: 10}); err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}

	if gotQuery["path"] != SearchPath {
		t.Errorf("Expected path %q, got %q", SearchPath, gotQuery["path"])
	}
	if gotQuery["jql"] != "project=SPARK ORDER BY created ASC" {
		t.Errorf("Unexpected jql %q", gotQuery["jql"])
	}
	if gotQuery["fields"] != record.SearchFields {
		t.Errorf("Unexpected fields %q", gotQuery["fields"])
	}
}

func TestFetchPage_RetryAfterHonoured(t *testing.T) {
	mock := testutil.NewMockJira()
	defer mock.Close()
	mock.Enqueue("KAFKA",
		testutil.NewRateLimitResponse("2"),
		testutil.NewRateLimitResponse("2"),
		testutil.NewPageResponse("KAFKA", 0, 3, 3),
	)

	pacer := &fakePacer{}
	c, sleeper := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.Pacer = pacer })

	page, err := c.FetchPage(context.Background(), PageRequest{Partition: "KAFKA", PageSize: 50})
	if err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}
	if len(page.Issues) != 3 {
		t.Errorf("Expected 3 issues, got %d", len(page.Issues))
	}

	if mock.RequestCount() != 3 {
		t.Errorf("Expected 3 requests, got %d", mock.RequestCount())
	}
	if len(sleeper.delays) != 2 {
		t.Fatalf("Expected 2 sleeps, got %v", sleeper.delays)
	}
	for i, d := range sleeper.delays {
		if d < 2*time.Second {
			t.Errorf("sleep[%d] = %v, want >= 2s", i, d)
		}
	}

	if pacer.waits != 3 {
		t.Errorf("Expected 3 pacer waits, got %d", pacer.waits)
	}
	if len(pacer.cooldowns) != 2 || pacer.cooldowns[0] != 2*time.Second {
		t.Errorf("Expected two 2s cooldowns, got %v", pacer.cooldowns)
	}
}

func TestFetchPage_RateLimitWithoutHeaderUsesDefault(t *testing.T) {
	mock := testutil.NewMockJira()
	defer mock.Close()
	mock.Enqueue("KAFKA",
		testutil.NewRateLimitResponse(""),
		testutil.NewEmptyPageResponse(0),
	)

	c, sleeper := newTestClient(t, mock.URL(), nil)

	if _, err := c.FetchPage(context.Background(), PageRequest{Partition: "KAFKA", PageSize: 50}); err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}
	if len(sleeper.delays) != 1 || sleeper.delays[0] != 60*time.Second {
		t.Errorf("Expected one 60s sleep, got %v", sleeper.delays)
	}
}

func TestFetchPage_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockJira()
	defer mock.Close()

	cfg := DefaultRetryConfig()
	for i := 0; i <= cfg.MaxAttempts; i++ {
		mock.Enqueue("HIVE", testutil.NewServerErrorResponse())
	}

	c, sleeper := newTestClient(t, mock.URL(), nil)

	_, err := c.FetchPage(context.Background(), PageRequest{Partition: "HIVE", Offset: 50, PageSize: 50})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var terminal *TerminalError
	if !errors.As(err, &terminal) {
		t.Fatalf("Expected *TerminalError, got %T", err)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted in chain, got %v", err)
	}
	if terminal.Attempts != cfg.MaxAttempts {
		t.Errorf("Expected %d attempts, got %d", cfg.MaxAttempts, terminal.Attempts)
	}
	if terminal.StatusCode != 500 || terminal.ErrorClass != ErrorClassServer {
		t.Errorf("Expected status 500 class server, got %d %q", terminal.StatusCode, terminal.ErrorClass)
	}
	if terminal.Partition != "HIVE" || terminal.Offset != 50 {
		t.Errorf("Unexpected partition/offset %s/%d", terminal.Partition, terminal.Offset)
	}
	if mock.RequestCount() != cfg.MaxAttempts {
		t.Errorf("Expected %d requests, got %d", cfg.MaxAttempts, mock.RequestCount())
	}
	if len(sleeper.delays) != cfg.MaxAttempts-1 {
		t.Errorf("Expected %d sleeps, got %d", cfg.MaxAttempts-1, len(sleeper.delays))
	}
	for _, d := range sleeper.delays {
		if d != 5*time.Second {
			t.Errorf("Expected 5s server error wait, got %v", d)
		}
	}
}

func TestFetchPage_NoRetryOnClientError(t *testing.T) {
	mock := testutil.NewMockJira()
	defer mock.Close()
	mock.Enqueue("NOPE", testutil.NewNotFoundResponse())

	c, sleeper := newTestClient(t, mock.URL(), nil)

	_, err := c.FetchPage(context.Background(), PageRequest{Partition: "NOPE", PageSize: 50})

	var terminal *TerminalError
	if !errors.As(err, &terminal) {
		t.Fatalf("Expected *TerminalError, got %v", err)
	}
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("Expected ErrUnexpectedStatus, got %v", err)
	}
	if terminal.Attempts != 1 || terminal.StatusCode != 404 {
		t.Errorf("Expected 1 attempt with 404, got %d attempts status %d", terminal.Attempts, terminal.StatusCode)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("Expected 1 request, got %d", mock.RequestCount())
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("Expected no sleeps, got %v", sleeper.delays)
	}
}

func TestFetchPage_MalformedPayload(t *testing.T) {
	mock := testutil.NewMockJira()
	defer mock.Close()
	mock.Enqueue("BAD", testutil.NewMalformedResponse())

	c, _ := newTestClient(t, mock.URL(), nil)

	_, err := c.FetchPage(context.Background(), PageRequest{Partition: "BAD", PageSize: 50})

	var terminal *TerminalError
	if !errors.As(err, &terminal) {
		t.Fatalf("Expected *TerminalError, got %v", err)
	}
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("Expected ErrMalformedPayload, got %v", err)
	}
	if terminal.ErrorClass != ErrorClassPayload {
		t.Errorf("Expected payload class, got %q", terminal.ErrorClass)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("Expected no retry, got %d requests", mock.RequestCount())
	}
}

func TestFetchPage_TimeoutIsRecoverable(t *testing.T) {
	mock := testutil.NewMockJira()
	defer mock.Close()

	slow := testutil.NewEmptyPageResponse(0)
	slow.Delay = 300 * time.Millisecond
	mock.Enqueue("SLOW", slow, testutil.NewPageResponse("SLOW", 0, 1, 1))

	c, sleeper := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })

	page, err := c.FetchPage(context.Background(), PageRequest{Partition: "SLOW", PageSize: 50})
	if err != nil {
		t.Fatalf("Expected retry after timeout to succeed, got %v", err)
	}
	if len(page.Issues) != 1 {
		t.Errorf("Expected 1 issue, got %d", len(page.Issues))
	}
	if len(sleeper.delays) != 1 || sleeper.delays[0] != 5*time.Second {
		t.Errorf("Expected one 5s sleep, got %v", sleeper.delays)
	}
}

func TestFetchPage_ConnectionRefusedIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c, sleeper := newTestClient(t, url, nil)

	_, err := c.FetchPage(context.Background(), PageRequest{Partition: "GONE", PageSize: 50})

	var terminal *TerminalError
	if !errors.As(err, &terminal) {
		t.Fatalf("Expected *TerminalError, got %v", err)
	}
	if terminal.ErrorClass != ErrorClassNetwork || terminal.Attempts != 1 {
		t.Errorf("Expected 1 network attempt, got %q after %d", terminal.ErrorClass, terminal.Attempts)
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("Expected no sleeps, got %v", sleeper.delays)
	}
}

func TestFetchPage_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockJira()
	defer mock.Close()

	c, _ := newTestClient(t, mock.URL(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchPage(ctx, PageRequest{Partition: "A", PageSize: 50})
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("Expected no requests, got %d", mock.RequestCount())
	}
}

func TestFetchPage_InvalidRequest(t *testing.T) {
	c, _ := newTestClient(t, "https://issues.apache.org/jira", nil)

	tests := []PageRequest{
		{Partition: "A", Offset: -1, PageSize: 50},
		{Partition: "A", Offset: 0, PageSize: 0},
	}
	for _, req := range tests {
		_, err := c.FetchPage(context.Background(), req)
		var terminal *TerminalError
		if !errors.As(err, &terminal) {
			t.Errorf("Expected *TerminalError for %+v, got %v", req, err)
		}
	}
}

func TestDecodePage(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
		issues      int
		total       int
		totalKnown  bool
	}{
		{"normal", `{"total":2,"issues":[{"key":"A-1"},{"key":"A-2"}]}`, false, 2, 2, true},
		{"missing total", `{"issues":[{"key":"A-1"}]}`, false, 1, 0, false},
		{"missing issues", `{"total":5}`, false, 0, 5, true},
		{"odd entries degrade", `{"total":3,"issues":[{"key":"A-1"},null,5]}`, false, 3, 3, true},
		{"array envelope", `[{"key":"A-1"}]`, true, 0, 0, false},
		{"empty body", ``, true, 0, 0, false},
		{"html", `<html></html>`, true, 0, 0, false},
		{"truncated", `{"total":3,"issues":[`, true, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := decodePage([]byte(tt.body))
			if tt.expectError {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Errorf("Expected ErrMalformedPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(page.Issues) != tt.issues {
				t.Errorf("Expected %d issues, got %d", tt.issues, len(page.Issues))
			}
			if page.Total != tt.total || page.TotalKnown != tt.totalKnown {
				t.Errorf("Expected total %d (known=%v), got %d (known=%v)", tt.total, tt.totalKnown, page.Total, page.TotalKnown)
			}
			for i, issue := range page.Issues {
				if issue == nil {
					t.Errorf("issue[%d] is nil", i)
				}
			}
		})
	}
}
