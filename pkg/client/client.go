// Package client provides the Jira search client used to fetch one page of
// issues at a time, with response classification and retry handling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/jira-scraper/pkg/record"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SearchPath is the Jira REST v2 search endpoint.
const SearchPath = "/rest/api/2/search"

// DefaultJQL orders issues by creation so that offsets stay stable while
// new issues are filed during a scrape.
const DefaultJQL = "project=%s ORDER BY created ASC"

// PageRequest describes one page fetch.
type PageRequest struct {
	Partition string
	Offset    int
	PageSize  int
}

// Page is a successfully decoded search response.
type Page struct {
	Issues []record.RawIssue

	// Total is the server-reported result count. Only meaningful when
	// TotalKnown is true.
	Total      int
	TotalKnown bool
}

// Pacer gates outgoing requests. ratelimit.Pacer implements it.
type Pacer interface {
	Wait(ctx context.Context) error
	Cooldown(d time.Duration)
}

// Client fetches search pages from a Jira server.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
	sleep      Sleeper
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the Jira instance, e.g. "https://issues.apache.org/jira".
	BaseURL string

	// User-Agent header sent with every request.
	UserAgent string

	// JQL is a format string receiving the partition key.
	JQL string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// Retry policy
	Retry RetryConfig

	// Pacer is optional. When set every attempt waits on it, and rate-limit
	// delays are shared with other users of the same pacer.
	Pacer Pacer
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		JQL:       DefaultJQL,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new search client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.JQL == "" {
		cfg.JQL = DefaultJQL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{},
		config:     cfg,
		logger:     log.With().Str("component", "jira-client").Logger(),
		sleep:      sleepContext,
	}, nil
}

// FetchPage fetches one page of a partition. Rate limiting, server errors
// and timeouts are retried internally; any returned error is a
// *TerminalError.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	if req.Offset < 0 || req.PageSize <= 0 {
		return nil, &TerminalError{
			Partition: req.Partition,
			Offset:    req.Offset,
			Err:       fmt.Errorf("invalid page request: offset=%d page_size=%d", req.Offset, req.PageSize),
		}
	}

	logger := c.logger.With().
		Str("partition", req.Partition).
		Int("offset", req.Offset).
		Int("page_size", req.PageSize).
		Logger()

	var page *Page
	attempts, last, err := retryWithPolicy(ctx, c.config.Retry, c.sleep, logger, func(n int) attemptResult {
		var result attemptResult
		page, result = c.attempt(ctx, req, logger)
		if result.decision.Kind == KindRecoverable && result.decision.Class == ErrorClassRateLimit && c.config.Pacer != nil {
			c.config.Pacer.Cooldown(result.decision.Delay)
		}
		return result
	})
	if err != nil {
		return nil, &TerminalError{
			Partition:  req.Partition,
			Offset:     req.Offset,
			StatusCode: last.statusCode,
			ErrorClass: last.decision.Class,
			Attempts:   attempts,
			Err:        err,
		}
	}

	logger.Debug().
		Int("issues", len(page.Issues)).
		Int("total", page.Total).
		Bool("total_known", page.TotalKnown).
		Int("attempts", attempts).
		Msg("Page fetched")

	return page, nil
}

// attempt performs a single HTTP round trip and classifies it.
func (c *Client) attempt(ctx context.Context, req PageRequest, logger zerolog.Logger) (*Page, attemptResult) {
	if err := ctx.Err(); err != nil {
		return nil, attemptResult{
			decision: Decision{Kind: KindTerminal},
			err:      fmt.Errorf("%w: %v", ErrContextCancelled, err),
		}
	}

	if c.config.Pacer != nil {
		if err := c.config.Pacer.Wait(ctx); err != nil {
			return nil, attemptResult{
				decision: Decision{Kind: KindTerminal},
				err:      fmt.Errorf("%w: %v", ErrContextCancelled, err),
			}
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.searchURL(req), nil)
	if err != nil {
		return nil, attemptResult{
			decision: Decision{Kind: KindTerminal, Class: ErrorClassClient},
			err:      fmt.Errorf("create request: %w", err),
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	requestDuration.WithLabelValues(req.Partition).Observe(time.Since(startTime).Seconds())

	if err != nil {
		// A cancelled parent context is not a network problem.
		if ctx.Err() != nil {
			return nil, attemptResult{
				decision: Decision{Kind: KindTerminal},
				err:      fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err()),
			}
		}

		decision := ClassifyTransportError(err, c.config.Retry)
		errorsTotal.WithLabelValues(string(decision.Class)).Inc()
		requestsTotal.WithLabelValues(req.Partition, "network_error").Inc()
		logger.Error().Err(err).Str("kind", decision.Kind.String()).Msg("HTTP request failed")

		if decision.Kind == KindRecoverable {
			err = &TransientError{ErrorClass: decision.Class, Delay: decision.Delay, Err: err}
		} else {
			err = fmt.Errorf("execute request: %w", err)
		}
		return nil, attemptResult{decision: decision, err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(req.Partition, strconv.Itoa(resp.StatusCode)).Inc()

	decision := Classify(resp.StatusCode, resp.Header, time.Now(), c.config.Retry)
	switch decision.Kind {
	case KindRecoverable:
		errorsTotal.WithLabelValues(string(decision.Class)).Inc()
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, attemptResult{
			decision:   decision,
			statusCode: resp.StatusCode,
			err: &TransientError{
				StatusCode: resp.StatusCode,
				ErrorClass: decision.Class,
				Delay:      decision.Delay,
				Err:        errors.New(resp.Status),
			},
		}
	case KindTerminal:
		errorsTotal.WithLabelValues(string(decision.Class)).Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Error().
			Int("status", resp.StatusCode).
			Str("error_class", string(decision.Class)).
			Msg("Unexpected status")
		return nil, attemptResult{
			decision:   decision,
			statusCode: resp.StatusCode,
			err:        fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		readDecision := ClassifyTransportError(err, c.config.Retry)
		errorsTotal.WithLabelValues(string(readDecision.Class)).Inc()
		logger.Error().Err(err).Str("kind", readDecision.Kind.String()).Msg("Reading response body failed")
		if readDecision.Kind == KindRecoverable {
			err = &TransientError{StatusCode: resp.StatusCode, ErrorClass: readDecision.Class, Delay: readDecision.Delay, Err: err}
		} else {
			err = fmt.Errorf("%w: read body: %v", ErrMalformedPayload, err)
		}
		return nil, attemptResult{decision: readDecision, statusCode: resp.StatusCode, err: err}
	}

	page, err := decodePage(data)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassPayload)).Inc()
		logger.Error().Err(err).Msg("Invalid search payload")
		return nil, attemptResult{
			decision:   Decision{Kind: KindTerminal, Class: ErrorClassPayload},
			statusCode: resp.StatusCode,
			err:        err,
		}
	}

	return page, attemptResult{decision: decision, statusCode: resp.StatusCode}
}

func (c *Client) searchURL(req PageRequest) string {
	q := url.Values{}
	q.Set("jql", fmt.Sprintf(c.config.JQL, req.Partition))
	q.Set("startAt", strconv.Itoa(req.Offset))
	q.Set("maxResults", strconv.Itoa(req.PageSize))
	q.Set("fields", record.SearchFields)
	return c.config.BaseURL + SearchPath + "?" + q.Encode()
}

// searchResponse is the subset of the search payload the scraper reads.
type searchResponse struct {
	Total  *int              `json:"total"`
	Issues []json.RawMessage `json:"issues"`
}

// decodePage parses a search response. The envelope must be well formed;
// individual issues that are not JSON objects degrade to empty issues so a
// single odd entry cannot fail the page.
func decodePage(data []byte) (*Page, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected JSON object", ErrMalformedPayload)
	}

	var sr searchResponse
	if err := json.Unmarshal(trimmed, &sr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	page := &Page{Issues: make([]record.RawIssue, 0, len(sr.Issues))}
	if sr.Total != nil {
		page.Total = *sr.Total
		page.TotalKnown = true
	}
	for _, raw := range sr.Issues {
		issue := record.RawIssue{}
		if err := json.Unmarshal(raw, &issue); err != nil || issue == nil {
			issue = record.RawIssue{}
		}
		page.Issues = append(page.Issues, issue)
	}

	return page, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetSleeper replaces the delay function used between retries (for testing).
func (c *Client) SetSleeper(sleep Sleeper) {
	c.sleep = sleep
}
