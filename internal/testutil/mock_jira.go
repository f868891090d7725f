// Package testutil provides testing utilities for the Jira scraper.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock search response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is one search request seen by the mock.
type RecordedRequest struct {
	Project    string
	StartAt    int
	MaxResults int
	Header     http.Header
}

// offsetFailure injects a response at a given offset a limited number of times.
type offsetFailure struct {
	offset    int
	resp      MockResponse
	remaining int
}

// MockJira is a configurable mock Jira search endpoint.
//
// For every project, queued responses (Enqueue) are served first, in order.
// Once the queue is empty the project's dataset (SetDataset) is paginated
// according to startAt/maxResults. Projects with neither get an empty page.
type MockJira struct {
	server *httptest.Server

	mu       sync.Mutex
	queues   map[string][]MockResponse
	datasets map[string]int
	failures map[string][]*offsetFailure
	requests []RecordedRequest
}

// NewMockJira creates and starts a mock Jira server.
func NewMockJira() *MockJira {
	mock := &MockJira{
		queues:   make(map[string][]MockResponse),
		datasets: make(map[string]int),
		failures: make(map[string][]*offsetFailure),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server base URL.
func (m *MockJira) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockJira) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockJira) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// Enqueue appends scripted responses for a project.
func (m *MockJira) Enqueue(project string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[project] = append(m.queues[project], resps...)
}

// SetDataset makes the project serve total deterministic issues.
func (m *MockJira) SetDataset(project string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[project] = total
}

// FailAt serves resp instead of the dataset page at offset, times times.
func (m *MockJira) FailAt(project string, offset int, resp MockResponse, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[project] = append(m.failures[project], &offsetFailure{offset: offset, resp: resp, remaining: times})
}

// Requests returns the recorded requests for a project, or all requests
// when project is empty.
func (m *MockJira) Requests(project string) []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []RecordedRequest
	for _, r := range m.requests {
		if project == "" || r.Project == project {
			out = append(out, r)
		}
	}
	return out
}

// RequestCount returns the number of requests made to the server.
func (m *MockJira) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockJira) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/rest/api/2/search" {
		writeResponse(w, NewNotFoundResponse())
		return
	}

	q := r.URL.Query()
	project := ProjectFromJQL(q.Get("jql"))
	startAt, _ := strconv.Atoi(q.Get("startAt"))
	maxResults, _ := strconv.Atoi(q.Get("maxResults"))

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Project:    project,
		StartAt:    startAt,
		MaxResults: maxResults,
		Header:     r.Header.Clone(),
	})

	resp, ok := m.nextScripted(project, startAt)
	if !ok {
		if total, hasDataset := m.datasets[project]; hasDataset {
			resp = NewPageResponse(project, startAt, pageLen(startAt, maxResults, total), total)
		} else {
			resp = NewEmptyPageResponse(0)
		}
	}
	m.mu.Unlock()

	writeResponse(w, resp)
}

// nextScripted must be called with m.mu held.
func (m *MockJira) nextScripted(project string, startAt int) (MockResponse, bool) {
	for _, f := range m.failures[project] {
		if f.offset == startAt && f.remaining > 0 {
			f.remaining--
			return f.resp, true
		}
	}

	queue := m.queues[project]
	if len(queue) == 0 {
		return MockResponse{}, false
	}
	m.queues[project] = queue[1:]
	return queue[0], true
}

func pageLen(startAt, maxResults, total int) int {
	n := total - startAt
	if n > maxResults {
		n = maxResults
	}
	if n < 0 {
		n = 0
	}
	return n
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// ProjectFromJQL extracts KEY from "project=KEY ORDER BY ...".
func ProjectFromJQL(jql string) string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(jql), "project=")
	if !ok {
		return ""
	}
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// IssueKey returns the key of the issue at offset (0-based) of a dataset.
func IssueKey(project string, offset int) string {
	return fmt.Sprintf("%s-%d", project, offset+1)
}

// NewPageResponse builds a 200 search response with count issues starting
// at startAt.
func NewPageResponse(project string, startAt, count, total int) MockResponse {
	issues := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		offset := startAt + i
		issues = append(issues, map[string]any{
			"key": IssueKey(project, offset),
			"fields": map[string]any{
				"summary":     fmt.Sprintf("<p>Issue *%d*</p>", offset+1),
				"status":      map[string]any{"name": "Open"},
				"priority":    map[string]any{"name": "Major"},
				"reporter":    map[string]any{"displayName": "Reporter"},
				"labels":      []string{"mock"},
				"created":     "2020-01-01T00:00:00.000+0000",
				"description": "h1. Description\nBody of issue",
				"comment": map[string]any{"comments": []map[string]any{
					{"author": map[string]any{"displayName": "Commenter"}, "created": "2020-01-02", "body": "_ack_"},
				}},
			},
		})
	}

	body, _ := json.Marshal(map[string]any{
		"startAt":    startAt,
		"maxResults": count,
		"total":      total,
		"issues":     issues,
	})

	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json;charset=UTF-8"},
	}
}

// NewEmptyPageResponse creates a 200 response without issues.
func NewEmptyPageResponse(total int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"startAt":0,"maxResults":0,"total":%d,"issues":[]}`, total),
		Headers:    map[string]string{"Content-Type": "application/json;charset=UTF-8"},
	}
}

// NewRateLimitResponse creates a 429 response. An empty retryAfter omits
// the Retry-After header.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errorMessages":["Rate limit exceeded"]}`,
		Headers:    map[string]string{"Content-Type": "application/json;charset=UTF-8"},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errorMessages":["Internal server error"]}`,
		Headers:    map[string]string{"Content-Type": "application/json;charset=UTF-8"},
	}
}

// NewNotFoundResponse creates a 404 response, as Jira returns for an unknown project.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"errorMessages":["The value does not exist for the field 'project'."]}`,
		Headers:    map[string]string{"Content-Type": "application/json;charset=UTF-8"},
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>maintenance</html>`,
		Headers:    map[string]string{"Content-Type": "text/html"},
	}
}
