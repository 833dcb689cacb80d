// Package testutil provides testing utilities for the catalog client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior of the mock catalog for one identifier.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockCatalog is a configurable mock of the AniDB HTTP API for testing.
// It records every request so tests can assert on request counts and on
// the spacing between consecutive requests.
type MockCatalog struct {
	server *httptest.Server

	mu           sync.Mutex
	responses    map[int]MockResponse
	requestCount int
	requestTimes []time.Time
	lastQuery    url.Values
}

// NewMockCatalog creates a mock catalog server. Identifiers without a
// configured response get a minimal healthy anime document.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		responses: make(map[int]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		aid, _ := strconv.Atoi(q.Get("aid"))

		mock.mu.Lock()
		mock.requestCount++
		mock.requestTimes = append(mock.requestTimes, time.Now())
		mock.lastQuery = q
		resp, configured := mock.responses[aid]
		mock.mu.Unlock()

		if !configured {
			resp = MockResponse{
				StatusCode: http.StatusOK,
				Body:       AnimeXML(aid, fmt.Sprintf("Anime %d", aid)),
			}
		}

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears all tracking state and configured responses.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.requestTimes = nil
	m.lastQuery = nil
	m.responses = make(map[int]MockResponse)
}

// SetResponse configures the response for one identifier.
func (m *MockCatalog) SetResponse(aid int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[aid] = resp
}

// RequestCount returns the number of requests received.
func (m *MockCatalog) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// RequestTimes returns the arrival time of every request, in order.
func (m *MockCatalog) RequestTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	times := make([]time.Time, len(m.requestTimes))
	copy(times, m.requestTimes)
	return times
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockCatalog) LastQuery() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

// AnimeXML builds a healthy anime document for an identifier.
func AnimeXML(id int, mainTitle string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<anime id="%d" restricted="false">
  <type>TV Series</type>
  <startdate>2011-04-06</startdate>
  <titles>
    <title xml:lang="x-jat" type="main">%s</title>
    <title xml:lang="en" type="official">%s (EN)</title>
  </titles>
  <ratings>
    <permanent count="1000">8.00</permanent>
  </ratings>
  <picture>%d.jpg</picture>
</anime>`, id, mainTitle, mainTitle, id)
}

// BannedXML is the payload AniDB serves to banned clients.
func BannedXML() string {
	return `<error>Banned</error>`
}

// NotFoundXML is the payload for identifiers that do not exist upstream.
func NotFoundXML() string {
	return `<error>Anime not found</error>`
}

// MissingTitleXML is a structurally valid document with no main title.
func MissingTitleXML(id int) string {
	return fmt.Sprintf(`<anime id="%d"><titles><title xml:lang="en" type="synonym">x</title></titles></anime>`, id)
}

// OKResponse wraps a body in a 200 MockResponse.
func OKResponse(body string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: body}
}
