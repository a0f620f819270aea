// Package testutil provides shared test helpers: a fake query service,
// a capturing logger and a polling assertion.
package testutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/mtvsearch/internal/backend"
	"github.com/starford/mtvsearch/internal/models"
)

// Eventually polls cond every 5ms until it holds or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}

// LogBuffer is a goroutine-safe sink for slog output.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Contains reports whether any logged line contains s.
func (b *LogBuffer) Contains(s string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(b.buf.String(), s)
}

// Logger returns a debug-level JSON logger writing into a LogBuffer.
func Logger() (*slog.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// Row builds a result row from plain values.
func Row(title, channel, start string, duration int, topic string) models.ResultRow {
	str := func(s string) json.RawMessage {
		raw, _ := json.Marshal(s)
		return raw
	}
	dur, _ := json.Marshal(duration)
	return models.ResultRow{
		Title:    str(title),
		Channel:  str(channel),
		Start:    str(start),
		Duration: dur,
		Topic:    str(topic),
	}
}

// QueryService is a fake catalog service on an httptest server. It records
// every query it receives.
type QueryService struct {
	*httptest.Server

	mu       sync.Mutex
	requests []backend.Request
	handler  func(req backend.Request) any
	status   string
	refresh  int
}

// NewQueryService starts a fake service. handler returns the JSON body for a
// query; a nil handler answers with an empty single-page result.
func NewQueryService(t *testing.T, handler func(req backend.Request) any) *QueryService {
	t.Helper()
	if handler == nil {
		handler = func(backend.Request) any {
			return map[string]any{"result": []models.ResultRow{}, "page": 1, "last_page": 1, "item_count": 0}
		}
	}
	s := &QueryService{handler: handler, status: "database ready"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", func(w http.ResponseWriter, r *http.Request) {
		var req backend.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.handler(req))
	})
	mux.HandleFunc("GET /database_status", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		status := s.status
		s.mu.Unlock()
		_, _ = w.Write([]byte(status))
	})
	mux.HandleFunc("POST /refresh_database", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		s.refresh++
		s.status = "refreshing database"
		s.mu.Unlock()
		_, _ = w.Write([]byte("refreshing database"))
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Requests returns a copy of the recorded queries.
func (s *QueryService) Requests() []backend.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.Request(nil), s.requests...)
}

// SetStatus replaces the database status text.
func (s *QueryService) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// RefreshCount returns how many refreshes were requested.
func (s *QueryService) RefreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}
