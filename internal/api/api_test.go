package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/mtvsearch/internal/backend"
	"github.com/starford/mtvsearch/internal/models"
	"github.com/starford/mtvsearch/internal/query"
	"github.com/starford/mtvsearch/internal/session"
	"github.com/starford/mtvsearch/internal/sse"
	"github.com/starford/mtvsearch/internal/status"
	"github.com/starford/mtvsearch/internal/testutil"
)

type testEnvironment struct {
	router  http.Handler
	service *testutil.QueryService
	broker  *sse.Broker
}

// testEnv wires a router against a fake query service. A non-empty
// authToken enables token mode.
func testEnv(t *testing.T, authToken string) *testEnvironment {
	t.Helper()
	svc := testutil.NewQueryService(t, func(req backend.Request) any {
		return map[string]any{
			"result":     []models.ResultRow{testutil.Row("Wartezimmer", "ARD", "2020-01-01", 1800, "Doku")},
			"page":       req.Page,
			"last_page":  3,
			"item_count": 25,
		}
	})
	log, _ := testutil.Logger()
	client := backend.New(svc.URL, svc.Client())

	broker := sse.NewBroker()
	t.Cleanup(broker.Close)

	opts := session.Options{Query: query.DefaultOptions(), WindowSize: 10, Logger: log, OnClose: broker.Drop}
	opts.Query.Debounce = 10 * time.Millisecond
	sessions := session.NewService(client, opts, func(id string, v View) {
		broker.Publish(id, sse.Event{Type: sse.TypeViewUpdated, Data: v})
	})
	t.Cleanup(sessions.Close)

	monitor := status.New(client, status.ModePoll, time.Second, log, broker.PublishStatus)
	router := NewRouter(sessions, monitor, broker, authToken != "", authToken)
	return &testEnvironment{router: router, service: svc, broker: broker}
}

func (e *testEnvironment) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnvironment) createSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SessionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ID == "" {
		t.Fatal("empty session id")
	}
	return resp.ID
}

func (e *testEnvironment) view(t *testing.T, id string) View {
	t.Helper()
	w := e.do(t, http.MethodGet, "/sessions/"+id+"/view", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get view = %d, body = %s", w.Code, w.Body.String())
	}
	var v View
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestSessionFlow(t *testing.T) {
	env := testEnv(t, "")
	id := env.createSession(t)

	w := env.do(t, http.MethodPut, "/sessions/"+id+"/filters/title", FilterRequest{Value: "Wart"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("set filter = %d, body = %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPut, "/sessions/"+id+"/filters/channel", FilterRequest{Value: "ARD"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("set filter = %d", w.Code)
	}

	var v View
	testutil.Eventually(t, 2*time.Second, func() bool {
		v = env.view(t, id)
		return v.Phase == "committed"
	}, "query committed")

	if diff := cmp.Diff([]string{"channel=ARD", "title=Wart"}, v.Rules); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}
	if v.ItemCount != 25 || v.LastPage != 3 || len(v.Pager) != 3 {
		t.Errorf("view = items %d last %d pager %d", v.ItemCount, v.LastPage, len(v.Pager))
	}

	w = env.do(t, http.MethodPut, "/sessions/"+id+"/page", PageRequest{Page: 2})
	if w.Code != http.StatusAccepted {
		t.Fatalf("set page = %d", w.Code)
	}
	w = env.do(t, http.MethodPut, "/sessions/"+id+"/sort", SortRequest{Field: "title", Direction: "ascending"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("set sort = %d", w.Code)
	}
	testutil.Eventually(t, 2*time.Second, func() bool {
		v = env.view(t, id)
		return v.Phase == "committed" && v.Page == 2 && v.SortField == "title"
	}, "page and sort committed")

	want := backend.Request{Limit: 10, Rules: []string{"channel=ARD", "title=Wart"}, Page: 2, SortField: "title", SortDirection: models.Ascending}
	found := false
	for _, req := range env.service.Requests() {
		if cmp.Equal(want, req) {
			found = true
		}
	}
	if !found {
		t.Errorf("no request %+v in %+v", want, env.service.Requests())
	}

	w = env.do(t, http.MethodDelete, "/sessions/"+id, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/sessions/"+id+"/view", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("view after delete = %d, want 404", w.Code)
	}
}

func TestGetView_ETag(t *testing.T) {
	env := testEnv(t, "")
	id := env.createSession(t)

	w := env.do(t, http.MethodGet, "/sessions/"+id+"/view", nil)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("view = %d etag = %q", w.Code, etag)
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/view", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional view = %d, want 304", w.Code)
	}
}

func TestBadRequests(t *testing.T) {
	env := testEnv(t, "")
	id := env.createSession(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"page zero", http.MethodPut, "/sessions/" + id + "/page", PageRequest{Page: 0}, http.StatusBadRequest},
		{"unknown field", http.MethodPut, "/sessions/" + id + "/filters/genre", FilterRequest{Value: "x"}, http.StatusBadRequest},
		{"foreign modifier", http.MethodPut, "/sessions/" + id + "/filters/title", FilterRequest{Value: "x", Modifier: "longer"}, http.StatusBadRequest},
		{"unknown sort field", http.MethodPut, "/sessions/" + id + "/sort", SortRequest{Field: "genre", Direction: "ascending"}, http.StatusBadRequest},
		{"unknown session", http.MethodPut, "/sessions/nope/page", PageRequest{Page: 1}, http.StatusNotFound},
		{"search bad page", http.MethodGet, "/search?title=x&page=0", nil, http.StatusBadRequest},
		{"search bad mode", http.MethodGet, "/search?start=2020&start_mode=sideways", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, tt.method, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPut, "/sessions/"+id+"/page", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := testEnv(t, "")

	w := env.do(t, http.MethodGet, "/search?title=Wart&start=2020&start_mode=after&page=2&sort=channel&direction=asc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var v View
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	if v.Phase != "committed" || v.Page != 2 {
		t.Errorf("view = %s page %d", v.Phase, v.Page)
	}
	want := []backend.Request{{Limit: 10, Rules: []string{"start+2020", "title=Wart"}, Page: 2, SortField: "channel", SortDirection: models.Ascending}}
	if diff := cmp.Diff(want, env.service.Requests()); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusEndpoints(t *testing.T) {
	env := testEnv(t, "")

	w := env.do(t, http.MethodGet, "/status", nil)
	var resp StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || resp.Status != status.Connecting {
		t.Errorf("status = %d %q", w.Code, resp.Status)
	}

	w = env.do(t, http.MethodPost, "/status/refresh", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || resp.Status != "refreshing database" {
		t.Errorf("refresh = %d %q", w.Code, resp.Status)
	}
	if env.service.RefreshCount() != 1 {
		t.Errorf("refresh count = %d", env.service.RefreshCount())
	}
}

func TestSessionEvents(t *testing.T) {
	env := testEnv(t, "")
	id := env.createSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		env.router.ServeHTTP(w, req)
		close(done)
	}()

	testutil.Eventually(t, time.Second, func() bool { return env.broker.ClientCount() == 1 }, "stream subscribed")
	env.do(t, http.MethodPut, "/sessions/"+id+"/filters/topic", FilterRequest{Value: "Doku"})
	testutil.Eventually(t, 2*time.Second, func() bool { return env.view(t, id).Phase == "committed" }, "committed")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done
	if body := w.Body.String(); !strings.Contains(body, "event: view.updated") || !strings.Contains(body, `"topic=Doku"`) {
		t.Errorf("stream missing view update: %q", body)
	}

	w = env.do(t, http.MethodGet, "/sessions/nope/events", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("events of unknown session = %d, want 404", w.Code)
	}
}

func TestSessionEvents_EndOnDelete(t *testing.T) {
	env := testEnv(t, "")
	id := env.createSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		env.router.ServeHTTP(w, req)
		close(done)
	}()
	testutil.Eventually(t, time.Second, func() bool { return env.broker.ClientCount() == 1 }, "stream subscribed")

	if w := env.do(t, http.MethodDelete, "/sessions/"+id, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event stream still open after delete")
	}
	if n := env.broker.ClientCount(); n != 0 {
		t.Errorf("clients after delete = %d", n)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	env := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	env := testEnv(t, "secret123")

	w := env.do(t, http.MethodGet, "/status", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	env := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	env := testEnv(t, "")

	w := env.do(t, http.MethodGet, "/status", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := testEnv(t, "secret")

	// No token → 401.
	w := env.do(t, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	env := testEnv(t, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestSSEEvents_QueryToken(t *testing.T) {
	env := testEnv(t, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with query token should not 401")
	}

	// The query parameter is only honoured on event streams.
	w = env.do(t, http.MethodGet, "/status?access_token=tok", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status with query token = %d, want 401", w.Code)
	}
}

func TestRefreshStatus_Unreachable(t *testing.T) {
	svc := testutil.NewQueryService(t, nil)
	client := backend.New(svc.URL, svc.Client())
	svc.Close()

	log, _ := testutil.Logger()
	sessions := session.NewService(client, session.Options{Logger: log}, nil)
	t.Cleanup(sessions.Close)
	monitor := status.New(client, status.ModePoll, time.Second, log, nil)
	router := NewRouter(sessions, monitor, nil, false, "")

	req := httptest.NewRequest(http.MethodPost, "/status/refresh", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadGateway {
		t.Errorf("refresh against closed service = %d, want 502", w.Code)
	}
	if !strings.Contains(w.Body.String(), "query service unavailable") {
		t.Errorf("body = %q", w.Body.String())
	}
}
