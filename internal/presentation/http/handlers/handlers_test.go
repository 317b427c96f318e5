package handlers_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/storykeep-go/internal/application/container"
	"github.com/AtRiskMedia/storykeep-go/internal/application/services"
	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/tenant"
	"github.com/AtRiskMedia/storykeep-go/internal/presentation/http/routes"
)

const testSecret = "test-secret"

type stubBackend struct {
	mu       sync.Mutex
	calls    int
	payload  *analytics.Payload
	epinet   *analytics.Payload
	hot      []analytics.HotItem
	contents []analytics.ContentInfo
	csv      []byte
	err      error
}

func (b *stubBackend) FetchAll(ctx context.Context, params map[string]string) (*analytics.Payload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return b.payload, nil
}

func (b *stubBackend) FetchEpinet(ctx context.Context, epinetID string, params map[string]string) (*analytics.Payload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return b.epinet, nil
}

func (b *stubBackend) ContentSummary(ctx context.Context) ([]analytics.HotItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hot, b.err
}

func (b *stubBackend) ContentMap(ctx context.Context, lastUpdated int64) ([]analytics.ContentInfo, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contents, 1, nil
}

func (b *stubBackend) LeadsCSV(ctx context.Context) ([]byte, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.csv, "text/csv", b.err
}

func (b *stubBackend) fetchCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type consoleHarness struct {
	router    *gin.Engine
	container *container.Container
	backend   *stubBackend
	token     string
}

func newConsoleHarness(t *testing.T) *consoleHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewDiscardLogger()
	stub := &stubBackend{
		payload: &analytics.Payload{
			Status:     analytics.StatusComplete,
			UserCounts: []analytics.UserCount{{ID: "u1", Count: 3}},
		},
		epinet: &analytics.Payload{
			Status: analytics.StatusComplete,
			Epinet: &analytics.SankeyDiagram{
				ID:    "ep1",
				Title: "Journey",
				Nodes: []analytics.SankeyNode{{ID: "a", Title: "Home"}, {ID: "b", Title: "Pricing"}, {ID: "c", Title: "Signup"}},
				Links: []analytics.SankeyLink{{Source: 0, Target: 1, Value: 5}, {Source: 1, Target: 2, Value: 2}},
			},
		},
		hot:      []analytics.HotItem{{ID: "sf1", TotalEvents: 9}, {ID: "gone", TotalEvents: 1}},
		contents: []analytics.ContentInfo{{ID: "sf1", Title: "Landing", Slug: "landing", Type: "StoryFragment"}},
		csv:      []byte("email,name\na@example.com,A\n"),
	}

	tenants := tenant.NewManager(
		tenant.NewDetector(tenant.DefaultTenantID, false),
		t.TempDir(),
		tenant.Defaults{BackendURL: "http://backend.invalid", JWTSecret: testSecret, ViewerTimezone: "UTC"},
		logger,
	)
	factory := func(cfg *tenant.Config) (services.Backend, error) { return stub, nil }
	c := container.NewContainerWithFactory(tenants, factory, services.NewRealClock(), logger, performance.NewTracker())
	t.Cleanup(c.Dashboards.CloseAll)

	token, err := security.NewAdminTokenSource(tenant.DefaultTenantID, testSecret).Token()
	require.NoError(t, err)

	return &consoleHarness{router: routes.SetupRoutes(c), container: c, backend: stub, token: token}
}

func (h *consoleHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestHealthz(t *testing.T) {
	h := newConsoleHarness(t)

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["activeDashboards"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newConsoleHarness(t)

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "storykeep_active_dashboards")
}

func TestConsoleRequiresAdminToken(t *testing.T) {
	h := newConsoleHarness(t)
	exp := time.Now().Add(time.Hour).Unix()

	cases := map[string]string{
		"missing":      "",
		"garbage":      "Bearer not-a-token",
		"editor role":  "Bearer " + signed(t, jwt.MapClaims{"role": "editor", "exp": exp}),
		"other tenant": "Bearer " + signed(t, jwt.MapClaims{"role": "admin", "tenantId": "acme", "exp": exp}),
		"expired":      "Bearer " + signed(t, jwt.MapClaims{"role": "admin", "exp": time.Now().Add(-time.Hour).Unix()}),
	}
	for name, auth := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/storykeep/analytics", nil)
			if auth != "" {
				req.Header.Set("Authorization", auth)
			}
			w := httptest.NewRecorder()
			h.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/storykeep/analytics", nil)
		req.AddCookie(&http.Cookie{Name: "admin_auth", Value: h.token})
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestInitializeSeedsWindowOnce(t *testing.T) {
	h := newConsoleHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/init", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["seeded"])

	w = h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/init", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["seeded"])

	w = h.do(t, http.MethodGet, "/api/v1/storykeep/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	filters := body["filters"].(map[string]any)
	assert.Equal(t, true, filters["enabled"])
	assert.Equal(t, "all", filters["visitorType"])
	assert.Equal(t, "7d", body["preset"])
	assert.Equal(t, "UTC", body["timezone"])

	// The debounced first fetch reaches the backend
	assert.Eventually(t, func() bool { return h.backend.fetchCalls() == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestFilterMutations(t *testing.T) {
	h := newConsoleHarness(t)

	w := h.do(t, http.MethodPut, "/api/v1/storykeep/analytics/visitor-type", gin.H{"visitorType": "known"})
	assert.Equal(t, http.StatusConflict, w.Code, "filters must be initialized first")

	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/init", nil).Code)

	w = h.do(t, http.MethodPut, "/api/v1/storykeep/analytics/visitor-type", gin.H{"visitorType": "bots"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPut, "/api/v1/storykeep/analytics/visitor-type", gin.H{"visitorType": "known"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "known", decode(t, w)["filters"].(map[string]any)["visitorType"])

	w = h.do(t, http.MethodPut, "/api/v1/storykeep/analytics/user", gin.H{"userId": "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", decode(t, w)["filters"].(map[string]any)["selectedUserId"])

	w = h.do(t, http.MethodPut, "/api/v1/storykeep/analytics/user", gin.H{"userId": nil})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode(t, w)["filters"].(map[string]any), "selectedUserId")

	w = h.do(t, http.MethodPut, "/api/v1/storykeep/analytics/filters", gin.H{"beliefSlug": "likes-go", "value": "YES"})
	require.Equal(t, http.StatusOK, w.Code)
	applied := decode(t, w)["filters"].(map[string]any)["appliedFilters"].([]any)
	require.Len(t, applied, 1)

	w = h.do(t, http.MethodPut, "/api/v1/storykeep/analytics/filters", gin.H{"beliefSlug": "likes-go", "value": analytics.AllValues})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["filters"].(map[string]any)["appliedFilters"])

	w = h.do(t, http.MethodPut, "/api/v1/storykeep/analytics/filters", gin.H{"value": "YES"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.do(t, http.MethodPut, "/api/v1/storykeep/analytics/filters", gin.H{"beliefSlug": "likes-go", "value": "YES"})
	h.do(t, http.MethodPut, "/api/v1/storykeep/analytics/filters", gin.H{"beliefSlug": "likes-rust", "value": "NO"})
	w = h.do(t, http.MethodDelete, "/api/v1/storykeep/analytics/filters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["filters"].(map[string]any)["appliedFilters"])

	w = h.do(t, http.MethodGet, "/api/v1/storykeep/analytics/users?page=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(t, http.MethodGet, "/api/v1/storykeep/analytics/users?page=0", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRangeEditorFlow(t *testing.T) {
	h := newConsoleHarness(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/init", nil).Code)

	w := h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/range/apply", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "nothing pending")

	today := time.Now().UTC().Format(analytics.DayLayout)
	yesterday := time.Now().UTC().Add(-24 * time.Hour).Format(analytics.DayLayout)

	w = h.do(t, http.MethodPut, "/api/v1/storykeep/analytics/range/form", analytics.RangeForm{
		StartDate: today, StartHour: "00", EndDate: yesterday, EndHour: "00",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dirty", decode(t, w)["editor"].(map[string]any)["state"])

	w = h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/range/apply", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Equal(t, analytics.MsgEndBeforeStart, body["error"])
	assert.Equal(t, "end", body["field"])
	assert.Equal(t, "dirty", body["editor"].(map[string]any)["state"])

	w = h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/range/preset", gin.H{"preset": "fortnight"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/range/preset", gin.H{"preset": "24h"})
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/range/apply", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["editor"].(map[string]any)["succeeded"])

	w = h.do(t, http.MethodGet, "/api/v1/storykeep/analytics", nil)
	assert.Equal(t, "24h", decode(t, w)["preset"])

	w = h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/range/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRefreshFetchesImmediately(t *testing.T) {
	h := newConsoleHarness(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/init", nil).Code)
	require.Eventually(t, func() bool { return h.backend.fetchCalls() == 1 }, 2*time.Second, 20*time.Millisecond)

	w := h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/refresh", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "complete", decode(t, w)["fetch"].(map[string]any)["status"])
}

func TestTimelineEndpoints(t *testing.T) {
	h := newConsoleHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/storykeep/analytics/timeline?day=June", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/storykeep/analytics/timeline?day=2024-06-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "2024-06-01", body["day"])
	assert.Contains(t, body, "navigator")

	w = h.do(t, http.MethodGet, "/api/v1/storykeep/analytics/timeline.png?day=2024-06-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	cfg, format, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 960, cfg.Width)
}

func TestEpinetSankey(t *testing.T) {
	h := newConsoleHarness(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/init", nil).Code)

	w := h.do(t, http.MethodGet, "/api/v1/storykeep/analytics/epinet/ep1/sankey?width=400&height=300", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	layout := decode(t, w)["layout"].(map[string]any)
	assert.EqualValues(t, 400, layout["width"])
	assert.Len(t, layout["nodes"], 3)

	w = h.do(t, http.MethodGet, "/api/v1/storykeep/analytics/epinet/ep1/sankey.png?width=400&height=300&scale=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 300, cfg.Height)

	w = h.do(t, http.MethodGet, "/api/v1/storykeep/analytics/epinet/ep1/sankey.webp", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/webp", w.Header().Get("Content-Type"))
}

func TestEpinetStillComputing(t *testing.T) {
	h := newConsoleHarness(t)
	h.backend.epinet = &analytics.Payload{Status: analytics.StatusLoading}
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/init", nil).Code)

	w := h.do(t, http.MethodGet, "/api/v1/storykeep/analytics/epinet/ep1/sankey", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "loading", decode(t, w)["status"])
}

func TestContentSummaryResolvesTitles(t *testing.T) {
	h := newConsoleHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/storykeep/analytics/content-summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hot := decode(t, w)["hotContent"].([]any)
	require.Len(t, hot, 2)
	first := hot[0].(map[string]any)
	assert.Equal(t, "Landing", first["title"])
	assert.EqualValues(t, 9, first["totalEvents"])
	second := hot[1].(map[string]any)
	assert.Equal(t, "gone", second["title"])
	assert.Equal(t, "Unknown", second["type"])
}

func TestLeadsDownload(t *testing.T) {
	h := newConsoleHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/storykeep/leads/download", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), `attachment; filename="leads-`))
	assert.Equal(t, "email,name\na@example.com,A\n", w.Body.String())

	h.backend.mu.Lock()
	h.backend.err = errors.New("backend down")
	h.backend.mu.Unlock()
	w = h.do(t, http.MethodGet, "/api/v1/storykeep/leads/download", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCloseDashboard(t *testing.T) {
	h := newConsoleHarness(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/v1/storykeep/analytics", nil).Code)
	assert.Equal(t, 1, h.container.Dashboards.Len())

	w := h.do(t, http.MethodDelete, "/api/v1/storykeep/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["closed"])
	assert.Equal(t, 0, h.container.Dashboards.Len())

	w = h.do(t, http.MethodDelete, "/api/v1/storykeep/analytics", nil)
	assert.Equal(t, false, decode(t, w)["closed"])
}

func TestLogLevels(t *testing.T) {
	h := newConsoleHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/storykeep/logs/levels", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "fetch")

	w = h.do(t, http.MethodPut, "/api/v1/storykeep/logs/levels", gin.H{"channel": "fetch", "level": "DEBUG"})
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(t, http.MethodGet, "/api/v1/storykeep/logs/levels", nil)
	assert.Equal(t, "DEBUG", decode(t, w)["fetch"])

	w = h.do(t, http.MethodPut, "/api/v1/storykeep/logs/levels", gin.H{"channel": "fetch", "level": "LOUD"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(t, http.MethodPut, "/api/v1/storykeep/logs/levels", gin.H{"channel": "nope", "level": "INFO"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebSocketStreamsFetchUpdates(t *testing.T) {
	h := newConsoleHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.container.Hub.Serve(ctx) }()

	srv := httptest.NewServer(h.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/storykeep/ws"

	rejected := http.Header{}
	rejected.Set("Origin", "http://evil.example")
	rejected.Set("Authorization", "Bearer "+h.token)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, rejected)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header := http.Header{}
	header.Set("Origin", "http://localhost:4321")
	header.Set("Authorization", "Bearer "+h.token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.container.Hub.ClientCount(tenant.DefaultTenantID) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/storykeep/analytics/init", nil).Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg struct {
		Type string `json:"type"`
		Data struct {
			TenantID string `json:"tenantId"`
			Fetch    struct {
				Status string `json:"status"`
			} `json:"fetch"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "fetch", msg.Type)
	assert.Equal(t, tenant.DefaultTenantID, msg.Data.TenantID)
	assert.Equal(t, "complete", msg.Data.Fetch.Status)
}
