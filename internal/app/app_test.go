package app_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/nutrivision/internal/app"
	"github.com/MrWong99/nutrivision/internal/catalog"
	catmock "github.com/MrWong99/nutrivision/internal/catalog/mock"
	"github.com/MrWong99/nutrivision/internal/config"
	"github.com/MrWong99/nutrivision/internal/observe"
	"github.com/MrWong99/nutrivision/internal/session"
	llmmock "github.com/MrWong99/nutrivision/pkg/provider/llm/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testCatalog() *catmock.Catalog {
	cat := &catmock.Catalog{}
	cat.AddProduct(&catalog.Product{
		Code:        "3017620422003",
		ProductName: "Nutella",
		Brands:      "Ferrero",
		Nutriments: map[string]any{
			"energy-kcal_100g": 539.0,
			"sugars_100g":      56.3,
			"fat_100g":         30.9,
			"proteins_100g":    6.3,
		},
		IngredientsText: "sugar, palm oil, hazelnuts",
	})
	return cat
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithCatalog(testCatalog()), app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+app.LivePath, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.CloseNow() })
	return c
}

// readUntil reads events until one has the given type and message, returning
// every event seen including the match.
func readUntil(t *testing.T, ctx context.Context, c *websocket.Conn, eventType, message string) []map[string]any {
	t.Helper()
	var seen []map[string]any
	for {
		var ev map[string]any
		if err := wsjson.Read(ctx, c, &ev); err != nil {
			t.Fatalf("read while waiting for %s %q: %v (seen %v)", eventType, message, err, seen)
		}
		seen = append(seen, ev)
		if ev["event_type"] == eventType && ev["message"] == message {
			return seen
		}
	}
}

func probe(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&body)
	return rec.Code, body
}

// ── New ──────────────────────────────────────────────────────────────────────

func TestNew_NilConfig(t *testing.T) {
	t.Parallel()
	if _, err := app.New(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNew_RealCatalogClient(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Catalog.FoodBaseURL = "http://127.0.0.1:1"
	a, err := app.New(context.Background(), cfg, nil, app.WithMetrics(testMetrics(t)))
	if err != nil || a.Handler() == nil {
		t.Fatalf("New: %v", err)
	}
}

// ── Probes ───────────────────────────────────────────────────────────────────

func TestProbes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		providers *app.Providers
		wantReady int
	}{
		{name: "no refiner", providers: nil, wantReady: http.StatusServiceUnavailable},
		{name: "llm refiner", providers: &app.Providers{LLM: &llmmock.Provider{}, LLMName: "openai"}, wantReady: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newApp(t, config.Default(), tt.providers).Handler()

			if code, _ := probe(t, h, "/healthz"); code != http.StatusOK {
				t.Errorf("/healthz = %d", code)
			}
			code, body := probe(t, h, "/readyz")
			if code != tt.wantReady {
				t.Errorf("/readyz = %d, want %d (body %v)", code, tt.wantReady, body)
			}
			checks, _ := body["checks"].(map[string]any)
			if checks["catalog"] != "ok" {
				t.Errorf("catalog check = %v", checks["catalog"])
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	h := newApp(t, config.Default(), nil).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics = %d", rec.Code)
	}
}

// ── Live sessions ────────────────────────────────────────────────────────────

func TestLiveSession_BarcodeTurn(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(newApp(t, config.Default(), nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, ctx, srv)

	readUntil(t, ctx, c, session.EventSessionState, "WebSocket connected")
	if err := wsjson.Write(ctx, c, session.Inbound{Type: session.MsgSessionStart, Domain: "food", Language: "en"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntil(t, ctx, c, session.EventSessionState, "Live session started")

	if err := wsjson.Write(ctx, c, session.Inbound{Type: session.MsgUserQuery, Barcode: "3017620422003", Source: session.SourceManual}); err != nil {
		t.Fatalf("write query: %v", err)
	}
	events := readUntil(t, ctx, c, session.EventSessionState, "Turn complete")

	var hud map[string]any
	for _, ev := range events {
		if ev["event_type"] == session.EventHUDUpdate {
			hud = ev
		}
	}
	if hud == nil {
		t.Fatalf("no hud_update in %v", events)
	}
	if hud["turn_id"] != "T-001" {
		t.Errorf("turn_id = %v, want T-001", hud["turn_id"])
	}
	id, _ := hud["product_identity"].(map[string]any)
	if id["name"] != "Nutella" {
		t.Errorf("product_identity = %v", id)
	}

	if err := wsjson.Write(ctx, c, session.Inbound{Type: session.MsgSessionEnd}); err != nil {
		t.Fatalf("write end: %v", err)
	}
	readUntil(t, ctx, c, session.EventSessionState, "Live session stopped")
}

func TestLiveSession_OriginRejected(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.AllowedOrigins = []string{"app.example.com"}
	srv := httptest.NewServer(newApp(t, cfg, nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+app.LivePath, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.net"}},
	})
	if err == nil {
		t.Fatal("expected cross-origin dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

func TestLiveSession_TurnPolicyReadPerSession(t *testing.T) {
	t.Parallel()

	var reads atomic.Int32
	policy := func() config.TurnConfig {
		reads.Add(1)
		return config.Default().Turn
	}
	srv := httptest.NewServer(newApp(t, config.Default(), nil, app.WithTurnPolicy(policy)).Handler())
	defer srv.Close()
	base := reads.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for range 2 {
		c := dial(t, ctx, srv)
		readUntil(t, ctx, c, session.EventSessionState, "WebSocket connected")
		c.Close(websocket.StatusNormalClosure, "")
	}
	if got := reads.Load() - base; got != 2 {
		t.Errorf("policy read %d times for 2 sessions, want 2", got)
	}
}

// ── Run ──────────────────────────────────────────────────────────────────────

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()
	a := newApp(t, config.Default(), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
