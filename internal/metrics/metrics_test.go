package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestObserveCounters(t *testing.T) {
	m := New()

	m.ObserveIngest(3, 2)
	m.ObserveBroadcast(5, 1)

	body := scrape(t, m)
	for _, want := range []string{
		`maillist_rows_ingested_total{outcome="success"} 3`,
		`maillist_rows_ingested_total{outcome="failure"} 2`,
		`maillist_mails_sent_total 5`,
		`maillist_mails_failed_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/lists/unsubscribe/{token}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/lists/unsubscribe/secret-token", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	body := scrape(t, m)
	if !strings.Contains(body, `path="/lists/unsubscribe/{token}"`) {
		t.Errorf("middleware should label by route pattern, got:\n%s", body)
	}
	if strings.Contains(body, "secret-token") {
		t.Error("raw token must not appear in metric labels")
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics endpoint status = %d", w.Code)
	}
	return w.Body.String()
}
