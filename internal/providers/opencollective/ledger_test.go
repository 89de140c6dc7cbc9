package opencollective

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeLedger serves the structured and legacy APIs from canned records.
// Records are keyed by "id:<value>" or "legacyId:<value>".
type fakeLedger struct {
	mu sync.Mutex

	orders       map[string]any
	transactions map[string]any
	legacy       map[string]any

	graphQLErrors []string
	graphQLStatus int
	legacyHang    bool
	legacyStatus  int

	calls      []string
	authHeader string
	apiKeys    []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		orders:       map[string]any{},
		transactions: map[string]any{},
		legacy:       map[string]any{},
	}
}

func (f *fakeLedger) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeLedger) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeLedger) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeLedger) Auth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authHeader
}

func (f *fakeLedger) APIKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.apiKeys...)
}

func (f *fakeLedger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/graphql":
		f.serveGraphQL(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/collectives/"):
		f.serveLegacy(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeLedger) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string                    `json:"query"`
		Variables map[string]map[string]any `json:"variables"`
	}
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.authHeader = r.Header.Get("Authorization")
	f.mu.Unlock()

	if f.graphQLStatus != 0 {
		f.record("graphql:status")
		w.WriteHeader(f.graphQLStatus)
		return
	}
	if len(f.graphQLErrors) > 0 {
		f.record("graphql:errors")
		errs := make([]map[string]string, 0, len(f.graphQLErrors))
		for _, m := range f.graphQLErrors {
			errs = append(errs, map[string]string{"message": m})
		}
		writeJSON(w, map[string]any{"data": nil, "errors": errs})
		return
	}

	if ref, ok := req.Variables["transaction"]; ok {
		key := refKey(ref)
		f.record("transaction:" + key)
		writeJSON(w, map[string]any{"data": map[string]any{"transaction": f.transactions[key]}})
		return
	}
	key := refKey(req.Variables["order"])
	f.record("order:" + key)
	writeJSON(w, map[string]any{"data": map[string]any{"order": f.orders[key]}})
}

func (f *fakeLedger) serveLegacy(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/collectives/"), "/")
	if len(parts) != 3 || parts[1] != "transactions" {
		http.NotFound(w, r)
		return
	}
	f.record("legacy:" + parts[0] + "/" + parts[2])

	f.mu.Lock()
	f.apiKeys = append(f.apiKeys, r.URL.Query().Get("apiKey"))
	f.mu.Unlock()

	if f.legacyHang {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		return
	}
	if f.legacyStatus != 0 {
		w.WriteHeader(f.legacyStatus)
		return
	}
	writeJSON(w, map[string]any{"result": f.legacy[parts[2]]})
}

func refKey(ref map[string]any) string {
	if v, ok := ref["id"]; ok {
		return fmt.Sprintf("id:%v", v)
	}
	if v, ok := ref["legacyId"]; ok {
		return fmt.Sprintf("legacyId:%v", v)
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// order builds a structured order payload.
func order(status, value, currency, slug string) map[string]any {
	return map[string]any{
		"id":        "abc",
		"legacyId":  42,
		"status":    status,
		"frequency": "ONETIME",
		"totalAmount": map[string]any{
			"value":    value,
			"currency": currency,
		},
		"toAccount":   map[string]any{"slug": slug},
		"fromAccount": map[string]any{"slug": "jane", "name": "Jane"},
	}
}

func testConfig(srv *httptest.Server) *Config {
	return &Config{
		APIKey:          "secret-key",
		CollectiveSlugs: []string{"my-collective"},
		Timeout:         time.Second,
		GraphQLURL:      srv.URL + "/graphql",
		LegacyURL:       srv.URL + "/v1",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
