package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/ledger/memory"
	applog "fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/services"

	"github.com/google/go-cmp/cmp"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, rate int) *Server {
	t.Helper()
	return newTestServerLogging(t, rate, io.Discard)
}

func newTestServerLogging(t *testing.T, rate int, logOutput io.Writer) *Server {
	t.Helper()
	store := memory.New()
	m := metrics.New("test")
	srv := NewServer(":0", Services{
		Ledger:    services.NewLedgerService(store),
		NetIncome: services.NewNetIncomeService(store, m),
		Recurring: services.NewRecurringProcessor(store, nil, m, 30),
		Budget:    services.NewBudgetService(store),
		Store:     store,
	}, Options{
		Logger:             applog.New(applog.Config{Output: logOutput}),
		Metrics:            m,
		RateLimitPerMinute: rate,
		Now:                func() time.Time { return testNow },
	})
	t.Cleanup(func() { srv.limiter.Stop() })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.RemoteAddr = "203.0.113.10:4000"
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func createOwner(t *testing.T, srv *Server, username string) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/users", `{"username":"`+username+`","first_name":"Ada"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create owner status = %d, body %s", rec.Code, rec.Body.String())
	}
	o := decode[map[string]any](t, rec)
	return "/users/" + jsonNumber(o["id"])
}

func jsonNumber(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, 0)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := do(t, srv, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
		if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing request id", path)
		}
	}
}

func TestReadyWithoutStore(t *testing.T) {
	srv := NewServer(":0", Services{}, Options{Logger: applog.New(applog.Config{Output: io.Discard})})
	defer srv.limiter.Stop()
	rec := do(t, srv, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestOwnerEmailConflict(t *testing.T) {
	srv := newTestServer(t, 0)
	bob := createOwner(t, srv, "bob")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"create with email", http.MethodPost, "/users", `{"username":"grace","email":"g@example.com"}`, http.StatusCreated},
		{"create with taken email", http.MethodPost, "/users", `{"username":"grace2","email":"g@example.com"}`, http.StatusConflict},
		{"update to taken email", http.MethodPut, bob, `{"username":"bob","email":"g@example.com"}`, http.StatusConflict},
		{"owners without email", http.MethodPost, "/users", `{"username":"noemail"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, srv, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("%s %s status = %d, want %d, body %s", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestOwnerLifecycle(t *testing.T) {
	srv := newTestServer(t, 0)
	owner := createOwner(t, srv, "ada")

	if rec := do(t, srv, http.MethodPost, "/users", `{"username":"ada"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate username status = %d, want 409", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/users", `{"first_name":"x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing username status = %d, want 400", rec.Code)
	}

	do(t, srv, http.MethodPost, owner+"/incomes", `{"amount":"10","source":"SALARY","date":"2024-03-01"}`)

	rec := do(t, srv, http.MethodGet, owner, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get owner status = %d", rec.Code)
	}
	detail := decode[map[string]any](t, rec)
	if got := len(detail["incomes"].([]any)); got != 1 {
		t.Errorf("incomes = %d, want 1", got)
	}
	if got := len(detail["expenses"].([]any)); got != 0 {
		t.Errorf("expenses = %d, want 0", got)
	}

	rec = do(t, srv, http.MethodPut, owner, `{"username":"ada2","email":"ada@example.com","income_goal":"999"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decode[map[string]any](t, rec)
	if updated["username"] != "ada2" || updated["income_goal"] != "0.00" {
		t.Errorf("updated owner = %v, want username ada2 and unchanged budget", updated)
	}

	if rec := do(t, srv, http.MethodGet, "/users", ""); len(decode[[]any](t, rec)) != 1 {
		t.Errorf("list owners = %s, want one owner", rec.Body.String())
	}
	if rec := do(t, srv, http.MethodDelete, owner, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, owner, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted owner status = %d, want 404", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/users/abc", ""); rec.Code != http.StatusNotFound {
		t.Errorf("non-numeric id status = %d, want 404", rec.Code)
	}
}

func TestCreateTransaction(t *testing.T) {
	srv := newTestServer(t, 0)
	owner := createOwner(t, srv, "ada")

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantAmount string
	}{
		{"income with comma decimal", "/incomes", `{"amount":"12,50","source":"salary","date":"2024-03-01"}`, http.StatusCreated, "12.50"},
		{"numeric amount", "/expenses", `{"amount":7.005,"category":"FOOD","date":"2024-03-02"}`, http.StatusCreated, "7.00"},
		{"empty category defaults to other", "/expenses", `{"amount":"1","date":"2024-03-02"}`, http.StatusCreated, "1.00"},
		{"recurring expense", "/expenses", `{"amount":"9.99","category":"SUBSCRIPTION","type":true,"interval":"0-1-0","date":"2024-03-03"}`, http.StatusCreated, "9.99"},
		{"unknown category", "/expenses", `{"amount":"1","category":"SALARY","date":"2024-03-02"}`, http.StatusBadRequest, ""},
		{"recurring without interval", "/expenses", `{"amount":"1","type":true,"date":"2024-03-02"}`, http.StatusBadRequest, ""},
		{"zero interval", "/expenses", `{"amount":"1","type":true,"interval":"0-0-0","date":"2024-03-02"}`, http.StatusBadRequest, ""},
		{"negative amount", "/incomes", `{"amount":"-5","date":"2024-03-02"}`, http.StatusBadRequest, ""},
		{"bad date", "/incomes", `{"amount":"5","date":"2024-02-30"}`, http.StatusBadRequest, ""},
		{"unknown field", "/incomes", `{"amount":"5","date":"2024-03-02","bogus":1}`, http.StatusBadRequest, ""},
		{"other owner in body", "/incomes", `{"user":999,"amount":"5","date":"2024-03-02"}`, http.StatusBadRequest, ""},
		{"empty body", "/incomes", ``, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, owner+tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			got := decode[map[string]any](t, rec)
			if tt.wantAmount != "" && got["amount"] != tt.wantAmount {
				t.Errorf("amount = %v, want %s", got["amount"], tt.wantAmount)
			}
			if tt.wantStatus >= 400 && got["error"] == "" {
				t.Errorf("error body missing message")
			}
		})
	}

	if rec := do(t, srv, http.MethodPost, "/users/4242/incomes", `{"amount":"5","date":"2024-03-02"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown owner status = %d, want 404", rec.Code)
	}
}

func TestTransactionDetail(t *testing.T) {
	srv := newTestServer(t, 0)
	owner := createOwner(t, srv, "ada")

	rec := do(t, srv, http.MethodPost, owner+"/expenses", `{"amount":"20","category":"FOOD","description":"lunch","date":"2024-03-05"}`)
	id := jsonNumber(decode[map[string]any](t, rec)["id"])

	if rec := do(t, srv, http.MethodGet, "/income/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expense read as income status = %d, want 404", rec.Code)
	}

	rec = do(t, srv, http.MethodPut, "/expense/"+id, `{"amount":"25","category":"HOUSING","date":"2024-03-06"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	want := map[string]any{
		"id":          decode[map[string]any](t, rec)["id"],
		"user":        decode[map[string]any](t, rec)["user"],
		"amount":      "25.00",
		"category":    "HOUSING",
		"description": "",
		"type":        false,
		"interval":    nil,
		"date":        "2024-03-06",
	}
	got := decode[map[string]any](t, do(t, srv, http.MethodGet, "/expense/"+id, ""))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GET /expense mismatch (-want +got):\n%s", diff)
	}

	if rec := do(t, srv, http.MethodPut, "/expense/"+id, `{"user":777,"amount":"1","date":"2024-03-06"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("owner change status = %d, want 400", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/expense/"+id, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/expense/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestListTransactionsWithStat(t *testing.T) {
	srv := newTestServer(t, 0)
	owner := createOwner(t, srv, "ada")
	for _, body := range []string{
		`{"amount":"30","category":"FOOD","date":"2024-03-01"}`,
		`{"amount":"10","category":"FOOD","date":"2024-03-02"}`,
		`{"amount":"60","category":"HOUSING","date":"2024-03-03"}`,
		`{"amount":"99","category":"HOUSING","date":"2023-03-03"}`,
	} {
		if rec := do(t, srv, http.MethodPost, owner+"/expenses", body); rec.Code != http.StatusCreated {
			t.Fatalf("seed status = %d, body %s", rec.Code, rec.Body.String())
		}
	}

	tests := []struct {
		name      string
		query     string
		wantCount int
		wantFood  float64
	}{
		{"everything", "", 4, 20.2},
		{"one month", "?year=2024&month=3", 3, 40},
		{"month in any year", "?month=3", 4, 20.2},
		{"category filter", "?year=2024&category=food", 2, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, owner+"/expenses"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			got := decode[struct {
				List []map[string]any  `json:"list"`
				Stat map[string]float64 `json:"stat"`
			}](t, rec)
			if len(got.List) != tt.wantCount {
				t.Errorf("list length = %d, want %d", len(got.List), tt.wantCount)
			}
			if got.Stat["FOOD"] != tt.wantFood {
				t.Errorf("stat FOOD = %v, want %v", got.Stat["FOOD"], tt.wantFood)
			}
		})
	}

	if rec := do(t, srv, http.MethodGet, owner+"/expenses?month=13", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("month 13 status = %d, want 400", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, owner+"/expenses?year=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric year status = %d, want 400", rec.Code)
	}
}

func TestNetIncomeAndGraph(t *testing.T) {
	srv := newTestServer(t, 0)
	owner := createOwner(t, srv, "ada")

	rec := do(t, srv, http.MethodGet, owner+"/netIncome", "")
	if diff := cmp.Diff(map[string]string{"net_income": "0.00"}, decode[map[string]string](t, rec)); diff != "" {
		t.Errorf("empty net income mismatch (-want +got):\n%s", diff)
	}

	for _, seed := range []struct{ path, body string }{
		{"/incomes", `{"amount":"100","source":"SALARY","date":"2024-03-01"}`},
		{"/incomes", `{"amount":"50","source":"BUSINESS","date":"2024-03-10"}`},
		{"/expenses", `{"amount":"90","category":"FOOD","date":"2024-03-12"}`},
		{"/expenses", `{"amount":"500","category":"FOOD","date":"2024-04-01"}`},
	} {
		do(t, srv, http.MethodPost, owner+seed.path, seed.body)
	}

	rec = do(t, srv, http.MethodGet, owner+"/netIncome", "")
	if got := decode[map[string]string](t, rec)["net_income"]; got != "60.00" {
		t.Errorf("net_income = %s, want 60.00", got)
	}
	rec = do(t, srv, http.MethodGet, owner+"/netIncome?year=2024&month=3&day=5", "")
	if got := decode[map[string]string](t, rec)["net_income"]; got != "100.00" {
		t.Errorf("net_income on 2024-03-05 = %s, want 100.00", got)
	}

	rec = do(t, srv, http.MethodGet, owner+"/graphData?scale=1m", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("graph status = %d, body %s", rec.Code, rec.Body.String())
	}
	graph := decode[struct {
		Scale   string            `json:"scale"`
		Running map[string]string `json:"net_income_flow"`
		Flow    map[string]string `json:"net_income_list"`
	}](t, rec)
	if graph.Scale != "1m" || len(graph.Running) != 15 || len(graph.Flow) != 15 {
		t.Errorf("graph = scale %q with %d/%d buckets, want 1m with 15", graph.Scale, len(graph.Running), len(graph.Flow))
	}
	if got := graph.Running["15, 3"]; got != "60" {
		t.Errorf("running value today = %q, want 60", got)
	}
	if got := graph.Flow["12, 3"]; got != "-90" {
		t.Errorf("flow on 12 March = %q, want -90", got)
	}

	if rec := do(t, srv, http.MethodGet, owner+"/graphData?scale=2w", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown scale status = %d, want 400", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/users/999/netIncome", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown owner status = %d, want 404", rec.Code)
	}
}

func TestUpcomingExpenses(t *testing.T) {
	srv := newTestServer(t, 0)
	owner := createOwner(t, srv, "ada")
	do(t, srv, http.MethodPost, owner+"/expenses",
		`{"amount":"15","category":"SUBSCRIPTION","type":true,"interval":"0-1-0","date":"2023-01-01"}`)
	do(t, srv, http.MethodPost, owner+"/expenses",
		`{"amount":"500","category":"INSURANCE","type":true,"interval":"1-0-0","date":"2023-01-01"}`)

	rec := do(t, srv, http.MethodGet, owner+"/upcomingExpenses?year=2023&month=4&day=15", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		Today    string           `json:"today"`
		Expenses []map[string]any `json:"expenses"`
	}](t, rec)
	if got.Today != "2023-04-15" {
		t.Errorf("today = %s, want 2023-04-15", got.Today)
	}
	if len(got.Expenses) != 1 || got.Expenses[0]["date"] != "2023-05-01" {
		t.Fatalf("expenses = %v, want one dated 2023-05-01", got.Expenses)
	}

	again := decode[struct {
		Expenses []map[string]any `json:"expenses"`
	}](t, do(t, srv, http.MethodGet, owner+"/upcomingExpenses?year=2023&month=4&day=15", ""))
	if diff := cmp.Diff(got.Expenses, again.Expenses); diff != "" {
		t.Errorf("rollforward not idempotent (-first +second):\n%s", diff)
	}
}

func TestBudget(t *testing.T) {
	srv := newTestServer(t, 0)
	owner := createOwner(t, srv, "ada")
	other := createOwner(t, srv, "bob")
	do(t, srv, http.MethodPost, owner+"/expenses", `{"amount":"40","category":"FOOD","date":"2024-03-02"}`)
	do(t, srv, http.MethodPost, owner+"/expenses", `{"amount":"40","category":"FOOD","date":"2024-02-28"}`)
	do(t, srv, http.MethodPost, other+"/expenses", `{"amount":"1000","category":"FOOD","date":"2024-03-02"}`)

	tests := []struct {
		name       string
		method     string
		query      string
		wantStatus int
		want       map[string]string
	}{
		{"set expense budget", http.MethodPut, "?expenseBudget=500", http.StatusOK,
			map[string]string{"expense_budget": "500.00", "monthly_total_expense": "40.00"}},
		{"get both halves", http.MethodGet, "?incomeGoal=1&expenseBudget=1", http.StatusOK,
			map[string]string{"income_goal": "0.00", "monthly_total_income": "0.00", "expense_budget": "500.00", "monthly_total_expense": "40.00"}},
		{"get nothing requested", http.MethodGet, "", http.StatusOK, map[string]string{}},
		{"negative goal", http.MethodPut, "?incomeGoal=-1", http.StatusBadRequest, nil},
		{"malformed goal", http.MethodPut, "?incomeGoal=abc", http.StatusBadRequest, nil},
		{"goal above max amount", http.MethodPut, "?incomeGoal=184467440737095516.17", http.StatusBadRequest, nil},
		{"budget above max amount", http.MethodPut, "?expenseBudget=1e17", http.StatusBadRequest, nil},
		{"budget kept after rejected writes", http.MethodGet, "?expenseBudget=1", http.StatusOK,
			map[string]string{"expense_budget": "500.00", "monthly_total_expense": "40.00"}},
		{"put without values", http.MethodPut, "", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, owner+"/budget"+tt.query, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.want == nil {
				return
			}
			if diff := cmp.Diff(tt.want, decode[map[string]string](t, rec)); diff != "" {
				t.Errorf("budget mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	var logs bytes.Buffer
	srv := newTestServerLogging(t, 1, &logs)
	if rec := do(t, srv, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", rec.Code)
	}
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	if got := decode[map[string]string](t, rec)["error"]; got == "" {
		t.Error("429 body missing error")
	}
	if out := logs.String(); !strings.Contains(out, "Rate limit exceeded") || !strings.Contains(out, "component=rate_limit") {
		t.Errorf("rejection not logged under the rate limit component:\n%s", out)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, 0)
	do(t, srv, http.MethodGet, "/users", "")
	rec := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_http_requests_total{method="GET",route="GET /users",status="200"} 1`) {
		t.Errorf("metrics missing request counter:\n%s", rec.Body.String())
	}
}
