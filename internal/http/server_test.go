package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"finlight/internal/auth"
	"finlight/internal/core"
	"finlight/internal/ocr"
	"finlight/internal/services"
	"finlight/internal/store/memory"
)

const testSecret = "http-test-secret"

var (
	ownerID    = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	outsiderID = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	businessID = uuid.MustParse("33333333-3333-4333-8333-333333333333")
)

func june15() time.Time { return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC) }

type fakeExtractor struct {
	text ocr.ExtractedText
	err  error
}

func (f fakeExtractor) ExtractText(context.Context, []byte) (ocr.ExtractedText, error) {
	return f.text, f.err
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func seed(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	s.AddBusiness(core.Business{ID: businessID, Name: "Acme"})
	s.AddMembership(core.Membership{UserID: ownerID, BusinessID: businessID, Role: core.RoleOwner})

	day := core.NewDate(2024, 6, 3)
	invoices := []core.Invoice{
		{Status: core.StatusPaid, DueDate: core.NewDate(2024, 6, 30), Items: []core.LineItem{{Description: "a", Quantity: 1, UnitPrice: core.Money{Cents: 10000}}}},
		{Status: core.StatusSent, DueDate: core.NewDate(2099, 1, 1), Items: []core.LineItem{{Description: "b", Quantity: 1, UnitPrice: core.Money{Cents: 5000}}}},
		{Status: core.StatusSent, DueDate: core.NewDate(2024, 6, 10), Items: []core.LineItem{{Description: "c", Quantity: 1, UnitPrice: core.Money{Cents: 3000}}}},
	}
	for i, inv := range invoices {
		inv.ID = uuid.New()
		inv.BusinessID = businessID
		inv.Number = "INV-" + string(rune('1'+i))
		inv.IssueDate = day
		if err := s.AddInvoice(inv); err != nil {
			t.Fatalf("seed invoice: %v", err)
		}
	}
	for _, e := range []core.Expense{
		{Category: "rent", Amount: core.Money{Cents: 4000}},
		{Category: "fuel", Amount: core.Money{Cents: 1000}},
	} {
		e.ID = uuid.New()
		e.BusinessID = businessID
		e.Date = day
		if err := s.AddExpense(e); err != nil {
			t.Fatalf("seed expense: %v", err)
		}
	}
	return s
}

type testServer struct {
	*Server
	store *memory.Store
}

func newTestServer(t *testing.T, extractor ocr.TextExtractor, mutate func(*Options)) testServer {
	t.Helper()
	s := seed(t)
	v, err := auth.NewVerifier(auth.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	audit := services.StoreAuditPublisher{Writer: s}
	opts := Options{
		Addr:               ":0",
		Dashboard:          services.NewDashboardService(s, s, audit, services.DefaultDashboardConfig(), nil).WithClock(june15),
		Receipts:           services.NewReceiptService(extractor, s, audit, nil),
		AuditLogs:          services.NewAuditLogService(s, s, nil),
		Verifier:           v,
		Ready:              s,
		RateLimitPerMinute: 100,
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv := NewServer(opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return testServer{Server: srv, store: s}
}

func token(t *testing.T, user uuid.UUID) string {
	t.Helper()
	claims := auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   user.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

func (ts testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return env
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := ts.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	down := newTestServer(t, nil, func(o *Options) { o.Ready = failingPinger{} })
	if rr := down.do(httptest.NewRequest(http.MethodGet, "/readyz", nil)); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing store = %d", rr.Code)
	}
}

func TestDashboardSummary(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/summary?businessId="+businessID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+token(t, ownerID))
	rr := ts.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content type = %q", ct)
	}
	if rr.Header().Get("X-Request-ID") == "" || rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("middleware headers missing: %v", rr.Header())
	}

	env := decode(t, rr)
	if !env.Success {
		t.Fatalf("envelope = %+v", env)
	}
	var got dashboardSummaryDTO
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if got.TotalIncome != "100.00" || got.TotalExpenses != "50.00" || got.NetCashFlow != "50.00" {
		t.Errorf("totals = %s / %s / %s", got.TotalIncome, got.TotalExpenses, got.NetCashFlow)
	}
	if got.PendingInvoices != 1 || got.OverdueInvoices != 1 {
		t.Errorf("pending=%d overdue=%d", got.PendingInvoices, got.OverdueInvoices)
	}
	if got.Period != (periodDTO{From: "2024-06-01", To: "2024-06-30"}) {
		t.Errorf("period = %+v", got.Period)
	}
	if len(got.TopExpenseCategories) != 2 || got.TopExpenseCategories[0] != (categoryAmountDTO{Category: "rent", Amount: "40.00", Count: 1}) {
		t.Errorf("categories = %+v", got.TopExpenseCategories)
	}
	if len(got.MonthlyTrends) != 1 || got.MonthlyTrends[0] != (monthlyTrendDTO{Month: "2024-06", Income: "100.00", Expenses: "50.00", NetFlow: "50.00"}) {
		t.Errorf("trends = %+v", got.MonthlyTrends)
	}
	if n := len(ts.store.AuditEvents()); n != 1 {
		t.Errorf("audit events = %d, want 1", n)
	}
}

func TestDashboardSummaryEmptyListsAreArrays(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/summary?businessId="+businessID.String()+"&from=2023-01-01&to=2023-01-31", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, ownerID))
	rr := ts.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{`"topExpenseCategories":[]`, `"monthlyTrends":[]`, `"totalIncome":"0.00"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s: %s", want, body)
		}
	}
}

func TestDashboardSummaryErrors(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	biz := businessID.String()

	tests := []struct {
		name   string
		query  string
		auth   string
		status int
	}{
		{"no token", "businessId=" + biz, "", http.StatusUnauthorized},
		{"bad token", "businessId=" + biz, "Bearer not-a-jwt", http.StatusUnauthorized},
		{"missing business", "", "owner", http.StatusBadRequest},
		{"malformed business", "businessId=xyz", "owner", http.StatusBadRequest},
		{"from after to", "businessId=" + biz + "&from=2024-06-30&to=2024-06-01", "owner", http.StatusBadRequest},
		{"bad date", "businessId=" + biz + "&from=June", "owner", http.StatusBadRequest},
		{"not a member", "businessId=" + biz, "outsider", http.StatusForbidden},
		{"unknown business", "businessId=" + uuid.NewString(), "owner", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/dashboard/summary?"+tt.query, nil)
			switch tt.auth {
			case "owner":
				req.Header.Set("Authorization", "Bearer "+token(t, ownerID))
			case "outsider":
				req.Header.Set("Authorization", "Bearer "+token(t, outsiderID))
			default:
				if tt.auth != "" {
					req.Header.Set("Authorization", tt.auth)
				}
			}
			rr := ts.do(req)
			if rr.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
			env := decode(t, rr)
			if env.Success || len(env.Errors) == 0 {
				t.Errorf("envelope = %+v", env)
			}
		})
	}
	if ts.store.Reads() != 0 {
		t.Errorf("rejected requests read %d record sets", ts.store.Reads())
	}
	if n := len(ts.store.AuditEvents()); n != 0 {
		t.Errorf("rejected requests were audited: %d", n)
	}
}

func TestDashboardSummaryStoreFailureIs503(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.store.FailReads(errors.New("disk on fire"))

	req := httptest.NewRequest(http.MethodGet, "/dashboard/summary?businessId="+businessID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+token(t, ownerID))
	rr := ts.do(req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "disk on fire") {
		t.Errorf("cause leaked to client: %s", rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	rr := ts.do(httptest.NewRequest(http.MethodPost, "/dashboard/summary", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, nil, func(o *Options) { o.RateLimitPerMinute = 1 })

	if rr := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rr.Code != http.StatusOK {
		t.Fatalf("first status=%d", rr.Code)
	}
	rr := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Errorf("Retry-After missing")
	}
	if env := decode(t, rr); env.Success {
		t.Errorf("envelope = %+v", env)
	}
}

func receiptRequest(t *testing.T, field string, image []byte, business string, user uuid.UUID) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if business != "" {
		if err := mw.WriteField("businessId", business); err != nil {
			t.Fatal(err)
		}
	}
	if field != "" {
		part, err := mw.CreateFormFile(field, "receipt.jpg")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(image); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/ocr/receipt", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, user))
	return req
}

func TestReceiptUpload(t *testing.T) {
	ext := fakeExtractor{text: ocr.ExtractedText{Text: "Corner Cafe\n2024-06-03\nLatte 1 x 45.50 45.50\nTOTAL 45.50\n", Confidence: 0.9}}
	ts := newTestServer(t, ext, nil)

	for _, field := range []string{"image", "file"} {
		t.Run(field, func(t *testing.T) {
			rr := ts.do(receiptRequest(t, field, []byte("jpeg bytes"), businessID.String(), ownerID))
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			var got receiptResultDTO
			if err := json.Unmarshal(decode(t, rr).Data, &got); err != nil {
				t.Fatalf("decode data: %v", err)
			}
			if got.Vendor != "Corner Cafe" || got.Amount != "45.50" || got.Date != "2024-06-03" {
				t.Errorf("result = %+v", got)
			}
			if len(got.Items) != 1 || got.Items[0].UnitPrice != "45.50" || got.Items[0].Quantity != 1 {
				t.Errorf("items = %+v", got.Items)
			}
		})
	}
}

func TestReceiptUploadErrors(t *testing.T) {
	ext := fakeExtractor{text: ocr.ExtractedText{Text: "Shop\nTOTAL 1.00"}}
	biz := businessID.String()

	tests := []struct {
		name      string
		extractor ocr.TextExtractor
		req       func(t *testing.T) *http.Request
		status    int
	}{
		{"disabled", nil, func(t *testing.T) *http.Request {
			return receiptRequest(t, "image", []byte("x"), biz, ownerID)
		}, http.StatusServiceUnavailable},
		{"no image", ext, func(t *testing.T) *http.Request {
			return receiptRequest(t, "", nil, biz, ownerID)
		}, http.StatusBadRequest},
		{"wrong field", ext, func(t *testing.T) *http.Request {
			return receiptRequest(t, "photo", []byte("x"), biz, ownerID)
		}, http.StatusBadRequest},
		{"no business", ext, func(t *testing.T) *http.Request {
			return receiptRequest(t, "image", []byte("x"), "", ownerID)
		}, http.StatusBadRequest},
		{"not multipart", ext, func(t *testing.T) *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/ocr/receipt", strings.NewReader("{}"))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token(t, ownerID))
			return req
		}, http.StatusBadRequest},
		{"not a member", ext, func(t *testing.T) *http.Request {
			return receiptRequest(t, "image", []byte("x"), biz, outsiderID)
		}, http.StatusForbidden},
		{"engine down", fakeExtractor{err: errors.New("quota")}, func(t *testing.T) *http.Request {
			return receiptRequest(t, "image", []byte("x"), biz, ownerID)
		}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.extractor, nil)
			rr := ts.do(tt.req(t))
			if rr.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrInvalidArgument, http.StatusBadRequest},
		{core.ErrUnauthenticated, http.StatusUnauthorized},
		{core.ErrForbidden, http.StatusForbidden},
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrDependencyUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAuditLogs(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	get := func(user uuid.UUID, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, query, nil)
		req.Header.Set("Authorization", "Bearer "+token(t, user))
		return ts.do(req)
	}

	if rr := get(ownerID, "/dashboard/summary?businessId="+businessID.String()); rr.Code != http.StatusOK {
		t.Fatalf("summary status=%d", rr.Code)
	}

	rr := get(ownerID, "/audit-logs?businessId="+businessID.String())
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	env := decode(t, rr)
	var events []struct {
		ID         string  `json:"id"`
		UserID     *string `json:"userId"`
		BusinessID string  `json:"businessId"`
		Action     string  `json:"action"`
		Module     string  `json:"module"`
		RecordID   *string `json:"recordId"`
		Timestamp  string  `json:"timestamp"`
	}
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %+v", events)
	}
	e := events[0]
	if e.Module != core.ModuleDashboard || e.Action != core.ActionView || e.BusinessID != businessID.String() {
		t.Errorf("event = %+v", e)
	}
	if e.UserID == nil || *e.UserID != ownerID.String() || e.RecordID != nil || e.Timestamp == "" {
		t.Errorf("event = %+v", e)
	}
	// reading the trail is not itself audited
	if n := len(ts.store.AuditEvents()); n != 1 {
		t.Errorf("audit events = %d, want 1", n)
	}
}

func TestAuditLogsErrors(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	biz := businessID.String()
	tests := []struct {
		name   string
		user   uuid.UUID
		query  string
		status int
	}{
		{"no token", uuid.Nil, "/audit-logs?businessId=" + biz, http.StatusUnauthorized},
		{"missing business", ownerID, "/audit-logs", http.StatusBadRequest},
		{"bad limit", ownerID, "/audit-logs?limit=0&businessId=" + biz, http.StatusBadRequest},
		{"limit too large", ownerID, "/audit-logs?limit=1000&businessId=" + biz, http.StatusBadRequest},
		{"unknown business", ownerID, "/audit-logs?businessId=" + uuid.NewString(), http.StatusNotFound},
		{"not a member", outsiderID, "/audit-logs?businessId=" + biz, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.query, nil)
			if tt.user != uuid.Nil {
				req.Header.Set("Authorization", "Bearer "+token(t, tt.user))
			}
			rr := ts.do(req)
			if rr.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
			if env := decode(t, rr); env.Success {
				t.Errorf("success=true on error")
			}
		})
	}
	if ts.store.Reads() != 0 {
		t.Errorf("store reads = %d, want 0", ts.store.Reads())
	}
}
