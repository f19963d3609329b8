package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/smoothie-dispatch/internal/broker"
	"github.com/shaiso/smoothie-dispatch/internal/domain"
	"github.com/shaiso/smoothie-dispatch/internal/orchestrator"
	"github.com/shaiso/smoothie-dispatch/internal/orders"
	"github.com/shaiso/smoothie-dispatch/internal/registry"
)

// fakeEngine создаёт заказы в хранилище без workflow.
type fakeEngine struct {
	store     orders.Store
	submitErr error
	tokens    map[string]bool
	reports   []string
}

func (e *fakeEngine) Submit(ctx context.Context, item string) (uuid.UUID, error) {
	if e.submitErr != nil {
		return uuid.Nil, e.submitErr
	}
	if strings.TrimSpace(item) == "" {
		return uuid.Nil, orchestrator.ErrEmptyItem
	}
	order := domain.NewWorkOrder(item)
	if err := e.store.Create(ctx, order); err != nil {
		return uuid.Nil, err
	}
	return order.ID, nil
}

func (e *fakeEngine) ReportCompletion(token string, success bool, info string) bool {
	e.reports = append(e.reports, token)
	if e.tokens[token] {
		delete(e.tokens, token)
		return true
	}
	return false
}

type testServer struct {
	mux      *http.ServeMux
	engine   *fakeEngine
	store    *orders.MemoryStore
	registry *registry.MemoryRegistry
}

func newTestServer(t *testing.T, rateLimit float64) *testServer {
	t.Helper()

	store := orders.NewMemoryStore()
	reg := registry.NewMemoryRegistry()
	engine := &fakeEngine{store: store, tokens: map[string]bool{}}

	h := NewHandler(Config{
		Engine:    engine,
		Orders:    store,
		Registry:  reg,
		RateLimit: rateLimit,
		RateBurst: 1,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &testServer{mux: mux, engine: engine, store: store, registry: reg}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error
}

func TestSubmitOrder(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(t, http.MethodPost, "/api/v1/orders", SubmitOrderRequest{Item: "mango-banana"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}

	accepted := decodeData[OrderAcceptedResponse](t, rec)
	if accepted.Outcome != domain.OrderOutcomePending {
		t.Errorf("outcome = %s, want PENDING", accepted.Outcome)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/orders/"+accepted.ID.String() {
		t.Errorf("Location = %q", loc)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/orders/"+accepted.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	order := decodeData[OrderResponse](t, rec)
	if order.Item != "mango-banana" {
		t.Errorf("item = %q", order.Item)
	}
	if order.DurationMs != nil {
		t.Error("pending order should have no duration")
	}
}

func TestSubmitOrder_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		submitErr error
		wantCode  int
		wantError ErrorCode
	}{
		{"invalid json", `{`, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"empty item", `{"item":"  "}`, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"too long", `{"item":"x"}`, orchestrator.ErrItemTooLong, http.StatusBadRequest, ErrCodeBadRequest},
		{"stopped", `{"item":"x"}`, orchestrator.ErrEngineStopped, http.StatusServiceUnavailable, ErrCodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, 0)
			s.engine.submitErr = tt.submitErr

			req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if got := decodeError(t, rec).Code; got != tt.wantError {
				t.Errorf("error code = %s, want %s", got, tt.wantError)
			}
		})
	}
}

func TestGetOrder_Errors(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListOrders(t *testing.T) {
	s := newTestServer(t, 0)
	ctx := context.Background()

	done := domain.NewWorkOrder("kiwi")
	done.MarkSucceeded("")
	if err := s.store.Create(ctx, done); err != nil {
		t.Fatal(err)
	}
	if err := s.store.Create(ctx, domain.NewWorkOrder("mango")); err != nil {
		t.Fatal(err)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/orders", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if all := decodeData[[]OrderResponse](t, rec); len(all) != 2 {
		t.Errorf("expected 2 orders, got %d", len(all))
	}

	rec = s.do(t, http.MethodGet, "/api/v1/orders?outcome=SUCCEEDED", nil)
	succeeded := decodeData[[]OrderResponse](t, rec)
	if len(succeeded) != 1 || succeeded[0].Item != "kiwi" {
		t.Errorf("unexpected filtered list: %+v", succeeded)
	}
	if succeeded[0].DurationMs == nil {
		t.Error("finished order should report duration")
	}

	for _, q := range []string{"outcome=DONE", "limit=abc", "limit=-1"} {
		rec = s.do(t, http.MethodGet, "/api/v1/orders?"+q, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestReportCompletion(t *testing.T) {
	s := newTestServer(t, 0)
	s.engine.tokens["tok-1"] = true

	rec := s.do(t, http.MethodPost, "/api/v1/completions", CompletionRequest{TaskToken: "tok-1"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !decodeData[CompletionResponse](t, rec).Resolved {
		t.Error("expected resolved=true")
	}

	// повтор — тоже 202
	rec = s.do(t, http.MethodPost, "/api/v1/completions", CompletionRequest{TaskToken: "tok-1"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if decodeData[CompletionResponse](t, rec).Resolved {
		t.Error("expected resolved=false for duplicate")
	}

	rec = s.do(t, http.MethodPost, "/api/v1/completions", CompletionRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing token, got %d", rec.Code)
	}
}

func TestRobots(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(t, http.MethodPost, "/api/v1/robots", RegisterRobotRequest{Name: "robot-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	if robot := decodeData[RobotResponse](t, rec); robot.Status != domain.WorkerStatusAvailable {
		t.Errorf("status = %s, want AVAILABLE", robot.Status)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/robots", RegisterRobotRequest{Name: "robot-1"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/robots", RegisterRobotRequest{Name: "robots.#"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid name, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPut, "/api/v1/robots/robot-1/status", SetRobotStatusRequest{Status: domain.WorkerStatusFaulted})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if robot := decodeData[RobotResponse](t, rec); robot.Status != domain.WorkerStatusFaulted {
		t.Errorf("status = %s, want FAULTED", robot.Status)
	}

	rec = s.do(t, http.MethodPut, "/api/v1/robots/robot-1/status", SetRobotStatusRequest{Status: "BROKEN"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPut, "/api/v1/robots/ghost/status", SetRobotStatusRequest{Status: domain.WorkerStatusAvailable})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/robots", nil)
	if robots := decodeData[[]RobotResponse](t, rec); len(robots) != 1 {
		t.Errorf("expected 1 robot, got %d", len(robots))
	}

	rec = s.do(t, http.MethodGet, "/api/v1/robots/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, 0.001)

	rec := s.do(t, http.MethodPost, "/api/v1/orders", SubmitOrderRequest{Item: "mango"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/orders", SubmitOrderRequest{Item: "mango"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if decodeError(t, rec).Code != ErrCodeRateLimited {
		t.Error("expected RATE_LIMITED code")
	}

	// чтение не ограничено
	for i := 0; i < 3; i++ {
		if rec := s.do(t, http.MethodGet, "/api/v1/orders", nil); rec.Code != http.StatusOK {
			t.Errorf("GET limited: %d", rec.Code)
		}
	}

	// сигналы завершения не ограничены
	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodPost, "/api/v1/completions", CompletionRequest{TaskToken: "tok-x"})
		if rec.Code != http.StatusAccepted {
			t.Errorf("completion limited: %d", rec.Code)
		}
	}
}

// tokenDispatcher отдаёт токен команды вместо отправки роботу.
type tokenDispatcher struct {
	tokens chan string
}

func (d *tokenDispatcher) Send(_ context.Context, _ string, _ *domain.WorkOrder, token string) error {
	select {
	case d.tokens <- token:
	default:
	}
	return nil
}

// Поток заказов, исчерпавший лимит, не мешает роботу сообщить
// о завершении: заказ успешен, робот возвращается в пул.
func TestReportCompletion_AfterOrderFlood(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := registry.NewMemoryRegistry()
	if err := reg.Register(ctx, "robot-1"); err != nil {
		t.Fatal(err)
	}
	store := orders.NewMemoryStore()
	dispatcher := &tokenDispatcher{tokens: make(chan string, 1)}

	engine := orchestrator.New(orchestrator.Config{
		Registry:        reg,
		Orders:          store,
		Broker:          broker.New(broker.Config{Logger: logger}),
		Dispatcher:      dispatcher,
		DispatchTimeout: 2 * time.Second,
		Logger:          logger,
	})
	t.Cleanup(engine.Stop)

	h := NewHandler(Config{
		Engine:    engine,
		Orders:    store,
		Registry:  reg,
		RateLimit: 50,
		RateBurst: 100,
		Logger:    logger,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	s := &testServer{mux: mux, store: store, registry: reg}

	rec := s.do(t, http.MethodPost, "/api/v1/orders", SubmitOrderRequest{Item: "mango"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	id := decodeData[OrderAcceptedResponse](t, rec).ID

	var token string
	select {
	case token = <-dispatcher.tokens:
	case <-time.After(2 * time.Second):
		t.Fatal("no command dispatched")
	}

	limited := 0
	for i := 0; i < 150; i++ {
		rec := s.do(t, http.MethodPost, "/api/v1/orders", SubmitOrderRequest{Item: "kiwi"})
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited == 0 {
		t.Fatal("order flood was not rate limited")
	}

	rec = s.do(t, http.MethodPost, "/api/v1/completions", CompletionRequest{TaskToken: token})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("completion: expected 202, got %d", rec.Code)
	}
	if !decodeData[CompletionResponse](t, rec).Resolved {
		t.Fatal("expected resolved=true")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		order, err := store.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if order.IsFinished() {
			if order.Outcome != domain.OrderOutcomeSucceeded {
				t.Fatalf("outcome = %s (%s), want SUCCEEDED", order.Outcome, order.Reason)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("order not finished")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// статус робота пишется до итога заказа
	robot, err := reg.Get(ctx, "robot-1")
	if err != nil {
		t.Fatal(err)
	}
	if robot.Status != domain.WorkerStatusAvailable {
		t.Errorf("robot status = %s, want AVAILABLE", robot.Status)
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
