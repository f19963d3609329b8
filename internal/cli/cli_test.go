package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
)

// fakeAPI — минимальный API для проверки команд.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()

	var polls atomic.Int32
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["item"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"BAD_REQUEST","message":"order item is empty"}}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"data":{"id":"order-1","outcome":"PENDING"}}`))
	})
	mux.HandleFunc("GET /api/v1/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		// первый опрос — PENDING, дальше — итог
		if polls.Add(1) == 1 {
			w.Write([]byte(`{"data":{"id":"order-1","item":"mango","outcome":"PENDING","stage":"AWAITING_COMPLETION"}}`))
			return
		}
		w.Write([]byte(`{"data":{"id":"order-1","item":"mango","robot":"robot-1","outcome":"SUCCEEDED","stage":"TERMINAL","duration_ms":3010}}`))
	})
	mux.HandleFunc("GET /api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("outcome") != "FAILED" {
			t.Errorf("outcome filter not passed: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"data":[{"id":"order-2","item":"kiwi","outcome":"FAILED","reason":"TIMEOUT"}],"total":1}`))
	})
	mux.HandleFunc("POST /api/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		var req CompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		resolved := req.TaskToken == "live" && req.Success != nil && !*req.Success
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]bool{"resolved": resolved}})
	})
	mux.HandleFunc("GET /api/v1/robots", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"name":"robot-1","status":"FAULTED"}],"total":1}`))
	})
	mux.HandleFunc("PUT /api/v1/robots/{name}/status", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{
			"name": r.PathValue("name"), "status": req["status"],
		}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fakeQueue struct {
	items []string
	err   error
}

func (q *fakeQueue) PublishOrderSubmitted(_ context.Context, item string) error {
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, item)
	return nil
}

func runCmd(t *testing.T, srv *httptest.Server, queue OrderQueue, jsonMode bool, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	clientFn := func() *Client { return NewClient(srv.URL) }
	outputFn := func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) }

	var queueFn func() (OrderQueue, func(), error)
	if queue != nil {
		queueFn = func() (OrderQueue, func(), error) { return queue, func() {}, nil }
	}

	root := &cobra.Command{Use: "smoothie", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(
		NewOrderCmd(clientFn, outputFn, queueFn),
		NewRobotCmd(clientFn, outputFn),
		NewCompleteCmd(clientFn, outputFn),
	)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestOrderSubmit(t *testing.T) {
	srv := fakeAPI(t)

	stdout, stderr, err := runCmd(t, srv, nil, false, "order", "submit", "mango")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "Order accepted: order-1") {
		t.Errorf("stderr = %q", stderr)
	}
	if !strings.Contains(stdout, "PENDING") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestOrderSubmit_Wait(t *testing.T) {
	srv := fakeAPI(t)

	stdout, _, err := runCmd(t, srv, nil, false, "order", "submit", "mango", "--wait")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "SUCCEEDED") || !strings.Contains(stdout, "3.01s") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestOrderSubmit_APIError(t *testing.T) {
	srv := fakeAPI(t)

	_, _, err := runCmd(t, srv, nil, false, "order", "submit", "")
	if err == nil || !strings.Contains(err.Error(), "BAD_REQUEST") {
		t.Errorf("expected BAD_REQUEST error, got %v", err)
	}
}

func TestOrderSubmit_ViaMQ(t *testing.T) {
	srv := fakeAPI(t)
	queue := &fakeQueue{}

	_, stderr, err := runCmd(t, srv, queue, false, "order", "submit", "kiwi", "--via-mq")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue.items) != 1 || queue.items[0] != "kiwi" {
		t.Errorf("queued = %v", queue.items)
	}
	if !strings.Contains(stderr, "Order queued") {
		t.Errorf("stderr = %q", stderr)
	}

	queue.err = errors.New("channel closed")
	if _, _, err := runCmd(t, srv, queue, false, "order", "submit", "kiwi", "--via-mq"); err == nil {
		t.Error("expected publish error")
	}

	if _, _, err := runCmd(t, srv, nil, false, "order", "submit", "kiwi", "--via-mq"); err == nil {
		t.Error("expected error without queue")
	}
}

func TestOrderList_JSON(t *testing.T) {
	srv := fakeAPI(t)

	stdout, _, err := runCmd(t, srv, nil, true, "order", "list", "--outcome", "FAILED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var orders []OrderResponse
	if err := json.Unmarshal([]byte(stdout), &orders); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if len(orders) != 1 || orders[0].Reason != "TIMEOUT" {
		t.Errorf("orders = %+v", orders)
	}
}

func TestRobotCommands(t *testing.T) {
	srv := fakeAPI(t)

	stdout, _, err := runCmd(t, srv, nil, false, "robot", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "robot-1") || !strings.Contains(stdout, "FAULTED") {
		t.Errorf("stdout = %q", stdout)
	}

	_, stderr, err := runCmd(t, srv, nil, false, "robot", "set-status", "robot-1", "available")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "robot-1 is now AVAILABLE") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestComplete(t *testing.T) {
	srv := fakeAPI(t)

	_, stderr, err := runCmd(t, srv, nil, false, "complete", "live", "--failed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "Completion delivered") {
		t.Errorf("stderr = %q", stderr)
	}

	_, stderr, err = runCmd(t, srv, nil, false, "complete", "stale")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "ignored") {
		t.Errorf("stderr = %q", stderr)
	}
}
