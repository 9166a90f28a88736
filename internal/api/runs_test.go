package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/tensord/internal/model"
)

// doubleManifest computes output = input + input over a float32 [2] input.
const doubleManifest = `{
	"tags": ["serve"],
	"inputs": [{"name": "input", "dtype": "float32", "shape": [2]}],
	"outputs": ["output"],
	"nodes": [{"name": "output", "op": "Add", "inputs": ["input", "input"]}]
}`

// waitForRun polls GET /v1/runs/{id} until the run reaches a terminal
// status or the deadline passes.
func waitForRun(t *testing.T, url, id string) *model.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/v1/runs/" + id)
		if err != nil {
			t.Fatalf("GET /v1/runs/%s: %v", id, err)
		}
		var run model.Run
		err = json.NewDecoder(resp.Body).Decode(&run)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode run: %v", err)
		}
		if run.Status == model.StatusCompleted || run.Status == model.StatusFailed {
			return &run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run never reached a terminal status")
	return nil
}

func TestCreateRunCompletes(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	modelID := loadModelHTTP(t, srv, ts.URL, doubleManifest)
	in := createTensorHTTP(t, ts.URL, []int64{2}, 3, -1)

	body := fmt.Sprintf(`{"inputs":[%d],"input_names":["input"],"output_names":["output"]}`, in)
	resp, err := http.Post(fmt.Sprintf("%s/v1/models/%d/runs", ts.URL, modelID), "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST runs: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var run model.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if len(run.ID) != 26 {
		t.Errorf("run ID length = %d, want 26", len(run.ID))
	}
	if run.Status != model.StatusPending {
		t.Errorf("initial status = %q, want pending", run.Status)
	}

	final := waitForRun(t, ts.URL, run.ID)
	if final.Status != model.StatusCompleted {
		t.Fatalf("final status = %q (error %q), want completed", final.Status, final.Error)
	}
	if len(final.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(final.Outputs))
	}

	// Output tensor is fetchable and holds the doubled values.
	getResp, err := http.Get(fmt.Sprintf("%s/v1/tensors/%d", ts.URL, final.Outputs[0].ID))
	if err != nil {
		t.Fatalf("GET output tensor: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Errorf("output tensor status = %d, want 200", getResp.StatusCode)
	}
}

func TestCreateRunFailsOnBadInput(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	modelID := loadModelHTTP(t, srv, ts.URL, doubleManifest)
	// Shape [3] does not match the model's declared [2] input.
	in := createTensorHTTP(t, ts.URL, []int64{3}, 1, 2, 3)

	body := fmt.Sprintf(`{"inputs":[%d],"input_names":["input"],"output_names":["output"]}`, in)
	resp, err := http.Post(fmt.Sprintf("%s/v1/models/%d/runs", ts.URL, modelID), "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST runs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var run model.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("decode run: %v", err)
	}

	final := waitForRun(t, ts.URL, run.ID)
	if final.Status != model.StatusFailed {
		t.Errorf("final status = %q, want failed", final.Status)
	}
	if final.Error == "" {
		t.Error("failed run has empty error")
	}
}

func TestCreateRunValidation(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	modelID := loadModelHTTP(t, srv, ts.URL, doubleManifest)
	in := createTensorHTTP(t, ts.URL, []int64{2}, 1, 2)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown model", "/v1/models/9999/runs",
			fmt.Sprintf(`{"inputs":[%d],"input_names":["input"],"output_names":["output"]}`, in),
			http.StatusNotFound},
		{"stale input", fmt.Sprintf("/v1/models/%d/runs", modelID),
			`{"inputs":[9999],"input_names":["input"],"output_names":["output"]}`,
			http.StatusNotFound},
		{"name count mismatch", fmt.Sprintf("/v1/models/%d/runs", modelID),
			fmt.Sprintf(`{"inputs":[%d],"input_names":[],"output_names":["output"]}`, in),
			http.StatusBadRequest},
		{"missing outputs", fmt.Sprintf("/v1/models/%d/runs", modelID),
			fmt.Sprintf(`{"inputs":[%d],"input_names":["input"]}`, in),
			http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+tt.path, "application/json", bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestListRuns(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	modelID := loadModelHTTP(t, srv, ts.URL, doubleManifest)
	in := createTensorHTTP(t, ts.URL, []int64{2}, 1, 1)

	body := fmt.Sprintf(`{"inputs":[%d],"input_names":["input"],"output_names":["output"]}`, in)
	var last string
	for range 3 {
		resp, err := http.Post(fmt.Sprintf("%s/v1/models/%d/runs", ts.URL, modelID), "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("POST runs: %v", err)
		}
		var run model.Run
		json.NewDecoder(resp.Body).Decode(&run)
		resp.Body.Close()
		last = run.ID
	}
	waitForRun(t, ts.URL, last)

	resp, err := http.Get(ts.URL + "/v1/runs?limit=2")
	if err != nil {
		t.Fatalf("GET /v1/runs: %v", err)
	}
	defer resp.Body.Close()

	var lr listRunsResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if lr.Total != 3 {
		t.Errorf("total = %d, want 3", lr.Total)
	}
	if len(lr.Runs) != 2 {
		t.Errorf("page size = %d, want 2", len(lr.Runs))
	}
}

func TestGetRunNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/runs/nonexistent")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRunEventsNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/runs/nonexistent/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRunEventsFinishedRun(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	modelID := loadModelHTTP(t, srv, ts.URL, doubleManifest)
	in := createTensorHTTP(t, ts.URL, []int64{2}, 1, 1)

	body := fmt.Sprintf(`{"inputs":[%d],"input_names":["input"],"output_names":["output"]}`, in)
	resp, err := http.Post(fmt.Sprintf("%s/v1/models/%d/runs", ts.URL, modelID), "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST runs: %v", err)
	}
	var run model.Run
	json.NewDecoder(resp.Body).Decode(&run)
	resp.Body.Close()
	waitForRun(t, ts.URL, run.ID)

	evResp, err := http.Get(ts.URL + "/v1/runs/" + run.ID + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer evResp.Body.Close()

	if evResp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", evResp.StatusCode)
	}
	if ct := evResp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	// The terminal-state stream closes immediately; there may be either no
	// body at all or a final done event, but never a blocking stream.
	scanner := bufio.NewScanner(evResp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "event:") && !strings.HasPrefix(line, "data:") {
			t.Errorf("unexpected SSE line %q", line)
		}
	}
}

func TestModelCount(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	count := func() int {
		resp, err := http.Get(ts.URL + "/v1/models")
		if err != nil {
			t.Fatalf("GET /v1/models: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var mc struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&mc); err != nil {
			t.Fatalf("decode count: %v", err)
		}
		return mc.Count
	}

	if n := count(); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}

	modelID := loadModelHTTP(t, srv, ts.URL, doubleManifest)
	if n := count(); n != 1 {
		t.Errorf("count after load = %d, want 1", n)
	}

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/models/%d", ts.URL, modelID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if n := count(); n != 0 {
		t.Errorf("count after delete = %d, want 0", n)
	}
}

func TestDeleteModelNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/models/9999", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteModelAfterRuns(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	modelID := loadModelHTTP(t, srv, ts.URL, doubleManifest)
	in := createTensorHTTP(t, ts.URL, []int64{2}, 1, 1)

	body := fmt.Sprintf(`{"inputs":[%d],"input_names":["input"],"output_names":["output"]}`, in)
	resp, err := http.Post(fmt.Sprintf("%s/v1/models/%d/runs", ts.URL, modelID), "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST runs: %v", err)
	}
	var run model.Run
	json.NewDecoder(resp.Body).Decode(&run)
	resp.Body.Close()
	waitForRun(t, ts.URL, run.ID)

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/models/%d", ts.URL, modelID), nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", delResp.StatusCode)
	}
}
