package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seantiz/tensord/internal/model"
)

func TestCreateTensorValid(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	data := base64.StdEncoding.EncodeToString(f32bytes(1, 2, 3, 4))
	body := fmt.Sprintf(`{"dtype":"float32","shape":[2,2],"data":%q}`, data)
	resp, err := http.Post(ts.URL+"/v1/tensors", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/tensors: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}

	var tr tensorResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if tr.ID == 0 {
		t.Error("response has zero handle")
	}
	if tr.DType != model.Float32 {
		t.Errorf("dtype = %q, want float32", tr.DType)
	}
	if len(tr.Shape) != 2 || tr.Shape[0] != 2 || tr.Shape[1] != 2 {
		t.Errorf("shape = %v, want [2 2]", tr.Shape)
	}
	if tr.Data != "" {
		t.Error("create response should not echo data")
	}
}

func TestCreateTensorBadRequests(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", "not json"},
		{"missing dtype", `{"shape":[1],"data":"AA=="}`},
		{"unknown dtype", `{"dtype":"complex128","shape":[1],"data":"AA=="}`},
		{"buffer too short", fmt.Sprintf(`{"dtype":"float32","shape":[4],"data":%q}`,
			base64.StdEncoding.EncodeToString(f32bytes(1)))},
		{"negative dim", fmt.Sprintf(`{"dtype":"float32","shape":[-1],"data":%q}`,
			base64.StdEncoding.EncodeToString(f32bytes(1)))},
		{"overflowing shape", `{"dtype":"float32","shape":[4294967296,4294967296],"data":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/v1/tensors", "application/json", bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatalf("POST /v1/tensors: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestGetTensorRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := createTensorHTTP(t, ts.URL, []int64{3}, 1.5, -2, 0)

	resp, err := http.Get(fmt.Sprintf("%s/v1/tensors/%d", ts.URL, id))
	if err != nil {
		t.Fatalf("GET /v1/tensors/%d: %v", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var tr tensorResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(tr.Data)
	if err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if want := f32bytes(1.5, -2, 0); !bytes.Equal(raw, want) {
		t.Errorf("data = %v, want %v", raw, want)
	}
}

func TestGetTensorNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/tensors/9999")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetTensorInvalidHandle(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/tensors/abc")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteTensor(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := createTensorHTTP(t, ts.URL, []int64{1}, 7)

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/tensors/%d", ts.URL, id), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}

	// Second delete reports the stale handle.
	resp, err = http.DefaultClient.Do(req.Clone(req.Context()))
	if err != nil {
		t.Fatalf("DELETE again: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestExecuteOpAdd(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	a := createTensorHTTP(t, ts.URL, []int64{2}, 1, 2)
	b := createTensorHTTP(t, ts.URL, []int64{2}, 10, 20)

	body := fmt.Sprintf(`{"op":"Add","inputs":[%d,%d]}`, a, b)
	resp, err := http.Post(ts.URL+"/v1/ops", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/ops: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var or executeOpResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(or.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(or.Outputs))
	}

	getResp, err := http.Get(fmt.Sprintf("%s/v1/tensors/%d", ts.URL, or.Outputs[0].ID))
	if err != nil {
		t.Fatalf("GET output: %v", err)
	}
	defer getResp.Body.Close()
	var tr tensorResponse
	if err := json.NewDecoder(getResp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(tr.Data)
	if want := f32bytes(11, 22); !bytes.Equal(raw, want) {
		t.Errorf("Add result = %v, want %v", raw, want)
	}
}

func TestExecuteOpWithAttrs(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	a := createTensorHTTP(t, ts.URL, []int64{4}, 1, 2, 3, 4)

	body := fmt.Sprintf(`{"op":"Reshape","attrs":{"shape":[2,2]},"inputs":[%d]}`, a)
	resp, err := http.Post(ts.URL+"/v1/ops", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/ops: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var or executeOpResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	got := or.Outputs[0].Shape
	if len(got) != 2 || got[0] != 2 || got[1] != 2 {
		t.Errorf("reshaped shape = %v, want [2 2]", got)
	}
}

func TestExecuteOpErrors(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	a := createTensorHTTP(t, ts.URL, []int64{1}, 1)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing op", fmt.Sprintf(`{"inputs":[%d]}`, a), http.StatusBadRequest},
		{"unknown op", fmt.Sprintf(`{"op":"Frobnicate","inputs":[%d]}`, a), http.StatusBadRequest},
		{"stale input", `{"op":"Neg","inputs":[9999]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/v1/ops", "application/json", bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatalf("POST /v1/ops: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
