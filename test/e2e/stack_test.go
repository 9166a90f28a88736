package e2e

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seantiz/tensord/internal/api"
	"github.com/seantiz/tensord/internal/backend"
	"github.com/seantiz/tensord/internal/compute"
	"github.com/seantiz/tensord/internal/engine"
	"github.com/seantiz/tensord/internal/host"
	"github.com/seantiz/tensord/internal/model"
	"github.com/seantiz/tensord/internal/registry"
	"github.com/seantiz/tensord/internal/store"
)

const (
	pollInterval = 10 * time.Millisecond
	pollTimeout  = 5 * time.Second
)

// slowEngine delays session runs so tests can observe in-flight state.
type slowEngine struct {
	compute.Engine
	delay time.Duration
}

func (e *slowEngine) RunSession(sess compute.Session, inputs []*compute.Tensor, inputNames, outputNames []string) ([]*compute.Tensor, error) {
	time.Sleep(e.delay)
	return e.Engine.RunSession(sess, inputs, inputNames, outputNames)
}

// stack is a full in-process deployment behind an httptest server.
type stack struct {
	ts        *httptest.Server
	store     *store.SQLiteStore
	modelRoot string
}

// newStack assembles the whole service with the given run delay. A zero
// delay uses the local engine directly.
func newStack(t *testing.T, delay time.Duration) *stack {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	var eng compute.Engine = compute.NewLocalEngine()
	if delay > 0 {
		eng = &slowEngine{Engine: eng, delay: delay}
	}
	devices := compute.NewDeviceRegistry()
	devices.Register(compute.DeviceCPU, eng)

	reg := registry.New(logger)
	bridge := engine.NewBridge(logger)
	pool := engine.NewPool(2, eng, bridge, logger)
	loop := host.NewLoop(bridge, logger)
	loop.Start()
	broker := engine.NewEventBroker()

	b := backend.New(loop, reg, eng, pool, broker, st, logger)
	t.Cleanup(b.Shutdown)

	modelRoot := t.TempDir()
	srv := api.NewServer(":0", b, st, broker, devices, modelRoot, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &stack{ts: ts, store: st, modelRoot: modelRoot}
}

func f32(vals ...float32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func (s *stack) postJSON(t *testing.T, path, body string, want int) []byte {
	t.Helper()
	resp, err := http.Post(s.ts.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("POST %s status = %d, want %d\nbody: %s", path, resp.StatusCode, want, raw)
	}
	return raw
}

func (s *stack) createTensor(t *testing.T, shape []int64, vals ...float32) model.Handle {
	t.Helper()
	shapeJSON, _ := json.Marshal(shape)
	body := fmt.Sprintf(`{"dtype":"float32","shape":%s,"data":%q}`,
		shapeJSON, base64.StdEncoding.EncodeToString(f32(vals...)))
	raw := s.postJSON(t, "/v1/tensors", body, http.StatusCreated)
	var tr struct {
		ID model.Handle `json:"id"`
	}
	if err := json.Unmarshal(raw, &tr); err != nil {
		t.Fatalf("decode tensor response: %v", err)
	}
	return tr.ID
}

func (s *stack) loadModel(t *testing.T, name, manifest string) model.Handle {
	t.Helper()
	dir := filepath.Join(s.modelRoot, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	raw := s.postJSON(t, "/v1/models", fmt.Sprintf(`{"path":%q,"tags":["serve"]}`, name), http.StatusCreated)
	var mr struct {
		ID model.Handle `json:"id"`
	}
	if err := json.Unmarshal(raw, &mr); err != nil {
		t.Fatalf("decode model response: %v", err)
	}
	return mr.ID
}

func (s *stack) startRun(t *testing.T, modelID model.Handle, input model.Handle) *model.Run {
	t.Helper()
	body := fmt.Sprintf(`{"inputs":[%d],"input_names":["input"],"output_names":["output"]}`, input)
	raw := s.postJSON(t, fmt.Sprintf("/v1/models/%d/runs", modelID), body, http.StatusAccepted)
	var run model.Run
	if err := json.Unmarshal(raw, &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	return &run
}

func (s *stack) getRun(t *testing.T, id string) *model.Run {
	t.Helper()
	resp, err := http.Get(s.ts.URL + "/v1/runs/" + id)
	if err != nil {
		t.Fatalf("GET run: %v", err)
	}
	defer resp.Body.Close()
	var run model.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	return &run
}

func (s *stack) waitForRun(t *testing.T, id string) *model.Run {
	t.Helper()
	deadline := time.Now().Add(pollTimeout)
	for time.Now().Before(deadline) {
		run := s.getRun(t, id)
		if run.Status == model.StatusCompleted || run.Status == model.StatusFailed {
			return run
		}
		time.Sleep(pollInterval)
	}
	t.Fatal("run never reached a terminal status")
	return nil
}

func (s *stack) tensorData(t *testing.T, id model.Handle) []byte {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("%s/v1/tensors/%d", s.ts.URL, id))
	if err != nil {
		t.Fatalf("GET tensor: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET tensor status = %d, want 200", resp.StatusCode)
	}
	var tr struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode tensor: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(tr.Data)
	if err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return raw
}

// doubleManifest computes output = input + input.
const doubleManifest = `{
	"tags": ["serve"],
	"inputs": [{"name": "input", "dtype": "float32", "shape": [2]}],
	"outputs": ["output"],
	"nodes": [{"name": "output", "op": "Add", "inputs": ["input", "input"]}]
}`
