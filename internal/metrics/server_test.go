package metrics

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/supervisor"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeController records submitted requests.
type fakeController struct {
	mu        sync.Mutex
	view      supervisor.View
	submitted []engine.Request
	err       error
}

func (f *fakeController) Submit(req engine.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, req)
	return nil
}

func (f *fakeController) View() supervisor.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func newTestServer(t *testing.T, ctrl Controller) (*httptest.Server, *Collector) {
	t.Helper()
	registry := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{Version: "test", Backend: "sim"}, registry)
	s := NewServer("127.0.0.1:0", registry, ctrl, newTestLogger())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, c
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func post(t *testing.T, url string) (int, ControlResponse) {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer resp.Body.Close()
	var cr ControlResponse
	_ = json.NewDecoder(resp.Body).Decode(&cr)
	return resp.StatusCode, cr
}

// =============================================================================
// Tests: Endpoints
// =============================================================================

func TestServer_Metrics(t *testing.T) {
	ts, c := newTestServer(t, nil)
	c.RecordTick(runningView(), 0)

	code, body := get(t, ts.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	for _, want := range []string{
		`genset_state{state="running"} 1`,
		`genset_actuator_on{actuator="fuel"} 1`,
		"genset_sensor_rpm 1500",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

func TestServer_Health(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	for _, path := range []string{"/health", "/healthz", "/ready", "/readyz"} {
		code, body := get(t, ts.URL+path)
		if code != http.StatusOK || strings.TrimSpace(body) != "ok" {
			t.Errorf("GET %s = %d %q, want 200 ok", path, code, body)
		}
	}
}

func TestServer_ReadyFollowsSensor(t *testing.T) {
	ctrl := &fakeController{}
	ts, _ := newTestServer(t, ctrl)

	if code, _ := get(t, ts.URL+"/ready"); code != http.StatusServiceUnavailable {
		t.Errorf("ready before first tick = %d, want 503", code)
	}

	ctrl.mu.Lock()
	ctrl.view = runningView()
	ctrl.mu.Unlock()
	if code, _ := get(t, ts.URL+"/ready"); code != http.StatusOK {
		t.Errorf("ready after good tick = %d, want 200", code)
	}
}

func TestServer_Status(t *testing.T) {
	ctrl := &fakeController{view: runningView()}
	ts, _ := newTestServer(t, ctrl)

	code, body := get(t, ts.URL+"/status")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	var got struct {
		Status struct {
			State   string          `json:"state"`
			Outputs map[string]bool `json:"outputs"`
		} `json:"status"`
		Snapshot struct {
			RPM int `json:"rpm"`
		} `json:"snapshot"`
		SensorOK bool `json:"sensor_ok"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode /status: %v\n%s", err, body)
	}
	if got.Status.State != "running" || !got.Status.Outputs["fuel"] {
		t.Errorf("status = %+v", got.Status)
	}
	if got.Snapshot.RPM != 1500 || !got.SensorOK {
		t.Errorf("snapshot = %+v, sensor_ok = %v", got.Snapshot, got.SensorOK)
	}
}

func TestServer_Control(t *testing.T) {
	testCases := []struct {
		action   string
		wantCode int
		wantReq  engine.Request
	}{
		{"start", http.StatusAccepted, engine.RequestStart},
		{"stop", http.StatusAccepted, engine.RequestStop},
		{"ack", http.StatusAccepted, engine.RequestAck},
		{"reset", http.StatusAccepted, engine.RequestReset},
		{"launch", http.StatusNotFound, engine.RequestNone},
	}

	for _, tc := range testCases {
		t.Run(tc.action, func(t *testing.T) {
			ctrl := &fakeController{}
			ts, _ := newTestServer(t, ctrl)

			code, resp := post(t, ts.URL+"/control/"+tc.action)
			if code != tc.wantCode {
				t.Errorf("POST /control/%s = %d, want %d", tc.action, code, tc.wantCode)
			}
			if tc.wantReq == engine.RequestNone {
				if len(ctrl.submitted) != 0 || resp.Error == "" {
					t.Errorf("unknown action submitted %v, response %+v", ctrl.submitted, resp)
				}
				return
			}
			if len(ctrl.submitted) != 1 || ctrl.submitted[0] != tc.wantReq {
				t.Errorf("submitted = %v, want [%v]", ctrl.submitted, tc.wantReq)
			}
			if !resp.Queued || resp.Request != tc.wantReq.String() {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestServer_ControlQueueFull(t *testing.T) {
	ts, _ := newTestServer(t, &fakeController{err: engine.ErrQueueFull})

	code, resp := post(t, ts.URL+"/control/stop")
	if code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", code)
	}
	if resp.Queued || resp.Error == "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestServer_ControlRequiresPost(t *testing.T) {
	ctrl := &fakeController{}
	ts, _ := newTestServer(t, ctrl)

	if code, _ := get(t, ts.URL+"/control/start"); code != http.StatusMethodNotAllowed {
		t.Errorf("GET /control/start = %d, want 405", code)
	}
	if len(ctrl.submitted) != 0 {
		t.Errorf("GET must not submit, got %v", ctrl.submitted)
	}
}

func TestServer_NoControllerHidesControl(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	if code, _ := post(t, ts.URL+"/control/start"); code != http.StatusNotFound {
		t.Errorf("POST /control/start without controller = %d, want 404", code)
	}
}

func TestServer_Addr(t *testing.T) {
	s := NewServer("127.0.0.1:17095", nil, nil, newTestLogger())
	if s.Addr() != "127.0.0.1:17095" {
		t.Errorf("Addr() = %q", s.Addr())
	}
}
