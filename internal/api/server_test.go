package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openbehavior/trackpipe/internal/control"
	"github.com/openbehavior/trackpipe/internal/pipeline"
)

func newTestServer() (*Server, *control.Mailbox, *pipeline.Signal) {
	controls := control.NewMailbox()
	stop := pipeline.NewSignal()
	stats := func() pipeline.Stats {
		return pipeline.Stats{FramesProcessed: 42, MeasuredRate: 300, DisplayStride: 10}
	}
	return NewServer(controls, stats, nil, stop), controls, stop
}

// TestUpdateControlsEndpoint verifies a JSON update lands in the control
// mailbox and unknown fields are ignored.
func TestUpdateControlsEndpoint(t *testing.T) {
	s, controls, _ := newTestServer()

	body := `{"exposure": 0.01, "gain": 4, "white_balance": "auto"}`
	req := httptest.NewRequest("PUT", "/api/camera/controls", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	u, ok := controls.TryReceive()
	if !ok {
		t.Fatal("No update in mailbox")
	}
	if u.Exposure == nil || *u.Exposure != 0.01 {
		t.Errorf("Expected exposure 0.01, got %v", u.Exposure)
	}
	if u.Gain == nil || *u.Gain != 4 {
		t.Errorf("Expected gain 4, got %v", u.Gain)
	}
}

// TestUpdateControlsRejectsBadExposure verifies validation keeps nonsense
// out of the mailbox.
func TestUpdateControlsRejectsBadExposure(t *testing.T) {
	s, controls, _ := newTestServer()

	req := httptest.NewRequest("PUT", "/api/camera/controls", strings.NewReader(`{"exposure": -5}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if _, ok := controls.TryReceive(); ok {
		t.Error("Invalid update reached the mailbox")
	}
}

// TestStatsEndpoint verifies the dispatcher stats snapshot is served as JSON.
func TestStatsEndpoint(t *testing.T) {
	s, _, _ := newTestServer()

	req := httptest.NewRequest("GET", "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var stats pipeline.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Invalid stats JSON: %v", err)
	}
	if stats.FramesProcessed != 42 || stats.DisplayStride != 10 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

// TestStatsEndpointReportsControlOverwrites verifies superseded control
// updates show up in the stats snapshot.
func TestStatsEndpointReportsControlOverwrites(t *testing.T) {
	s, controls, _ := newTestServer()

	exposure := 0.01
	controls.Submit(control.ParameterUpdate{Exposure: &exposure})
	controls.Submit(control.ParameterUpdate{Exposure: &exposure})
	controls.Submit(control.ParameterUpdate{Exposure: &exposure})

	req := httptest.NewRequest("GET", "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var snap struct {
		ControlOverwrites uint64 `json:"control_overwrites"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("Invalid stats JSON: %v", err)
	}
	if snap.ControlOverwrites != 2 {
		t.Errorf("Expected 2 control overwrites, got %d", snap.ControlOverwrites)
	}
}

// TestStopEndpoint verifies POST /api/stop raises the termination signal
// and health reflects it.
func TestStopEndpoint(t *testing.T) {
	s, _, stop := newTestServer()

	req := httptest.NewRequest("POST", "/api/stop", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !stop.IsSet() {
		t.Error("Stop endpoint did not raise the termination signal")
	}

	req = httptest.NewRequest("GET", "/api/health", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var health map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Invalid health JSON: %v", err)
	}
	if health["status"] != "stopping" {
		t.Errorf("Expected status stopping, got %q", health["status"])
	}
}
