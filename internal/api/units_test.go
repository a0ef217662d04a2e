package api

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/smazurov/camunit/internal/api/models"
)

func openUnit(t *testing.T, env *testEnv, body map[string]any) models.UnitData {
	t.Helper()
	var unit models.UnitData
	resp := env.do(t, http.MethodPost, "/api/units", body, &unit)
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("open status = %d, want 201 (%s)", resp.StatusCode, raw)
	}
	return unit
}

func TestOpenUnit(t *testing.T) {
	env := newTestEnv(t)

	unit := openUnit(t, env, map[string]any{"device_id": "cam0"})
	if unit.State != "idle" || unit.Format != nil {
		t.Errorf("unit = state %s format %v, want idle without format", unit.State, unit.Format)
	}
	if unit.SessionID == "" || unit.DeviceName != "Test Camera" {
		t.Errorf("unit = %+v", unit)
	}

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"already open", map[string]any{"device_id": "cam0"}, http.StatusConflict},
		{"unknown device", map[string]any{"device_id": "cam9"}, http.StatusNotFound},
		{"missing device", map[string]any{}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := env.do(t, http.MethodPost, "/api/units", tt.body, nil); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	var list models.UnitListData
	env.do(t, http.MethodGet, "/api/units", nil, &list)
	if list.Count != 1 || list.Units[0].DeviceID != "cam0" {
		t.Errorf("units = %+v, want cam0", list)
	}
}

func TestOpenWithBadFormat(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/units", map[string]any{"device_id": "cam0", "format": 7}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
	if list := env.units.Units(); len(list) != 0 {
		t.Errorf("units after failed open = %d, want 0", len(list))
	}
}

func TestUnitLifecycle(t *testing.T) {
	env := newTestEnv(t)
	openUnit(t, env, map[string]any{"device_id": "cam0"})

	var formats models.FormatListData
	env.do(t, http.MethodGet, "/api/units/cam0/formats", nil, &formats)
	if len(formats.Formats) != 1 || formats.Current != nil {
		t.Fatalf("formats = %+v, want one uncommitted", formats)
	}
	if f := formats.Formats[0]; f.Pixel != "YUYV" || f.Width != 4 || f.Stride != 8 {
		t.Errorf("format = %+v", f)
	}

	if resp := env.do(t, http.MethodPost, "/api/units/cam0/start", nil, nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("start before format status = %d, want 409", resp.StatusCode)
	}

	var unit models.UnitData
	env.do(t, http.MethodPost, "/api/units/cam0/format", map[string]any{"index": 0}, &unit)
	if unit.State != "configured" || unit.Format == nil || unit.Format.Index != 0 {
		t.Fatalf("after format = %+v", unit)
	}
	env.do(t, http.MethodGet, "/api/units/cam0/formats", nil, &formats)
	if formats.Current == nil || *formats.Current != 0 {
		t.Errorf("current = %v, want 0", formats.Current)
	}

	env.do(t, http.MethodPost, "/api/units/cam0/start", nil, &unit)
	if unit.State != "streaming" {
		t.Errorf("state after start = %s, want streaming", unit.State)
	}
	env.do(t, http.MethodPost, "/api/units/cam0/stop", nil, &unit)
	if unit.State != "configured" {
		t.Errorf("state after stop = %s, want configured", unit.State)
	}

	if resp := env.do(t, http.MethodDelete, "/api/units/cam0", nil, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("close status = %d, want 204", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/api/units/cam0", nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after close status = %d, want 404", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodDelete, "/api/units/cam0", nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("second close status = %d, want 404", resp.StatusCode)
	}
}

func TestSnapshot(t *testing.T) {
	env := newTestEnv(t)
	openUnit(t, env, map[string]any{"device_id": "cam0", "format": 0, "start": true, "buffers": 3})

	if resp := env.do(t, http.MethodGet, "/api/units/cam0/snapshot", nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("snapshot before frames status = %d, want 404", resp.StatusCode)
	}

	env.runScheduler(t)
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := env.do(t, http.MethodGet, "/api/units/cam0/snapshot", nil, nil)
		if resp.StatusCode == http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			if len(body) != 16 {
				t.Errorf("snapshot length = %d, want 16", len(body))
			}
			if got := resp.Header.Get("X-Frame-Pixel"); got != "YUYV" {
				t.Errorf("X-Frame-Pixel = %q, want YUYV", got)
			}
			if got := resp.Header.Get("X-Frame-Width"); got != "4" {
				t.Errorf("X-Frame-Width = %q, want 4", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no snapshot, last status %d", resp.StatusCode)
		}
		time.Sleep(10 * time.Millisecond)
	}

	var unit models.UnitData
	env.do(t, http.MethodGet, "/api/units/cam0", nil, &unit)
	if unit.Stats.Frames == 0 || unit.Stats.Bytes == 0 {
		t.Errorf("stats = %+v, want frames counted", unit.Stats)
	}
}

func TestControls(t *testing.T) {
	env := newTestEnv(t)
	openUnit(t, env, map[string]any{"device_id": "cam0"})

	var list models.ControlListData
	env.do(t, http.MethodGet, "/api/units/cam0/controls", nil, &list)
	if len(list.Controls) != 3 {
		t.Fatalf("controls = %d, want 3", len(list.Controls))
	}
	byID := make(map[string]models.ControlInfo)
	for _, c := range list.Controls {
		byID[c.ID] = c
	}
	if got := byID["exposure"].DependsOn; got != "exposure-mode" {
		t.Errorf("exposure depends_on = %q, want exposure-mode", got)
	}
	if got := byID["brightness"]; got.Value != 128 || got.Max != 255 || got.DependsOn != "" {
		t.Errorf("brightness = %+v", got)
	}
	if opts := byID["exposure-mode"].Options; len(opts) != 2 || opts[1].Label != "Manual" {
		t.Errorf("exposure-mode options = %+v", opts)
	}

	tests := []struct {
		name    string
		control string
		body    map[string]any
		status  int
		display string
	}{
		{"value", "brightness", map[string]any{"value": 200}, http.StatusOK, "200"},
		{"clamped", "brightness", map[string]any{"value": 999}, http.StatusOK, "255"},
		{"option label", "exposure-mode", map[string]any{"option": "manual"}, http.StatusOK, "Manual"},
		{"unknown option", "exposure-mode", map[string]any{"option": "bogus"}, http.StatusUnprocessableEntity, ""},
		{"option index out of range", "exposure-mode", map[string]any{"value": 5}, http.StatusUnprocessableEntity, ""},
		{"empty body", "brightness", map[string]any{}, http.StatusBadRequest, ""},
		{"unknown control", "zoom", map[string]any{"value": 1}, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res models.ControlSetResult
			resp := env.do(t, http.MethodPut, "/api/units/cam0/controls/"+tt.control, tt.body, &res)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			if res.Control.Display != tt.display || !res.Actual {
				t.Errorf("result = %q actual %v, want %q", res.Control.Display, res.Actual, tt.display)
			}
		})
	}

	var res models.ControlSetResult
	env.do(t, http.MethodPut, "/api/units/cam0/controls/exposure", map[string]any{"value": 50}, &res)
	if res.Control.DependsOn != "exposure-mode" {
		t.Errorf("set result depends_on = %q, want exposure-mode", res.Control.DependsOn)
	}

	if resp := env.do(t, http.MethodGet, "/api/units/cam9/controls", nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("controls of unopened unit status = %d, want 404", resp.StatusCode)
	}
}
