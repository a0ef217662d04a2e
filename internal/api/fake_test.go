package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/internal/devices"
	"github.com/smazurov/camunit/internal/events"
	"github.com/smazurov/camunit/internal/scheduler"
)

const (
	testUser = "test"
	testPass = "secret"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCamera is a descriptor-less device with one YUYV size and a
// brightness control. Every queued buffer is ready as soon as it streams.
type fakeCamera struct {
	mu         sync.Mutex
	queue      []int
	streaming  bool
	mode       int64
	brightness int64
}

func (c *fakeCamera) Encodings() ([]capture.Encoding, error) {
	return []capture.Encoding{{Pixel: capture.PixelYUYV, Name: "YUYV 4:2:2"}}, nil
}

func (c *fakeCamera) Sizes(capture.Encoding) ([]capture.Size, error) {
	return []capture.Size{{Width: 4, Height: 2}}, nil
}

func (c *fakeCamera) TryFormat(_ capture.Encoding, size capture.Size) (capture.Negotiated, error) {
	return capture.Negotiated{Width: size.Width, Height: size.Height, Stride: size.Width * 2, MaxBytes: size.Width * size.Height * 2}, nil
}

func (c *fakeCamera) SetFormat(capture.FormatDescriptor) error { return nil }

func (c *fakeCamera) DiscoverControls(r *capture.Registry) error {
	mode := r.Add(capture.ControlDescriptor{
		ID:    "exposure-mode",
		Label: "Exposure Mode",
		Kind:  capture.KindEnum,
		Options: []capture.EnumOption{
			{Label: "Auto", Enabled: true},
			{Label: "Manual", Enabled: true},
		},
		Value:   capture.IntValue(c.mode),
		Enabled: true,
	})
	exposure := r.Add(capture.ControlDescriptor{
		ID:      "exposure",
		Label:   "Exposure",
		Kind:    capture.KindInteger,
		Int:     capture.IntRange{Min: 1, Max: 500, Step: 1},
		Value:   capture.IntValue(100),
		Enabled: true,
	})
	r.Depend(mode, exposure)
	r.Add(capture.ControlDescriptor{
		ID:      "brightness",
		Label:   "Brightness",
		Kind:    capture.KindInteger,
		Int:     capture.IntRange{Min: 0, Max: 255, Step: 1},
		Value:   capture.IntValue(c.brightness),
		Enabled: true,
	})
	return nil
}

func (c *fakeCamera) SetControl(d *capture.ControlDescriptor, v capture.Value) error {
	switch d.ID {
	case "exposure-mode":
		c.mode = v.Int
	case "brightness":
		c.brightness = v.Int
	}
	return nil
}

func (c *fakeCamera) GetControl(d *capture.ControlDescriptor) (capture.Value, error) {
	switch d.ID {
	case "exposure-mode":
		return capture.IntValue(c.mode), nil
	case "brightness":
		return capture.IntValue(c.brightness), nil
	}
	return d.Value, nil
}

func (c *fakeCamera) RefreshControl(*capture.ControlDescriptor) error { return nil }

func (c *fakeCamera) RequestBuffers(n int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n == 0 {
		c.queue = nil
	}
	return n, nil
}

func (c *fakeCamera) MapBuffer(int) ([]byte, error) { return make([]byte, 16), nil }

func (c *fakeCamera) UnmapBuffer(int, []byte) error { return nil }

func (c *fakeCamera) QueueBuffer(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, index)
	return nil
}

func (c *fakeCamera) DequeueBuffer() (capture.Dequeued, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.streaming || len(c.queue) == 0 {
		return capture.Dequeued{}, capture.ErrWouldBlock
	}
	idx := c.queue[0]
	c.queue = c.queue[1:]
	return capture.Dequeued{Index: idx, Length: 16, Timestamp: time.Now().UnixMicro()}, nil
}

func (c *fakeCamera) StreamOn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = true
	return nil
}

func (c *fakeCamera) StreamOff() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = false
	return nil
}

func (c *fakeCamera) Fd() int { return -1 }

func (c *fakeCamera) Close() error { return nil }

var testDevice = devices.DeviceInfo{
	ID:     "cam0",
	Name:   "Test Camera",
	Path:   "/dev/video0",
	Driver: "fake",
	Type:   devices.TypeWebcam,
	Ready:  true,
}

// fakeDevices serves as both the scheduler's opener and the server's
// device source.
type fakeDevices struct {
	mu        sync.Mutex
	refreshed int
}

func (f *fakeDevices) Open(_ context.Context, id string) (capture.Device, devices.DeviceInfo, error) {
	if id != testDevice.ID {
		return nil, devices.DeviceInfo{}, fmt.Errorf("%w: %s", devices.ErrDeviceNotFound, id)
	}
	return &fakeCamera{brightness: 128}, testDevice, nil
}

func (f *fakeDevices) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshed
}

func (f *fakeDevices) Devices() []devices.DeviceInfo {
	return []devices.DeviceInfo{testDevice}
}

func (f *fakeDevices) Refresh(context.Context) ([]devices.DeviceInfo, error) {
	f.mu.Lock()
	f.refreshed++
	f.mu.Unlock()
	return f.Devices(), nil
}

type testEnv struct {
	srv     *httptest.Server
	server  *Server
	units   *scheduler.Scheduler
	devices *fakeDevices
	bus     *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	src := &fakeDevices{}
	bus := events.New()
	units := scheduler.New(src,
		scheduler.WithLogger(testLogger()),
		scheduler.WithUnitLogger(testLogger()),
		scheduler.WithPublisher(bus),
		scheduler.WithPollInterval(10*time.Millisecond),
	)
	server := NewServer(&Options{
		AuthUsername: testUser,
		AuthPassword: testPass,
		Scheduler:    units,
		Devices:      src,
		EventBus:     bus,
	})
	ts := httptest.NewServer(server.mux)
	t.Cleanup(func() {
		ts.Close()
		units.CloseAll()
	})
	return &testEnv{srv: ts, server: server, units: units, devices: src, bus: bus}
}

// runScheduler drives frame delivery until the test ends.
func (e *testEnv) runScheduler(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.units.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// do sends an authenticated request and decodes a JSON response into out
// when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(testUser, testPass)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return resp
}
