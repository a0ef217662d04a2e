// Package scheduler owns opened capture units and drives them from a
// single poll loop. Every unit call, from the loop or from API handlers,
// runs under the scheduler's lock, so units never see concurrent use.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/smazurov/camunit/internal/api/models"
	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/internal/config"
	"github.com/smazurov/camunit/internal/devices"
	"github.com/smazurov/camunit/internal/events"
	"github.com/smazurov/camunit/internal/logging"
)

var (
	// ErrUnitNotFound is returned for device ids without an open unit.
	ErrUnitNotFound = errors.New("unit not found")
	// ErrUnitExists is returned when opening a device that already has a unit.
	ErrUnitExists = errors.New("unit already open")
	// ErrFormatIndex is returned for a catalog index out of range.
	ErrFormatIndex = errors.New("format index out of range")
)

// Loop timings.
const (
	DefaultPollInterval        = 100 * time.Millisecond
	DefaultFormatCheckInterval = time.Second
	// fdlessInterval paces units whose device has no pollable descriptor.
	fdlessInterval = 5 * time.Millisecond
	// maxBatch bounds the frames taken from one unit per wakeup.
	maxBatch = 8
)

// Opener opens devices by id. *devices.Registry satisfies it.
type Opener interface {
	Open(ctx context.Context, id string) (capture.Device, devices.DeviceInfo, error)
}

// Publisher receives scheduler events. *events.Bus satisfies it.
type Publisher interface {
	Publish(ev events.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

// FormatChoice is what Open does with a unit after enumeration.
type FormatChoice struct {
	// Index selects a catalog entry to configure. Negative leaves the
	// unit idle.
	Index int
	// Start begins streaming once configured.
	Start bool
	// Buffers overrides the ring size; 0 keeps the device default.
	Buffers int
}

// Idle opens a unit without configuring it.
var Idle = FormatChoice{Index: -1}

// UnitInfo is a snapshot of one open unit.
type UnitInfo struct {
	Device      devices.DeviceInfo
	SessionID   string
	State       capture.State
	Format      *capture.FormatDescriptor
	FormatIndex int
	Stats       capture.Stats
	Bytes       uint64
	FPS         float64
	OpenedAt    time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithUnitLogger sets the logger handed to capture units.
func WithUnitLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.unitLogger = l }
}

// WithPublisher sets the event receiver.
func WithPublisher(p Publisher) Option {
	return func(s *Scheduler) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithFrameHandler adds a handler that receives the frames of every unit,
// after the built-in sinks.
func WithFrameHandler(h capture.FrameHandler) Option {
	return func(s *Scheduler) { s.handlers = append(s.handlers, h) }
}

// WithPollInterval bounds how long the loop blocks in poll.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithFormatCheckInterval sets how often idle and configured units are
// checked for input format changes.
func WithFormatCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.formatInterval = d
		}
	}
}

// Scheduler owns capture units keyed by device id.
type Scheduler struct {
	opener         Opener
	publisher      Publisher
	logger         *slog.Logger
	unitLogger     *slog.Logger
	handlers       []capture.FrameHandler
	pollInterval   time.Duration
	formatInterval time.Duration

	mu      sync.Mutex
	units   map[string]*session
	pending map[string]bool
	presets config.Presets

	wake chan struct{}
}

// New creates a scheduler opening devices through opener.
func New(opener Opener, opts ...Option) *Scheduler {
	s := &Scheduler{
		opener:         opener,
		publisher:      nopPublisher{},
		pollInterval:   DefaultPollInterval,
		formatInterval: DefaultFormatCheckInterval,
		units:          make(map[string]*session),
		pending:        make(map[string]bool),
		wake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.GetLogger("scheduler")
	}
	if s.unitLogger == nil {
		s.unitLogger = logging.GetLogger("capture")
	}
	return s
}

type session struct {
	id       string
	device   devices.DeviceInfo
	unit     *capture.Unit
	stats    *statsSink
	snapshot *snapshotSink
	openedAt time.Time
}

func (sess *session) info() UnitInfo {
	info := UnitInfo{
		Device:      sess.device,
		SessionID:   sess.id,
		State:       sess.unit.State(),
		Format:      sess.unit.Format(),
		FormatIndex: -1,
		Stats:       sess.unit.Stats(),
		Bytes:       sess.stats.bytes,
		FPS:         sess.stats.fps,
		OpenedAt:    sess.openedAt,
	}
	if info.Format != nil {
		info.FormatIndex = formatIndex(sess.unit.Formats(), *info.Format)
	}
	return info
}

func formatIndex(formats []capture.FormatDescriptor, f capture.FormatDescriptor) int {
	for i, c := range formats {
		if c.Pixel == f.Pixel && c.Width == f.Width && c.Height == f.Height {
			return i
		}
	}
	return -1
}

func timestamp() string { return time.Now().Format(time.RFC3339) }

// formatEvents publishes format changes of one session.
type formatEvents struct {
	s    *Scheduler
	sess *session
}

func (formatEvents) OnFrame(*capture.Frame) error { return nil }

func (h formatEvents) OnFormatChanged(f *capture.FormatDescriptor) {
	ev := events.UnitFormatChangedEvent{
		DeviceID:  h.sess.device.ID,
		SessionID: h.sess.id,
		Timestamp: timestamp(),
	}
	if f != nil && h.sess.unit != nil {
		info := models.NewFormatInfo(formatIndex(h.sess.unit.Formats(), *f), *f)
		ev.Format = &info
	}
	h.s.publisher.Publish(ev)
}

func (s *Scheduler) unitOptions(sess *session, buffers int) []capture.Option {
	handler := fanout{sess.stats, sess.snapshot, formatEvents{s: s, sess: sess}}
	handler = append(handler, s.handlers...)
	return []capture.Option{
		capture.WithHandler(handler),
		capture.WithLogger(s.unitLogger.With("device", sess.device.ID)),
		capture.WithBufferCount(buffers),
		capture.WithStateHook(func(from, to capture.State) {
			s.publisher.Publish(events.UnitStateChangedEvent{
				DeviceID:  sess.device.ID,
				SessionID: sess.id,
				From:      string(from),
				To:        string(to),
				Timestamp: timestamp(),
			})
		}),
		capture.WithRestartHook(func(cause, err error) {
			ev := events.UnitRestartedEvent{
				DeviceID:  sess.device.ID,
				SessionID: sess.id,
				Cause:     cause.Error(),
				Recovered: err == nil,
				Timestamp: timestamp(),
			}
			if err != nil {
				ev.Error = err.Error()
			}
			s.publisher.Publish(ev)
		}),
	}
}

// Open opens the device, applies its presets and carries out choice. The
// unit is only registered once all of that succeeded.
func (s *Scheduler) Open(ctx context.Context, id string, choice FormatChoice) (UnitInfo, error) {
	s.mu.Lock()
	if _, ok := s.units[id]; ok || s.pending[id] {
		s.mu.Unlock()
		return UnitInfo{}, fmt.Errorf("%w: %s", ErrUnitExists, id)
	}
	s.pending[id] = true
	presets := s.presets.For(id)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	dev, device, err := s.opener.Open(ctx, id)
	if err != nil {
		return UnitInfo{}, err
	}

	sess := &session{
		id:       uuid.NewString(),
		device:   device,
		stats:    newStatsSink(),
		snapshot: &snapshotSink{},
		openedAt: time.Now(),
	}
	unit, err := capture.NewUnit(dev, s.unitOptions(sess, choice.Buffers)...)
	if err != nil {
		_ = dev.Close()
		return UnitInfo{}, fmt.Errorf("open %s: %w", id, err)
	}
	sess.unit = unit

	if len(presets) > 0 {
		s.applyPresets(sess, presets)
	}
	if choice.Index >= 0 {
		if err := configure(unit, choice.Index); err != nil {
			_ = unit.Close()
			return UnitInfo{}, err
		}
		if choice.Start {
			if err := unit.Start(); err != nil {
				_ = unit.Close()
				return UnitInfo{}, err
			}
		}
	}

	s.mu.Lock()
	s.units[id] = sess
	info := sess.info()
	s.mu.Unlock()
	s.signal()

	s.logger.Info("Unit opened",
		"device", id,
		"session", sess.id,
		"driver", device.Driver,
		"formats", len(unit.Formats()),
		"controls", len(unit.Controls()),
		"state", info.State)
	s.publisher.Publish(events.UnitOpenedEvent{
		DeviceID:   id,
		SessionID:  sess.id,
		DeviceName: device.Name,
		Driver:     device.Driver,
		Timestamp:  timestamp(),
	})
	return info, nil
}

func configure(u *capture.Unit, index int) error {
	formats := u.Formats()
	if index < 0 || index >= len(formats) {
		return fmt.Errorf("%w: %d, device has %d", ErrFormatIndex, index, len(formats))
	}
	return u.Configure(formats[index])
}

// Close closes the unit and its device.
func (s *Scheduler) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.units[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}
	delete(s.units, id)
	err := sess.unit.Close()
	s.mu.Unlock()

	s.logger.Info("Unit closed", "device", id, "session", sess.id, "frames", sess.stats.frames)
	s.publisher.Publish(events.UnitClosedEvent{DeviceID: id, SessionID: sess.id, Timestamp: timestamp()})
	return err
}

// CloseAll closes every open unit.
func (s *Scheduler) CloseAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Close(id); err != nil && !errors.Is(err, ErrUnitNotFound) {
			s.logger.Warn("Failed to close unit", "device", id, "error", err)
		}
	}
}

// Do runs fn with exclusive access to the unit of device id. fn must not
// call back into the scheduler.
func (s *Scheduler) Do(ctx context.Context, id string, fn func(*capture.Unit) error) error {
	return s.do(ctx, id, func(sess *session) error { return fn(sess.unit) })
}

func (s *Scheduler) do(ctx context.Context, id string, fn func(*session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.signal()
	defer s.mu.Unlock()
	sess, ok := s.units[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}
	return fn(sess)
}

// Unit returns a snapshot of one unit.
func (s *Scheduler) Unit(id string) (UnitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.units[id]
	if !ok {
		return UnitInfo{}, fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}
	return sess.info(), nil
}

// Units returns snapshots of all open units sorted by device id.
func (s *Scheduler) Units() []UnitInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UnitInfo, 0, len(s.units))
	for _, sess := range s.units {
		out = append(out, sess.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device.ID < out[j].Device.ID })
	return out
}

// Start begins streaming on a configured unit.
func (s *Scheduler) Start(ctx context.Context, id string) error {
	return s.Do(ctx, id, func(u *capture.Unit) error { return u.Start() })
}

// Stop halts streaming, keeping the format and buffers.
func (s *Scheduler) Stop(ctx context.Context, id string) error {
	return s.Do(ctx, id, func(u *capture.Unit) error { return u.Stop() })
}

// SetFormat configures catalog entry index. A streaming unit is stopped,
// reconfigured and started again.
func (s *Scheduler) SetFormat(ctx context.Context, id string, index int) error {
	return s.Do(ctx, id, func(u *capture.Unit) error {
		streaming := u.State() == capture.StateStreaming
		if streaming {
			if err := u.Stop(); err != nil {
				return err
			}
		}
		if err := configure(u, index); err != nil {
			return err
		}
		if streaming {
			return u.Start()
		}
		return nil
	})
}

// Snapshot returns a copy of the unit's latest frame.
func (s *Scheduler) Snapshot(ctx context.Context, id string) (*capture.Frame, error) {
	var frame *capture.Frame
	err := s.do(ctx, id, func(sess *session) error {
		var err error
		frame, err = sess.snapshot.latest()
		return err
	})
	return frame, err
}

// ControlResult is the outcome of SetControl.
type ControlResult struct {
	Control capture.ControlDescriptor
	// Actual is false when the control has no readback value.
	Actual bool
}

// SetControl converts raw with ValueFor and proposes it. source is
// reported in the published event.
func (s *Scheduler) SetControl(ctx context.Context, id, control string, raw any, source string) (ControlResult, error) {
	var res ControlResult
	err := s.do(ctx, id, func(sess *session) error {
		var err error
		res, err = s.propose(sess, control, raw, source)
		return err
	})
	return res, err
}

// propose must be called with s.mu held or before the session is
// registered.
func (s *Scheduler) propose(sess *session, control string, raw any, source string) (ControlResult, error) {
	d, err := sess.unit.Control(control)
	if err != nil {
		return ControlResult{}, err
	}
	v, err := ValueFor(d, raw)
	if err != nil {
		return ControlResult{}, err
	}
	actual, ok, err := sess.unit.Propose(control, v)
	if err != nil {
		return ControlResult{}, err
	}
	if d, err = sess.unit.Control(control); err != nil {
		return ControlResult{}, err
	}
	shown := v
	if ok {
		shown = actual
	}
	s.publisher.Publish(events.ControlChangedEvent{
		DeviceID:  sess.device.ID,
		Control:   control,
		Value:     d.FormatValue(shown),
		Source:    source,
		Timestamp: timestamp(),
	})
	return ControlResult{Control: d, Actual: ok}, nil
}

// signal wakes an idle Run loop.
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives streaming units until ctx is cancelled, then closes every
// unit.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.CloseAll()

	idle := time.NewTimer(s.pollInterval)
	defer idle.Stop()
	lastCheck := time.Now()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(lastCheck) >= s.formatInterval {
			s.checkFormats()
			lastCheck = time.Now()
		}

		fds, polled, fdless := s.pollSet()
		if len(fds) == 0 && len(fdless) == 0 {
			idle.Reset(s.pollInterval)
			select {
			case <-ctx.Done():
				return nil
			case <-s.wake:
			case <-idle.C:
			}
			continue
		}

		timeout := s.pollInterval
		if len(fdless) > 0 {
			timeout = fdlessInterval
		}
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if n > 0 || len(fdless) > 0 {
			s.service(fds, polled, fdless)
		}
	}
}

// pollSet collects the descriptors of streaming units.
func (s *Scheduler) pollSet() ([]unix.PollFd, []*session, []*session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fds []unix.PollFd
	var polled, fdless []*session
	for _, sess := range s.units {
		if sess.unit.State() != capture.StateStreaming {
			continue
		}
		fd := sess.unit.Fileno()
		if fd < 0 {
			fdless = append(fdless, sess)
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN | unix.POLLPRI})
		polled = append(polled, sess)
	}
	return fds, polled, fdless
}

func (s *Scheduler) service(fds []unix.PollFd, polled, fdless []*session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, pfd := range fds {
		sess := polled[i]
		if s.units[sess.device.ID] != sess || sess.unit.Fileno() != int(pfd.Fd) {
			continue
		}
		if pfd.Revents&unix.POLLPRI != 0 {
			s.checkFormat(sess)
		}
		if pfd.Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0 {
			s.produce(sess)
		}
	}
	for _, sess := range fdless {
		if s.units[sess.device.ID] == sess && sess.unit.State() == capture.StateStreaming {
			s.produce(sess)
		}
	}
}

// produce must be called with s.mu held.
func (s *Scheduler) produce(sess *session) {
	for range maxBatch {
		err := sess.unit.ProduceOne()
		switch {
		case err == nil:
			continue
		case errors.Is(err, capture.ErrWouldBlock), errors.Is(err, capture.ErrInvalidState):
		case errors.Is(err, capture.ErrUnitFault):
			s.logger.Error("Unit stopped after a failed restart", "device", sess.device.ID, "error", err)
		default:
			s.logger.Warn("Frame production failed", "device", sess.device.ID, "error", err)
		}
		return
	}
}

func (s *Scheduler) checkFormats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.units {
		s.checkFormat(sess)
	}
}

// checkFormat must be called with s.mu held.
func (s *Scheduler) checkFormat(sess *session) {
	if _, err := sess.unit.CheckFormat(); err != nil {
		s.logger.Debug("Format check failed", "device", sess.device.ID, "error", err)
	}
}
