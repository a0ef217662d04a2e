//go:build linux

// Package hotplug watches kernel uevents on a netlink socket so device
// registries can rescan when capture hardware comes and goes.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Actions the kernel reports.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
	ActionBind   = "bind"
	ActionUnbind = "unbind"
)

// Subsystems that carry capture devices.
const (
	SubsystemVideo4Linux = "video4linux"
	SubsystemFirewire    = "firewire"
	SubsystemUSB         = "usb"
)

// netlinkKobjectUEvent is NETLINK_KOBJECT_UEVENT; group 1 is the kernel
// broadcast group.
const (
	netlinkKobjectUEvent = 15
	kernelGroup          = 1
)

// pollInterval bounds how long Run blocks before re-checking its context.
const pollInterval = 500 * time.Millisecond

// Event is one parsed uevent.
type Event struct {
	Action    string
	KObj      string // sysfs path of the kernel object
	Subsystem string
	DevType   string
	DevName   string // node name relative to /dev, e.g. "video0" or "fw1"
	Env       map[string]string
}

// Node returns the /dev path of the event's device node, or "" when the
// event has none.
func (e Event) Node() string {
	if e.DevName == "" {
		return ""
	}
	return "/dev/" + e.DevName
}

// Monitor receives uevents from the kernel.
type Monitor struct {
	fd int

	mu      sync.RWMutex
	filters map[string]struct{}
}

// NewMonitor opens a nonblocking uevent socket bound to the kernel group.
func NewMonitor() (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, netlinkKobjectUEvent)
	if err != nil {
		return nil, fmt.Errorf("uevent socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: kernelGroup}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind uevent socket: %w", err)
	}
	return &Monitor{fd: fd, filters: make(map[string]struct{})}, nil
}

// AddSubsystemFilter restricts Run to the given subsystems. With no
// filters every event passes.
func (m *Monitor) AddSubsystemFilter(subsystems ...string) {
	m.mu.Lock()
	for _, s := range subsystems {
		m.filters[s] = struct{}{}
	}
	m.mu.Unlock()
}

// Matches reports whether ev passes the subsystem filters.
func (m *Monitor) Matches(ev Event) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.filters) == 0 {
		return true
	}
	_, ok := m.filters[ev.Subsystem]
	return ok
}

// Close releases the socket.
func (m *Monitor) Close() error {
	if m.fd < 0 {
		return nil
	}
	err := unix.Close(m.fd)
	m.fd = -1
	return err
}

// Run delivers matching events to events until ctx is cancelled or the
// socket fails. events is closed on return.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 16384)
	fds := []unix.PollFd{{Fd: int32(m.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.Poll(fds, int(pollInterval/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll uevent socket: %w", err)
		}
		if n == 0 {
			continue
		}

		for {
			size, _, err := unix.Recvfrom(m.fd, buf, 0)
			if err != nil {
				if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
					break
				}
				// ENOBUFS means the kernel dropped events; keep reading.
				if errors.Is(err, unix.ENOBUFS) {
					continue
				}
				return fmt.Errorf("read uevent: %w", err)
			}
			ev, ok := ParseUEvent(buf[:size])
			if !ok || !m.Matches(ev) {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// ParseUEvent decodes a kernel message of the form
// "ACTION@KOBJ\0KEY=VALUE\0...". Messages rebroadcast by udevd start with
// a binary "libudev" header and are rejected.
func ParseUEvent(data []byte) (Event, bool) {
	if len(data) == 0 || bytes.HasPrefix(data, []byte("libudev")) {
		return Event{}, false
	}

	parts := bytes.Split(data, []byte{0})
	header := parts[0]
	at := bytes.IndexByte(header, '@')
	if at < 1 {
		return Event{}, false
	}

	ev := Event{
		Action: string(header[:at]),
		KObj:   string(header[at+1:]),
		Env:    make(map[string]string, len(parts)),
	}
	for _, part := range parts[1:] {
		eq := bytes.IndexByte(part, '=')
		if eq < 1 {
			continue
		}
		key, value := string(part[:eq]), string(part[eq+1:])
		ev.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			ev.Subsystem = value
		case "DEVTYPE":
			ev.DevType = value
		case "DEVNAME":
			ev.DevName = value
		}
	}
	return ev, true
}
