package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/coreos/go-systemd/v22/journal"
)

type journalCall struct {
	message  string
	priority journal.Priority
	fields   map[string]string
}

func captureJournal(t *testing.T) *[]journalCall {
	t.Helper()
	var calls []journalCall
	orig := journalSend
	journalSend = func(msg string, p journal.Priority, fields map[string]string) error {
		calls = append(calls, journalCall{msg, p, fields})
		return nil
	}
	t.Cleanup(func() { journalSend = orig })
	return &calls
}

func TestFieldName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"device", "DEVICE"},
		{"device_id", "DEVICE_ID"},
		{"x-frame.width", "X_FRAME_WIDTH"},
		{"_secret", "SECRET"},
		{"µs", "S"},
	}
	for _, tt := range tests {
		if got := fieldName(tt.key); got != tt.want {
			t.Errorf("fieldName(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestJournalHandlerFields(t *testing.T) {
	calls := captureJournal(t)

	logger := slog.New(NewJournalHandler(slog.LevelInfo)).
		With("module", "capture").
		WithGroup("unit")
	logger.Debug("hidden")
	logger.Warn("Frames dropped", "device-id", "cam0", "dropped", 3, slog.Group("fmt", "width", 640))

	if len(*calls) != 1 {
		t.Fatalf("journal sends = %d, want 1", len(*calls))
	}
	c := (*calls)[0]
	if c.message != "Frames dropped" || c.priority != journal.PriWarning {
		t.Errorf("send = %q priority %d, want warning", c.message, c.priority)
	}
	want := map[string]string{
		"MODULE":            "capture",
		"UNIT_DEVICE_ID":    "cam0",
		"UNIT_DROPPED":      "3",
		"UNIT_FMT_WIDTH":    "640",
		"SYSLOG_IDENTIFIER": SyslogIdentifier,
		"PRIORITY":          "4",
	}
	for k, v := range want {
		if c.fields[k] != v {
			t.Errorf("fields[%s] = %q, want %q", k, c.fields[k], v)
		}
	}
}

func TestJournalPriority(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  journal.Priority
	}{
		{slog.LevelDebug, journal.PriDebug},
		{slog.LevelInfo, journal.PriInfo},
		{slog.LevelWarn, journal.PriWarning},
		{slog.LevelError, journal.PriErr},
		{slog.LevelError + 4, journal.PriErr},
	}
	for _, tt := range tests {
		if got := journalPriority(tt.level); got != tt.want {
			t.Errorf("journalPriority(%s) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestJournalHandlerFollowsLevelVar(t *testing.T) {
	calls := captureJournal(t)
	var lv slog.LevelVar
	lv.Set(slog.LevelError)
	h := NewJournalHandler(&lv)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Enabled(info) = true at error level")
	}
	lv.Set(slog.LevelDebug)
	slog.New(h).Debug("now visible")
	if len(*calls) != 1 {
		t.Errorf("journal sends = %d, want 1 after lowering level", len(*calls))
	}
}
