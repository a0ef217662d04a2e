package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string

	Port      string   `toml:"server.port" env:"SERVER_PORT"`
	AuthOn    bool     `toml:"auth.enabled" env:"AUTH_ENABLED"`
	Buffers   int      `toml:"capture.buffers" env:"CAPTURE_BUFFERS"`
	Drivers   []string `toml:"capture.drivers" env:"CAPTURE_DRIVERS"`
	LogModule string   `toml:"logging.capture" env:"LOGGING_CAPTURE"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `
[server]
port = ":9000"

[auth]
enabled = true

[capture]
buffers = 8
drivers = ["v4l2", "iidc"]

[logging]
level = "warn"
capture = "debug"
iidc = "error"
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeFile(t, "config.toml", sampleConfig)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	want := testOptions{
		Config:    opts.Config,
		Port:      ":9000",
		AuthOn:    true,
		Buffers:   8,
		Drivers:   []string{"v4l2", "iidc"},
		LogModule: "debug",
	}
	if !reflect.DeepEqual(*opts, want) {
		t.Errorf("LoadConfig() = %+v, want %+v", *opts, want)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	t.Setenv("CAMUNIT_SERVER_PORT", ":9100")
	t.Setenv("CAMUNIT_CAPTURE_BUFFERS", "12")
	t.Setenv("CAMUNIT_CAPTURE_DRIVERS", " v4l2 , iidc ")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Int("buffers", 0, "")
	if err := cmd.Flags().Set("buffers", "3"); err != nil {
		t.Fatal(err)
	}

	opts := &testOptions{Config: writeFile(t, "config.toml", sampleConfig), Buffers: 3}
	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if opts.Port != ":9100" {
		t.Errorf("Port = %q, want env value :9100", opts.Port)
	}
	if opts.Buffers != 3 {
		t.Errorf("Buffers = %d, want CLI value 3", opts.Buffers)
	}
	if !reflect.DeepEqual(opts.Drivers, []string{"v4l2", "iidc"}) {
		t.Errorf("Drivers = %q, want trimmed env list", opts.Drivers)
	}
	if !opts.AuthOn {
		t.Error("AuthOn = false, want file value true")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{"invalid toml", "[server\nport =", nil},
		{"wrong type", "[capture]\nbuffers = \"eight\"\n", nil},
		{"bad env int", "", map[string]string{"CAMUNIT_CAPTURE_BUFFERS": "many"}},
		{"bad env bool", "", map[string]string{"CAMUNIT_AUTH_ENABLED": "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			opts := &testOptions{Config: writeFile(t, "config.toml", tt.content)}
			if err := LoadConfig(opts, nil); err == nil {
				t.Error("LoadConfig() error = nil, want failure")
			}
		})
	}

	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Error("LoadConfig(non-pointer) error = nil")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: ":8090"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if opts.Port != ":8090" {
		t.Errorf("Port = %q, want default kept", opts.Port)
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Port", "port"},
		{"LoggingLevel", "logging-level"},
		{"CaptureBuffers", "capture-buffers"},
	}
	for _, tt := range tests {
		if got := fieldNameToFlag(tt.in); got != tt.want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"server": map[string]any{"port": ":8090"},
		"flat":   "x",
	}
	tests := []struct {
		path string
		want any
	}{
		{"server.port", ":8090"},
		{"flat", "x"},
		{"server.missing", nil},
		{"flat.deeper", nil},
	}
	for _, tt := range tests {
		if got := getNestedValue(data, tt.path); got != tt.want {
			t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	cfg := LoadLoggingConfig(writeFile(t, "config.toml", sampleConfig))
	if cfg.Level != "warn" || cfg.Format != "text" {
		t.Errorf("level/format = %s/%s, want warn/text", cfg.Level, cfg.Format)
	}
	want := map[string]string{"capture": "debug", "iidc": "error"}
	if !reflect.DeepEqual(cfg.Modules, want) {
		t.Errorf("Modules = %v, want %v", cfg.Modules, want)
	}

	def := LoadLoggingConfig("")
	if def.Level != "info" || len(def.Modules) != 0 {
		t.Errorf("default = %+v", def)
	}
}
