package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(env(map[string]string{"PRINTER_HOST": "192.168.1.50"}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Printer.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Printer.Port)
	}
	if cfg.Print.Threshold != 170 || cfg.Print.MaxWidth != 576 {
		t.Errorf("Threshold, MaxWidth = %d, %d; want 170, 576", cfg.Print.Threshold, cfg.Print.MaxWidth)
	}
	if cfg.Printer.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Printer.Timeout)
	}
	if cfg.Server.ListenAddr != ":5055" {
		t.Errorf("ListenAddr = %q, want :5055", cfg.Server.ListenAddr)
	}
	if cfg.TLS() {
		t.Error("TLS enabled without certificate")
	}
	if cfg.Server.ReadTimeout != time.Minute {
		t.Errorf("ReadTimeout = %v, want 1m", cfg.Server.ReadTimeout)
	}
}

func TestLoadEnv(t *testing.T) {
	cfg, err := Load(env(map[string]string{
		"PRINTER_HOST":        "printer.local",
		"PRINTER_PORT":        "9101",
		"PRINTER_TIMEOUT":     "3",
		"PRINTER_LINGER":      "500ms",
		"PRINT_THRESHOLD":     "128",
		"PRINT_MAX_WIDTH":     "384",
		"LISTEN_PORT":         "8080",
		"TLS_CERT_FILE":       "cert.pem",
		"TLS_KEY_FILE":        "key.pem",
		"PRINTER_USB_VENDOR":  "0x04b8",
		"PRINTER_USB_PRODUCT": "0202",
		"HTTP_READ_TIMEOUT":   "30s",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Printer.Host != "printer.local" || cfg.Printer.Port != 9101 {
		t.Errorf("printer = %s:%d", cfg.Printer.Host, cfg.Printer.Port)
	}
	if cfg.Printer.Timeout != 3*time.Second || cfg.Printer.Linger != 500*time.Millisecond {
		t.Errorf("Timeout, Linger = %v, %v", cfg.Printer.Timeout, cfg.Printer.Linger)
	}
	if cfg.Print.Threshold != 128 || cfg.Print.MaxWidth != 384 {
		t.Errorf("Threshold, MaxWidth = %d, %d", cfg.Print.Threshold, cfg.Print.MaxWidth)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if !cfg.TLS() {
		t.Error("TLS not enabled")
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Printer.USBVendor != 0x04b8 || cfg.Printer.USBProduct != 0x0202 {
		t.Errorf("USB = %04x:%04x", cfg.Printer.USBVendor, cfg.Printer.USBProduct)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printbridge.yaml")
	yml := `
printer:
  host: 10.0.0.5
  port: 9200
  timeout: 10s
print:
  threshold: 100
  raster_mode: dither
server:
  cors_allow_origin: https://club.example
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(env(map[string]string{
		FileEnv:        path,
		"PRINTER_PORT": "9300",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Printer.Host != "10.0.0.5" {
		t.Errorf("Host = %q, want file value", cfg.Printer.Host)
	}
	if cfg.Printer.Port != 9300 {
		t.Errorf("Port = %d, want env override 9300", cfg.Printer.Port)
	}
	if cfg.Printer.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Printer.Timeout)
	}
	if cfg.Print.Threshold != 100 || cfg.Print.RasterMode != "dither" {
		t.Errorf("Print = %+v", cfg.Print)
	}
	if cfg.Print.MaxWidth != 576 {
		t.Errorf("MaxWidth = %d, want default 576", cfg.Print.MaxWidth)
	}
	if cfg.Server.CORSAllowOrigin != "https://club.example" {
		t.Errorf("CORSAllowOrigin = %q", cfg.Server.CORSAllowOrigin)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.yaml")
	if err := os.WriteFile(unknown, []byte("printer:\n  hots: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for name, path := range map[string]string{
		"missing": filepath.Join(dir, "nope.yaml"),
		"unknown": unknown,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(env(map[string]string{FileEnv: path, "PRINTER_HOST": "h"})); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]map[string]string{
		"no host":         {},
		"bad port":        {"PRINTER_HOST": "h", "PRINTER_PORT": "70000"},
		"port not int":    {"PRINTER_HOST": "h", "PRINTER_PORT": "ninety"},
		"threshold":       {"PRINTER_HOST": "h", "PRINT_THRESHOLD": "256"},
		"max width":       {"PRINTER_HOST": "h", "PRINT_MAX_WIDTH": "0"},
		"max copies":      {"PRINTER_HOST": "h", "PRINT_MAX_COPIES": "0"},
		"feed lines":      {"PRINTER_HOST": "h", "PRINT_FEED_LINES": "300"},
		"timeout":         {"PRINTER_HOST": "h", "PRINTER_TIMEOUT": "soon"},
		"link":            {"PRINTER_HOST": "h", "PRINTER_LINK": "carrier-pigeon"},
		"serial no port":  {"PRINTER_LINK": "serial"},
		"usb no ids":      {"PRINTER_LINK": "usb"},
		"usb bad id":      {"PRINTER_LINK": "usb", "PRINTER_USB_VENDOR": "xyz", "PRINTER_USB_PRODUCT": "1"},
		"spooler no name": {"PRINTER_LINK": "spooler"},
		"tls half":        {"PRINTER_HOST": "h", "TLS_CERT_FILE": "cert.pem"},
		"listen addr":     {"PRINTER_HOST": "h", "LISTEN_ADDR": "5055"},
		"read timeout":    {"PRINTER_HOST": "h", "HTTP_READ_TIMEOUT": "0s"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(env(vars)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidateReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Print.Threshold = -1
	cfg.Print.MaxCopies = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"PRINTER_HOST", "PRINT_THRESHOLD", "PRINT_MAX_COPIES"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
