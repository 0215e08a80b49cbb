// Package config loads the bridge configuration once at startup: defaults,
// then an optional YAML file, then environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Links the printer can be reached over.
const (
	LinkTCP     = "tcp"
	LinkLPD     = "lpd"
	LinkSerial  = "serial"
	LinkUSB     = "usb"
	LinkSpooler = "spooler"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "PRINTBRIDGE_CONFIG"

type Config struct {
	Printer Printer `yaml:"printer"`
	Print   Print   `yaml:"print"`
	Server  Server  `yaml:"server"`
	Log     Log     `yaml:"log"`
}

type Printer struct {
	Link        string        `yaml:"link"`
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	LPDQueue    string        `yaml:"lpd_queue"`
	SerialPort  string        `yaml:"serial_port"`
	SerialBaud  int           `yaml:"serial_baud"`
	USBVendor   uint16        `yaml:"usb_vendor"`
	USBProduct  uint16        `yaml:"usb_product"`
	SpoolerName string        `yaml:"spooler_name"`
	Timeout     time.Duration `yaml:"timeout"`
	Linger      time.Duration `yaml:"linger"`
	Charset     string        `yaml:"charset"`
}

type Print struct {
	FeedLines    int    `yaml:"feed_lines"`
	Threshold    int    `yaml:"threshold"`
	MaxWidth     int    `yaml:"max_width"`
	RasterMode   string `yaml:"raster_mode"`
	ResizeFilter string `yaml:"resize_filter"`
	MaxCopies    int    `yaml:"max_copies"`
	MaxPixels    int    `yaml:"max_pixels"`
}

type Server struct {
	ListenAddr      string        `yaml:"listen_addr"`
	TLSCertFile     string        `yaml:"tls_cert_file"`
	TLSKeyFile      string        `yaml:"tls_key_file"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	CORSAllowOrigin string        `yaml:"cors_allow_origin"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Printer: Printer{
			Link:       LinkTCP,
			Port:       9100,
			LPDQueue:   "lp",
			SerialBaud: 19200,
			Timeout:    5 * time.Second,
			Linger:     2 * time.Second,
		},
		Print: Print{
			FeedLines:    3,
			Threshold:    170,
			MaxWidth:     576,
			RasterMode:   "threshold",
			ResizeFilter: "lanczos3",
			MaxCopies:    10,
			MaxPixels:    16_000_000,
		},
		Server: Server{
			ListenAddr:      ":5055",
			MaxBodyBytes:    16 << 20,
			ReadTimeout:     time.Minute,
			CORSAllowOrigin: "*",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the file named by
// PRINTBRIDGE_CONFIG and the environment, in that order of precedence from
// lowest to highest. getenv is usually os.Getenv.
func Load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.loadEnv(getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv(getenv func(string) string) error {
	e := envReader{getenv: getenv}

	e.str("PRINTER_LINK", &c.Printer.Link)
	e.str("PRINTER_HOST", &c.Printer.Host)
	e.number("PRINTER_PORT", &c.Printer.Port)
	e.str("PRINTER_LPD_QUEUE", &c.Printer.LPDQueue)
	e.str("PRINTER_SERIAL_PORT", &c.Printer.SerialPort)
	e.number("PRINTER_SERIAL_BAUD", &c.Printer.SerialBaud)
	e.hex16("PRINTER_USB_VENDOR", &c.Printer.USBVendor)
	e.hex16("PRINTER_USB_PRODUCT", &c.Printer.USBProduct)
	e.str("PRINTER_SPOOLER_NAME", &c.Printer.SpoolerName)
	e.duration("PRINTER_TIMEOUT", &c.Printer.Timeout)
	e.duration("PRINTER_LINGER", &c.Printer.Linger)
	e.str("PRINTER_CHARSET", &c.Printer.Charset)

	e.number("PRINT_FEED_LINES", &c.Print.FeedLines)
	e.number("PRINT_THRESHOLD", &c.Print.Threshold)
	e.number("PRINT_MAX_WIDTH", &c.Print.MaxWidth)
	e.str("PRINT_RASTER_MODE", &c.Print.RasterMode)
	e.str("PRINT_RESIZE_FILTER", &c.Print.ResizeFilter)
	e.number("PRINT_MAX_COPIES", &c.Print.MaxCopies)
	e.number("PRINT_MAX_PIXELS", &c.Print.MaxPixels)

	e.str("LISTEN_ADDR", &c.Server.ListenAddr)
	if port := getenv("LISTEN_PORT"); port != "" {
		host, _, err := net.SplitHostPort(c.Server.ListenAddr)
		if err != nil {
			host = ""
		}
		c.Server.ListenAddr = net.JoinHostPort(host, port)
	}
	e.str("TLS_CERT_FILE", &c.Server.TLSCertFile)
	e.str("TLS_KEY_FILE", &c.Server.TLSKeyFile)
	e.number64("MAX_BODY_BYTES", &c.Server.MaxBodyBytes)
	e.str("CORS_ALLOW_ORIGIN", &c.Server.CORSAllowOrigin)
	e.duration("HTTP_READ_TIMEOUT", &c.Server.ReadTimeout)

	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)
	e.str("LOG_DIR", &c.Log.Dir)

	return errors.Join(e.errs...)
}

// Validate reports every out-of-range value at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	p := c.Printer
	switch p.Link {
	case LinkTCP, LinkLPD:
		if p.Host == "" {
			bad("PRINTER_HOST is required for the %s link", p.Link)
		}
		if p.Port < 1 || p.Port > 65535 {
			bad("PRINTER_PORT %d out of range 1-65535", p.Port)
		}
	case LinkSerial:
		if p.SerialPort == "" {
			bad("PRINTER_SERIAL_PORT is required for the serial link")
		}
		if p.SerialBaud <= 0 {
			bad("PRINTER_SERIAL_BAUD must be positive, got %d", p.SerialBaud)
		}
	case LinkUSB:
		if p.USBVendor == 0 || p.USBProduct == 0 {
			bad("PRINTER_USB_VENDOR and PRINTER_USB_PRODUCT are required for the usb link")
		}
	case LinkSpooler:
		if p.SpoolerName == "" {
			bad("PRINTER_SPOOLER_NAME is required for the spooler link")
		}
	default:
		bad("unknown PRINTER_LINK %q", p.Link)
	}
	if p.Timeout <= 0 {
		bad("PRINTER_TIMEOUT must be positive, got %s", p.Timeout)
	}
	if p.Linger < 0 {
		bad("PRINTER_LINGER must not be negative, got %s", p.Linger)
	}

	pr := c.Print
	if pr.FeedLines < 0 || pr.FeedLines > 255 {
		bad("PRINT_FEED_LINES %d out of range 0-255", pr.FeedLines)
	}
	if pr.Threshold < 0 || pr.Threshold > 255 {
		bad("PRINT_THRESHOLD %d out of range 0-255", pr.Threshold)
	}
	if pr.MaxWidth < 8 || pr.MaxWidth > 8*0xFFFF {
		bad("PRINT_MAX_WIDTH %d out of range", pr.MaxWidth)
	}
	if pr.MaxCopies < 1 {
		bad("PRINT_MAX_COPIES must be at least 1, got %d", pr.MaxCopies)
	}
	if pr.MaxPixels < 1 {
		bad("PRINT_MAX_PIXELS must be positive, got %d", pr.MaxPixels)
	}

	if _, _, err := net.SplitHostPort(c.Server.ListenAddr); err != nil {
		bad("LISTEN_ADDR %q: %v", c.Server.ListenAddr, err)
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		bad("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if c.Server.MaxBodyBytes <= 0 {
		bad("MAX_BODY_BYTES must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Server.ReadTimeout <= 0 {
		bad("HTTP_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}

	return errors.Join(errs...)
}

// TLS reports whether the server should serve HTTPS.
func (c *Config) TLS() bool {
	return c.Server.TLSCertFile != "" && c.Server.TLSKeyFile != ""
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) str(key string, dst *string) {
	if v := e.getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) number(key string, dst *int) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) number64(key string, dst *int64) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) hex16(key string, dst *uint16) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	v = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "0x")
	n, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = uint16(n)
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		// bare numbers are seconds
		n, nerr := strconv.Atoi(strings.TrimSpace(v))
		if nerr != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		d = time.Duration(n) * time.Second
	}
	*dst = d
}
