package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AlexStarov/escpos-print-bridge/log"
)

// Transport is one open connection to the printer. Close ends the job: it
// must flush or half-close as the link requires and release the connection.
// Close may be called more than once.
type Transport interface {
	Write([]byte) (int, error)
	Read([]byte) (int, error)
	Close() error
}

// Dialer opens a fresh Transport for every copy. name labels the document on
// links that carry one.
type Dialer interface {
	Dial(ctx context.Context, name string) (Transport, error)
	Addr() string
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// -------------------- RAW --------------------

// RawTransport passes bytes straight through. On Close a TCP connection is
// half-closed and the printer is given up to linger to close its side; links
// with an output buffer are drained first.
type RawTransport struct {
	conn   io.ReadWriteCloser
	linger time.Duration

	deadline time.Time
	once     sync.Once
	closeErr error
}

func (r *RawTransport) Write(b []byte) (int, error) { return r.conn.Write(b) }
func (r *RawTransport) Read(b []byte) (int, error)  { return r.conn.Read(b) }

func (r *RawTransport) SetDeadline(t time.Time) error {
	r.deadline = t
	if d, ok := r.conn.(deadliner); ok {
		return d.SetDeadline(t)
	}
	return nil
}

func (r *RawTransport) Close() error {
	r.once.Do(func() { r.closeErr = r.close() })
	return r.closeErr
}

func (r *RawTransport) close() error {
	if d, ok := r.conn.(interface{ Drain() error }); ok {
		if err := d.Drain(); err != nil {
			_ = r.conn.Close()
			return fmt.Errorf("drain: %w", err)
		}
	}

	cw, ok := r.conn.(interface{ CloseWrite() error })
	if !ok {
		return r.conn.Close()
	}
	if err := cw.CloseWrite(); err != nil {
		_ = r.conn.Close()
		return fmt.Errorf("half-close: %w", err)
	}
	r.awaitPeerClose()
	return r.conn.Close()
}

// awaitPeerClose reads until the printer closes its side or linger runs out.
// Neither outcome is an error: the job is already written.
func (r *RawTransport) awaitPeerClose() {
	conn, ok := r.conn.(net.Conn)
	if !ok || r.linger <= 0 {
		return
	}
	until := time.Now().Add(r.linger)
	if !r.deadline.IsZero() && r.deadline.Before(until) {
		until = r.deadline
	}
	_ = conn.SetReadDeadline(until)
	_, _ = io.Copy(io.Discard, conn)
}

// TCPDialer connects to a raw print port, usually 9100.
type TCPDialer struct {
	Host string
	Port int

	// Linger bounds the wait for the printer to close after the job
	Linger time.Duration
}

func (d *TCPDialer) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

func (d *TCPDialer) Dial(ctx context.Context, _ string) (Transport, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", d.Addr())
	if err != nil {
		return nil, err
	}
	return &RawTransport{conn: conn, linger: d.Linger}, nil
}

// -------------------- LPD --------------------

// LPDDialer submits every copy as its own RFC 1179 job, usually on port 515.
type LPDDialer struct {
	Host  string
	Port  int
	Queue string

	Logger *slog.Logger

	jobs atomic.Uint32
}

func (d *LPDDialer) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

func (d *LPDDialer) Dial(ctx context.Context, name string) (Transport, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", d.Addr())
	if err != nil {
		return nil, err
	}
	logger := d.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &LPDTransport{
		conn:   conn,
		queue:  d.Queue,
		name:   name,
		jobID:  int(d.jobs.Add(1) % 1000),
		logger: logger,
	}, nil
}

// LPDTransport buffers the job and sends it as control and data files on Close.
type LPDTransport struct {
	conn   net.Conn
	queue  string
	name   string
	jobID  int
	logger *slog.Logger

	jobBuf bytes.Buffer
	closed bool
	err    error
	mu     sync.Mutex
}

func (l *LPDTransport) Write(data []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, io.ErrClosedPipe
	}
	return l.jobBuf.Write(data)
}

func (l *LPDTransport) Read(b []byte) (int, error) {
	return l.conn.Read(b)
}

func (l *LPDTransport) SetDeadline(t time.Time) error {
	return l.conn.SetDeadline(t)
}

func (l *LPDTransport) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return l.err
	}
	l.closed = true

	if l.jobBuf.Len() == 0 {
		l.err = l.conn.Close()
		return l.err
	}

	if err := l.flushJob(); err != nil {
		_ = l.conn.Close()
		l.err = err
		return err
	}
	l.err = l.conn.Close()
	return l.err
}

func (l *LPDTransport) flushJob() error {
	host, _ := os.Hostname()
	if host == "" {
		host = "localhost"
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "printbridge"
	}

	queue := l.queue
	if queue == "" {
		queue = "lp"
	}
	jobName := l.name
	if jobName == "" {
		jobName = fmt.Sprintf("escpos-%03d", l.jobID)
	}
	cfName := fmt.Sprintf("cfA%03d%s", l.jobID, host)
	dfName := fmt.Sprintf("dfA%03d%s", l.jobID, host)

	// H host, P user, J job name, l print data file verbatim, U unlink, N source name
	control := fmt.Sprintf(
		"H%s\nP%s\nJ%s\nl%s\nU%s\nN%s\n",
		host, user, jobName, dfName, dfName, dfName,
	)

	l.logger.Debug("lpd: receive job", "queue", queue, "job", jobName)
	if err := requestPrintJob(l.conn, queue); err != nil {
		return fmt.Errorf("lpd: receive job: %w", err)
	}

	l.logger.Debug("lpd: control file", "name", cfName)
	if err := sendSubcommand(l.conn, 0x02, cfName, []byte(control)); err != nil {
		return fmt.Errorf("lpd: control file: %w", err)
	}

	data := l.jobBuf.Bytes()
	l.logger.Debug("lpd: data file", "name", dfName, "bytes", len(data))
	if err := sendSubcommand(l.conn, 0x03, dfName, data); err != nil {
		return fmt.Errorf("lpd: data file: %w", err)
	}

	l.jobBuf.Reset()
	return nil
}

// -------------------- LPD helpers --------------------

func requestPrintJob(conn net.Conn, queue string) error {
	// \x02 <queue> LF
	if err := writeAll(conn, append([]byte{0x02}, queue+"\n"...)); err != nil {
		return err
	}
	return readAck(conn)
}

// sendSubcommand sends <code><size> <name>LF, the file, a NUL, and waits for the ACK.
func sendSubcommand(conn net.Conn, code byte, name string, file []byte) error {
	header := append([]byte{code}, strconv.Itoa(len(file))+" "+name+"\n"...)
	if err := writeAll(conn, header); err != nil {
		return err
	}
	if err := readAck(conn); err != nil {
		return err
	}
	if err := writeAll(conn, file); err != nil {
		return err
	}
	if err := writeAll(conn, []byte{0x00}); err != nil {
		return err
	}
	return readAck(conn)
}

var errNotAcknowledged = errors.New("request not acknowledged")

func readAck(conn net.Conn) error {
	ack := make([]byte, 1)
	if _, err := io.ReadFull(conn, ack); err != nil {
		return fmt.Errorf("reading ack: %w", err)
	}
	if ack[0] != 0x00 {
		return fmt.Errorf("%w (0x%02x)", errNotAcknowledged, ack[0])
	}
	return nil
}

// -------------------- helpers --------------------

func writeAll(w io.Writer, b []byte) error {
	sent := 0
	for sent < len(b) {
		n, err := w.Write(b[sent:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		sent += n
	}
	return nil
}
