package printer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errTestWrite = errors.New("test write failure")

// mockPrinter accepts raw connections and records what each one carried.
type mockPrinter struct {
	ln net.Listener

	mu       sync.Mutex
	jobs     [][]byte
	active   atomic.Int32
	overlaps atomic.Int32

	// closeAfter stops listening once this many jobs were received
	closeAfter int
	done       chan struct{}
}

func newMockPrinter(t *testing.T, closeAfter int) *mockPrinter {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	m := &mockPrinter{ln: ln, closeAfter: closeAfter, done: make(chan struct{})}
	go m.serve()
	t.Cleanup(func() {
		ln.Close()
		<-m.done
	})
	return m
}

func (m *mockPrinter) serve() {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(m.done)
	}()
	for {
		conn, err := m.ln.Accept()
		if err != nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.handle(conn)
		}()
	}
}

func (m *mockPrinter) handle(conn net.Conn) {
	defer conn.Close()
	if m.active.Add(1) > 1 {
		m.overlaps.Add(1)
	}
	defer m.active.Add(-1)

	data, _ := io.ReadAll(conn)

	m.mu.Lock()
	m.jobs = append(m.jobs, data)
	n := len(m.jobs)
	m.mu.Unlock()

	if m.closeAfter > 0 && n >= m.closeAfter {
		m.ln.Close()
	}
}

func (m *mockPrinter) dialer() *TCPDialer {
	addr := m.ln.Addr().(*net.TCPAddr)
	return &TCPDialer{Host: "127.0.0.1", Port: addr.Port, Linger: time.Second}
}

func (m *mockPrinter) received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.jobs...)
}

func TestDeliverCopies(t *testing.T) {
	m := newMockPrinter(t, 0)
	buf := []byte{0x1B, 0x40, 'h', 'i', '\n', 0x1D, 0x56, 0x00}

	if err := Deliver(context.Background(), m.dialer(), buf, 3, DeliverOptions{Timeout: 2 * time.Second}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	jobs := m.received()
	if len(jobs) != 3 {
		t.Fatalf("received %d connections, want 3", len(jobs))
	}
	for i, job := range jobs {
		if !bytes.Equal(job, buf) {
			t.Errorf("copy %d = % X, want % X", i+1, job, buf)
		}
	}
	if n := m.overlaps.Load(); n != 0 {
		t.Errorf("%d overlapping connections", n)
	}
}

func TestDeliverStopsOnFailure(t *testing.T) {
	m := newMockPrinter(t, 1)
	buf := []byte("job")

	err := Deliver(context.Background(), m.dialer(), buf, 3, DeliverOptions{Timeout: 2 * time.Second})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Deliver error = %v, want *TransportError", err)
	}
	if te.Copy != 2 || te.Copies != 3 || te.Op != "dial" {
		t.Errorf("TransportError = %+v, want copy 2 of 3 at dial", te)
	}
	if jobs := m.received(); len(jobs) != 1 {
		t.Errorf("received %d connections, want 1", len(jobs))
	}
}

func TestDeliverRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	d := &TCPDialer{Host: "127.0.0.1", Port: port}
	err = Deliver(context.Background(), d, []byte("x"), 1, DeliverOptions{Timeout: time.Second})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Deliver error = %v, want *TransportError", err)
	}
	if te.Addr != "127.0.0.1:"+strconv.Itoa(port) {
		t.Errorf("Addr = %q", te.Addr)
	}
}

func TestDeliverArguments(t *testing.T) {
	d := &fakeDialer{}
	if err := Deliver(context.Background(), d, []byte("x"), 0, DeliverOptions{}); err == nil {
		t.Error("copies=0: expected error")
	}
	if err := Deliver(context.Background(), d, nil, 1, DeliverOptions{}); err == nil {
		t.Error("empty buffer: expected error")
	}
	if d.dials.Load() != 0 {
		t.Errorf("dialed %d times on invalid arguments", d.dials.Load())
	}
}

// fakeDialer hands out in-memory transports.
type fakeDialer struct {
	dials atomic.Int32

	// block makes Dial wait for its context
	block bool
	// onWrite runs on every transport write
	onWrite func(copy int)
	// failWrite fails the write of this copy
	failWrite int

	mu    sync.Mutex
	names []string
	bufs  []*bytes.Buffer
}

func (f *fakeDialer) Addr() string { return "fake" }

func (f *fakeDialer) Dial(ctx context.Context, name string) (Transport, error) {
	n := int(f.dials.Add(1))
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := &bytes.Buffer{}
	f.names = append(f.names, name)
	f.bufs = append(f.bufs, buf)
	return &fakeTransport{f: f, copy: n, buf: buf}, nil
}

type fakeTransport struct {
	f      *fakeDialer
	copy   int
	buf    *bytes.Buffer
	closed atomic.Bool
}

func (t *fakeTransport) Write(b []byte) (int, error) {
	if t.f.onWrite != nil {
		t.f.onWrite(t.copy)
	}
	if t.copy == t.f.failWrite {
		return 0, errTestWrite
	}
	return t.buf.Write(b)
}

func (t *fakeTransport) Read([]byte) (int, error) { return 0, io.EOF }

func (t *fakeTransport) Close() error {
	t.closed.Store(true)
	return nil
}

func TestDeliverTimeout(t *testing.T) {
	d := &fakeDialer{block: true}
	start := time.Now()
	err := Deliver(context.Background(), d, []byte("x"), 2, DeliverOptions{Timeout: 50 * time.Millisecond})

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Deliver error = %v, want *TransportError", err)
	}
	if !te.Timeout() {
		t.Errorf("Timeout() = false for %v", te)
	}
	if te.Copy != 1 {
		t.Errorf("Copy = %d, want 1", te.Copy)
	}
	if d.dials.Load() != 1 {
		t.Errorf("dialed %d times, want 1", d.dials.Load())
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Deliver took %v", elapsed)
	}
}

func TestDeliverWriteFailure(t *testing.T) {
	d := &fakeDialer{failWrite: 2}
	err := Deliver(context.Background(), d, []byte("x"), 3, DeliverOptions{Title: "receipt"})

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Deliver error = %v, want *TransportError", err)
	}
	if te.Copy != 2 || te.Op != "write" || !errors.Is(err, errTestWrite) {
		t.Errorf("TransportError = %+v", te)
	}
	if te.Timeout() {
		t.Error("write failure reported as timeout")
	}
	if d.dials.Load() != 2 {
		t.Errorf("dialed %d times, want 2", d.dials.Load())
	}
	for i, name := range d.names {
		if name != "receipt" {
			t.Errorf("copy %d document name = %q", i+1, name)
		}
	}
}

func TestDeliverCancelBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &fakeDialer{}
	err := Deliver(ctx, d, []byte("x"), 2, DeliverOptions{})
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "cancel" || te.Copy != 1 {
		t.Fatalf("Deliver error = %v, want cancel at copy 1", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error does not wrap context.Canceled")
	}
	if d.dials.Load() != 0 {
		t.Errorf("dialed %d times after cancel", d.dials.Load())
	}
}

func TestDeliverCancelFinishesCurrentCopy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := &fakeDialer{onWrite: func(int) { cancel() }}
	buf := []byte("receipt")
	err := Deliver(ctx, d, buf, 3, DeliverOptions{})

	var te *TransportError
	if !errors.As(err, &te) || te.Op != "cancel" || te.Copy != 2 {
		t.Fatalf("Deliver error = %v, want cancel at copy 2", err)
	}
	if len(d.bufs) != 1 || !bytes.Equal(d.bufs[0].Bytes(), buf) {
		t.Errorf("first copy not delivered in full")
	}
}

// lateDialer connects only once the copy's time is up.
type lateDialer struct {
	mu     sync.Mutex
	events []string
}

func (d *lateDialer) Addr() string { return "late" }

func (d *lateDialer) Dial(ctx context.Context, _ string) (Transport, error) {
	<-ctx.Done()
	return &recordingTransport{d: d}, nil
}

func (d *lateDialer) record(e string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
}

type recordingTransport struct {
	d      *lateDialer
	closed atomic.Bool
}

func (r *recordingTransport) SetDeadline(time.Time) error {
	r.d.record("deadline")
	return nil
}

func (r *recordingTransport) Write(b []byte) (int, error) {
	if r.closed.Load() {
		return 0, net.ErrClosed
	}
	return len(b), nil
}

func (r *recordingTransport) Read([]byte) (int, error) { return 0, io.EOF }

func (r *recordingTransport) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		r.d.record("close")
	}
	return nil
}

func TestDeliverDeadlineBeforeTeardown(t *testing.T) {
	d := &lateDialer{}
	_ = Deliver(context.Background(), d, []byte("x"), 1, DeliverOptions{Timeout: 20 * time.Millisecond})

	// the timeout teardown may still be finishing on its own goroutine
	for deadline := time.Now().Add(time.Second); time.Now().Before(deadline); time.Sleep(5 * time.Millisecond) {
		d.mu.Lock()
		n := len(d.events)
		d.mu.Unlock()
		if n >= 2 {
			break
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.events) != 2 || d.events[0] != "deadline" || d.events[1] != "close" {
		t.Errorf("events = %v, want [deadline close]", d.events)
	}
}
