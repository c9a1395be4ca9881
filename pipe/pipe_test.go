package pipe

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/progrium/qpipe-go/frame"
	"github.com/rs/xid"
	"go.uber.org/goleak"
)

const eventTimeout = 2 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fatal(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func testName() string {
	return "test-" + xid.New().String()
}

func testOptions(t *testing.T) *Options {
	return &Options{Dir: t.TempDir()}
}

type recorder struct {
	connected chan *Pipe
	closed    chan *Pipe
	messages  chan frame.Message
}

func newRecorder() *recorder {
	return &recorder{
		connected: make(chan *Pipe, 8),
		closed:    make(chan *Pipe, 8),
		messages:  make(chan frame.Message, 256),
	}
}

func (r *recorder) PipeConnected(p *Pipe)                      { r.connected <- p }
func (r *recorder) PipeClosed(p *Pipe)                         { r.closed <- p }
func (r *recorder) MessageReceived(p *Pipe, msg frame.Message) { r.messages <- msg }

func (r *recorder) waitConnected(t *testing.T) *Pipe {
	t.Helper()
	select {
	case p := <-r.connected:
		return p
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for connected event")
		return nil
	}
}

func (r *recorder) waitClosed(t *testing.T) *Pipe {
	t.Helper()
	select {
	case p := <-r.closed:
		return p
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for closed event")
		return nil
	}
}

func (r *recorder) waitMessage(t *testing.T) frame.Message {
	t.Helper()
	select {
	case msg := <-r.messages:
		return msg
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for message")
		return frame.Message{}
	}
}

func connectPair(t *testing.T, opts *Options) (*ServerPipe, *recorder, *ClientPipe, *recorder) {
	t.Helper()
	name := testName()
	srec, crec := newRecorder(), newRecorder()

	server, err := NewServerPipe(name, srec, opts)
	fatal(err, t)
	t.Cleanup(func() { server.Close() })

	client := NewClientPipe(".", name, crec, opts)
	t.Cleanup(func() { client.Close() })
	fatal(client.ConnectTimeout(eventTimeout), t)

	srec.waitConnected(t)
	crec.waitConnected(t)
	return server, srec, client, crec
}

func TestRoundTrip(t *testing.T) {
	server, srec, client, crec := connectPair(t, testOptions(t))

	for _, size := range []int{1, 2, 128, 512, 1024, 8192, 65536, 524288, 1048576} {
		payload := make([]byte, size)
		rand.Read(payload)

		fatal(client.WriteBytes(payload), t)
		if got := srec.waitMessage(t); !bytes.Equal(got.Payload(), payload) {
			t.Fatalf("server got %d bytes, expected %d", got.Len(), size)
		}

		fatal(server.WriteBytes(payload), t)
		if got := crec.waitMessage(t); !bytes.Equal(got.Payload(), payload) {
			t.Fatalf("client got %d bytes, expected %d", got.Len(), size)
		}
	}
}

func TestTextMessage(t *testing.T) {
	_, srec, client, _ := connectPair(t, testOptions(t))

	fatal(client.WriteText("Data to transmit\x00\x00"), t)
	msg := srec.waitMessage(t)
	if msg.Len() != 18 {
		t.Fatalf("unexpected payload length %d", msg.Len())
	}
	if msg.Text() != "Data to transmit" {
		t.Fatalf("unexpected text %q", msg.Text())
	}

	_, err := client.WriteAsync(frame.Text("héllo"))
	fatal(err, t)
	if got := srec.waitMessage(t).Text(); got != "héllo" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestWriteEmpty(t *testing.T) {
	server, _, client, _ := connectPair(t, testOptions(t))

	for _, p := range []*Pipe{server.Pipe, client.Pipe} {
		errs := []error{p.WriteBytes(nil), p.WriteBytes([]byte{}), p.WriteText("")}
		_, err := p.WriteAsync(frame.Message{})
		errs = append(errs, err)
		for _, err := range errs {
			if !errors.Is(err, ErrZeroLength) {
				t.Fatalf("expected ErrZeroLength, got: %v", err)
			}
			if !errdefs.IsInvalidArgument(err) {
				t.Fatalf("expected invalid argument, got: %v", err)
			}
		}
	}
}

func TestWriteOrder(t *testing.T) {
	_, srec, client, _ := connectPair(t, testOptions(t))

	var last *Future
	for i := 0; i < 100; i++ {
		f, err := client.WriteBytesAsync([]byte{byte(i)})
		fatal(err, t)
		last = f
	}
	fatal(last.Wait(), t)
	for i := 0; i < 100; i++ {
		if got := srec.waitMessage(t).Payload(); got[0] != byte(i) {
			t.Fatalf("message %d arrived as %d", i, got[0])
		}
	}
}

func TestFlush(t *testing.T) {
	_, srec, client, _ := connectPair(t, testOptions(t))

	f, err := client.WriteTextAsync("queued")
	fatal(err, t)
	fatal(client.Flush(), t)
	select {
	case <-f.Done():
	default:
		t.Fatal("write still pending after flush")
	}
	if got := srec.waitMessage(t).Text(); got != "queued" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestConnectTimeout(t *testing.T) {
	client := NewClientPipe(".", testName(), nil, testOptions(t))
	defer client.Close()

	start := time.Now()
	err := client.ConnectTimeout(5 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got: %v", err)
	}
	if !errdefs.IsDeadlineExceeded(err) {
		t.Fatal("expected deadline exceeded category")
	}
	if time.Since(start) > time.Second {
		t.Fatal("connect overran its timeout")
	}
	if client.State() != Unconnected {
		t.Fatalf("unexpected state %s", client.State())
	}
}

func TestConnectCancel(t *testing.T) {
	client := NewClientPipe(".", testName(), nil, testOptions(t))
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := client.ConnectAsync(ctx)
	cancel()
	err := f.Wait()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatal("cancellation reported as timeout")
	}
}

func TestConnectAsync(t *testing.T) {
	opts := testOptions(t)
	name := testName()
	crec := newRecorder()

	client := NewClientPipe("", name, crec, opts)
	defer client.Close()
	f := client.ConnectTimeoutAsync(eventTimeout)

	// The client keeps dialing until the server shows up.
	time.Sleep(30 * time.Millisecond)
	server, err := NewServerPipe(name, nil, opts)
	fatal(err, t)
	defer server.Close()

	fatal(f.Wait(), t)
	if p := crec.waitConnected(t); p != client.Pipe {
		t.Fatal("connected event for the wrong pipe")
	}
	if !client.IsConnected() {
		t.Fatal("expected client to be connected")
	}
}

func TestAlreadyConnected(t *testing.T) {
	_, _, client, _ := connectPair(t, testOptions(t))

	err := client.ConnectTimeout(time.Second)
	if !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got: %v", err)
	}
	if !errdefs.IsFailedPrecondition(err) {
		t.Fatal("expected failed precondition category")
	}
}

func TestRemoteServer(t *testing.T) {
	client := NewClientPipe("otherhost", testName(), nil, testOptions(t))
	defer client.Close()

	err := client.ConnectTimeout(time.Second)
	if !errors.Is(err, ErrRemoteServer) || !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected ErrRemoteServer, got: %v", err)
	}
}

func TestNotConnected(t *testing.T) {
	client := NewClientPipe(".", testName(), nil, testOptions(t))
	if err := client.WriteText("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got: %v", err)
	}
	fatal(client.Close(), t)
	if err := client.WriteText("hello"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got: %v", err)
	}
	if err := client.ConnectTimeout(time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got: %v", err)
	}
}

func TestServerCloseClosesClient(t *testing.T) {
	server, _, client, crec := connectPair(t, testOptions(t))

	fatal(server.Close(), t)
	if p := crec.waitClosed(t); p != client.Pipe {
		t.Fatal("closed event for the wrong pipe")
	}
	if client.IsConnected() {
		t.Fatal("client still connected")
	}
	if err := client.WriteText("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got: %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	_, srec, client, crec := connectPair(t, testOptions(t))

	fatal(client.Close(), t)
	fatal(client.Close(), t)
	crec.waitClosed(t)
	srec.waitClosed(t)

	select {
	case <-crec.closed:
		t.Fatal("closed event fired twice")
	case <-time.After(50 * time.Millisecond):
	}
	if client.State() != Closed {
		t.Fatalf("unexpected state %s", client.State())
	}
}

func TestCloseDrainsWrites(t *testing.T) {
	_, srec, client, _ := connectPair(t, testOptions(t))

	for i := 0; i < 10; i++ {
		_, err := client.WriteTextAsync("pending")
		fatal(err, t)
	}
	fatal(client.Close(), t)
	for i := 0; i < 10; i++ {
		srec.waitMessage(t)
	}
}

func TestMessagesBeforeClosed(t *testing.T) {
	server, _, client, crec := connectPair(t, testOptions(t))

	for i := 0; i < 5; i++ {
		_, err := server.WriteTextAsync("last words")
		fatal(err, t)
	}
	fatal(server.Close(), t)
	crec.waitClosed(t)
	if n := len(crec.messages); n != 5 {
		t.Fatalf("expected 5 messages before closed, got %d", n)
	}
	client.Close()
}

func TestSetHandlerDetach(t *testing.T) {
	server, srec, client, _ := connectPair(t, testOptions(t))

	server.SetHandler(nil)
	fatal(client.WriteText("ignored"), t)
	fatal(client.Close(), t)
	select {
	case <-srec.messages:
		t.Fatal("detached handler got a message")
	case <-srec.closed:
		t.Fatal("detached handler got closed event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMaxMessageSize(t *testing.T) {
	opts := testOptions(t)
	opts.MaxMessageSize = 16
	server, srec, client, _ := connectPair(t, opts)

	fatal(client.WriteText("small"), t)
	srec.waitMessage(t)

	fatal(client.WriteBytes(make([]byte, 17)), t)
	srec.waitClosed(t)
	if server.IsConnected() {
		t.Fatal("server still connected after oversized frame")
	}
}

func TestIDs(t *testing.T) {
	opts := testOptions(t)
	a := NewClientPipe(".", testName(), nil, opts)
	b := NewClientPipe(".", testName(), nil, opts)
	if a.ID() == 0 || b.ID() <= a.ID() {
		t.Fatalf("ids not increasing: %d, %d", a.ID(), b.ID())
	}
	if a.String() == b.String() {
		t.Fatal("pipes share a string form")
	}
}

func TestPeerCloseReleasesHandle(t *testing.T) {
	server, _, client, crec := connectPair(t, testOptions(t))

	fatal(server.Close(), t)
	crec.waitClosed(t)

	client.mu.RLock()
	conn, writes := client.conn, client.writes
	client.mu.RUnlock()
	if conn != nil || writes != nil {
		t.Fatal("client kept its connection after the peer left")
	}
	fatal(client.Close(), t)
	if err := client.WriteText("hello"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got: %v", err)
	}
}

func TestMaxInstances(t *testing.T) {
	opts := testOptions(t)
	opts.MaxInstances = 1
	name := testName()
	srec := newRecorder()

	// Two server pipes keep the endpoint listening after the first client.
	for i := 0; i < 2; i++ {
		server, err := NewServerPipe(name, srec, opts)
		fatal(err, t)
		t.Cleanup(func() { server.Close() })
	}

	first := NewClientPipe(".", name, nil, opts)
	defer first.Close()
	fatal(first.ConnectTimeout(eventTimeout), t)
	srec.waitConnected(t)

	crec := newRecorder()
	over := NewClientPipe(".", name, crec, opts)
	defer over.Close()
	if err := over.ConnectTimeout(eventTimeout); err != nil {
		t.Fatal(err)
	}
	crec.waitClosed(t)
	if over.IsConnected() {
		t.Fatal("client over the limit still connected")
	}
	if err := over.WriteText("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got: %v", err)
	}
	select {
	case <-srec.connected:
		t.Fatal("server pipe accepted a client over the limit")
	case <-time.After(50 * time.Millisecond):
	}

	fatal(first.Close(), t)
	next := NewClientPipe(".", name, nil, opts)
	defer func() { next.Close() }()
	deadline := time.Now().Add(eventTimeout)
	for {
		fatal(next.ConnectTimeout(eventTimeout), t)
		select {
		case <-srec.connected:
			return
		case <-time.After(50 * time.Millisecond):
		}
		// The slot may not have been given back yet.
		if time.Now().After(deadline) {
			t.Fatal("freed slot never reused")
		}
		next.Close()
		next = NewClientPipe(".", name, nil, opts)
	}
}
