package mux

import (
	"context"
	"testing"
	"time"

	"github.com/progrium/qpipe-go/frame"
	"github.com/progrium/qpipe-go/pipe"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func fatal(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func setupProxy(t *testing.T) (*Endpoint, *pipe.ClientPipe, chan string, chan struct{}) {
	opts := &pipe.Options{Dir: t.TempDir()}
	front, target := "front-"+xid.New().String(), "back-"+xid.New().String()

	back, err := Listen(target, pipe.Funcs{
		OnMessage: func(p *pipe.Pipe, msg frame.Message) {
			p.WriteText("back: " + msg.Text())
		},
	}, opts)
	fatal(err, t)
	t.Cleanup(func() { back.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	proxyDone := make(chan error, 1)
	go func() {
		proxyDone <- Proxy(ctx, front, target, opts)
	}()
	t.Cleanup(func() {
		cancel()
		fatal(<-proxyDone, t)
	})

	replies := make(chan string, 8)
	closed := make(chan struct{})
	client := pipe.NewClientPipe(".", front, pipe.Funcs{
		OnMessage: func(_ *pipe.Pipe, msg frame.Message) { replies <- msg.Text() },
		OnClose:   func(*pipe.Pipe) { close(closed) },
	}, opts)
	t.Cleanup(func() { client.Close() })
	fatal(client.ConnectTimeout(2*time.Second), t)
	return back, client, replies, closed
}

func TestProxyDuplex(t *testing.T) {
	back, client, replies, _ := setupProxy(t)

	fatal(client.WriteText("A -> a <-> b -> B"), t)
	select {
	case got := <-replies:
		if got != "back: A -> a <-> b -> B" {
			t.Fatalf("unexpected reply %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply through proxy")
	}
	if back.Count() != 1 {
		t.Fatalf("expected one proxied connection, got %d", back.Count())
	}
}

func TestProxyCloseTarget(t *testing.T) {
	back, client, _, closed := setupProxy(t)

	deadline := time.Now().Add(2 * time.Second)
	for back.Count() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	fatal(back.Close(), t)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("client not closed when the target went away")
	}
	if client.IsConnected() {
		t.Fatal("client still connected")
	}
}

func TestRelayLogsDroppedMessage(t *testing.T) {
	log, hook := test.NewNullLogger()
	dst := pipe.NewClientPipe(".", "front-"+xid.New().String(), nil, &pipe.Options{Dir: t.TempDir()})
	defer dst.Close()

	relay(log, dst.Pipe, frame.Text("lost"))
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning, got %v", hook.AllEntries())
	}
	if entry.Data["pipe"] != dst.ID() {
		t.Fatalf("warning not tagged with the pipe: %v", entry.Data)
	}

	hook.Reset()
	fatal(dst.Close(), t)
	relay(log, dst.Pipe, frame.Text("lost"))
	if len(hook.Entries) != 1 {
		t.Fatalf("expected one warning after close, got %d", len(hook.Entries))
	}
}
