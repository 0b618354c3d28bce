package network

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gridmesh-network/gridmesh/internal/domain"
)

// recordingHandler captures dispatched inbound messages.
type recordingHandler struct {
	mu            sync.Mutex
	headers       []domain.TaskHeader
	verifications []string
	headerErr     error
}

func (h *recordingHandler) HandleTaskHeader(header domain.TaskHeader) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.headerErr != nil {
		return h.headerErr
	}
	h.headers = append(h.headers, header)
	return nil
}

func (h *recordingHandler) HandleVerification(taskID string, accepted bool, rewardOrReason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.verifications = append(h.verifications, taskID)
	return nil
}

// startListener serves a recording handler on a random port.
func startListener(t *testing.T, handler Handler) net.Addr {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	l := NewListener(DefaultConfig(), handler)
	go l.Serve(ctx, "127.0.0.1:0")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := l.Addr(); addr != nil {
			return addr
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("listener never bound")
	return nil
}

// rawExchange writes one envelope over a fresh connection and returns
// the peer's ack.
func rawExchange(t *testing.T, addr net.Addr, env Envelope) ack {
	t.Helper()

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	data, _ := json.Marshal(env)
	if _, err := conn.Write(append(data, '\n')); err != nil {
		t.Fatalf("write: %v", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	var a ack
	if err := json.Unmarshal(line, &a); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return a
}

// ─── Dialer ─────────────────────────────────────────────────────────────────

func TestDialer_ConnectionRefused(t *testing.T) {
	d := NewDialer(Config{DialTimeout: 100 * time.Millisecond})

	// Reserve a port and close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = d.Dial(context.Background(), "127.0.0.1", port)
	if !errors.Is(err, domain.ErrConnectionFailed) {
		t.Errorf("Dial() error = %v, want ErrConnectionFailed", err)
	}
}

func TestDialer_SessionExchange(t *testing.T) {
	// A minimal peer: reads envelopes, acks everything.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan Envelope, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}
			var env Envelope
			json.Unmarshal(line, &env)
			received <- env
			resp, _ := json.Marshal(ack{OK: true})
			conn.Write(append(resp, '\n'))
		}
	}()

	d := NewDialer(DefaultConfig())
	port := ln.Addr().(*net.TCPAddr).Port
	sess, err := d.Dial(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer sess.Close()

	if err := sess.SendTaskRequest(domain.TaskRequest{NodeID: "node-1", TaskID: "t1"}); err != nil {
		t.Fatalf("SendTaskRequest() error: %v", err)
	}
	env := <-received
	if env.Kind != KindTaskRequest || env.TaskID != "t1" {
		t.Errorf("envelope = %+v, want task_request for t1", env)
	}

	if err := sess.SendReward("s1", 100); err != nil {
		t.Fatalf("SendReward() error: %v", err)
	}
	env = <-received
	if env.Kind != KindReward || env.SubtaskID != "s1" {
		t.Errorf("envelope = %+v, want reward for s1", env)
	}
}

func TestDialer_PeerRejection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		bufio.NewReader(conn).ReadBytes('\n')
		resp, _ := json.Marshal(ack{OK: false, Error: "unknown task"})
		conn.Write(append(resp, '\n'))
	}()

	d := NewDialer(DefaultConfig())
	port := ln.Addr().(*net.TCPAddr).Port
	sess, err := d.Dial(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer sess.Close()

	err = sess.SendTaskRequest(domain.TaskRequest{NodeID: "node-1", TaskID: "ghost"})
	if err == nil {
		t.Fatal("SendTaskRequest() should surface the peer rejection")
	}
}

// ─── Listener ───────────────────────────────────────────────────────────────

func TestListener_DispatchTaskHeader(t *testing.T) {
	handler := &recordingHandler{}
	addr := startListener(t, handler)

	body, _ := json.Marshal(domain.TaskHeader{
		TaskID: "t1", OwnerID: "peer-1", OwnerAddress: "10.0.0.1",
		OwnerPort: 40102, Environment: "default", TTL: time.Hour,
	})
	a := rawExchange(t, addr, Envelope{Kind: KindTaskHeader, TaskID: "t1", Body: body})
	if !a.OK {
		t.Fatalf("ack = %+v, want ok", a)
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.headers) != 1 || handler.headers[0].TaskID != "t1" {
		t.Errorf("handler received %v, want header t1", handler.headers)
	}
}

func TestListener_DispatchVerification(t *testing.T) {
	handler := &recordingHandler{}
	addr := startListener(t, handler)

	body, _ := json.Marshal(verificationBody{Accepted: true, Reward: "50"})
	a := rawExchange(t, addr, Envelope{Kind: KindVerification, TaskID: "t1", Body: body})
	if !a.OK {
		t.Fatalf("ack = %+v, want ok", a)
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.verifications) != 1 || handler.verifications[0] != "t1" {
		t.Errorf("handler received %v, want verification for t1", handler.verifications)
	}
}

func TestListener_HandlerErrorNacks(t *testing.T) {
	handler := &recordingHandler{headerErr: errors.New("registry full")}
	addr := startListener(t, handler)

	body, _ := json.Marshal(domain.TaskHeader{
		TaskID: "t1", OwnerID: "peer-1", OwnerAddress: "10.0.0.1",
		OwnerPort: 40102, Environment: "default", TTL: time.Hour,
	})
	a := rawExchange(t, addr, Envelope{Kind: KindTaskHeader, TaskID: "t1", Body: body})
	if a.OK {
		t.Error("ack.OK = true, want nack when the handler fails")
	}
	if a.Error == "" {
		t.Error("nack should carry the handler error")
	}
}

func TestListener_MalformedEnvelope(t *testing.T) {
	handler := &recordingHandler{}
	addr := startListener(t, handler)

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.Write([]byte("this is not json\n"))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	var a ack
	json.Unmarshal(line, &a)
	if a.OK {
		t.Error("malformed envelope should be nacked")
	}
}

func TestListener_UnknownKindAcked(t *testing.T) {
	handler := &recordingHandler{}
	addr := startListener(t, handler)

	a := rawExchange(t, addr, Envelope{Kind: "future_extension"})
	if !a.OK {
		t.Error("unknown kinds are acked and ignored, not errors")
	}
}
