// Package network carries the peer protocol over TCP with
// newline-delimited JSON envelopes. One envelope out, one ack back.
//
// It supports graceful offline operation: a peer that cannot be
// reached fails the dial, and the coordination layer decides what that
// means (for task requests, fail-fast eviction).
package network

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gridmesh-network/gridmesh/internal/domain"
)

// Envelope kinds of the peer protocol.
const (
	KindTaskHeader         = "task_header"
	KindTaskRequest        = "task_request"
	KindResourceRequest    = "resource_request"
	KindReportComputedTask = "report_computed_task"
	KindResultRejected     = "result_rejected"
	KindReward             = "reward"
	KindVerification       = "verification"
)

// Envelope is one framed protocol message.
type Envelope struct {
	Kind      string          `json:"kind"`
	SubtaskID string          `json:"subtask_id,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
}

// ack is the peer's response to one envelope.
type ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Config configures the transport.
type Config struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// DefaultConfig returns production transport defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

// ─── Dialer ─────────────────────────────────────────────────────────────────

// Dialer opens TCP sessions to peers.
type Dialer struct {
	config Config
}

// NewDialer creates a peer dialer.
func NewDialer(cfg Config) *Dialer {
	return &Dialer{config: cfg}
}

// Dial connects to a peer. A refused or timed-out connection is
// reported as ErrConnectionFailed so callers can match on it.
func (d *Dialer) Dial(ctx context.Context, address string, port int) (domain.Session, error) {
	nd := net.Dialer{Timeout: d.config.DialTimeout}
	conn, err := nd.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s:%d: %v", domain.ErrConnectionFailed, address, port, err)
	}
	return &tcpSession{conn: conn, reader: bufio.NewReader(conn), config: d.config}, nil
}

// ─── Session ────────────────────────────────────────────────────────────────

// tcpSession is one established peer connection.
type tcpSession struct {
	conn   net.Conn
	reader *bufio.Reader
	config Config
}

func (s *tcpSession) SendTaskRequest(req domain.TaskRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode task request: %w", err)
	}
	return s.exchange(Envelope{Kind: KindTaskRequest, TaskID: req.TaskID, Body: body})
}

func (s *tcpSession) SendResourceRequest(subtaskID string, resource domain.ResourceDescriptor) error {
	body, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("encode resource request: %w", err)
	}
	return s.exchange(Envelope{Kind: KindResourceRequest, SubtaskID: subtaskID, TaskID: resource.TaskID, Body: body})
}

func (s *tcpSession) SendReportComputedTask(result domain.ReportedResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result report: %w", err)
	}
	return s.exchange(Envelope{Kind: KindReportComputedTask, SubtaskID: result.SubtaskID, TaskID: result.TaskID, Body: body})
}

func (s *tcpSession) SendResultRejected(subtaskID string) error {
	return s.exchange(Envelope{Kind: KindResultRejected, SubtaskID: subtaskID})
}

func (s *tcpSession) SendReward(subtaskID string, amount int64) error {
	body, err := json.Marshal(map[string]int64{"amount": amount})
	if err != nil {
		return fmt.Errorf("encode reward: %w", err)
	}
	return s.exchange(Envelope{Kind: KindReward, SubtaskID: subtaskID, Body: body})
}

func (s *tcpSession) Close() error {
	return s.conn.Close()
}

// exchange writes one envelope and waits for the peer's ack.
func (s *tcpSession) exchange(env Envelope) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if _, err := s.conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrConnectionFailed, env.Kind, err)
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("%w: read ack for %s: %v", domain.ErrConnectionFailed, env.Kind, err)
	}

	var a ack
	if err := json.Unmarshal(line, &a); err != nil {
		return fmt.Errorf("decode ack for %s: %w", env.Kind, err)
	}
	if !a.OK {
		return fmt.Errorf("peer rejected %s: %s", env.Kind, a.Error)
	}
	return nil
}

// ─── Listener ───────────────────────────────────────────────────────────────

// Handler consumes inbound protocol messages. The daemon wires this to
// the session coordinator.
type Handler interface {
	HandleTaskHeader(h domain.TaskHeader) error
	HandleVerification(taskID string, accepted bool, rewardOrReason string) error
}

// verificationBody is the wire form of a verification outcome.
type verificationBody struct {
	Accepted bool   `json:"accepted"`
	Reward   string `json:"reward,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Listener accepts inbound peer connections and dispatches envelopes.
type Listener struct {
	mu       sync.Mutex
	config   Config
	handler  Handler
	listener net.Listener
}

// NewListener creates a peer protocol listener.
func NewListener(cfg Config, handler Handler) *Listener {
	return &Listener{config: cfg, handler: handler}
}

// Addr returns the bound address once Serve is listening, nil before.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Serve listens on addr and handles connections until ctx is done.
func (l *Listener) Serve(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Printf("[network] peer protocol listening on %s", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go l.handleConn(ctx, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for ctx.Err() == nil {
		if err := conn.SetReadDeadline(time.Now().Add(2 * l.config.ReadTimeout)); err != nil {
			return
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			l.writeAck(conn, ack{OK: false, Error: "malformed envelope"})
			continue
		}
		l.writeAck(conn, l.dispatch(env))
	}
}

func (l *Listener) dispatch(env Envelope) ack {
	switch env.Kind {
	case KindTaskHeader:
		var h domain.TaskHeader
		if err := json.Unmarshal(env.Body, &h); err != nil {
			return ack{OK: false, Error: "malformed task header"}
		}
		if err := l.handler.HandleTaskHeader(h); err != nil {
			return ack{OK: false, Error: err.Error()}
		}
		return ack{OK: true}

	case KindVerification:
		var v verificationBody
		if err := json.Unmarshal(env.Body, &v); err != nil {
			return ack{OK: false, Error: "malformed verification"}
		}
		outcome := v.Reward
		if !v.Accepted {
			outcome = v.Reason
		}
		if err := l.handler.HandleVerification(env.TaskID, v.Accepted, outcome); err != nil {
			return ack{OK: false, Error: err.Error()}
		}
		return ack{OK: true}

	default:
		log.Printf("[network] unhandled inbound envelope kind %q", env.Kind)
		return ack{OK: true}
	}
}

func (l *Listener) writeAck(conn net.Conn, a ack) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := conn.SetWriteDeadline(time.Now().Add(l.config.WriteTimeout)); err != nil {
		return
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		log.Printf("[network] write ack: %v", err)
	}
}
