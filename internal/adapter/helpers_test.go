package adapter

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/droidbug/internal/dap"
	"github.com/dshills/droidbug/internal/debugger/sim"
	"github.com/dshills/droidbug/internal/source"
)

const mainActivity = "/work/app/src/com/example/app/MainActivity.java"

// sent is one message delivered through a recorder.
type sent struct {
	response bool
	command  string
	seq      int
	success  bool
	message  string
	event    string
	body     any
}

// recorder implements Sender by keeping every message.
type recorder struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *recorder) add(m sent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) Respond(req *dap.Request, body any) error {
	return r.add(sent{response: true, command: req.Command, seq: req.Seq, success: true, body: body})
}

func (r *recorder) Fail(req *dap.Request, message string) error {
	return r.add(sent{response: true, command: req.Command, seq: req.Seq, message: message})
}

func (r *recorder) SendEvent(event string, body any) error {
	return r.add(sent{event: event, body: body})
}

func (r *recorder) responses(command string) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, m := range r.msgs {
		if m.response && m.command == command {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) events(event string) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, m := range r.msgs {
		if !m.response && m.event == event {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) output() []string {
	var out []string
	for _, m := range r.events("output") {
		out = append(out, m.body.(dap.OutputEventBody).Output)
	}
	return out
}

func (r *recorder) waitResponses(t *testing.T, command string, n int) []sent {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.responses(command)) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %s responses", n, command)
	return r.responses(command)
}

func (r *recorder) waitEvents(t *testing.T, event string, n int) []sent {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.events(event)) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %s events", n, event)
	return r.events(event)
}

func (r *recorder) waitOutput(t *testing.T, line string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, o := range r.output() {
			if o == line {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "waiting for output %q", line)
}

func newRequest(seq int, command string, args any) *dap.Request {
	req := &dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: dap.TypeRequest},
		Command:         command,
	}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			panic(err)
		}
		req.Arguments = raw
	}
	return req
}

func loadScenario(t *testing.T) *sim.Scenario {
	t.Helper()
	sc, err := sim.LoadScenario("../debugger/sim/testdata/basic.yaml")
	require.NoError(t, err)
	return sc
}

// newTestSession returns a session over sc whose source index is already
// populated, as it would be after a launch.
func newTestSession(t *testing.T, sc *sim.Scenario, opts ...sim.Option) (*Session, *sim.Debugger, *recorder) {
	t.Helper()
	dbg := sim.New(sc, opts...)
	rec := &recorder{}
	s := NewSession(dbg, sim.NewLauncher(sc), rec, Options{Logger: zap.NewNop()})
	s.packages = source.NewPackages(sc.Packages...)
	return s, dbg, rec
}

// wireTransport feeds queued requests to a dap.Server and keeps what the
// server writes back.
type wireTransport struct {
	in     chan *dap.Message
	closed chan struct{}
	once   sync.Once

	mu  sync.Mutex
	out []json.RawMessage
}

func newWireTransport(reqs ...*dap.Request) *wireTransport {
	t := &wireTransport{
		in:     make(chan *dap.Message, len(reqs)),
		closed: make(chan struct{}),
	}
	for _, req := range reqs {
		content, err := json.Marshal(req)
		if err != nil {
			panic(err)
		}
		t.in <- &dap.Message{ContentLength: len(content), Content: content}
	}
	return t
}

func (t *wireTransport) Send(msg *dap.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.out = append(t.out, msg.Content)
	return nil
}

func (t *wireTransport) Receive() (*dap.Message, error) {
	select {
	case msg := <-t.in:
		return msg, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *wireTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// wireResponse is the part of a response the tests look at.
type wireResponse struct {
	Type       string `json:"type"`
	RequestSeq int    `json:"request_seq"`
	Command    string `json:"command"`
	Body       struct {
		Result string `json:"result"`
	} `json:"body"`
}

func (t *wireTransport) responses(command string) []wireResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []wireResponse
	for _, raw := range t.out {
		var r wireResponse
		if err := json.Unmarshal(raw, &r); err != nil {
			panic(err)
		}
		if r.Type == dap.TypeResponse && r.Command == command {
			out = append(out, r)
		}
	}
	return out
}
