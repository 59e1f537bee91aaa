package calcclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaroslawMajcherczyk/PUS/equation"
	"github.com/JaroslawMajcherczyk/PUS/eventdriventcpclient"
	"github.com/JaroslawMajcherczyk/PUS/logger"
	"github.com/JaroslawMajcherczyk/PUS/protocol"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeTransport answers every equation with equation.Evaluate.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
	down    bool
	onData  eventdriventcpclient.DataReceivedHandler
	onState eventdriventcpclient.ConnectionStateHandler
	onError eventdriventcpclient.ErrorHandler
}

func (f *fakeTransport) OnConnectionState(h eventdriventcpclient.ConnectionStateHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = h
}

func (f *fakeTransport) OnDataReceived(h eventdriventcpclient.DataReceivedHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onData = h
}

func (f *fakeTransport) OnError(h eventdriventcpclient.ErrorHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onError = h
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.down
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	if f.sendErr != nil {
		f.mu.Unlock()
		return f.sendErr
	}
	f.sent = append(f.sent, string(data))
	f.mu.Unlock()

	if !protocol.IsDisconnect(data) {
		f.push(equation.Evaluate(string(data)))
	}
	return nil
}

func (f *fakeTransport) push(msg string) {
	f.mu.Lock()
	h := f.onData
	f.mu.Unlock()
	h(eventdriventcpclient.DataReceivedEvent{Data: []byte(msg), Timestamp: time.Now()})
}

func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.down = true
	h := f.onState
	f.mu.Unlock()
	h(eventdriventcpclient.ConnectionStateEvent{State: eventdriventcpclient.Disconnected, Error: err})
}

func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	h := f.onError
	f.mu.Unlock()
	h(eventdriventcpclient.ErrorEvent{Error: err, Timestamp: time.Now()})
}

func (f *fakeTransport) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type session struct {
	transport *fakeTransport
	out       *syncBuffer
	input     *io.PipeWriter
	cancel    context.CancelFunc
	done      chan struct{}
	outcome   Outcome
	err       error
}

func start(t *testing.T) *session {
	t.Helper()

	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		transport: &fakeTransport{},
		out:       &syncBuffer{},
		input:     pw,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	c := New(DefaultConfig(), s.transport, s.out, logger.NewNopLogger())
	go func() {
		s.outcome, s.err = c.Run(ctx, pr)
		close(s.done)
	}()

	t.Cleanup(func() {
		cancel()
		_ = pw.Close()
		<-s.done
	})

	// handlers are registered before the first prompt is printed
	require.Eventually(t, func() bool {
		return strings.Contains(s.out.String(), DefaultConfig().Prompt)
	}, 5*time.Second, time.Millisecond)

	return s
}

func (s *session) typeLine(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(s.input, line+"\n")
	require.NoError(t, err)
}

func (s *session) waitOutput(t *testing.T, want string) {
	t.Helper()
	require.Eventually(t, func() bool { return strings.Contains(s.out.String(), want) },
		5*time.Second, time.Millisecond, "output never contained %q:\n%s", want, s.out.String())
}

func (s *session) wait(t *testing.T) (Outcome, error) {
	t.Helper()
	select {
	case <-s.done:
		return s.outcome, s.err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
		return 0, nil
	}
}

func TestClient_Run_sendsCompactEquation(t *testing.T) {
	s := start(t)

	s.typeLine(t, "10 / 2")
	s.waitOutput(t, "Server reply: 5.00")

	s.typeLine(t, " 2+3 ")
	s.waitOutput(t, "Server reply: 5.00\n"+DefaultConfig().Prompt+"Server reply: 5.00")

	assert.Equal(t, []string{"10/2", "2+3"}, s.transport.messages())
}

func TestClient_Run_keepsOperandPrecision(t *testing.T) {
	s := start(t)

	s.typeLine(t, "1 / 0.001")
	s.waitOutput(t, "Server reply: 1000.00")

	assert.Equal(t, []string{"1/0.001"}, s.transport.messages())
}

func TestClient_Run_rejectsInvalidInputLocally(t *testing.T) {
	s := start(t)

	s.typeLine(t, "abc")
	s.waitOutput(t, MsgInvalidFormat)

	s.typeLine(t, "7 / 0")
	s.waitOutput(t, MsgInvalidRequest)

	s.typeLine(t, "2 ^ 3")
	s.typeLine(t, "")
	require.Eventually(t, func() bool {
		return strings.Count(s.out.String(), "Error:") == 4
	}, 5*time.Second, time.Millisecond)

	assert.Empty(t, s.transport.messages(), "nothing reaches the server")
}

func TestClient_Run_userDisconnect(t *testing.T) {
	s := start(t)

	s.typeLine(t, "DISCONNECT")

	outcome, err := s.wait(t)
	require.NoError(t, err)
	assert.Equal(t, UserDisconnected, outcome)
	assert.Equal(t, []string{protocol.DisconnectToken}, s.transport.messages())
	assert.Contains(t, s.out.String(), MsgDisconnecting)
}

func TestClient_Run_inputClosed(t *testing.T) {
	s := start(t)

	require.NoError(t, s.input.Close())

	outcome, err := s.wait(t)
	require.NoError(t, err)
	assert.Equal(t, InputClosed, outcome)
	assert.Equal(t, []string{protocol.DisconnectToken}, s.transport.messages())
}

func TestClient_Run_interruptDuringPrompt(t *testing.T) {
	s := start(t)

	s.cancel()

	outcome, err := s.wait(t)
	require.NoError(t, err)
	assert.Equal(t, Interrupted, outcome)
	assert.Equal(t, []string{protocol.DisconnectToken}, s.transport.messages())
	assert.Contains(t, s.out.String(), MsgDisconnecting)
}

func TestClient_Run_shutdownNoticeInterruptsPrompt(t *testing.T) {
	s := start(t)

	s.transport.push(protocol.ShutdownNotice)

	outcome, err := s.wait(t)
	require.NoError(t, err)
	assert.Equal(t, ServerShutdown, outcome)
	assert.Contains(t, s.out.String(), MsgServerShutdown)
	assert.NotContains(t, s.out.String(), "Server reply: "+protocol.ShutdownNotice)
	assert.Empty(t, s.transport.messages())
}

func TestClient_Run_connectionLost(t *testing.T) {
	s := start(t)

	s.transport.drop(io.EOF)

	outcome, err := s.wait(t)
	require.NoError(t, err)
	assert.Equal(t, ServerClosed, outcome)
	assert.Contains(t, s.out.String(), MsgServerClosed)
}

func TestClient_Run_noticeBeforeConnectionLoss(t *testing.T) {
	s := start(t)

	s.transport.push(protocol.ShutdownNotice)
	s.transport.drop(io.EOF)

	outcome, err := s.wait(t)
	require.NoError(t, err)
	assert.Equal(t, ServerShutdown, outcome)
}

func TestClient_Run_sendFailure(t *testing.T) {
	s := start(t)
	s.transport.mu.Lock()
	s.transport.sendErr = errors.New("broken pipe")
	s.transport.mu.Unlock()

	s.typeLine(t, "1+1")

	outcome, err := s.wait(t)
	assert.Equal(t, ServerClosed, outcome)
	assert.ErrorContains(t, err, "broken pipe")
}

func TestClient_Run_sendAfterConnectionLost(t *testing.T) {
	s := start(t)
	s.transport.mu.Lock()
	s.transport.sendErr = eventdriventcpclient.ErrNotConnected
	s.transport.mu.Unlock()

	s.typeLine(t, "1+1")

	outcome, err := s.wait(t)
	require.NoError(t, err, "a peer that is already gone is not a send failure")
	assert.Equal(t, ServerClosed, outcome)
	assert.Contains(t, s.out.String(), MsgServerClosed)
}

func TestClient_Run_disconnectedBeforeStart(t *testing.T) {
	t.Run("connection already closed", func(t *testing.T) {
		transport := &fakeTransport{down: true}
		out := &syncBuffer{}
		pr, pw := io.Pipe()
		defer pw.Close()

		outcome, err := New(DefaultConfig(), transport, out, logger.NewNopLogger()).Run(context.Background(), pr)
		require.NoError(t, err)
		assert.Equal(t, ServerClosed, outcome)
		assert.Equal(t, MsgServerClosed+"\n", out.String(), "no prompt once the server is gone")
		assert.Empty(t, transport.messages())
	})

	t.Run("shutdown notice already delivered", func(t *testing.T) {
		transport := &fakeTransport{down: true}
		out := &syncBuffer{}
		pr, pw := io.Pipe()
		defer pw.Close()

		c := New(DefaultConfig(), &noticeOnRegister{fakeTransport: transport}, out, logger.NewNopLogger())

		outcome, err := c.Run(context.Background(), pr)
		require.NoError(t, err)
		assert.Equal(t, ServerShutdown, outcome)
		assert.Contains(t, out.String(), MsgServerShutdown)
	})
}

// noticeOnRegister delivers the shutdown notice as soon as a data handler
// is registered.
type noticeOnRegister struct {
	*fakeTransport
}

func (n *noticeOnRegister) OnDataReceived(h eventdriventcpclient.DataReceivedHandler) {
	n.fakeTransport.OnDataReceived(h)
	n.push(protocol.ShutdownNotice)
}

func TestClient_Run_logsTransportErrors(t *testing.T) {
	var buf syncBuffer
	log := logger.NewZerologLogger(zerolog.New(&buf), "calcclient", zerolog.DebugLevel)

	transport := &fakeTransport{}
	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = New(DefaultConfig(), transport, io.Discard, log).Run(context.Background(), pr)
	}()

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return transport.onError != nil
	}, 5*time.Second, time.Millisecond)

	transport.fail(errors.New("connection reset by peer"))
	assert.Contains(t, buf.String(), "transport error")
	assert.Contains(t, buf.String(), "connection reset by peer")

	require.NoError(t, pw.Close())
	<-done
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "user disconnected", UserDisconnected.String())
	assert.Equal(t, "input closed", InputClosed.String())
	assert.Equal(t, "interrupted", Interrupted.String())
	assert.Equal(t, "server shutdown", ServerShutdown.String())
	assert.Equal(t, "server closed", ServerClosed.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
