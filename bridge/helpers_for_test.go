package bridge

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

var errFakeClosed = errors.New("use of closed fake connection")

func genLogger() *logrus.Logger {
	logger := &logrus.Logger{
		Out:       os.Stdout,
		Formatter: new(logrus.TextFormatter),
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.DebugLevel,
	}
	return logger
}

type fakeMessage struct {
	mtype int
	data  []byte
	err   error
}

// fakeClient is an in-memory client connection.  Messages queued on incoming
// are returned by ReadMessage; closing incoming reads as end of stream.
// Messages written by the bridge arrive on sent.
type fakeClient struct {
	incoming chan fakeMessage
	sent     chan fakeMessage

	m         sync.Mutex
	writeErr  error
	closeCode int

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		incoming:  make(chan fakeMessage, 16),
		sent:      make(chan fakeMessage, 16),
		closed:    make(chan struct{}),
		closeCode: -1,
	}
}

func (c *fakeClient) ReadMessage() (int, []byte, error) {
	select {
	case m, ok := <-c.incoming:
		if !ok {
			return 0, nil, io.EOF
		}
		return m.mtype, m.data, m.err
	case <-c.closed:
		return 0, nil, errFakeClosed
	}
}

func (c *fakeClient) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	c.m.Lock()
	err := c.writeErr
	c.m.Unlock()
	if err != nil {
		return err
	}
	c.sent <- fakeMessage{mtype: messageType, data: append([]byte(nil), data...)}
	return nil
}

func (c *fakeClient) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.m.Lock()
	defer c.m.Unlock()
	if len(data) >= 2 {
		c.closeCode = int(data[0])<<8 | int(data[1])
	}
	return nil
}

func (c *fakeClient) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeClient) sentCloseCode() int {
	c.m.Lock()
	defer c.m.Unlock()
	return c.closeCode
}

// expectSent waits for the next message written to the client.
func (c *fakeClient) expectSent(t *testing.T) fakeMessage {
	t.Helper()
	select {
	case m := <-c.sent:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message to the client")
	}
	return fakeMessage{}
}

// runBridge runs b in the background and returns a channel carrying the
// result of Run.
func runBridge(b *Bridge) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- b.Run()
	}()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not complete")
	}
	return nil
}

// failingWriter fails every write.
type failingWriter struct {
	err error
}

func (w failingWriter) Write(p []byte) (int, error) {
	return 0, w.err
}

// recordingWriter collects sent messages in order.
type recordingWriter struct {
	messages []fakeMessage
	err      error
}

func (w *recordingWriter) WriteMessage(messageType int, data []byte) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, fakeMessage{mtype: messageType, data: append([]byte(nil), data...)})
	return nil
}

func (w *recordingWriter) texts() []string {
	rv := make([]string, 0, len(w.messages))
	for _, m := range w.messages {
		rv = append(rv, string(m.data))
	}
	return rv
}
