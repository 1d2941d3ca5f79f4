package bridge

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"
)

// Conn is the client side of a bridge.  *websocket.Conn implements it.
type Conn interface {
	MessageReader
	MessageWriter
	io.Closer
}

// controlWriter is implemented by client connections which can send control
// frames concurrently with other writes, as *websocket.Conn does.
type controlWriter interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

const (
	directionToBackend = "client->backend"
	directionToClient  = "backend->client"

	// time allowed for the close frame to reach the client during teardown
	closeGracePeriod = time.Second
)

// Stats counts the units forwarded by a bridge in each direction.
type Stats struct {
	// ClientToBackend is the number of text messages written to the backend as lines
	ClientToBackend int64
	// BackendToClient is the number of lines sent to the client as text messages
	BackendToClient int64
}

// Bridge owns one client connection and one backend connection for the
// lifetime of a single proxied connection.  Create it with New, once both
// connections are open, and drive it with Run.
type Bridge struct {
	client  Conn
	backend io.ReadWriteCloser
	logger  logrus.FieldLogger

	stopper   *stopper
	closeOnce sync.Once

	toBackend atomic.Int64
	toClient  atomic.Int64
}

// New creates a bridge between an open client connection and an open backend
// connection.  The bridge takes ownership of both.  A nil logger discards
// all output.
func New(client Conn, backend io.ReadWriteCloser, logger logrus.FieldLogger) *Bridge {
	if logger == nil {
		nullLogger, _ := nullLog.NewNullLogger()
		logger = nullLogger
	}
	return &Bridge{
		client:  client,
		backend: backend,
		logger:  logger,
		stopper: newStopper(),
	}
}

// Run forwards traffic in both directions until one direction finishes,
// because its source closed gracefully or because of an error, then closes
// both connections and returns.  It does not wait for the other direction to
// drain.  The returned error is nil for a graceful close from either side,
// ErrBridgeClosed if Close ended the bridge, and otherwise an *Error naming
// the side that failed.
//
// Run must be called at most once.
func (b *Bridge) Run() error {
	// ownership of each half is fixed here: the client read half and the
	// backend write half belong to one goroutine, the other halves to the
	// other
	go b.forward(directionToBackend, func() (int64, error) {
		return MessagesToLines(&lineCounter{w: b.backend, n: &b.toBackend}, b.client, b.logger)
	})
	go b.forward(directionToClient, func() (int64, error) {
		return LinesToMessages(&messageCounter{w: b.client, n: &b.toClient}, b.backend, b.logger)
	})

	first := b.stopper.wait()
	b.teardown(first.err)

	if first.err != nil && !errors.Is(first.err, ErrBridgeClosed) {
		b.logger.WithFields(logrus.Fields{
			"side":      ErrorSide(first.err),
			"direction": first.direction,
		}).Infof("Encountered error: %v", first.err)
	}
	return first.err
}

// Close ends the bridge from outside, closing both connections.  A
// concurrent Run returns ErrBridgeClosed unless a direction had already
// finished.  Close is idempotent.
func (b *Bridge) Close() error {
	b.stopper.stop(outcome{direction: "close", err: ErrBridgeClosed})
	b.teardown(ErrBridgeClosed)
	return nil
}

// Stats returns the number of units forwarded so far.
func (b *Bridge) Stats() Stats {
	return Stats{
		ClientToBackend: b.toBackend.Load(),
		BackendToClient: b.toClient.Load(),
	}
}

func (b *Bridge) forward(direction string, copyFn func() (int64, error)) {
	n, err := copyFn()
	logger := b.logger.WithField("direction", direction)
	if b.stopper.stop(outcome{direction: direction, err: err}) {
		logger.Debugf("finished first after %d units: %v", n, err)
		return
	}
	// the bridge already completed and closed the connections under us
	logger.Debugf("abandoned after %d units: %v", n, err)
}

// teardown closes both connections exactly once.
func (b *Bridge) teardown(err error) {
	b.closeOnce.Do(func() {
		if cw, ok := b.client.(controlWriter); ok {
			code := websocket.CloseNormalClosure
			switch {
			case errors.Is(err, ErrBridgeClosed):
				code = websocket.CloseGoingAway
			case err != nil:
				code = websocket.CloseInternalServerErr
			}
			// fails harmlessly if the client already started the close handshake
			_ = cw.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""),
				time.Now().Add(closeGracePeriod))
		}
		_ = b.client.Close()
		_ = b.backend.Close()
	})
}

// lineCounter counts successful writes to the backend; every write is one line.
type lineCounter struct {
	w io.Writer
	n *atomic.Int64
}

func (c *lineCounter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err == nil {
		c.n.Add(1)
	}
	return n, err
}

type messageCounter struct {
	w MessageWriter
	n *atomic.Int64
}

func (c *messageCounter) WriteMessage(messageType int, data []byte) error {
	err := c.w.WriteMessage(messageType, data)
	if err == nil {
		c.n.Add(1)
	}
	return err
}
