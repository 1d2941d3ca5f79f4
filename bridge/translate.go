package bridge

import (
	"bufio"
	"errors"
	"io"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// MessageReader is the read half of a client connection.
type MessageReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// MessageWriter is the write half of a client connection.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// LineDelimiter terminates every unit of the backend protocol.
const LineDelimiter = '\n'

// MessagesToLines reads messages from src and writes the content of each text
// message to dst followed by a newline, until src is closed.  Binary and
// other non-text messages are skipped.  It returns the number of lines
// written.  A close message, a clean WebSocket close or the end of src is a
// normal return with a nil error.
func MessagesToLines(dst io.Writer, src MessageReader, logger logrus.FieldLogger) (int64, error) {
	var n int64
	for {
		mtype, payload, err := src.ReadMessage()
		if err != nil {
			if isCleanClose(err) {
				return n, nil
			}
			return n, sideError(Client, "read", err)
		}

		switch mtype {
		case websocket.TextMessage:
			logger.Debugf("WebSocket >> %s", payload)
			line := make([]byte, len(payload)+1)
			copy(line, payload)
			line[len(payload)] = LineDelimiter
			// a single Write either carries the whole line or fails
			if _, err := dst.Write(line); err != nil {
				return n, sideError(Backend, "write", err)
			}
			n++
		case websocket.CloseMessage:
			// *websocket.Conn reports close frames as a *CloseError instead
			return n, nil
		default:
			logger.Debugf("ignoring unsupported %s message (%d bytes)", messageTypeName(mtype), len(payload))
		}
	}
}

// LinesToMessages reads newline-terminated lines from src and sends each one
// to dst as a text message with the newline removed, until src reaches end of
// stream.  It returns the number of messages sent.
//
// An unterminated partial line at the end of src is not delivered; the
// stream just ends.
func LinesToMessages(dst MessageWriter, src io.Reader, logger logrus.FieldLogger) (int64, error) {
	var n int64
	reader := bufio.NewReader(src)
	for {
		line, err := reader.ReadBytes(LineDelimiter)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(line) > 0 {
					logger.Warnf("backend closed mid-line; dropping %d unterminated bytes", len(line))
				}
				return n, nil
			}
			return n, sideError(Backend, "read", err)
		}

		line = line[:len(line)-1]
		if !utf8.Valid(line) {
			return n, sideError(Backend, "decode", ErrInvalidUTF8)
		}

		logger.Debugf("Lobby >> %s", line)
		if err := dst.WriteMessage(websocket.TextMessage, line); err != nil {
			return n, sideError(Client, "write", err)
		}
		n++
	}
}

// isCleanClose reports whether a read error from the client means the peer
// went away rather than that something broke.  gorilla only returns a
// *CloseError for a close frame sent by the peer, whatever its code, or for
// an abnormal closure when the peer drops the connection without one.
func isCleanClose(err error) bool {
	var closeErr *websocket.CloseError
	return errors.Is(err, io.EOF) || errors.As(err, &closeErr)
}

func messageTypeName(mtype int) string {
	switch mtype {
	case websocket.TextMessage:
		return "text"
	case websocket.BinaryMessage:
		return "binary"
	case websocket.CloseMessage:
		return "close"
	case websocket.PingMessage:
		return "ping"
	case websocket.PongMessage:
		return "pong"
	}
	return "unknown"
}
