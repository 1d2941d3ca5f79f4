package server

import (
	"bufio"
	"net"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Askaholic/lobby-bridge/config"
	"github.com/Askaholic/lobby-bridge/util"
)

func genLogger() *logrus.Logger {
	logger := &logrus.Logger{
		Out:       os.Stdout,
		Formatter: new(logrus.TextFormatter),
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.DebugLevel,
	}
	return logger
}

// lobby is a fake backend server that hands every accepted connection to the
// test.
type lobby struct {
	listener net.Listener
	conns    chan net.Conn
}

func newLobby(t *testing.T) *lobby {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	lb := &lobby{listener: listener, conns: make(chan net.Conn, 8)}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			lb.conns <- conn
		}
	}()
	t.Cleanup(func() { _ = listener.Close() })
	return lb
}

func (lb *lobby) addr() string {
	return lb.listener.Addr().String()
}

// accept waits for the server to connect to the lobby.
func (lb *lobby) accept(t *testing.T) *lobbyConn {
	t.Helper()
	select {
	case conn := <-lb.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return &lobbyConn{Conn: conn, reader: bufio.NewReader(conn)}
	case <-time.After(5 * time.Second):
		t.Fatal("server never connected to the lobby")
	}
	return nil
}

type lobbyConn struct {
	net.Conn
	reader *bufio.Reader
}

func (c *lobbyConn) readLine(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	return line
}

// expectEOF asserts the server released its end of the connection.
func (c *lobbyConn) expectEOF(t *testing.T) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	rest, err := c.reader.ReadString('\n')
	require.Error(t, err)
	require.Empty(t, rest)
}

// configFor returns a configuration pointing at the given backend address.
func configFor(t *testing.T, lobbyAddr string) config.Config {
	host, portStr, err := net.SplitHostPort(lobbyAddr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	conf := config.Default()
	conf.BindHost = "127.0.0.1"
	conf.BindPort = 0
	conf.LobbyHost = host
	conf.LobbyPort = port
	conf.LobbyDialTimeout = 2 * time.Second
	return conf
}

// closedAddr returns an address on which nothing is listening.
func closedAddr(t *testing.T) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func startServer(t *testing.T, conf config.Config) (*Server, *httptest.Server) {
	s := New(conf, genLogger())
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, res, err := websocket.DefaultDialer.Dial(util.MakeWsURL(ts.URL), nil)
	require.NoError(t, err)
	_ = res.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (int, []byte, error) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn.ReadMessage()
}
