// Package server accepts WebSocket clients, opens a backend connection for
// each of them and runs a bridge.Bridge between the two.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"
	"github.com/taskcluster/slugid-go/slugid"
	"golang.org/x/sync/errgroup"

	"github.com/Askaholic/lobby-bridge/bridge"
	"github.com/Askaholic/lobby-bridge/config"
	"github.com/Askaholic/lobby-bridge/internal/httputil"
	"github.com/Askaholic/lobby-bridge/util"
)

const (
	// time allowed for in-flight HTTP requests and bridge teardown on shutdown
	shutdownTimeout = 5 * time.Second

	// time allowed for a close frame to reach a client that is turned away
	closeWait = time.Second
)

// Server is the connection acceptor.  It is an http.Handler; every request
// other than the heartbeat endpoints is treated as a WebSocket upgrade.
type Server struct {
	config   config.Config
	logger   *logrus.Logger
	upgrader websocket.Upgrader
	dialer   *net.Dialer
	router   *mux.Router

	// live bridges, for heartbeat and shutdown
	bridges      mapset.Set
	shuttingDown atomic.Bool
	running      sync.WaitGroup
	connStats    connStats
}

// New creates a server for the given configuration.  A nil logger discards
// all output.
func New(conf config.Config, logger *logrus.Logger) *Server {
	if logger == nil {
		logger, _ = nullLog.NewNullLogger()
	}
	s := &Server{
		config: conf,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		dialer:  &net.Dialer{Timeout: conf.LobbyDialTimeout},
		bridges: mapset.NewSet(),
	}
	s.router = httputil.NewRouter(s)
	return s
}

// RegisterService implements httputil.ServiceProvider.
func (s *Server) RegisterService(r *mux.Router) {
	r.HandleFunc("/__lbheartbeat__", s.lbHeartbeat).Methods(http.MethodGet)
	r.HandleFunc("/__heartbeat__", s.heartbeat).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(s.serveWebSocket)
}

// ServeHTTP implements http.Handler so that the server may be used as a
// handler in a Mux or http.Server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ActiveBridges returns the number of bridges currently running.
func (s *Server) ActiveBridges() int {
	return s.bridges.Cardinality()
}

// ListenAndServe listens on the configured bind address and serves until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.BindAddr())
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.config.BindAddr())
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled.  On
// cancellation it stops accepting, closes every live bridge and waits up to
// shutdownTimeout for them to finish.  It returns nil after a shutdown
// triggered by ctx, and the error otherwise.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler: s,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	s.logger.WithField("bind-addr", listener.Addr().String()).
		Infof("Listening on: %s", util.MakeWsURL("http://"+listener.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := httpServer.Serve(listener)
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.Wrap(err, "serve")
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		s.closeBridges()
		s.waitBridges(shutdownCtx)
		return err
	})
	return g.Wait()
}

// closeBridges ends all live bridges, and any bridge started afterward.
func (s *Server) closeBridges() {
	s.shuttingDown.Store(true)
	for _, b := range s.bridges.ToSlice() {
		_ = b.(*bridge.Bridge).Close()
	}
}

func (s *Server) waitBridges(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warnf("%d bridges still running at shutdown", s.ActiveBridges())
	}
}

// serveWebSocket performs the handshake for one client: upgrade, then dial
// the backend, then bridge the pair until either side is done.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	s.running.Add(1)
	defer s.running.Done()

	s.connStats.New()
	logger := s.logger.WithFields(logrus.Fields{
		"conn-id":     slugid.Nice(),
		"remote-addr": r.RemoteAddr,
	})
	logger.Infof("New connection from: %s %s", r.RemoteAddr, &s.connStats)

	wsconn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied with an HTTP error
		logger.Infof("Failed websocket handshake: %v", err)
		return
	}
	logger.Info("Established websocket connection")
	wsconn.SetReadLimit(s.config.MaxMessageSize)

	lobbyconn, err := s.dialer.DialContext(r.Context(), "tcp", s.config.LobbyAddr())
	if err != nil {
		logger.Errorf("Failed to establish lobby connection: %v", err)
		_ = wsconn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ""),
			time.Now().Add(closeWait))
		_ = wsconn.Close()
		return
	}
	logger.WithField("lobby-addr", s.config.LobbyAddr()).Debug("Established lobby connection")

	b := bridge.New(wsconn, lobbyconn, logger)
	s.connStats.Open()
	s.bridges.Add(b)
	if s.shuttingDown.Load() {
		_ = b.Close()
	}

	err = b.Run()

	s.bridges.Remove(b)
	s.connStats.Close()
	stats := b.Stats()
	logger = logger.WithFields(logrus.Fields{
		"to-lobby":  stats.ClientToBackend,
		"to-client": stats.BackendToClient,
	})
	if err != nil {
		logger = logger.WithField("cause", errors.Cause(err).Error())
	}
	logger.Infof("Disconnected %s", &s.connStats)
}

func (s *Server) lbHeartbeat(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]int{
		"active": s.ActiveBridges(),
		"total":  int(s.connStats.Total()),
	})
}
