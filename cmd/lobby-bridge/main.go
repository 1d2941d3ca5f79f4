package main

import (
	"context"
	"log/syslog"
	"os/signal"
	"syscall"

	docopt "github.com/docopt/docopt-go"
	mozlog "github.com/mozilla-services/go-mozlogrus"
	log "github.com/sirupsen/logrus"
	lSyslog "github.com/sirupsen/logrus/hooks/syslog"

	"github.com/Askaholic/lobby-bridge/config"
	"github.com/Askaholic/lobby-bridge/internal"
	"github.com/Askaholic/lobby-bridge/server"
)

const usage = `Lobby Bridge

Lobby Bridge accepts WebSocket connections and relays each of them to a lobby
server speaking a newline-delimited text protocol.  Every text message from a
client is written to the lobby as one line, and every line from the lobby is
sent to the client as one text message.

[Browser] <--- websocket ---> [lobby-bridge] <--- lines over tcp ---> [Lobby]

Usage:
    lobby-bridge [--verbose] [--json]
    lobby-bridge -h | --help
    lobby-bridge --version

Environment:
 BIND_HOST (optional; defaults to localhost)     host on which to accept websocket clients
 BIND_PORT (optional; defaults to 8003)          port on which to accept websocket clients
 LOBBY_HOST (optional; defaults to localhost)    host of the lobby server
 LOBBY_PORT (optional; defaults to 8002)         port of the lobby server
 LOBBY_DIAL_TIMEOUT (optional; defaults to 10s)  time allowed to connect to the lobby server
 MAX_MESSAGE_SIZE (optional; defaults to 64MiB)  largest client message accepted, in bytes
 LOG_LEVEL (optional; defaults to info)          panic, fatal, error, warn, info, debug or trace
 ENV                                             "production" enables mozlog output
 SYSLOG_ADDR                                     address to which to send syslog output (production only)

Options:
-h --help       Show help
--version       Show version
--verbose       Verbose logging
--json          Output logs in JSON format`

func main() {
	arguments, _ := docopt.ParseArgs(usage, nil, "lobby-bridge "+internal.Version)

	// malformed configuration is fatal here, never once connections arrive
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	verbose, _ := arguments.Bool("--verbose")
	jsonOutput, _ := arguments.Bool("--json")
	logger, err := newLogger(conf, verbose, jsonOutput)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, logger); err != nil {
		logger.Fatal(err)
	}
}

// run serves until ctx is cancelled.
func run(ctx context.Context, conf config.Config, logger *log.Logger) error {
	logger.WithFields(log.Fields{
		"bind-addr":  conf.BindAddr(),
		"lobby-addr": conf.LobbyAddr(),
		"version":    internal.Version,
	}).Info("starting server")
	err := server.New(conf, logger).ListenAndServe(ctx)
	if err == nil {
		logger.Info("server stopped")
	}
	return err
}

func newLogger(conf config.Config, verbose, jsonOutput bool) (*log.Logger, error) {
	logger := log.New()
	logger.SetLevel(conf.LogLevel)
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	if jsonOutput {
		logger.SetFormatter(&log.JSONFormatter{})
	}

	if conf.IsProduction() {
		// add mozlog formatter
		logger.SetFormatter(&mozlog.MozLogFormatter{
			LoggerName: "lobby-bridge",
		})

		// add syslog hook if addr is provided
		if conf.SyslogAddr != "" {
			hook, err := lSyslog.NewSyslogHook("udp", conf.SyslogAddr, syslog.LOG_DEBUG, "lobby-bridge")
			if err != nil {
				return nil, err
			}
			logger.AddHook(hook)
		}
	}
	return logger, nil
}
