// Package config holds the process configuration of lobby-bridge.  A Config
// is loaded once from the environment at startup and passed by value to the
// components that need it.
package config

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config contains the run time parameters for the bridge server
type Config struct {
	// BindHost and BindPort are where the server listens for WebSocket clients
	BindHost string `default:"localhost"`
	BindPort int    `default:"8003"`

	// LobbyHost and LobbyPort locate the backend line-protocol server
	LobbyHost string `default:"localhost"`
	LobbyPort int    `default:"8002"`

	// LobbyDialTimeout bounds the time spent connecting to the backend
	LobbyDialTimeout time.Duration `default:"10s"`

	// MaxMessageSize is the largest WebSocket message accepted from a client,
	// in bytes
	MaxMessageSize int64 `default:"67108864"`

	// LogLevel is the minimum level of messages that are logged (4 is
	// logrus.InfoLevel)
	LogLevel logrus.Level `default:"4"`

	// Env is the deployment environment; "production" selects mozlog output
	Env string

	// SyslogAddr, if set in production, is a UDP address receiving a copy of
	// all log messages
	SyslogAddr string
}

// Lookup retrieves the value of an environment variable, as os.LookupEnv does.
type Lookup func(key string) (string, bool)

// Default returns the configuration used when no variables are set.
func Default() Config {
	var c Config
	defaults.SetDefaults(&c)
	return c
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration using lookup, starting from Default().
// Any variable that is set but cannot be parsed is an error naming that
// variable.
func LoadFrom(lookup Lookup) (Config, error) {
	c := Default()
	l := loader{lookup: lookup}

	l.str("BIND_HOST", &c.BindHost)
	l.port("BIND_PORT", &c.BindPort, 0)
	l.str("LOBBY_HOST", &c.LobbyHost)
	l.port("LOBBY_PORT", &c.LobbyPort, 1)
	l.duration("LOBBY_DIAL_TIMEOUT", &c.LobbyDialTimeout)
	l.size("MAX_MESSAGE_SIZE", &c.MaxMessageSize)
	l.level("LOG_LEVEL", &c.LogLevel)
	l.str("ENV", &c.Env)
	l.str("SYSLOG_ADDR", &c.SyslogAddr)

	if l.err != nil {
		return Config{}, l.err
	}
	return c, nil
}

// BindAddr is the host:port the server listens on.
func (c Config) BindAddr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.BindPort))
}

// LobbyAddr is the host:port of the backend server.
func (c Config) LobbyAddr() string {
	return net.JoinHostPort(c.LobbyHost, strconv.Itoa(c.LobbyPort))
}

// IsProduction reports whether the process runs in the production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// loader applies environment variables to a Config, keeping the first error.
type loader struct {
	lookup Lookup
	err    error
}

func (l *loader) get(key string) (string, bool) {
	if l.err != nil {
		return "", false
	}
	return l.lookup(key)
}

func (l *loader) str(key string, dst *string) {
	if v, ok := l.get(key); ok && v != "" {
		*dst = v
	}
}

func (l *loader) port(key string, dst *int, min int) {
	v, ok := l.get(key)
	if !ok || v == "" {
		return
	}
	p, err := strconv.Atoi(v)
	if err != nil {
		l.err = errors.Wrapf(err, "env var %s is not a number (%q)", key, v)
		return
	}
	if p < min || p > 65535 {
		l.err = errors.Errorf("env var %s is not between [%d, 65535] (%d)", key, min, p)
		return
	}
	*dst = p
}

func (l *loader) duration(key string, dst *time.Duration) {
	v, ok := l.get(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.err = errors.Wrapf(err, "env var %s is not a duration (%q)", key, v)
		return
	}
	if d <= 0 {
		l.err = errors.Errorf("env var %s must be positive (%s)", key, d)
		return
	}
	*dst = d
}

func (l *loader) size(key string, dst *int64) {
	v, ok := l.get(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		l.err = errors.Wrapf(err, "env var %s is not a number (%q)", key, v)
		return
	}
	if n <= 0 {
		l.err = errors.Errorf("env var %s must be positive (%d)", key, n)
		return
	}
	*dst = n
}

func (l *loader) level(key string, dst *logrus.Level) {
	v, ok := l.get(key)
	if !ok || v == "" {
		return
	}
	lvl, err := logrus.ParseLevel(v)
	if err != nil {
		l.err = errors.Wrapf(err, "env var %s is not a log level", key)
		return
	}
	*dst = lvl
}
