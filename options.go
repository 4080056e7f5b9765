package ftp

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultPort is the standard FTP control port.
	DefaultPort = 21

	// DefaultTimeout bounds every wait on the control connection and the
	// receive loops of Download and ListSimple.
	DefaultTimeout = 10 * time.Second

	// DefaultChunkSize is the buffer size used to stream transfer payloads.
	DefaultChunkSize = 32 * 1024
)

// Config is the immutable input of a Session.
type Config struct {
	// Host is the server address, either a literal IPv4 address or a name
	// to resolve.
	Host string `yaml:"host"`

	// Port is the control port. Zero means DefaultPort.
	Port int `yaml:"port"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Path is the remote working directory entered right after login.
	// Empty or "." keeps the server's login directory.
	Path string `yaml:"path"`

	// Timeout bounds each control response and the data receive loops.
	// Zero means DefaultTimeout; use a negative value to disable deadlines.
	Timeout time.Duration `yaml:"timeout"`

	// Verbose echoes every command and response line to the logger at info level.
	Verbose bool `yaml:"verbose"`
}

func (c Config) withDefaults() (Config, error) {
	if c.Host == "" {
		return c, errors.New("ftp: config: host is required")
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return c, fmt.Errorf("ftp: config: invalid port %d", c.Port)
	}
	switch {
	case c.Timeout == 0:
		c.Timeout = DefaultTimeout
	case c.Timeout < 0:
		c.Timeout = 0
	}
	if c.Path == "" {
		c.Path = "."
	}
	return c, nil
}

// DeadlinePolicy selects how the Download and ListSimple receive loops apply
// the configured timeout.
type DeadlinePolicy int

const (
	// DeadlineTotal computes one wall-clock deadline, now + timeout, when the
	// receive loop starts. It is a hard ceiling on the whole transfer: data
	// still arriving after it is not read.
	DeadlineTotal DeadlinePolicy = iota

	// DeadlineIdle pushes the deadline forward after every read, so only a
	// silent data connection ends the loop early.
	DeadlineIdle
)

// ProgressFunc is called after each chunk of a transfer with the remote name
// and the absolute byte position reached, including any resume offset.
type ProgressFunc func(name string, position int64)

// Option is a functional option for configuring a Session.
type Option func(*Session) error

// WithLogger sets the event sink. Any logrus.FieldLogger works, including a
// *logrus.Entry carrying preset fields.
//
// Example:
//
//	logger := logrus.New()
//	logger.SetLevel(logrus.DebugLevel)
//	s, _ := ftp.New(cfg, ftp.WithLogger(logger.WithField("server", cfg.Host)))
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Session) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithDialer sets a custom net.Dialer for the control and data connections.
// The session keeps its own copy; when the copy has no Timeout it gets the
// session timeout, and the caller's dialer is left untouched.
func WithDialer(dialer *net.Dialer) Option {
	return func(s *Session) error {
		if dialer == nil {
			return errors.New("dialer must not be nil")
		}
		d := *dialer
		s.dialer = &d
		return nil
	}
}

// WithLocalTree replaces the local directory enumeration used by UploadDirectory.
func WithLocalTree(tree LocalTree) Option {
	return func(s *Session) error {
		if tree == nil {
			return errors.New("local tree must not be nil")
		}
		s.tree = tree
		return nil
	}
}

// WithReceiveDeadline selects the deadline policy of the receive loops.
// The default is DeadlineTotal.
func WithReceiveDeadline(policy DeadlinePolicy) Option {
	return func(s *Session) error {
		if policy != DeadlineTotal && policy != DeadlineIdle {
			return fmt.Errorf("unknown deadline policy %d", policy)
		}
		s.deadline = policy
		return nil
	}
}

// WithBandwidthLimit caps upload and download throughput in bytes per second.
// Zero disables the limit.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Session) error {
		if bytesPerSecond < 0 {
			return fmt.Errorf("invalid bandwidth limit %d", bytesPerSecond)
		}
		s.bandwidth = bytesPerSecond
		return nil
	}
}

// WithProgress registers a callback invoked as transfer payloads move.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Session) error {
		s.progress = fn
		return nil
	}
}

// WithChunkSize sets the size of the buffer used to stream payloads.
func WithChunkSize(n int) Option {
	return func(s *Session) error {
		if n <= 0 {
			return fmt.Errorf("invalid chunk size %d", n)
		}
		s.chunkSize = n
		return nil
	}
}
