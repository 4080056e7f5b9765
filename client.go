package ftp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var errNotConnected = errors.New("control connection is not open")

// TransferMode is the representation type negotiated with TYPE.
type TransferMode int

const (
	// ModeASCII is TYPE A, the server default after login.
	ModeASCII TransferMode = iota
	// ModeBinary is TYPE I (image).
	ModeBinary
)

func (m TransferMode) String() string {
	if m == ModeBinary {
		return "binary"
	}
	return "ascii"
}

// Session drives one FTP control connection.
//
// A Session is created unauthenticated by New, becomes ready with Login and
// returns to disconnected with Close. It owns at most one control connection
// and at most one data connection at any instant. A Session is not safe for
// concurrent use; use one Session per goroutine.
type Session struct {
	cfg  Config
	addr string

	// conn is the control connection, nil while disconnected
	conn   net.Conn
	reader *bufio.Reader

	loggedIn bool
	mode     TransferMode
	workDir  string

	logger    logrus.FieldLogger
	dialer    *net.Dialer
	tree      LocalTree
	deadline  DeadlinePolicy
	bandwidth int64
	progress  ProgressFunc
	chunkSize int
}

// New validates cfg and returns a disconnected Session.
//
// Example:
//
//	s, err := ftp.New(ftp.Config{
//	    Host:     "ftp.example.com",
//	    Username: "demo",
//	    Password: "secret",
//	    Path:     "/incoming",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.Login(); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
func New(cfg Config, options ...Option) (*Session, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Session{
		cfg:       cfg,
		logger:    discard,
		dialer:    &net.Dialer{},
		tree:      OSTree{},
		deadline:  DeadlineTotal,
		chunkSize: DefaultChunkSize,
	}

	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if s.dialer.Timeout == 0 {
		s.dialer.Timeout = cfg.Timeout
	}

	return s, nil
}

// Config returns the configuration the session was created with, defaults applied.
func (s *Session) Config() Config { return s.cfg }

// LoggedIn reports whether Login has succeeded and Close has not been called since.
func (s *Session) LoggedIn() bool { return s.loggedIn }

// Mode returns the current transfer mode.
func (s *Session) Mode() TransferMode { return s.mode }

// WorkingDir returns the remote working directory as last reported by PWD.
func (s *Session) WorkingDir() string { return s.workDir }

// Login connects to the server and authenticates. A session that is already
// logged in is closed first. On any failure the control connection is
// released and the session is left disconnected.
func (s *Session) Login() error {
	if s.loggedIn {
		_ = s.Close()
	}

	s.logger.WithField("host", s.cfg.Host).Info("opening connection")

	if err := s.connect(); err != nil {
		return s.fail(err)
	}

	resp, err := s.readReply("CONNECT")
	if err != nil {
		_ = s.logout()
		return s.fail(err)
	}
	if resp.Code != 220 {
		_ = s.logout()
		return s.fail(protocolError("CONNECT", resp))
	}

	resp, err = s.sendCommand("USER " + s.cfg.Username)
	if err != nil {
		_ = s.logout()
		return s.fail(err)
	}
	if resp.Code != 331 && resp.Code != 230 {
		_ = s.logout()
		return s.fail(protocolError("USER", resp))
	}

	if resp.Code == 331 {
		resp, err = s.sendCommand("PASS " + s.cfg.Password)
		if err != nil {
			_ = s.logout()
			return s.fail(err)
		}
		if resp.Code != 230 && resp.Code != 202 {
			_ = s.logout()
			return s.fail(protocolError("PASS", resp))
		}
	}

	s.loggedIn = true
	s.logger.WithField("host", s.cfg.Host).Info("connected")

	if s.cfg.Path == "." {
		err = s.printWorkingDir()
	} else {
		err = s.ChangeWorkingDirectory(s.cfg.Path)
	}
	if err != nil {
		_ = s.logout()
		return err
	}

	return nil
}

// connect resolves the host and dials the control connection.
func (s *Session) connect() error {
	host := s.cfg.Host
	if net.ParseIP(host) == nil {
		addrs, err := net.LookupHost(host)
		if err != nil {
			return &ConnectionError{Op: "resolve", Addr: host, Err: err}
		}
		if len(addrs) == 0 {
			return &ConnectionError{Op: "resolve", Addr: host, Err: errors.New("no addresses found")}
		}
		host = addrs[0]
	}

	s.addr = net.JoinHostPort(host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dialer.Dial("tcp", s.addr)
	if err != nil {
		return &ConnectionError{Op: "connect", Addr: s.addr, Err: err}
	}

	s.conn = conn
	s.reader = bufio.NewReader(conn)
	return nil
}

// Close sends QUIT if the control connection is open, ignoring the reply,
// then releases the connection and clears the login state.
func (s *Session) Close() error {
	s.logger.WithField("host", s.cfg.Host).Info("closing connection")

	if s.conn != nil {
		_, _ = s.sendCommand("QUIT")
	}

	return s.logout()
}

// logout releases the control connection and resets the session state.
func (s *Session) logout() error {
	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
		s.reader = nil
	}
	s.loggedIn = false
	s.mode = ModeASCII
	s.workDir = ""
	s.logger.Info("user logged out")
	return err
}

// requireLogin returns a StateError when the session is not logged in.
func (s *Session) requireLogin(op string) error {
	if !s.loggedIn {
		return s.fail(&StateError{Op: op})
	}
	return nil
}

// Execute sends a raw command and returns the server's response. The status
// code is not interpreted; callers inspect Response.Code.
//
// Example:
//
//	resp, err := s.Execute("SITE CHMOD 755 script.sh")
func (s *Session) Execute(command string) (*Response, error) {
	if err := s.requireLogin("Execute"); err != nil {
		return nil, err
	}
	resp, err := s.sendCommand(command)
	if err != nil {
		return nil, s.fail(err)
	}
	return resp, nil
}

// ChangeWorkingDirectory changes the remote working directory with CWD and
// refreshes WorkingDir from PWD.
func (s *Session) ChangeWorkingDirectory(name string) error {
	if name == "" || name == "." {
		return s.fail(ErrInvalidDirectory)
	}
	if err := s.requireLogin("ChangeWorkingDirectory"); err != nil {
		return err
	}

	s.logger.WithField("dir", name).Info("changing working directory")
	if _, err := s.expectCode("CWD "+name, 250); err != nil {
		return err
	}

	return s.printWorkingDir()
}

// printWorkingDir issues PWD and stores the quoted path of the reply.
func (s *Session) printWorkingDir() error {
	resp, err := s.expectCode("PWD", 257)
	if err != nil {
		return err
	}

	dir, ok := quotedPath(resp.Message)
	if !ok {
		return s.fail(&ProtocolError{
			Command:  "PWD",
			Response: fmt.Sprintf("no quoted path in %q", resp.Message),
			Code:     resp.Code,
		})
	}

	s.workDir = dir
	s.logger.WithField("dir", dir).Info("current directory")
	return nil
}

// quotedPath extracts the text between the first pair of double quotes.
// Example: `"/home/user" is the current directory` returns "/home/user".
func quotedPath(msg string) (string, bool) {
	start := strings.IndexByte(msg, '"')
	if start == -1 {
		return "", false
	}
	end := strings.IndexByte(msg[start+1:], '"')
	if end == -1 {
		return "", false
	}
	return msg[start+1 : start+1+end], true
}

// SetTransferMode switches between ASCII and binary transfers. TYPE is only
// sent when the mode actually changes, and must be answered with 200.
func (s *Session) SetTransferMode(mode TransferMode) error {
	if err := s.requireLogin("SetTransferMode"); err != nil {
		return err
	}
	if s.mode == mode {
		return nil
	}

	cmd := "TYPE A"
	if mode == ModeBinary {
		cmd = "TYPE I"
	}
	if _, err := s.expectCode(cmd, 200); err != nil {
		return err
	}

	s.mode = mode
	return nil
}

// Size returns the size in bytes of a remote file using SIZE.
func (s *Session) Size(name string) (int64, error) {
	if err := s.requireLogin("Size"); err != nil {
		return 0, err
	}

	resp, err := s.expectCode("SIZE "+name, 213)
	if err != nil {
		return 0, err
	}

	size, err := strconv.ParseInt(strings.TrimSpace(resp.Message), 10, 64)
	if err != nil {
		return 0, s.fail(&ProtocolError{
			Command:  "SIZE",
			Response: fmt.Sprintf("invalid size %q", resp.Message),
			Code:     resp.Code,
		})
	}

	return size, nil
}
