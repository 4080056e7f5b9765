package ftp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeServer is a small in-memory FTP server speaking just the commands the
// client uses. Its knobs reproduce the server behaviors the client has to
// tolerate.
type fakeServer struct {
	ln   net.Listener
	opts fakeOptions

	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	received []string
}

// fakeOptions reproduce the server behaviors the client has to tolerate.
type fakeOptions struct {
	// greeting lines, the last one terminal
	greeting []string

	noRest bool
	noSize bool

	// missingText makes NLST of a missing path answer 150/226 with an error
	// text on the data connection instead of refusing with 550.
	missingText bool

	// pasvReply replaces the 227 reply text when set.
	pasvReply string

	// retrDelay is waited between the bytes sent for RETR.
	retrDelay time.Duration
}

func newFakeServer(t *testing.T, options ...func(*fakeOptions)) *fakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fs := &fakeServer{
		ln:    ln,
		opts:  fakeOptions{greeting: []string{"220 fake ftp ready"}},
		files: map[string][]byte{},
		dirs:  map[string]bool{"/": true},
	}
	for _, o := range options {
		o(&fs.opts)
	}

	go fs.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return fs
}

func (fs *fakeServer) config() Config {
	addr := fs.ln.Addr().(*net.TCPAddr)
	return Config{
		Host:     addr.IP.String(),
		Port:     addr.Port,
		Username: "demo",
		Password: "secret",
		Timeout:  2 * time.Second,
	}
}

// login returns a logged-in session that is closed when the test ends.
func (fs *fakeServer) login(t *testing.T, options ...Option) *Session {
	t.Helper()
	return fs.loginWith(t, fs.config(), options...)
}

func (fs *fakeServer) loginWith(t *testing.T, cfg Config, options ...Option) *Session {
	t.Helper()

	s, err := New(cfg, options...)
	require.NoError(t, err)
	require.NoError(t, s.Login())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func (fs *fakeServer) putFile(name string, content []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[name] = append([]byte(nil), content...)
}

func (fs *fakeServer) file(name string) ([]byte, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	b, ok := fs.files[name]
	return b, ok
}

func (fs *fakeServer) mkdir(name string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.dirs[name] = true
}

func (fs *fakeServer) isDir(name string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dirs[name]
}

// commands returns every command line received so far, across connections.
func (fs *fakeServer) commands() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.received...)
}

// count returns how many received commands start with prefix.
func (fs *fakeServer) count(prefix string) int {
	n := 0
	for _, c := range fs.commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (fs *fakeServer) serve() {
	for {
		conn, err := fs.ln.Accept()
		if err != nil {
			return
		}
		go fs.handle(conn)
	}
}

type fakeConn struct {
	*fakeServer
	tp *textproto.Conn

	loggedIn bool
	user     string
	cwd      string
	rest     int64
	rnfr     string
	pasv     net.Listener
}

func (fs *fakeServer) handle(conn net.Conn) {
	c := &fakeConn{fakeServer: fs, tp: textproto.NewConn(conn), cwd: "/"}
	defer c.tp.Close()
	defer c.closePasv()

	for _, line := range fs.opts.greeting {
		if err := c.tp.PrintfLine("%s", line); err != nil {
			return
		}
	}
	if !strings.HasPrefix(fs.opts.greeting[len(fs.opts.greeting)-1], "220") {
		return
	}

	for {
		line, err := c.tp.ReadLine()
		if err != nil {
			return
		}

		fs.mu.Lock()
		fs.received = append(fs.received, line)
		fs.mu.Unlock()

		cmd, arg, _ := strings.Cut(line, " ")
		if !c.dispatch(strings.ToUpper(cmd), arg) {
			return
		}
	}
}

func (c *fakeConn) reply(code int, format string, args ...any) {
	_ = c.tp.PrintfLine("%d %s", code, fmt.Sprintf(format, args...))
}

func (c *fakeConn) resolve(name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	return path.Join(c.cwd, name)
}

// dispatch handles one command and reports whether the session goes on.
func (c *fakeConn) dispatch(cmd, arg string) bool {
	// RNTO has to follow RNFR directly.
	if cmd != "RNFR" && cmd != "RNTO" {
		c.rnfr = ""
	}

	switch cmd {
	case "USER":
		if arg == "anonymous" {
			c.loggedIn = true
			c.reply(230, "Login successful.")
			return true
		}
		c.user = arg
		c.reply(331, "Please specify the password.")
		return true
	case "PASS":
		if c.user == "demo" && arg == "secret" {
			c.loggedIn = true
			c.reply(230, "Login successful.")
			return true
		}
		c.reply(530, "Login incorrect.")
		return true
	case "QUIT":
		c.reply(221, "Goodbye.")
		return false
	}

	if !c.loggedIn {
		c.reply(530, "Please login with USER and PASS.")
		return true
	}

	switch cmd {
	case "NOOP":
		c.reply(200, "NOOP ok.")
	case "PWD":
		c.reply(257, "%q is the current directory", c.cwd)
	case "CWD":
		p := c.resolve(arg)
		if !c.isDir(p) {
			c.reply(550, "Failed to change directory.")
			return true
		}
		c.cwd = p
		c.reply(250, "Directory successfully changed.")
	case "TYPE":
		c.reply(200, "Switching to %s mode.", arg)
	case "SIZE":
		if c.opts.noSize {
			c.reply(500, "Unknown command.")
			return true
		}
		b, ok := c.file(c.resolve(arg))
		if !ok {
			c.reply(550, "Could not get file size.")
			return true
		}
		c.reply(213, "%d", len(b))
	case "REST":
		if c.opts.noRest {
			c.reply(502, "REST not implemented.")
			return true
		}
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			c.reply(501, "Bad offset.")
			return true
		}
		c.rest = n
		c.reply(350, "Restart position accepted (%d).", n)
	case "PASV":
		c.passive()
	case "STOR":
		c.store(c.resolve(arg))
	case "RETR":
		c.retrieve(c.resolve(arg))
	case "NLST":
		c.nameList(arg)
	case "MKD":
		p := c.resolve(arg)
		_, isFile := c.file(p)
		if c.isDir(p) || isFile {
			c.reply(550, "Create directory operation failed.")
			return true
		}
		c.mkdir(p)
		c.reply(257, "%q created", p)
	case "DELE":
		p := c.resolve(arg)
		c.mu.Lock()
		_, ok := c.files[p]
		delete(c.files, p)
		c.mu.Unlock()
		if !ok {
			c.reply(550, "Delete operation failed.")
			return true
		}
		c.reply(250, "Delete operation successful.")
	case "RNFR":
		p := c.resolve(arg)
		if _, ok := c.file(p); !ok {
			c.reply(550, "RNFR command failed.")
			return true
		}
		c.rnfr = p
		c.reply(350, "Ready for RNTO.")
	case "RNTO":
		if c.rnfr == "" {
			c.reply(503, "RNFR required first.")
			return true
		}
		c.mu.Lock()
		c.files[c.resolve(arg)] = c.files[c.rnfr]
		delete(c.files, c.rnfr)
		c.mu.Unlock()
		c.rnfr = ""
		c.reply(250, "Rename successful.")
	default:
		c.reply(502, "Command not implemented.")
	}
	return true
}

func (c *fakeConn) passive() {
	c.closePasv()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		c.reply(425, "Cannot open passive connection.")
		return
	}
	c.pasv = ln

	if c.opts.pasvReply != "" {
		c.reply(227, "%s", c.opts.pasvReply)
		return
	}
	port := ln.Addr().(*net.TCPAddr).Port
	c.reply(227, "Entering Passive Mode (127,0,0,1,%d,%d).", port>>8, port&0xff)
}

func (c *fakeConn) closePasv() {
	if c.pasv != nil {
		_ = c.pasv.Close()
		c.pasv = nil
	}
}

func (c *fakeConn) acceptData() (net.Conn, error) {
	if c.pasv == nil {
		return nil, errors.New("no passive listener")
	}
	ln := c.pasv
	c.pasv = nil
	defer ln.Close()

	_ = ln.(*net.TCPListener).SetDeadline(time.Now().Add(2 * time.Second))
	return ln.Accept()
}

func (c *fakeConn) store(p string) {
	data, err := c.acceptData()
	if err != nil {
		c.reply(425, "Use PASV first.")
		return
	}
	c.reply(150, "Ok to send data.")

	payload, err := io.ReadAll(data)
	_ = data.Close()
	if err != nil {
		c.reply(426, "Failure reading network stream.")
		return
	}

	c.mu.Lock()
	existing := c.files[p]
	if c.rest > 0 && int64(len(existing)) >= c.rest {
		payload = append(append([]byte(nil), existing[:c.rest]...), payload...)
	}
	c.files[p] = payload
	c.mu.Unlock()

	c.rest = 0
	c.reply(226, "Transfer complete.")
}

func (c *fakeConn) retrieve(p string) {
	content, ok := c.file(p)
	if !ok {
		c.closePasv()
		c.rest = 0
		c.reply(550, "Failed to open file.")
		return
	}

	data, err := c.acceptData()
	if err != nil {
		c.reply(425, "Use PASV first.")
		return
	}
	c.reply(150, "Opening BINARY mode data connection for %s (%d bytes).", path.Base(p), len(content))

	off := min(c.rest, int64(len(content)))
	c.rest = 0

	err = c.writeData(data, content[off:])
	_ = data.Close()
	if err != nil {
		c.reply(426, "Failure writing network stream.")
		return
	}
	c.reply(226, "Transfer complete.")
}

func (c *fakeConn) writeData(data net.Conn, b []byte) error {
	if c.opts.retrDelay <= 0 {
		_, err := data.Write(b)
		return err
	}
	for i := range b {
		if _, err := data.Write(b[i : i+1]); err != nil {
			return err
		}
		time.Sleep(c.opts.retrDelay)
	}
	return nil
}

func (c *fakeConn) nameList(arg string) {
	names, ok := c.list(arg)
	if !ok && !c.opts.missingText {
		c.closePasv()
		c.reply(550, "No such file or directory.")
		return
	}

	data, err := c.acceptData()
	if err != nil {
		c.reply(425, "Use PASV first.")
		return
	}
	c.reply(150, "Here comes the directory listing.")

	if !ok {
		fmt.Fprintf(data, "ls: cannot access '%s': No such file or directory\r\n", arg)
	}
	for _, n := range names {
		fmt.Fprintf(data, "%s\r\n", n)
	}
	_ = data.Close()
	c.reply(226, "Directory send OK.")
}

// list resolves an NLST argument: the entries of a directory, the matches of
// a glob, or the argument itself when it names a file.
func (c *fakeConn) list(arg string) ([]string, bool) {
	if arg == "" {
		return c.children(c.cwd, "*"), true
	}

	p := c.resolve(arg)
	if strings.ContainsAny(path.Base(p), "*?[") {
		return c.children(path.Dir(p), path.Base(p)), true
	}
	if c.isDir(p) {
		return c.children(p, "*"), true
	}
	if _, ok := c.file(p); ok {
		return []string{arg}, true
	}
	return nil, false
}

func (c *fakeConn) children(dir, pattern string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var names []string
	add := func(p string) {
		if p == "/" || path.Dir(p) != dir {
			return
		}
		if ok, _ := path.Match(pattern, path.Base(p)); ok {
			names = append(names, path.Base(p))
		}
	}
	for p := range c.files {
		add(p)
	}
	for p := range c.dirs {
		add(p)
	}
	sort.Strings(names)
	return names
}
