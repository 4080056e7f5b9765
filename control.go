package ftp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Response represents an FTP server response.
type Response struct {
	// Code is the three-digit response code (e.g., 220, 550)
	Code int

	// Message is the text of the terminal line with the code and the
	// following space stripped (e.g., "Entering Passive Mode (127,0,0,1,19,136)")
	Message string

	// Lines contains all lines of the response (for multi-line responses)
	Lines []string
}

// Is1xx returns true if the response code is in the 1xx range (preliminary).
func (r *Response) Is1xx() bool {
	return r.Code >= 100 && r.Code < 200
}

// Is2xx returns true if the response code is in the 2xx range (success).
func (r *Response) Is2xx() bool {
	return r.Code >= 200 && r.Code < 300
}

// Is3xx returns true if the response code is in the 3xx range (intermediate).
func (r *Response) Is3xx() bool {
	return r.Code >= 300 && r.Code < 400
}

// Is4xx returns true if the response code is in the 4xx range (temporary failure).
func (r *Response) Is4xx() bool {
	return r.Code >= 400 && r.Code < 500
}

// Is5xx returns true if the response code is in the 5xx range (permanent failure).
func (r *Response) Is5xx() bool {
	return r.Code >= 500 && r.Code < 600
}

// String returns the full response as a string.
func (r *Response) String() string {
	return strings.Join(r.Lines, "\n")
}

// maxLineLength caps a single reply line, terminator included.
const maxLineLength = 64 * 1024

// readResponse reads one logical FTP response from the reader.
//
// Single-line format: "220 Welcome\r\n"
// Multi-line format:
//
//	"150-Starting\r\n"
//	"150 Opening data connection\r\n"
//
// Lines are scanned as they arrive. A response whose first line is not
// terminal ends at the first line made of the opening code followed by a
// space, or the bare opening code. Every other line is a continuation, even
// one that starts with a different code and a space ("100 users online").
// echo, if non-nil, receives every line of the response.
func readResponse(r *bufio.Reader, echo func(line string)) (*Response, error) {
	var lines []string
	var code string
	for {
		line, err := readLine(r)
		if err != nil {
			if err == io.EOF {
				if line == "" && len(lines) == 0 {
					return nil, io.EOF
				}
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")
		if len(lines) == 0 {
			if !hasCode(line) {
				return nil, &ProtocolError{Response: fmt.Sprintf("malformed response %q", line)}
			}
			code = line[:3]
		}

		lines = append(lines, line)
		if echo != nil {
			echo(line)
		}

		if isTerminal(line, code) {
			break
		}
	}

	n, err := strconv.ParseUint(code, 10, 16)
	if err != nil {
		return nil, &ProtocolError{Response: fmt.Sprintf("malformed response code %q", code)}
	}

	last := lines[len(lines)-1]
	msg := ""
	if len(last) > 4 {
		msg = last[4:]
	}

	return &Response{
		Code:    int(n),
		Message: msg,
		Lines:   lines,
	}, nil
}

// readLine returns the next line including its terminator, or the partial
// line with the read error. Lines longer than maxLineLength are a
// ProtocolError.
func readLine(r *bufio.Reader) (string, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(buf)+len(chunk) > maxLineLength {
			return "", &ProtocolError{Response: fmt.Sprintf("response line exceeds %d bytes", maxLineLength)}
		}
		buf = append(buf, chunk...)
		if err == bufio.ErrBufferFull {
			continue
		}
		return string(buf), err
	}
}

func hasCode(line string) bool {
	if len(line) < 3 {
		return false
	}
	for i := range 3 {
		if line[i] < '0' || line[i] > '9' {
			return false
		}
	}
	return true
}

// isTerminal reports whether line closes a response opened with code:
// "<code> text" or a bare "<code>".
func isTerminal(line, code string) bool {
	if !strings.HasPrefix(line, code) {
		return false
	}
	return len(line) == 3 || line[3] == ' '
}

// maskCommand hides the argument of PASS before a command is logged.
func maskCommand(cmd string) string {
	if len(cmd) > 5 && strings.EqualFold(cmd[:5], "PASS ") {
		return cmd[:5] + "****"
	}
	return cmd
}

// sendCommand writes cmd followed by CRLF and reads exactly one response.
func (s *Session) sendCommand(cmd string) (*Response, error) {
	if s.conn == nil {
		return nil, &ConnectionError{Op: "send " + verb(cmd), Err: errNotConnected}
	}

	if s.cfg.Verbose {
		s.logger.Info(maskCommand(cmd))
	} else {
		s.logger.WithField("cmd", maskCommand(cmd)).Debug("ftp command")
	}

	if s.cfg.Timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
			return nil, &ConnectionError{Op: "set write deadline", Addr: s.addr, Err: err}
		}
	}

	if _, err := fmt.Fprintf(s.conn, "%s\r\n", cmd); err != nil {
		return nil, &ConnectionError{Op: "send " + verb(cmd), Addr: s.addr, Err: err}
	}

	return s.readReply(verb(cmd))
}

// readReply reads one response from the control connection without sending
// anything first. It is used for the greeting and for transfer completion.
func (s *Session) readReply(command string) (*Response, error) {
	if s.conn == nil {
		return nil, &ConnectionError{Op: "read reply", Err: errNotConnected}
	}

	if s.cfg.Timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
			return nil, &ConnectionError{Op: "set read deadline", Addr: s.addr, Err: err}
		}
	}

	var echo func(string)
	if s.cfg.Verbose {
		echo = func(line string) { s.logger.Info(line) }
	}

	resp, err := readResponse(s.reader, echo)
	if err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) {
			pe.Command = command
			return nil, pe
		}
		return nil, &ConnectionError{Op: "read reply to " + command, Addr: s.addr, Err: err}
	}

	if !s.cfg.Verbose {
		s.logger.WithFields(logrus.Fields{
			"code":    resp.Code,
			"message": resp.Message,
		}).Debug("ftp response")
	}

	return resp, nil
}

// expectCode sends a command and verifies the response code is one of codes.
// The response is returned even when the code doesn't match.
func (s *Session) expectCode(cmd string, codes ...int) (*Response, error) {
	resp, err := s.sendCommand(cmd)
	if err != nil {
		return nil, s.fail(err)
	}

	if !hasAnyCode(resp, codes...) {
		return resp, s.fail(protocolError(verb(cmd), resp))
	}

	return resp, nil
}

func hasAnyCode(resp *Response, codes ...int) bool {
	for _, c := range codes {
		if resp.Code == c {
			return true
		}
	}
	return false
}

// verb returns the command name without its arguments.
func verb(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		return cmd[:i]
	}
	return cmd
}

// fail logs err to the event sink and returns it.
func (s *Session) fail(err error) error {
	entry := s.logger.WithError(err)
	var pe *ProtocolError
	if errors.As(err, &pe) {
		entry = entry.WithFields(logrus.Fields{
			"command": pe.Command,
			"code":    pe.Code,
		})
	}
	entry.Error("ftp operation failed")
	return err
}
