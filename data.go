package ftp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gonzalop/resumable-ftp/internal/ratelimit"
)

// parsePASV parses the message of a 227 reply and returns the data address.
// The payload between the first '(' and the first ')' must be exactly six
// comma separated integers h1,h2,h3,h4,p1,p2 with nothing else in it.
//
// Example: "Entering Passive Mode (127,0,0,1,19,136)"
// Returns: "127.0.0.1:5000" (19<<8 + 136 = 5000)
func parsePASV(msg string) (string, error) {
	malformed := func(reason string) error {
		return &ProtocolError{
			Command:  "PASV",
			Response: fmt.Sprintf("malformed PASV result (%s): %s", reason, msg),
			Code:     227,
		}
	}

	start := strings.IndexByte(msg, '(')
	end := strings.IndexByte(msg, ')')
	if start == -1 || end == -1 || end < start {
		return "", malformed("no parenthesized address")
	}

	payload := msg[start+1 : end]
	for _, ch := range payload {
		if ch != ',' && (ch < '0' || ch > '9') {
			return "", malformed(fmt.Sprintf("unexpected character %q", ch))
		}
	}

	parts := strings.Split(payload, ",")
	if len(parts) != 6 {
		return "", malformed(fmt.Sprintf("%d segments", len(parts)))
	}

	var seg [6]uint64
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return "", malformed(fmt.Sprintf("segment %d: %v", i, err))
		}
		seg[i] = v
	}

	host := fmt.Sprintf("%d.%d.%d.%d", seg[0], seg[1], seg[2], seg[3])
	port := seg[4]<<8 + seg[5]

	return net.JoinHostPort(host, strconv.FormatUint(port, 10)), nil
}

// openDataConn negotiates passive mode and connects the data connection.
// The caller owns the returned connection and must close it on every path.
func (s *Session) openDataConn() (*deadlineConn, error) {
	resp, err := s.expectCode("PASV", 227)
	if err != nil {
		return nil, err
	}

	addr, err := parsePASV(resp.Message)
	if err != nil {
		return nil, s.fail(err)
	}

	conn, err := s.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, s.fail(&ConnectionError{Op: "connect data", Addr: addr, Err: err})
	}

	s.logger.WithField("addr", addr).Debug("data connection open")

	return &deadlineConn{
		Conn:    conn,
		timeout: s.cfg.Timeout,
		policy:  s.deadline,
	}, nil
}

// receive copies the data connection into w until the server closes it or
// the receive deadline passes. Reaching the deadline ends the loop without an
// error; the completion reply then decides whether the transfer succeeded.
// localPath only labels errors and may be empty.
func (s *Session) receive(data *deadlineConn, w io.Writer, localPath string) (int64, error) {
	if err := data.startReceive(); err != nil {
		return 0, &ConnectionError{Op: "set data deadline", Err: err}
	}

	limiter := ratelimit.New(s.bandwidth)
	r := ratelimit.NewReader(data, limiter)
	buf := make([]byte, s.chunkSize)

	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, &LocalIOError{Op: "write", Path: localPath, Err: werr}
			}
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				s.logger.WithFields(logrus.Fields{
					"local": localPath,
					"bytes": total,
				}).Warn("receive deadline reached, transfer curtailed")
				return total, nil
			}
			return total, &ConnectionError{Op: "receive", Addr: data.RemoteAddr().String(), Err: err}
		}
		if n == 0 {
			return total, nil
		}
	}
}

// finishDataConn closes the data connection and reads the completion reply,
// which must be 226 or 250. streamErr is a failure that happened while the
// payload was moving; it is reported first.
func (s *Session) finishDataConn(data net.Conn, command string, streamErr error) error {
	var closeErr error
	if err := data.Close(); err != nil {
		closeErr = &ConnectionError{Op: "close data connection", Err: err}
	}

	var replyErr error
	resp, err := s.readReply(command)
	switch {
	case err != nil:
		replyErr = err
	case resp.Code != 226 && resp.Code != 250:
		replyErr = protocolError(command, resp)
	default:
		s.logger.WithField("code", resp.Code).Debug("ftp data transfer complete")
	}

	if err := joinErrors(streamErr, closeErr, replyErr); err != nil {
		return s.fail(err)
	}
	return nil
}

// startDataCommand sends a command that streams over data and requires a
// 125 or 150 preliminary reply. The data connection is closed on failure.
func (s *Session) startDataCommand(data net.Conn, cmd string) error {
	if _, err := s.expectCode(cmd, 125, 150); err != nil {
		data.Close()
		return err
	}
	return nil
}
