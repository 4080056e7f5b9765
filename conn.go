package ftp

import (
	"net"
	"time"
)

// deadlineConn wraps a data connection and applies the session timeout.
// Writes always get a fresh deadline. Reads follow the receive policy: with
// DeadlineIdle every read gets a fresh deadline, with DeadlineTotal a single
// deadline is armed by startReceive and never moved.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
	policy  DeadlinePolicy
}

func (c *deadlineConn) startReceive() error {
	if c.timeout <= 0 || c.policy != DeadlineTotal {
		return nil
	}
	return c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
}

func (c *deadlineConn) Read(b []byte) (n int, err error) {
	if c.timeout > 0 && c.policy == DeadlineIdle {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (n int, err error) {
	if c.timeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
