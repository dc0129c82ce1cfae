package lumberjack

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client sends windows to a lumberjack server and waits for their acks.
type Client struct {
	conn     net.Conn
	compress bool
	timeout  time.Duration
}

// Dial connects to addr. A zero timeout disables deadlines.
func Dial(addr string, compress bool, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, compress: compress, timeout: timeout}, nil
}

func dialTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Send writes one window and blocks until the server acks its last event.
func (c *Client) Send(payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	frame, err := EncodeWindow(payloads, c.compress)
	if err != nil {
		return err
	}

	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("write window: %w", err)
	}

	want := uint32(len(payloads))
	for {
		seq, err := ReadAck(c.conn)
		if err != nil {
			return fmt.Errorf("read ack: %w", err)
		}
		if seq == want {
			return nil
		}
		// Partial acks only extend the deadline.
		if c.timeout > 0 {
			_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
		}
	}
}

// SendEvents marshals events to JSON and sends them as one window.
func (c *Client) SendEvents(events []map[string]any) error {
	payloads := make([][]byte, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		payloads = append(payloads, b)
	}
	return c.Send(payloads)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
