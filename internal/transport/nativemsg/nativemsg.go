// Package nativemsg implements the length-prefixed framing used on the
// secondary channel: a 4-byte little-endian length followed by that many
// bytes of JSON.
package nativemsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// DefaultMaxFrameSize bounds a single message.
const DefaultMaxFrameSize = 1 << 20

var (
	ErrFrameTooLarge = errors.New("nativemsg: frame exceeds maximum size")
	ErrEmptyFrame    = errors.New("nativemsg: empty frame")
	ErrClosed        = errors.New("nativemsg: connection closed")
)

// WriteFrame writes one framed message.
func WriteFrame(w io.Writer, body []byte, max int) error {
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	if len(body) == 0 {
		return ErrEmptyFrame
	}
	if len(body) > max {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(body), max)
	}
	buf := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one framed message. A truncated frame yields
// io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	if uint64(n) > uint64(max) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
	}
	body := make([]byte, int(n))
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// Conn is a framed message stream over a reader/writer pair. Any read error
// is fatal: once ReadMessage fails, every later call returns the same error.
type Conn struct {
	r   io.Reader
	w   io.Writer
	max int

	writeMu sync.Mutex
	readMu  sync.Mutex
	readErr error

	closeOnce sync.Once
	closers   []io.Closer
	wait      func() error
}

// NewConn frames messages over r and w. Closers are closed by Close, in order.
func NewConn(r io.Reader, w io.Writer, max int, closers ...io.Closer) *Conn {
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	return &Conn{r: r, w: w, max: max, closers: closers}
}

// Spawn starts a host process and frames messages over its stdio.
func Spawn(cmd *exec.Cmd, max int) (*Conn, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("host stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("host stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start host %s: %w", cmd.Path, err)
	}
	c := NewConn(stdout, stdin, max, stdin)
	c.wait = cmd.Wait
	return c, nil
}

// ReadMessage returns the next frame body.
func (c *Conn) ReadMessage() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	body, err := ReadFrame(c.r, c.max)
	if err != nil {
		c.readErr = err
		return nil, err
	}
	return body, nil
}

// WriteMessage sends body as one frame. Safe for concurrent use.
func (c *Conn) WriteMessage(body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.w, body, c.max)
}

// Close releases the stream and, for spawned hosts, reaps the process.
func (c *Conn) Close() error {
	var first error
	c.closeOnce.Do(func() {
		for _, cl := range c.closers {
			if err := cl.Close(); err != nil && first == nil {
				first = err
			}
		}
		if c.wait != nil {
			_ = c.wait()
		}
	})
	return first
}
