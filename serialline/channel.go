// Package serialline wraps a byte stream (normally a serial port) as a
// line-delimited channel: a background read loop delivers complete lines
// to registered handlers, and writes are serialized under a lock.
package serialline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

var ErrClosed = errors.New("serial channel closed")

type LogFunc func(format string, args ...any)

// Port is the byte stream behind a channel.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens the named port at the given baud rate.
type Opener func(name string, baud int, readTimeout time.Duration) (Port, error)

type Config struct {
	Port        string
	Baud        int
	Newline     string
	ReadTimeout time.Duration
	Backoff     time.Duration
	MaxLine     int
}

type Channel struct {
	cfg    Config
	opener Opener
	logFn  LogFunc

	writeMu sync.Mutex

	mu       sync.Mutex
	port     Port
	handlers []func(string)
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(cfg Config, opener Opener, logFn LogFunc) *Channel {
	if cfg.Newline == "" {
		cfg.Newline = "\n"
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.MaxLine <= 0 {
		cfg.MaxLine = 4096
	}
	if opener == nil {
		opener = OpenSerial
	}
	if logFn == nil {
		logFn = log.Printf
	}
	return &Channel{cfg: cfg, opener: opener, logFn: logFn}
}

// OnLine registers a handler for every received line. Handlers run on the
// read loop goroutine and must not block for long.
func (c *Channel) OnLine(fn func(string)) {
	c.mu.Lock()
	c.handlers = append(c.handlers, fn)
	c.mu.Unlock()
}

// Open opens the port and starts the read loop. It is a no-op when the
// channel is already open.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	port, err := c.opener(c.cfg.Port, c.cfg.Baud, c.cfg.ReadTimeout)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.cfg.Port, err)
	}
	c.port = port
	c.stopChan = make(chan struct{})
	c.wg.Add(1)
	go c.readLoop(port, c.stopChan)
	c.logFn("serialline: opened %s at %d baud", c.cfg.Port, c.cfg.Baud)
	return nil
}

// Close stops the read loop and closes the port.
func (c *Channel) Close() error {
	c.mu.Lock()
	port := c.port
	if port == nil {
		c.mu.Unlock()
		return nil
	}
	c.port = nil
	close(c.stopChan)
	c.mu.Unlock()

	err := port.Close()
	c.wg.Wait()
	c.logFn("serialline: closed %s", c.cfg.Port)
	return err
}

func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port != nil
}

// Send writes data as-is. Concurrent senders never interleave.
func (c *Channel) Send(data []byte) error {
	c.mu.Lock()
	port := c.port
	c.mu.Unlock()
	if port == nil {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for len(data) > 0 {
		n, err := port.Write(data)
		if err != nil {
			return fmt.Errorf("write %s: %w", c.cfg.Port, err)
		}
		data = data[n:]
	}
	return nil
}

// WriteLine sends line followed by the configured terminator.
func (c *Channel) WriteLine(line string) error {
	return c.Send([]byte(line + c.cfg.Newline))
}

func (c *Channel) readLoop(port Port, stop <-chan struct{}) {
	defer c.wg.Done()

	sep := []byte(c.cfg.Newline)
	buf := make([]byte, 256)
	var pending []byte

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = c.dispatch(pending, sep)
		}
		if err == nil {
			continue
		}
		if isTimeout(err) {
			continue
		}

		select {
		case <-stop:
			return
		default:
		}
		c.logFn("serialline: read %s: %v", c.cfg.Port, err)
		select {
		case <-stop:
			return
		case <-time.After(c.cfg.Backoff):
		}
	}
}

// dispatch hands every complete line in pending to the handlers and
// returns the unterminated remainder.
func (c *Channel) dispatch(pending, sep []byte) []byte {
	for {
		i := bytes.Index(pending, sep)
		if i < 0 {
			break
		}
		line := string(bytes.TrimSpace(pending[:i]))
		pending = pending[i+len(sep):]
		if line != "" {
			c.deliver(line)
		}
	}
	if len(pending) > c.cfg.MaxLine {
		c.logFn("serialline: discarding %d bytes without terminator", len(pending))
		pending = pending[:0]
	}
	return pending
}

func (c *Channel) deliver(line string) {
	c.mu.Lock()
	handlers := make([]func(string), len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logFn("serialline: line handler panic: %v", r)
				}
			}()
			h(line)
		}()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
