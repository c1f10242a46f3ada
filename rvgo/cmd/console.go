package cmd

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

const escapeByte = 0x01 // Ctrl-A

// Console connects the host terminal to the guest UART. Reads happen on a
// separate goroutine; the run loop drains them between steps with Poll.
type Console struct {
	in       chan []byte
	closed   chan struct{}
	oldState *term.State
	fd       int

	escape bool
	quit   bool
}

// OpenConsole puts stdin into raw mode if it is a terminal and starts reading it.
func OpenConsole() (*Console, error) {
	c := &Console{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
		fd:     int(os.Stdin.Fd()),
	}
	if term.IsTerminal(c.fd) {
		st, err := term.MakeRaw(c.fd)
		if err != nil {
			return nil, fmt.Errorf("enable raw mode: %w", err)
		}
		c.oldState = st
	}
	go c.read(os.Stdin)
	return c, nil
}

func (c *Console) read(r io.Reader) {
	for {
		buf := make([]byte, 256)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case c.in <- buf[:n]:
			case <-c.closed:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Poll returns pending host input with the Ctrl-A escape sequences removed.
// It never blocks.
func (c *Console) Poll() []byte {
	var out []byte
	for {
		select {
		case b := <-c.in:
			out = c.filter(out, b)
		default:
			return out
		}
	}
}

func (c *Console) filter(out, in []byte) []byte {
	for _, b := range in {
		if c.escape {
			c.escape = false
			switch b {
			case 'x', 'X':
				c.quit = true
			case escapeByte:
				out = append(out, escapeByte)
			}
			continue
		}
		if b == escapeByte {
			c.escape = true
			continue
		}
		out = append(out, b)
	}
	return out
}

// Quit reports whether the user typed Ctrl-A x.
func (c *Console) Quit() bool {
	return c.quit
}

// Write translates bare LF into CRLF, the terminal being in raw mode.
func (c *Console) Write(b []byte) (int, error) {
	if c.oldState == nil {
		return os.Stdout.Write(b)
	}
	for _, x := range b {
		var err error
		if x == '\n' {
			_, err = os.Stdout.Write([]byte{'\r', '\n'})
		} else {
			_, err = os.Stdout.Write([]byte{x})
		}
		if err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

func (c *Console) Close() error {
	close(c.closed)
	if c.oldState != nil {
		return term.Restore(c.fd, c.oldState)
	}
	return nil
}
