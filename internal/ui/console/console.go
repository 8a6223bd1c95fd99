package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console asks the human on a terminal.
type Console struct {
	out io.Writer

	mu    sync.Mutex
	lines chan string
	errs  chan error
	err   error
}

// New starts reading lines from in. The reader goroutine ends at EOF.
func New(in io.Reader, out io.Writer) *Console {
	c := &Console{
		out:   out,
		lines: make(chan string),
		errs:  make(chan error, 1),
	}
	go c.read(bufio.NewScanner(in))
	return c
}

func (c *Console) read(scanner *bufio.Scanner) {
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.errs <- err
	close(c.lines)
}

// Ask prints prompt and waits for one line of input. Choices are typed, so
// the prompt text already names them.
func (c *Console) Ask(ctx context.Context, prompt string, _ ...string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.out, "\n%s\n> ", prompt); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}

	select {
	case line, ok := <-c.lines:
		if !ok {
			if c.err == nil {
				c.err = <-c.errs
			}
			return "", fmt.Errorf("read reply: %w", c.err)
		}
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
