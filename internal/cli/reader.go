package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// NonBlockingReader reads lines while respecting context cancellation.
// A canceled read leaves its goroutine blocked until the next line arrives;
// that line is then delivered to the following read.
type NonBlockingReader struct {
	reader  *bufio.Reader
	pending chan lineResult
	mu      sync.Mutex
}

type lineResult struct {
	err   error
	value string
}

// NewNonBlockingReader wraps reader.
func NewNonBlockingReader(reader io.Reader) *NonBlockingReader {
	if reader == nil {
		panic("reader cannot be nil")
	}
	return &NonBlockingReader{reader: bufio.NewReader(reader)}
}

// ReadLine reads a trimmed line. An unterminated final line is returned
// without error; io.EOF is returned once nothing is left.
func (r *NonBlockingReader) ReadLine(ctx context.Context) (string, error) {
	r.mu.Lock()
	ch := r.pending
	if ch == nil {
		ch = make(chan lineResult, 1)
		r.pending = ch
		go func() {
			value, err := r.reader.ReadString('\n')
			if err == io.EOF && value != "" {
				err = nil
			}
			ch <- lineResult{value: value, err: err}
		}()
	}
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-ch:
		r.mu.Lock()
		r.pending = nil
		r.mu.Unlock()
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(res.value), nil
	}
}
