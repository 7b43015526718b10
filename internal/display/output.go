package display

import (
	"fmt"
	"io"
	"os"
)

// OpenOutput returns the writer the panel is drawn on. An empty path means
// stdout; anything else (a TTY such as /dev/tty1, or a file) is opened for
// writing.
func OpenOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("display output %q: %w", path, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
