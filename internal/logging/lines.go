package logging

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
)

// ForwardLines logs every line read from r at the given level until r
// reaches EOF or fails. It is meant for a child process's stdout and stderr
// pipes, so it runs on its own goroutine and never returns an error.
func ForwardLines(r io.Reader, logger *slog.Logger, level slog.Level, msg string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		logger.Log(context.Background(), level, msg, "line", line)
	}
	// Keep draining after an oversized line so the writer never blocks.
	_, _ = io.Copy(io.Discard, r)
}
