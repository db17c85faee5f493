package mockd

import (
	"context"
	"fmt"
	"time"

	"github.com/drewfead/arcbox-desktop/internal/control"
)

// LogGenerator fabricates container output. Every container has History
// lines of backlog; a followed running container produces a new line every
// Interval until the stream is cancelled.
type LogGenerator struct {
	History  int
	Interval time.Duration

	now func() time.Time
}

var paths = []string{"/", "/healthz", "/api/items", "/api/items/42", "/static/app.js", "/login"}

// entry returns line i of container c. Every seventh line goes to stderr and
// every twenty-fifth is a multi-line trace.
func (g LogGenerator) entry(c control.Container, i int) control.LogEntry {
	e := control.LogEntry{Stream: "stdout"}
	switch {
	case i%25 == 24:
		e.Stream = "stderr"
		e.Data = fmt.Sprintf("error: request %d failed\n  at handler (%s)\n  at serve (main.go:%d)\n", i, paths[i%len(paths)], 100+i%50)
	case i%7 == 6:
		e.Stream = "stderr"
		e.Data = fmt.Sprintf("warn: slow response on %s (%dms)\n", paths[i%len(paths)], 200+i%300)
	default:
		e.Data = fmt.Sprintf("%s: GET %s 200 %dms #%d\n", c.Name, paths[i%len(paths)], 1+i%40, i)
	}
	return e
}

func wanted(req control.LogsRequest, e control.LogEntry) bool {
	if e.Stream == "stderr" {
		return req.Stderr
	}
	return req.Stdout
}

// Stream sends the requested backlog and, when following a running
// container, live lines until ctx is done.
func (g LogGenerator) Stream(ctx context.Context, c control.Container, req control.LogsRequest, send func(any) error) error {
	now := time.Now
	if g.now != nil {
		now = g.now
	}
	interval := g.Interval
	if interval <= 0 {
		interval = time.Second
	}

	emit := func(i int, at time.Time) error {
		e := g.entry(c, i)
		if !wanted(req, e) {
			return nil
		}
		if req.Timestamps {
			e.Timestamp = at.UnixNano()
		}
		return send(e)
	}

	start := 0
	if req.Tail > 0 && req.Tail < g.History {
		start = g.History - req.Tail
	}
	base := now().Add(-time.Duration(g.History) * interval)
	for i := start; i < g.History; i++ {
		if err := emit(i, base.Add(time.Duration(i)*interval)); err != nil {
			return err
		}
	}

	if !req.Follow || !c.IsRunning() {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := g.History; ; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			if err := emit(i, t); err != nil {
				return err
			}
		}
	}
}
