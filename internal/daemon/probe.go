package daemon

import (
	"context"
	"net"
	"strings"
	"time"

	dockerclient "github.com/docker/docker/client"
)

// pingRequest is the minimal HTTP request the raw probe writes.
const pingRequest = "GET /_ping HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n"

const (
	maxPingResponse = 1024
	readDeadline    = 2 * time.Second
)

// Prober answers whether the daemon is alive. A false answer covers every
// failure; probes never return errors.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) bool

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) bool { return f(ctx) }

// RawProber speaks just enough HTTP over the health socket to hit /_ping.
type RawProber struct {
	Socket  string
	Timeout time.Duration
}

// Probe dials the socket, sends the ping request and looks for "OK" in the
// first response bytes.
func (p RawProber) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = readDeadline
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "unix", p.Socket)
	if err != nil {
		return false
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(readDeadline)); err != nil {
		return false
	}
	if _, err := conn.Write([]byte(pingRequest)); err != nil {
		return false
	}

	buf := make([]byte, maxPingResponse)
	n, err := conn.Read(buf)
	if n == 0 && err != nil {
		return false
	}
	return strings.Contains(string(buf[:n]), "OK")
}

// EngineProber asks the same question through the Docker Engine API client,
// which also negotiates the API version.
type EngineProber struct {
	Socket  string
	Timeout time.Duration
}

// Probe pings the engine API on the health socket.
func (p EngineProber) Probe(ctx context.Context) bool {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.WithHost("unix://"+p.Socket),
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return false
	}
	defer cli.Close()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = readDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err = cli.Ping(ctx)
	return err == nil
}
