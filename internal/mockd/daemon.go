// Package mockd is a stand-in for the container runtime daemon. It answers
// the health ping and serves the control protocol from an in-memory
// inventory, which is enough to drive the desktop client end to end.
package mockd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/drewfead/arcbox-desktop/internal/control"
	"github.com/drewfead/arcbox-desktop/internal/logging"
)

// APIVersion is reported in the ping response headers.
const APIVersion = "1.47"

// ShutdownTimeout bounds how long Run waits for in-flight requests.
const ShutdownTimeout = 5 * time.Second

// Options configures a mock daemon.
type Options struct {
	HealthSocket string
	DataDir      string

	// StartupDelay keeps the health ping failing for a while after Start,
	// like a daemon that is still booting.
	StartupDelay time.Duration

	LogHistory  int
	LogInterval time.Duration

	// Seed fills the inventory with sample entities.
	Seed bool
}

// RPCSocket is where the control server listens.
func (o Options) RPCSocket() string {
	return filepath.Join(o.DataDir, "arcbox.sock")
}

// Daemon serves the health socket and the control socket.
type Daemon struct {
	opts   Options
	store  *Store
	logs   LogGenerator
	server *control.Server
	health *http.Server
	log    *slog.Logger

	readyAt time.Time
	wg      sync.WaitGroup
}

// New creates a daemon. Nothing listens until Start.
func New(opts Options) *Daemon {
	if opts.LogHistory <= 0 {
		opts.LogHistory = 200
	}
	if opts.LogInterval <= 0 {
		opts.LogInterval = time.Second
	}

	d := &Daemon{
		opts:   opts,
		store:  NewStore(),
		logs:   LogGenerator{History: opts.LogHistory, Interval: opts.LogInterval},
		server: control.NewServer(opts.RPCSocket()),
		log:    logging.With("component", "mockd"),
	}
	if opts.Seed {
		d.store.Seed()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/_ping", d.handlePing)
	d.health = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	d.registerHandlers()
	return d
}

// Store exposes the inventory, mainly for tests.
func (d *Daemon) Store() *Store { return d.store }

// RPCSocket is the control socket path.
func (d *Daemon) RPCSocket() string { return d.opts.RPCSocket() }

// Start creates the data directory and begins serving both sockets.
func (d *Daemon) Start() error {
	if err := os.MkdirAll(d.opts.DataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := d.server.Start(); err != nil {
		return err
	}

	_ = os.Remove(d.opts.HealthSocket)
	ln, err := net.Listen("unix", d.opts.HealthSocket)
	if err != nil {
		d.server.Stop()
		return fmt.Errorf("listen on %s: %w", d.opts.HealthSocket, err)
	}
	_ = os.Chmod(d.opts.HealthSocket, 0700)

	d.readyAt = time.Now().Add(d.opts.StartupDelay)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.health.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("health server failed", "error", err)
		}
	}()

	d.log.Info("mock daemon listening", "health", d.opts.HealthSocket, "rpc", d.opts.RPCSocket())
	return nil
}

// Stop shuts both servers down and removes their sockets.
func (d *Daemon) Stop(ctx context.Context) error {
	err := d.health.Shutdown(ctx)
	d.server.Stop()
	d.wg.Wait()
	_ = os.Remove(d.opts.HealthSocket)
	return err
}

// Run serves until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	d.log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return d.Stop(stopCtx)
}

func (d *Daemon) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Api-Version", APIVersion)
	w.Header().Set("Ostype", "linux")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if time.Now().Before(d.readyAt) {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}
