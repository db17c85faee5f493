package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// runStartup is the background half of Start. It never touches supervisor
// state; everything it learns comes back as the Outcome.
func (s *Supervisor) runStartup(ctx context.Context) (Outcome, error) {
	bin, err := s.locator.Locate()
	if err != nil {
		s.log.Warn("daemon binary not found", "name", s.opts.Binary)
		return failed(ReasonBinaryNotFound), nil
	}
	s.log.Info("found daemon binary", "path", bin)

	if err := os.MkdirAll(s.opts.DataDir, 0700); err != nil {
		return failed(fmt.Sprintf("Failed to create data dir: %v", err)), nil
	}

	if s.prober.Probe(ctx) {
		s.log.Info("daemon already running", "socket", s.opts.HealthSocket)
		return Outcome{Kind: AlreadyRunning}, nil
	}

	for _, sock := range []string{s.opts.HealthSocket, s.opts.RPCSocket} {
		if err := os.Remove(sock); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("failed to remove stale socket", "path", sock, "error", err)
		}
	}

	args := []string{"daemon", "--socket", s.opts.HealthSocket, "--data-dir", s.opts.DataDir, "--foreground"}
	proc, err := startProcess(bin, args, s.log)
	if err != nil {
		return failed(fmt.Sprintf("Failed to spawn daemon: %v", err)), nil
	}
	s.log.Info("daemon spawned", "pid", proc.PID())

	return s.waitHealthy(ctx, proc), nil
}

// waitHealthy polls until the daemon answers, exits, or runs out of time.
// A process that does not make it to healthy is killed, except when it
// already exited on its own.
func (s *Supervisor) waitHealthy(ctx context.Context, proc *Process) Outcome {
	start := time.Now()
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		if s.prober.Probe(ctx) {
			if ctx.Err() != nil {
				s.log.Info("startup abandoned, killing daemon", "pid", proc.PID())
				proc.Kill()
				return failed("Daemon startup cancelled")
			}
			s.log.Info("daemon is ready", "pid", proc.PID(), "elapsed", time.Since(start))
			return Outcome{Kind: Spawned, Process: proc}
		}

		if status, exited := proc.Exited(); exited {
			proc.Wait()
			return failed("Daemon exited with: " + status)
		}

		if time.Since(start) > s.opts.StartupTimeout {
			proc.Kill()
			return failed(ReasonStartupTimeout)
		}

		select {
		case <-ctx.Done():
			s.log.Info("startup abandoned, killing daemon", "pid", proc.PID())
			proc.Kill()
			return failed("Daemon startup cancelled")
		case <-ticker.C:
		}
	}
}
