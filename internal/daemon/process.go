package daemon

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/drewfead/arcbox-desktop/internal/executil"
	"github.com/drewfead/arcbox-desktop/internal/logging"
)

// waitDelay bounds how long Wait keeps copying output after the daemon has
// exited, in case a grandchild still holds the pipes open.
const waitDelay = 2 * time.Second

// Process is a daemon started by the supervisor. Its stdout and stderr are
// forwarded to the structured logger line by line.
type Process struct {
	pid  int
	done chan struct{}

	readers sync.WaitGroup
	kill    func() error

	mu    sync.Mutex
	state *os.ProcessState
	err   error
}

func startProcess(path string, args []string, log *slog.Logger) (*Process, error) {
	cmd, err := executil.Command(path, args...)
	if err != nil {
		return nil, err
	}

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		outW.Close()
		errW.Close()
		return nil, err
	}

	p := &Process{
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
		kill: cmd.Process.Kill,
	}

	p.readers.Add(2)
	go func() {
		defer p.readers.Done()
		logging.ForwardLines(outR, log, slog.LevelDebug, "daemon stdout")
	}()
	go func() {
		defer p.readers.Done()
		logging.ForwardLines(errR, log, slog.LevelWarn, "daemon stderr")
	}()

	go func() {
		err := cmd.Wait()
		outW.Close()
		errW.Close()

		p.mu.Lock()
		p.state = cmd.ProcessState
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

// PID returns the operating system process ID.
func (p *Process) PID() int {
	return p.pid
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports, without blocking, whether the process has exited and if so
// how.
func (p *Process) Exited() (status string, exited bool) {
	select {
	case <-p.done:
	default:
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != nil {
		return p.state.String(), true
	}
	return fmt.Sprint(p.err), true
}

// Kill terminates the process and waits until it has been reaped and its
// output drained.
func (p *Process) Kill() {
	select {
	case <-p.done:
	default:
		_ = p.kill()
		<-p.done
	}
	p.readers.Wait()
}

// Wait blocks until the process exits and its output is drained.
func (p *Process) Wait() {
	<-p.done
	p.readers.Wait()
}
