package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/majak-build/majak/internal/core/ports"
)

// Real is the subprocess-backed ProcessHost. It runs each command through
// the shell (matching every edge's command binding being a shell
// command line, not an argv), capturing combined stdout+stderr into a
// per-process buffer unless the edge claims the console pool, in which case
// the child gets the controlling terminal and every other concurrent
// console edge is serialized behind consoleLock.
type Real struct {
	parallelism int
	maxLoad     float64
	env         []string

	consoleLock sync.Mutex
	// selfIsTTY caches whether majak's own stdout is already a terminal, so
	// a console-pool child can inherit it directly instead of going through
	// a pty when majak is itself being run interactively.
	selfIsTTY bool

	mu            sync.Mutex
	running       map[ports.EdgeHandle]context.CancelFunc
	finishedCount int

	results chan ports.CommandResult
}

// NewReal creates a Real host with the given parallelism (`-j`) and
// load-average cap (`-l`; 0 or negative disables the cap). env replaces
// PATH-prepended entries onto the process's own environment for every
// spawned command.
func NewReal(parallelism int, maxLoad float64, env []string) *Real {
	selfIsTTY := term.IsTerminal(int(os.Stdout.Fd()))
	return &Real{
		parallelism: parallelism,
		maxLoad:     maxLoad,
		env:         resolveEnvironment(os.Environ(), env),
		selfIsTTY:   selfIsTTY,
		running:     make(map[ports.EdgeHandle]context.CancelFunc),
		results:     make(chan ports.CommandResult, 64),
	}
}

// CanRunMore implements the admission rule: fewer than parallelism
// processes in flight (running or finished-but-unreaped), and either no
// load cap, nothing running yet, or the load average is under the cap.
func (r *Real) CanRunMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	inFlight := len(r.running) + r.finishedCount
	more := inFlight < r.parallelism
	load := len(r.running) == 0 || r.maxLoad <= 0 || loadAverage() < r.maxLoad
	return more && load
}

// StartCommand launches command via the shell, non-blocking; the result
// arrives later through WaitForCommand.
func (r *Real) StartCommand(ctx context.Context, edge ports.EdgeHandle, command string, useConsole bool) error {
	cctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cctx, "sh", "-c", command) //nolint:gosec // command is the manifest's own rule binding
	cmd.Env = r.env

	var buf bytes.Buffer
	var ptmx *os.File
	switch {
	case useConsole && r.selfIsTTY:
		// majak's own stdout is already the controlling terminal: let the
		// child inherit it directly rather than paying for a pty neither
		// side needs.
		r.consoleLock.Lock()
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Stdin = os.Stdin
	case useConsole:
		// majak's own output is redirected (piped, logged to a file), but
		// the console-pool command still wants a real terminal (for color,
		// progress bars, etc. that probe isatty themselves) — give it one.
		r.consoleLock.Lock()
	default:
		cmd.Stdout = &buf
		cmd.Stderr = &buf
	}

	if useConsole && !r.selfIsTTY {
		var err error
		ptmx, err = pty.Start(cmd)
		if err != nil {
			cancel()
			r.consoleLock.Unlock()
			return err
		}
		go io.Copy(os.Stdout, ptmx) //nolint:errcheck // best-effort passthrough; ptmx closing ends the copy
	} else if err := cmd.Start(); err != nil {
		cancel()
		if useConsole {
			r.consoleLock.Unlock()
		}
		return err
	}

	r.mu.Lock()
	r.running[edge] = cancel
	r.mu.Unlock()

	go func() {
		waitErr := cmd.Wait()
		if ptmx != nil {
			ptmx.Close()
		}
		if useConsole {
			r.consoleLock.Unlock()
		}

		reason := ports.ExitSuccess
		switch {
		case waitErr == nil:
			reason = ports.ExitSuccess
		case errors.Is(cctx.Err(), context.Canceled):
			reason = ports.ExitInterrupted
		default:
			reason = ports.ExitFailure
		}

		r.mu.Lock()
		delete(r.running, edge)
		r.finishedCount++
		r.mu.Unlock()

		r.results <- ports.CommandResult{Edge: edge, Reason: reason, Output: buf.Bytes()}
	}()

	return nil
}

// WaitForCommand blocks until a command finishes, returning ok=false at
// once when no command is running or waiting to be reaped.
func (r *Real) WaitForCommand() (ports.CommandResult, bool) {
	r.mu.Lock()
	idle := len(r.running) == 0 && r.finishedCount == 0
	r.mu.Unlock()
	if idle {
		return ports.CommandResult{}, false
	}
	res, ok := <-r.results
	if ok {
		r.mu.Lock()
		r.finishedCount--
		r.mu.Unlock()
	}
	return res, ok
}

// GetActiveEdges returns the edges with a subprocess currently running.
func (r *Real) GetActiveEdges() []ports.EdgeHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	edges := make([]ports.EdgeHandle, 0, len(r.running))
	for e := range r.running {
		edges = append(edges, e)
	}
	return edges
}

// Abort cancels every running child's context, which sends it SIGKILL via
// os/exec's context-cancellation contract.
func (r *Real) Abort() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.running))
	for _, cancel := range r.running {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
