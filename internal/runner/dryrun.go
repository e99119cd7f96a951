// Package runner implements the two ProcessHost variants a build can drive:
// DryRun, which reports every command as instantly successful, and Real,
// which executes commands as subprocesses.
package runner

import (
	"context"
	"sync"

	"github.com/majak-build/majak/internal/core/ports"
)

// DryRun implements ports.ProcessHost for -n builds: it never spawns a
// process, just echoes each started edge back as successful in start order.
type DryRun struct {
	mu    sync.Mutex
	queue []ports.EdgeHandle
}

// NewDryRun creates a DryRun host.
func NewDryRun() *DryRun {
	return &DryRun{}
}

// CanRunMore always reports true: nothing ever actually occupies a slot.
func (d *DryRun) CanRunMore() bool { return true }

// StartCommand enqueues edge for the next WaitForCommand call. command and
// useConsole are accepted but unused, since nothing is actually run.
func (d *DryRun) StartCommand(_ context.Context, edge ports.EdgeHandle, _ string, _ bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, edge)
	return nil
}

// WaitForCommand pops the oldest enqueued edge and reports it successful.
func (d *DryRun) WaitForCommand() (ports.CommandResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return ports.CommandResult{}, false
	}
	edge := d.queue[0]
	d.queue = d.queue[1:]
	return ports.CommandResult{Edge: edge, Reason: ports.ExitSuccess}, true
}

// GetActiveEdges always returns nil: no command is ever actually in flight.
func (d *DryRun) GetActiveEdges() []ports.EdgeHandle { return nil }

// Abort is a no-op; there is nothing running to interrupt.
func (d *DryRun) Abort() {}
