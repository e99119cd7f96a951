// Package builder implements the single-threaded build control loop: it
// pulls admitted edges from a planner.Plan, hands their commands to a
// ports.ProcessHost, and reconciles each result back into the plan and the
// build log.
package builder

import (
	"context"
	"math"
	"os"
	"time"

	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"github.com/majak-build/majak/internal/buildlog"
	"github.com/majak-build/majak/internal/core/domain"
	"github.com/majak-build/majak/internal/core/ports"
	"github.com/majak-build/majak/internal/planner"
)

// statusRateWindow bounds how many recent finishes feed the %c "current
// rate" placeholder. -j ties naturally to this window in concept, but the
// builder never owns parallelism itself (the runner does), so a fixed
// window is used instead — smooth enough to be useful, small enough to
// react quickly.
const statusRateWindow = 8

var _ ports.BuildLogUser = (*Builder)(nil)

// Builder drives one build to completion or failure.
type Builder struct {
	state   *domain.State
	scanner *domain.Scanner
	plan    *planner.Plan
	disk    ports.Disk
	log     *buildlog.Log
	runner  ports.ProcessHost
	tracer  ports.Tracer
	logger  ports.Logger
	clock   ports.Clock
	cfg     Config
	status  *statusPrinter

	startTime time.Time
	started   int
	finished  int
	pending   int

	failuresRemaining    int
	initialFailureBudget int

	recentFinishes []time.Time
}

// New creates a Builder. plan must not yet have any targets added; call
// AddTargets before Build.
func New(
	state *domain.State,
	scanner *domain.Scanner,
	plan *planner.Plan,
	disk ports.Disk,
	log *buildlog.Log,
	host ports.ProcessHost,
	tracer ports.Tracer,
	logger ports.Logger,
	clock ports.Clock,
	cfg Config,
) *Builder {
	budget := cfg.KeepGoing
	if budget <= 0 {
		budget = math.MaxInt32
	}
	return &Builder{
		state:                state,
		scanner:              scanner,
		plan:                 plan,
		disk:                 disk,
		log:                  log,
		runner:               host,
		tracer:               tracer,
		logger:               logger,
		clock:                clock,
		cfg:                  cfg,
		status:               newStatusPrinter(os.Stdout, cfg.StatusFormat),
		failuresRemaining:    budget,
		initialFailureBudget: budget,
	}
}

// AddTargets recomputes dirtiness and plans every target, then reports the
// resulting output set to the tracer as one planning event.
func (b *Builder) AddTargets(ctx context.Context, targets []domain.NodeID) error {
	paths := make([]string, 0, len(targets))
	for _, t := range targets {
		if err := b.plan.AddTarget(t); err != nil {
			return err
		}
		paths = append(paths, b.state.Node(t).Path)
	}
	b.tracer.EmitPlan(ctx, paths)
	return nil
}

// IsPathDead implements ports.BuildLogUser: a path is dead once no node in
// the current graph both exists under it and is produced by an edge.
func (b *Builder) IsPathDead(path string) bool {
	id, ok := b.state.LookupNode(path)
	if !ok {
		return true
	}
	return b.state.Node(id).InEdge == domain.InvalidEdgeID
}

// Build runs the control loop until every wanted edge finishes, a failure
// budget is exhausted, or ctx is canceled.
func (b *Builder) Build(ctx context.Context) error {
	ctx, span := b.tracer.Start(ctx, "build")
	defer span.End()
	defer b.status.done()

	b.startTime = b.clock.Now()
	b.printStatus()

	for b.plan.HasPendingWork() {
		for b.failuresRemaining > 0 && ctx.Err() == nil && b.runner.CanRunMore() {
			id, ok := b.plan.PopReady()
			if !ok {
				break
			}
			if err := b.startEdge(ctx, id); err != nil {
				return err
			}
			b.printStatus()
		}

		if b.pending > 0 {
			res, ok := b.runner.WaitForCommand()
			if !ok {
				break
			}
			if res.Reason == ports.ExitInterrupted {
				b.cleanup()
				return domain.ErrInterrupted
			}
			if err := b.finishCommand(res); err != nil {
				return err
			}
			b.printStatus()
			continue
		}

		if ctx.Err() != nil {
			b.cleanup()
			return domain.ErrInterrupted
		}

		switch {
		case b.failuresRemaining == 0:
			return domain.ErrSubcommandFailed
		case b.failuresRemaining < b.initialFailureBudget:
			return domain.ErrCannotMakeProgress
		default:
			return domain.ErrStuck
		}
	}
	return nil
}

// startEdge creates the edge's output directories, materializes its
// rspfile if it has one, and asks the runner to start its command
// non-blocking.
func (b *Builder) startEdge(ctx context.Context, id domain.EdgeID) error {
	edge := b.state.Edge(id)

	for _, out := range edge.Outputs {
		if err := b.disk.MakeDirs(b.state.Node(out).Path); err != nil {
			return zerr.Wrap(err, "failed to create output directory")
		}
	}

	if rsp := edge.EvaluateBinding("rspfile"); rsp != "" {
		content := edge.EvaluateBinding("rspfile_content")
		if err := b.disk.WriteFile(rsp, []byte(content)); err != nil {
			return zerr.Wrap(err, "failed to write rspfile")
		}
	}

	command := edge.EvaluateCommand()
	switch {
	case b.cfg.Verbose:
		b.logger.Info(command)
	default:
		if desc := edge.EvaluateBinding("description"); desc != "" {
			b.logger.Info(desc)
		}
	}

	useConsole := edge.Pool != nil && edge.Pool.Name == domain.ConsolePoolName
	if err := b.runner.StartCommand(ctx, ports.EdgeHandle(id), command, useConsole); err != nil {
		return zerr.Wrap(err, "failed to start command")
	}
	b.started++
	b.pending++
	return nil
}

// finishCommand reconciles one completed subprocess back into the plan and
// build log.
func (b *Builder) finishCommand(res ports.CommandResult) error {
	id := domain.EdgeID(res.Edge)
	edge := b.state.Edge(id)

	b.pending--
	b.finished++
	b.recordFinish()

	displayOutput := res.Output
	var deps []string
	if edge.DepsType() == "msvc" {
		filtered, msvcDeps := filterMSVCDeps(res.Output, edge.EvaluateBinding("msvc_deps_prefix"))
		displayOutput = filtered
		deps = msvcDeps
	}
	if len(displayOutput) > 0 {
		b.logger.Info("command output", "edge", int(id), "output", string(displayOutput))
	}

	if res.Reason != ports.ExitSuccess {
		b.plan.EdgeFinished(id, false)
		b.failuresRemaining--
		b.logger.Error(domain.ErrSubcommandFailed, "command", edge.EvaluateCommand())
		return nil
	}

	if edge.DepsType() == "gcc" {
		gccDeps, err := b.readGCCDepfile(edge)
		if err != nil {
			return err
		}
		deps = gccDeps
	}

	restat := edge.Restat()
	var outputMtime int64
	for _, out := range edge.Outputs {
		n := b.state.Node(out)
		oldMtime := n.Mtime
		newMtime, err := b.disk.Stat(n.Path)
		if err != nil {
			return zerr.Wrap(err, "failed to stat build output")
		}
		n.Mtime = newMtime
		n.StatusKnown = true
		n.Dirty = false
		if newMtime > outputMtime {
			outputMtime = newMtime
		}
		if restat && newMtime == oldMtime {
			if err := b.plan.CleanNode(out); err != nil {
				return err
			}
		}
	}

	if rsp := edge.EvaluateBinding("rspfile"); rsp != "" && !b.cfg.KeepRsp {
		b.disk.RemoveFile(rsp)
	}

	primary := primaryOutputPath(b.state, edge)
	if err := b.log.RecordCommand(primary, edge.EvaluateCommand(), outputMtime); err != nil {
		return zerr.Wrap(err, "failed to record build log entry")
	}
	if deps != nil {
		if err := b.log.RecordDeps(primary, deps, outputMtime); err != nil {
			return zerr.Wrap(err, "failed to record deps entry")
		}
	}

	b.plan.EdgeFinished(id, true)
	return nil
}

// readGCCDepfile reads and parses the depfile a gcc-compatible compiler
// left behind, removing it afterward unless -d keepdepfile was requested.
func (b *Builder) readGCCDepfile(edge *domain.Edge) ([]string, error) {
	depfile := edge.EvaluateBinding("depfile")
	data, status, err := b.disk.ReadFile(depfile)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read depfile")
	}
	if status != ports.ReadOkay {
		return nil, zerr.With(domain.ErrDepsMissing, "depfile", depfile)
	}
	deps := parseGCCDepfile(data)
	if !b.cfg.KeepDepfile {
		b.disk.RemoveFile(depfile)
	}
	return deps, nil
}

// cleanup runs after an interrupt: it asks the runner to abort every child,
// then removes any output that either looks partially written or belongs
// to a deps-tracked edge, since its depfile may now be stale.
func (b *Builder) cleanup() {
	b.runner.Abort()

	var g errgroup.Group
	for _, handle := range b.runner.GetActiveEdges() {
		edge := b.state.Edge(domain.EdgeID(handle))
		hasDepfile := edge.EvaluateBinding("depfile") != ""
		for _, out := range edge.Outputs {
			n := b.state.Node(out)
			g.Go(func() error {
				if hasDepfile || b.outputChanged(n) {
					b.disk.RemoveFile(n.Path)
				}
				return nil
			})
		}
	}
	g.Wait() //nolint:errcheck // RemoveFile cleanup is best-effort; no error ever returned above
}

func (b *Builder) outputChanged(n *domain.Node) bool {
	newMtime, err := b.disk.Stat(n.Path)
	if err != nil {
		return false
	}
	return newMtime != n.Mtime
}

func (b *Builder) recordFinish() {
	b.recentFinishes = append(b.recentFinishes, b.clock.Now())
	if len(b.recentFinishes) > statusRateWindow {
		b.recentFinishes = b.recentFinishes[1:]
	}
}

func (b *Builder) currentRate() float64 {
	if len(b.recentFinishes) < 2 {
		return 0
	}
	span := b.recentFinishes[len(b.recentFinishes)-1].Sub(b.recentFinishes[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(b.recentFinishes)-1) / span
}

func (b *Builder) printStatus() {
	total := b.finished + b.plan.CommandEdges()
	elapsed := b.clock.Now().Sub(b.startTime).Seconds()

	percent := 0
	if total > 0 {
		percent = b.finished * 100 / total
	}
	overallRate := 0.0
	if elapsed > 0 {
		overallRate = float64(b.finished) / elapsed
	}

	b.status.print(snapshot{
		Started:     b.started,
		Total:       total,
		Running:     len(b.runner.GetActiveEdges()),
		Unstarted:   total - b.started,
		Finished:    b.finished,
		OverallRate: overallRate,
		CurrentRate: b.currentRate(),
		Percent:     percent,
		Elapsed:     elapsed,
	})
}

func primaryOutputPath(state *domain.State, e *domain.Edge) string {
	outs := e.ExplicitOutputs()
	if len(outs) == 0 {
		return ""
	}
	return state.Node(outs[0]).Path
}
