// Package app wires the manifest parser, planner, builder and command
// runner together into one build invocation, the way the CLI layer expects
// to call a single Run method.
package app

import (
	"context"
	"os"
	"runtime"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/zerr"

	"github.com/majak-build/majak/internal/adapters/disk"
	"github.com/majak-build/majak/internal/adapters/telemetry"
	"github.com/majak-build/majak/internal/builder"
	"github.com/majak-build/majak/internal/buildlog"
	"github.com/majak-build/majak/internal/core/domain"
	"github.com/majak-build/majak/internal/core/ports"
	"github.com/majak-build/majak/internal/parser"
	"github.com/majak-build/majak/internal/planner"
	"github.com/majak-build/majak/internal/runner"
)

// defaultManifest matches upstream ninja's default manifest name;
// defaultLogPath is majak's own log name, not ninja's ".ninja_log".
const (
	defaultManifest = "build.ninja"
	defaultLogPath  = ".majak_log"
)

// App is the composition root for one build run.
type App struct {
	logger ports.Logger
}

// New creates an App that logs through logger.
func New(logger ports.Logger) *App {
	return &App{logger: logger}
}

// RunOptions mirrors the CLI's flag surface (-C -j -k -l -n -v -d) onto one
// call.
type RunOptions struct {
	Dir          string
	ManifestFile string
	Parallelism  int
	KeepGoing    int
	MaxLoad      float64
	DryRun       bool
	Verbose      bool
	KeepDepfile  bool
	KeepRsp      bool
	StatusFormat string
	// DupeEdgeError promotes a duplicate-output edge to a parse error
	// instead of a warning (-w dupbuild=err).
	DupeEdgeError bool
	// PhonyCycleError promotes a phony self-cycle to a parse error instead
	// of a warning (-w phonycycle=err).
	PhonyCycleError bool
}

// Run parses the manifest, plans the named targets (or the manifest's own
// defaults when none are named), and builds them to completion or failure.
func (a *App) Run(ctx context.Context, targetNames []string, opts RunOptions) error {
	if opts.Dir != "" {
		if err := os.Chdir(opts.Dir); err != nil {
			return zerr.Wrap(err, "failed to change directory")
		}
	}

	manifest := opts.ManifestFile
	if manifest == "" {
		manifest = defaultManifest
	}
	src, err := os.ReadFile(manifest) //nolint:gosec // manifest path is operator-supplied via -C/-f, not attacker data
	if err != nil {
		return zerr.Wrap(err, "failed to read manifest")
	}

	parserOpts := parser.DefaultOptions()
	if opts.DupeEdgeError {
		parserOpts.DupeEdge = parser.DupeEdgeError
	}
	if opts.PhonyCycleError {
		parserOpts.PhonyCycle = parser.PhonyCycleError
	}

	state := domain.NewState()
	if err := parser.New(state, disk.FileLoader{}, parserOpts).ParseFile(manifest, src); err != nil {
		return err
	}

	d := disk.New()
	clock := clockwork.NewRealClock()

	buildLog, err := buildlog.Open(defaultLogPath, clock)
	if err != nil {
		return zerr.Wrap(err, "failed to open build log")
	}
	defer buildLog.Close() //nolint:errcheck // a close failure on exit does not change the build's outcome

	scanner := domain.NewScanner(state, disk.DomainView{Disk: d}, buildLog, xxhash.Sum64String)
	plan := planner.New(state, scanner)

	host := a.newHost(opts)
	tracer, shutdown := a.newTracer()
	defer shutdown(ctx)

	b := builder.New(state, scanner, plan, d, buildLog, host, tracer, a.logger, clock, builder.Config{
		KeepGoing:    opts.KeepGoing,
		Verbose:      opts.Verbose,
		KeepRsp:      opts.KeepRsp,
		KeepDepfile:  opts.KeepDepfile,
		StatusFormat: opts.StatusFormat,
	})

	if buildLog.NeedsRecompaction() {
		if err := buildLog.Recompact(b); err != nil {
			return zerr.Wrap(err, "failed to recompact build log")
		}
	}

	targets, err := resolveTargets(state, targetNames)
	if err != nil {
		return err
	}
	if err := b.AddTargets(ctx, targets); err != nil {
		return err
	}
	return b.Build(ctx)
}

func (a *App) newHost(opts RunOptions) ports.ProcessHost {
	if opts.DryRun {
		return runner.NewDryRun()
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = max(2, runtime.NumCPU()+2)
	}
	return runner.NewReal(parallelism, opts.MaxLoad, nil)
}

// newTracer wires an OTel tracer whose spans are forwarded to a.logger
// instead of a terminal UI, and returns the shutdown func the caller must
// defer.
func (a *App) newTracer() (ports.Tracer, func(context.Context)) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(telemetry.NewLogBridge(a.logger)))
	otel.SetTracerProvider(tp)
	return telemetry.NewOTelTracer("majak"), func(ctx context.Context) { _ = tp.Shutdown(ctx) }
}

// resolveTargets maps CLI-supplied target names onto graph nodes, falling
// back to the manifest's declared defaults and then to every root node
// (outputs nothing else depends on) when neither is present.
func resolveTargets(state *domain.State, names []string) ([]domain.NodeID, error) {
	if len(names) == 0 {
		if defaults := state.Defaults(); len(defaults) > 0 {
			return defaults, nil
		}
		return state.RootNodes(), nil
	}

	ids := make([]domain.NodeID, 0, len(names))
	for _, name := range names {
		canon, _, err := domain.CanonicalizePath(name)
		if err != nil {
			return nil, err
		}
		id, ok := state.LookupNode(canon)
		if !ok {
			return nil, zerr.With(domain.ErrUnknownTarget, "target", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
