package domain

import "go.trai.ch/zerr"

var (
	// ErrEmptyPath is returned when canonicalizing an empty path string.
	ErrEmptyPath = zerr.New("empty path")

	// ErrTooManyComponents is returned when a path has more than 60
	// separators, which would overflow the slash_bits mask.
	ErrTooManyComponents = zerr.New("too many path components")

	// ErrDuplicatePool is returned when a pool is declared twice in one scope.
	ErrDuplicatePool = zerr.New("duplicate pool")

	// ErrDuplicateRule is returned when a rule is declared twice in one scope.
	ErrDuplicateRule = zerr.New("duplicate rule")

	// ErrUnknownPool is returned when a build edge references an undeclared pool.
	ErrUnknownPool = zerr.New("unknown pool")

	// ErrUnknownRule is returned when a build edge references an undeclared rule.
	ErrUnknownRule = zerr.New("unknown rule")

	// ErrDuplicateOutput is returned (under the "err" policy) when more than
	// one edge produces the same output.
	ErrDuplicateOutput = zerr.New("multiple edges produce the same output")

	// ErrPhonySelfCycle is returned (under the "err" policy) when a phony
	// edge lists one of its own outputs as an input.
	ErrPhonySelfCycle = zerr.New("phony edge depends on itself")

	// ErrMultipleOutputsWithDeps is returned when a rule binds deps and the
	// edge does not have exactly one explicit output; implicit outputs are
	// allowed alongside it.
	ErrMultipleOutputsWithDeps = zerr.New("deps binding requires exactly one explicit output")

	// ErrRspfileMismatch is returned when only one of rspfile/rspfile_content is set.
	ErrRspfileMismatch = zerr.New("rspfile and rspfile_content must both be set or both absent")

	// ErrEmptyCommand is returned when a rule's command binding is empty.
	ErrEmptyCommand = zerr.New("rule command is empty")

	// ErrUnsupportedVersion is returned when ninja_required_version names a
	// version newer than this implementation supports.
	ErrUnsupportedVersion = zerr.New("manifest requires a newer version")

	// ErrReservedBinding is returned when a rule declares an unknown/unreserved binding name.
	ErrReservedBinding = zerr.New("unknown rule binding")

	// ErrTabIndent is returned when a line is indented with a tab.
	ErrTabIndent = zerr.New("tabs are not allowed for indentation")

	// ErrUnexpectedToken is a generic parse error carrying line/column metadata.
	ErrUnexpectedToken = zerr.New("unexpected token")

	// ErrCycleDetected is returned when RecomputeDirty finds a cycle in the graph.
	ErrCycleDetected = zerr.New("dependency cycle detected")

	// ErrUnknownTarget is returned when a requested build target has no node.
	ErrUnknownTarget = zerr.New("unknown target")

	// ErrNodeAlreadyHasProducer is returned by AddOut when a node already has
	// a producing edge (the at-most-one-in_edge invariant).
	ErrNodeAlreadyHasProducer = zerr.New("node already has a producing edge")

	// ErrDepsMissing is returned when deps=gcc|msvc but no deps log entry exists.
	ErrDepsMissing = zerr.New("dynamic dependencies missing")

	// ErrCorruptRecord names a build log record that fails verification.
	// internal/buildlog does not return it: loading truncates the log at the
	// first short or unverifiable record instead.
	ErrCorruptRecord = zerr.New("corrupt build log record")

	// ErrRecordTooLarge is returned when a record exceeds the writer's size cap.
	ErrRecordTooLarge = zerr.New("build log record exceeds size cap")

	// ErrInterrupted is returned by the builder when the build's context is
	// canceled (SIGINT/CTRL_C) or the process host reports a command as
	// interrupted. It is the only error with a dedicated process exit code.
	ErrInterrupted = zerr.New("interrupted by user")

	// ErrSubcommandFailed is returned by the builder when one or more edges'
	// subprocesses exited non-zero and the failure budget was exhausted.
	ErrSubcommandFailed = zerr.New("subcommand(s) failed")

	// ErrStuck is returned if the build loop can neither start nor reap work
	// while edges remain wanted; this indicates a planner bug.
	ErrStuck = zerr.New("stuck: no work to start or reap")

	// ErrCannotMakeProgress is returned when earlier failures under -k have
	// left remaining wanted edges permanently unstartable.
	ErrCannotMakeProgress = zerr.New("cannot make progress due to previous errors")
)
