package buildlog

import (
	"bufio"
	"encoding/binary"
	"os"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"

	"github.com/majak-build/majak/internal/core/domain"
	"github.com/majak-build/majak/internal/core/ports"
)

type pathRecord struct {
	path string
	id   int32
}

type buildRecord struct {
	commandHash uint64
	mtime       int64 // restat mtime recorded alongside the hash
}

type depsRecord struct {
	inputs []string
	mtime  int64
}

// Log is the on-disk build log: a dense path-id table plus, per output, the
// most recent command-hash/restat record and the most recent deps record.
// It satisfies domain.DepsLog directly.
type Log struct {
	path string
	f    *os.File
	w    *bufio.Writer
	now  func() int64

	ids       map[string]int32
	idsByPos  []string // position = id
	builds    map[string]buildRecord
	deps      map[string][]string
	depsMtime map[string]int64

	totalCommands  int
	uniqueCommands map[string]struct{}
	totalDeps      int
	uniqueDeps     map[string]struct{}
}

// Open loads path (migrating a legacy plain-text log if found) and returns
// a Log ready to append to. clock supplies the StartTime/EndTime stamped on
// every BuildEntry the Log appends.
func Open(path string, clock ports.Clock) (*Log, error) {
	l := &Log{
		path:           path,
		ids:            make(map[string]int32),
		builds:         make(map[string]buildRecord),
		deps:           make(map[string][]string),
		depsMtime:      make(map[string]int64),
		uniqueCommands: make(map[string]struct{}),
		uniqueDeps:     make(map[string]struct{}),
		now:            func() int64 { return clock.Now().Unix() },
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied, not attacker data
	migrated := false
	switch {
	case err == nil:
		if isLegacyFormat(data) {
			if err := migrateLegacy(l, data); err != nil {
				return nil, err
			}
			migrated = true
		} else if err := l.loadBinary(data); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// no log yet: fresh Log, nothing to load
	default:
		return nil, zerr.Wrap(err, "failed to read build log")
	}

	if migrated {
		// The legacy file is plain text; rewrite it in the current binary
		// schema rather than appending binary records onto a text file.
		if err := l.writeCompactedAndOpen(); err != nil {
			return nil, err
		}
		return l, nil
	}

	if err := l.openForAppend(); err != nil {
		return nil, err
	}
	if len(l.idsByPos) == 0 {
		if err := l.writeVersion(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// writeCompactedAndOpen rewrites the log in the current binary schema and
// reopens it for append, used right after a legacy-format migration.
func (l *Log) writeCompactedAndOpen() error {
	tmpPath := l.path + ".recompact"
	if err := l.writeCompacted(tmpPath, nil); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return zerr.Wrap(err, "failed to rename migrated build log into place")
	}
	return l.openForAppend()
}

func (l *Log) openForAppend() error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // build log is not a secret
	if err != nil {
		return zerr.Wrap(err, "failed to open build log for append")
	}
	l.f = f
	l.w = bufio.NewWriter(f)
	return nil
}

func (l *Log) writeVersion() error {
	return l.writeRecord(encodeVersion(VersionEntry{Version: CurrentVersion}))
}

func (l *Log) writeRecord(payload []byte) error {
	if len(payload) > maxRecordSize {
		return zerr.With(domain.ErrRecordTooLarge, "size", len(payload))
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := l.w.Write(lenBuf[:]); err != nil {
		return zerr.Wrap(err, "failed to write build log record length")
	}
	if _, err := l.w.Write(payload); err != nil {
		return zerr.Wrap(err, "failed to write build log record")
	}
	// Flush after every record: bounds a partial write (crash, disk full)
	// to at most the one record in flight.
	return zerr.Wrap(l.w.Flush(), "failed to flush build log")
}

// internPath returns path's dense id, writing a PathEntry record the first
// time a path is seen so DepsEntry's id references resolve on reload.
func (l *Log) internPath(path string) (int32, error) {
	if id, ok := l.ids[path]; ok {
		return id, nil
	}
	id := int32(len(l.idsByPos)) //nolint:gosec // path counts stay well within int32 range in practice
	checksum := ^uint32(id)      //nolint:gosec // id is non-negative by construction
	if err := l.writeRecord(encodePath(PathEntry{Path: path, Checksum: checksum})); err != nil {
		return 0, err
	}
	l.ids[path] = id
	l.idsByPos = append(l.idsByPos, path)
	return id, nil
}

// RecordCommand appends a BuildEntry for output, hashing command with
// xxhash, and updates the in-memory index used for CommandHash lookups.
func (l *Log) RecordCommand(output, command string, mtime int64) error {
	hash := xxhash.Sum64String(command)
	if _, err := l.internPath(output); err != nil {
		return err
	}
	start := l.now()
	if err := l.writeRecord(encodeBuild(BuildEntry{
		Output:      output,
		CommandHash: hash,
		StartTime:   int32(start), //nolint:gosec // wall-clock seconds fit int32 until year 2038, matching upstream's format
		EndTime:     int32(start), //nolint:gosec // see above
		Mtime:       mtime,
	})); err != nil {
		return err
	}
	l.builds[output] = buildRecord{commandHash: hash, mtime: mtime}
	l.totalCommands++
	l.uniqueCommands[output] = struct{}{}
	return nil
}

// RecordDeps appends a DepsEntry mapping output to inputs, interning any
// path not already known.
func (l *Log) RecordDeps(output string, inputs []string, mtime int64) error {
	outID, err := l.internPath(output)
	if err != nil {
		return err
	}
	inIDs := make([]int32, len(inputs))
	for i, in := range inputs {
		id, err := l.internPath(in)
		if err != nil {
			return err
		}
		inIDs[i] = id
	}
	if err := l.writeRecord(encodeDeps(DepsEntry{Output: outID, Mtime: mtime, Deps: inIDs})); err != nil {
		return err
	}
	l.deps[output] = inputs
	l.depsMtime[output] = mtime
	l.totalDeps++
	l.uniqueDeps[output] = struct{}{}
	return nil
}

// CommandHash implements domain.DepsLog.
func (l *Log) CommandHash(output string) (hash uint64, restatMtime int64, ok bool) {
	r, ok := l.builds[output]
	return r.commandHash, r.mtime, ok
}

// Deps implements domain.DepsLog.
func (l *Log) Deps(output string) (inputs []string, mtime int64, ok bool) {
	in, ok := l.deps[output]
	return in, l.depsMtime[output], ok
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	if l.w != nil {
		if err := l.w.Flush(); err != nil {
			_ = l.f.Close()
			return zerr.Wrap(err, "failed to flush build log on close")
		}
	}
	if l.f != nil {
		return zerr.Wrap(l.f.Close(), "failed to close build log")
	}
	return nil
}

// NeedsRecompaction reports whether either total/unique ratio exceeds 3x
// past its absolute floor. Having loaded a log written at an older schema
// version does not make it report true.
func (l *Log) NeedsRecompaction() bool {
	return l.needsRecompaction(false)
}

func (l *Log) needsRecompaction(upgraded bool) bool {
	if upgraded {
		return true
	}
	if l.totalCommands > 100 && l.totalCommands > 3*len(l.uniqueCommands) {
		return true
	}
	if l.totalDeps > 1000 && l.totalDeps > 3*len(l.uniqueDeps) {
		return true
	}
	return false
}

// Recompact rewrites the log to a fresh file, dropping records for paths
// user reports dead, then atomically renames it over the original
//.
func (l *Log) Recompact(user ports.BuildLogUser) error {
	tmpPath := l.path + ".recompact"
	if err := l.writeCompacted(tmpPath, user); err != nil {
		return err
	}
	if l.f != nil {
		_ = l.f.Close()
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return zerr.Wrap(err, "failed to rename recompacted build log into place")
	}
	return l.openForAppend()
}

func (l *Log) writeCompacted(tmpPath string, user ports.BuildLogUser) error {
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) //nolint:gosec // build log is not a secret
	if err != nil {
		return zerr.Wrap(err, "failed to create recompacted build log")
	}
	defer f.Close() //nolint:errcheck // best-effort; rename below is the commit point

	w := bufio.NewWriter(f)
	writeRec := func(payload []byte) error {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		_, err := w.Write(payload)
		return err
	}

	if err := writeRec(encodeVersion(VersionEntry{Version: CurrentVersion})); err != nil {
		return zerr.Wrap(err, "failed to write recompacted version entry")
	}

	newIDs := make(map[string]int32)
	var internErr error
	internNew := func(path string) int32 {
		if id, ok := newIDs[path]; ok {
			return id
		}
		id := int32(len(newIDs)) //nolint:gosec // path counts stay well within int32 range in practice
		newIDs[path] = id
		checksum := ^uint32(id) //nolint:gosec // id is non-negative by construction
		if err := writeRec(encodePath(PathEntry{Path: path, Checksum: checksum})); err != nil && internErr == nil {
			internErr = err
		}
		return id
	}

	for output, rec := range l.builds {
		if user != nil && user.IsPathDead(output) {
			continue
		}
		internNew(output)
		if internErr != nil {
			return zerr.Wrap(internErr, "failed to write recompacted path entry")
		}
		if err := writeRec(encodeBuild(BuildEntry{Output: output, CommandHash: rec.commandHash, Mtime: rec.mtime})); err != nil {
			return zerr.Wrap(err, "failed to write recompacted build entry")
		}
	}
	for output, inputs := range l.deps {
		if user != nil && user.IsPathDead(output) {
			continue
		}
		outID := internNew(output)
		if internErr != nil {
			return zerr.Wrap(internErr, "failed to write recompacted path entry")
		}
		inIDs := make([]int32, len(inputs))
		for i, in := range inputs {
			inIDs[i] = internNew(in)
		}
		if internErr != nil {
			return zerr.Wrap(internErr, "failed to write recompacted path entry")
		}
		if err := writeRec(encodeDeps(DepsEntry{Output: outID, Mtime: l.depsMtime[output], Deps: inIDs})); err != nil {
			return zerr.Wrap(err, "failed to write recompacted deps entry")
		}
	}
	if err := w.Flush(); err != nil {
		return zerr.Wrap(err, "failed to flush recompacted build log")
	}
	// The rewritten file numbers paths afresh; adopt that numbering so ids
	// written by later PathEntry/DepsEntry records match the new file.
	l.ids = newIDs
	l.idsByPos = make([]string, len(newIDs))
	for p, id := range newIDs {
		l.idsByPos[id] = p
	}
	return nil
}

// loadBinary replays the record stream, truncating the file in place on the
// first short read or verification failure.
func (l *Log) loadBinary(data []byte) error {
	pos := 0
	lastGood := 0
	var version uint32 = 1
	pathCount := 0

	for pos < len(data) {
		if len(data)-pos < 4 {
			break
		}
		size := binary.LittleEndian.Uint32(data[pos:])
		recordCap := uint32(maxRecordSize)
		if version < 2 {
			recordCap = 1<<19 - 1
		}
		if size > recordCap || uint32(len(data)-pos-4) < size {
			break
		}
		payload := data[pos+4 : pos+4+int(size)]
		rec, err := decodeRecord(payload)
		if err != nil {
			break
		}
		ok := l.applyRecord(rec, &version, &pathCount)
		if !ok {
			break
		}
		pos += 4 + int(size)
		lastGood = pos
	}

	if lastGood < len(data) {
		if err := os.Truncate(l.path, int64(lastGood)); err != nil {
			return zerr.Wrap(err, "failed to truncate corrupt build log")
		}
	}
	if version > CurrentVersion {
		// Out-of-range version: step 1, delete and proceed with a
		// fresh log rather than ever blocking the build.
		_ = os.Remove(l.path)
		*l = Log{
			path:           l.path,
			ids:            make(map[string]int32),
			builds:         make(map[string]buildRecord),
			deps:           make(map[string][]string),
			depsMtime:      make(map[string]int64),
			uniqueCommands: make(map[string]struct{}),
			uniqueDeps:     make(map[string]struct{}),
			now:            l.now,
		}
	}
	return nil
}

func (l *Log) applyRecord(rec any, version *uint32, pathCount *int) bool {
	switch r := rec.(type) {
	case VersionEntry:
		*version = r.Version
	case PathEntry:
		wantChecksum := ^uint32(*pathCount) //nolint:gosec // pathCount is non-negative by construction
		if r.Checksum != wantChecksum {
			return false
		}
		*pathCount++
		l.ids[r.Path] = int32(len(l.idsByPos)) //nolint:gosec // path counts stay well within int32 range in practice
		l.idsByPos = append(l.idsByPos, r.Path)
	case BuildEntry:
		l.builds[r.Output] = buildRecord{commandHash: r.CommandHash, mtime: r.Mtime}
		l.totalCommands++
		l.uniqueCommands[r.Output] = struct{}{}
	case DepsEntry:
		output := l.pathAt(r.Output)
		if output == "" {
			return false
		}
		inputs := make([]string, len(r.Deps))
		for i, id := range r.Deps {
			in := l.pathAt(id)
			if in == "" {
				return false
			}
			inputs[i] = in
		}
		l.deps[output] = inputs
		l.depsMtime[output] = r.Mtime
		l.totalDeps++
		l.uniqueDeps[output] = struct{}{}
	}
	return true
}

func (l *Log) pathAt(id int32) string {
	if id < 0 || int(id) >= len(l.idsByPos) {
		return ""
	}
	return l.idsByPos[id]
}

// isLegacyFormat reports whether data opens with the plain-text legacy
// signature line rather than a binary VersionEntry record.
func isLegacyFormat(data []byte) bool {
	return len(data) >= 2 && data[0] == '#' && data[1] == ' '
}
