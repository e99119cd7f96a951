// Package buildlog implements the persistent build log: a
// length-prefixed, append-only sequence of variant records recording each
// edge's last successful command hash, mtime and dynamically-discovered
// dependencies, used to drive dirty-scan decisions across runs.
package buildlog

import (
	"encoding/binary"

	"go.trai.ch/zerr"
)

// recordKind tags which of the four record shapes a payload holds.
type recordKind byte

const (
	kindVersion recordKind = iota
	kindPath
	kindBuild
	kindDeps
)

// CurrentVersion is the schema version this package writes. Binary files at
// an older version are loaded as they are and new records are appended to
// them; loading one does not trigger a rewrite or a recompaction. Files at a
// newer version are deleted and replaced by a fresh log.
const CurrentVersion = 2

// maxRecordSize is the v2 per-record payload cap asserted on every write
//.
const maxRecordSize = 1<<20 - 1

// VersionEntry must be the first record of a v2+ log.
type VersionEntry struct {
	Version uint32
}

// PathEntry interns one path string; its position in the stream (not any
// field) is its dense id.
type PathEntry struct {
	Path     string
	Checksum uint32 // ~id, where id is this entry's zero-based index among path entries
}

// BuildEntry records one successful edge execution.
type BuildEntry struct {
	Output      string
	CommandHash uint64
	StartTime   int32
	EndTime     int32
	Mtime       int64
}

// DepsEntry maps an output (by path id) to the ordered input ids discovered
// for it (e.g. a C compiler's discovered #include closure).
type DepsEntry struct {
	Output int32
	Mtime  int64
	Deps   []int32
}

func encodeVersion(e VersionEntry) []byte {
	buf := make([]byte, 1+4)
	buf[0] = byte(kindVersion)
	binary.LittleEndian.PutUint32(buf[1:], e.Version)
	return buf
}

func encodePath(e PathEntry) []byte {
	buf := make([]byte, 1+4+len(e.Path)+4)
	buf[0] = byte(kindPath)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(e.Path)))
	copy(buf[5:], e.Path)
	binary.LittleEndian.PutUint32(buf[5+len(e.Path):], e.Checksum)
	return buf
}

func encodeBuild(e BuildEntry) []byte {
	buf := make([]byte, 1+4+len(e.Output)+8+4+4+8)
	pos := 0
	buf[pos] = byte(kindBuild)
	pos++
	binary.LittleEndian.PutUint32(buf[pos:], uint32(len(e.Output)))
	pos += 4
	copy(buf[pos:], e.Output)
	pos += len(e.Output)
	binary.LittleEndian.PutUint64(buf[pos:], e.CommandHash)
	pos += 8
	binary.LittleEndian.PutUint32(buf[pos:], uint32(e.StartTime))
	pos += 4
	binary.LittleEndian.PutUint32(buf[pos:], uint32(e.EndTime))
	pos += 4
	binary.LittleEndian.PutUint64(buf[pos:], uint64(e.Mtime))
	return buf
}

func encodeDeps(e DepsEntry) []byte {
	buf := make([]byte, 1+4+8+4+4*len(e.Deps))
	pos := 0
	buf[pos] = byte(kindDeps)
	pos++
	binary.LittleEndian.PutUint32(buf[pos:], uint32(e.Output))
	pos += 4
	binary.LittleEndian.PutUint64(buf[pos:], uint64(e.Mtime))
	pos += 8
	binary.LittleEndian.PutUint32(buf[pos:], uint32(len(e.Deps)))
	pos += 4
	for _, d := range e.Deps {
		binary.LittleEndian.PutUint32(buf[pos:], uint32(d))
		pos += 4
	}
	return buf
}

// errShortRecord signals a record payload too short for its declared shape;
// treated identically to a checksum mismatch by the loader: truncate and
// recover.
var errShortRecord = zerr.New("buildlog: short record")

func decodeRecord(payload []byte) (any, error) {
	if len(payload) < 1 {
		return nil, errShortRecord
	}
	kind := recordKind(payload[0])
	body := payload[1:]
	switch kind {
	case kindVersion:
		if len(body) < 4 {
			return nil, errShortRecord
		}
		return VersionEntry{Version: binary.LittleEndian.Uint32(body)}, nil
	case kindPath:
		if len(body) < 4 {
			return nil, errShortRecord
		}
		n := binary.LittleEndian.Uint32(body)
		body = body[4:]
		if uint32(len(body)) < n+4 {
			return nil, errShortRecord
		}
		path := string(body[:n])
		checksum := binary.LittleEndian.Uint32(body[n:])
		return PathEntry{Path: path, Checksum: checksum}, nil
	case kindBuild:
		if len(body) < 4 {
			return nil, errShortRecord
		}
		n := binary.LittleEndian.Uint32(body)
		body = body[4:]
		if uint32(len(body)) < n+8+4+4+8 {
			return nil, errShortRecord
		}
		output := string(body[:n])
		body = body[n:]
		hash := binary.LittleEndian.Uint64(body)
		body = body[8:]
		start := int32(binary.LittleEndian.Uint32(body)) //nolint:gosec // round-trips a value this package wrote
		body = body[4:]
		end := int32(binary.LittleEndian.Uint32(body)) //nolint:gosec // round-trips a value this package wrote
		body = body[4:]
		mtime := int64(binary.LittleEndian.Uint64(body))
		return BuildEntry{Output: output, CommandHash: hash, StartTime: start, EndTime: end, Mtime: mtime}, nil
	case kindDeps:
		if len(body) < 4+8+4 {
			return nil, errShortRecord
		}
		output := int32(binary.LittleEndian.Uint32(body)) //nolint:gosec // round-trips a value this package wrote
		body = body[4:]
		mtime := int64(binary.LittleEndian.Uint64(body))
		body = body[8:]
		count := binary.LittleEndian.Uint32(body)
		body = body[4:]
		if uint32(len(body)) < count*4 {
			return nil, errShortRecord
		}
		deps := make([]int32, count)
		for i := range deps {
			deps[i] = int32(binary.LittleEndian.Uint32(body[i*4:])) //nolint:gosec // round-trips a value this package wrote
		}
		return DepsEntry{Output: output, Mtime: mtime, Deps: deps}, nil
	default:
		return nil, zerr.With(zerr.New("buildlog: unknown record kind"), "kind", byte(kind))
	}
}
