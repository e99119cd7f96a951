package buildlog

import (
	"strconv"
	"strings"
)

// migrateLegacy parses the plain-text "# ninja log vN" format (tab-separated
// start/end/mtime/output/command_hash lines) and loads it into l's in-memory
// indices, so the next Recompact call rewrites it in the current binary
// schema.
func migrateLegacy(l *Log, data []byte) error {
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 {
		return nil
	}
	// lines[0] is the "# ninja log vN" signature; nothing in it affects
	// parsing since every legacy version uses the same five tab-separated
	// fields.
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 5 {
			// A malformed trailing line from a prior truncated write;
			// stop here rather than fail the whole migration.
			break
		}
		mtime, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			break
		}
		output := fields[3]
		hash, err := strconv.ParseUint(fields[4], 16, 64)
		if err != nil {
			break
		}
		// Track the path in-memory only: l isn't open for writing yet at
		// migration time (writeCompactedAndOpen establishes fresh PathEntry
		// records once the rewrite begins).
		if _, ok := l.ids[output]; !ok {
			l.ids[output] = int32(len(l.idsByPos)) //nolint:gosec // path counts stay well within int32 range in practice
			l.idsByPos = append(l.idsByPos, output)
		}
		l.builds[output] = buildRecord{commandHash: hash, mtime: mtime}
		l.totalCommands++
		l.uniqueCommands[output] = struct{}{}
	}
	return nil
}
