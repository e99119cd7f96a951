package builder

import "strings"

// defaultMSVCDepsPrefix is used when a rule sets deps=msvc but never binds
// msvc_deps_prefix, matching cl.exe's own default /showIncludes wording.
const defaultMSVCDepsPrefix = "Note: including file:"

// parseGCCDepfile extracts the dependency list from a Makefile-style
// depfile as emitted by `gcc -MMD` / `clang -MMD`: "target: dep dep \\\ndep
// dep\n", where a trailing backslash continues onto the next line and `\ `
// and `$$` are the only recognized escapes. Only the input list is wanted;
// the target before the colon is discarded since the edge already knows
// its own output.
func parseGCCDepfile(data []byte) []string {
	text := strings.ReplaceAll(string(data), "\\\r\n", " ")
	text = strings.ReplaceAll(text, "\\\n", " ")

	_, rest, found := strings.Cut(text, ":")
	if !found {
		return nil
	}

	var deps []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			deps = append(deps, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(rest); i++ {
		switch {
		case rest[i] == '\\' && i+1 < len(rest) && rest[i+1] == ' ':
			cur.WriteByte(' ')
			i++
		case rest[i] == '$' && i+1 < len(rest) && rest[i+1] == '$':
			cur.WriteByte('$')
			i++
		case rest[i] == ' ' || rest[i] == '\t' || rest[i] == '\n' || rest[i] == '\r':
			flush()
		default:
			cur.WriteByte(rest[i])
		}
	}
	flush()
	return deps
}

// filterMSVCDeps scans cl.exe's captured /showIncludes output, pulling out
// every line beginning with prefix as a discovered dependency and returning
// the remaining lines unchanged, so those lines are not echoed to the
// user's own build output a second time.
func filterMSVCDeps(output []byte, prefix string) (filtered []byte, deps []string) {
	if prefix == "" {
		prefix = defaultMSVCDepsPrefix
	}
	lines := strings.Split(string(output), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSuffix(line, "\r")
		if after, ok := strings.CutPrefix(trimmed, prefix); ok {
			deps = append(deps, strings.TrimSpace(after))
			continue
		}
		kept = append(kept, line)
	}
	return []byte(strings.Join(kept, "\n")), deps
}
