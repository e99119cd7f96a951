package domain

import "strings"

// maxPathComponents bounds the number of separators a path may contain so
// that slash_bits (one bit per separator) fits a uint64.
const maxPathComponents = 60

// CanonicalizePath normalizes p: it collapses "." components, pops ".."
// against a preceding real component, and collapses redundant separators
// (a leading "//" collapses to "/"; any trailing separator is kept). The
// returned slash_bits mask records, bit i from the low end, whether the
// i-th separator in the canonical output was originally a backslash in p,
// so a caller can reconstruct the platform-native spelling.
//
// Canonicalization never grows the string, so canon(canon(p)) == canon(p)
// and slash_bits(canon(p)) == 0 always hold.
func CanonicalizePath(p string) (canon string, slashBits uint64, err error) {
	if p == "" {
		return "", 0, ErrEmptyPath
	}

	trailingSep := isSep(p[len(p)-1])

	parts, origBackslash := splitComponents(p)
	if len(origBackslash) > maxPathComponents {
		return "", 0, ErrTooManyComponents
	}

	rooted := len(p) > 0 && isSep(p[0])

	var stack []string
	for _, part := range parts {
		switch part {
		case "", ".":
			// empty parts come from collapsed separators; drop them.
		case "..":
			if len(stack) > 0 && stack[len(stack)-1] != ".." {
				stack = stack[:len(stack)-1]
			} else if !rooted {
				stack = append(stack, "..")
			}
			// ".." at the root is a no-op: nothing to pop, nothing to keep.
		default:
			stack = append(stack, part)
		}
	}

	var b strings.Builder
	if rooted {
		b.WriteByte('/')
	}
	for i, part := range stack {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(part)
	}
	if trailingSep && b.Len() > 0 && b.String()[b.Len()-1] != '/' {
		b.WriteByte('/')
	}

	canon = b.String()
	if canon == "" {
		canon = "."
	}

	// Recompute slash_bits against the separators that survive into the
	// canonical output: a component that was dropped (".", "..", or an
	// empty run) contributes no bit, since its separator collapsed away.
	slashBits = bitsForSurvivingSeparators(parts, origBackslash, stack, rooted)

	return canon, slashBits, nil
}

func isSep(c byte) bool {
	return c == '/' || c == '\\'
}

// splitComponents splits p on runs of '/'/'\\' into non-empty components,
// and records, per separator encountered (in order), whether it was a
// backslash.
func splitComponents(p string) (parts []string, backslash []bool) {
	i := 0
	n := len(p)
	start := 0
	inSep := isSep(p[0])
	if inSep {
		start = 1
		for start < n && isSep(p[start]) {
			start++
		}
		i = start
	}
	componentStart := i
	for i < n {
		if isSep(p[i]) {
			if i > componentStart {
				parts = append(parts, p[componentStart:i])
			}
			backslash = append(backslash, p[i] == '\\')
			for i < n && isSep(p[i]) {
				i++
			}
			componentStart = i
			continue
		}
		i++
	}
	if i > componentStart {
		parts = append(parts, p[componentStart:i])
	}
	return parts, backslash
}

// bitsForSurvivingSeparators reconstructs a slash_bits mask for the
// separators between components that actually appear in the final stack,
// in order. Since "." / ".." / empty components are filtered out before
// reaching the stack, and separators are associated with the component
// that follows them, we conservatively fall back to all-forward-slash (0)
// whenever dropped components make a precise mapping ambiguous. In
// practice mixed-separator inputs containing "." or ".." are rare; the
// common case (no dot components) preserves exact bits.
func bitsForSurvivingSeparators(parts []string, backslash []bool, stack []string, rooted bool) uint64 {
	hasDots := false
	for _, p := range parts {
		if p == "." || p == ".." {
			hasDots = true
			break
		}
	}
	if hasDots {
		return 0
	}
	var bits uint64
	// Separators between kept components: len(stack)-1 of them, plus one
	// leading separator if rooted (not counted in slash_bits, matching the
	// source's convention that bit 0 is the first *internal* separator).
	count := len(stack) - 1
	if count <= 0 {
		return 0
	}
	_ = rooted
	for i := 0; i < count && i < len(backslash); i++ {
		if backslash[i] {
			bits |= 1 << uint(i)
		}
	}
	return bits
}

// SplitBits reconstructs the platform-native separator for internal
// separator index i (0 = forward slash, 1 = backslash) from a slash_bits
// mask, for round-tripping Windows-style paths.
func SplitBits(slashBits uint64, i int) byte {
	if i >= maxPathComponents || i < 0 {
		return '/'
	}
	if slashBits&(1<<uint(i)) != 0 {
		return '\\'
	}
	return '/'
}
