// Package globmatch implements the SeedLink station-ID glob grammar used
// by the stream table to dispatch incoming packets to subscriptions.
//
// Supported semantics:
//
//	*      matches zero or more characters
//	?      matches exactly one character
//	[abc]  matches any one character in the set
//	[a-z]  matches any one character in the range
//	[!abc] or [^abc]  negated set
//	\x     matches the literal character x
package globmatch

// Match reports whether candidate matches pattern under the grammar
// above. Neither argument may be nil in the sense Go strings are never
// nil, but an empty pattern only matches an empty candidate.
func Match(candidate, pattern string) bool {
	return match([]rune(candidate), []rune(pattern))
}

// match is a straightforward backtracking matcher: it remembers the most
// recent '*' in the pattern and the candidate position at that point, so
// a later mismatch can retry by having the '*' consume one more rune.
func match(s, p []rune) bool {
	si, pi := 0, 0
	starPi, starSi := -1, -1

	for si < len(s) {
		switch {
		case pi < len(p) && p[pi] == '\\' && pi+1 < len(p):
			if s[si] == p[pi+1] {
				si++
				pi += 2
				continue
			}
		case pi < len(p) && p[pi] == '?':
			si++
			pi++
			continue
		case pi < len(p) && p[pi] == '[':
			end, ok := matchClass(s[si], p, pi)
			if ok {
				si++
				pi = end
				continue
			}
		case pi < len(p) && p[pi] == '*':
			starPi = pi
			starSi = si
			pi++
			continue
		case pi < len(p) && s[si] == p[pi]:
			si++
			pi++
			continue
		}

		// Mismatch: backtrack to the last '*' if one was seen.
		if starPi >= 0 {
			starSi++
			si = starSi
			pi = starPi + 1
			continue
		}
		return false
	}

	// Consume any trailing '*' characters; everything else must be end of pattern.
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// matchClass parses a `[...]` class starting at p[start] == '[' and
// reports the index just past the closing ']' together with whether c
// is a member of the (possibly negated) class. If the class is
// malformed (no closing bracket), it never matches.
func matchClass(c rune, p []rune, start int) (next int, ok bool) {
	i := start + 1
	negate := false
	if i < len(p) && (p[i] == '!' || p[i] == '^') {
		negate = true
		i++
	}
	matched := false
	first := true
	for i < len(p) && (p[i] != ']' || first) {
		first = false
		lo := p[i]
		if i+2 < len(p) && p[i+1] == '-' && p[i+2] != ']' {
			hi := p[i+2]
			if lo <= c && c <= hi {
				matched = true
			}
			i += 3
			continue
		}
		if lo == c {
			matched = true
		}
		i++
	}
	if i >= len(p) || p[i] != ']' {
		// Unterminated class: never matches.
		return start + 1, false
	}
	return i + 1, matched != negate
}
