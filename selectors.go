package slink

import "strings"

// translateSelectorV3toV4 rewrites one v3-style selector (e.g. "BH?",
// "00BHZ", "!LOG") into its v4 form (e.g. "B_H_?"). It is a pure
// function, called by the Negotiator only once a session has been
// promoted to v4 and the caller supplied a v3-form selector (a
// selector already containing '_' is assumed to be v4-form already and
// is passed through unchanged).
//
// v3 selectors are 2-5 characters: an optional 2-character location
// code prefix, followed by a 3-character band/instrument/orientation
// channel code (each of which may be '?' for wildcard), with an
// optional leading '!' negation marker. v4 selectors separate each
// field with '_': LL_B_I_O, omitting a field entirely (rather than
// wildcarding it) to mean "don't care".
func translateSelectorV3toV4(sel string) string {
	neg := ""
	if strings.HasPrefix(sel, "!") {
		neg = "!"
		sel = sel[1:]
	}

	var loc, chan3 string
	switch len(sel) {
	case 3:
		chan3 = sel
	case 4:
		// Ambiguous in the original protocol; treat as 1-char loc + 3-char channel.
		loc, chan3 = sel[:1], sel[1:]
	case 5:
		loc, chan3 = sel[:2], sel[2:]
	default:
		// Not a recognizable v3 selector shape; pass through unchanged.
		return neg + sel
	}

	band, inst, orient := "?", "?", "?"
	if len(chan3) == 3 {
		band, inst, orient = string(chan3[0]), string(chan3[1]), string(chan3[2])
	}

	parts := []string{}
	if loc != "" {
		parts = append(parts, loc)
	}
	parts = append(parts, band, inst, orient)
	return neg + strings.Join(parts, "_")
}

// looksLikeV4Selector reports whether sel already appears to be in v4
// (underscore-separated) form, in which case translation is skipped.
func looksLikeV4Selector(sel string) bool {
	return strings.Contains(sel, "_")
}

// translateSelectorV4toV3 is the inverse of translateSelectorV3toV4,
// used only to verify the round-trip law in the test suite: it is not
// needed by the Negotiator, which only ever translates v3 -> v4.
func translateSelectorV4toV3(sel string) string {
	neg := ""
	if strings.HasPrefix(sel, "!") {
		neg = "!"
		sel = sel[1:]
	}
	fields := strings.Split(sel, "_")
	if len(fields) != 3 && len(fields) != 4 {
		return neg + sel
	}
	loc := ""
	if len(fields) == 4 {
		loc = fields[0]
		fields = fields[1:]
	}
	return neg + loc + strings.Join(fields, "")
}
