// Package namematch reconciles a financial-account holder name against a
// government-ID name. It backs every identity-vs-bank and identity-vs-UPI
// comparison in the onboarding flow.
package namematch

import "strings"

// minTokenLen is the length a token must exceed to count as significant.
const minTokenLen = 2

var honorifics = map[string]struct{}{
	"mr":     {},
	"mrs":    {},
	"ms":     {},
	"dr":     {},
	"prof":   {},
	"shri":   {},
	"smt":    {},
	"kumari": {},
}

var punctuation = strings.NewReplacer(
	".", " ",
	",", " ",
	"-", " ",
	"_", " ",
	"(", " ",
	")", " ",
)

// Normalize lowercases a name, turns punctuation into spaces, drops
// honorific tokens and collapses whitespace.
func Normalize(name string) string {
	fields := strings.Fields(punctuation.Replace(strings.ToLower(name)))
	kept := fields[:0]
	for _, f := range fields {
		if _, ok := honorifics[f]; ok {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// Matches reports whether two names refer to the same person.
//
// Names match when their normalized forms are identical, when enough
// significant tokens overlap (a token overlaps when it contains, or is
// contained in, a token of the other name), or when one normalized name
// contains the other. A name with nothing left after normalization matches
// nothing, itself included.
func Matches(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}

	tokensA, tokensB := significant(na), significant(nb)
	required := min(2, min(len(tokensA), len(tokensB)))
	if required > 0 && overlap(tokensA, tokensB) >= required {
		return true
	}

	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

func significant(normalized string) []string {
	var out []string
	for _, f := range strings.Fields(normalized) {
		if len(f) > minTokenLen {
			out = append(out, f)
		}
	}
	return out
}

func overlap(a, b []string) int {
	count := 0
	for _, ta := range a {
		for _, tb := range b {
			if strings.Contains(tb, ta) || strings.Contains(ta, tb) {
				count++
				break
			}
		}
	}
	return count
}
