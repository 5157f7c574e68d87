package catindex

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// prepared is a category (or query) preprocessed for scoring.
type prepared struct {
	norm      string   // lowercased, whitespace-collapsed
	sortedStr string   // tokens sorted and rejoined
	tokens    []string // sorted unique tokens
}

func prepare(s string) prepared {
	norm := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	toks := strings.Fields(norm)
	sort.Strings(toks)
	uniq := toks[:0]
	var prev string
	for _, tok := range toks {
		if tok != prev {
			uniq = append(uniq, tok)
			prev = tok
		}
	}
	return prepared{
		norm:      norm,
		sortedStr: strings.Join(uniq, " "),
		tokens:    uniq,
	}
}

// score blends three similarity views, the way the original rapidfuzz-based
// matcher combined token_set_ratio, WRatio and partial matching: token-set
// similarity dominates because defect texts and category names share
// vocabulary but rarely word order or length.
func score(q, c prepared) float64 {
	ratio := levenshtein.Similarity(q.norm, c.norm, nil)
	tokenSort := levenshtein.Similarity(q.sortedStr, c.sortedStr, nil)
	tokenSet := tokenSetRatio(q, c)
	return 0.45*tokenSet + 0.35*tokenSort + 0.20*ratio
}

// tokenSetRatio compares the token intersection against each side's
// remainder, so a category fully contained in a long defect text still
// scores near 1.
func tokenSetRatio(a, b prepared) float64 {
	inter, onlyA, onlyB := splitTokens(a.tokens, b.tokens)
	if len(inter) == 0 {
		return levenshtein.Similarity(a.sortedStr, b.sortedStr, nil)
	}

	base := strings.Join(inter, " ")
	full1 := base
	if len(onlyA) > 0 {
		full1 += " " + strings.Join(onlyA, " ")
	}
	full2 := base
	if len(onlyB) > 0 {
		full2 += " " + strings.Join(onlyB, " ")
	}

	best := levenshtein.Similarity(base, full1, nil)
	if s := levenshtein.Similarity(base, full2, nil); s > best {
		best = s
	}
	if s := levenshtein.Similarity(full1, full2, nil); s > best {
		best = s
	}
	return best
}

// splitTokens partitions two sorted unique token slices into the shared
// tokens and each side's leftovers.
func splitTokens(a, b []string) (inter, onlyA, onlyB []string) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter = append(inter, a[i])
			i++
			j++
		case a[i] < b[j]:
			onlyA = append(onlyA, a[i])
			i++
		default:
			onlyB = append(onlyB, b[j])
			j++
		}
	}
	onlyA = append(onlyA, a[i:]...)
	onlyB = append(onlyB, b[j:]...)
	return inter, onlyA, onlyB
}
