package catalog

import (
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalizeName folds full-width forms (NFKC) and collapses whitespace.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// キーワードは大文字小文字を区別しない
func normalizeKeyword(s string) string {
	return cases.Fold().String(normalizeName(s))
}

func normalizeAll(in []string, f func(string) string) []string {
	out := lo.Map(in, func(s string, _ int) string { return f(s) })
	return lo.Uniq(lo.Compact(out))
}
