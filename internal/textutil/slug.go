package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folder     = cases.Fold()
)

// Slugify lowercases text, drops accents and punctuation, and joins the
// remaining words with single hyphens. Empty results become "untitled".
func Slugify(text string) string {
	plain, _, err := transform.String(stripMarks, text)
	if err != nil {
		plain = text
	}
	plain = strings.ToLower(plain)

	var b strings.Builder
	b.Grow(len(plain))
	pendingHyphen := false
	for _, r := range plain {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '-' || r == '_' || unicode.IsSpace(r):
			pendingHyphen = true
		}
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}

// FoldTitle returns a trimmed, case-folded form of title for equality checks.
func FoldTitle(title string) string {
	return folder.String(strings.Join(strings.Fields(title), " "))
}

// TitlesEqual reports whether two titles match ignoring case and spacing.
func TitlesEqual(a, b string) bool {
	fa, fb := FoldTitle(a), FoldTitle(b)
	return fa != "" && fa == fb
}

// TitlePrefix returns the first n runes of the folded title.
func TitlePrefix(title string, n int) string {
	folded := []rune(FoldTitle(title))
	if len(folded) > n {
		folded = folded[:n]
	}
	return string(folded)
}

// Words splits a folded title into its distinct words.
func Words(title string) []string {
	seen := map[string]struct{}{}
	var words []string
	for _, field := range strings.FieldsFunc(FoldTitle(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		words = append(words, field)
	}
	return words
}

// WordOverlap counts how many distinct words of want appear in candidate.
func WordOverlap(want, candidate string) int {
	have := map[string]struct{}{}
	for _, w := range Words(candidate) {
		have[w] = struct{}{}
	}
	count := 0
	for _, w := range Words(want) {
		if _, ok := have[w]; ok {
			count++
		}
	}
	return count
}
