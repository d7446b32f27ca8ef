// Package normalize derives comparable forms of company names for matching.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultLegalSuffixes lists legal-entity designations stripped from the end
// of a name, Norwegian forms first.
var DefaultLegalSuffixes = []string{
	"as", "asa", "a/s", "ans", "da", "ks", "k/s", "nuf", "sa",
	"ab", "oy", "oyj", "aps",
	"inc", "ltd", "llc", "plc",
	"gmbh", "ag", "sarl", "bv", "nv", "spa",
}

// DefaultNoiseWords lists qualifiers removed anywhere in a name for the
// loosest match form.
var DefaultNoiseWords = []string{
	"group", "holding", "konsern", "international", "int",
	"co", "company", "solutions", "solution",
	"technology", "technologies", "systems", "system",
	"norge", "norway",
}

// Forms holds the three comparable forms of a name, from strictest to loosest.
type Forms struct {
	Exact           string
	NoSuffix        string
	NoSuffixNoNoise string
}

// Normalizer turns raw names into Forms. The zero value strips nothing;
// use New or Default.
type Normalizer struct {
	suffixes map[string]struct{}
	noise    map[string]struct{}
}

// New builds a Normalizer from suffix and noise word lists. Words are
// normalized the same way names are, so "AS" and "as" are equivalent.
func New(suffixes, noise []string) *Normalizer {
	return &Normalizer{
		suffixes: wordSet(suffixes),
		noise:    wordSet(noise),
	}
}

var defaultNormalizer = New(DefaultLegalSuffixes, DefaultNoiseWords)

// Default returns the Normalizer built from the default word lists.
func Default() *Normalizer {
	return defaultNormalizer
}

// Normalize is shorthand for Default().Normalize(name).
func Normalize(name string) Forms {
	return defaultNormalizer.Normalize(name)
}

// Normalize derives all three forms of name.
func (n *Normalizer) Normalize(name string) Forms {
	exact := Exact(name)
	if exact == "" {
		return Forms{}
	}

	toks := strings.Fields(clean(exact))
	toks = n.trimSuffixes(toks)
	noSuffix := strings.Join(toks, " ")

	kept := make([]string, 0, len(toks))
	for _, t := range toks {
		if _, ok := n.noise[t]; !ok {
			kept = append(kept, t)
		}
	}
	kept = n.trimSuffixes(kept)

	return Forms{
		Exact:           exact,
		NoSuffix:        noSuffix,
		NoSuffixNoNoise: strings.Join(kept, " "),
	}
}

// Exact case-folds name, applies NFC composition, trims it and collapses
// internal whitespace.
func Exact(name string) string {
	name = norm.NFC.String(name)
	name = cases.Fold().String(name)
	return strings.Join(strings.Fields(name), " ")
}

// trimSuffixes drops trailing legal suffix tokens, always keeping the first.
func (n *Normalizer) trimSuffixes(toks []string) []string {
	for len(toks) > 1 {
		if _, ok := n.suffixes[toks[len(toks)-1]]; !ok {
			break
		}
		toks = toks[:len(toks)-1]
	}
	return toks
}

// clean replaces "&" with "og" and every rune other than letters, digits,
// '-' and '/' with a space.
func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '&':
			b.WriteString(" og ")
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '/':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		for _, t := range strings.Fields(clean(Exact(w))) {
			set[t] = struct{}{}
		}
	}
	return set
}
