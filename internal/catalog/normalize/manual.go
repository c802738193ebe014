package normalize

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	sizePattern  = regexp.MustCompile(`(?i)\b(\d+(?:[.,]\d+)?)\s*(ml|kg|oz|g|l)\b`)
	sizeToken    = regexp.MustCompile(`^\d+(?:\.\d+)?(ml|kg|oz|g|l)$`)
	allowedPunct = ".,-'&/%"
)

// ManualNormalizer performs deterministic local cleanup and never calls out.
type ManualNormalizer struct {
	priority int
}

// NewManualNormalizer builds the fallback normalizer with priority 0.
func NewManualNormalizer() *ManualNormalizer {
	return &ManualNormalizer{}
}

func (n *ManualNormalizer) Name() string { return "manual" }

func (n *ManualNormalizer) Priority() int { return n.priority }

// CanHandle always returns true.
func (n *ManualNormalizer) CanHandle(RawProduct) bool { return true }

// Normalize cleans the description and extracts a size such as "500 ml".
// Applying it to its own output yields the same output.
func (n *ManualNormalizer) Normalize(_ context.Context, raw RawProduct) (*NormalizedProduct, error) {
	text := CleanText(raw.Describe())
	if text == "" {
		return nil, nil
	}
	size, unit := "", ""
	baseText := text
	if loc := findSize(text); loc != nil {
		number := strings.ReplaceAll(text[loc[2]:loc[3]], ",", ".")
		unit = strings.ToLower(text[loc[4]:loc[5]])
		size = number + unit
		prefix, suffix := text[:loc[0]], text[loc[1]:]
		text = collapse(prefix + " " + size + " " + suffix)
		baseText = collapse(prefix + " " + suffix)
	}
	baseName := TitleWords(baseText)
	if baseName == "" {
		baseName = TitleWords(text)
	}
	return &NormalizedProduct{
		Brand:       TitleWords(CleanText(raw.Brand)),
		BaseName:    baseName,
		VariantName: TitleWords(text),
		Category:    TitleWords(CleanText(raw.Category)),
		ImageURL:    strings.TrimSpace(raw.ImageURL),
		Details:     Details{Size: size, Unit: unit},
		Normalizer:  n.Name(),
	}, nil
}

// findSize returns the first size match whose neighbours are not letters or
// digits. The regexp word boundary is ASCII-only, so "1 lápiz" would otherwise
// read as one litre.
func findSize(text string) []int {
	for _, loc := range sizePattern.FindAllStringSubmatchIndex(text, -1) {
		if before, _ := utf8.DecodeLastRuneInString(text[:loc[0]]); isWordRune(before) {
			continue
		}
		if after, _ := utf8.DecodeRuneInString(text[loc[1]:]); isWordRune(after) {
			continue
		}
		return loc
	}
	return nil
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r))
}

// CleanText drops unexpected symbols and collapses whitespace.
func CleanText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.Is(unicode.Mn, r):
			b.WriteRune(r)
		case strings.ContainsRune(allowedPunct, r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return collapse(b.String())
}

// TitleWords capitalises every word, keeping size tokens such as "360g" lowercase.
func TitleWords(s string) string {
	words := strings.Fields(s)
	caser := cases.Title(language.Spanish)
	for i, w := range words {
		lower := strings.ToLower(w)
		if sizeToken.MatchString(lower) {
			words[i] = lower
			continue
		}
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
