package catalog

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// baseNamespace scopes name-based base identifiers.
var baseNamespace = uuid.MustParse("6f1c1b8e-9d0b-4d7e-9b43-5a2f0c6f5e21")

// BaseID derives the stable identifier of a product base from its brand and name.
// Case, accents and whitespace do not change the result.
func BaseID(brand, name string) string {
	key := foldKey(brand) + "|" + foldKey(name)
	return uuid.NewSHA1(baseNamespace, []byte(key)).String()
}

// NewVariantID mints a random variant identifier.
func NewVariantID() string {
	return uuid.NewString()
}

func foldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// ComposeFullName joins the descriptor parts in display order, skipping blanks.
func ComposeFullName(baseName, brand, typ, size, flavor string) string {
	parts := make([]string, 0, 5)
	for _, p := range []string{baseName, brand, typ, size, flavor} {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
