package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 20
	// maxUsernameAttempts bounds the collision suffix search.
	maxUsernameAttempts = 1000
)

// stripMarks folds accented letters to their base letters.
func stripMarks(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isUsernameRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-')
}

// NormalizeUsername turns a Flarum username into one Discourse accepts:
// ASCII letters, digits, '_', '.' and '-', between 3 and 20 characters.
func NormalizeUsername(name string) string {
	folded := stripMarks(strings.TrimSpace(name))

	var b strings.Builder
	lastUnderscore := false
	for _, r := range folded {
		if !isUsernameRune(r) {
			r = '_'
		}
		if r == '_' && lastUnderscore {
			continue
		}
		lastUnderscore = r == '_'
		b.WriteRune(r)
	}

	out := strings.Trim(b.String(), "_.-")
	if out == "" {
		out = "user"
	}
	if len(out) > maxUsernameLength {
		out = strings.TrimRight(out[:maxUsernameLength], "_.-")
	}
	for len(out) < minUsernameLength {
		out += "1"
	}
	return out
}

// uniqueUsername returns base, or base with the smallest numeric suffix
// that taken reports free.
func uniqueUsername(ctx context.Context, base string, taken func(context.Context, string) (bool, error)) (string, error) {
	candidate := base
	for i := 1; i <= maxUsernameAttempts; i++ {
		inUse, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !inUse {
			return candidate, nil
		}
		suffix := strconv.Itoa(i)
		stem := base
		if len(stem)+len(suffix) > maxUsernameLength {
			stem = strings.TrimRight(stem[:maxUsernameLength-len(suffix)], "_.-")
		}
		candidate = stem + suffix
	}
	return "", fmt.Errorf("no free username for %q after %d attempts", base, maxUsernameAttempts)
}

// Slugify derives a URL slug from a category name. It returns "" when the
// name has no letters or digits.
func Slugify(name string) string {
	folded := strings.ToLower(stripMarks(name))

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
