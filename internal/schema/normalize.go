package schema

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxIdentifierLength keeps generated names within MySQL's identifier limit.
const MaxIdentifierLength = 64

// ReservedNames are identifiers owned by the backends themselves. Headers
// that normalize to one of them are disambiguated like any collision.
var ReservedNames = []string{SurrogateKey, DocumentIDKey, "_id"}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeChar    = regexp.MustCompile(`[^a-z0-9_]`)
)

// Transliterate converts Han characters to toneless pinyin, folds Latin
// diacritics, and lower-cases the result. Other characters pass through.
func Transliterate(s string) string {
	args := pinyin.NewArgs()

	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			if py := pinyin.Pinyin(string(r), args); len(py) > 0 && len(py[0]) > 0 {
				b.WriteString(py[0][0])
				continue
			}
		}
		b.WriteRune(r)
	}

	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), b.String())
	if err != nil {
		folded = b.String()
	}
	return strings.ToLower(folded)
}

// sanitize maps a transliterated string onto [a-z0-9_].
func sanitize(s string) string {
	s = whitespaceRun.ReplaceAllString(strings.TrimSpace(s), "_")
	return unsafeChar.ReplaceAllString(s, "_")
}

func hasAlnum(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
	}) >= 0
}

// Normalize turns a raw header into a backend-safe identifier matching
// ^[a-z][a-z0-9_]*$. The result does not collide with any key of existing.
// Normalize does not modify existing.
func Normalize(raw string, idx int, existing map[string]struct{}) string {
	name := sanitize(Transliterate(raw))

	switch {
	case !hasAlnum(name):
		name = "col_" + strconv.Itoa(idx)
	case name[0] < 'a' || name[0] > 'z':
		name = "col_" + name
	}

	if len(name) > MaxIdentifierLength {
		name = name[:MaxIdentifierLength]
	}

	if !isTaken(existing, name) {
		return name
	}

	// Collisions append the suffix once more per attempt; the stem is cut
	// so the whole name still fits MaxIdentifierLength.
	suffix := "_" + strconv.Itoa(idx)
	for n := 1; ; n++ {
		tail := strings.Repeat(suffix, n)
		stem := name[:max(1, min(len(name), MaxIdentifierLength-len(tail)))]
		if candidate := stem + tail; !isTaken(existing, candidate) {
			return candidate
		}
	}
}

func isTaken(existing map[string]struct{}, name string) bool {
	_, ok := existing[name]
	return ok
}

// NormalizeHeaders normalizes a whole header row, accumulating the names
// already assigned so that every result is unique.
func NormalizeHeaders(headers []string) []string {
	existing := make(map[string]struct{}, len(headers)+len(ReservedNames))
	for _, r := range ReservedNames {
		existing[r] = struct{}{}
	}

	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = Normalize(h, i, existing)
		existing[out[i]] = struct{}{}
	}
	return out
}

// TargetNameFromFile derives a target name from an uploaded file name:
// the base name without extension, normalized by TargetName.
func TargetNameFromFile(fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
	return TargetName(strings.TrimSuffix(base, filepath.Ext(base)))
}

// TargetName normalizes a user-supplied table or collection name:
// transliterated, with a "t_" prefix when it does not start with a letter.
func TargetName(raw string) string {
	name := sanitize(Transliterate(raw))
	if !hasAlnum(name) {
		return "import"
	}
	if name[0] < 'a' || name[0] > 'z' {
		name = "t_" + name
	}
	if len(name) > MaxIdentifierLength {
		name = name[:MaxIdentifierLength]
	}
	return name
}
