// Package keys implements the key simplifier (C7) and key registry (C8):
// turning long, redundant extractor tag names into compact human-friendly
// forms, and remembering those mappings in memory with undo/redo. Mappings
// outlive a run only through the registry's explicit export and import.
package keys

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Config holds the simplifier's tunables (spec §4.7).
type Config struct {
	MaxSegments     int
	MinKeyLength    int
	PreserveNumbers bool
	PreserveDomain  bool
	RemoveStopWords bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{MaxSegments: 3, MinKeyLength: 20, PreserveNumbers: true, PreserveDomain: true, RemoveStopWords: false}
}

var preserveWords = map[string]struct{}{
	"not": {}, "is": {}, "has": {}, "can": {}, "no": {}, "yes": {},
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "and": {}, "or": {}, "to": {}, "in": {}, "on": {}, "for": {},
}

var (
	arrayIndexRe  = regexp.MustCompile(`\[(\d+)\]`)
	unitsRe       = regexp.MustCompile(`[\(\[][^()\[\]]*[\)\]]`)
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	numericTokenRe = regexp.MustCompile(`^\d+(\.\d+){1,2}$`)
	zeroWidthRe   = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}]`)
)

// Simplifier turns original extractor keys into compact forms.
type Simplifier struct {
	cfg Config
}

// New creates a Simplifier with cfg. A zero-value Config is replaced with
// DefaultConfig.
func New(cfg Config) *Simplifier {
	if cfg.MaxSegments == 0 {
		cfg = DefaultConfig()
	}
	return &Simplifier{cfg: cfg}
}

// Simplify maps every key in originals to a unique simplified form.
func (s *Simplifier) Simplify(originals []string) map[string]string {
	simplified := make(map[string]string, len(originals))
	order := make([]string, 0, len(originals))

	for _, original := range originals {
		if _, seen := simplified[original]; seen {
			continue
		}
		simplified[original] = s.simplifyOne(original)
		order = append(order, original)
	}

	return s.resolveCollisions(order, simplified)
}

func (s *Simplifier) simplifyOne(original string) string {
	pre, prefix := s.preprocess(original)
	if len(pre) < s.cfg.MinKeyLength {
		if prefix != "" {
			return prefix + pre
		}
		return pre
	}

	tokens := tokenize(pre)
	if len(tokens) < 3 {
		if prefix != "" {
			return prefix + pre
		}
		return pre
	}

	var domain string
	hasDomain := s.cfg.PreserveDomain && len(tokens) > 3
	if hasDomain {
		domain = tokens[0]
		tokens = tokens[1:]
	}

	tokens = dedupeConsecutive(tokens)

	if s.cfg.PreserveNumbers {
		tokens = reinsertNumeric(pre, domain, hasDomain, tokens)
	}

	if s.cfg.RemoveStopWords {
		tokens = dropStopWords(tokens)
	}

	limit := s.segmentLimit(len(original))
	if hasDomain {
		keep := limit - 1
		if keep < 1 {
			keep = 1
		}
		tokens = lastN(tokens, keep)
		tokens = append([]string{domain}, tokens...)
	} else {
		tokens = lastN(tokens, limit)
	}

	result := strings.Join(tokens, " ")
	if prefix != "" {
		result = prefix + result
	}
	return result
}

// preprocess applies URL-decoding, NFC normalization, zero-width stripping,
// trimming and whitespace collapse, then splits off a preserved PREFIX: if
// the key has the Group:Tag shape the extractor uses for namespaced tags.
func (s *Simplifier) preprocess(original string) (body string, prefix string) {
	decoded, err := url.QueryUnescape(original)
	if err != nil {
		decoded = original
	}
	decoded = norm.NFC.String(decoded)
	decoded = zeroWidthRe.ReplaceAllString(decoded, "")
	decoded = strings.TrimSpace(decoded)
	decoded = strings.TrimRight(decoded, ".,;:!?")
	decoded = collapseWhitespace(decoded)

	if idx := strings.Index(decoded, ":"); idx >= 0 {
		head := decoded[:idx]
		tail := decoded[idx+1:]
		if head != "" && isUpperPrefix(head) {
			return tail, head + ":"
		}
		return head, ""
	}
	return decoded, ""
}

// isUpperPrefix reports whether s starts with an uppercase letter, as
// extractor group names do ("EXIF", "QuickTime", "XMP-dc").
func isUpperPrefix(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func tokenize(s string) []string {
	s = unitsRe.ReplaceAllString(s, "")
	s = arrayIndexRe.ReplaceAllString(s, " $1")
	s = camelBoundary.ReplaceAllString(s, "$1 $2")

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '.'
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// dedupeConsecutive removes consecutive case-insensitive duplicate tokens,
// iterating until stable or ten passes, whichever comes first.
func dedupeConsecutive(tokens []string) []string {
	for pass := 0; pass < 10; pass++ {
		changed := false
		out := make([]string, 0, len(tokens))
		for i, t := range tokens {
			if i > 0 && strings.EqualFold(t, tokens[i-1]) {
				changed = true
				continue
			}
			out = append(out, t)
		}
		tokens = out
		if !changed {
			break
		}
	}
	return tokens
}

// reinsertNumeric re-adds numeric/version tokens from the original,
// preprocessed string that deduplication may have dropped, appended in
// their relative order since exact position tracking was lost.
func reinsertNumeric(pre, domain string, hasDomain bool, tokens []string) []string {
	original := tokenize(pre)
	if hasDomain && len(original) > 0 {
		original = original[1:]
	}

	present := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		present[strings.ToLower(t)] = true
	}

	var missing []string
	for _, t := range original {
		if isNumericToken(t) && !present[strings.ToLower(t)] {
			missing = append(missing, t)
			present[strings.ToLower(t)] = true
		}
	}
	return append(tokens, missing...)
}

func isNumericToken(t string) bool {
	if numericTokenRe.MatchString(t) {
		return true
	}
	for _, r := range t {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func dropStopWords(tokens []string) []string {
	if len(tokens) <= 2 {
		return tokens
	}
	out := make([]string, 0, len(tokens))
	for i, t := range tokens {
		if i == 0 || i == len(tokens)-1 {
			out = append(out, t)
			continue
		}
		if _, preserved := preserveWords[strings.ToLower(t)]; preserved {
			out = append(out, t)
			continue
		}
		if _, stop := stopWords[strings.ToLower(t)]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *Simplifier) segmentLimit(originalLen int) int {
	limit := s.cfg.MaxSegments
	switch {
	case originalLen > 60:
		limit++
	case originalLen > 40:
	default:
		limit--
	}
	if limit < 2 {
		limit = 2
	}
	return limit
}

func lastN(tokens []string, n int) []string {
	if n >= len(tokens) {
		return tokens
	}
	if n < 0 {
		n = 0
	}
	return tokens[len(tokens)-n:]
}

// resolveCollisions appends a disambiguating suffix to any simplified
// strings that collide, preferring a distinguishing token from the
// original key over a positional "(i)" fallback.
func (s *Simplifier) resolveCollisions(order []string, simplified map[string]string) map[string]string {
	groups := make(map[string][]string)
	for _, original := range order {
		groups[simplified[original]] = append(groups[simplified[original]], original)
	}

	result := make(map[string]string, len(simplified))
	for simple, originals := range groups {
		if len(originals) == 1 {
			result[originals[0]] = simple
			continue
		}
		for i, original := range originals {
			ownTokens := tokenize(strings.ToLower(original))
			simpleSet := make(map[string]struct{})
			for _, t := range tokenize(strings.ToLower(simple)) {
				simpleSet[t] = struct{}{}
			}

			disambiguator := ""
			for _, t := range ownTokens {
				if _, inSimple := simpleSet[t]; inSimple {
					continue
				}
				if sharedWithOtherCollider(t, originals, original) {
					continue
				}
				disambiguator = t
				break
			}

			if disambiguator == "" {
				disambiguator = strconv.Itoa(i + 1)
				result[original] = simple + " (" + disambiguator + ")"
			} else {
				result[original] = simple + " (" + disambiguator + ")"
			}
		}
	}
	return result
}

func sharedWithOtherCollider(token string, originals []string, self string) bool {
	for _, o := range originals {
		if o == self {
			continue
		}
		for _, t := range tokenize(strings.ToLower(o)) {
			if t == token {
				return true
			}
		}
	}
	return false
}
