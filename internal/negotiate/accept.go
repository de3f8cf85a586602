package negotiate

import (
	"math"
	"strings"

	"github.com/munnerz/goautoneg"
)

// acceptEntry is one parsed media range.
type acceptEntry struct {
	typ, sub string
	q        float64
}

func (a acceptEntry) catchAll() bool { return a.typ == "*" && a.sub == "*" }

// matches reports whether mediaType (already lower-cased, no params) falls in the range.
func (a acceptEntry) matches(mediaType string) bool {
	if a.catchAll() {
		return true
	}
	typ, sub, ok := strings.Cut(mediaType, "/")
	if !ok || typ != a.typ {
		return false
	}
	return a.sub == "*" || a.sub == sub
}

// parseAccept parses entries like "image/webp;q=0.8". Quality weights are
// rounded to three decimals, the precision HTTP allows.
func parseAccept(accept []string) []acceptEntry {
	parsed := goautoneg.ParseAccept(strings.Join(accept, ","))
	out := make([]acceptEntry, 0, len(parsed))
	for _, a := range parsed {
		out = append(out, acceptEntry{
			typ: strings.ToLower(a.Type),
			sub: strings.ToLower(a.SubType),
			q:   math.Round(a.Q*1000) / 1000,
		})
	}
	return out
}

// bestQuality returns the highest weight among entries matching mediaType.
// Entries with q=0 are refusals and never match.
func bestQuality(entries []acceptEntry, mediaType string) (float64, bool) {
	best, ok := 0.0, false
	for _, e := range entries {
		if e.q <= 0 || !e.matches(mediaType) {
			continue
		}
		if !ok || e.q > best {
			best, ok = e.q, true
		}
	}
	return best, ok
}

func hasCatchAll(entries []acceptEntry) bool {
	for _, e := range entries {
		if e.catchAll() {
			return true
		}
	}
	return false
}
