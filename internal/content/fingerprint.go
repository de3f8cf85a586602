package content

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"elementd/pkg/types"
)

// Fingerprint derives the cache key of a source: type, media type and a
// content hash for inline data; type, uri and the optional upstream hash for
// external references.
func Fingerprint(src types.PayloadSource) string {
	var b strings.Builder
	b.WriteString(string(src.Type))
	b.WriteByte('|')
	switch src.Type {
	case types.SourceInline:
		b.WriteString(src.BaseMediaType())
		b.WriteByte('|')
		b.WriteString(strconv.FormatUint(xxhash.Sum64String(src.Encoding+":"+src.Source), 16))
	default:
		b.WriteString(src.URI)
		if src.ContentHash != "" {
			b.WriteByte('|')
			b.WriteString(src.ContentHash)
		}
	}
	return b.String()
}
