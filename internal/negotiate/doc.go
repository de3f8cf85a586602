// Package negotiate picks the representation of an element that best fits a
// client's declared capabilities.
//
// Every candidate (primary first, then alternatives in declaration order) is
// matched against the accept list. Unmatched candidates are rejected. Matched
// candidates start from the highest quality weight among the entries they
// match and then collect:
//
//   - a fixed format bonus per media type (avif > webp > jpeg > png, html > markdown)
//   - an inline bonus, larger on SLOW/CELLULAR networks
//   - weighted hint adjustments for size match, network cost and pixel density
//   - a flat penalty when the payload exceeds the client's byte ceiling
//
// The highest total wins; ties keep the earlier candidate. When nothing
// matches, the primary is returned only if the accept list contains */*.
// Selection depends on its inputs alone.
package negotiate
