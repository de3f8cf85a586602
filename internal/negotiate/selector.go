package negotiate

import (
	"math"

	"elementd/pkg/types"
)

const bytesPerMB = 1024 * 1024

// Selector scores candidate representations against capabilities.
// It holds no mutable state and is safe for concurrent use.
type Selector struct {
	w Weights
}

// New returns a Selector using w, with unset fields replaced by defaults.
func New(w Weights) *Selector {
	return &Selector{w: w.withDefaults()}
}

var defaultSelector = New(Weights{})

// SelectBest picks with the default weights.
func SelectBest(el types.Element, caps types.Capabilities) (types.PayloadSource, bool) {
	return defaultSelector.SelectBest(el, caps)
}

// Weights returns the effective weights.
func (s *Selector) Weights() Weights { return s.w }

// SelectBest returns the highest scoring candidate, or false when the element
// has no renderable representation for caps.
func (s *Selector) SelectBest(el types.Element, caps types.Capabilities) (types.PayloadSource, bool) {
	entries := parseAccept(caps.Accept)
	ranked := s.rank(el, caps, entries)
	best := -1
	for i, c := range ranked {
		if !c.Matched {
			continue
		}
		if best < 0 || c.Score > ranked[best].Score {
			best = i
		}
	}
	if best >= 0 {
		return ranked[best].Source, true
	}
	if hasCatchAll(entries) {
		return el.Content.Primary, true
	}
	return types.PayloadSource{}, false
}

// Rank returns every candidate with its score, in candidate order.
func (s *Selector) Rank(el types.Element, caps types.Capabilities) []types.CandidateScore {
	return s.rank(el, caps, parseAccept(caps.Accept))
}

func (s *Selector) rank(el types.Element, caps types.Capabilities, entries []acceptEntry) []types.CandidateScore {
	cands := el.Content.Candidates()
	out := make([]types.CandidateScore, 0, len(cands))
	for _, c := range cands {
		score, ok := s.score(c, caps.Hints, entries)
		out = append(out, types.CandidateScore{Source: c, Matched: ok, Score: score})
	}
	return out
}

func (s *Selector) score(c types.PayloadSource, hints *types.Hints, entries []acceptEntry) (float64, bool) {
	mt := c.BaseMediaType()
	q, ok := bestQuality(entries, mt)
	if !ok {
		return 0, false
	}
	total := q + s.w.FormatBonus[mt]
	if c.Type == types.SourceInline {
		if hints != nil && hints.Network.Constrained() {
			total += s.w.InlineBonusConstrained
		} else {
			total += s.w.InlineBonus
		}
	}
	if hints == nil {
		return total, true
	}
	size := c.ByteSize()
	if hints.Width > 0 && c.Width > 0 {
		diff := math.Abs(float64(c.Width-hints.Width)) / float64(hints.Width)
		total += s.w.SizeWeight * (1 - diff)
	}
	if hints.Network != "" {
		penalty := s.w.NetworkPenalty[hints.Network]
		total += s.w.NetworkWeight * (1 - float64(size)/bytesPerMB*penalty)
	}
	if hints.Density >= s.w.DensityThreshold && c.Width >= s.w.DensityMinWidth {
		total += s.w.DensityWeight
	}
	if hints.MaxBytes > 0 && size > hints.MaxBytes {
		total -= s.w.MaxBytesPenalty
	}
	return total, true
}
