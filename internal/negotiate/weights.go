package negotiate

import "elementd/pkg/types"

// Defaults applied when corresponding Weights fields are unset.
const (
	DefaultSizeWeight             = 0.3
	DefaultNetworkWeight          = 0.4
	DefaultDensityWeight          = 0.2
	DefaultMaxBytesPenalty        = 0.5
	DefaultInlineBonus            = 0.05
	DefaultInlineBonusConstrained = 0.15
	DefaultDensityThreshold       = 2.0
	DefaultDensityMinWidth        = 1600
)

// DefaultFormatBonus breaks ties toward modern, efficient formats.
var DefaultFormatBonus = map[string]float64{
	"image/avif":    0.15,
	"image/webp":    0.10,
	"image/svg+xml": 0.08,
	"image/jpeg":    0.05,
	"image/png":     0.02,
	"text/html":     0.10,
	"text/markdown": 0.05,
}

// DefaultNetworkPenalty is the per-megabyte cost factor of each network class.
var DefaultNetworkPenalty = map[types.NetworkClass]float64{
	types.NetworkFast:     0,
	types.NetworkSlow:     0.5,
	types.NetworkCellular: 0.8,
}

// Weights are the negotiation constants.
type Weights struct {
	SizeWeight             float64
	NetworkWeight          float64
	DensityWeight          float64
	MaxBytesPenalty        float64
	InlineBonus            float64
	InlineBonusConstrained float64
	DensityThreshold       float64
	DensityMinWidth        int
	FormatBonus            map[string]float64
	NetworkPenalty         map[types.NetworkClass]float64
}

// DefaultWeights returns the stock weights.
func DefaultWeights() Weights {
	return Weights{}.withDefaults()
}

func (w Weights) withDefaults() Weights {
	if w.SizeWeight <= 0 {
		w.SizeWeight = DefaultSizeWeight
	}
	if w.NetworkWeight <= 0 {
		w.NetworkWeight = DefaultNetworkWeight
	}
	if w.DensityWeight <= 0 {
		w.DensityWeight = DefaultDensityWeight
	}
	if w.MaxBytesPenalty <= 0 {
		w.MaxBytesPenalty = DefaultMaxBytesPenalty
	}
	if w.InlineBonus <= 0 {
		w.InlineBonus = DefaultInlineBonus
	}
	if w.InlineBonusConstrained <= 0 {
		w.InlineBonusConstrained = DefaultInlineBonusConstrained
	}
	if w.DensityThreshold <= 0 {
		w.DensityThreshold = DefaultDensityThreshold
	}
	if w.DensityMinWidth <= 0 {
		w.DensityMinWidth = DefaultDensityMinWidth
	}
	if w.FormatBonus == nil {
		w.FormatBonus = DefaultFormatBonus
	}
	if w.NetworkPenalty == nil {
		w.NetworkPenalty = DefaultNetworkPenalty
	}
	return w
}
