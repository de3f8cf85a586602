package types

import (
	"errors"
	"fmt"
	"strings"
)

// SourceType distinguishes embedded payloads from references.
type SourceType string

const (
	SourceInline   SourceType = "inline"
	SourceExternal SourceType = "external"
)

// NetworkClass is a client's declared network quality.
type NetworkClass string

const (
	NetworkFast     NetworkClass = "FAST"
	NetworkSlow     NetworkClass = "SLOW"
	NetworkCellular NetworkClass = "CELLULAR"
)

// Constrained reports whether the class favors zero-round-trip content.
func (n NetworkClass) Constrained() bool {
	return n == NetworkSlow || n == NetworkCellular
}

// PayloadSource is one concrete representation of an element's content.
type PayloadSource struct {
	// inline | external
	// example: external
	Type SourceType `json:"type" yaml:"type" example:"external"`
	// Declared media type of the payload.
	// example: image/webp
	MediaType string `json:"mediaType" yaml:"mediaType" example:"image/webp"`
	// Embedded payload, required for inline sources.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	// Encoding of Source: empty for raw text, "base64" for binary payloads.
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	// Location of the payload, required for external sources.
	// example: https://cdn.example.com/diagram.webp
	URI string `json:"uri,omitempty" yaml:"uri,omitempty" example:"https://cdn.example.com/diagram.webp"`
	// Optional upstream content hash, folded into the cache fingerprint.
	ContentHash string `json:"contentHash,omitempty" yaml:"contentHash,omitempty"`
	// Pixel dimensions, when known.
	Width  int `json:"width,omitempty" yaml:"width,omitempty" example:"1600"`
	Height int `json:"height,omitempty" yaml:"height,omitempty" example:"900"`
	// Declared byte size of an external payload, when known.
	Size int64 `json:"size,omitempty" yaml:"size,omitempty" example:"48213"`
}

// BaseMediaType returns the media type without parameters, lower-cased.
func (p PayloadSource) BaseMediaType() string {
	mt, _, _ := strings.Cut(p.MediaType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// ByteSize is the best known size of the payload in bytes. Inline sources
// report the length of the embedded data; base64 content is scaled to its
// decoded length.
func (p PayloadSource) ByteSize() int64 {
	if p.Type == SourceInline {
		n := int64(len(p.Source))
		if p.Encoding == "base64" {
			n = n * 3 / 4
		}
		return n
	}
	return p.Size
}

// Validate checks the inline/external invariant.
func (p PayloadSource) Validate() error {
	if strings.TrimSpace(p.MediaType) == "" {
		return errors.New("mediaType is required")
	}
	switch p.Type {
	case SourceInline:
		if p.Source == "" {
			return errors.New("inline source requires source")
		}
		if p.Encoding != "" && p.Encoding != "base64" {
			return fmt.Errorf("unsupported encoding %q", p.Encoding)
		}
	case SourceExternal:
		if p.URI == "" {
			return errors.New("external source requires uri")
		}
	default:
		return fmt.Errorf("unknown source type %q", p.Type)
	}
	return nil
}

// Hints carry contextual client information used during negotiation.
type Hints struct {
	Width    int          `json:"width,omitempty" yaml:"width,omitempty" example:"800"`
	Height   int          `json:"height,omitempty" yaml:"height,omitempty" example:"600"`
	Density  float64      `json:"density,omitempty" yaml:"density,omitempty" example:"2"`
	Network  NetworkClass `json:"network,omitempty" yaml:"network,omitempty" example:"FAST"`
	MaxBytes int64        `json:"maxBytes,omitempty" yaml:"maxBytes,omitempty" example:"500000"`
}

// Capabilities describe what a client can render.
type Capabilities struct {
	// Accepted media type patterns, optionally weighted with ";q=".
	// example: ["image/webp","image/*;q=0.8"]
	Accept []string `json:"accept" yaml:"accept"`
	Hints  *Hints   `json:"hints,omitempty" yaml:"hints,omitempty"`
}

// Validate enforces a non-empty accept list.
func (c Capabilities) Validate() error {
	if len(c.Accept) == 0 {
		return errors.New("capabilities.accept must not be empty")
	}
	return nil
}

// ElementContent groups the equivalent representations of an element.
type ElementContent struct {
	Primary      PayloadSource   `json:"primary" yaml:"primary"`
	Source       *PayloadSource  `json:"source,omitempty" yaml:"source,omitempty"`
	Alternatives []PayloadSource `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
}

// Candidates returns primary followed by alternatives, in declaration order.
func (c ElementContent) Candidates() []PayloadSource {
	out := make([]PayloadSource, 0, 1+len(c.Alternatives))
	out = append(out, c.Primary)
	return append(out, c.Alternatives...)
}

// Clone returns a deep copy so callers never alias stored content.
func (c ElementContent) Clone() ElementContent {
	out := ElementContent{Primary: c.Primary}
	if c.Source != nil {
		s := *c.Source
		out.Source = &s
	}
	if c.Alternatives != nil {
		out.Alternatives = append([]PayloadSource(nil), c.Alternatives...)
	}
	return out
}

// Element is a publishable unit of content.
type Element struct {
	// example: diagram-42
	ID string `json:"id" yaml:"id" example:"diagram-42"`
	// example: diagram
	Kind     string         `json:"kind" yaml:"kind" example:"diagram"`
	Content  ElementContent `json:"content" yaml:"content"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a copy with its own content and a shallow copy of metadata.
func (e Element) Clone() Element {
	out := Element{ID: e.ID, Kind: e.Kind, Content: e.Content.Clone()}
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Validate checks identity and every declared representation.
func (e Element) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("element id is required")
	}
	if err := e.Content.Primary.Validate(); err != nil {
		return fmt.Errorf("primary: %w", err)
	}
	if e.Content.Source != nil {
		if err := e.Content.Source.Validate(); err != nil {
			return fmt.Errorf("source: %w", err)
		}
	}
	for i, alt := range e.Content.Alternatives {
		if err := alt.Validate(); err != nil {
			return fmt.Errorf("alternatives[%d]: %w", i, err)
		}
	}
	return nil
}
