package content

import (
	"context"

	"elementd/pkg/types"
)

// RenderContext is handed to UI bindings alongside an element.
type RenderContext struct {
	Capabilities types.Capabilities
	OnError      func(error)
	OnLoading    func(loading bool)
}

// Render resolves content for a binding, reporting progress and failures
// through the context callbacks before returning them.
func (r *Resolver) Render(ctx context.Context, el types.Element, rc RenderContext, opts ResolveOptions) (types.RenderingContent, error) {
	if rc.OnLoading != nil {
		rc.OnLoading(true)
		defer rc.OnLoading(false)
	}
	c, err := r.ResolveElementContent(ctx, el, rc.Capabilities, opts)
	if err != nil && rc.OnError != nil {
		rc.OnError(err)
	}
	return c, err
}
