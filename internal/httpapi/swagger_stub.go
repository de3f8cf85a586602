//go:build !swagger

package httpapi

import "github.com/go-chi/chi/v5"

// MountSwagger leaves /swagger/* unrouted; build with -tags=swagger to serve
// the generated document.
func MountSwagger(chi.Router) {}
