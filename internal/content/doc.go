// Package content turns a negotiated PayloadSource into bytes.
//
//   - cache.go: Cache interface and the TTL-bound MemoryCache.
//   - fingerprint.go: cache keys derived from a PayloadSource.
//   - strategy.go: LoadingStrategy and DefaultStrategy (inline decode, HTTP fetch).
//   - resolver.go: Resolver orchestrating selector -> cache -> strategy.
//   - render.go: RenderContext callbacks for UI bindings.
//   - errors.go: LoadError codes and helpers.
package content
