package content

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"elementd/pkg/types"
)

// Defaults applied when ResolveOptions fields are unset.
const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxSize      = 10 << 20
)

// ResolveOptions tune a single resolution.
type ResolveOptions struct {
	// SkipCache bypasses both lookup and store.
	SkipCache bool
	// MaxSize caps the payload size in bytes.
	MaxSize int64
	// Timeout bounds an external fetch.
	Timeout time.Duration
}

func (o ResolveOptions) withDefaults() ResolveOptions {
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultFetchTimeout
	}
	return o
}

// LoadingStrategy turns a PayloadSource into bytes. Failures are returned as
// *LoadError.
type LoadingStrategy interface {
	CanHandle(src types.PayloadSource) bool
	Resolve(ctx context.Context, src types.PayloadSource, caps types.Capabilities, opts ResolveOptions) (types.RenderingContent, error)
}

// DefaultStrategy decodes inline payloads and fetches external ones over HTTP.
type DefaultStrategy struct {
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

// NewDefaultStrategy uses client for external fetches; nil means http.DefaultClient.
func NewDefaultStrategy(client *http.Client, logger zerolog.Logger) *DefaultStrategy {
	if client == nil {
		client = http.DefaultClient
	}
	return &DefaultStrategy{client: client, log: logger, now: time.Now}
}

func (s *DefaultStrategy) CanHandle(src types.PayloadSource) bool {
	switch src.Type {
	case types.SourceInline:
		return src.Source != ""
	case types.SourceExternal:
		u, err := url.Parse(src.URI)
		return err == nil && (u.Scheme == "http" || u.Scheme == "https")
	}
	return false
}

func (s *DefaultStrategy) Resolve(ctx context.Context, src types.PayloadSource, _ types.Capabilities, opts ResolveOptions) (types.RenderingContent, error) {
	opts = opts.withDefaults()
	if src.Type == types.SourceInline {
		return s.resolveInline(src, opts)
	}
	return s.fetch(ctx, src, opts)
}

func (s *DefaultStrategy) resolveInline(src types.PayloadSource, opts ResolveOptions) (types.RenderingContent, error) {
	data := []byte(src.Source)
	if src.Encoding == "base64" {
		dec, err := base64.StdEncoding.DecodeString(src.Source)
		if err != nil {
			return types.RenderingContent{}, loadErr(CodeInvalidSource, "invalid base64 payload", err)
		}
		data = dec
	}
	if int64(len(data)) > opts.MaxSize {
		return types.RenderingContent{}, loadErr(CodeSizeLimit, "inline content exceeds max size", nil)
	}
	return s.content(src, src.MediaType, data), nil
}

func (s *DefaultStrategy) fetch(ctx context.Context, src types.PayloadSource, opts ResolveOptions) (types.RenderingContent, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URI, nil)
	if err != nil {
		return types.RenderingContent{}, loadErr(CodeInvalidSource, "invalid uri", err)
	}
	req.Header.Set("Accept", src.MediaType)
	resp, err := s.client.Do(req)
	if err != nil {
		return types.RenderingContent{}, transportErr(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.log.Warn().Str("uri", src.URI).Int("status", resp.StatusCode).Msg("fetch failed")
		return types.RenderingContent{}, httpStatusErr(resp.StatusCode)
	}
	if resp.ContentLength > opts.MaxSize {
		return types.RenderingContent{}, loadErr(CodeSizeLimit, "external content exceeds max size", nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxSize+1))
	if err != nil {
		return types.RenderingContent{}, transportErr(ctx, err)
	}
	if int64(len(data)) > opts.MaxSize {
		return types.RenderingContent{}, loadErr(CodeSizeLimit, "external content exceeds max size", nil)
	}
	mediaType := src.MediaType
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = mt
		}
	}
	return s.content(src, mediaType, data), nil
}

func transportErr(ctx context.Context, err error) *LoadError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return loadErr(CodeTimeout, "fetch timed out", err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return loadErr(CodeCanceled, "fetch canceled", context.Cause(ctx))
	}
	return loadErr(CodeNetwork, "fetch failed", err)
}

// contextErr reports why the caller's ctx ended.
func contextErr(ctx context.Context) *LoadError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return loadErr(CodeTimeout, "fetch timed out", context.Cause(ctx))
	}
	return loadErr(CodeCanceled, "fetch canceled", context.Cause(ctx))
}

func (s *DefaultStrategy) content(src types.PayloadSource, mediaType string, data []byte) types.RenderingContent {
	rc := types.RenderingContent{
		Data:      data,
		MediaType: mediaType,
		Source:    src,
		Metadata: types.ContentMetadata{
			Size:     int64(len(data)),
			LoadedAt: s.now(),
			Width:    src.Width,
			Height:   src.Height,
		},
	}
	if rc.Metadata.Width == 0 {
		rc.Metadata.Width, rc.Metadata.Height = probeDimensions(mediaType, data)
	}
	return rc
}

// probeDimensions reads the pixel size of raster images; zero when unknown.
func probeDimensions(mediaType string, data []byte) (int, int) {
	if !strings.HasPrefix(mediaType, "image/") || strings.HasPrefix(mediaType, "image/svg") {
		return 0, 0
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
