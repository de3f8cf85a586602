package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"elementd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListElements() []types.ElementStatus
	GetElement(id string) (types.ElementStatus, error)
	CreateElement(ctx context.Context, el types.Element, activate bool) (types.ElementStatus, error)
	DeleteElement(id string) error
	ActivateElement(id string) (types.ElementStatus, error)
	SuspendElement(id string) (types.ElementStatus, error)
	UpdateContent(ctx context.Context, id string, req types.UpdateContentRequest) (types.SendEventResponse, error)
	UpdateProps(ctx context.Context, id string, req types.UpdatePropsRequest) (types.SendEventResponse, error)
	ResolveContent(ctx context.Context, id string, caps types.Capabilities) (types.RenderingContent, error)
	Negotiate(id string, caps types.Capabilities) (types.NegotiateResponse, error)
	History(id string, limit int) ([]types.HistoryEntry, error)
	SendEvent(ctx context.Context, ev types.ElementEvent) (types.SendEventResponse, error)
	SendBatchEvents(ctx context.Context, evs []types.ElementEvent) (types.BatchEventsResponse, error)
	Status() types.StatusResponse
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	// Basic middlewares: request id, real ip, request log, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(corsAllowedMethods, []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Accept", "Content-Type", "X-Log-Level", "X-Request-Id"}),
			ExposedHeaders: []string{"X-Request-Id", "X-Cache", "X-Content-Source"},
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}
	r.Group(func(r chi.Router) {
		r.Use(inflightMiddleware)

		r.Get("/elements", h.listElements)
		r.Post("/elements", h.createElement)
		r.Route("/elements/{id}", func(r chi.Router) {
			r.Get("/", h.getElement)
			r.Delete("/", h.deleteElement)
			r.Post("/activate", h.activateElement)
			r.Post("/suspend", h.suspendElement)
			r.Patch("/content", h.updateContent)
			r.Patch("/props", h.updateProps)
			r.Get("/content", h.getContent)
			r.Post("/negotiate", h.negotiate)
			r.Get("/history", h.history)
		})
		r.Post("/events", h.sendEvent)
		r.Post("/events/batch", h.sendBatch)
		r.Get("/status", h.status)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

type handlers struct {
	svc Service
}

// @Summary      List elements
// @Tags         elements
// @Produce      json
// @Success      200  {object}  types.ElementsResponse
// @Router       /elements [get]
func (h *handlers) listElements(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, r, http.StatusOK, types.ElementsResponse{Elements: h.svc.ListElements()})
}

// @Summary      Create, register and (by default) activate an element
// @Tags         elements
// @Accept       json
// @Produce      json
// @Param        activate  query  bool           false  "activate after registering"  default(true)
// @Param        element   body   types.Element  true   "element"
// @Success      201  {object}  types.ElementStatus
// @Failure      400  {object}  types.ErrorResponse
// @Failure      409  {object}  types.ErrorResponse
// @Router       /elements [post]
func (h *handlers) createElement(w http.ResponseWriter, r *http.Request) {
	var el types.Element
	if code, err := decodeBody(w, r, &el); err != nil {
		writeJSONError(w, code, err.Error())
		return
	}
	activate := true
	if v := r.URL.Query().Get("activate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "activate must be a boolean")
			return
		}
		activate = b
	}
	st, err := h.svc.CreateElement(r.Context(), el, activate)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/elements/"+st.Element.ID)
	writeResponse(w, r, http.StatusCreated, st)
}

// @Summary      Get one element with its lifecycle state
// @Tags         elements
// @Produce      json
// @Param        id   path      string  true  "element id"
// @Success      200  {object}  types.ElementStatus
// @Failure      404  {object}  types.ErrorResponse
// @Router       /elements/{id} [get]
func (h *handlers) getElement(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.GetElement(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeResponse(w, r, http.StatusOK, st)
}

func (h *handlers) deleteElement(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteElement(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) activateElement(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.ActivateElement(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeResponse(w, r, http.StatusOK, st)
}

func (h *handlers) suspendElement(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.SuspendElement(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeResponse(w, r, http.StatusOK, st)
}

// @Summary      Replace parts of an element's content
// @Description  Refused with 409 while the element is suspended.
// @Tags         elements
// @Accept       json
// @Produce      json
// @Param        id    path  string                      true  "element id"
// @Param        body  body  types.UpdateContentRequest  true  "content changes"
// @Success      202  {object}  types.SendEventResponse
// @Failure      409  {object}  types.SendEventResponse
// @Failure      429  {object}  types.SendEventResponse
// @Router       /elements/{id}/content [patch]
func (h *handlers) updateContent(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateContentRequest
	if code, err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, code, err.Error())
		return
	}
	res, err := h.svc.UpdateContent(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResponse(w, r, sendStatus(res), res)
}

func (h *handlers) updateProps(w http.ResponseWriter, r *http.Request) {
	var req types.UpdatePropsRequest
	if code, err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, code, err.Error())
		return
	}
	res, err := h.svc.UpdateProps(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResponse(w, r, sendStatus(res), res)
}

// @Summary      Negotiate and return element content
// @Description  Capabilities come from the Accept header plus optional hints.
// @Tags         content
// @Produce      */*
// @Param        id         path   string  true   "element id"
// @Param        width      query  int     false  "viewport width in px"
// @Param        height     query  int     false  "viewport height in px"
// @Param        density    query  number  false  "device pixel ratio"
// @Param        network    query  string  false  "FAST, SLOW or CELLULAR"
// @Param        max_bytes  query  int     false  "largest acceptable payload"
// @Success      200
// @Failure      406  {object}  types.ErrorResponse
// @Failure      413  {object}  types.ErrorResponse
// @Failure      502  {object}  types.ErrorResponse
// @Failure      504  {object}  types.ErrorResponse
// @Router       /elements/{id}/content [get]
func (h *handlers) getContent(w http.ResponseWriter, r *http.Request) {
	caps, err := capabilitiesFromRequest(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := fetchContext(r)
	defer cancel()
	rc, err := h.svc.ResolveContent(ctx, chi.URLParam(r, "id"), caps)
	if err != nil {
		switch {
		case r.Context().Err() != nil:
			// client went away
		case errors.Is(context.Cause(ctx), errShuttingDown):
			writeJSONError(w, http.StatusServiceUnavailable, errShuttingDown.Error())
		default:
			writeError(w, err)
		}
		return
	}
	cache := "MISS"
	if rc.Metadata.FromCache {
		cache = "HIT"
	}
	hdr := w.Header()
	hdr.Set("Content-Type", rc.MediaType)
	hdr.Set("Content-Length", strconv.Itoa(len(rc.Data)))
	hdr.Set("Vary", "Accept")
	hdr.Set("X-Cache", cache)
	hdr.Set("X-Content-Source", string(rc.Source.Type))
	w.WriteHeader(http.StatusOK)
	n, _ := w.Write(rc.Data)
	contentBytesTotal.WithLabelValues(rc.MediaType, strings.ToLower(cache)).Add(float64(n))
}

// capabilitiesFromRequest builds capabilities from the Accept header and
// hint query parameters.
func capabilitiesFromRequest(r *http.Request) (types.Capabilities, error) {
	accept := r.Header.Get("Accept")
	if strings.TrimSpace(accept) == "" {
		accept = "*/*"
	}
	caps := types.Capabilities{Accept: []string{accept}}
	q := r.URL.Query()
	var hints types.Hints
	set := false
	for _, p := range []struct {
		name string
		dst  *int
	}{{"width", &hints.Width}, {"height", &hints.Height}} {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return caps, fmt.Errorf("%s must be a non-negative integer", p.name)
			}
			*p.dst = n
			set = true
		}
	}
	if v := q.Get("density"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return caps, fmt.Errorf("density must be a positive number")
		}
		hints.Density = f
		set = true
	}
	if v := q.Get("network"); v != "" {
		n := types.NetworkClass(strings.ToUpper(v))
		switch n {
		case types.NetworkFast, types.NetworkSlow, types.NetworkCellular:
		default:
			return caps, fmt.Errorf("network must be FAST, SLOW or CELLULAR")
		}
		hints.Network = n
		set = true
	}
	if v := q.Get("max_bytes"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return caps, fmt.Errorf("max_bytes must be a non-negative integer")
		}
		hints.MaxBytes = n
		set = true
	}
	if set {
		caps.Hints = &hints
	}
	return caps, nil
}

// @Summary      Score every representation against the given capabilities
// @Tags         content
// @Accept       json
// @Produce      json
// @Param        id    path  string              true  "element id"
// @Param        caps  body  types.Capabilities  true  "client capabilities"
// @Success      200  {object}  types.NegotiateResponse
// @Router       /elements/{id}/negotiate [post]
func (h *handlers) negotiate(w http.ResponseWriter, r *http.Request) {
	var caps types.Capabilities
	if code, err := decodeBody(w, r, &caps); err != nil {
		writeJSONError(w, code, err.Error())
		return
	}
	res, err := h.svc.Negotiate(chi.URLParam(r, "id"), caps)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResponse(w, r, http.StatusOK, res)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := h.svc.History(chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResponse(w, r, http.StatusOK, types.HistoryResponse{Entries: entries})
}

// @Summary      Submit one element event
// @Description  Accepts application/json or application/cbor. 202 acknowledges acceptance; the change is applied on the next flush.
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        event  body  types.ElementEvent  true  "event"
// @Success      202  {object}  types.SendEventResponse
// @Failure      404  {object}  types.SendEventResponse
// @Failure      429  {object}  types.SendEventResponse
// @Router       /events [post]
func (h *handlers) sendEvent(w http.ResponseWriter, r *http.Request) {
	var ev types.ElementEvent
	if code, err := decodeBody(w, r, &ev); err != nil {
		writeJSONError(w, code, err.Error())
		return
	}
	if !ev.EventType.Valid() {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown eventType %q", ev.EventType))
		return
	}
	res, err := h.svc.SendEvent(r.Context(), ev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResponse(w, r, sendStatus(res), res)
}

// @Summary      Submit several events in order
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        events  body  []types.ElementEvent  true  "events"
// @Success      200  {object}  types.BatchEventsResponse
// @Router       /events/batch [post]
func (h *handlers) sendBatch(w http.ResponseWriter, r *http.Request) {
	var evs []types.ElementEvent
	if code, err := decodeBody(w, r, &evs); err != nil {
		writeJSONError(w, code, err.Error())
		return
	}
	if len(evs) == 0 {
		writeJSONError(w, http.StatusBadRequest, "at least one event is required")
		return
	}
	if len(evs) > maxBatchEvents {
		writeJSONError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("batch exceeds %d events", maxBatchEvents))
		return
	}
	res, err := h.svc.SendBatchEvents(r.Context(), evs)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, f := range res.Failed {
		if f.Code == types.SendQueueFull {
			IncrementBackpressure("queue_full")
		}
	}
	writeResponse(w, r, http.StatusOK, res)
}

// @Summary      Service status
// @Tags         admin
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, r, http.StatusOK, h.svc.Status())
}
