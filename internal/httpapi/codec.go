package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/munnerz/goautoneg"
)

const (
	mediaJSON = "application/json"
	mediaCBOR = "application/cbor"
)

var (
	cborDec cbor.DecMode
	cborEnc cbor.EncMode
)

func init() {
	var err error
	// Nested maps decode as map[string]any so event data matches the JSON path.
	cborDec, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: 32,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	cborEnc, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
}

// errUnsupportedMediaType is returned for bodies that are neither JSON nor CBOR.
var errUnsupportedMediaType = errors.New("Content-Type must be application/json or application/cbor")

// errBodyTooLarge is returned when the body exceeds maxBodyBytes.
var errBodyTooLarge = errors.New("request body too large")

// decodeBody reads a size-limited JSON or CBOR body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) (int, error) {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || (mt != mediaJSON && mt != mediaCBOR) {
		return http.StatusUnsupportedMediaType, errUnsupportedMediaType
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	b, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return http.StatusRequestEntityTooLarge, errBodyTooLarge
		}
		return http.StatusBadRequest, fmt.Errorf("read body: %w", err)
	}
	if mt == mediaCBOR {
		if err := cborDec.Unmarshal(b, v); err != nil {
			return http.StatusBadRequest, errors.New("invalid CBOR body")
		}
		return 0, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return http.StatusBadRequest, errors.New("invalid JSON body")
	}
	return 0, nil
}

// responseType picks JSON or CBOR from the request's Accept header. JSON wins
// when the header is absent or matches neither.
func responseType(r *http.Request) string {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return mediaJSON
	}
	if mt := goautoneg.Negotiate(accept, []string{mediaJSON, mediaCBOR}); mt != "" {
		return mt
	}
	return mediaJSON
}

// writeResponse encodes v in the negotiated format.
func writeResponse(w http.ResponseWriter, r *http.Request, status int, v any) {
	if responseType(r) == mediaCBOR {
		b, err := cborEnc.Marshal(v)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
		w.Header().Set("Content-Type", mediaCBOR)
		w.WriteHeader(status)
		_, _ = w.Write(b)
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", mediaJSON)
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}
