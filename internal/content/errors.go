package content

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Load failure codes.
const (
	CodeSizeLimit     = "SIZE_LIMIT"
	CodeNotFound      = "NOT_FOUND"
	CodeTimeout       = "TIMEOUT"
	CodeNetwork       = "NETWORK"
	CodeInvalidSource = "INVALID_SOURCE"
	// The caller gave up; not an upstream failure.
	CodeCanceled = "CANCELED"
)

// ErrNoSuitableRepresentation is returned when negotiation selects nothing.
var ErrNoSuitableRepresentation = errors.New("no suitable representation")

// ErrUnsupportedSource is returned when no strategy can load the selected source.
var ErrUnsupportedSource = errors.New("unsupported payload source")

// LoadError is the failure half of a LoadingStrategy result.
type LoadError struct {
	Code    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return e.Code + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *LoadError) Unwrap() error { return e.Cause }

func loadErr(code, msg string, cause error) *LoadError {
	return &LoadError{Code: code, Message: msg, Cause: cause}
}

// httpStatusErr maps a non-2xx response to a LoadError.
func httpStatusErr(status int) *LoadError {
	if status == http.StatusNotFound {
		return loadErr(CodeNotFound, "upstream returned 404", nil)
	}
	return loadErr("HTTP_"+strconv.Itoa(status), fmt.Sprintf("upstream returned %d", status), nil)
}

// ResolveError wraps a resolution failure with the element it concerned.
type ResolveError struct {
	ElementID string
	Err       error
}

func (e *ResolveError) Error() string {
	return "resolve " + e.ElementID + ": " + e.Err.Error()
}

func (e *ResolveError) Unwrap() error { return e.Err }

// LoadErrorCode returns the code of the first LoadError in err's chain.
func LoadErrorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

func IsSizeLimit(err error) bool { return LoadErrorCode(err) == CodeSizeLimit }
func IsTimeout(err error) bool   { return LoadErrorCode(err) == CodeTimeout }
func IsCanceled(err error) bool  { return LoadErrorCode(err) == CodeCanceled }

// IsNetwork reports transport failures and non-2xx upstream responses other than 404.
func IsNetwork(err error) bool {
	code := LoadErrorCode(err)
	return code == CodeNetwork || strings.HasPrefix(code, "HTTP_")
}

// IsNotFound reports missing upstream content or an unmatched negotiation.
func IsNotFound(err error) bool {
	return LoadErrorCode(err) == CodeNotFound || errors.Is(err, ErrNoSuitableRepresentation)
}
