package twirp

import (
	"net/http"
	"strconv"

	"github.com/unkn0wn-root/rpccache/codec"
)

// Error codes of the Twirp wire protocol.
const (
	Canceled           = "canceled"
	Unknown            = "unknown"
	InvalidArgument    = "invalid_argument"
	Malformed          = "malformed"
	DeadlineExceeded   = "deadline_exceeded"
	NotFound           = "not_found"
	BadRoute           = "bad_route"
	AlreadyExists      = "already_exists"
	PermissionDenied   = "permission_denied"
	Unauthenticated    = "unauthenticated"
	ResourceExhausted  = "resource_exhausted"
	FailedPrecondition = "failed_precondition"
	Aborted            = "aborted"
	OutOfRange         = "out_of_range"
	Unimplemented      = "unimplemented"
	Internal           = "internal"
	Unavailable        = "unavailable"
	DataLoss           = "data_loss"
)

// Error is a Twirp error as carried in a non-2xx JSON response body.
type Error struct {
	Code string            `json:"code"`
	Msg  string            `json:"msg"`
	Meta map[string]string `json:"meta,omitempty"`

	HTTPStatus int    `json:"-"`
	Body       []byte `json:"-"` // raw upstream body, relayed verbatim by the proxy
}

func (e *Error) Error() string {
	return "twirp error " + e.Code + ": " + e.Msg
}

var jsonErr = codec.JSON[Error]{}

// errorFromResponse decodes a Twirp JSON error. Bodies that are not Twirp errors
// (an intermediary's HTML page, say) get a code derived from the HTTP status.
func errorFromResponse(res *http.Response, body []byte) *Error {
	e, err := jsonErr.Decode(body)
	if err != nil || e.Code == "" {
		e = Error{
			Code: codeFromStatus(res.StatusCode),
			Msg:  "Error from intermediary with HTTP status code " + strconv.Itoa(res.StatusCode) + " " + http.StatusText(res.StatusCode),
		}
	}
	e.HTTPStatus = res.StatusCode
	e.Body = body
	return &e
}

func codeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return Internal
	case http.StatusUnauthorized:
		return Unauthenticated
	case http.StatusForbidden:
		return PermissionDenied
	case http.StatusNotFound:
		return BadRoute
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return Unavailable
	}
	if status >= 300 && status < 400 {
		return Internal
	}
	return Unknown
}

// StatusFor maps an error code to the HTTP status a Twirp server answers with.
func StatusFor(code string) int {
	switch code {
	case Canceled:
		return 408
	case InvalidArgument, Malformed, OutOfRange:
		return http.StatusBadRequest
	case DeadlineExceeded:
		return http.StatusRequestTimeout
	case NotFound, BadRoute:
		return http.StatusNotFound
	case AlreadyExists, Aborted:
		return http.StatusConflict
	case PermissionDenied:
		return http.StatusForbidden
	case Unauthenticated:
		return http.StatusUnauthorized
	case ResourceExhausted:
		return http.StatusTooManyRequests
	case FailedPrecondition:
		return http.StatusPreconditionFailed
	case Unimplemented:
		return http.StatusNotImplemented
	case Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError writes e as a Twirp JSON error response. A non-zero HTTPStatus wins
// over the code's default status.
func WriteError(w http.ResponseWriter, e *Error) {
	status := e.HTTPStatus
	if status == 0 {
		status = StatusFor(e.Code)
	}
	body, err := jsonErr.Encode(*e)
	if err != nil {
		body = []byte(`{"code":"internal","msg":"error encoding failed"}`)
	}
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
