package country

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Messages returned to callers.
const (
	MsgNoCriteria       = "No search criteria provided."
	MsgMultipleCriteria = "Please provide only one search criterion at a time."
	MsgNotFound         = "Country not found."
	MsgUpstream         = "An error occurred while fetching data."
	MsgDNS              = "DNS Lookup Error."
	MsgConnTimeout      = "Connection timed out."
	MsgUnexpected       = "An unexpected error occurred."
	MsgDispatch         = "An error occurred while processing your request."
	MsgBudgetExceeded   = "request processing exceeded time budget"
)

// Kind classifies a Failure.
type Kind string

// Failure kinds.
const (
	KindInvalidRequest Kind = "invalid_request"
	KindNotFound       Kind = "not_found"
	KindUpstream       Kind = "upstream_error"
	KindNetwork        Kind = "network_error"
	KindInternal       Kind = "internal_error"
	KindTimeout        Kind = "timeout"
)

// Record is one country document, passed through as returned by the directory.
type Record = json.RawMessage

// Failure is the single error representation shared by the store, the
// orchestrator and the HTTP layer.
type Failure struct {
	Kind    Kind
	Status  int
	Message string
}

// Error implements error.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s (%d): %s", f.Kind, f.Status, f.Message)
}

// InvalidRequest builds a 400 failure.
func InvalidRequest(msg string) *Failure {
	return &Failure{Kind: KindInvalidRequest, Status: http.StatusBadRequest, Message: msg}
}

// NotFound builds the 404 failure used for empty results and upstream 404s.
func NotFound() *Failure {
	return &Failure{Kind: KindNotFound, Status: http.StatusNotFound, Message: MsgNotFound}
}

// UpstreamError mirrors a non-2xx upstream status.
func UpstreamError(status int) *Failure {
	return &Failure{Kind: KindUpstream, Status: status, Message: MsgUpstream}
}

// NetworkError builds a transport level failure.
func NetworkError(status int, msg string) *Failure {
	return &Failure{Kind: KindNetwork, Status: status, Message: msg}
}

// InternalError builds a 500 failure.
func InternalError(msg string) *Failure {
	return &Failure{Kind: KindInternal, Status: http.StatusInternalServerError, Message: msg}
}

// Timeout builds the failure returned when the wait budget is exhausted.
func Timeout() *Failure {
	return &Failure{Kind: KindTimeout, Status: http.StatusGatewayTimeout, Message: MsgBudgetExceeded}
}

type failureJSON struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// MarshalJSON renders the canonical {status, detail} shape.
func (f *Failure) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(failureJSON{Status: f.Status, Detail: f.Message})
	if err != nil {
		return nil, fmt.Errorf("marshal failure: %w", err)
	}
	return data, nil
}

// UnmarshalJSON accepts {status, detail}, {error, status} and {status, message}.
func (f *Failure) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status  int    `json:"status"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal failure: %w", err)
	}
	msg := raw.Detail
	if msg == "" {
		msg = raw.Error
	}
	if msg == "" {
		msg = raw.Message
	}
	f.Status = raw.Status
	f.Message = msg
	f.Kind = kindFor(raw.Status, msg)
	return nil
}

// kindFor recovers a Kind from the wire shape. A 500 carrying
// MsgUnexpected is reported as internal.
func kindFor(status int, msg string) Kind {
	switch {
	case msg == MsgUpstream:
		return KindUpstream
	case status == http.StatusBadRequest:
		return KindInvalidRequest
	case status == http.StatusNotFound:
		return KindNotFound
	case msg == MsgDNS || msg == MsgConnTimeout:
		return KindNetwork
	case status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusServiceUnavailable:
		return KindNetwork
	case status >= http.StatusInternalServerError:
		return KindInternal
	default:
		return KindUpstream
	}
}

// Outcome is the resolved result of a crawl: exactly one of Records or Failure is set.
type Outcome struct {
	Records []Record
	Failure *Failure
}

// Success wraps records in an Outcome.
func Success(records []Record) Outcome {
	return Outcome{Records: records}
}

// Failed wraps a failure in an Outcome.
func Failed(f *Failure) Outcome {
	return Outcome{Failure: f}
}

// OK reports whether the outcome carries records.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

// Status returns the HTTP status that represents the outcome.
func (o Outcome) Status() int {
	if o.Failure != nil {
		return o.Failure.Status
	}
	return http.StatusOK
}
