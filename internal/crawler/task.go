package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/JakeFAU/country-directory/internal/country"
)

// Task is a single-use unit that queries one directory endpoint.
type Task struct {
	Criterion country.Criterion
	BaseURL   string
}

// NewTask builds a Task for the criterion against the directory base URL.
func NewTask(baseURL string, criterion country.Criterion) Task {
	return Task{Criterion: criterion, BaseURL: baseURL}
}

// Run issues exactly one request through fetcher and classifies the outcome.
// It never retries.
func (t Task) Run(ctx context.Context, fetcher Fetcher, taskID string) Result {
	start := time.Now()
	target, err := BuildURL(t.BaseURL, t.Criterion)
	if err != nil {
		return Result{
			Outcome: country.Failed(country.InternalError(country.MsgUnexpected)),
			Err:     err,
		}
	}
	resp, err := fetcher.Fetch(ctx, FetchRequest{
		TaskID:  taskID,
		URL:     target,
		Headers: http.Header{"Accept": {"application/json"}},
	})
	duration := resp.Duration
	if duration == 0 {
		duration = time.Since(start)
	}
	return Result{
		Outcome:    Classify(resp, err),
		URL:        target,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Duration:   duration,
		Err:        err,
	}
}

// Classify maps a fetch response or transport error to an outcome.
func Classify(resp FetchResponse, err error) country.Outcome {
	if err != nil {
		return country.Failed(classifyError(err))
	}
	switch resp.StatusCode {
	case http.StatusOK:
		var records []country.Record
		if jsonErr := json.Unmarshal(resp.Body, &records); jsonErr != nil {
			return country.Failed(country.UpstreamError(http.StatusBadGateway))
		}
		if len(records) == 0 {
			return country.Failed(country.NotFound())
		}
		return country.Success(records)
	case http.StatusNotFound:
		return country.Failed(country.NotFound())
	default:
		return country.Failed(country.UpstreamError(resp.StatusCode))
	}
}

func classifyError(err error) *country.Failure {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return country.NetworkError(http.StatusServiceUnavailable, country.MsgDNS)
	}
	if isTimeout(err) {
		return country.NetworkError(http.StatusGatewayTimeout, country.MsgConnTimeout)
	}
	return country.NetworkError(http.StatusInternalServerError, country.MsgUnexpected)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	// a connection dropped mid-response is reported like a timeout
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// UpstreamDetail extracts the directory's own error message from a non-2xx
// body, returning "" when the body is not an error document.
func UpstreamDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var f country.Failure
	if err := json.Unmarshal(body, &f); err != nil {
		return ""
	}
	return f.Message
}
