package proxy

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/hazyhaar/cardcrafter/proxy/internal/fetch"
)

var (
	// ErrUnauthorized is returned when the authenticity token is missing or invalid.
	ErrUnauthorized = errors.New("proxy: unauthorized")
	// ErrUnsafeURL is returned for unparsable URLs and SSRF-risky targets.
	ErrUnsafeURL = errors.New("proxy: invalid or unsafe url")
	// ErrUpstream is returned when the upstream fetch fails.
	ErrUpstream = errors.New("proxy: upstream fetch failed")
	// ErrDecode is returned when the upstream body is not usable JSON.
	ErrDecode = errors.New("proxy: invalid json payload")
)

// Client-visible messages. Nothing else is ever sent back to callers.
const (
	MsgNotFound     = "Data source not found. Please check the URL and try again."
	MsgAccessDenied = "Access denied. The data source may require authentication."
	MsgUnavailable  = "The data source is experiencing technical difficulties or is temporarily unavailable. Please try again later."
	MsgRateLimited  = "The data source is receiving too many requests. Please try again later."
	MsgNetwork      = "Network connection error. Please try again later."
	MsgTLS          = "Secure connection error. The data source certificate could not be verified."
	MsgInvalidJSON  = "The data source returned invalid JSON."
	MsgGeneric      = "Unable to retrieve data. Please try again later."
	MsgUnsafeURL    = "Invalid or unsafe URL."
	MsgAuth         = "Security check failed."
	MsgBadRequest   = "Invalid request."
)

// FetchError describes a failed upstream fetch. Status is the upstream
// HTTP status (0 for transport failures).
type FetchError struct {
	Kind   error // ErrUpstream or ErrDecode
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%v: http %d", e.Kind, e.Status)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() []error { return []error{e.Kind, e.Err} }

func upstreamError(err error) *FetchError {
	fe := &FetchError{Kind: ErrUpstream, Err: err}
	var se *fetch.StatusError
	if errors.As(err, &se) {
		fe.Status = se.Code
	}
	return fe
}

// Sanitize maps an upstream failure to one of the fixed client-visible
// messages. errMsg is only inspected, never echoed.
func Sanitize(status int, errMsg string) string {
	switch {
	case status == 404 || status == 410:
		return MsgNotFound
	case status == 401 || status == 403:
		return MsgAccessDenied
	case status == 429:
		return MsgRateLimited
	case status >= 500 && status < 600:
		return MsgUnavailable
	}

	msg := strings.ToLower(errMsg)
	switch {
	case isTLSError(msg):
		return MsgTLS
	case isNetworkError(msg):
		return MsgNetwork
	case isJSONError(msg):
		return MsgInvalidJSON
	}
	return MsgGeneric
}

// PublicMessage returns the client-visible message for any error produced
// by the Service.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return MsgAuth
	case errors.Is(err, ErrUnsafeURL):
		return MsgUnsafeURL
	case errors.Is(err, ErrDecode):
		return MsgInvalidJSON
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		if fe.Status == 0 && fe.Err != nil {
			if msg := transportMessage(fe.Err); msg != "" {
				return msg
			}
		}
		return Sanitize(fe.Status, errorDetail(fe.Err))
	}
	return Sanitize(0, errorDetail(err))
}

// transportMessage classifies a transport failure by its error types, or
// returns "" when none match.
func transportMessage(err error) string {
	var (
		verifyErr  *tls.CertificateVerificationError
		recordErr  tls.RecordHeaderError
		alertErr   tls.AlertError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &verifyErr), errors.As(err, &recordErr), errors.As(err, &alertErr),
		errors.As(err, &unknownCA), errors.As(err, &hostErr), errors.As(err, &invalidErr):
		return MsgTLS
	}

	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
		netErr net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &dnsErr), errors.As(err, &opErr),
		errors.As(err, &netErr) && netErr.Timeout():
		return MsgNetwork
	}
	return ""
}

// errorDetail is the text of err for keyword matching, without the request
// URL a *url.Error carries; a host name must not steer the classification.
func errorDetail(err error) string {
	if err == nil {
		return ""
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err.Error()
	}
	return err.Error()
}

// HTTPStatus returns the proxy endpoint status code for err.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, ErrUnauthorized):
		return 403
	case errors.Is(err, ErrUnsafeURL):
		return 400
	}
	return 502
}

func isTLSError(msg string) bool {
	return strings.Contains(msg, "tls") ||
		strings.Contains(msg, "x509") ||
		strings.Contains(msg, "certificate")
}

func isNetworkError(msg string) bool {
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "dns") ||
		strings.Contains(msg, "eof")
}

func isJSONError(msg string) bool {
	return strings.Contains(msg, "json") &&
		(strings.Contains(msg, "unmarshal") || strings.Contains(msg, "invalid") || strings.Contains(msg, "unexpected"))
}
