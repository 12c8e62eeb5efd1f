// Package errclass maps raised faults to typed, user-facing error
// descriptions. Classification never fails: unrecognized faults come back as
// KindUnknown and retryable.
package errclass

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

// Kind is the error taxonomy exposed to callers.
type Kind string

const (
	KindNetworkUnavailable Kind = "network_unavailable"
	KindTimeout            Kind = "timeout"
	KindServerError        Kind = "server_error"
	KindClientError        Kind = "client_error"
	KindAuthentication     Kind = "authentication_error"
	KindNotFound           Kind = "not_found"
	KindRateLimited        Kind = "rate_limited"
	KindUnknownHost        Kind = "unknown_host"
	KindParsing            Kind = "parsing_error"
	KindUnknown            Kind = "unknown"
)

// ErrorInfo is the classification result handed to the presentation layer.
type ErrorInfo struct {
	Kind        Kind
	Message     string // technical detail
	UserMessage string // short human-readable summary
	Retryable   bool
	Cause       error
	Timestamp   time.Time
}

var userMessages = map[Kind]string{
	KindNetworkUnavailable: "No network connection. Check your connectivity and try again.",
	KindTimeout:            "The server took too long to respond.",
	KindServerError:        "The server ran into a problem. Try again in a moment.",
	KindClientError:        "The request could not be processed.",
	KindAuthentication:     "Authentication failed. Check your credentials.",
	KindNotFound:           "The requested item was not found.",
	KindRateLimited:        "Too many requests. Please wait before retrying.",
	KindUnknownHost:        "The server address could not be resolved.",
	KindParsing:            "The server sent an unexpected response.",
	KindUnknown:            "Something went wrong. Please try again.",
}

// ClassifyStatus maps an HTTP status code to an ErrorInfo. Statuses below
// 400 classify as KindUnknown since they are not errors.
func ClassifyStatus(status int) ErrorInfo {
	var kind Kind
	var retryable bool

	switch {
	case status == http.StatusBadRequest:
		kind, retryable = KindClientError, false
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind, retryable = KindAuthentication, false
	case status == http.StatusNotFound:
		kind, retryable = KindNotFound, false
	case status == http.StatusRequestTimeout:
		kind, retryable = KindTimeout, true
	case status == http.StatusTooManyRequests:
		kind, retryable = KindRateLimited, true
	case status == http.StatusGatewayTimeout:
		kind, retryable = KindTimeout, true
	case status >= 500:
		kind, retryable = KindServerError, true
	case status >= 400:
		kind, retryable = KindClientError, false
	default:
		kind, retryable = KindUnknown, true
	}

	return ErrorInfo{
		Kind:        kind,
		Message:     http.StatusText(status),
		UserMessage: userMessages[kind],
		Retryable:   retryable,
		Timestamp:   time.Now(),
	}
}

// Classify maps a transport-level fault to an ErrorInfo. It inspects typed
// errors first and falls back to well-known message substrings.
func Classify(err error) ErrorInfo {
	info := ErrorInfo{
		Kind:      KindUnknown,
		Retryable: true,
		Cause:     err,
		Timestamp: time.Now(),
	}
	if err == nil {
		info.Message = "no error"
		info.UserMessage = userMessages[KindUnknown]
		return info
	}
	info.Message = err.Error()

	var dnsErr *net.DNSError
	var certErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError

	switch {
	case errors.As(err, &dnsErr):
		info.Kind = KindUnknownHost
	case errors.Is(err, context.DeadlineExceeded):
		info.Kind = KindTimeout
	case isTimeout(err):
		info.Kind = KindTimeout
	case errors.As(err, &certErr), errors.As(err, &hostErr):
		info.Kind, info.Retryable = KindClientError, false
	default:
		info.Kind, info.Retryable = classifyMessage(err.Error())
	}

	info.UserMessage = userMessages[info.Kind]
	return info
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classifyMessage(msg string) (Kind, bool) {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "no such host"), strings.Contains(m, "name resolution"):
		return KindUnknownHost, true
	case strings.Contains(m, "network is unreachable"), strings.Contains(m, "no route to host"):
		return KindNetworkUnavailable, true
	case strings.Contains(m, "connection refused"), strings.Contains(m, "connection reset"):
		return KindNetworkUnavailable, true
	case strings.Contains(m, "timeout"), strings.Contains(m, "deadline exceeded"):
		return KindTimeout, true
	case strings.Contains(m, "certificate"), strings.Contains(m, "tls"), strings.Contains(m, "ssl"):
		return KindClientError, false
	case strings.Contains(m, "unmarshal"), strings.Contains(m, "parse"), strings.Contains(m, "unexpected end of json"):
		return KindParsing, false
	default:
		return KindUnknown, true
	}
}
