package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// TransportErrorKind classifies why a request produced no response.
type TransportErrorKind string

const (
	KindTimeout        TransportErrorKind = "timeout"
	KindConnection     TransportErrorKind = "connection"
	KindDNS            TransportErrorKind = "dns"
	KindTLS            TransportErrorKind = "tls"
	KindProtocol       TransportErrorKind = "protocol"
	KindInvalidRequest TransportErrorKind = "invalid-request"
)

// TransportError means no HTTP response was obtained. A response with any
// status code, including 5xx, is never a TransportError.
type TransportError struct {
	Kind   TransportErrorKind
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	target := e.URL
	if e.Method != "" {
		target = e.Method + " " + e.URL
	}
	return fmt.Sprintf("%s: %s error: %v", target, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newTransportError(req *Request, err error) *TransportError {
	return &TransportError{
		Kind:   classify(err),
		Method: req.Method,
		URL:    req.URL,
		Err:    err,
	}
}

func invalidRequest(req *Request, err error) *TransportError {
	return &TransportError{
		Kind:   KindInvalidRequest,
		Method: req.Method,
		URL:    req.URL,
		Err:    err,
	}
}

func classify(err error) TransportErrorKind {
	var (
		dnsErr      *net.DNSError
		certErr     *tls.CertificateVerificationError
		authority   x509.UnknownAuthorityError
		hostname    x509.HostnameError
		invalidCert x509.CertificateInvalidError
		recordErr   tls.RecordHeaderError
		netErr      net.Error
		opErr       *net.OpError
	)

	switch {
	case errors.As(err, &dnsErr):
		return KindDNS
	case errors.As(err, &certErr), errors.As(err, &authority), errors.As(err, &hostname),
		errors.As(err, &invalidCert), errors.As(err, &recordErr):
		return KindTLS
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return KindConnection
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return KindConnection
	}
	return KindProtocol
}
