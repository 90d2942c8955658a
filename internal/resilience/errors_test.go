package resilience

import (
	"crypto/x509"
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(errors.New("503"), 503), true},
		{"wrapped transient", fmt.Errorf("fetch: %w", NewTransientError(errors.New("503"), 503)), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"reset by peer string", errors.New("read tcp: connection reset by peer"), true},
		{"io timeout string", errors.New("dial tcp: i/o timeout"), true},
		{"no such host", errors.New("dial tcp: lookup x.example: no such host"), true},
		{"plain error", errors.New("bad request"), false},
		{"x509 unknown authority", x509.UnknownAuthorityError{}, false},
		{"x509 string", errors.New("x509: certificate signed by unknown authority"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTLSFailure(t *testing.T) {
	if !IsTLSFailure(x509.CertificateInvalidError{Reason: x509.Expired}) {
		t.Error("expected certificate invalid error to be a TLS failure")
	}
	if !IsTLSFailure(errors.New("x509: certificate has expired or is not yet valid")) {
		t.Error("expected x509 message to be a TLS failure")
	}
	if IsTLSFailure(errors.New("connection reset by peer")) {
		t.Error("reset is not a TLS failure")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be transient", code)
		}
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 410, 501} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("status %d should not be transient", code)
		}
	}
}
