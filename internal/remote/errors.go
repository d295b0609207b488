package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrorKind classifies a backend failure so callers branch on kind
// instead of matching error text.
type ErrorKind int

const (
	// KindConnectivity covers unreachable or timed-out backends. The
	// replay pass aborts for that backend and retries later.
	KindConnectivity ErrorKind = iota
	// KindRemoteLogical covers remote-side rejections (object not found,
	// bad request). The offending entry is dropped, not retried.
	KindRemoteLogical
	// KindAuth covers authentication failures; the account is flagged
	// for re-authentication.
	KindAuth
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindRemoteLogical:
		return "remote"
	case KindAuth:
		return "auth"
	}
	return "unknown"
}

// Error wraps a backend failure with its kind and the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrap classifies err for op. Network-level failures become connectivity
// errors; everything else keeps the given default kind.
func wrap(op string, kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	if isNetworkErr(err) {
		kind = KindConnectivity
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func isNetworkErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsConnectivity reports whether err is a connectivity-class failure.
func IsConnectivity(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindConnectivity
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindAuth
}
