package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure
type Kind int

const (
	// KindNetwork means no response was received
	KindNetwork Kind = iota + 1
	// KindHTTP means the server answered with a non-success status code
	KindHTTP
	// KindDecode means the body did not match the declared result shape
	KindDecode
	// KindRejected means a 2xx response carried a failure envelope
	KindRejected
	// KindRequest means the request could not be built, so nothing was sent
	KindRequest
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindDecode:
		return "decode"
	case KindRejected:
		return "rejected"
	case KindRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against *Error
var (
	ErrNetwork  = errors.New("gateway: network error")
	ErrHTTP     = errors.New("gateway: http error")
	ErrDecode   = errors.New("gateway: decode error")
	ErrRejected = errors.New("gateway: request rejected")
	ErrRequest  = errors.New("gateway: invalid request")
)

// Error is returned by Client.Execute for every failed call
type Error struct {
	Kind     Kind
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("%s: http %d: %s", e.Endpoint, e.Status, e.Message)
	case KindRejected:
		return fmt.Sprintf("%s: rejected: %s", e.Endpoint, e.Message)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s error: %v", e.Endpoint, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s error", e.Endpoint, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match the kind sentinels
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrHTTP:
		return e.Kind == KindHTTP
	case ErrDecode:
		return e.Kind == KindDecode
	case ErrRejected:
		return e.Kind == KindRejected
	case ErrRequest:
		return e.Kind == KindRequest
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Status
	}
	return 0
}
