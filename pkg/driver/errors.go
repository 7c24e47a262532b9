package driver

import (
	"errors"
	"fmt"
)

// Backend operations, used in errors, metrics and spans.
const (
	OpOneHop    = "one_hop"
	OpTwoHop    = "two_hop"
	OpRelations = "relations"
	OpObjects   = "objects"
	OpLabel     = "label"
	OpLoad      = "load"
)

var (
	// ErrMalformedResponse indicates a backend answer that could not be decoded.
	ErrMalformedResponse = errors.New("malformed backend response")
	// ErrInvalidIdentifier indicates an id that cannot be sent to the backend.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrDriverClosed is returned after Close.
	ErrDriverClosed = errors.New("driver is closed")
	// ErrUnknownProvider is returned by Open for unsupported backends.
	ErrUnknownProvider = errors.New("unknown graph provider")
)

// BackendQueryError reports a failed graph backend query.
type BackendQueryError struct {
	Op  string
	Src string
	Dst string
	Err error
}

func (e *BackendQueryError) Error() string {
	switch {
	case e.Dst != "":
		return fmt.Sprintf("graph backend %s(%s, %s): %v", e.Op, e.Src, e.Dst, e.Err)
	case e.Src != "":
		return fmt.Sprintf("graph backend %s(%s): %v", e.Op, e.Src, e.Err)
	default:
		return fmt.Sprintf("graph backend %s: %v", e.Op, e.Err)
	}
}

func (e *BackendQueryError) Unwrap() error { return e.Err }

func queryError(op, src, dst string, err error) error {
	if err == nil {
		return nil
	}
	var bqe *BackendQueryError
	if errors.As(err, &bqe) {
		return err
	}
	return &BackendQueryError{Op: op, Src: src, Dst: dst, Err: err}
}

// HTTPStatusError carries a non-2xx status from an HTTP backend.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatusCode exposes the status for retry classification.
func (e *HTTPStatusError) HTTPStatusCode() int { return e.StatusCode }
