package connection

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotConnected = errors.New("connection is not open")
	ErrClosed       = errors.New("connection closed")
)

// ConnectionError is a transport-level failure: a dial that did not succeed or an open
// connection that broke.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
