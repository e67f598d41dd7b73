package rpc

import "errors"

// ErrCallTimeout is returned when an outbound Call does not complete
// within its deadline.
var ErrCallTimeout = errors.New("rpc: call timeout")
