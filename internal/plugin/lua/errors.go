package lua

import "errors"

// ErrStateClosed is returned when a State is used after Close.
var ErrStateClosed = errors.New("lua state is closed")
