package fibril

import "errors"

var ErrAlreadyDetached = errors.New("fibril: user thread already detached")
