package dcerpc

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrBufferTooSmall = errors.New("buffer too small")
	ErrBindFailed     = errors.New("bind failed")
	ErrNotBound       = errors.New("not bound to interface")
)

// FaultError is a FAULT PDU returned in place of a response.
type FaultError struct {
	Status uint32
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("RPC fault: status 0x%08X", e.Status)
}
