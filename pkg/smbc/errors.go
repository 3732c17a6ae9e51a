package smbc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ineffectivecoder/smbclient/pkg/lsarpc"
	"github.com/ineffectivecoder/smbclient/pkg/secdesc"
	"github.com/ineffectivecoder/smbclient/pkg/smb"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// Kind classifies every error returned by this package.
type Kind int

const (
	Fault Kind = iota
	InvalidArgument
	PermissionDenied
	NoEntry
	Exists
	NotEmpty
	NotDirectory
	TimedOut
	ConnectionRefused
	NoSpace
	OutOfMemory
	NotSupported
	Overflow
)

var kindNames = [...]string{
	Fault:             "fault",
	InvalidArgument:   "invalid argument",
	PermissionDenied:  "permission denied",
	NoEntry:           "no such file or directory",
	Exists:            "file exists",
	NotEmpty:          "directory not empty",
	NotDirectory:      "not a directory",
	TimedOut:          "timed out",
	ConnectionRefused: "connection refused",
	NoSpace:           "no space left on device",
	OutOfMemory:       "out of memory",
	NotSupported:      "not supported",
	Overflow:          "value too large",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// kindError is the sentinel type behind ErrNoEntry and friends.
type kindError Kind

func (e kindError) Error() string { return Kind(e).String() }

// Sentinels for errors.Is.
var (
	ErrFault             error = kindError(Fault)
	ErrInvalidArgument   error = kindError(InvalidArgument)
	ErrPermissionDenied  error = kindError(PermissionDenied)
	ErrNoEntry           error = kindError(NoEntry)
	ErrExists            error = kindError(Exists)
	ErrNotEmpty          error = kindError(NotEmpty)
	ErrNotDirectory      error = kindError(NotDirectory)
	ErrTimedOut          error = kindError(TimedOut)
	ErrConnectionRefused error = kindError(ConnectionRefused)
	ErrNoSpace           error = kindError(NoSpace)
	ErrOutOfMemory       error = kindError(OutOfMemory)
	ErrNotSupported      error = kindError(NotSupported)
	ErrOverflow          error = kindError(Overflow)
)

// ErrContextClosed is returned by operations on a closed Context or on
// handles that outlived it.
var ErrContextClosed = errors.New("smbc: context closed")

// ErrClosed is returned by I/O on a closed File or Dir.
var ErrClosed = errors.New("smbc: handle closed")

// Error records the operation, the URI and the classified cause.
type Error struct {
	Op   string
	Path string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the Kind sentinels.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindError)
	return ok && Kind(k) == e.Kind
}

// KindOf returns the Kind of err, Fault for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return classify(err)
}

// wrapErr classifies err and attaches op and path. An *Error from a nested
// call is kept as is.
func wrapErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Op: op, Path: path, Kind: classify(err), Err: err}
}

func newErr(op, path string, kind Kind, err error) error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

// classify maps wire, transport and codec errors onto a Kind.
func classify(err error) Kind {
	if st, ok := smb.StatusOf(err); ok {
		return statusKind(st)
	}
	var k kindError
	switch {
	case errors.As(err, &k):
		return Kind(k)
	case errors.Is(err, smb.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return TimedOut
	case errors.Is(err, smb.ErrConnectionRefused):
		return ConnectionRefused
	case errors.Is(err, smb.ErrAuthFailed), errors.Is(err, smb.ErrAccessDenied),
		errors.Is(err, smb.ErrSigningRequired):
		return PermissionDenied
	case errors.Is(err, smb.ErrNotFound), errors.Is(err, smb.ErrBadNetworkName),
		errors.Is(err, lsarpc.ErrNoneMapped):
		return NoEntry
	case errors.Is(err, smb.ErrInvalidParameter), errors.Is(err, secdesc.ErrSyntax):
		return InvalidArgument
	case errors.Is(err, smb.ErrNotSupported):
		return NotSupported
	case errors.Is(err, secdesc.ErrExists):
		return Exists
	case errors.Is(err, secdesc.ErrNotFound):
		return NoEntry
	}
	return Fault
}

func statusKind(st types.NTStatus) Kind {
	switch st {
	case types.StatusObjectNameNotFound, types.StatusObjectPathNotFound,
		types.StatusNoSuchFile, types.StatusBadNetworkName, types.StatusDeletePending:
		return NoEntry
	case types.StatusAccessDenied, types.StatusLogonFailure, types.StatusWrongPassword,
		types.StatusAccountRestriction, types.StatusAccountDisabled,
		types.StatusAccountLockedOut, types.StatusPasswordExpired,
		types.StatusNoSuchUser, types.StatusSharingViolation, types.StatusPrivilegeNotHeld:
		return PermissionDenied
	case types.StatusObjectNameCollision:
		return Exists
	case types.StatusDirectoryNotEmpty:
		return NotEmpty
	case types.StatusNotADirectory:
		return NotDirectory
	case types.StatusDiskFull:
		return NoSpace
	case types.StatusIOTimeout:
		return TimedOut
	case types.StatusNotSupported, types.StatusInvalidInfoClass, types.StatusInvalidDeviceRequest:
		return NotSupported
	case types.StatusInvalidParameter, types.StatusObjectNameInvalid, types.StatusFileIsADirectory:
		return InvalidArgument
	case types.StatusInsufficientResources, types.StatusNoMemory:
		return OutOfMemory
	}
	return Fault
}
