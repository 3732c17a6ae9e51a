package smb

import (
	"errors"
	"fmt"

	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// Common SMB errors
var (
	ErrConnectionRefused = errors.New("connection refused")
	ErrTimeout           = errors.New("operation timed out")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrAccessDenied      = errors.New("access denied")
	ErrNotFound          = errors.New("object not found")
	ErrAlreadyExists     = errors.New("object already exists")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNotConnected      = errors.New("not connected")
	ErrSessionExpired    = errors.New("session expired")
	ErrBadNetworkName    = errors.New("bad network name")
	ErrNotSupported      = errors.New("operation not supported")
	ErrSigningRequired   = errors.New("server requires signing but no session key is available")
	ErrBadSignature      = errors.New("response signature verification failed")
)

// NTStatusError wraps an NT status code as an error
type NTStatusError struct {
	Command types.Command
	Status  types.NTStatus
}

// Error implements the error interface
func (e *NTStatusError) Error() string {
	return fmt.Sprintf("%s: %s (0x%08X)", e.Command, StatusName(e.Status), uint32(e.Status))
}

// Is matches the sentinel error for the status class.
func (e *NTStatusError) Is(target error) bool {
	s := statusSentinel(e.Status)
	return s != nil && s == target
}

var statusNames = map[types.NTStatus]string{
	types.StatusSuccess:               "STATUS_SUCCESS",
	types.StatusMoreProcessingReq:     "STATUS_MORE_PROCESSING_REQUIRED",
	types.StatusInvalidParameter:      "STATUS_INVALID_PARAMETER",
	types.StatusInvalidInfoClass:      "STATUS_INVALID_INFO_CLASS",
	types.StatusInvalidHandle:         "STATUS_INVALID_HANDLE",
	types.StatusNoSuchFile:            "STATUS_NO_SUCH_FILE",
	types.StatusEndOfFile:             "STATUS_END_OF_FILE",
	types.StatusNoMemory:              "STATUS_NO_MEMORY",
	types.StatusAccessDenied:          "STATUS_ACCESS_DENIED",
	types.StatusObjectNameInvalid:     "STATUS_OBJECT_NAME_INVALID",
	types.StatusObjectNameNotFound:    "STATUS_OBJECT_NAME_NOT_FOUND",
	types.StatusObjectNameCollision:   "STATUS_OBJECT_NAME_COLLISION",
	types.StatusObjectPathNotFound:    "STATUS_OBJECT_PATH_NOT_FOUND",
	types.StatusSharingViolation:      "STATUS_SHARING_VIOLATION",
	types.StatusDeletePending:         "STATUS_DELETE_PENDING",
	types.StatusNoSuchUser:            "STATUS_NO_SUCH_USER",
	types.StatusWrongPassword:         "STATUS_WRONG_PASSWORD",
	types.StatusLogonFailure:          "STATUS_LOGON_FAILURE",
	types.StatusAccountRestriction:    "STATUS_ACCOUNT_RESTRICTION",
	types.StatusPasswordExpired:       "STATUS_PASSWORD_EXPIRED",
	types.StatusAccountDisabled:       "STATUS_ACCOUNT_DISABLED",
	types.StatusAccountLockedOut:      "STATUS_ACCOUNT_LOCKED_OUT",
	types.StatusDiskFull:              "STATUS_DISK_FULL",
	types.StatusInsufficientResources: "STATUS_INSUFFICIENT_RESOURCES",
	types.StatusFileIsADirectory:      "STATUS_FILE_IS_A_DIRECTORY",
	types.StatusNotSupported:          "STATUS_NOT_SUPPORTED",
	types.StatusIOTimeout:             "STATUS_IO_TIMEOUT",
	types.StatusBadNetworkName:        "STATUS_BAD_NETWORK_NAME",
	types.StatusDirectoryNotEmpty:     "STATUS_DIRECTORY_NOT_EMPTY",
	types.StatusNotADirectory:         "STATUS_NOT_A_DIRECTORY",
	types.StatusFileClosed:            "STATUS_FILE_CLOSED",
	types.StatusUserSessionDeleted:    "STATUS_USER_SESSION_DELETED",
	types.StatusNetworkSessionExpired: "STATUS_NETWORK_SESSION_EXPIRED",
	types.StatusNoMoreFiles:           "STATUS_NO_MORE_FILES",
	types.StatusNoneMapped:            "STATUS_NONE_MAPPED",
}

// StatusName returns a human-readable name for the status
func StatusName(s types.NTStatus) string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

func statusSentinel(s types.NTStatus) error {
	switch s {
	case types.StatusAccessDenied:
		return ErrAccessDenied
	case types.StatusNoSuchFile, types.StatusObjectNameNotFound, types.StatusObjectPathNotFound:
		return ErrNotFound
	case types.StatusObjectNameCollision:
		return ErrAlreadyExists
	case types.StatusLogonFailure, types.StatusAccountDisabled, types.StatusPasswordExpired,
		types.StatusWrongPassword, types.StatusNoSuchUser, types.StatusAccountRestriction,
		types.StatusAccountLockedOut:
		return ErrAuthFailed
	case types.StatusBadNetworkName:
		return ErrBadNetworkName
	case types.StatusNetworkSessionExpired, types.StatusUserSessionDeleted:
		return ErrSessionExpired
	case types.StatusNotSupported:
		return ErrNotSupported
	case types.StatusInvalidParameter:
		return ErrInvalidParameter
	}
	return nil
}

// StatusToError converts an NT status to an error carrying the status.
func StatusToError(cmd types.Command, status types.NTStatus) error {
	if status.IsSuccess() {
		return nil
	}
	return &NTStatusError{Command: cmd, Status: status}
}

// StatusOf extracts the NT status from err, if it carries one.
func StatusOf(err error) (types.NTStatus, bool) {
	var se *NTStatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}
