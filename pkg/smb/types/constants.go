// Package types holds the SMB2 wire structures and protocol constants.
package types

import "errors"

// ErrBufferTooSmall is returned when a response is shorter than its fixed part.
var ErrBufferTooSmall = errors.New("buffer too small")

// SMB2HeaderSize is the size of the sync SMB2 header.
const SMB2HeaderSize = 64

var (
	SMB2ProtocolID      = [4]byte{0xFE, 'S', 'M', 'B'}
	SMB2TransformID     = [4]byte{0xFD, 'S', 'M', 'B'}
	SMB1ProtocolID      = [4]byte{0xFF, 'S', 'M', 'B'}
	errBadProtocolID    = errors.New("invalid SMB2 protocol ID")
	errBadStructureSize = errors.New("unexpected structure size")
)

type Dialect uint16

const (
	DialectSMB2_0_2 Dialect = 0x0202
	DialectSMB2_1   Dialect = 0x0210
	DialectSMB3_0   Dialect = 0x0300
	DialectSMB3_0_2 Dialect = 0x0302
	DialectSMB3_1_1 Dialect = 0x0311
	DialectWildcard Dialect = 0x02FF
)

// DefaultDialects is the dialect list offered in NEGOTIATE.
var DefaultDialects = []Dialect{DialectSMB2_0_2, DialectSMB2_1, DialectSMB3_0, DialectSMB3_0_2}

type Command uint16

const (
	CommandNegotiate      Command = 0x00
	CommandSessionSetup   Command = 0x01
	CommandLogoff         Command = 0x02
	CommandTreeConnect    Command = 0x03
	CommandTreeDisconnect Command = 0x04
	CommandCreate         Command = 0x05
	CommandClose          Command = 0x06
	CommandFlush          Command = 0x07
	CommandRead           Command = 0x08
	CommandWrite          Command = 0x09
	CommandIoctl          Command = 0x0B
	CommandEcho           Command = 0x0D
	CommandQueryDirectory Command = 0x0E
	CommandQueryInfo      Command = 0x10
	CommandSetInfo        Command = 0x11
)

var commandNames = map[Command]string{
	CommandNegotiate:      "NEGOTIATE",
	CommandSessionSetup:   "SESSION_SETUP",
	CommandLogoff:         "LOGOFF",
	CommandTreeConnect:    "TREE_CONNECT",
	CommandTreeDisconnect: "TREE_DISCONNECT",
	CommandCreate:         "CREATE",
	CommandClose:          "CLOSE",
	CommandFlush:          "FLUSH",
	CommandRead:           "READ",
	CommandWrite:          "WRITE",
	CommandIoctl:          "IOCTL",
	CommandEcho:           "ECHO",
	CommandQueryDirectory: "QUERY_DIRECTORY",
	CommandQueryInfo:      "QUERY_INFO",
	CommandSetInfo:        "SET_INFO",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

type HeaderFlags uint32

const (
	FlagsServerToRedir HeaderFlags = 0x00000001
	FlagsAsyncCommand  HeaderFlags = 0x00000002
	FlagsRelatedOps    HeaderFlags = 0x00000004
	FlagsSigned        HeaderFlags = 0x00000008
	FlagsDFSOperations HeaderFlags = 0x10000000
)

// NTStatus is the status field of a response header.
type NTStatus uint32

const (
	StatusSuccess               NTStatus = 0x00000000
	StatusPending               NTStatus = 0x00000103
	StatusMoreEntries           NTStatus = 0x00000105
	StatusSomeNotMapped         NTStatus = 0x00000107
	StatusBufferOverflow        NTStatus = 0x80000005
	StatusNoMoreFiles           NTStatus = 0x80000006
	StatusInvalidInfoClass      NTStatus = 0xC0000003
	StatusInvalidHandle         NTStatus = 0xC0000008
	StatusInvalidParameter      NTStatus = 0xC000000D
	StatusNoSuchFile            NTStatus = 0xC000000F
	StatusInvalidDeviceRequest  NTStatus = 0xC0000010
	StatusEndOfFile             NTStatus = 0xC0000011
	StatusMoreProcessingReq     NTStatus = 0xC0000016
	StatusNoMemory              NTStatus = 0xC0000017
	StatusAccessDenied          NTStatus = 0xC0000022
	StatusBufferTooSmall        NTStatus = 0xC0000023
	StatusObjectNameInvalid     NTStatus = 0xC0000033
	StatusObjectNameNotFound    NTStatus = 0xC0000034
	StatusObjectNameCollision   NTStatus = 0xC0000035
	StatusObjectPathNotFound    NTStatus = 0xC000003A
	StatusSharingViolation      NTStatus = 0xC0000043
	StatusDeletePending         NTStatus = 0xC0000056
	StatusPrivilegeNotHeld      NTStatus = 0xC0000061
	StatusNoSuchUser            NTStatus = 0xC0000064
	StatusWrongPassword         NTStatus = 0xC000006A
	StatusLogonFailure          NTStatus = 0xC000006D
	StatusAccountRestriction    NTStatus = 0xC000006E
	StatusPasswordExpired       NTStatus = 0xC0000071
	StatusAccountDisabled       NTStatus = 0xC0000072
	StatusNoneMapped            NTStatus = 0xC0000073
	StatusDiskFull              NTStatus = 0xC000007F
	StatusInsufficientResources NTStatus = 0xC000009A
	StatusFileIsADirectory      NTStatus = 0xC00000BA
	StatusNotSupported          NTStatus = 0xC00000BB
	StatusIOTimeout             NTStatus = 0xC00000B5
	StatusBadNetworkName        NTStatus = 0xC00000CC
	StatusDirectoryNotEmpty     NTStatus = 0xC0000101
	StatusNotADirectory         NTStatus = 0xC0000103
	StatusCancelled             NTStatus = 0xC0000120
	StatusFileClosed            NTStatus = 0xC0000128
	StatusUserSessionDeleted    NTStatus = 0xC0000203
	StatusAccountLockedOut      NTStatus = 0xC0000234
	StatusNetworkSessionExpired NTStatus = 0xC000035C
)

// IsSuccess reports statuses that carry a usable response body.
func (s NTStatus) IsSuccess() bool {
	return s == StatusSuccess || s == StatusMoreEntries || s == StatusBufferOverflow || s == StatusSomeNotMapped
}

// IsError reports severity ERROR statuses.
func (s NTStatus) IsError() bool {
	return s&0xC0000000 == 0xC0000000
}

type AccessMask uint32

const (
	FileReadData        AccessMask = 0x00000001
	FileWriteData       AccessMask = 0x00000002
	FileAppendData      AccessMask = 0x00000004
	FileReadEA          AccessMask = 0x00000008
	FileWriteEA         AccessMask = 0x00000010
	FileExecute         AccessMask = 0x00000020
	FileDeleteChild     AccessMask = 0x00000040
	FileReadAttributes  AccessMask = 0x00000080
	FileWriteAttributes AccessMask = 0x00000100
	Delete              AccessMask = 0x00010000
	ReadControl         AccessMask = 0x00020000
	WriteDAC            AccessMask = 0x00040000
	WriteOwner          AccessMask = 0x00080000
	Synchronize         AccessMask = 0x00100000
	MaximumAllowed      AccessMask = 0x02000000
	GenericAll          AccessMask = 0x10000000
	GenericExecute      AccessMask = 0x20000000
	GenericWrite        AccessMask = 0x40000000
	GenericRead         AccessMask = 0x80000000
)

type CreateDisposition uint32

const (
	FileSupersede   CreateDisposition = 0
	FileOpen        CreateDisposition = 1
	FileCreate      CreateDisposition = 2
	FileOpenIf      CreateDisposition = 3
	FileOverwrite   CreateDisposition = 4
	FileOverwriteIf CreateDisposition = 5
)

type CreateOptions uint32

const (
	FileDirectoryFile         CreateOptions = 0x00000001
	FileWriteThrough          CreateOptions = 0x00000002
	FileSequentialOnly        CreateOptions = 0x00000004
	FileSynchronousIONonAlert CreateOptions = 0x00000020
	FileNonDirectoryFile      CreateOptions = 0x00000040
	FileRandomAccess          CreateOptions = 0x00000800
	FileDeleteOnClose         CreateOptions = 0x00001000
	FileOpenReparsePoint      CreateOptions = 0x00200000
)

type FileAttributes uint32

const (
	FileAttributeReadOnly     FileAttributes = 0x00000001
	FileAttributeHidden       FileAttributes = 0x00000002
	FileAttributeSystem       FileAttributes = 0x00000004
	FileAttributeDirectory    FileAttributes = 0x00000010
	FileAttributeArchive      FileAttributes = 0x00000020
	FileAttributeNormal       FileAttributes = 0x00000080
	FileAttributeTemporary    FileAttributes = 0x00000100
	FileAttributeReparsePoint FileAttributes = 0x00000400
)

type ShareAccess uint32

const (
	FileShareRead   ShareAccess = 0x00000001
	FileShareWrite  ShareAccess = 0x00000002
	FileShareDelete ShareAccess = 0x00000004
	FileShareAll                = FileShareRead | FileShareWrite | FileShareDelete
)

// ShareType is the share type reported by TREE_CONNECT.
type ShareType uint8

const (
	ShareTypeDisk  ShareType = 0x01
	ShareTypePipe  ShareType = 0x02
	ShareTypePrint ShareType = 0x03
)

type SecurityMode uint8

const (
	NegotiateSigningEnabled  SecurityMode = 0x01
	NegotiateSigningRequired SecurityMode = 0x02
)

type Capabilities uint32

const (
	GlobalCapDFS          Capabilities = 0x00000001
	GlobalCapLeasing      Capabilities = 0x00000002
	GlobalCapLargeMTU     Capabilities = 0x00000004
	GlobalCapMultiChannel Capabilities = 0x00000008
	GlobalCapEncryption   Capabilities = 0x00000040
)

// ShareFlagEncryptData is set in TREE_CONNECT responses for shares that
// require SMB3 encryption.
const ShareFlagEncryptData uint32 = 0x00008000
