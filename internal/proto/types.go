// Package proto holds the wire-level constants shared by the packet codec,
// the client engine, and the server engine: packet type codes, STATUS
// codes, open-flag bits, and rename-flag bits, as defined by the SFTPv3-derived
// protocol this module speaks over a WebSocket channel.
package proto

// PacketType identifies the first byte of a packet body (after the 4-byte
// length prefix).
type PacketType uint8

const (
	TypeInit PacketType = 1
	TypeVersion PacketType = 2
	TypeOpen PacketType = 3
	TypeClose PacketType = 4
	TypeRead PacketType = 5
	TypeWrite PacketType = 6
	TypeLstat PacketType = 7
	TypeFstat PacketType = 8
	TypeSetstat PacketType = 9
	TypeFsetstat PacketType = 10
	TypeOpendir PacketType = 11
	TypeReaddir PacketType = 12
	TypeRemove PacketType = 13
	TypeMkdir PacketType = 14
	TypeRmdir PacketType = 15
	TypeRealpath PacketType = 16
	TypeStat PacketType = 17
	TypeRename PacketType = 18
	TypeReadlink PacketType = 19
	TypeSymlink PacketType = 20
	TypeExtended PacketType = 200

	TypeStatus PacketType = 101
	TypeHandle PacketType = 102
	TypeData PacketType = 103
	TypeName PacketType = 104
	TypeAttrs PacketType = 105
	TypeExtendedReply PacketType = 201
)

func (t PacketType) String() string {
	switch t {
	case TypeInit:
		return "INIT"
	case TypeVersion:
		return "VERSION"
	case TypeOpen:
		return "OPEN"
	case TypeClose:
		return "CLOSE"
	case TypeRead:
		return "READ"
	case TypeWrite:
		return "WRITE"
	case TypeLstat:
		return "LSTAT"
	case TypeFstat:
		return "FSTAT"
	case TypeSetstat:
		return "SETSTAT"
	case TypeFsetstat:
		return "FSETSTAT"
	case TypeOpendir:
		return "OPENDIR"
	case TypeReaddir:
		return "READDIR"
	case TypeRemove:
		return "REMOVE"
	case TypeMkdir:
		return "MKDIR"
	case TypeRmdir:
		return "RMDIR"
	case TypeRealpath:
		return "REALPATH"
	case TypeStat:
		return "STAT"
	case TypeRename:
		return "RENAME"
	case TypeReadlink:
		return "READLINK"
	case TypeSymlink:
		return "SYMLINK"
	case TypeExtended:
		return "EXTENDED"
	case TypeStatus:
		return "STATUS"
	case TypeHandle:
		return "HANDLE"
	case TypeData:
		return "DATA"
	case TypeName:
		return "NAME"
	case TypeAttrs:
		return "ATTRS"
	case TypeExtendedReply:
		return "EXTENDED_REPLY"
	default:
		return "UNKNOWN"
	}
}

// HasRequestID reports whether packets of this type carry a 4-byte request
// ID after the type byte. Only INIT and VERSION do not.
func (t PacketType) HasRequestID() bool {
	return t != TypeInit && t != TypeVersion
}

// ProtocolVersion is the only version this module's handshake understands.
const ProtocolVersion uint32 = 3

// StatusCode is the numeric code carried in a STATUS response.
type StatusCode uint32

const (
	StatusOK                StatusCode = 0
	StatusEOF               StatusCode = 1
	StatusNoSuchFile        StatusCode = 2
	StatusPermissionDenied  StatusCode = 3
	StatusFailure           StatusCode = 4
	StatusBadMessage        StatusCode = 5
	StatusNoConnection      StatusCode = 6
	StatusConnectionLost    StatusCode = 7
	StatusOpUnsupported     StatusCode = 8
)

// OpenFlag bits, as used in the OPEN packet and the string-alias table of
// spec.md §6.
type OpenFlag uint32

const (
	OpenRead   OpenFlag = 1 << 0
	OpenWrite  OpenFlag = 1 << 1
	OpenAppend OpenFlag = 1 << 2
	OpenCreat  OpenFlag = 1 << 3
	OpenTrunc  OpenFlag = 1 << 4
	OpenExcl   OpenFlag = 1 << 5
)

// OpenFlagsFromString maps the string aliases of spec.md §6 to their bit
// combination. Unknown aliases return ok=false.
func OpenFlagsFromString(alias string) (OpenFlag, bool) {
	switch alias {
	case "r":
		return OpenRead, true
	case "r+":
		return OpenRead | OpenWrite, true
	case "w":
		return OpenWrite | OpenCreat | OpenTrunc, true
	case "w+":
		return OpenRead | OpenWrite | OpenCreat | OpenTrunc, true
	case "a":
		return OpenWrite | OpenCreat | OpenAppend, true
	case "a+":
		return OpenRead | OpenWrite | OpenCreat | OpenAppend, true
	case "wx":
		return OpenWrite | OpenCreat | OpenExcl, true
	default:
		return 0, false
	}
}

// RenameFlag values for the RENAME extension behavior of spec.md §4.C/§6.
type RenameFlag uint32

const (
	RenameDefault   RenameFlag = 0
	RenameOverwrite RenameFlag = 1
)

// Extension names recognized during VERSION negotiation (spec.md §4.C).
const (
	ExtHardlink      = "hardlink@openssh.com"
	ExtPosixRename   = "posix-rename@openssh.com"
	ExtCopyData      = "copy-data"
	ExtCheckFileHash = "check-file-handle"
	ExtStatVFS       = "statvfs@openssh.com"
)

// Attribute flag bits (spec.md §3 Attributes).
type AttrFlag uint32

const (
	AttrSize       AttrFlag = 1 << 0
	AttrUIDGID     AttrFlag = 1 << 1
	AttrPerms      AttrFlag = 1 << 2
	AttrACModTime  AttrFlag = 1 << 3
	AttrExtended   AttrFlag = 1 << 31
)

// MaxReadLength and MaxWriteLength bound single READ/WRITE operations
// (spec.md §4.C Constraints).
const (
	MaxReadLength  = 1 << 20
	MaxWriteLength = 1 << 20
)

// MaxSafeInteger is the largest integer value the wire's double-precision
// legacy int64 encoding can represent exactly (spec.md §4.A Numerics).
const MaxSafeInteger = (int64(1) << 53) - 1
