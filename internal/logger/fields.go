package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging across every component of this
// module (wire codec, channel, client/server protocol engines, safefs,
// fsadapter). Use these keys consistently so log lines aggregate cleanly.
const (
	// ========================================================================
	// Protocol & Operation
	// ========================================================================
	KeyProcedure = "procedure"  // Packet-type name: OPEN, READ, WRITE, etc.
	KeyHandle    = "handle"     // Opaque file/dir handle string
	KeyStatus    = "status"     // STATUS code (spec.md §4.C)
	KeyStatusMsg = "status_msg" // Human-readable status message

	// ========================================================================
	// File System Operations
	// ========================================================================
	KeyPath       = "path"        // Full virtual path
	KeyFilename   = "filename"    // File or directory name (basename)
	KeyParentPath = "parent_path" // Parent directory path
	KeyOldPath    = "old_path"    // Source path for rename
	KeyNewPath    = "new_path"    // Destination path for rename
	KeyType       = "type"        // File type: file, directory, symlink
	KeySize       = "size"        // File size in bytes
	KeyMode       = "mode"        // File mode/permissions (Unix-style)

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyOffset       = "offset"        // File offset for read/write
	KeyCount        = "count"         // Byte count requested
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written
	KeyEOF          = "eof"           // End of file indicator

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP   = "client_ip"   // Client IP address
	KeyClientPort = "client_port" // Client source port
	KeyUID        = "uid"         // User ID reported to the client
	KeyGID        = "gid"         // Group ID reported to the client

	// ========================================================================
	// Session & Connection
	// ========================================================================
	KeyConnectionID = "connection_id" // Channel/session identifier
	KeyRequestID    = "request_id"    // Wire request ID

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric errno
	KeyAttempt    = "attempt"     // Reconnect/retry attempt number

	// ========================================================================
	// Cache Layer (fsadapter attr/dir/link caches)
	// ========================================================================
	KeyCacheHit   = "cache_hit"   // Cache hit indicator
	KeyCacheState = "cache_state" // Cache state: fresh, stale, negative
	KeyEvicted    = "evicted"     // Number of entries invalidated

	// ========================================================================
	// Directory Operations
	// ========================================================================
	KeyEntries    = "entries"     // Number of directory entries returned
	KeyPattern    = "pattern"     // Glob pattern
	KeyMaxEntries = "max_entries" // Maximum entries requested

	// ========================================================================
	// Link Operations
	// ========================================================================
	KeyLinkTarget = "link_target" // Symbolic link target path
	KeyLinkCount  = "link_count"  // Hard link count
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// Procedure returns a slog.Attr for the packet-type/operation name.
func Procedure(name string) slog.Attr {
	return slog.String(KeyProcedure, name)
}

// Handle returns a slog.Attr for a binary file handle (formatted as hex).
func Handle(h []byte) slog.Attr {
	return slog.String(KeyHandle, fmt.Sprintf("%x", h))
}

// HandleHex returns a slog.Attr for a file handle already in hex/string form.
func HandleHex(h string) slog.Attr {
	return slog.String(KeyHandle, h)
}

// Status returns a slog.Attr for a STATUS code.
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for a human-readable status message.
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// Path returns a slog.Attr for a virtual path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Filename returns a slog.Attr for a basename.
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// ParentPath returns a slog.Attr for a parent directory path.
func ParentPath(p string) slog.Attr {
	return slog.String(KeyParentPath, p)
}

// OldPath returns a slog.Attr for a rename's source path.
func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

// NewPath returns a slog.Attr for a rename's destination path.
func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

// TypeStr returns a slog.Attr for a file type.
func TypeStr(t string) slog.Attr {
	return slog.String(KeyType, t)
}

// Size returns a slog.Attr for a file size.
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// Mode returns a slog.Attr for a file mode/permissions value.
func Mode(m uint32) slog.Attr {
	return slog.Any(KeyMode, m)
}

// Offset returns a slog.Attr for a read/write offset.
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// Count returns a slog.Attr for a requested byte count.
func Count(c uint32) slog.Attr {
	return slog.Any(KeyCount, c)
}

// BytesRead returns a slog.Attr for actual bytes read.
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written.
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// EOF returns a slog.Attr for an end-of-file indicator.
func EOF(eof bool) slog.Attr {
	return slog.Bool(KeyEOF, eof)
}

// ClientIP returns a slog.Attr for a client IP address.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientPort returns a slog.Attr for a client source port.
func ClientPort(port int) slog.Attr {
	return slog.Int(KeyClientPort, port)
}

// UID returns a slog.Attr for a user ID.
func UID(uid uint32) slog.Attr {
	return slog.Any(KeyUID, uid)
}

// GID returns a slog.Attr for a group ID.
func GID(gid uint32) slog.Attr {
	return slog.Any(KeyGID, gid)
}

// ConnectionID returns a slog.Attr for a channel/session identifier.
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// RequestID returns a slog.Attr for a wire request ID.
func RequestID(id uint32) slog.Attr {
	return slog.Any(KeyRequestID, id)
}

// RequestIDStr returns a slog.Attr for a request ID already formatted as a string.
func RequestIDStr(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or a zero Attr for a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric errno.
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Attempt returns a slog.Attr for a reconnect/retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// CacheHit returns a slog.Attr for a cache hit indicator.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheState returns a slog.Attr for a cache entry's state.
func CacheState(state string) slog.Attr {
	return slog.String(KeyCacheState, state)
}

// Evicted returns a slog.Attr for a number of invalidated cache entries.
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// Entries returns a slog.Attr for a number of directory entries.
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

// Pattern returns a slog.Attr for a glob pattern.
func Pattern(p string) slog.Attr {
	return slog.String(KeyPattern, p)
}

// MaxEntries returns a slog.Attr for a maximum entries requested.
func MaxEntries(n int) slog.Attr {
	return slog.Int(KeyMaxEntries, n)
}

// LinkTarget returns a slog.Attr for a symbolic link target path.
func LinkTarget(target string) slog.Attr {
	return slog.String(KeyLinkTarget, target)
}

// LinkCount returns a slog.Attr for a hard link count.
func LinkCount(count uint32) slog.Attr {
	return slog.Any(KeyLinkCount, count)
}
