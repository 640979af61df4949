package fsadapter

import (
	"errors"
	"syscall"

	"github.com/marmos91/sftpws/internal/sftperr"
)

// toErrno maps a wire-level error (or a plain Go error from a failed
// dial/handshake) onto the syscall.Errno the kernel callback surface
// must return. Unrecognized errors fall back to EIO, the same default
// the teacher's error-wrapping idiom uses for "something went wrong
// that doesn't map onto a specific errno".
func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var wireErr *sftperr.Error
	if errors.As(err, &wireErr) {
		switch wireErr.Code {
		case sftperr.CodeEOF:
			return 0
		case sftperr.CodeNoEnt:
			return syscall.ENOENT
		case sftperr.CodeAccess:
			return syscall.EACCES
		case sftperr.CodeNotConn:
			return syscall.ENOTCONN
		case sftperr.CodeShutdown:
			return syscall.ESHUTDOWN
		case sftperr.CodeNotSupported:
			return syscall.ENOSYS
		case sftperr.CodeReadOnly:
			return syscall.EROFS
		case sftperr.CodeTooManyFiles:
			return syscall.ENFILE
		case sftperr.CodeIO:
			return syscall.EIO
		default:
			return syscall.EIO
		}
	}
	return syscall.EIO
}
