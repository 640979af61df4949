package wire

import (
	"testing"

	"github.com/marmos91/sftpws/internal/proto"
	"github.com/stretchr/testify/require"
)

// Round-trip: for all sequences of byte-field operations
// (write T x).(read T) == x, for every type T in {byte, int32, int64,
// string, data} (spec.md §8 Invariants).
func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Byte(0x42)
	w.Uint32(123456789)
	w.Int64(-9876543210)
	w.Uint64(18446744073709551615)
	w.String("hello, sftp.ws")
	w.Opaque([]byte{1, 2, 3, 4, 5})
	w.Bool(true)
	w.Bool(false)

	r := NewReader(w.Bytes())

	b, err := r.Byte()
	require.NoError(t, err)
	require.Equal(t, byte(0x42), b)

	u32, err := r.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(123456789), u32)

	i64, err := r.Int64()
	require.NoError(t, err)
	require.EqualValues(t, -9876543210, i64)

	u64, err := r.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(18446744073709551615), u64)

	s, err := r.String()
	require.NoError(t, err)
	require.Equal(t, "hello, sftp.ws", s)

	data, err := r.Opaque()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, data)

	bTrue, err := r.Bool()
	require.NoError(t, err)
	require.True(t, bTrue)

	bFalse, err := r.Bool()
	require.NoError(t, err)
	require.False(t, bFalse)

	require.Zero(t, r.Remaining())
}

func TestStringNoPadding(t *testing.T) {
	w := NewWriter()
	w.String("abc")
	// Unlike XDR, a 3-byte string is NOT padded to a 4-byte boundary: the
	// encoding is exactly 4 (length) + 3 (bytes) = 7 bytes.
	require.Len(t, w.Bytes(), 7)
}

func TestEmptyString(t *testing.T) {
	w := NewWriter()
	w.String("")
	r := NewReader(w.Bytes())
	s, err := r.String()
	require.NoError(t, err)
	require.Equal(t, "", s)
}

func TestReadBeyondAvailableFails(t *testing.T) {
	r := NewReader([]byte{0, 0})
	_, err := r.Uint32()
	require.ErrorIs(t, err, ErrShortPacket)
}

func TestLoneSurrogateReplacedOnEncode(t *testing.T) {
	w := NewWriter()
	// A lone UTF-16 surrogate has no valid UTF-8 encoding; Go represents an
	// attempt to do so with utf8.RuneError when the string already contains
	// invalid bytes. We simulate the "lone surrogate" case with an invalid
	// byte sequence and check it comes back as U+FFFD.
	invalid := string([]byte{0xED, 0xA0, 0x80}) // CESU-8 encoded high surrogate
	w.String(invalid)
	r := NewReader(w.Bytes())
	s, err := r.String()
	require.NoError(t, err)
	require.Contains(t, s, "�")
}

func TestAttrsRoundTrip(t *testing.T) {
	size := uint64(4096)
	uid, gid := uint32(1000), uint32(1000)
	perms := uint32(0o644)
	atime, mtime := uint32(1700000000), uint32(1700000100)

	a := &Attrs{
		Size: &size, UID: &uid, GID: &gid, Perms: &perms, ATime: &atime, MTime: &mtime,
		Extended: []ExtendedAttr{{Key: "foo", Value: "bar"}},
	}

	w := NewWriter()
	w.WriteAttrs(a)
	r := NewReader(w.Bytes())
	got, err := r.ReadAttrs()
	require.NoError(t, err)
	require.Equal(t, *a.Size, *got.Size)
	require.Equal(t, *a.UID, *got.UID)
	require.Equal(t, *a.GID, *got.GID)
	require.Equal(t, *a.Perms, *got.Perms)
	require.Equal(t, *a.ATime, *got.ATime)
	require.Equal(t, *a.MTime, *got.MTime)
	require.Equal(t, a.Extended, got.Extended)
}

func TestAttrsEmptyHasNoOptionalFields(t *testing.T) {
	w := NewWriter()
	w.WriteAttrs(&Attrs{})
	require.Len(t, w.Bytes(), 4) // just the flag word, value 0

	r := NewReader(w.Bytes())
	got, err := r.ReadAttrs()
	require.NoError(t, err)
	require.Nil(t, got.Size)
	require.Nil(t, got.UID)
}

func TestNameListRoundTrip(t *testing.T) {
	items := []Item{
		{Filename: "a.txt", Longname: "-rw-r--r-- 1 owner group 10 Jan 1 00:00 a.txt", Attrs: &Attrs{}},
		{Filename: "b", Longname: "drwxr-xr-x 2 owner group 4096 Jan 1 00:00 b", Attrs: &Attrs{}},
	}
	w := NewWriter()
	w.WriteNameList(items)
	r := NewReader(w.Bytes())
	got, err := r.ReadNameList()
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a.txt", got[0].Filename)
	require.Equal(t, "b", got[1].Filename)
}

func TestDecodePacketWithRequestID(t *testing.T) {
	w := EncodePacketHeader(proto.TypeLstat, 42, "")
	w.String("/foo/bar")
	body := w.Bytes()

	p, err := DecodePacket(body)
	require.NoError(t, err)
	require.Equal(t, proto.TypeLstat, p.Type)
	require.True(t, p.HasID)
	require.Equal(t, uint32(42), p.ID)

	pr := NewReader(p.Payload)
	path, err := pr.String()
	require.NoError(t, err)
	require.Equal(t, "/foo/bar", path)
}

func TestDecodePacketInitHasNoRequestID(t *testing.T) {
	w := EncodePacketHeader(proto.TypeInit, 0, "")
	w.Uint32(proto.ProtocolVersion)
	body := w.Bytes()

	p, err := DecodePacket(body)
	require.NoError(t, err)
	require.False(t, p.HasID)

	pr := NewReader(p.Payload)
	version, err := pr.Uint32()
	require.NoError(t, err)
	require.Equal(t, proto.ProtocolVersion, version)
}

func TestDecodeExtendedPacketHasName(t *testing.T) {
	w := EncodePacketHeader(proto.TypeExtended, 7, "statvfs@openssh.com")
	w.String("/")
	body := w.Bytes()

	p, err := DecodePacket(body)
	require.NoError(t, err)
	require.Equal(t, "statvfs@openssh.com", p.ExtName)
	require.True(t, p.HasID)
	require.Equal(t, uint32(7), p.ID)
}

func TestFinishPacketPrependsLength(t *testing.T) {
	body := []byte{1, 2, 3}
	full := FinishPacket(body)
	require.Len(t, full, 7)
	r := NewReader(full)
	length, err := r.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(3), length)
}
