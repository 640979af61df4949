package wire

import "github.com/marmos91/sftpws/internal/proto"

// ExtendedAttr is one key/value pair of the EXTENDED attribute group
// (spec.md §3 Attributes).
type ExtendedAttr struct {
	Key   string
	Value string
}

// Attrs is the bit-flagged file-metadata record of spec.md §3. Each pointer
// field is present on the wire only when the corresponding flag bit is set.
type Attrs struct {
	Size       *uint64
	UID        *uint32
	GID        *uint32
	Perms      *uint32
	ATime      *uint32
	MTime      *uint32
	Extended   []ExtendedAttr
}

func (a *Attrs) flags() proto.AttrFlag {
	var f proto.AttrFlag
	if a.Size != nil {
		f |= proto.AttrSize
	}
	if a.UID != nil || a.GID != nil {
		f |= proto.AttrUIDGID
	}
	if a.Perms != nil {
		f |= proto.AttrPerms
	}
	if a.ATime != nil || a.MTime != nil {
		f |= proto.AttrACModTime
	}
	if len(a.Extended) > 0 {
		f |= proto.AttrExtended
	}
	return f
}

// WriteAttrs appends the flag word followed by whichever fields are present.
func (w *Writer) WriteAttrs(a *Attrs) {
	if a == nil {
		w.Uint32(0)
		return
	}
	flags := a.flags()
	w.Uint32(uint32(flags))
	if flags&proto.AttrSize != 0 {
		w.Uint64(*a.Size)
	}
	if flags&proto.AttrUIDGID != 0 {
		uid, gid := uint32(0), uint32(0)
		if a.UID != nil {
			uid = *a.UID
		}
		if a.GID != nil {
			gid = *a.GID
		}
		w.Uint32(uid)
		w.Uint32(gid)
	}
	if flags&proto.AttrPerms != 0 {
		w.Uint32(*a.Perms)
	}
	if flags&proto.AttrACModTime != 0 {
		atime, mtime := uint32(0), uint32(0)
		if a.ATime != nil {
			atime = *a.ATime
		}
		if a.MTime != nil {
			mtime = *a.MTime
		}
		w.Uint32(atime)
		w.Uint32(mtime)
	}
	if flags&proto.AttrExtended != 0 {
		w.Uint32(uint32(len(a.Extended)))
		for _, kv := range a.Extended {
			w.String(kv.Key)
			w.String(kv.Value)
		}
	}
}

// ReadAttrs consumes the flag word and whichever fields it indicates are
// present.
func (r *Reader) ReadAttrs() (*Attrs, error) {
	flagWord, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	flags := proto.AttrFlag(flagWord)
	a := &Attrs{}

	if flags&proto.AttrSize != 0 {
		v, err := r.Uint64()
		if err != nil {
			return nil, err
		}
		a.Size = &v
	}
	if flags&proto.AttrUIDGID != 0 {
		uid, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		gid, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		a.UID = &uid
		a.GID = &gid
	}
	if flags&proto.AttrPerms != 0 {
		v, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		a.Perms = &v
	}
	if flags&proto.AttrACModTime != 0 {
		atime, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		mtime, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		a.ATime = &atime
		a.MTime = &mtime
	}
	if flags&proto.AttrExtended != 0 {
		count, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		a.Extended = make([]ExtendedAttr, 0, count)
		for i := uint32(0); i < count; i++ {
			k, err := r.String()
			if err != nil {
				return nil, err
			}
			v, err := r.String()
			if err != nil {
				return nil, err
			}
			a.Extended = append(a.Extended, ExtendedAttr{Key: k, Value: v})
		}
	}
	return a, nil
}

// Item is a directory entry (spec.md §3 Item): leaf filename, textual
// longname, and its attributes.
type Item struct {
	Filename string
	Longname string
	Attrs    *Attrs
}

// WriteNameList appends a NAME response body: count then that many
// (filename, longname, attrs) tuples (spec.md §4.D Response encoding).
func (w *Writer) WriteNameList(items []Item) {
	w.Uint32(uint32(len(items)))
	for _, it := range items {
		w.String(it.Filename)
		w.String(it.Longname)
		w.WriteAttrs(it.Attrs)
	}
}

// ReadNameList consumes a NAME response body.
func (r *Reader) ReadNameList() ([]Item, error) {
	count, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.String()
		if err != nil {
			return nil, err
		}
		longname, err := r.String()
		if err != nil {
			return nil, err
		}
		attrs, err := r.ReadAttrs()
		if err != nil {
			return nil, err
		}
		items = append(items, Item{Filename: name, Longname: longname, Attrs: attrs})
	}
	return items, nil
}
