package inotify

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
)

// HeaderSize is the size of the fixed record header: wd, mask, cookie, len.
const HeaderSize = 16

// Records walks batch from offset 0 and yields one RawRecord per fixed header
// plus name. A record that does not fit in batch yields ErrTruncatedRecord and
// ends the sequence; records are never assumed to continue in a later read.
func Records(batch []byte) iter.Seq2[RawRecord, error] {
	return func(yield func(RawRecord, error) bool) {
		offset := 0
		for offset < len(batch) {
			rec, size, err := decodeRecord(batch[offset:])
			if err != nil {
				yield(RawRecord{}, fmt.Errorf("at offset %d of %d: %w", offset, len(batch), err))
				return
			}
			if !yield(rec, nil) {
				return
			}
			offset += size
		}
	}
}

// decodeRecord decodes the record at the start of b and returns its total size.
func decodeRecord(b []byte) (RawRecord, int, error) {
	if len(b) < HeaderSize {
		return RawRecord{}, 0, fmt.Errorf("%w: %d header bytes left", ErrTruncatedRecord, len(b))
	}

	nameLen := binary.NativeEndian.Uint32(b[12:16])
	if uint64(nameLen) > uint64(len(b)-HeaderSize) {
		return RawRecord{}, 0, fmt.Errorf("%w: name length %d, %d bytes left", ErrTruncatedRecord, nameLen, len(b)-HeaderSize)
	}

	name := b[HeaderSize : HeaderSize+int(nameLen)]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	rec := RawRecord{
		WatchID: int(int32(binary.NativeEndian.Uint32(b[0:4]))),
		Mask:    Mask(binary.NativeEndian.Uint32(b[4:8])),
		Cookie:  binary.NativeEndian.Uint32(b[8:12]),
		Name:    string(name),
	}
	return rec, HeaderSize + int(nameLen), nil
}

// AppendRecord encodes rec in the kernel layout, NUL-padding the name to a
// multiple of the header alignment, and appends it to dst.
func AppendRecord(dst []byte, rec RawRecord) []byte {
	nameLen := 0
	if rec.Name != "" {
		// room for the terminating NUL, rounded up to 4 bytes
		nameLen = (len(rec.Name) + 1 + 3) &^ 3
	}

	dst = binary.NativeEndian.AppendUint32(dst, uint32(int32(rec.WatchID)))
	dst = binary.NativeEndian.AppendUint32(dst, uint32(rec.Mask))
	dst = binary.NativeEndian.AppendUint32(dst, rec.Cookie)
	dst = binary.NativeEndian.AppendUint32(dst, uint32(nameLen))
	dst = append(dst, rec.Name...)
	for i := len(rec.Name); i < nameLen; i++ {
		dst = append(dst, 0)
	}
	return dst
}
