package inotify

import "strings"

// Mask is the notification bitset carried by every record. The bit values are
// the kernel's IN_* constants and must not be reinterpreted.
type Mask uint32

const (
	InAccess       Mask = 0x00000001
	InModify       Mask = 0x00000002
	InAttrib       Mask = 0x00000004
	InCloseWrite   Mask = 0x00000008
	InCloseNowrite Mask = 0x00000010
	InOpen         Mask = 0x00000020
	InMovedFrom    Mask = 0x00000040
	InMovedTo      Mask = 0x00000080
	InCreate       Mask = 0x00000100
	InDelete       Mask = 0x00000200
	InDeleteSelf   Mask = 0x00000400
	InMoveSelf     Mask = 0x00000800
	InUnmount      Mask = 0x00002000
	InQOverflow    Mask = 0x00004000
	InIgnored      Mask = 0x00008000
	InIsDir        Mask = 0x40000000
)

// WatchMask is the set of kinds the translator understands. Registering a
// watch with a wider mask is harmless; the extra kinds are ignored.
const WatchMask = InModify | InAttrib | InMovedFrom | InMovedTo | InCreate | InDelete | InDeleteSelf

var maskNames = []struct {
	bit  Mask
	name string
}{
	{InAccess, "IN_ACCESS"},
	{InModify, "IN_MODIFY"},
	{InAttrib, "IN_ATTRIB"},
	{InCloseWrite, "IN_CLOSE_WRITE"},
	{InCloseNowrite, "IN_CLOSE_NOWRITE"},
	{InOpen, "IN_OPEN"},
	{InMovedFrom, "IN_MOVED_FROM"},
	{InMovedTo, "IN_MOVED_TO"},
	{InCreate, "IN_CREATE"},
	{InDelete, "IN_DELETE"},
	{InDeleteSelf, "IN_DELETE_SELF"},
	{InMoveSelf, "IN_MOVE_SELF"},
	{InUnmount, "IN_UNMOUNT"},
	{InQOverflow, "IN_Q_OVERFLOW"},
	{InIgnored, "IN_IGNORED"},
	{InIsDir, "IN_ISDIR"},
}

// Has reports whether any bit of flag is set in m.
func (m Mask) Has(flag Mask) bool {
	return m&flag != 0
}

func (m Mask) String() string {
	if m == 0 {
		return "0"
	}
	var parts []string
	for _, n := range maskNames {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}
