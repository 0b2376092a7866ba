//go:build linux

package inotify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestMask_MatchesKernel(t *testing.T) {
	cases := map[Mask]uint32{
		InAccess:       unix.IN_ACCESS,
		InModify:       unix.IN_MODIFY,
		InAttrib:       unix.IN_ATTRIB,
		InCloseWrite:   unix.IN_CLOSE_WRITE,
		InCloseNowrite: unix.IN_CLOSE_NOWRITE,
		InOpen:         unix.IN_OPEN,
		InMovedFrom:    unix.IN_MOVED_FROM,
		InMovedTo:      unix.IN_MOVED_TO,
		InCreate:       unix.IN_CREATE,
		InDelete:       unix.IN_DELETE,
		InDeleteSelf:   unix.IN_DELETE_SELF,
		InMoveSelf:     unix.IN_MOVE_SELF,
		InUnmount:      unix.IN_UNMOUNT,
		InQOverflow:    unix.IN_Q_OVERFLOW,
		InIgnored:      unix.IN_IGNORED,
		InIsDir:        unix.IN_ISDIR,
	}
	for mask, kernel := range cases {
		assert.Equal(t, kernel, uint32(mask), mask.String())
	}
	assert.Equal(t, unix.SizeofInotifyEvent, HeaderSize)
}
