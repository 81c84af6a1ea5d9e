package nativemsg

import (
	"encoding/binary"
)

import "golang.org/x/sys/cpu"

// nativeEndian is the byte order of the host CPU.  Browsers frame native
// messages in native byte order, not network order.
var nativeEndian binary.ByteOrder = binary.LittleEndian

func init() {
	if cpu.IsBigEndian {
		nativeEndian = binary.BigEndian
	}
}
