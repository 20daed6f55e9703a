//go:build linux

package liburing

import (
	"syscall"
	"unsafe"
)

const (
	sysSetup = 425
)

func (ring *Ring) setup(entries uint32, params *Params) error {
	entries = RoundupPow2(entries)

	fdPtr, _, errno := syscall.Syscall(sysSetup, uintptr(entries), uintptr(unsafe.Pointer(params)), 0)
	if errno != 0 {
		return errno
	}
	fd := int(fdPtr)

	if err := mmapRing(fd, params, ring.sqRing, ring.cqRing); err != nil {
		_ = syscall.Close(fd)
		return err
	}

	// The kernel consumes submissions indirectly through the sq array; fill
	// it once with the identity mapping so tail index i always names slot i.
	sqEntries := *ring.sqRing.ringEntries
	for index := uint32(0); index < sqEntries; index++ {
		*(*uint32)(
			unsafe.Add(unsafe.Pointer(ring.sqRing.array),
				index*uint32(unsafe.Sizeof(uint32(0))))) = index
	}

	ring.features = params.features
	ring.flags = params.flags
	ring.ringFd = fd
	syscall.CloseOnExec(ring.ringFd)
	return nil
}
