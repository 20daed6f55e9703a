//go:build linux

package liburing

import (
	"syscall"
	"unsafe"
)

const (
	sysRegister = 427
)

const (
	IORING_REGISTER_BUFFERS uint32 = iota
	IORING_UNREGISTER_BUFFERS
	IORING_REGISTER_FILES
	IORING_UNREGISTER_FILES
	IORING_REGISTER_EVENTFD
	IORING_UNREGISTER_EVENTFD
	IORING_REGISTER_FILES_UPDATE
	IORING_REGISTER_EVENTFD_ASYNC
	IORING_REGISTER_PROBE
	IORING_REGISTER_PERSONALITY
	IORING_UNREGISTER_PERSONALITY
)

type FilesUpdate struct {
	Offset uint32
	Resv   uint32
	Fds    uint64
}

func (ring *Ring) doRegister(opcode uint32, arg unsafe.Pointer, nrArgs uint32) (uint, error) {
	r1, _, errno := syscall.Syscall6(
		sysRegister,
		uintptr(ring.ringFd),
		uintptr(opcode),
		uintptr(arg),
		uintptr(nrArgs),
		0,
		0,
	)
	if errno != 0 {
		return 0, errno
	}
	return uint(r1), nil
}

// RegisterFiles pins fds into the kernel's fixed file table. The call is
// all-or-nothing: one bad descriptor fails the whole batch. An fd of -1
// reserves a sparse (placeholder) entry.
func (ring *Ring) RegisterFiles(files []int32) (uint, error) {
	return ring.doRegister(IORING_REGISTER_FILES, unsafe.Pointer(&files[0]), uint32(len(files)))
}

// RegisterFilesUpdate replaces table entries starting at off in place. The
// table size is fixed by RegisterFiles; bounds are the caller's problem and
// the kernel rejects overruns.
func (ring *Ring) RegisterFilesUpdate(off uint32, files []int32) (uint, error) {
	update := &FilesUpdate{
		Offset: off,
		Fds:    uint64(uintptr(unsafe.Pointer(&files[0]))),
	}
	return ring.doRegister(IORING_REGISTER_FILES_UPDATE, unsafe.Pointer(update), uint32(len(files)))
}

func (ring *Ring) UnregisterFiles() (uint, error) {
	return ring.doRegister(IORING_UNREGISTER_FILES, unsafe.Pointer(nil), 0)
}

// RegisterBuffers pins iovecs for fixed-buffer IO. The memory must stay
// valid and unmoved until UnregisterBuffers or ring close.
func (ring *Ring) RegisterBuffers(iovecs []syscall.Iovec) (uint, error) {
	return ring.doRegister(IORING_REGISTER_BUFFERS, unsafe.Pointer(&iovecs[0]), uint32(len(iovecs)))
}

func (ring *Ring) UnregisterBuffers() (uint, error) {
	return ring.doRegister(IORING_UNREGISTER_BUFFERS, unsafe.Pointer(nil), 0)
}

// RegisterEventFd hands fd to the kernel for completion notification. The
// kernel reads the argument as a signed 32 bit descriptor.
func (ring *Ring) RegisterEventFd(fd int) (uint, error) {
	event := int32(fd)
	return ring.doRegister(IORING_REGISTER_EVENTFD, unsafe.Pointer(&event), 1)
}

// RegisterEventFdAsync is like RegisterEventFd but only signals for
// completions that arrived off the submitting task.
func (ring *Ring) RegisterEventFdAsync(fd int) (uint, error) {
	event := int32(fd)
	return ring.doRegister(IORING_REGISTER_EVENTFD_ASYNC, unsafe.Pointer(&event), 1)
}

func (ring *Ring) UnregisterEventFd() (uint, error) {
	return ring.doRegister(IORING_UNREGISTER_EVENTFD, unsafe.Pointer(nil), 0)
}

func (ring *Ring) RegisterProbe(probe *Probe, nrOps uint32) (uint, error) {
	return ring.doRegister(IORING_REGISTER_PROBE, unsafe.Pointer(probe), nrOps)
}
