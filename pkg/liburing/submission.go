//go:build linux

package liburing

import (
	"syscall"
	"unsafe"
)

const (
	IORING_OP_NOP uint8 = iota
	IORING_OP_READV
	IORING_OP_WRITEV
	IORING_OP_FSYNC
	IORING_OP_READ_FIXED
	IORING_OP_WRITE_FIXED
	IORING_OP_POLL_ADD
	IORING_OP_POLL_REMOVE
	IORING_OP_SYNC_FILE_RANGE
	IORING_OP_SENDMSG
	IORING_OP_RECVMSG
	IORING_OP_TIMEOUT
	IORING_OP_TIMEOUT_REMOVE
	IORING_OP_ACCEPT
	IORING_OP_ASYNC_CANCEL
	IORING_OP_LINK_TIMEOUT
	IORING_OP_CONNECT
	IORING_OP_FALLOCATE
	IORING_OP_OPENAT
	IORING_OP_CLOSE
	IORING_OP_FILES_UPDATE
	IORING_OP_STATX
	IORING_OP_READ
	IORING_OP_WRITE
	IORING_OP_FADVISE
	IORING_OP_MADVISE
	IORING_OP_SEND
	IORING_OP_RECV
	IORING_OP_OPENAT2
	IORING_OP_EPOLL_CTL
	IORING_OP_SPLICE
	IORING_OP_PROVIDE_BUFFERS
	IORING_OP_REMOVE_BUFFERS
)

const (
	IOSQE_FIXED_FILE uint8 = 1 << iota
	IOSQE_IO_DRAIN
	IOSQE_IO_LINK
	IOSQE_IO_HARDLINK
	IOSQE_ASYNC
	IOSQE_BUFFER_SELECT
)

const (
	IORING_TIMEOUT_ABS uint32 = 1 << iota
	IORING_TIMEOUT_UPDATE
)

const IORING_FSYNC_DATASYNC uint32 = 1 << 0

const (
	IORING_POLL_ADD_MULTI uint32 = 1 << iota
	IORING_POLL_UPDATE_EVENTS
	IORING_POLL_UPDATE_USER_DATA
)

// SubmissionQueueEntry mirrors the 64 byte struct io_uring_sqe the kernel
// reads out of the submission ring. Once the tail publishing this entry has
// been stored, it belongs to the kernel until the matching completion.
type SubmissionQueueEntry struct {
	OpCode      uint8
	Flags       uint8
	IoPrio      uint16
	Fd          int32
	Off         uint64
	Addr        uint64
	Len         uint32
	OpcodeFlags uint32
	UserData    uint64
	BufIG       uint16
	Personality uint16
	SpliceFdIn  int32
	Addr3       uint64
	_pad2       [1]uint64
}

func (entry *SubmissionQueueEntry) SetData64(data uint64) {
	entry.UserData = data
}

func (entry *SubmissionQueueEntry) SetFlags(flags uint8) {
	entry.Flags |= flags
}

func (entry *SubmissionQueueEntry) Clear() {
	*entry = SubmissionQueueEntry{}
}

func (entry *SubmissionQueueEntry) PrepareNop() {
	entry.prepareRW(IORING_OP_NOP, -1, 0, 0, 0)
}

func (entry *SubmissionQueueEntry) PrepareRead(fd int, buf uintptr, nbytes uint32, offset uint64) {
	entry.prepareRW(IORING_OP_READ, fd, buf, nbytes, offset)
}

func (entry *SubmissionQueueEntry) PrepareWrite(fd int, buf uintptr, nbytes uint32, offset uint64) {
	entry.prepareRW(IORING_OP_WRITE, fd, buf, nbytes, offset)
}

func (entry *SubmissionQueueEntry) PrepareReadv(fd int, iovecs uintptr, nrVecs uint32, offset uint64) {
	entry.prepareRW(IORING_OP_READV, fd, iovecs, nrVecs, offset)
}

func (entry *SubmissionQueueEntry) PrepareWritev(fd int, iovecs uintptr, nrVecs uint32, offset uint64) {
	entry.prepareRW(IORING_OP_WRITEV, fd, iovecs, nrVecs, offset)
}

func (entry *SubmissionQueueEntry) PrepareReadFixed(fd int, buf uintptr, nbytes uint32, offset uint64, bufIndex int) {
	entry.prepareRW(IORING_OP_READ_FIXED, fd, buf, nbytes, offset)
	entry.BufIG = uint16(bufIndex)
}

func (entry *SubmissionQueueEntry) PrepareWriteFixed(fd int, buf uintptr, nbytes uint32, offset uint64, bufIndex int) {
	entry.prepareRW(IORING_OP_WRITE_FIXED, fd, buf, nbytes, offset)
	entry.BufIG = uint16(bufIndex)
}

func (entry *SubmissionQueueEntry) PrepareFsync(fd int, flags uint32) {
	entry.prepareRW(IORING_OP_FSYNC, fd, 0, 0, 0)
	entry.OpcodeFlags = flags
}

func (entry *SubmissionQueueEntry) PrepareClose(fd int) {
	entry.prepareRW(IORING_OP_CLOSE, fd, 0, 0, 0)
}

func (entry *SubmissionQueueEntry) PreparePollAdd(fd int, pollMask uint32) {
	entry.prepareRW(IORING_OP_POLL_ADD, fd, 0, 0, 0)
	entry.OpcodeFlags = pollMask
}

func (entry *SubmissionQueueEntry) PreparePollRemove(userData uint64) {
	entry.prepareRW(IORING_OP_POLL_REMOVE, -1, 0, 0, 0)
	entry.Addr = userData
}

func (entry *SubmissionQueueEntry) PrepareAccept(fd int, addr *syscall.RawSockaddrAny, addrLen *uint32, flags int) {
	entry.prepareRW(IORING_OP_ACCEPT, fd, uintptr(unsafe.Pointer(addr)), 0, uint64(uintptr(unsafe.Pointer(addrLen))))
	entry.OpcodeFlags = uint32(flags)
}

func (entry *SubmissionQueueEntry) PrepareConnect(fd int, addr *syscall.RawSockaddrAny, addrLen uint64) {
	entry.prepareRW(IORING_OP_CONNECT, fd, uintptr(unsafe.Pointer(addr)), 0, addrLen)
}

func (entry *SubmissionQueueEntry) PrepareTimeout(spec *syscall.Timespec, count, flags uint32) {
	entry.prepareRW(IORING_OP_TIMEOUT, -1, uintptr(unsafe.Pointer(spec)), 1, uint64(count))
	entry.OpcodeFlags = flags
}

func (entry *SubmissionQueueEntry) PrepareTimeoutRemove(userData uint64, flags uint32) {
	entry.prepareRW(IORING_OP_TIMEOUT_REMOVE, -1, 0, 0, 0)
	entry.Addr = userData
	entry.OpcodeFlags = flags
}

func (entry *SubmissionQueueEntry) PrepareLinkTimeout(spec *syscall.Timespec, flags uint32) {
	entry.prepareRW(IORING_OP_LINK_TIMEOUT, -1, uintptr(unsafe.Pointer(spec)), 1, 0)
	entry.OpcodeFlags = flags
}

func (entry *SubmissionQueueEntry) PrepareCancel64(userData uint64, flags uint32) {
	entry.prepareRW(IORING_OP_ASYNC_CANCEL, -1, 0, 0, 0)
	entry.Addr = userData
	entry.OpcodeFlags = flags
}

func (entry *SubmissionQueueEntry) PrepareFilesUpdate(fds []int32, offset int) {
	entry.prepareRW(IORING_OP_FILES_UPDATE, -1, uintptr(unsafe.Pointer(&fds[0])), uint32(len(fds)), uint64(offset))
}

func (entry *SubmissionQueueEntry) prepareRW(opcode uint8, fd int, addr uintptr, length uint32, offset uint64) {
	entry.OpCode = opcode
	entry.Flags = 0
	entry.IoPrio = 0
	entry.Fd = int32(fd)
	entry.Off = offset
	entry.Addr = uint64(addr)
	entry.Len = length
	entry.OpcodeFlags = 0
	entry.UserData = 0
	entry.BufIG = 0
	entry.Personality = 0
	entry.SpliceFdIn = 0
	entry.Addr3 = 0
}
