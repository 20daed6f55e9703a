//go:build linux

package iou

import (
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"github.com/ringbahn/iou/pkg/liburing"
)

// SubmissionQueue is the producer side of a Ring. It claims slots,
// publishes them, and notifies the kernel. Not safe for concurrent
// use; drive it from a single goroutine.
type SubmissionQueue struct {
	ring *liburing.Ring
}

// PrepareSQE claims the next free submission slot and returns it
// zeroed, or nil when the ring is full. Slots claimed while the ring
// has no space are never partially reserved.
func (sq *SubmissionQueue) PrepareSQE() *SQE {
	raw := sq.ring.GetSQE()
	if raw == nil {
		return nil
	}
	raw.Clear()
	return &SQE{raw: raw}
}

// PrepareSQEs claims count contiguous submission slots as a unit, or
// returns nil when fewer than count are free. The slots are vended in
// claim order through the returned SQEs.
func (sq *SubmissionQueue) PrepareSQEs(count uint32) *SQEs {
	raws := sq.ring.GetSQEs(count)
	if raws == nil {
		return nil
	}
	for _, raw := range raws {
		raw.Clear()
	}
	return &SQEs{raws: raws}
}

// Submit publishes every prepared slot to the kernel and returns how
// many submissions the kernel consumed.
func (sq *SubmissionQueue) Submit() (uint, error) {
	return sq.ring.Submit()
}

// SubmitAndWait publishes every prepared slot and blocks until
// waitFor completions are available.
func (sq *SubmissionQueue) SubmitAndWait(waitFor uint32) (uint, error) {
	return sq.ring.SubmitAndWait(waitFor)
}

// SubmitAndWaitWithTimeout is SubmitAndWait bounded by duration. It
// returns how many submissions the kernel consumed; prepared slots
// are published even when the wait times out, in which case the error
// is ETIME. On kernels without extended enter arguments a timeout
// submission is injected into the ring; its completion carries the
// reserved timeout user data and is never surfaced through the
// completion handles.
func (sq *SubmissionQueue) SubmitAndWaitWithTimeout(waitFor uint32, duration time.Duration) (uint, error) {
	ts := new(syscall.Timespec)
	*ts = syscall.NsecToTimespec(duration.Nanoseconds())
	_, consumed, err := sq.ring.SubmitAndWaitTimeout(waitFor, ts, nil)
	runtime.KeepAlive(ts)
	return consumed, err
}

// Ready reports slots claimed or published but not yet consumed by
// the kernel.
func (sq *SubmissionQueue) Ready() uint32 {
	return sq.ring.SQReady()
}

// SpaceLeft reports how many slots can still be claimed before the
// ring is full.
func (sq *SubmissionQueue) SpaceLeft() uint32 {
	return sq.ring.SQSpaceLeft()
}

// Entries returns the submission ring capacity.
func (sq *SubmissionQueue) Entries() uint32 {
	return sq.ring.SQEntries()
}

// NeedWakeup reports whether a kernel side poll thread has gone idle
// and needs a wakeup on the next enter.
func (sq *SubmissionQueue) NeedWakeup() bool {
	return sq.ring.SQNeedWakeup()
}

// SQE is a claimed submission slot. It stays writable until the
// Submit call that publishes it; after that the slot belongs to the
// kernel and must not be touched.
//
// Flags already set on the slot survive preparation: a link or drain
// flag may be applied before or after the prepare call, the prepare
// methods carry it over while reinitializing the rest of the slot.
//
// Buffers handed to the prepare methods are referenced by address
// inside the ring slot, invisibly to the garbage collector. The
// caller must keep the buffer alive and unmoved until the matching
// completion has been observed.
type SQE struct {
	raw *liburing.SubmissionQueueEntry
}

// UserData returns the completion tag currently set on the slot.
func (sqe *SQE) UserData() uint64 {
	return sqe.raw.UserData
}

// SetUserData tags the slot; the matching completion carries the same
// value. The all ones value is reserved for internal timeouts, see
// liburing.UdataTimeout.
func (sqe *SQE) SetUserData(data uint64) {
	sqe.raw.SetData64(data)
}

// Flags returns the submission flags currently set on the slot.
func (sqe *SQE) Flags() uint8 {
	return sqe.raw.Flags
}

// SetFlags ors flags into the slot.
func (sqe *SQE) SetFlags(flags uint8) {
	sqe.raw.SetFlags(flags)
}

// Clear zeroes the slot, including any flags a batch set on it.
func (sqe *SQE) Clear() {
	sqe.raw.Clear()
}

// keepFlags captures the flags byte so a prepare call can restore it.
// The raw prepare methods reinitialize every slot field, including
// flags a chain builder already set.
func (sqe *SQE) keepFlags() uint8 {
	return sqe.raw.Flags
}

func (sqe *SQE) PrepareNop() {
	flags := sqe.keepFlags()
	sqe.raw.PrepareNop()
	sqe.raw.SetFlags(flags)
}

func (sqe *SQE) PrepareRead(fd RingFd, buf []byte, offset uint64) {
	flags := sqe.keepFlags()
	sqe.raw.PrepareRead(fd.value(), bufAddr(buf), uint32(len(buf)), offset)
	sqe.raw.SetFlags(flags)
	fd.apply(sqe.raw)
}

func (sqe *SQE) PrepareWrite(fd RingFd, buf []byte, offset uint64) {
	flags := sqe.keepFlags()
	sqe.raw.PrepareWrite(fd.value(), bufAddr(buf), uint32(len(buf)), offset)
	sqe.raw.SetFlags(flags)
	fd.apply(sqe.raw)
}

func (sqe *SQE) PrepareReadv(fd RingFd, iovecs []syscall.Iovec, offset uint64) {
	flags := sqe.keepFlags()
	sqe.raw.PrepareReadv(fd.value(), iovecAddr(iovecs), uint32(len(iovecs)), offset)
	sqe.raw.SetFlags(flags)
	fd.apply(sqe.raw)
}

func (sqe *SQE) PrepareWritev(fd RingFd, iovecs []syscall.Iovec, offset uint64) {
	flags := sqe.keepFlags()
	sqe.raw.PrepareWritev(fd.value(), iovecAddr(iovecs), uint32(len(iovecs)), offset)
	sqe.raw.SetFlags(flags)
	fd.apply(sqe.raw)
}

// PrepareReadFixed reads into a registered buffer. bufIndex names the
// buffer's position in the registered set and buf must lie inside it.
func (sqe *SQE) PrepareReadFixed(fd RingFd, buf []byte, offset uint64, bufIndex int) {
	flags := sqe.keepFlags()
	sqe.raw.PrepareReadFixed(fd.value(), bufAddr(buf), uint32(len(buf)), offset, bufIndex)
	sqe.raw.SetFlags(flags)
	fd.apply(sqe.raw)
}

// PrepareWriteFixed writes from a registered buffer, see
// PrepareReadFixed.
func (sqe *SQE) PrepareWriteFixed(fd RingFd, buf []byte, offset uint64, bufIndex int) {
	flags := sqe.keepFlags()
	sqe.raw.PrepareWriteFixed(fd.value(), bufAddr(buf), uint32(len(buf)), offset, bufIndex)
	sqe.raw.SetFlags(flags)
	fd.apply(sqe.raw)
}

func (sqe *SQE) PrepareFsync(fd RingFd, flags uint32) {
	kept := sqe.keepFlags()
	sqe.raw.PrepareFsync(fd.value(), flags)
	sqe.raw.SetFlags(kept)
	fd.apply(sqe.raw)
}

func (sqe *SQE) PrepareClose(fd RingFd) {
	flags := sqe.keepFlags()
	sqe.raw.PrepareClose(fd.value())
	sqe.raw.SetFlags(flags)
	fd.apply(sqe.raw)
}

func (sqe *SQE) PreparePollAdd(fd RingFd, pollMask uint32) {
	flags := sqe.keepFlags()
	sqe.raw.PreparePollAdd(fd.value(), pollMask)
	sqe.raw.SetFlags(flags)
	fd.apply(sqe.raw)
}

func (sqe *SQE) PreparePollRemove(userData uint64) {
	flags := sqe.keepFlags()
	sqe.raw.PreparePollRemove(userData)
	sqe.raw.SetFlags(flags)
}

// PrepareTimeout arms a standalone timeout that completes after
// duration, or earlier once count other completions have posted.
// The timespec written into the slot is owned by the returned
// pointer; keep it alive until the completion is observed.
func (sqe *SQE) PrepareTimeout(duration time.Duration, count uint32) *syscall.Timespec {
	ts := new(syscall.Timespec)
	*ts = syscall.NsecToTimespec(duration.Nanoseconds())
	flags := sqe.keepFlags()
	sqe.raw.PrepareTimeout(ts, count, 0)
	sqe.raw.SetFlags(flags)
	return ts
}

func (sqe *SQE) PrepareTimeoutRemove(userData uint64) {
	flags := sqe.keepFlags()
	sqe.raw.PrepareTimeoutRemove(userData, 0)
	sqe.raw.SetFlags(flags)
}

// PrepareLinkTimeout bounds the previous soft linked submission by
// duration. Same timespec lifetime contract as PrepareTimeout.
func (sqe *SQE) PrepareLinkTimeout(duration time.Duration) *syscall.Timespec {
	ts := new(syscall.Timespec)
	*ts = syscall.NsecToTimespec(duration.Nanoseconds())
	flags := sqe.keepFlags()
	sqe.raw.PrepareLinkTimeout(ts, 0)
	sqe.raw.SetFlags(flags)
	return ts
}

func (sqe *SQE) PrepareCancel(userData uint64, flags uint32) {
	kept := sqe.keepFlags()
	sqe.raw.PrepareCancel64(userData, flags)
	sqe.raw.SetFlags(kept)
}

// SQEs vends a batch of claimed slots in ring order.
type SQEs struct {
	raws []*liburing.SubmissionQueueEntry
	next int
}

// Next returns the next slot of the batch, or nil when the batch is
// exhausted.
func (s *SQEs) Next() *SQE {
	if s.next >= len(s.raws) {
		return nil
	}
	raw := s.raws[s.next]
	s.next++
	return &SQE{raw: raw}
}

// Remaining reports how many slots Next has not vended yet.
func (s *SQEs) Remaining() uint32 {
	return uint32(len(s.raws) - s.next)
}

// HardLinked returns a view of the remaining slots that chains them
// with hard links: each vended slot except the last is linked to its
// successor, and a failed link does not break the chain.
func (s *SQEs) HardLinked() *LinkedSQEs {
	return &LinkedSQEs{sqes: s, flag: liburing.IOSQE_IO_HARDLINK}
}

// SoftLinked is HardLinked with soft links: a failed or short
// submission cancels the rest of the chain.
func (s *SQEs) SoftLinked() *LinkedSQEs {
	return &LinkedSQEs{sqes: s, flag: liburing.IOSQE_IO_LINK}
}

// LinkedSQEs vends the remaining slots of a batch as one ordered
// chain. The link flag goes on every slot except the last vended one,
// that is what terminates the chain. Slots may be prepared before or
// after the next one is vended; preparation keeps the link flag.
type LinkedSQEs struct {
	sqes *SQEs
	flag uint8
	prev *SQE
}

// Next links the previously vended slot to the batch and returns the
// next one, or nil when the batch is exhausted.
func (l *LinkedSQEs) Next() *SQE {
	sqe := l.sqes.Next()
	if sqe != nil && l.prev != nil {
		l.prev.SetFlags(l.flag)
	}
	if sqe != nil {
		l.prev = sqe
	}
	return sqe
}

// Remaining reports how many slots Next has not vended yet.
func (l *LinkedSQEs) Remaining() uint32 {
	return l.sqes.Remaining()
}

func bufAddr(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

func iovecAddr(iovecs []syscall.Iovec) uintptr {
	if len(iovecs) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&iovecs[0]))
}
