//go:build linux

package liburing

import (
	"sync/atomic"
	"syscall"
	"unsafe"
)

const (
	IORING_SQ_NEED_WAKEUP uint32 = 1 << iota
	IORING_SQ_CQ_OVERFLOW
	IORING_SQ_TASKRUN
)

// SubmissionQueue is the producer side of the ring. head is advanced by the
// kernel, tail by us; sqeHead/sqeTail track slots claimed locally but not yet
// published through flushSQ.
type SubmissionQueue struct {
	head        *uint32
	tail        *uint32
	ringMask    *uint32
	ringEntries *uint32
	flags       *uint32
	dropped     *uint32
	array       *uint32
	sqes        *SubmissionQueueEntry
	ringSize    uint
	ringPtr     unsafe.Pointer
	sqeHead     uint32
	sqeTail     uint32
}

func (sq *SubmissionQueue) sqeAt(index uint32) *SubmissionQueueEntry {
	return (*SubmissionQueueEntry)(
		unsafe.Add(unsafe.Pointer(sq.sqes),
			uintptr(index&*sq.ringMask)*unsafe.Sizeof(SubmissionQueueEntry{})),
	)
}

// GetSQE claims one free submission slot, or returns nil when the ring is
// full. The returned entry holds whatever the previous occupant left behind;
// callers must prepare it fully before submitting.
func (ring *Ring) GetSQE() *SubmissionQueueEntry {
	sq := ring.sqRing
	head := atomic.LoadUint32(sq.head)
	next := sq.sqeTail + 1
	if next-head <= *sq.ringEntries {
		sqe := sq.sqeAt(sq.sqeTail)
		sq.sqeTail = next
		return sqe
	}
	return nil
}

// GetSQEs claims count slots as a unit, or returns nil when fewer are free.
// No partial reservation is ever made. The count > entries guard keeps the
// wrapping subtraction below from overflowing for absurd counts.
func (ring *Ring) GetSQEs(count uint32) []*SubmissionQueueEntry {
	sq := ring.sqRing
	if count == 0 || count > *sq.ringEntries {
		return nil
	}
	head := atomic.LoadUint32(sq.head)
	next := sq.sqeTail + count
	if next-head > *sq.ringEntries {
		return nil
	}
	sqes := make([]*SubmissionQueueEntry, count)
	for i := uint32(0); i < count; i++ {
		sqes[i] = sq.sqeAt(sq.sqeTail + i)
	}
	sq.sqeTail = next
	return sqes
}

func (ring *Ring) SQEntries() uint32 {
	return *ring.sqRing.ringEntries
}

// SQReady reports slots claimed or published but not yet consumed by the
// kernel.
func (ring *Ring) SQReady() uint32 {
	khead := *ring.sqRing.head
	if ring.flags&IORING_SETUP_SQPOLL != 0 {
		khead = atomic.LoadUint32(ring.sqRing.head)
	}
	return ring.sqRing.sqeTail - khead
}

func (ring *Ring) SQSpaceLeft() uint32 {
	return *ring.sqRing.ringEntries - ring.SQReady()
}

func (ring *Ring) SQNeedWakeup() bool {
	if ring.flags&IORING_SETUP_SQPOLL == 0 {
		return false
	}
	return atomic.LoadUint32(ring.sqRing.flags)&IORING_SQ_NEED_WAKEUP != 0
}

func (ring *Ring) sqRingNeedsEnter(submit uint32, flags *uint32) bool {
	if submit == 0 {
		return false
	}
	if ring.flags&IORING_SETUP_SQPOLL == 0 {
		return true
	}
	if atomic.LoadUint32(ring.sqRing.flags)&IORING_SQ_NEED_WAKEUP != 0 {
		*flags |= IORING_ENTER_SQ_WAKEUP
		return true
	}
	return false
}

// flushSQ publishes locally claimed slots to the kernel. The release store
// on tail is what transfers ownership: the kernel must never observe slot
// contents before the tail that exposes them.
func (ring *Ring) flushSQ() uint32 {
	sq := ring.sqRing
	tail := sq.sqeTail
	if sq.sqeHead != tail {
		sq.sqeHead = tail
		atomic.StoreUint32(sq.tail, tail)
	}
	return tail - atomic.LoadUint32(sq.head)
}

// Submit publishes every slot claimed since the last submit and notifies the
// kernel. Kernel errors are surfaced verbatim; no retry happens here.
func (ring *Ring) Submit() (uint, error) {
	return ring.submit(ring.flushSQ(), 0, false)
}

func (ring *Ring) SubmitAndWait(waitNr uint32) (uint, error) {
	return ring.submit(ring.flushSQ(), waitNr, false)
}

func (ring *Ring) SubmitAndGetEvents() (uint, error) {
	return ring.submit(ring.flushSQ(), 0, true)
}

func (ring *Ring) submit(submitted uint32, waitNr uint32, getEvents bool) (uint, error) {
	cqNeedsEnter := getEvents || waitNr != 0 || ring.cqRingNeedsEnter()

	var flags uint32
	if ring.sqRingNeedsEnter(submitted, &flags) || cqNeedsEnter {
		if cqNeedsEnter {
			flags |= IORING_ENTER_GETEVENTS
		}
		return ring.Enter(submitted, waitNr, flags, nil)
	}
	return uint(submitted), nil
}

// submitTimeout claims one extra slot for an internal timeout request tagged
// with UdataTimeout, submitting first if the ring is full. This is the only
// place a full ring is retried on the caller's behalf.
func (ring *Ring) submitTimeout(waitNr uint32, ts *syscall.Timespec) (uint32, error) {
	sqe := ring.GetSQE()
	if sqe == nil {
		if _, err := ring.Submit(); err != nil {
			return 0, err
		}
		sqe = ring.GetSQE()
		if sqe == nil {
			return 0, syscall.EAGAIN
		}
	}
	sqe.PrepareTimeout(ts, waitNr, 0)
	sqe.UserData = UdataTimeout

	return ring.flushSQ(), nil
}
