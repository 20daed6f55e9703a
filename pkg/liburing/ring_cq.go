//go:build linux

package liburing

import (
	"runtime"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const IORING_CQ_EVENTFD_DISABLED uint32 = 1 << 0

// CompletionQueue is the consumer side of the ring. tail is advanced by the
// kernel, head by us.
type CompletionQueue struct {
	head        *uint32
	tail        *uint32
	ringMask    *uint32
	ringEntries *uint32
	flags       *uint32
	overflow    *uint32
	cqes        *CompletionQueueEvent
	ringSize    uint
	ringPtr     unsafe.Pointer
}

func (cq *CompletionQueue) cqeAt(index uint32) *CompletionQueueEvent {
	return (*CompletionQueueEvent)(
		unsafe.Add(unsafe.Pointer(cq.cqes),
			uintptr(index&*cq.ringMask)*unsafe.Sizeof(CompletionQueueEvent{})),
	)
}

// CQAdvance returns n consumed slots to the ring. The release store pairs
// with the kernel's acquire of head; advancing past slots still being read
// would hand the kernel slots we have not finished with.
func (ring *Ring) CQAdvance(n uint32) {
	atomic.StoreUint32(ring.cqRing.head, *ring.cqRing.head+n)
}

func (ring *Ring) CQESeen(cqe *CompletionQueueEvent) {
	if cqe != nil {
		ring.CQAdvance(1)
	}
}

func (ring *Ring) CQEntries() uint32 {
	return *ring.cqRing.ringEntries
}

func (ring *Ring) CQReady() uint32 {
	return atomic.LoadUint32(ring.cqRing.tail) - *ring.cqRing.head
}

func (ring *Ring) CQHasOverflow() bool {
	return atomic.LoadUint32(ring.sqRing.flags)&IORING_SQ_CQ_OVERFLOW != 0
}

// peekCQE returns the oldest unconsumed completion without advancing head.
// On kernels without EXT_ARG support, completions of internally injected
// timeout requests are consumed here so callers never observe them.
func peekCQE(ring *Ring, nrAvailable *uint32) (*CompletionQueueEvent, error) {
	var cqe *CompletionQueueEvent
	var err error
	var available uint32

	for {
		tail := atomic.LoadUint32(ring.cqRing.tail)
		head := *ring.cqRing.head
		cqe = nil
		available = tail - head
		if available == 0 {
			break
		}
		cqe = ring.cqRing.cqeAt(head)
		if ring.features&IORING_FEAT_EXT_ARG == 0 && cqe.UserData == UdataTimeout {
			if cqe.Res < 0 {
				err = syscall.Errno(uintptr(-cqe.Res))
			}
			ring.CQAdvance(1)
			if err == nil {
				continue
			}
			cqe = nil
		}
		break
	}
	if nrAvailable != nil {
		*nrAvailable = available
	}
	return cqe, err
}

func (ring *Ring) PeekCQE() (*CompletionQueueEvent, error) {
	cqe, err := peekCQE(ring, nil)
	if err == nil && cqe != nil {
		return cqe, nil
	}
	return ring.WaitCQENr(0)
}

// PeekBatchCQE fills cqes with ready completions without consuming them and
// returns how many were filled. Flushes overflowed completions once if the
// kernel reports any.
func (ring *Ring) PeekBatchCQE(cqes []*CompletionQueueEvent) uint32 {
	var overflowChecked bool
	count := uint32(len(cqes))

AGAIN:
	ready := ring.CQReady()
	if ready != 0 {
		if count > ready {
			count = ready
		}
		head := *ring.cqRing.head
		for i := uint32(0); i < count; i++ {
			cqes[i] = ring.cqRing.cqeAt(head + i)
		}
		return count
	}

	if overflowChecked {
		return 0
	}

	if ring.cqRingNeedsFlush() {
		_, _ = ring.GetEvents()
		overflowChecked = true
		goto AGAIN
	}
	return 0
}

// PeekCQEAt returns the completion offset slots past head without consuming
// anything, or nil when fewer than offset+1 completions are ready. Used by
// batch consumers that advance head once for the whole batch.
func (ring *Ring) PeekCQEAt(offset uint32) *CompletionQueueEvent {
	if offset >= ring.CQReady() {
		return nil
	}
	return ring.cqRing.cqeAt(*ring.cqRing.head + offset)
}

func (ring *Ring) WaitCQE() (*CompletionQueueEvent, error) {
	cqe, err := peekCQE(ring, nil)
	if err == nil && cqe != nil {
		return cqe, nil
	}
	return ring.WaitCQENr(1)
}

// WaitCQEsReady blocks until at least waitNr completions are ready and
// returns without touching any of them. Unlike the WaitCQE family it never
// consumes injected timeout completions at head, so batch consumers that
// defer their head advance can wait through it without losing a slot.
func (ring *Ring) WaitCQEsReady(waitNr uint32) error {
	for ring.CQReady() < waitNr {
		if _, err := ring.Enter(0, waitNr, IORING_ENTER_GETEVENTS, nil); err != nil {
			return err
		}
	}
	return nil
}

func (ring *Ring) WaitCQENr(waitNr uint32) (*CompletionQueueEvent, error) {
	data := getData{
		submit:   0,
		waitNr:   waitNr,
		getFlags: 0,
		sz:       nSig / szDivider,
		arg:      nil,
	}
	cqe, err := ring.getCQE(&data)
	runtime.KeepAlive(data)
	return cqe, err
}

type getEventsArg struct {
	sigMask   uint64
	sigMaskSz uint32
	pad       uint32
	ts        uint64
}

// WaitCQEs blocks until waitNr completions are visible, ts elapses, or the
// kernel reports an error. Kernels with EXT_ARG take the timeout through the
// enter call; older kernels get an injected timeout submission instead.
func (ring *Ring) WaitCQEs(waitNr uint32, ts *syscall.Timespec, sigmask *unix.Sigset_t) (*CompletionQueueEvent, error) {
	var toSubmit uint32
	if ts != nil {
		if ring.features&IORING_FEAT_EXT_ARG != 0 {
			return ring.waitCQEsExtArg(waitNr, ts, sigmask)
		}
		var err error
		toSubmit, err = ring.submitTimeout(waitNr, ts)
		if err != nil {
			return nil, err
		}
	}
	data := getData{
		submit:   toSubmit,
		waitNr:   waitNr,
		getFlags: 0,
		sz:       nSig / szDivider,
		arg:      unsafe.Pointer(sigmask),
	}
	cqe, err := ring.getCQE(&data)
	runtime.KeepAlive(data)
	return cqe, err
}

func (ring *Ring) WaitCQETimeout(ts *syscall.Timespec) (*CompletionQueueEvent, error) {
	return ring.WaitCQEs(1, ts, nil)
}

// SubmitAndWaitTimeout combines a submit with a bounded wait, using the same
// EXT_ARG or injected-timeout strategy as WaitCQEs. The returned count is how
// many submissions the kernel consumed, which on pre-EXT_ARG kernels includes
// the injected timeout request.
func (ring *Ring) SubmitAndWaitTimeout(waitNr uint32, ts *syscall.Timespec, sigmask *unix.Sigset_t) (*CompletionQueueEvent, uint, error) {
	var submit uint32
	if ts != nil {
		if ring.features&IORING_FEAT_EXT_ARG != 0 {
			arg := getEventsArg{
				sigMask:   uint64(uintptr(unsafe.Pointer(sigmask))),
				sigMaskSz: nSig / szDivider,
				ts:        uint64(uintptr(unsafe.Pointer(ts))),
			}
			data := getData{
				submit:   ring.flushSQ(),
				waitNr:   waitNr,
				getFlags: IORING_ENTER_EXT_ARG,
				sz:       int(unsafe.Sizeof(arg)),
				hasTS:    true,
				arg:      unsafe.Pointer(&arg),
			}
			submit = data.submit
			cqe, err := ring.getCQE(&data)
			runtime.KeepAlive(data)
			runtime.KeepAlive(ts)
			return cqe, uint(submit - data.submit), err
		}
		var err error
		submit, err = ring.submitTimeout(waitNr, ts)
		if err != nil {
			return nil, 0, err
		}
	} else {
		submit = ring.flushSQ()
	}

	data := getData{
		submit:   submit,
		waitNr:   waitNr,
		getFlags: 0,
		sz:       nSig / szDivider,
		arg:      unsafe.Pointer(sigmask),
	}
	cqe, err := ring.getCQE(&data)
	runtime.KeepAlive(data)
	return cqe, uint(submit - data.submit), err
}

func (ring *Ring) waitCQEsExtArg(waitNr uint32, ts *syscall.Timespec, sigmask *unix.Sigset_t) (*CompletionQueueEvent, error) {
	arg := getEventsArg{
		sigMask:   uint64(uintptr(unsafe.Pointer(sigmask))),
		sigMaskSz: nSig / szDivider,
		ts:        uint64(uintptr(unsafe.Pointer(ts))),
	}
	data := getData{
		waitNr:   waitNr,
		getFlags: IORING_ENTER_EXT_ARG,
		sz:       int(unsafe.Sizeof(getEventsArg{})),
		hasTS:    true,
		arg:      unsafe.Pointer(&arg),
	}
	cqe, err := ring.getCQE(&data)
	runtime.KeepAlive(data)
	runtime.KeepAlive(ts)
	return cqe, err
}

func (ring *Ring) GetEvents() (uint, error) {
	return ring.Enter(0, 0, IORING_ENTER_GETEVENTS, nil)
}

func (ring *Ring) CQEventFdEnabled() bool {
	if ring.cqRing.flags == nil {
		return true
	}
	return *ring.cqRing.flags&IORING_CQ_EVENTFD_DISABLED == 0
}

func (ring *Ring) CQEventFdToggle(enabled bool) error {
	if enabled == ring.CQEventFdEnabled() {
		return nil
	}
	if ring.cqRing.flags == nil {
		return syscall.EOPNOTSUPP
	}
	flags := *ring.cqRing.flags
	if enabled {
		flags &^= IORING_CQ_EVENTFD_DISABLED
	} else {
		flags |= IORING_CQ_EVENTFD_DISABLED
	}
	atomic.StoreUint32(ring.cqRing.flags, flags)
	return nil
}

func (ring *Ring) cqRingNeedsFlush() bool {
	return atomic.LoadUint32(ring.sqRing.flags)&(IORING_SQ_CQ_OVERFLOW|IORING_SQ_TASKRUN) != 0
}

func (ring *Ring) cqRingNeedsEnter() bool {
	return ring.flags&IORING_SETUP_IOPOLL != 0 || ring.cqRingNeedsFlush()
}

type getData struct {
	submit   uint32
	waitNr   uint32
	getFlags uint32
	sz       int
	hasTS    bool
	arg      unsafe.Pointer
}

// getCQE is the wait loop shared by every blocking accessor: peek first,
// enter the kernel only when a wait or submit makes it necessary, and stop
// looping once a second pass with a timeout argument comes back empty.
func (ring *Ring) getCQE(data *getData) (*CompletionQueueEvent, error) {
	var cqe *CompletionQueueEvent
	var looped bool
	var err error

	for {
		var needEnter bool
		var flags uint32
		var nrAvailable uint32
		var ret uint
		var localErr error

		cqe, localErr = peekCQE(ring, &nrAvailable)
		if localErr != nil {
			err = localErr
			break
		}
		if cqe == nil && data.waitNr == 0 && data.submit == 0 {
			if looped || !ring.cqRingNeedsEnter() {
				err = unix.EAGAIN
				break
			}
			needEnter = true
		}
		if data.waitNr > nrAvailable || needEnter {
			flags = IORING_ENTER_GETEVENTS | data.getFlags
			needEnter = true
		}
		if ring.sqRingNeedsEnter(data.submit, &flags) {
			needEnter = true
		}
		if !needEnter {
			break
		}
		if looped && data.hasTS {
			arg := (*getEventsArg)(data.arg)
			if cqe == nil && arg.ts != 0 {
				err = unix.ETIME
			}
			break
		}
		ret, localErr = ring.Enter2(data.submit, data.waitNr, flags, data.arg, data.sz)
		if localErr != nil {
			err = localErr
			break
		}
		data.submit -= uint32(ret)
		if cqe != nil {
			break
		}
		if !looped {
			looped = true
			err = localErr
		}
	}
	return cqe, err
}
