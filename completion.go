//go:build linux

package iou

import (
	"runtime"
	"syscall"
	"time"

	"github.com/ringbahn/iou/pkg/liburing"
)

// CompletionQueue is the consumer side of a Ring. Not safe for
// concurrent use; drive it from a single goroutine.
type CompletionQueue struct {
	ring *liburing.Ring
}

// PeekForCQE returns a handle to the oldest unconsumed completion
// without blocking, or nil when none is ready.
func (cq *CompletionQueue) PeekForCQE() *CQE {
	raw, err := cq.ring.PeekCQE()
	if err != nil || raw == nil {
		return nil
	}
	return &CQE{ring: cq.ring, raw: raw}
}

// WaitForCQE blocks until at least one completion is available and
// returns a handle to the oldest one.
func (cq *CompletionQueue) WaitForCQE() (*CQE, error) {
	raw, err := cq.ring.WaitCQE()
	if err != nil {
		return nil, err
	}
	return &CQE{ring: cq.ring, raw: raw}, nil
}

// WaitForCQEs blocks until at least count completions are available
// and returns a handle to the oldest one. The rest stay on the ring
// for later consumption.
func (cq *CompletionQueue) WaitForCQEs(count uint32) (*CQE, error) {
	raw, err := cq.ring.WaitCQENr(count)
	if err != nil {
		return nil, err
	}
	return &CQE{ring: cq.ring, raw: raw}, nil
}

// WaitForCQEWithTimeout blocks until a completion is available or
// duration elapses, in which case the error is ETIME. On kernels
// without extended enter arguments the timeout is implemented by
// submitting through sq, which is why the submission side must be
// handed over for the duration of the call. sq must belong to the
// same ring.
func (cq *CompletionQueue) WaitForCQEWithTimeout(sq *SubmissionQueue, duration time.Duration) (*CQE, error) {
	return cq.WaitForCQEsWithTimeout(sq, 1, duration)
}

// WaitForCQEsWithTimeout is WaitForCQEWithTimeout for count
// completions.
func (cq *CompletionQueue) WaitForCQEsWithTimeout(sq *SubmissionQueue, count uint32, duration time.Duration) (*CQE, error) {
	if sq.ring != cq.ring {
		panic("iou: submission and completion queues belong to different rings")
	}
	ts := new(syscall.Timespec)
	*ts = syscall.NsecToTimespec(duration.Nanoseconds())
	raw, err := cq.ring.WaitCQEs(count, ts, nil)
	runtime.KeepAlive(ts)
	if err != nil {
		return nil, err
	}
	return &CQE{ring: cq.ring, raw: raw}, nil
}

// Ready reports completions posted by the kernel and not yet
// consumed.
func (cq *CompletionQueue) Ready() uint32 {
	return cq.ring.CQReady()
}

// Entries returns the completion ring capacity.
func (cq *CompletionQueue) Entries() uint32 {
	return cq.ring.CQEntries()
}

// CQEs returns a non blocking iterator over the completions that are
// ready right now. Close must be called, it is what returns the
// consumed slots to the ring.
func (cq *CompletionQueue) CQEs() *CQEs {
	cq.flushOverflow()
	return &CQEs{ring: cq.ring}
}

// CQEsBlocking is CQEs except that Next blocks until waitFor more
// completions arrive whenever the ready set runs dry.
func (cq *CompletionQueue) CQEsBlocking(waitFor uint32) *CQEsBlocking {
	if waitFor == 0 {
		waitFor = 1
	}
	return &CQEsBlocking{it: CQEs{ring: cq.ring}, waitFor: waitFor}
}

// EventfdEnabled reports whether completion notifications to a
// registered eventfd are currently enabled.
func (cq *CompletionQueue) EventfdEnabled() bool {
	return cq.ring.CQEventFdEnabled()
}

// EventfdToggle enables or disables completion notifications to a
// registered eventfd without unregistering it.
func (cq *CompletionQueue) EventfdToggle(enabled bool) error {
	return cq.ring.CQEventFdToggle(enabled)
}

func (cq *CompletionQueue) flushOverflow() bool {
	if !cq.ring.CQHasOverflow() {
		return false
	}
	_, _ = cq.ring.GetEvents()
	return true
}

// CQE is a handle to one unconsumed completion. The slot it points at
// stays owned by the caller until Seen returns it to the ring; only
// then may the kernel reuse it. Handles vended by a batch iterator
// are returned by the iterator's Close instead and their Seen is a no
// op.
type CQE struct {
	ring *liburing.Ring
	raw  *liburing.CompletionQueueEvent
	seen bool
}

// UserData returns the tag set on the submission this completion
// answers.
func (cqe *CQE) UserData() uint64 {
	return cqe.raw.UserData
}

// Result returns the operation result. Negative kernel results are
// mapped to the matching errno; otherwise the count is returned with
// a nil error.
func (cqe *CQE) Result() (int, error) {
	res := cqe.raw.Res
	if res < 0 {
		return 0, syscall.Errno(uintptr(-res))
	}
	return int(res), nil
}

// RawResult returns the signed result exactly as the kernel posted
// it.
func (cqe *CQE) RawResult() int32 {
	return cqe.raw.Res
}

// Flags returns the completion flags.
func (cqe *CQE) Flags() uint32 {
	return cqe.raw.Flags
}

// IsTimeout reports whether this completion answers an internally
// injected timeout rather than a caller submission.
func (cqe *CQE) IsTimeout() bool {
	return cqe.raw.IsTimeout()
}

// Seen returns the completion slot to the ring. The slot contents
// must not be read afterwards. Calling Seen more than once advances
// the ring exactly once.
func (cqe *CQE) Seen() {
	if cqe.seen {
		return
	}
	cqe.seen = true
	cqe.ring.CQESeen(cqe.raw)
}

// CQEs iterates the ready completions without consuming them one by
// one; Close advances the ring past everything Next vended, exactly
// once regardless of how early iteration stopped.
type CQEs struct {
	ring   *liburing.Ring
	vended uint32
	closed bool
}

// Next returns a handle to the next ready completion, or nil when
// none is left. The handle stays readable until Close.
func (it *CQEs) Next() *CQE {
	for {
		raw := it.ring.PeekCQEAt(it.vended)
		if raw == nil {
			return nil
		}
		it.vended++
		// Completions carrying the reserved timeout tag belong to the
		// library; they are counted with the batch but never surfaced.
		if raw.UserData == liburing.UdataTimeout {
			continue
		}
		return &CQE{ring: it.ring, raw: raw, seen: true}
	}
}

// Close returns every vended slot to the ring. Idempotent.
func (it *CQEs) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.vended > 0 {
		it.ring.CQAdvance(it.vended)
	}
	return nil
}

// CQEsBlocking is the blocking form of CQEs.
type CQEsBlocking struct {
	it      CQEs
	waitFor uint32
}

// Next returns a handle to the next completion, blocking until
// waitFor more arrive when none is ready. The handle stays readable
// until Close.
//
// The wait goes through WaitCQEsReady: the iterator owns the head
// advance for everything in its window, so the blocking path must
// never consume a slot on its own, reserved timeout slots included.
func (b *CQEsBlocking) Next() (*CQE, error) {
	for {
		if cqe := b.it.Next(); cqe != nil {
			return cqe, nil
		}
		if err := b.it.ring.WaitCQEsReady(b.it.vended + b.waitFor); err != nil {
			return nil, err
		}
	}
}

// Close returns every vended slot to the ring. Idempotent.
func (b *CQEsBlocking) Close() error {
	return b.it.Close()
}
