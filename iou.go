//go:build linux

// Package iou provides access to the Linux io_uring interface through
// three kinds of handle: the Ring owns the file descriptor and the
// mapped submission and completion queues, the SubmissionQueue and
// CompletionQueue views operate on one side of the ring each, and the
// Registrar pre-registers resources with the kernel.
//
// The three views of a Ring can be split off and driven from separate
// goroutines, but no single view is safe for concurrent use.
package iou

import (
	"sync/atomic"
	"time"

	"github.com/ringbahn/iou/pkg/liburing"
)

// Ring is an owned io_uring instance. It holds the ring file
// descriptor and the shared memory mappings until Close is called.
type Ring struct {
	ring   *liburing.Ring
	sq     SubmissionQueue
	cq     CompletionQueue
	reg    Registrar
	closed atomic.Bool
}

// New sets up an io_uring instance with room for entries submissions.
// Entries must lie in [1, 4096] and is rounded up to a power of two.
func New(entries uint32, options ...Option) (*Ring, error) {
	opt := defaultOptions()
	for _, o := range options {
		o(opt)
	}
	ring, err := liburing.New(opt.lift(entries)...)
	if err != nil {
		return nil, err
	}
	r := &Ring{ring: ring}
	r.sq = SubmissionQueue{ring: ring}
	r.cq = CompletionQueue{ring: ring}
	r.reg = Registrar{ring: ring}
	return r, nil
}

// SQ returns the submission side of the ring.
func (r *Ring) SQ() *SubmissionQueue {
	return &r.sq
}

// CQ returns the completion side of the ring.
func (r *Ring) CQ() *CompletionQueue {
	return &r.cq
}

// Registrar returns the resource registration handle for the ring.
func (r *Ring) Registrar() *Registrar {
	return &r.reg
}

// Queues returns the submission and completion views together, for
// handing each side to its own goroutine.
func (r *Ring) Queues() (*SubmissionQueue, *CompletionQueue) {
	return &r.sq, &r.cq
}

// Fd returns the ring file descriptor.
func (r *Ring) Fd() int {
	return r.ring.Fd()
}

// Flags returns the setup flags the ring was created with.
func (r *Ring) Flags() uint32 {
	return r.ring.Flags()
}

// Features returns the feature bits reported by the kernel at setup.
func (r *Ring) Features() uint32 {
	return r.ring.Features()
}

// Probe queries the kernel for the set of supported operations.
func (r *Ring) Probe() (*liburing.Probe, error) {
	return r.ring.Probe()
}

// Close tears down the memory mappings and closes the ring file
// descriptor. Close is idempotent, later calls return nil.
func (r *Ring) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.ring.Close()
}

// PrepareSQE claims the next free submission slot. See
// SubmissionQueue.PrepareSQE.
func (r *Ring) PrepareSQE() *SQE {
	return r.sq.PrepareSQE()
}

// PrepareSQEs claims count contiguous submission slots. See
// SubmissionQueue.PrepareSQEs.
func (r *Ring) PrepareSQEs(count uint32) *SQEs {
	return r.sq.PrepareSQEs(count)
}

// Submit publishes all prepared submissions to the kernel.
func (r *Ring) Submit() (uint, error) {
	return r.sq.Submit()
}

// SubmitAndWait publishes all prepared submissions and blocks until
// waitFor completions are available.
func (r *Ring) SubmitAndWait(waitFor uint32) (uint, error) {
	return r.sq.SubmitAndWait(waitFor)
}

// SubmitAndWaitWithTimeout is SubmitAndWait bounded by duration.
func (r *Ring) SubmitAndWaitWithTimeout(waitFor uint32, duration time.Duration) (uint, error) {
	return r.sq.SubmitAndWaitWithTimeout(waitFor, duration)
}

// SQReady reports submissions claimed or published but not yet
// consumed by the kernel.
func (r *Ring) SQReady() uint32 {
	return r.sq.Ready()
}

// SQSpaceLeft reports how many submission slots can still be claimed.
func (r *Ring) SQSpaceLeft() uint32 {
	return r.sq.SpaceLeft()
}

// CQReady reports completions posted but not yet consumed.
func (r *Ring) CQReady() uint32 {
	return r.cq.Ready()
}

// EventfdEnabled reports whether eventfd completion notifications are
// enabled.
func (r *Ring) EventfdEnabled() bool {
	return r.cq.EventfdEnabled()
}

// EventfdToggle enables or disables eventfd completion notifications.
func (r *Ring) EventfdToggle(enabled bool) error {
	return r.cq.EventfdToggle(enabled)
}

// PeekForCQE returns the next completion without blocking, or nil.
func (r *Ring) PeekForCQE() *CQE {
	return r.cq.PeekForCQE()
}

// WaitForCQE blocks until at least one completion is available.
func (r *Ring) WaitForCQE() (*CQE, error) {
	return r.cq.WaitForCQE()
}

// WaitForCQEs blocks until at least count completions are available
// and returns the first of them.
func (r *Ring) WaitForCQEs(count uint32) (*CQE, error) {
	return r.cq.WaitForCQEs(count)
}

// WaitForCQEWithTimeout blocks until a completion is available or the
// duration elapses. It uses both sides of the ring, see
// CompletionQueue.WaitForCQEWithTimeout.
func (r *Ring) WaitForCQEWithTimeout(duration time.Duration) (*CQE, error) {
	return r.cq.WaitForCQEWithTimeout(&r.sq, duration)
}
