//go:build linux

// Package liburing holds the raw io_uring protocol: ring setup and teardown,
// the memory mapped submission and completion rings, the enter and register
// syscalls, and the binary slot layouts shared with the kernel.
//
// Head and tail counters are monotonically increasing uint32 values that wrap
// modulo 2^32; physical slot indexes are always derived as counter & mask.
// Every index the user side publishes is written with a release store and
// every index the kernel side publishes is read with an acquire load, the
// kernel observes ring memory from another core with no implicit barrier.
//
// Callers wanting a safe surface should use the root iou package instead.
package liburing

import (
	"syscall"
	"unsafe"
)

func New(options ...Option) (ring *Ring, err error) {
	opts := Options{
		Entries: DefaultEntries,
	}
	for _, o := range options {
		if err = o(&opts); err != nil {
			return
		}
	}

	params := &Params{}
	params.cqEntries = opts.CQEntries
	params.flags = opts.Flags
	params.features = opts.Features
	params.sqThreadCPU = opts.SQThreadCPU
	params.sqThreadIdle = opts.SQThreadIdle
	params.wqFd = opts.WQFd

	if err = params.Validate(); err != nil {
		return
	}

	ring = &Ring{
		sqRing: &SubmissionQueue{},
		cqRing: &CompletionQueue{},
		ringFd: -1,
	}
	if err = ring.setup(opts.Entries, params); err != nil {
		ring = nil
	}
	return
}

type Ring struct {
	sqRing   *SubmissionQueue
	cqRing   *CompletionQueue
	flags    uint32
	features uint32
	ringFd   int
}

func (ring *Ring) Flags() uint32 {
	return ring.flags
}

func (ring *Ring) Features() uint32 {
	return ring.features
}

func (ring *Ring) Fd() int {
	return ring.ringFd
}

// Close unmaps the shared ring memory and closes the ring fd. The kernel
// releases its side of the ring state when the fd is closed, so skipping
// Close leaks kernel resources. Calling Close more than once is harmless.
func (ring *Ring) Close() (err error) {
	sq := ring.sqRing
	cq := ring.cqRing

	if sq.sqes != nil {
		_ = munmap(uintptr(unsafe.Pointer(sq.sqes)), unsafe.Sizeof(SubmissionQueueEntry{})*uintptr(*sq.ringEntries))
		sq.sqes = nil
		unmapRings(sq, cq)
	}
	if ring.ringFd != -1 {
		err = syscall.Close(ring.ringFd)
		ring.ringFd = -1
	}
	return
}

func (ring *Ring) Probe() (*Probe, error) {
	probe := &Probe{}
	if _, err := ring.RegisterProbe(probe, probeOpsSize); err != nil {
		return nil, err
	}
	return probe, nil
}

func (ring *Ring) DontFork() error {
	if ring.sqRing.ringPtr == nil || ring.sqRing.sqes == nil || ring.cqRing.ringPtr == nil {
		return syscall.EINVAL
	}

	length := unsafe.Sizeof(SubmissionQueueEntry{}) * uintptr(*ring.sqRing.ringEntries)
	if err := madvise(uintptr(unsafe.Pointer(ring.sqRing.sqes)), length, syscall.MADV_DONTFORK); err != nil {
		return err
	}

	if err := madvise(uintptr(ring.sqRing.ringPtr), uintptr(ring.sqRing.ringSize), syscall.MADV_DONTFORK); err != nil {
		return err
	}

	if ring.cqRing.ringPtr != ring.sqRing.ringPtr {
		if err := madvise(uintptr(ring.cqRing.ringPtr), uintptr(ring.cqRing.ringSize), syscall.MADV_DONTFORK); err != nil {
			return err
		}
	}
	return nil
}
