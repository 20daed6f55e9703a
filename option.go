//go:build linux

package iou

import (
	"github.com/ringbahn/iou/pkg/liburing"
)

// Setup flags, passed through WithFlags at ring creation.
const (
	SetupIOPoll   = liburing.IORING_SETUP_IOPOLL
	SetupSQPoll   = liburing.IORING_SETUP_SQPOLL
	SetupSQAff    = liburing.IORING_SETUP_SQ_AFF
	SetupCQSize   = liburing.IORING_SETUP_CQSIZE
	SetupClamp    = liburing.IORING_SETUP_CLAMP
	SetupAttachWQ = liburing.IORING_SETUP_ATTACH_WQ
)

// Feature bits reported by the kernel after setup.
const (
	FeatSingleMmap     = liburing.IORING_FEAT_SINGLE_MMAP
	FeatNoDrop         = liburing.IORING_FEAT_NODROP
	FeatSubmitStable   = liburing.IORING_FEAT_SUBMIT_STABLE
	FeatRWCurPos       = liburing.IORING_FEAT_RW_CUR_POS
	FeatCurPersonality = liburing.IORING_FEAT_CUR_PERSONALITY
	FeatFastPoll       = liburing.IORING_FEAT_FAST_POLL
	FeatPoll32Bits     = liburing.IORING_FEAT_POLL_32BITS
	FeatSQPollNonfixed = liburing.IORING_FEAT_SQPOLL_NONFIXED
	FeatExtArg         = liburing.IORING_FEAT_EXT_ARG
	FeatNativeWorkers  = liburing.IORING_FEAT_NATIVE_WORKERS
	FeatRsrcTags       = liburing.IORING_FEAT_RSRC_TAGS
)

type options struct {
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	wqFd         uint32
	cqEntries    uint32
}

func defaultOptions() *options {
	return &options{}
}

func (opt *options) lift(entries uint32) []liburing.Option {
	lifted := []liburing.Option{
		liburing.WithEntries(entries),
	}
	if opt.flags != 0 {
		lifted = append(lifted, liburing.WithFlags(opt.flags))
	}
	if opt.sqThreadCPU != 0 || opt.flags&SetupSQAff != 0 {
		lifted = append(lifted, liburing.WithSQThreadCPU(opt.sqThreadCPU))
	}
	if opt.sqThreadIdle != 0 {
		lifted = append(lifted, liburing.WithSQThreadIdle(opt.sqThreadIdle))
	}
	if opt.flags&SetupAttachWQ != 0 {
		lifted = append(lifted, liburing.WithAttachWQFd(opt.wqFd))
	}
	if opt.flags&SetupCQSize != 0 {
		lifted = append(lifted, liburing.WithCQEntries(opt.cqEntries))
	}
	return lifted
}

// Option configures ring setup.
type Option func(*options)

// WithFlags sets io_uring setup flags.
func WithFlags(flags uint32) Option {
	return func(opt *options) {
		opt.flags |= flags
	}
}

// WithSQPoll enables kernel side submission polling with the given
// idle timeout in milliseconds.
func WithSQPoll(idle uint32) Option {
	return func(opt *options) {
		opt.flags |= SetupSQPoll
		opt.sqThreadIdle = idle
	}
}

// WithSQThreadCPU pins the submission poll thread to cpu. Implies
// SetupSQAff, which requires SetupSQPoll to be set as well.
func WithSQThreadCPU(cpu uint32) Option {
	return func(opt *options) {
		opt.flags |= SetupSQAff
		opt.sqThreadCPU = cpu
	}
}

// WithCQEntries sizes the completion ring independently of the
// submission ring.
func WithCQEntries(entries uint32) Option {
	return func(opt *options) {
		opt.flags |= SetupCQSize
		opt.cqEntries = entries
	}
}

// WithAttachWQ shares the async backend of an existing ring.
func WithAttachWQ(ringFd int) Option {
	return func(opt *options) {
		opt.flags |= SetupAttachWQ
		opt.wqFd = uint32(ringFd)
	}
}
