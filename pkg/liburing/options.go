//go:build linux

package liburing

import "errors"

type Options struct {
	Entries      uint32
	CQEntries    uint32
	Flags        uint32
	Features     uint32
	SQThreadCPU  uint32
	SQThreadIdle uint32
	WQFd         uint32
}

type Option func(*Options) error

const (
	// MaxEntries is the largest submission ring the kernel accepts through
	// this layer. Requested sizes are rounded up to the next power of two.
	MaxEntries     = 4096
	DefaultEntries = 64
)

func WithEntries(entries uint32) Option {
	return func(o *Options) error {
		if entries < 1 || entries > MaxEntries {
			return errors.New("entries must be in [1, 4096]")
		}
		o.Entries = entries
		return nil
	}
}

// WithFlags
// see https://manpages.debian.org/unstable/liburing-dev/io_uring_setup.2.en.html
func WithFlags(flags uint32) Option {
	return func(o *Options) error {
		o.Flags |= flags
		return nil
	}
}

func WithCQEntries(entries uint32) Option {
	return func(o *Options) error {
		if entries == 0 {
			return errors.New("cq entries must be positive")
		}
		o.CQEntries = entries
		o.Flags |= IORING_SETUP_CQSIZE
		return nil
	}
}

func WithFeatures(features uint32) Option {
	return func(o *Options) error {
		o.Features |= features
		return nil
	}
}

func WithSQThreadCPU(cpuId uint32) Option {
	return func(o *Options) error {
		o.SQThreadCPU = cpuId
		return nil
	}
}

func WithSQThreadIdle(n uint32) Option {
	return func(o *Options) error {
		o.SQThreadIdle = n
		return nil
	}
}

func WithAttachWQFd(fd uint32) Option {
	return func(o *Options) error {
		if fd == 0 {
			return errors.New("invalid wqfd")
		}
		o.WQFd = fd
		o.Flags |= IORING_SETUP_ATTACH_WQ
		return nil
	}
}
