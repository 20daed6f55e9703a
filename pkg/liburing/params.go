//go:build linux

package liburing

import (
	"syscall"
)

const (
	IORING_SETUP_IOPOLL uint32 = 1 << iota
	IORING_SETUP_SQPOLL
	IORING_SETUP_SQ_AFF
	IORING_SETUP_CQSIZE
	IORING_SETUP_CLAMP
	IORING_SETUP_ATTACH_WQ
	IORING_SETUP_R_DISABLED
	IORING_SETUP_SUBMIT_ALL
	IORING_SETUP_COOP_TASKRUN
	IORING_SETUP_TASKRUN_FLAG
)

const (
	IORING_FEAT_SINGLE_MMAP uint32 = 1 << iota
	IORING_FEAT_NODROP
	IORING_FEAT_SUBMIT_STABLE
	IORING_FEAT_RW_CUR_POS
	IORING_FEAT_CUR_PERSONALITY
	IORING_FEAT_FAST_POLL
	IORING_FEAT_POLL_32BITS
	IORING_FEAT_SQPOLL_NONFIXED
	IORING_FEAT_EXT_ARG
	IORING_FEAT_NATIVE_WORKERS
	IORING_FEAT_RSRC_TAGS
)

type SQRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

type CQRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint32
	resv1       uint32
	userAddr    uint64
}

// Params mirrors struct io_uring_params passed to the setup syscall.
type Params struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        SQRingOffsets
	cqOff        CQRingOffsets
}

// Validate rejects flag combinations the kernel would accept silently or
// punish obscurely. Binding the poll thread to a CPU without a poll thread
// is a caller error, not something to paper over.
func (params *Params) Validate() error {
	if params.flags&IORING_SETUP_SQ_AFF != 0 && params.flags&IORING_SETUP_SQPOLL == 0 {
		return syscall.EINVAL
	}
	if params.flags&IORING_SETUP_SQPOLL != 0 {
		if !VersionEnable(5, 13, 0) {
			return syscall.EOPNOTSUPP
		}
		if params.sqThreadIdle == 0 {
			params.sqThreadIdle = 15000
		}
	}
	if params.flags&IORING_SETUP_ATTACH_WQ != 0 && params.wqFd == 0 {
		return syscall.EINVAL
	}
	if params.flags&IORING_SETUP_CQSIZE != 0 && params.cqEntries == 0 {
		return syscall.EINVAL
	}
	return nil
}
