//go:build linux

package liburing

import "math"

const (
	IORING_CQE_F_BUFFER uint32 = 1 << iota
	IORING_CQE_F_MORE
)

// UdataTimeout is the user data value reserved for internally injected
// timeout submissions. It can never be used as a caller tag: any completion
// carrying it belongs to this library, not to user IO.
const UdataTimeout uint64 = math.MaxUint64

// CompletionQueueEvent mirrors struct io_uring_cqe. Res is non-negative on
// success (byte count or op specific value) and -errno on failure.
type CompletionQueueEvent struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

func (c *CompletionQueueEvent) IsTimeout() bool {
	return c.UserData == UdataTimeout
}
