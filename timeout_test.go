//go:build linux

package iou_test

import (
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/ringbahn/iou"
	"github.com/ringbahn/iou/pkg/liburing"
)

func TestWaitForCQEWithTimeout(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	started := time.Now()
	cqe, waitErr := ring.WaitForCQEWithTimeout(10 * time.Millisecond)
	if cqe != nil {
		t.Error("completion on an idle ring:", cqe.UserData())
		return
	}
	if !errors.Is(waitErr, syscall.ETIME) {
		t.Error("want ETIME, got:", waitErr)
		return
	}
	if elapsed := time.Since(started); elapsed < 10*time.Millisecond {
		t.Error("returned before the deadline:", elapsed)
	}
}

func TestWaitForCQEWithTimeout_Completion(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	sqe := ring.PrepareSQE()
	if sqe == nil {
		t.Error("no sqe")
		return
	}
	sqe.PrepareNop()
	sqe.SetUserData(42)
	if _, err = ring.Submit(); err != nil {
		t.Error(err)
		return
	}

	cqe, waitErr := ring.WaitForCQEWithTimeout(time.Second)
	if waitErr != nil {
		t.Error(waitErr)
		return
	}
	defer cqe.Seen()
	if cqe.UserData() != 42 {
		t.Error("user data:", cqe.UserData())
		return
	}
	if cqe.IsTimeout() {
		t.Error("caller completion tagged as timeout")
	}
}

func TestSubmitAndWaitWithTimeout(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	sqe := ring.PrepareSQE()
	if sqe == nil {
		t.Error("no sqe")
		return
	}
	sqe.PrepareNop()
	sqe.SetUserData(1)

	submitted, subErr := ring.SubmitAndWaitWithTimeout(1, time.Second)
	if subErr != nil {
		t.Error(subErr)
		return
	}
	if submitted != 1 {
		t.Error("submitted:", submitted)
		return
	}
	cqe, waitErr := ring.WaitForCQE()
	if waitErr != nil {
		t.Error(waitErr)
		return
	}
	if cqe.UserData() != 1 {
		t.Error("user data:", cqe.UserData())
		return
	}
	cqe.Seen()

	// The count reflects what the kernel consumed, not what was
	// pending when the call started.
	batch := ring.PrepareSQEs(3)
	if batch == nil {
		t.Error("no batch")
		return
	}
	for i := uint64(0); ; i++ {
		sqe := batch.Next()
		if sqe == nil {
			break
		}
		sqe.PrepareNop()
		sqe.SetUserData(i)
	}
	submitted, subErr = ring.SubmitAndWaitWithTimeout(3, time.Second)
	if subErr != nil {
		t.Error(subErr)
		return
	}
	if submitted != 3 {
		t.Error("submitted:", submitted)
		return
	}
	for i := uint64(0); i < 3; i++ {
		batchCQE, batchErr := ring.WaitForCQE()
		if batchErr != nil {
			t.Error(batchErr)
			return
		}
		batchCQE.Seen()
	}

	// Waiting for a completion nothing will post runs out the clock.
	submitted, subErr = ring.SubmitAndWaitWithTimeout(1, 10*time.Millisecond)
	if !errors.Is(subErr, syscall.ETIME) {
		t.Error("want ETIME, got:", subErr)
		return
	}
	if submitted != 0 {
		t.Error("nothing was prepared, submitted:", submitted)
	}
}

func TestPrepareTimeout(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	sqe := ring.PrepareSQE()
	if sqe == nil {
		t.Error("no sqe")
		return
	}
	ts := sqe.PrepareTimeout(10*time.Millisecond, 0)
	sqe.SetUserData(5)

	if _, err = ring.Submit(); err != nil {
		t.Error(err)
		return
	}
	cqe, waitErr := ring.WaitForCQE()
	runtime.KeepAlive(ts)
	if waitErr != nil {
		t.Error(waitErr)
		return
	}
	defer cqe.Seen()

	if cqe.UserData() != 5 {
		t.Error("user data:", cqe.UserData())
		return
	}
	// An expired caller timeout posts -ETIME as its result.
	if _, resErr := cqe.Result(); !errors.Is(resErr, syscall.ETIME) {
		t.Error("want ETIME result, got:", resErr)
	}
}

func TestTimeoutSentinel(t *testing.T) {
	if liburing.UdataTimeout != ^uint64(0) {
		t.Error("sentinel moved:", liburing.UdataTimeout)
	}
	cqe := &liburing.CompletionQueueEvent{UserData: liburing.UdataTimeout}
	if !cqe.IsTimeout() {
		t.Error("sentinel not recognised")
	}
	cqe.UserData--
	if cqe.IsTimeout() {
		t.Error("adjacent user data recognised as timeout")
	}
}
