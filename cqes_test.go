//go:build linux

package iou_test

import (
	"testing"

	"github.com/ringbahn/iou"
	"github.com/ringbahn/iou/pkg/liburing"
)

func submitNops(t *testing.T, ring *iou.Ring, n uint32) {
	t.Helper()
	for i := uint32(0); i < n; i++ {
		sqe := ring.PrepareSQE()
		if sqe == nil {
			t.Fatal("ring full after", i, "slots")
		}
		sqe.PrepareNop()
		sqe.SetUserData(uint64(i))
	}
	if _, err := ring.SubmitAndWait(n); err != nil {
		t.Fatal(err)
	}
}

func TestCQEs(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	submitNops(t, ring, 4)

	cq := ring.CQ()
	it := cq.CQEs()
	seen := uint64(0)
	for {
		cqe := it.Next()
		if cqe == nil {
			break
		}
		if cqe.UserData() != seen {
			t.Error("order:", cqe.UserData(), "want", seen)
		}
		if _, resErr := cqe.Result(); resErr != nil {
			t.Error(resErr)
		}
		seen++
	}
	if seen != 4 {
		t.Error("iterated", seen)
		return
	}
	if err = it.Close(); err != nil {
		t.Error(err)
		return
	}
	if err = it.Close(); err != nil {
		t.Error("second close:", err)
		return
	}
	if ready := cq.Ready(); ready != 0 {
		t.Error("ready after close:", ready)
	}
}

func TestCQEs_EarlyClose(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	submitNops(t, ring, 4)

	cq := ring.CQ()
	it := cq.CQEs()
	first := it.Next()
	second := it.Next()
	if first == nil || second == nil {
		t.Error("fewer than two completions ready")
		return
	}
	// Seen on iterated handles is a no op, the iterator owns them.
	first.Seen()
	if err = it.Close(); err != nil {
		t.Error(err)
		return
	}

	if ready := cq.Ready(); ready != 2 {
		t.Error("ready after early close:", ready)
		return
	}

	rest := cq.CQEs()
	for want := uint64(2); want < 4; want++ {
		cqe := rest.Next()
		if cqe == nil {
			t.Error("missing completion", want)
			return
		}
		if cqe.UserData() != want {
			t.Error("order:", cqe.UserData(), "want", want)
		}
	}
	if err = rest.Close(); err != nil {
		t.Error(err)
		return
	}
	if ready := cq.Ready(); ready != 0 {
		t.Error("ready after draining:", ready)
	}
}

func TestCQEsBlocking(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	submitNops(t, ring, 2)

	it := ring.CQ().CQEsBlocking(1)
	for want := uint64(0); want < 2; want++ {
		cqe, nextErr := it.Next()
		if nextErr != nil {
			t.Error(nextErr)
			return
		}
		if cqe.UserData() != want {
			t.Error("order:", cqe.UserData(), "want", want)
		}
	}

	// Post two more while the iterator is live; Next blocks until they
	// land.
	submitNops(t, ring, 2)
	cqe, nextErr := it.Next()
	if nextErr != nil {
		t.Error(nextErr)
		return
	}
	if cqe.UserData() != 0 {
		t.Error("user data:", cqe.UserData())
	}
	if err = it.Close(); err != nil {
		t.Error(err)
		return
	}
	if ready := ring.CQ().Ready(); ready != 1 {
		t.Error("ready after close:", ready)
	}
}

func TestCQEsBlocking_ReservedTag(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	submitNops(t, ring, 1)

	cq := ring.CQ()
	it := cq.CQEsBlocking(1)

	first, firstErr := it.Next()
	if firstErr != nil {
		t.Error(firstErr)
		return
	}
	if first.UserData() != 0 {
		t.Error("user data:", first.UserData())
		return
	}

	// A completion carrying the reserved timeout tag lands inside the
	// open window, followed by a real one.
	stale := ring.PrepareSQE()
	stale.PrepareNop()
	stale.SetUserData(liburing.UdataTimeout)
	follow := ring.PrepareSQE()
	follow.PrepareNop()
	follow.SetUserData(2)
	if _, err = ring.SubmitAndWait(2); err != nil {
		t.Error(err)
		return
	}

	second, secondErr := it.Next()
	if secondErr != nil {
		t.Error(secondErr)
		return
	}
	if second.UserData() != 2 {
		t.Error("reserved tag surfaced, user data:", second.UserData())
		return
	}
	if err = it.Close(); err != nil {
		t.Error(err)
		return
	}

	// The skipped slot is returned exactly once with the batch.
	if ready := cq.Ready(); ready != 0 {
		t.Error("ready after close:", ready)
		return
	}
	submitNops(t, ring, 1)
	cqe, waitErr := ring.WaitForCQE()
	if waitErr != nil {
		t.Error(waitErr)
		return
	}
	if cqe.UserData() != 0 {
		t.Error("ring out of step, user data:", cqe.UserData())
	}
	cqe.Seen()
}

func TestCompletionQueue_PeekForCQE(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	if cqe := ring.PeekForCQE(); cqe != nil {
		t.Error("completion on an idle ring")
		return
	}

	submitNops(t, ring, 1)

	cqe := ring.PeekForCQE()
	if cqe == nil {
		t.Error("no completion after submit")
		return
	}
	cqe.Seen()
}
