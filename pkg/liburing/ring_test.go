//go:build linux

package liburing_test

import (
	"testing"

	"github.com/ringbahn/iou/pkg/liburing"
)

func TestNew(t *testing.T) {
	ring, ringErr := liburing.New(liburing.WithEntries(4))
	if ringErr != nil {
		t.Error(ringErr)
		return
	}
	defer ring.Close()

	t.Log("sq:", ring.SQEntries())
	t.Log("cq:", ring.CQEntries())

	sqe := ring.GetSQE()
	if sqe == nil {
		t.Error("SQE is nil")
		return
	}
	sqe.PrepareNop()
	sqe.SetData64(1)

	n, subErr := ring.Submit()
	if subErr != nil {
		t.Error(subErr)
		return
	}
	t.Log("sub:", n)

	cqe, waitErr := ring.WaitCQE()
	if waitErr != nil {
		t.Error(waitErr)
		return
	}
	if cqe.UserData != 1 {
		t.Error("UserData not equal")
		return
	}
	ring.CQESeen(cqe)
}

func TestRing_GetSQEs(t *testing.T) {
	ring, ringErr := liburing.New(liburing.WithEntries(4))
	if ringErr != nil {
		t.Error(ringErr)
		return
	}
	defer ring.Close()

	if sqes := ring.GetSQEs(8); sqes != nil {
		t.Error("claimed more slots than the ring holds")
		return
	}

	sqes := ring.GetSQEs(4)
	if sqes == nil {
		t.Error("batch claim failed on an empty ring")
		return
	}
	for i, sqe := range sqes {
		sqe.PrepareNop()
		sqe.SetData64(uint64(i) + 1)
	}

	// the reservation was taken as a unit, nothing is left
	if extra := ring.GetSQE(); extra != nil {
		t.Error("ring full but GetSQE returned a slot")
		return
	}

	n, subErr := ring.SubmitAndWait(4)
	if subErr != nil {
		t.Error(subErr)
		return
	}
	t.Log("sub:", n)

	for i := 0; i < 4; i++ {
		cqe, waitErr := ring.WaitCQE()
		if waitErr != nil {
			t.Error(waitErr)
			return
		}
		t.Log("cqe:", cqe.UserData, cqe.Res)
		ring.CQESeen(cqe)
	}

	// capacity fully recovered
	if sqes = ring.GetSQEs(4); sqes == nil {
		t.Error("capacity was not returned after completions were seen")
	}
}

func TestRing_WaitCQEsReady(t *testing.T) {
	ring, ringErr := liburing.New(liburing.WithEntries(4))
	if ringErr != nil {
		t.Error(ringErr)
		return
	}
	defer ring.Close()

	sqe := ring.GetSQE()
	sqe.PrepareNop()
	sqe.SetData64(1)
	if _, subErr := ring.Submit(); subErr != nil {
		t.Error(subErr)
		return
	}

	if waitErr := ring.WaitCQEsReady(1); waitErr != nil {
		t.Error(waitErr)
		return
	}
	// the wait observes readiness without consuming anything
	if ready := ring.CQReady(); ready != 1 {
		t.Error("ready:", ready)
		return
	}
	cqe := ring.PeekCQEAt(0)
	if cqe == nil || cqe.UserData != 1 {
		t.Error("completion not left in place")
		return
	}
	ring.CQESeen(cqe)
}

func TestRing_Probe(t *testing.T) {
	probe, probeErr := liburing.GetProbe()
	if probeErr != nil {
		t.Error(probeErr)
		return
	}
	t.Log("nop:", probe.IsSupported(liburing.IORING_OP_NOP))
	t.Log("read:", probe.IsSupported(liburing.IORING_OP_READ))
	t.Log("timeout:", probe.IsSupported(liburing.IORING_OP_TIMEOUT))
}
