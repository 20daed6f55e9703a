//go:build linux

package iou_test

import (
	"testing"

	"github.com/ringbahn/iou"
)

func TestNew(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	t.Log("fd:", ring.Fd())
	t.Log("flags:", ring.Flags())
	t.Log("features:", ring.Features())

	sqe := ring.PrepareSQE()
	if sqe == nil {
		t.Error("no sqe on a fresh ring")
		return
	}
	sqe.PrepareNop()
	sqe.SetUserData(0xDEADBEEF)

	if _, err = ring.Submit(); err != nil {
		t.Error(err)
		return
	}

	cqe, waitErr := ring.WaitForCQE()
	if waitErr != nil {
		t.Error(waitErr)
		return
	}
	defer cqe.Seen()

	if cqe.UserData() != 0xDEADBEEF {
		t.Error("user data mismatch:", cqe.UserData())
		return
	}
	if _, resErr := cqe.Result(); resErr != nil {
		t.Error(resErr)
	}
}

func TestNew_InvalidEntries(t *testing.T) {
	if _, err := iou.New(0); err == nil {
		t.Error("zero entries accepted")
	}
	if _, err := iou.New(4097); err == nil {
		t.Error("oversized entries accepted")
	}
}

func TestRing_CloseIdempotent(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	if err = ring.Close(); err != nil {
		t.Error(err)
		return
	}
	if err = ring.Close(); err != nil {
		t.Error("second close:", err)
	}
}

func TestRing_Queues(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	sq, cq := ring.Queues()

	sqe := sq.PrepareSQE()
	if sqe == nil {
		t.Error("no sqe")
		return
	}
	sqe.PrepareNop()
	sqe.SetUserData(1)
	if _, err = sq.Submit(); err != nil {
		t.Error(err)
		return
	}

	cqe, waitErr := cq.WaitForCQE()
	if waitErr != nil {
		t.Error(waitErr)
		return
	}
	if cqe.UserData() != 1 {
		t.Error("user data mismatch:", cqe.UserData())
	}
	cqe.Seen()
	cqe.Seen()

	if ready := cq.Ready(); ready != 0 {
		t.Error("double seen advanced twice, ready:", ready)
	}
}

func TestSubmissionQueue_Exhaust(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	sq := ring.SQ()
	entries := sq.Entries()

	claimed := uint32(0)
	for {
		sqe := sq.PrepareSQE()
		if sqe == nil {
			break
		}
		sqe.PrepareNop()
		sqe.SetUserData(uint64(claimed))
		claimed++
	}
	if claimed != entries {
		t.Error("claimed", claimed, "of", entries)
		return
	}
	if left := sq.SpaceLeft(); left != 0 {
		t.Error("space left on a full ring:", left)
		return
	}

	if _, err = sq.SubmitAndWait(claimed); err != nil {
		t.Error(err)
		return
	}
	for i := uint32(0); i < claimed; i++ {
		cqe, waitErr := ring.WaitForCQE()
		if waitErr != nil {
			t.Error(waitErr)
			return
		}
		cqe.Seen()
	}

	if left := sq.SpaceLeft(); left != entries {
		t.Error("capacity not recovered:", left)
	}
}
