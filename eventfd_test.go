//go:build linux

package iou_test

import (
	"encoding/binary"
	"testing"

	"github.com/ringbahn/iou"
	"golang.org/x/sys/unix"
)

func TestRegistrar_Eventfd(t *testing.T) {
	ring, err := iou.New(8)
	if err != nil {
		t.Error(err)
		return
	}
	defer func() {
		_ = ring.Close()
	}()

	efd, efdErr := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if efdErr != nil {
		t.Error(efdErr)
		return
	}
	defer func() {
		_ = unix.Close(efd)
	}()

	reg := ring.Registrar()
	if err = reg.RegisterEventfd(efd); err != nil {
		t.Error(err)
		return
	}
	if !ring.CQ().EventfdEnabled() {
		t.Error("eventfd disabled after register")
		return
	}

	sqe := ring.PrepareSQE()
	if sqe == nil {
		t.Error("no sqe")
		return
	}
	sqe.PrepareNop()
	sqe.SetUserData(1)
	if _, err = ring.SubmitAndWait(1); err != nil {
		t.Error(err)
		return
	}

	var counter [8]byte
	if _, err = unix.Read(efd, counter[:]); err != nil {
		t.Error(err)
		return
	}
	if binary.LittleEndian.Uint64(counter[:]) == 0 {
		t.Error("eventfd not signalled")
		return
	}

	cqe, waitErr := ring.WaitForCQE()
	if waitErr != nil {
		t.Error(waitErr)
		return
	}
	cqe.Seen()

	if err = reg.UnregisterEventfd(); err != nil {
		t.Error(err)
	}
}
