//go:build linux

package iou

import (
	"runtime"
	"syscall"

	"github.com/brickingsoft/errors"
	"github.com/ringbahn/iou/pkg/liburing"
)

// Registrar pre-registers resources with the kernel so submissions
// can refer to them by index instead of paying per operation setup
// costs. At most one fileset and one buffer set can be registered at
// a time. Not safe for concurrent use.
type Registrar struct {
	ring     *liburing.Ring
	fileset  []RegisteredFd
	buffers  [][]byte
	eventfd  int
	hasEvent bool
}

// RegisterFiles pins fds into the kernel's fixed file table and
// returns one RegisteredFd per entry, in order. An fd of -1 reserves
// a placeholder entry that can be filled by UpdateRegisteredFiles
// later. The call is all or nothing; one bad descriptor fails the
// whole batch and registers nothing.
func (reg *Registrar) RegisterFiles(fds []int32) ([]RegisteredFd, error) {
	if len(fds) == 0 {
		return nil, errors.From(ErrEmptyFiles,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpRegister))
	}
	if reg.fileset != nil {
		return nil, errors.From(ErrRegisteredFiles,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpRegister))
	}
	if _, err := reg.ring.RegisterFiles(fds); err != nil {
		return nil, err
	}
	reg.fileset = make([]RegisteredFd, len(fds))
	for i, fd := range fds {
		reg.fileset[i] = RegisteredFd{index: int32(i), placeholder: fd < 0}
	}
	return reg.Fileset(), nil
}

// UpdateRegisteredFiles replaces fileset entries starting at offset.
// Passing -1 turns an entry back into a placeholder. The update must
// fit inside the registered table; a range ending past it fails
// before touching the kernel and changes nothing.
func (reg *Registrar) UpdateRegisteredFiles(offset uint32, fds []int32) ([]RegisteredFd, error) {
	if len(fds) == 0 {
		return nil, errors.From(ErrEmptyFiles,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpUpdate))
	}
	if reg.fileset == nil {
		return nil, errors.From(ErrNoRegisteredFiles,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpUpdate))
	}
	if uint64(offset)+uint64(len(fds)) > uint64(len(reg.fileset)) {
		return nil, errors.From(ErrUpdateOutOfBounds,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpUpdate))
	}
	if _, err := reg.ring.RegisterFilesUpdate(offset, fds); err != nil {
		return nil, err
	}
	for i, fd := range fds {
		reg.fileset[offset+uint32(i)].placeholder = fd < 0
	}
	updated := make([]RegisteredFd, len(fds))
	copy(updated, reg.fileset[offset:offset+uint32(len(fds))])
	return updated, nil
}

// UnregisterFiles drops the registered fileset. Every RegisteredFd
// obtained from it becomes invalid.
func (reg *Registrar) UnregisterFiles() error {
	if reg.fileset == nil {
		return errors.From(ErrNoRegisteredFiles,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpUnregister))
	}
	if _, err := reg.ring.UnregisterFiles(); err != nil {
		return err
	}
	reg.fileset = nil
	return nil
}

// Fileset returns a copy of the registered file handles, or nil when
// no fileset is registered.
func (reg *Registrar) Fileset() []RegisteredFd {
	if reg.fileset == nil {
		return nil
	}
	fileset := make([]RegisteredFd, len(reg.fileset))
	copy(fileset, reg.fileset)
	return fileset
}

// FilesetSize reports how many entries the registered fileset holds,
// zero when none is registered.
func (reg *Registrar) FilesetSize() uint32 {
	return uint32(len(reg.fileset))
}

// RegisterBuffers pins the given buffers for fixed buffer reads and
// writes; the buffer at position i answers to buffer index i. The
// registrar keeps a reference to every buffer so the garbage
// collector cannot move or reclaim them while registered.
func (reg *Registrar) RegisterBuffers(buffers [][]byte) error {
	if len(buffers) == 0 {
		return errors.From(ErrEmptyBuffers,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpRegister))
	}
	if reg.buffers != nil {
		return errors.From(ErrRegisteredBuffers,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpRegister))
	}
	iovecs := make([]syscall.Iovec, len(buffers))
	for i, buf := range buffers {
		if len(buf) == 0 {
			return errors.From(ErrEmptyBuffers,
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpRegister))
		}
		iovecs[i].Base = &buf[0]
		iovecs[i].SetLen(len(buf))
	}
	_, err := reg.ring.RegisterBuffers(iovecs)
	runtime.KeepAlive(iovecs)
	if err != nil {
		return err
	}
	reg.buffers = buffers
	return nil
}

// UnregisterBuffers drops the registered buffer set and releases the
// registrar's references to the buffers.
func (reg *Registrar) UnregisterBuffers() error {
	if reg.buffers == nil {
		return errors.From(ErrNoRegisteredBuffers,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpUnregister))
	}
	if _, err := reg.ring.UnregisterBuffers(); err != nil {
		return err
	}
	reg.buffers = nil
	return nil
}

// RegisterEventfd arranges for the ring to signal fd on every posted
// completion.
func (reg *Registrar) RegisterEventfd(fd int) error {
	if _, err := reg.ring.RegisterEventFd(fd); err != nil {
		return err
	}
	reg.eventfd = fd
	reg.hasEvent = true
	return nil
}

// RegisterEventfdAsync is RegisterEventfd restricted to completions
// that arrived off the submitting task.
func (reg *Registrar) RegisterEventfdAsync(fd int) error {
	if _, err := reg.ring.RegisterEventFdAsync(fd); err != nil {
		return err
	}
	reg.eventfd = fd
	reg.hasEvent = true
	return nil
}

// Eventfd returns the registered eventfd, if any.
func (reg *Registrar) Eventfd() (int, bool) {
	return reg.eventfd, reg.hasEvent
}

// UnregisterEventfd stops completion notifications.
func (reg *Registrar) UnregisterEventfd() error {
	if _, err := reg.ring.UnregisterEventFd(); err != nil {
		return err
	}
	reg.eventfd = 0
	reg.hasEvent = false
	return nil
}

// RegisteredFd names one entry of a registered fileset. A
// placeholder entry reserves its index but holds no file yet; it can
// be given one through UpdateRegisteredFiles.
type RegisteredFd struct {
	index       int32
	placeholder bool
}

// PlaceholderFd returns the fd value that reserves a sparse fileset
// entry when passed to RegisterFiles or UpdateRegisteredFiles.
func PlaceholderFd() int32 {
	return -1
}

// Index returns the entry's position in the registered fileset.
func (fd RegisteredFd) Index() int32 {
	return fd.index
}

// IsPlaceholder reports whether the entry currently holds no file.
func (fd RegisteredFd) IsPlaceholder() bool {
	return fd.placeholder
}

// RingFd designates the target file of a submission, either a raw
// descriptor or an entry of the registered fileset.
type RingFd struct {
	fd    int32
	fixed bool
}

// RawFd targets an ordinary file descriptor.
func RawFd(fd int) RingFd {
	return RingFd{fd: int32(fd)}
}

// FixedFd targets a registered fileset entry. Targeting a placeholder
// is a caller bug and panics; fill the entry first.
func FixedFd(fd RegisteredFd) RingFd {
	if fd.placeholder {
		panic("iou: placeholder fileset entry used as an IO target")
	}
	return RingFd{fd: fd.index, fixed: true}
}

func (fd RingFd) value() int {
	return int(fd.fd)
}

func (fd RingFd) apply(raw *liburing.SubmissionQueueEntry) {
	if fd.fixed {
		raw.SetFlags(liburing.IOSQE_FIXED_FILE)
	}
}
