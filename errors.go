//go:build linux

package iou

import (
	"github.com/brickingsoft/errors"
)

var (
	ErrEmptyFiles          = errors.Define("empty files slice")
	ErrRegisteredFiles     = errors.Define("there is a preexisting registered fileset")
	ErrNoRegisteredFiles   = errors.Define("no fileset registered")
	ErrUpdateOutOfBounds   = errors.Define("out of bounds update for registered fileset")
	ErrEmptyBuffers        = errors.Define("empty buffers slice")
	ErrRegisteredBuffers   = errors.Define("there is a preexisting registered buffer set")
	ErrNoRegisteredBuffers = errors.Define("no buffer set registered")
)

func IsEmptyFiles(err error) bool {
	return errors.Is(err, ErrEmptyFiles)
}

func IsRegisteredFiles(err error) bool {
	return errors.Is(err, ErrRegisteredFiles)
}

func IsNoRegisteredFiles(err error) bool {
	return errors.Is(err, ErrNoRegisteredFiles)
}

func IsUpdateOutOfBounds(err error) bool {
	return errors.Is(err, ErrUpdateOutOfBounds)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "iou"
)

const (
	errMetaOpKey        = "op"
	errMetaOpRegister   = "register"
	errMetaOpUnregister = "unregister"
	errMetaOpUpdate     = "update"
)
