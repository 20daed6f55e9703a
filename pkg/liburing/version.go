//go:build linux

package liburing

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type Version struct {
	Major    int
	Minor    int
	Patch    int
	Flavor   string
	validate bool
}

func (v Version) Validate() bool {
	return v.validate
}

func (v Version) Invalidate() bool {
	return !v.validate
}

func (v Version) Compare(o Version) int {
	if v.Major != o.Major {
		if v.Major > o.Major {
			return 1
		}
		return -1
	}
	if v.Minor != o.Minor {
		if v.Minor > o.Minor {
			return 1
		}
		return -1
	}
	if v.Patch != o.Patch {
		if v.Patch > o.Patch {
			return 1
		}
		return -1
	}
	return 0
}

func (v Version) GTE(major, minor, patch int) bool {
	return v.Compare(Version{Major: major, Minor: minor, Patch: patch}) >= 0
}

func (v Version) LT(major, minor, patch int) bool {
	return v.Compare(Version{Major: major, Minor: minor, Patch: patch}) < 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d%s", v.Major, v.Minor, v.Patch, v.Flavor)
}

func VersionEnable(major, minor, patch int) bool {
	v := GetVersion()
	if v.Invalidate() {
		return false
	}
	return v.GTE(major, minor, patch)
}

func GetVersion() Version {
	kernelVersionOnce.Do(func() {
		uts := &unix.Utsname{}
		if err := unix.Uname(uts); err != nil {
			kernelVersion.validate = false
			return
		}
		major, minor, patch, flavor, parseErr := parseKernelVersion(unix.ByteSliceToString(uts.Release[:]))
		kernelVersion.Major = major
		kernelVersion.Minor = minor
		kernelVersion.Patch = patch
		kernelVersion.Flavor = flavor
		kernelVersion.validate = parseErr == nil
	})
	return kernelVersion
}

var (
	kernelVersion     = Version{}
	kernelVersionOnce = sync.Once{}
)

const (
	firstNumberOfParts  = 2
	secondNumberOfParts = 1
)

func parseKernelVersion(release string) (major int, minor int, patch int, flavor string, err error) {
	var (
		parsed  int
		partial string
	)

	parsed, _ = fmt.Sscanf(release, "%d.%d%s", &major, &minor, &partial)
	if parsed < firstNumberOfParts {
		err = fmt.Errorf("cannot parse kernel version: %s", release)
		return
	}

	parsed, _ = fmt.Sscanf(partial, ".%d%s", &patch, &flavor)
	if parsed < secondNumberOfParts {
		flavor = partial
	}
	return
}
