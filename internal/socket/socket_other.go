//go:build !linux && !windows

package socket

import "errors"

func checkOptionSupport(o Options) error {
	if o.ReusePort {
		return errors.New("SO_REUSEPORT is not supported on this platform")
	}
	return nil
}

func applyOptions(fd uintptr, network string, o Options) error {
	return nil
}

func fdBlockSize(fd uintptr) int {
	return 0
}
