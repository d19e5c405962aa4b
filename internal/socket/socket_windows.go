package socket

import (
	"errors"
	"strings"

	"golang.org/x/sys/windows"

	"github.com/tessarion/netpack/common/lg"
)

func checkOptionSupport(o Options) error {
	if o.ReusePort {
		return errors.New("SO_REUSEPORT is not supported on windows")
	}
	return nil
}

func applyOptions(fd uintptr, network string, o Options) error {
	if o.DualStack && strings.HasSuffix(network, "6") {
		err := windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_IPV6, windows.IPV6_V6ONLY, 0)
		if err != nil {
			lg.Warning("setsockopt:", err)
		}
	}
	return nil
}

func fdBlockSize(fd uintptr) int {
	return 0
}
