package socket

import (
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/tessarion/netpack/common/lg"
)

func checkOptionSupport(o Options) error {
	return nil
}

func applyOptions(fd uintptr, network string, o Options) error {
	ifd := int(fd)
	if o.ReusePort {
		if err := unix.SetsockoptInt(ifd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			return err
		}
	}
	if o.DualStack && strings.HasSuffix(network, "6") {
		setAndLogSockoptInt(ifd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	}
	return nil
}

func setAndLogSockoptInt(fd int, level int, opt int, value int) {
	err := unix.SetsockoptInt(fd, level, opt, value)
	if err != nil && err != syscall.ENOPROTOOPT {
		lg.Warning("setsockopt:", err)
	}
}

func fdBlockSize(fd uintptr) int {
	var st unix.Stat_t
	if err := unix.Fstat(int(fd), &st); err != nil {
		return 0
	}
	return int(st.Blksize)
}
