package ring

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ianic/xnet/internal/xerr"
)

// Listen creates, binds and listens on a dual-stack TCP socket on
// port (all interfaces, both IPv4 and IPv6), setting SO_REUSEADDR,
// SO_REUSEPORT and the given backlog before returning the raw fd. An
// AF_INET6 socket with IPV6_V6ONLY explicitly cleared is this
// module's equivalent of the original reference's getaddrinfo(
// AF_UNSPEC)-then-bind: one socket accepting both address families
// instead of picking whichever getaddrinfo returns first. port 0 asks
// the kernel to pick a free port; the actual bound port is returned
// alongside the fd.
func Listen(port, backlog int) (fd int, boundPort int, err error) {
	fd, err = syscall.Socket(syscall.AF_INET6, syscall.SOCK_STREAM, 0)
	if err != nil {
		return 0, 0, xerr.Wrap("ring.Listen", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return 0, 0, xerr.Wrap("ring.Listen", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return 0, 0, xerr.Wrap("ring.Listen", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
		return 0, 0, xerr.Wrap("ring.Listen", err)
	}
	sa := &syscall.SockaddrInet6{Port: port}
	if err := syscall.Bind(fd, sa); err != nil {
		return 0, 0, xerr.Wrap("ring.Listen", err)
	}
	boundPort = port
	if boundPort == 0 {
		if sn, err := syscall.Getsockname(fd); err == nil {
			if v, ok := sn.(*syscall.SockaddrInet6); ok {
				boundPort = v.Port
			}
		}
	}
	if err := syscall.SetNonblock(fd, false); err != nil {
		return 0, 0, xerr.Wrap("ring.Listen", err)
	}
	if err := syscall.Listen(fd, backlog); err != nil {
		return 0, 0, xerr.Wrap("ring.Listen", err)
	}
	return fd, boundPort, nil
}
