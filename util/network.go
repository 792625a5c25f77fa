package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// SplitHostPortDefault splits "host[:port]", filling in defPort when the
// port is missing.  Bracketed IPv6 literals are accepted for the control
// address even though passive replies are IPv4 only.
func SplitHostPortDefault(addr string, defPort int) (string, int, error) {
	if addr == "" {
		return "", 0, fmt.Errorf("empty address")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port part.
		if ip := net.ParseIP(addr); ip != nil || !strings.Contains(addr, ":") {
			return addr, defPort, nil
		}
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "" {
		return "", 0, fmt.Errorf("invalid address %q: host is empty", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

// HostOf returns the host part of a "host:port" address, or addr itself
// when it has no port.
func HostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
