package server

import "net"

// LanIP returns this host's primary LAN IPv4 address. The UDP dial never
// sends a packet; it only asks the kernel which interface would route it.
func LanIP() string {
	conn, err := net.Dial("udp", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
