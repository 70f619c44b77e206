package utils

import (
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
)

// HostNet returns ip as a single-host network (/32 for IPv4, /128 for IPv6).
func HostNet(ip net.IP) *net.IPNet {
	if ip4 := ip.To4(); ip4 != nil {
		return &net.IPNet{IP: ip4, Mask: net.CIDRMask(32, 32)}
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
}

// IsDefaultNet reports whether n is a default destination: nil, 0.0.0.0/0 or ::/0.
func IsDefaultNet(n *net.IPNet) bool {
	if n == nil {
		return true
	}
	ones, _ := n.Mask.Size()
	return ones == 0 && n.IP.IsUnspecified()
}

// SameNet compares two networks, treating every default destination as equal.
func SameNet(a, b *net.IPNet) bool {
	if IsDefaultNet(a) || IsDefaultNet(b) {
		return IsDefaultNet(a) && IsDefaultNet(b)
	}
	return a.String() == b.String()
}

// IsHostNetOf reports whether n is exactly the single-host network of ip.
func IsHostNetOf(n *net.IPNet, ip net.IP) bool {
	if n == nil || ip == nil {
		return false
	}
	return SameNet(n, HostNet(ip))
}

// FirstIPv4In returns the first IPv4 address of ips inside subnet, or nil.
func FirstIPv4In(ips []net.IP, subnet *net.IPNet) net.IP {
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil && subnet.Contains(ip4) {
			return ip4
		}
	}
	return nil
}

// UsableHosts returns the first and last addresses of subnet a lease may hand out
// (network and broadcast excluded).
func UsableHosts(subnet *net.IPNet) (net.IP, net.IP) {
	first, last := cidr.AddressRange(subnet)
	return cidr.Inc(first), cidr.Dec(last)
}

// IdentityMAC derives a MAC address from a 4-byte prefix and a 16-bit index.
func IdentityMAC(prefix []byte, index int) net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	copy(mac, prefix[:4])
	mac[4] = byte(index >> 8)
	mac[5] = byte(index)
	return mac
}
