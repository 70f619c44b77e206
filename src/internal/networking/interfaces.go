package networking

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

type Interface struct {
	netlink.Link
}

func GetInterface(h Handle, interfaceName string) (*Interface, error) {
	link, err := h.LinkByName(interfaceName)
	if err != nil {
		return nil, err
	}
	return &Interface{link}, nil
}

func (iface *Interface) Name() string {
	return iface.Attrs().Name
}

func (iface *Interface) Index() int {
	return iface.Attrs().Index
}

func (iface *Interface) IsUp() bool {
	return iface.Attrs().Flags&net.FlagUp != 0
}

// IsMacvlanOf reports whether the interface is a macvlan child of parentIndex.
func (iface *Interface) IsMacvlanOf(parentIndex int) bool {
	return iface.Type() == "macvlan" && iface.Attrs().ParentIndex == parentIndex
}

// IPv4Addrs returns the IPv4 addresses assigned to the interface.
func (iface *Interface) IPv4Addrs(h Handle) ([]net.IP, error) {
	addrs, err := h.AddrList(iface.Link, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses of %s: %w", iface.Name(), err)
	}
	var ips []net.IP
	for _, addr := range addrs {
		if addr.IPNet != nil {
			ips = append(ips, addr.IP)
		}
	}
	return ips, nil
}

func (iface *Interface) String() string {
	return fmt.Sprintf("%s (idx=%d, type=%s, parent=%d)", iface.Name(), iface.Index(), iface.Type(), iface.Attrs().ParentIndex)
}
