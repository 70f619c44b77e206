package networking

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/utils"
)

type IpRoute struct {
	*netlink.Route
	h Handle
}

func (r *IpRoute) String() string {
	return describeRoute(r.h, r.Route)
}

func describeRoute(h Handle, r *netlink.Route) string {
	to := "default"
	if !utils.IsDefaultNet(r.Dst) {
		to = r.Dst.String()
	}

	linkName := "<nil>"
	if r.LinkIndex > 0 {
		if link, err := h.LinkByIndex(r.LinkIndex); err != nil {
			linkName = fmt.Sprintf("<idx %d>", r.LinkIndex)
		} else {
			linkName = link.Attrs().Name
		}
	}

	s := fmt.Sprintf("table %d: %s dev %s", r.Table, to, linkName)
	if r.Gw != nil {
		s += " via " + r.Gw.String()
	}
	if r.Src != nil {
		s += " src " + r.Src.String()
	}
	return s
}

// BuildSubnetRoute builds "<subnet> dev <link> scope link src <src>" in table.
func BuildSubnetRoute(h Handle, subnet *net.IPNet, linkIndex int, src net.IP, table int) *IpRoute {
	ipr := netlink.Route{}

	ipr.Family = netlink.FAMILY_V4
	ipr.Table = table
	ipr.LinkIndex = linkIndex
	ipr.Dst = subnet
	ipr.Src = src
	ipr.Scope = netlink.SCOPE_LINK
	return &IpRoute{&ipr, h}
}

// BuildDefaultRoute builds "default via <gw> dev <link>" in table.
func BuildDefaultRoute(h Handle, gw net.IP, linkIndex int, table int) *IpRoute {
	ipr := netlink.Route{}

	ipr.Family = netlink.FAMILY_V4
	ipr.Table = table
	ipr.LinkIndex = linkIndex
	ipr.Gw = gw
	ipr.Dst = &net.IPNet{
		IP:   net.IPv4zero.To4(),
		Mask: net.CIDRMask(0, 32),
	}
	return &IpRoute{&ipr, h}
}

// Matches reports whether other has the same destination, device and gateway.
func (ipr *IpRoute) Matches(other *netlink.Route) bool {
	return utils.SameNet(ipr.Dst, other.Dst) &&
		ipr.LinkIndex == other.LinkIndex &&
		ipr.Gw.Equal(other.Gw)
}

func (ipr *IpRoute) Add() error {
	log.Debugf("Adding IP route [%v]", ipr)
	if err := ipr.h.RouteAdd(ipr.Route); err != nil {
		log.Warnf("Failed to add IP route [%v]: %v", ipr, err)
		return err
	}

	return nil
}

func (ipr *IpRoute) AddIfNotExists() (bool, error) {
	if exists, err := ipr.IsExists(); err != nil {
		return false, err
	} else if exists {
		return false, nil
	}

	if err := ipr.Add(); err != nil {
		return false, err
	}
	return true, nil
}

func (ipr *IpRoute) IsExists() (bool, error) {
	routes, err := ListRoutesInTable(ipr.h, ipr.Table)
	if err != nil {
		log.Warnf("Checking if IP route exists [%v] is failed: %v", ipr, err)
		return false, err
	}

	for _, route := range routes {
		if ipr.Matches(route.Route) {
			log.Debugf("Checking if IP route exists [%v]: YES", ipr)
			return true, nil
		}
	}

	log.Debugf("Checking if IP route exists [%v]: NO", ipr)
	return false, nil
}

func (ipr *IpRoute) Del() error {
	log.Debugf("Deleting IP route [%v]", ipr)
	if err := ipr.h.RouteDel(ipr.Route); err != nil {
		log.Warnf("Failed to delete IP route [%v]: %v", ipr, err)
		return err
	}

	return nil
}

func (ipr *IpRoute) DelIfExists() (bool, error) {
	if exists, err := ipr.IsExists(); err != nil {
		return false, err
	} else if !exists {
		return false, nil
	}

	if err := ipr.Del(); err != nil {
		return false, err
	}
	return true, nil
}

// DelIpRouteTable removes every route of table and returns how many were removed.
func DelIpRouteTable(h Handle, table int) (int, error) {
	log.Debugf("Deleting IP route table [%d]", table)
	routes, err := ListRoutesInTable(h, table)
	if err != nil {
		return 0, err
	}

	for i, route := range routes {
		if err := route.Del(); err != nil {
			return i, err
		}
	}

	return len(routes), nil
}

func ListRoutesInTable(h Handle, table int) ([]*IpRoute, error) {
	routes, err := h.RouteListFiltered(netlink.FAMILY_V4, &netlink.Route{Table: table}, netlink.RT_FILTER_TABLE)
	if err != nil {
		log.Warnf("Failed to list routes for table %d: %v", table, err)
		return nil, err
	}

	ipRoutes := make([]*IpRoute, 0, len(routes))
	for _, route := range routes {
		copiedRoute := route
		ipRoutes = append(ipRoutes, &IpRoute{&copiedRoute, h})
	}

	return ipRoutes, nil
}
