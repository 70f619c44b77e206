package networking

import (
	"fmt"
	"net"

	"github.com/wpsim/hairpin/src/internal/utils"
)

// RouteComponent is one route inside an identity routing table: the subnet
// hairpin route or the optional default route.
type RouteComponent struct {
	ComponentBase
	route         *IpRoute
	interfaceName string
	shouldExist   bool
}

// NewSubnetRouteComponent builds "<subnet> dev <iface> scope link src <address> table <table>".
func NewSubnetRouteComponent(h Handle, identity int, subnet *net.IPNet, iface *Interface, address net.IP, table int) *RouteComponent {
	route := BuildSubnetRoute(h, subnet, iface.Index(), address, table)
	return &RouteComponent{
		ComponentBase: ComponentBase{
			identity:      identity,
			componentType: ComponentTypeSubnetRoute,
			description:   "Subnet route forces LAN traffic out through the identity interface instead of local delivery",
		},
		route:         route,
		interfaceName: iface.Name(),
		shouldExist:   address != nil,
	}
}

// NewDefaultRouteComponent builds "default via <gw> dev <iface> table <table>".
// It should exist only when enabled and a gateway is known.
func NewDefaultRouteComponent(h Handle, identity int, gw net.IP, iface *Interface, table int, enabled bool) *RouteComponent {
	route := BuildDefaultRoute(h, gw, iface.Index(), table)
	return &RouteComponent{
		ComponentBase: ComponentBase{
			identity:      identity,
			componentType: ComponentTypeDefaultRoute,
			description:   "Default route sends non-LAN traffic of the identity to the shared gateway",
		},
		route:         route,
		interfaceName: iface.Name(),
		shouldExist:   enabled && gw != nil,
	}
}

func (c *RouteComponent) IsExists() (bool, error) {
	return c.route.IsExists()
}

func (c *RouteComponent) ShouldExist() bool {
	return c.shouldExist
}

// Conflict reports a route to the same destination in the table that
// goes through another interface or gateway.
func (c *RouteComponent) Conflict() (string, error) {
	if !c.shouldExist {
		return "", nil
	}

	routes, err := ListRoutesInTable(c.route.h, c.route.Table)
	if err != nil {
		return "", err
	}
	for _, r := range routes {
		if utils.SameNet(r.Dst, c.route.Dst) && !c.route.Matches(r.Route) {
			return fmt.Sprintf("[%v] differs from desired [%v]", r, c.route), nil
		}
	}
	return "", nil
}

func (c *RouteComponent) CreateIfNotExists() error {
	_, err := c.route.AddIfNotExists()
	return err
}

func (c *RouteComponent) DeleteIfExists() error {
	_, err := c.route.DelIfExists()
	return err
}

func (c *RouteComponent) GetCommand() string {
	if c.componentType == ComponentTypeDefaultRoute {
		return fmt.Sprintf("ip route add default via %s dev %s table %d", c.route.Gw, c.interfaceName, c.route.Table)
	}
	return fmt.Sprintf("ip route add %s dev %s scope link src %s table %d", c.route.Dst, c.interfaceName, c.route.Src, c.route.Table)
}
