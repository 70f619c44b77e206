package networking

import (
	"errors"
	"sync/atomic"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Handle is the subset of *netlink.Handle hairpin uses to observe and
// mutate kernel state. Tests substitute an in-memory kernel.
type Handle interface {
	LinkByName(name string) (netlink.Link, error)
	LinkByIndex(index int) (netlink.Link, error)
	LinkList() ([]netlink.Link, error)
	LinkAdd(link netlink.Link) error
	LinkDel(link netlink.Link) error
	LinkSetUp(link netlink.Link) error
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
	RuleList(family int) ([]netlink.Rule, error)
	RuleAdd(rule *netlink.Rule) error
	RuleDel(rule *netlink.Rule) error
	RouteListFiltered(family int, filter *netlink.Route, filterMask uint64) ([]netlink.Route, error)
	RouteAdd(route *netlink.Route) error
	RouteDel(route *netlink.Route) error
}

// NewNetlinkHandle opens a netlink handle in the current network namespace.
func NewNetlinkHandle() (*netlink.Handle, error) {
	return netlink.NewHandle(unix.NETLINK_ROUTE)
}

// CountingHandle wraps a Handle and counts successful mutations.
// The count is what a run reports as "mutations": zero on a converged host.
type CountingHandle struct {
	Handle
	mutations atomic.Int64
}

func NewCountingHandle(h Handle) *CountingHandle {
	return &CountingHandle{Handle: h}
}

// Mutations returns the number of successful mutating calls so far.
func (c *CountingHandle) Mutations() int {
	return int(c.mutations.Load())
}

func (c *CountingHandle) count(err error) error {
	if err == nil {
		c.mutations.Add(1)
	}
	return err
}

func (c *CountingHandle) LinkAdd(link netlink.Link) error {
	return c.count(c.Handle.LinkAdd(link))
}

func (c *CountingHandle) LinkDel(link netlink.Link) error {
	return c.count(c.Handle.LinkDel(link))
}

func (c *CountingHandle) LinkSetUp(link netlink.Link) error {
	return c.count(c.Handle.LinkSetUp(link))
}

func (c *CountingHandle) RuleAdd(rule *netlink.Rule) error {
	return c.count(c.Handle.RuleAdd(rule))
}

func (c *CountingHandle) RuleDel(rule *netlink.Rule) error {
	return c.count(c.Handle.RuleDel(rule))
}

func (c *CountingHandle) RouteAdd(route *netlink.Route) error {
	return c.count(c.Handle.RouteAdd(route))
}

func (c *CountingHandle) RouteDel(route *netlink.Route) error {
	return c.count(c.Handle.RouteDel(route))
}

// IsLinkNotFound reports whether err means the interface does not exist.
func IsLinkNotFound(err error) bool {
	var notFound netlink.LinkNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, unix.ENODEV)
}

// IsPermissionError reports whether err means the caller may not mutate kernel state.
func IsPermissionError(err error) bool {
	return errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES)
}

// IsExistError reports whether err means the object already exists.
func IsExistError(err error) bool {
	return errors.Is(err, unix.EEXIST)
}
