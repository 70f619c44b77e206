// Package mocks provides mock implementations for testing.
//
// This package should ONLY be imported in test files (_test.go).
// It must not import the packages it mocks, so that their own tests can use it.
package mocks

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Kernel is an in-memory model of the kernel state hairpin touches: links,
// IPv4 addresses, policy rules and routes.
//
// It implements the same method set as *netlink.Handle for the calls used by
// the networking package, and counts every successful mutation so that tests
// can assert idempotence ("the second run performs zero mutations").
//
// Setup helpers (AddUplink, AssignAddr, AddRule, AddRoute) do not count as
// mutations. XxxFunc hooks run before the default behaviour; a non-nil error
// returned by a hook fails the call.
//
// Example usage:
//
//	kernel := mocks.NewKernel()
//	kernel.AddUplink("up0")
//	kernel.LinkAddFunc = func(link netlink.Link) error {
//	    return unix.EPERM
//	}
type Kernel struct {
	mu sync.Mutex

	links     map[int]netlink.Link
	addrs     map[int][]netlink.Addr
	rules     []netlink.Rule
	routes    []netlink.Route
	nextIndex int
	mutations int

	// LinkAddFunc is called by LinkAdd if not nil
	LinkAddFunc func(link netlink.Link) error

	// LinkSetUpFunc is called by LinkSetUp if not nil
	LinkSetUpFunc func(link netlink.Link) error

	// RuleAddFunc is called by RuleAdd if not nil
	RuleAddFunc func(rule *netlink.Rule) error

	// RouteAddFunc is called by RouteAdd if not nil
	RouteAddFunc func(route *netlink.Route) error
}

// NewKernel creates a kernel with a loopback link and the three default IPv4 rules
// (0: lookup local, 32766: lookup main, 32767: lookup default).
func NewKernel() *Kernel {
	k := &Kernel{
		links:     map[int]netlink.Link{},
		addrs:     map[int][]netlink.Addr{},
		nextIndex: 1,
	}

	k.addLinkLocked(&netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}})

	for _, r := range []struct{ priority, table int }{
		{0, unix.RT_TABLE_LOCAL},
		{32766, unix.RT_TABLE_MAIN},
		{32767, unix.RT_TABLE_DEFAULT},
	} {
		rule := netlink.NewRule()
		rule.Family = netlink.FAMILY_V4
		rule.Priority = r.priority
		rule.Table = r.table
		k.rules = append(k.rules, *rule)
	}

	return k
}

// AddUplink adds an administratively up physical interface and returns its index.
func (k *Kernel) AddUplink(name string) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.addLinkLocked(&netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: name, Flags: net.FlagUp}})
}

// AddLink adds an arbitrary link without counting a mutation and returns its index.
func (k *Kernel) AddLink(link netlink.Link) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.addLinkLocked(link)
}

// AssignAddr assigns an IPv4 address in CIDR notation to the named link,
// the way an external lease client would.
func (k *Kernel) AssignAddr(name, cidr string) error {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	link := k.findByNameLocked(name)
	if link == nil {
		return linkNotFound(name)
	}
	index := link.Attrs().Index
	k.addrs[index] = append(k.addrs[index], netlink.Addr{
		IPNet: &net.IPNet{IP: ip.To4(), Mask: ipNet.Mask},
	})
	return nil
}

// AddRule adds a rule without counting a mutation.
func (k *Kernel) AddRule(rule netlink.Rule) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if rule.Family == 0 {
		rule.Family = netlink.FAMILY_V4
	}
	k.rules = append(k.rules, rule)
}

// AddRoute adds a route without counting a mutation.
func (k *Kernel) AddRoute(route netlink.Route) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.routes = append(k.routes, route)
}

// Mutations returns the number of successful mutating calls.
func (k *Kernel) Mutations() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.mutations
}

// ResetMutations sets the mutation counter back to zero.
func (k *Kernel) ResetMutations() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.mutations = 0
}

// Rules returns a copy of all rules sorted by priority.
func (k *Kernel) Rules() []netlink.Rule {
	k.mu.Lock()
	defer k.mu.Unlock()

	rules := append([]netlink.Rule(nil), k.rules...)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	return rules
}

// Routes returns a copy of the routes of a table.
func (k *Kernel) Routes(table int) []netlink.Route {
	k.mu.Lock()
	defer k.mu.Unlock()

	var routes []netlink.Route
	for _, r := range k.routes {
		if r.Table == table {
			routes = append(routes, r)
		}
	}
	return routes
}

// LinkNames returns the names of all links sorted alphabetically.
func (k *Kernel) LinkNames() []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	var names []string
	for _, link := range k.links {
		names = append(names, link.Attrs().Name)
	}
	sort.Strings(names)
	return names
}

// LinkByName returns a copy of the named link.
func (k *Kernel) LinkByName(name string) (netlink.Link, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	link := k.findByNameLocked(name)
	if link == nil {
		return nil, linkNotFound(name)
	}
	return cloneLink(link), nil
}

// LinkByIndex returns a copy of the link with the given index.
func (k *Kernel) LinkByIndex(index int) (netlink.Link, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	link, ok := k.links[index]
	if !ok {
		return nil, fmt.Errorf("link index %d not found: %w", index, unix.ENODEV)
	}
	return cloneLink(link), nil
}

// LinkList returns copies of all links ordered by index.
func (k *Kernel) LinkList() ([]netlink.Link, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	indexes := make([]int, 0, len(k.links))
	for index := range k.links {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	links := make([]netlink.Link, 0, len(indexes))
	for _, index := range indexes {
		links = append(links, cloneLink(k.links[index]))
	}
	return links, nil
}

// LinkAdd creates a link. Names are unique and macvlan links need an existing parent.
func (k *Kernel) LinkAdd(link netlink.Link) error {
	if k.LinkAddFunc != nil {
		if err := k.LinkAddFunc(link); err != nil {
			return err
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	attrs := link.Attrs()
	if k.findByNameLocked(attrs.Name) != nil {
		return fmt.Errorf("link %s: %w", attrs.Name, unix.EEXIST)
	}
	if attrs.ParentIndex != 0 {
		if _, ok := k.links[attrs.ParentIndex]; !ok {
			return fmt.Errorf("parent index %d: %w", attrs.ParentIndex, unix.ENODEV)
		}
	}

	stored := cloneLink(link)
	stored.Attrs().Flags &^= net.FlagUp
	k.addLinkLocked(stored)
	k.mutations++
	return nil
}

// LinkDel deletes a link together with its addresses and the routes through it.
func (k *Kernel) LinkDel(link netlink.Link) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	stored := k.resolveLocked(link)
	if stored == nil {
		return linkNotFound(link.Attrs().Name)
	}
	index := stored.Attrs().Index

	delete(k.links, index)
	delete(k.addrs, index)

	kept := k.routes[:0]
	for _, r := range k.routes {
		if r.LinkIndex != index {
			kept = append(kept, r)
		}
	}
	k.routes = kept

	k.mutations++
	return nil
}

// LinkSetUp sets the administrative up flag.
func (k *Kernel) LinkSetUp(link netlink.Link) error {
	if k.LinkSetUpFunc != nil {
		if err := k.LinkSetUpFunc(link); err != nil {
			return err
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	stored := k.resolveLocked(link)
	if stored == nil {
		return linkNotFound(link.Attrs().Name)
	}
	stored.Attrs().Flags |= net.FlagUp
	k.mutations++
	return nil
}

// AddrList returns the IPv4 addresses of a link. Only IPv4 is modelled.
func (k *Kernel) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if family == netlink.FAMILY_V6 {
		return nil, nil
	}
	if link == nil {
		var all []netlink.Addr
		for _, addrs := range k.addrs {
			all = append(all, addrs...)
		}
		return all, nil
	}

	stored := k.resolveLocked(link)
	if stored == nil {
		return nil, linkNotFound(link.Attrs().Name)
	}
	return append([]netlink.Addr(nil), k.addrs[stored.Attrs().Index]...), nil
}

// RuleList returns the rules of a family. FAMILY_ALL returns everything.
func (k *Kernel) RuleList(family int) ([]netlink.Rule, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var rules []netlink.Rule
	for _, r := range k.rules {
		if family == netlink.FAMILY_ALL || r.Family == family {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// RuleAdd adds a rule. An identical rule (priority, table, source) fails with EEXIST.
func (k *Kernel) RuleAdd(rule *netlink.Rule) error {
	if k.RuleAddFunc != nil {
		if err := k.RuleAddFunc(rule); err != nil {
			return err
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	for _, r := range k.rules {
		if sameRule(&r, rule) {
			return fmt.Errorf("rule %d: %w", rule.Priority, unix.EEXIST)
		}
	}

	stored := *rule
	if stored.Family == 0 {
		stored.Family = netlink.FAMILY_V4
	}
	k.rules = append(k.rules, stored)
	k.mutations++
	return nil
}

// RuleDel deletes the first rule matching priority, table and source.
func (k *Kernel) RuleDel(rule *netlink.Rule) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i := range k.rules {
		if sameRule(&k.rules[i], rule) {
			k.rules = append(k.rules[:i], k.rules[i+1:]...)
			k.mutations++
			return nil
		}
	}
	return fmt.Errorf("rule %d: %w", rule.Priority, unix.ENOENT)
}

// RouteListFiltered supports RT_FILTER_TABLE, RT_FILTER_OIF and RT_FILTER_DST.
func (k *Kernel) RouteListFiltered(family int, filter *netlink.Route, filterMask uint64) ([]netlink.Route, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var routes []netlink.Route
	for _, r := range k.routes {
		if filter != nil {
			if filterMask&netlink.RT_FILTER_TABLE != 0 && r.Table != filter.Table {
				continue
			}
			if filterMask&netlink.RT_FILTER_OIF != 0 && r.LinkIndex != filter.LinkIndex {
				continue
			}
			if filterMask&netlink.RT_FILTER_DST != 0 && dstString(r.Dst) != dstString(filter.Dst) {
				continue
			}
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// RouteAdd adds a route. The link must exist; the same destination in the same table fails with EEXIST.
func (k *Kernel) RouteAdd(route *netlink.Route) error {
	if k.RouteAddFunc != nil {
		if err := k.RouteAddFunc(route); err != nil {
			return err
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.links[route.LinkIndex]; !ok {
		return fmt.Errorf("route via link %d: %w", route.LinkIndex, unix.ENODEV)
	}
	for _, r := range k.routes {
		if r.Table == route.Table && dstString(r.Dst) == dstString(route.Dst) {
			return fmt.Errorf("route %s table %d: %w", dstString(route.Dst), route.Table, unix.EEXIST)
		}
	}

	k.routes = append(k.routes, *route)
	k.mutations++
	return nil
}

// RouteDel deletes the route with the same table, destination and link.
func (k *Kernel) RouteDel(route *netlink.Route) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i, r := range k.routes {
		if r.Table == route.Table && dstString(r.Dst) == dstString(route.Dst) &&
			(route.LinkIndex == 0 || r.LinkIndex == route.LinkIndex) {
			k.routes = append(k.routes[:i], k.routes[i+1:]...)
			k.mutations++
			return nil
		}
	}
	return fmt.Errorf("route %s table %d: %w", dstString(route.Dst), route.Table, unix.ESRCH)
}

func (k *Kernel) addLinkLocked(link netlink.Link) int {
	index := k.nextIndex
	k.nextIndex++
	link.Attrs().Index = index
	k.links[index] = link
	return index
}

func (k *Kernel) findByNameLocked(name string) netlink.Link {
	for _, link := range k.links {
		if link.Attrs().Name == name {
			return link
		}
	}
	return nil
}

// resolveLocked finds the stored link by index, falling back to the name.
func (k *Kernel) resolveLocked(link netlink.Link) netlink.Link {
	if link == nil {
		return nil
	}
	if stored, ok := k.links[link.Attrs().Index]; ok {
		return stored
	}
	return k.findByNameLocked(link.Attrs().Name)
}

func linkNotFound(name string) error {
	return fmt.Errorf("Link not found: %s: %w", name, unix.ENODEV)
}

func cloneLink(link netlink.Link) netlink.Link {
	switch l := link.(type) {
	case *netlink.Macvlan:
		c := *l
		return &c
	case *netlink.Device:
		c := *l
		return &c
	case *netlink.Dummy:
		c := *l
		return &c
	case *netlink.Vlan:
		c := *l
		return &c
	default:
		return link
	}
}

func sameRule(a, b *netlink.Rule) bool {
	return a.Priority == b.Priority && a.Table == b.Table && dstString(a.Src) == dstString(b.Src)
}

func dstString(n *net.IPNet) string {
	if n == nil {
		return "default"
	}
	if ones, _ := n.Mask.Size(); ones == 0 && n.IP.IsUnspecified() {
		return "default"
	}
	return n.String()
}
