package mocks

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

func TestKernel_Defaults(t *testing.T) {
	kernel := NewKernel()

	rules := kernel.Rules()
	if len(rules) != 3 {
		t.Fatalf("Expected 3 default rules, got %d", len(rules))
	}
	if rules[0].Priority != 0 || rules[0].Table != unix.RT_TABLE_LOCAL {
		t.Errorf("Expected local rule at priority 0, got %+v", rules[0])
	}
	if kernel.Mutations() != 0 {
		t.Errorf("Expected no mutations, got %d", kernel.Mutations())
	}
}

func TestKernel_LinkLifecycle(t *testing.T) {
	kernel := NewKernel()
	parent := kernel.AddUplink("up0")

	mv := &netlink.Macvlan{
		LinkAttrs: netlink.LinkAttrs{Name: "hp1", ParentIndex: parent},
		Mode:      netlink.MACVLAN_MODE_BRIDGE,
	}
	if err := kernel.LinkAdd(mv); err != nil {
		t.Fatalf("LinkAdd failed: %v", err)
	}
	if err := kernel.LinkAdd(mv); !errors.Is(err, unix.EEXIST) {
		t.Errorf("Expected EEXIST on duplicate, got %v", err)
	}

	link, err := kernel.LinkByName("hp1")
	if err != nil {
		t.Fatalf("LinkByName failed: %v", err)
	}
	if link.Type() != "macvlan" || link.Attrs().ParentIndex != parent {
		t.Errorf("Unexpected link: %s parent %d", link.Type(), link.Attrs().ParentIndex)
	}
	if link.Attrs().Flags&net.FlagUp != 0 {
		t.Error("New link should be down")
	}

	if err := kernel.LinkSetUp(link); err != nil {
		t.Fatalf("LinkSetUp failed: %v", err)
	}
	if err := kernel.LinkDel(link); err != nil {
		t.Fatalf("LinkDel failed: %v", err)
	}
	if _, err := kernel.LinkByName("hp1"); !errors.Is(err, unix.ENODEV) {
		t.Errorf("Expected ENODEV after delete, got %v", err)
	}

	if kernel.Mutations() != 3 {
		t.Errorf("Expected 3 mutations, got %d", kernel.Mutations())
	}
}

func TestKernel_RouteRequiresLink(t *testing.T) {
	kernel := NewKernel()

	_, dst, _ := net.ParseCIDR("10.0.0.0/24")
	err := kernel.RouteAdd(&netlink.Route{Table: 1001, Dst: dst, LinkIndex: 42})
	if !errors.Is(err, unix.ENODEV) {
		t.Errorf("Expected ENODEV, got %v", err)
	}
}

func TestKernel_LinkDelRemovesRoutes(t *testing.T) {
	kernel := NewKernel()
	index := kernel.AddUplink("up0")

	_, dst, _ := net.ParseCIDR("10.0.0.0/24")
	kernel.AddRoute(netlink.Route{Table: 1001, Dst: dst, LinkIndex: index})

	link, _ := kernel.LinkByName("up0")
	if err := kernel.LinkDel(link); err != nil {
		t.Fatalf("LinkDel failed: %v", err)
	}
	if routes := kernel.Routes(1001); len(routes) != 0 {
		t.Errorf("Expected routes to be removed with the link, got %d", len(routes))
	}
}

func TestMockLeaseClient(t *testing.T) {
	kernel := NewKernel()
	kernel.AddUplink("hp1")
	kernel.AddUplink("hp2")

	leaser := &MockLeaseClient{Kernel: kernel, Offers: map[int]string{1: "10.0.0.11/24"}}

	ip, err := leaser.Acquire(context.Background(), "hp1", 1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ip.Equal(net.ParseIP("10.0.0.11")) {
		t.Errorf("Expected 10.0.0.11, got %s", ip)
	}

	link, _ := kernel.LinkByName("hp1")
	addrs, _ := kernel.AddrList(link, netlink.FAMILY_V4)
	if len(addrs) != 1 {
		t.Errorf("Expected leased address on hp1, got %v", addrs)
	}

	if _, err := leaser.Acquire(context.Background(), "hp2", 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
	if leaser.RequestCount() != 2 {
		t.Errorf("Expected 2 requests, got %d", leaser.RequestCount())
	}
}

func TestMockIPTables(t *testing.T) {
	ipt := NewMockIPTables()

	if err := ipt.Append("filter", "INPUT", "-p", "tcp", "-j", "DROP"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	exists, _ := ipt.Exists("filter", "INPUT", "-p", "tcp", "-j", "DROP")
	if !exists {
		t.Error("Expected rule to exist")
	}
	if err := ipt.Delete("filter", "INPUT", "-p", "tcp", "-j", "DROP"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := ipt.Delete("filter", "INPUT", "-p", "tcp", "-j", "DROP"); err == nil {
		t.Error("Expected error deleting a missing rule")
	}
}
