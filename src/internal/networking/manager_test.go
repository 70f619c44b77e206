package networking

import (
	"errors"
	"testing"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	hperrors "github.com/wpsim/hairpin/src/internal/errors"
	"github.com/wpsim/hairpin/src/internal/mocks"
)

func TestManager_InstallAndUndo(t *testing.T) {
	kernel, targets := scenarioKernel(t)
	cfg := scenarioConfig(t)
	cfg.Proxy.Guard.Enabled = true
	ipt := mocks.NewMockIPTables()

	mgr, err := NewManager(kernel, cfg, ipt)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := mgr.AdjustLocalRule(); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.ApplyGuard(); err != nil {
		t.Fatal(err)
	}
	for _, result := range mgr.InstallRouting(targets) {
		if result.Err != nil || result.State != StateConverged {
			t.Fatalf("Identity %d: %+v", result.Index, result)
		}
	}

	for _, result := range mgr.CheckRouting(targets) {
		if result.State != StateConverged {
			t.Errorf("Identity %d not converged on check", result.Index)
		}
	}

	if err := mgr.UndoConfig(cfg.Indexes()); err != nil {
		t.Fatalf("UndoConfig failed: %v", err)
	}

	rules := kernel.Rules()
	if len(rules) != 3 || rules[0].Priority != 0 || rules[0].Table != unix.RT_TABLE_LOCAL {
		t.Errorf("Expected the three default rules after undo, got %d rules", len(rules))
	}
	for _, table := range []int{1001, 1002, 1003} {
		if routes := kernel.Routes(table); len(routes) != 0 {
			t.Errorf("Table %d not flushed", table)
		}
	}
	if rules := ipt.Rules("filter", "INPUT"); len(rules) != 0 {
		t.Errorf("Guard rules left after undo: %v", rules)
	}
}

func TestManager_HostComponents(t *testing.T) {
	kernel, targets := scenarioKernel(t)
	mgr, _ := NewManager(kernel, scenarioConfig(t), mocks.NewMockIPTables())

	host := mgr.HostComponents()
	if len(host) != 2 || host[0].GetType() != ComponentTypeLocalRule || host[1].GetType() != ComponentTypeIPTables {
		t.Errorf("Unexpected host components: %d", len(host))
	}

	identity := mgr.IdentityComponents(targets[0])
	expected := []ComponentType{ComponentTypeSelector, ComponentTypeSubnetRoute, ComponentTypeDefaultRoute}
	for i, c := range identity {
		if c.GetType() != expected[i] || c.GetIdentity() != 1 {
			t.Errorf("Component %d: %s of identity %d", i, c.GetType(), c.GetIdentity())
		}
		if c.GetCommand() == "" || c.GetDescription() == "" {
			t.Errorf("Component %s has no command or description", c.GetType())
		}
	}
}

func TestCountingHandle(t *testing.T) {
	kernel := mocks.NewKernel()
	uplink := kernel.AddUplink("up0")
	h := NewCountingHandle(kernel)

	link := &netlink.Macvlan{LinkAttrs: netlink.LinkAttrs{Name: "hp1", ParentIndex: uplink}}
	if err := h.LinkAdd(link); err != nil {
		t.Fatal(err)
	}
	if err := h.LinkAdd(link); err == nil {
		t.Fatal("Expected duplicate LinkAdd to fail")
	}
	if _, err := h.LinkByName("hp1"); err != nil {
		t.Fatal(err)
	}

	if h.Mutations() != 1 {
		t.Errorf("Expected 1 counted mutation, got %d", h.Mutations())
	}
}

func TestErrorClassification(t *testing.T) {
	kernel := mocks.NewKernel()

	_, err := kernel.LinkByName("missing0")
	if !IsLinkNotFound(err) {
		t.Errorf("Expected link-not-found, got %v", err)
	}
	if IsLinkNotFound(errors.New("boom")) {
		t.Error("Unrelated error classified as link-not-found")
	}
	if !IsPermissionError(unix.EACCES) || !IsPermissionError(unix.EPERM) {
		t.Error("EPERM and EACCES are permission errors")
	}
	if !IsExistError(kernel.RuleAdd(&kernel.Rules()[0])) {
		t.Error("Adding a duplicate rule should be an exist error")
	}
}

func TestFindUplink(t *testing.T) {
	kernel := mocks.NewKernel()

	if _, err := FindUplink(kernel, "up0"); !hperrors.IsFatal(err) {
		t.Errorf("Missing uplink must be fatal, got %v", err)
	}

	kernel.AddUplink("up0")
	uplink, err := FindUplink(kernel, "up0")
	if err != nil || uplink.Name() != "up0" {
		t.Errorf("Expected up0, got %v %v", uplink, err)
	}
}

func TestFatalIfPermission(t *testing.T) {
	if err := FatalIfPermission(unix.EPERM, "add rule"); !hperrors.IsFatal(err) {
		t.Errorf("Expected fatal error, got %v", err)
	}
	if err := FatalIfPermission(unix.ENOENT, "add rule"); hperrors.IsFatal(err) {
		t.Error("ENOENT must not be fatal")
	}
	if FatalIfPermission(nil, "add rule") != nil {
		t.Error("nil must stay nil")
	}
}
